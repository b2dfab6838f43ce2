package api

import "time"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Registry  string    `json:"registry"`
	Lights    int       `json:"lights"`
	Dropped   uint64    `json:"dropped_events"`
	Timestamp time.Time `json:"timestamp"`
}

// LightStatus describes a light's current state.
type LightStatus struct {
	Name         string `json:"name"`
	On           bool   `json:"on"`
	Off          bool   `json:"off"`
	Brightness   *int   `json:"brightness,omitempty"`
	Programs     int    `json:"programs"`
	ProgramIndex *int   `json:"program_index,omitempty"`
	Dynamic      string `json:"dynamic,omitempty"`
}

// SwitchOnResponse is returned by POST /lights/:name/on.
type SwitchOnResponse struct {
	Light      string `json:"light"`
	Advanced   bool   `json:"advanced"`
	Dispatched bool   `json:"dispatched"`
	Index      int    `json:"index"`
	SentOn     bool   `json:"sent_on"`
}

// DimResponse is returned by the dim endpoints.
type DimResponse struct {
	Light      string `json:"light"`
	Brightness int    `json:"brightness"`
	Changed    bool   `json:"changed"`
}

// DynamicResponse is returned by POST /lights/:name/dynamic.
type DynamicResponse struct {
	Light   string `json:"light"`
	Updated bool   `json:"updated"`
}

// TriggerResponse is returned by POST /triggers/:name.
type TriggerResponse struct {
	Trigger   string `json:"trigger"`
	RequestID string `json:"request_id"`
}
