// Package items provides access to the home-automation item registry: named control points whose
// state is always text.
package items

import (
	"context"
	"errors"
)

// Switch states.
const (
	On  = "ON"
	Off = "OFF"
)

// ErrUnknownItem is returned when an item has no known state.
var ErrUnknownItem = errors.New("unknown item")

// Names maps a light's logical roles to item names.
type Names struct {
	Switch           string `yaml:"switch" json:"switch"`
	Brightness       string `yaml:"brightness" json:"brightness"`
	ColorTemperature string `yaml:"color_temperature" json:"color_temperature"`
	Color            string `yaml:"color" json:"color"`
	Scene            string `yaml:"scene" json:"scene"`
	Sunrise          string `yaml:"sunrise" json:"sunrise"`
	Sunset           string `yaml:"sunset" json:"sunset"`
}

// Registry reads item states and sends item commands.
type Registry interface {
	// State returns the current textual state of an item.
	State(ctx context.Context, name string) (string, error)

	// SendCommand sends value to the item unconditionally.
	SendCommand(ctx context.Context, name, value string) error

	// SendCommandIfDifferent sends value only when the current state differs.
	// Reports whether a command was sent.
	SendCommandIfDifferent(ctx context.Context, name, value string) (bool, error)
}

// ChangeFunc is called when an item's state changes.
type ChangeFunc func(name, previous, state string)

// sendIfDifferent implements SendCommandIfDifferent on top of State and SendCommand.
// An item without a known state is treated as different.
func sendIfDifferent(ctx context.Context, r Registry, name, value string) (bool, error) {
	current, err := r.State(ctx, name)
	if err != nil && !errors.Is(err, ErrUnknownItem) {
		return false, err
	}
	if err == nil && current == value {
		return false, nil
	}
	if err := r.SendCommand(ctx, name, value); err != nil {
		return false, err
	}
	return true, nil
}
