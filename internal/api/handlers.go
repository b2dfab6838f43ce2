package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightcycle/internal/cycling"
	"github.com/dokzlo13/lightcycle/internal/eventbus"
	"github.com/dokzlo13/lightcycle/internal/items"
	"github.com/dokzlo13/lightcycle/internal/ledger"
	"github.com/dokzlo13/lightcycle/internal/light"
	"github.com/dokzlo13/lightcycle/internal/lua"
)

// Runner serializes controller calls onto the single script worker.
type Runner interface {
	DoSyncWithResult(ctx context.Context, work func(context.Context) error) error
}

// Triggers reports which triggers have script handlers.
type Triggers interface {
	HasTrigger(name string) bool
}

// Deps groups the handlers' collaborators.
type Deps struct {
	Lights     light.Set
	Controller *light.Controller
	Registry   items.Registry
	Cycling    *cycling.Store
	Runner     Runner
	Triggers   Triggers
	Bus        *eventbus.Bus

	// History records light operations. nil disables history and retry detection.
	History *ledger.Ledger
	// Connected reports registry connectivity. nil means always connected.
	Connected func() bool
}

type handlers struct {
	Deps
}

// health handles GET /health
func (h *handlers) health(c *gin.Context) {
	registry, status, code := "connected", "healthy", http.StatusOK
	if h.Connected != nil && !h.Connected() {
		registry, status, code = "disconnected", "degraded", http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:    status,
		Registry:  registry,
		Lights:    len(h.Lights),
		Timestamp: time.Now(),
	}
	if h.Bus != nil {
		resp.Dropped = h.Bus.Dropped()
	}
	c.JSON(code, resp)
}

// listLights handles GET /api/v1/lights
func (h *handlers) listLights(c *gin.Context) {
	out := make([]LightStatus, 0, len(h.Lights))
	err := h.Runner.DoSyncWithResult(c.Request.Context(), func(ctx context.Context) error {
		for _, name := range h.Lights.Names() {
			st, err := h.status(ctx, h.Lights[name])
			if err != nil {
				return err
			}
			out = append(out, st)
		}
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// getLight handles GET /api/v1/lights/:name
func (h *handlers) getLight(c *gin.Context) {
	l, ok := h.light(c)
	if !ok {
		return
	}

	var st LightStatus
	err := h.Runner.DoSyncWithResult(c.Request.Context(), func(ctx context.Context) error {
		var err error
		st, err = h.status(ctx, l)
		return err
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handlers) status(ctx context.Context, l light.Light) (LightStatus, error) {
	st := LightStatus{Name: l.Name, Programs: len(l.Programs)}
	if l.Dynamic != nil {
		st.Dynamic = l.Dynamic.Name
	}

	state, err := h.Registry.State(ctx, l.Items.Switch)
	if err != nil && !errors.Is(err, items.ErrUnknownItem) {
		return st, err
	}
	st.On, st.Off = state == items.On, state == items.Off

	if l.Items.Brightness != "" {
		if s, err := h.Registry.State(ctx, l.Items.Brightness); err == nil {
			if bri, err := items.ParseInt(s); err == nil {
				st.Brightness = &bri
			}
		}
	}

	idx, found, err := h.Cycling.Get(ctx, cycling.LightKey(l.Items.Switch))
	if err != nil {
		return st, err
	}
	if found {
		st.ProgramIndex = &idx
	}
	return st, nil
}

// switchOn handles POST /api/v1/lights/:name/on?program=N&block=true
func (h *handlers) switchOn(c *gin.Context) {
	l, ok := h.light(c)
	if !ok {
		return
	}

	var opts light.SwitchOnOptions
	if p := c.Query("program"); p != "" {
		idx, err := strconv.Atoi(p)
		if err != nil {
			h.badRequest(c, "program must be an integer")
			return
		}
		opts.ProgramIndex = &idx
	}
	if b := c.Query("block"); b != "" {
		block, err := strconv.ParseBool(b)
		if err != nil {
			h.badRequest(c, "block must be a boolean")
			return
		}
		opts.BlockIterating = block
	}

	payload := map[string]any{"block": opts.BlockIterating}
	if opts.ProgramIndex != nil {
		payload["program"] = *opts.ProgramIndex
	}

	var res light.SwitchOnResult
	ok = h.execute(c, l, "switch_on", payload, func(ctx context.Context) error {
		var err error
		res, err = h.Controller.SwitchOn(ctx, l.Items, l.Programs, opts)
		return err
	})
	if !ok {
		return
	}

	c.JSON(http.StatusOK, SwitchOnResponse{
		Light:      l.Name,
		Advanced:   res.Advanced,
		Dispatched: res.Dispatched,
		Index:      res.Index,
		SentOn:     res.SentOn,
	})
}

// switchOff handles POST /api/v1/lights/:name/off
func (h *handlers) switchOff(c *gin.Context) {
	l, ok := h.light(c)
	if !ok {
		return
	}
	ok = h.execute(c, l, "switch_off", nil, func(ctx context.Context) error {
		return h.Controller.SwitchOff(ctx, l.Items)
	})
	if !ok {
		return
	}
	c.Status(http.StatusNoContent)
}

// dim returns the handler for POST /api/v1/lights/:name/dim/{up,down}
func (h *handlers) dim(up bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		l, ok := h.light(c)
		if !ok {
			return
		}

		op := "dim_down"
		if up {
			op = "dim_up"
		}

		var res light.DimResult
		ok = h.execute(c, l, op, nil, func(ctx context.Context) error {
			var err error
			if up {
				res, err = h.Controller.DimUp(ctx, l.Items)
			} else {
				res, err = h.Controller.DimDown(ctx, l.Items)
			}
			return err
		})
		if !ok {
			return
		}
		c.JSON(http.StatusOK, DimResponse{Light: l.Name, Brightness: res.Brightness, Changed: res.Changed})
	}
}

// dynamic handles POST /api/v1/lights/:name/dynamic?only_if_on=false
func (h *handlers) dynamic(c *gin.Context) {
	l, ok := h.light(c)
	if !ok {
		return
	}
	if l.Dynamic == nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:     "no_dynamic_program",
			Message:   "Light has no dynamic program configured",
			RequestID: c.GetString(requestIDKey),
		})
		return
	}

	onlyIfOn := true
	if v := c.Query("only_if_on"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.badRequest(c, "only_if_on must be a boolean")
			return
		}
		onlyIfOn = b
	}

	var updated bool
	ok = h.execute(c, l, "dynamic", map[string]any{"only_if_on": onlyIfOn}, func(ctx context.Context) error {
		var err error
		updated, err = h.Controller.UpdateItemsByDynamicMode(ctx, l.Items, *l.Dynamic, onlyIfOn)
		return err
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, DynamicResponse{Light: l.Name, Updated: updated})
}

// trigger handles POST /api/v1/triggers/:name with an optional JSON object payload
func (h *handlers) trigger(c *gin.Context) {
	name := c.Param("name")
	if h.Triggers == nil || !h.Triggers.HasTrigger(name) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "not_found",
			Message:   "No handler registered for trigger",
			RequestID: c.GetString(requestIDKey),
		})
		return
	}

	var payload map[string]any
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			h.badRequest(c, "payload must be a JSON object")
			return
		}
	}

	id := c.GetString(requestIDKey)
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["request_id"] = id

	h.Bus.Publish(eventbus.Trigger(name, payload))
	c.JSON(http.StatusAccepted, TriggerResponse{Trigger: name, RequestID: id})
}

// history handles GET /api/v1/history?light=NAME&limit=N
func (h *handlers) history(c *gin.Context) {
	if h.History == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "not_found",
			Message:   "Operation history is disabled",
			RequestID: c.GetString(requestIDKey),
		})
		return
	}

	q := ledger.Query{Light: c.Query("light")}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			h.badRequest(c, "limit must be a positive integer")
			return
		}
		q.Limit = limit
	}

	entries, err := h.History.Recent(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "history_error",
			Message:   err.Error(),
			RequestID: c.GetString(requestIDKey),
		})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// errDuplicateRequest reports a request id whose operation already completed.
var errDuplicateRequest = errors.New("request already completed")

// execute runs work on the script worker and returns false if an error response was written.
// The completed check and the outcome record run on the worker too, so two retries with the
// same id cannot both execute, and the outcome is recorded even if the caller stops waiting.
func (h *handlers) execute(c *gin.Context, l light.Light, op string, payload map[string]any, work func(context.Context) error) bool {
	id := c.GetString(requestIDKey)

	err := h.Runner.DoSyncWithResult(c.Request.Context(), func(ctx context.Context) error {
		if h.History == nil {
			return work(ctx)
		}

		recordCtx := context.WithoutCancel(ctx)
		if h.History.HasCompleted(recordCtx, id) {
			return errDuplicateRequest
		}

		err := work(ctx)
		if rerr := h.History.Record(recordCtx, l.Name, op, ledger.SourceAPI, id, payload, err); rerr != nil {
			log.Warn().Err(rerr).Str("light", l.Name).Str("operation", op).Msg("Failed to record operation")
		}
		return err
	})
	if err != nil {
		h.fail(c, err)
		return false
	}
	return true
}

func (h *handlers) light(c *gin.Context) (light.Light, bool) {
	l, err := h.Lights.Get(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "not_found",
			Message:   err.Error(),
			RequestID: c.GetString(requestIDKey),
		})
		return l, false
	}
	return l, true
}

func (h *handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:     "invalid_request",
		Message:   msg,
		RequestID: c.GetString(requestIDKey),
	})
}

func (h *handlers) fail(c *gin.Context, err error) {
	code, kind := http.StatusBadGateway, "registry_error"
	switch {
	case errors.Is(err, errDuplicateRequest):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:     "duplicate_request",
			Message:   "Request already completed",
			RequestID: c.GetString(requestIDKey),
		})
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code, kind = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, items.ErrUnknownItem):
		code, kind = http.StatusNotFound, "unknown_item"
	case errors.Is(err, lua.ErrRuntimeClosed):
		code, kind = http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, lua.ErrWorkPanicked):
		code, kind = http.StatusInternalServerError, "internal_error"
	}
	c.JSON(code, ErrorResponse{
		Error:     kind,
		Message:   err.Error(),
		RequestID: c.GetString(requestIDKey),
	})
}
