package program

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dokzlo13/lightcycle/internal/items"
	"github.com/dokzlo13/lightcycle/internal/solar"
)

// FollowDaylightName is the name of the built-in solar curve.
const FollowDaylightName = "FollowDaylight"

var (
	// ErrUnknownCurve is returned when a dynamic program names no registered curve.
	ErrUnknownCurve = errors.New("unknown dynamic curve")

	// ErrAnchorsUnavailable is returned when sunrise/sunset cannot be read from the items.
	ErrAnchorsUnavailable = errors.New("solar anchors unavailable")
)

// CurveFunc evaluates a dynamic program for now. It may read the light's items.
type CurveFunc func(ctx context.Context, r items.Registry, names items.Names, now time.Time, p solar.Params) (solar.Result, error)

// Curves maps dynamic program names to curve functions.
type Curves struct {
	mu     sync.RWMutex
	curves map[string]CurveFunc
}

// NewCurves returns a registry holding the built-in curves.
func NewCurves() *Curves {
	c := &Curves{curves: make(map[string]CurveFunc)}
	c.Register(FollowDaylightName, FollowDaylight)
	return c
}

// Register adds or replaces a curve.
func (c *Curves) Register(name string, fn CurveFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.curves[name] = fn
}

// Lookup returns the curve registered under name.
func (c *Curves) Lookup(name string) (CurveFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.curves[name]
	return fn, ok
}

// FollowDaylight reads today's sunrise and sunset from the light's items and evaluates the
// solar curve.
func FollowDaylight(ctx context.Context, r items.Registry, names items.Names, now time.Time, p solar.Params) (solar.Result, error) {
	sunrise, err := readTime(ctx, r, names.Sunrise)
	if err != nil {
		return solar.Result{}, fmt.Errorf("%w: sunrise: %v", ErrAnchorsUnavailable, err)
	}
	sunset, err := readTime(ctx, r, names.Sunset)
	if err != nil {
		return solar.Result{}, fmt.Errorf("%w: sunset: %v", ErrAnchorsUnavailable, err)
	}
	return solar.FollowDaylight(now, sunrise, sunset, p), nil
}

func readTime(ctx context.Context, r items.Registry, name string) (time.Time, error) {
	if name == "" {
		return time.Time{}, errors.New("item not configured")
	}
	state, err := r.State(ctx, name)
	if err != nil {
		return time.Time{}, err
	}
	return items.ParseDateTime(state)
}
