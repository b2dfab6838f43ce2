package program

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightcycle/internal/color"
	"github.com/dokzlo13/lightcycle/internal/items"
	"github.com/dokzlo13/lightcycle/internal/solar"
)

// Accepted ranges for manual values.
const (
	MinBrightness       = 0
	MaxBrightness       = 100
	MinColorTemperature = 2200
	MaxColorTemperature = 6500
)

// Dispatcher turns programs into item commands.
type Dispatcher struct {
	registry items.Registry
	curves   *Curves
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. A nil now uses time.Now.
func NewDispatcher(registry items.Registry, curves *Curves, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	if curves == nil {
		curves = NewCurves()
	}
	return &Dispatcher{
		registry: registry,
		curves:   curves,
		now:      now,
	}
}

// Registry returns the item registry commands are sent to.
func (d *Dispatcher) Registry() items.Registry {
	return d.registry
}

// Apply sends the commands for p to the light's items. Invalid values and unknown curves are
// skipped; only registry failures are returned.
func (d *Dispatcher) Apply(ctx context.Context, names items.Names, p Program) error {
	switch p := p.(type) {
	case Scene:
		return d.applyScene(ctx, names, p)
	case Manual:
		return d.applyManual(ctx, names, p)
	case Dynamic:
		return d.applyDynamic(ctx, names, p)
	case nil:
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnknownType, p)
	}
}

// Resolve evaluates a dynamic program's curve for the current time.
func (d *Dispatcher) Resolve(ctx context.Context, names items.Names, p Dynamic) (solar.Result, error) {
	fn, ok := d.curves.Lookup(p.Name)
	if !ok {
		return solar.Result{}, fmt.Errorf("%w: %q", ErrUnknownCurve, p.Name)
	}
	return fn(ctx, d.registry, names, d.now(), p.Params)
}

func (d *Dispatcher) applyScene(ctx context.Context, names items.Names, p Scene) error {
	if p.SceneID == "" {
		log.Debug().Str("item", names.Scene).Msg("Scene program without scene id, skipping")
		return nil
	}
	return d.registry.SendCommand(ctx, names.Scene, p.SceneID)
}

func (d *Dispatcher) applyManual(ctx context.Context, names items.Names, p Manual) error {
	if p.Brightness != nil {
		if v := *p.Brightness; v >= MinBrightness && v <= MaxBrightness {
			if _, err := d.registry.SendCommandIfDifferent(ctx, names.Brightness, strconv.Itoa(v)); err != nil {
				return err
			}
		} else {
			log.Debug().Int("brightness", v).Msg("Brightness out of range, skipping")
		}
	}

	if p.ColorTemperature != nil {
		if v := *p.ColorTemperature; v >= MinColorTemperature && v <= MaxColorTemperature {
			if _, err := d.registry.SendCommandIfDifferent(ctx, names.ColorTemperature, strconv.Itoa(v)); err != nil {
				return err
			}
		} else {
			log.Debug().Int("color_temperature", v).Msg("Color temperature out of range, skipping")
		}
	}

	if p.Color != nil {
		s, err := color.Encode(*p.Color)
		if err != nil {
			log.Debug().Stringer("color", p.Color).Msg("Invalid color, skipping")
			return nil
		}
		if _, err := d.registry.SendCommandIfDifferent(ctx, names.Color, s); err != nil {
			return err
		}
	}

	return nil
}

func (d *Dispatcher) applyDynamic(ctx context.Context, names items.Names, p Dynamic) error {
	r, err := d.Resolve(ctx, names, p)
	if errors.Is(err, ErrUnknownCurve) || errors.Is(err, ErrAnchorsUnavailable) {
		log.Debug().Err(err).Str("curve", p.Name).Msg("Dynamic program not applied")
		return nil
	}
	if err != nil {
		return err
	}

	log.Debug().
		Str("curve", p.Name).
		Int("brightness", r.Brightness).
		Int("color_temperature", r.ColorTemperature).
		Msg("Dynamic program resolved")

	return d.applyManual(ctx, names, ManualFromResult(r))
}
