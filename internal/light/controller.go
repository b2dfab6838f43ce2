package light

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightcycle/internal/cycling"
	"github.com/dokzlo13/lightcycle/internal/items"
	"github.com/dokzlo13/lightcycle/internal/program"
)

// dimStep is the brightness step used by DimUp and DimDown.
const dimStep = 20

// Controller drives lights through their items.
type Controller struct {
	registry   items.Registry
	dispatcher *program.Dispatcher
	cycling    *cycling.Store
}

// NewController creates a controller. The dispatcher must write to the same registry.
func NewController(dispatcher *program.Dispatcher, store *cycling.Store) *Controller {
	return &Controller{
		registry:   dispatcher.Registry(),
		dispatcher: dispatcher,
		cycling:    store,
	}
}

// SwitchOnOptions tunes SwitchOn.
type SwitchOnOptions struct {
	// ProgramIndex selects the program to activate when the light is off.
	ProgramIndex *int
	// BlockIterating disables cycling when the light is already on.
	BlockIterating bool
}

// SwitchOnResult reports what SwitchOn did.
type SwitchOnResult struct {
	Advanced   bool // cycled to the next program of an already-on light
	Dispatched bool // a program was applied
	Index      int  // index activated, valid when Advanced or Dispatched
	SentOn     bool // the ON command was sent
}

// SwitchOn switches an off light on, optionally with a program, or cycles an already-on light
// to its next program.
func (c *Controller) SwitchOn(ctx context.Context, names items.Names, programs program.List, opts SwitchOnOptions) (SwitchOnResult, error) {
	var res SwitchOnResult

	key := cycling.LightKey(names.Switch)
	unlock := c.cycling.Lock(key)
	defer unlock()

	if err := c.cycling.Ensure(ctx); err != nil {
		return res, err
	}

	state, err := c.registry.State(ctx, names.Switch)
	if err != nil {
		return res, fmt.Errorf("failed to read switch %s: %w", names.Switch, err)
	}

	switch state {
	case items.On:
		if len(programs) <= 1 || opts.BlockIterating {
			return res, nil
		}

		current, found, err := c.cycling.Get(ctx, key)
		if err != nil {
			return res, err
		}
		next := 0
		if found && current >= 0 && current < len(programs)-1 {
			next = current + 1
		}

		res.Advanced = true
		res.Index = next
		if res.Dispatched, err = c.dispatch(ctx, names, programs, next); err != nil {
			return res, err
		}
		if err := c.cycling.Put(ctx, key, next); err != nil {
			return res, err
		}

		log.Debug().
			Str("switch", names.Switch).
			Int("index", next).
			Msg("Cycled to next program")

	case items.Off:
		if idx := opts.ProgramIndex; idx != nil && *idx >= 0 && *idx < len(programs) {
			res.Index = *idx
			if res.Dispatched, err = c.dispatch(ctx, names, programs, *idx); err != nil {
				return res, err
			}
			if err := c.cycling.Put(ctx, key, *idx); err != nil {
				return res, err
			}
		}

		if err := c.registry.SendCommand(ctx, names.Switch, items.On); err != nil {
			return res, err
		}
		res.SentOn = true

	default:
		log.Debug().Str("switch", names.Switch).Str("state", state).Msg("Switch state neither ON nor OFF, ignoring")
	}

	return res, nil
}

// dispatch applies the program with the given index. Reports whether one was found.
func (c *Controller) dispatch(ctx context.Context, names items.Names, programs program.List, index int) (bool, error) {
	p, ok := programs.Find(index)
	if !ok {
		log.Debug().Str("switch", names.Switch).Int("index", index).Msg("No program with index")
		return false, nil
	}
	if err := c.dispatcher.Apply(ctx, names, p); err != nil {
		return false, err
	}
	return true, nil
}

// SwitchOff sends OFF to the light's switch.
func (c *Controller) SwitchOff(ctx context.Context, names items.Names) error {
	return c.registry.SendCommand(ctx, names.Switch, items.Off)
}

// DimResult reports the outcome of a dim step.
type DimResult struct {
	Brightness int  // brightness after the step
	Changed    bool // a command was sent
}

// DimUp raises brightness to the next multiple of 20.
func (c *Controller) DimUp(ctx context.Context, names items.Names) (DimResult, error) {
	bri, ok, err := c.brightness(ctx, names)
	if err != nil || !ok {
		return DimResult{}, err
	}
	if bri >= 100 {
		return DimResult{Brightness: bri}, nil
	}
	return c.setBrightness(ctx, names, StepUp(bri))
}

// DimDown lowers brightness to the previous multiple of 20, never below 1.
func (c *Controller) DimDown(ctx context.Context, names items.Names) (DimResult, error) {
	bri, ok, err := c.brightness(ctx, names)
	if err != nil || !ok {
		return DimResult{}, err
	}
	target, ok := StepDown(bri)
	if !ok {
		return DimResult{Brightness: bri}, nil
	}
	return c.setBrightness(ctx, names, target)
}

// StepUp returns the next multiple of 20 above bri.
func StepUp(bri int) int {
	return int(math.Ceil(float64(bri+1)/dimStep)) * dimStep
}

// StepDown returns the previous multiple of 20 below bri, or 1 for 1 < bri <= 20.
// Reports false when bri is already at or below 1.
func StepDown(bri int) (int, bool) {
	switch {
	case bri > dimStep:
		return int(math.Floor(float64(bri-1)/dimStep)) * dimStep, true
	case bri > 1:
		return 1, true
	}
	return bri, false
}

// brightness reads the brightness item. ok is false when the state is not a number.
func (c *Controller) brightness(ctx context.Context, names items.Names) (int, bool, error) {
	state, err := c.registry.State(ctx, names.Brightness)
	if err != nil {
		if errors.Is(err, items.ErrUnknownItem) {
			return 0, false, nil
		}
		return 0, false, err
	}
	bri, err := items.ParseInt(state)
	if err != nil {
		log.Debug().Str("item", names.Brightness).Str("state", state).Msg("Brightness is not a number, skipping")
		return 0, false, nil
	}
	return bri, true, nil
}

func (c *Controller) setBrightness(ctx context.Context, names items.Names, target int) (DimResult, error) {
	sent, err := c.registry.SendCommandIfDifferent(ctx, names.Brightness, strconv.Itoa(target))
	if err != nil {
		return DimResult{}, err
	}
	return DimResult{Brightness: target, Changed: sent}, nil
}

// IsOn reports whether the switch item is ON.
func (c *Controller) IsOn(ctx context.Context, names items.Names) (bool, error) {
	state, err := c.registry.State(ctx, names.Switch)
	if err != nil {
		return false, err
	}
	return state == items.On, nil
}

// IsOff reports whether the switch item is OFF.
func (c *Controller) IsOff(ctx context.Context, names items.Names) (bool, error) {
	state, err := c.registry.State(ctx, names.Switch)
	if err != nil {
		return false, err
	}
	return state == items.Off, nil
}

// UpdateItemsByDynamicMode refreshes a light from a dynamic program. With onlyIfSwitchedOn an
// OFF light is left alone. Brightness is always sent; color temperature only when the light has
// a color temperature item and the value changed.
func (c *Controller) UpdateItemsByDynamicMode(ctx context.Context, names items.Names, p program.Dynamic, onlyIfSwitchedOn bool) (bool, error) {
	if onlyIfSwitchedOn {
		off, err := c.IsOff(ctx, names)
		if err != nil {
			return false, err
		}
		if off {
			return false, nil
		}
	}

	r, err := c.dispatcher.Resolve(ctx, names, p)
	if errors.Is(err, program.ErrUnknownCurve) || errors.Is(err, program.ErrAnchorsUnavailable) {
		log.Debug().Err(err).Str("curve", p.Name).Msg("Dynamic update skipped")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := c.registry.SendCommand(ctx, names.Brightness, strconv.Itoa(r.Brightness)); err != nil {
		return false, err
	}
	if names.ColorTemperature != "" {
		if _, err := c.registry.SendCommandIfDifferent(ctx, names.ColorTemperature, strconv.Itoa(r.ColorTemperature)); err != nil {
			return false, err
		}
	}

	log.Debug().
		Str("switch", names.Switch).
		Int("brightness", r.Brightness).
		Int("color_temperature", r.ColorTemperature).
		Msg("Dynamic mode updated")

	return true, nil
}
