// Package program models light programs and applies them to a light's items.
package program

import (
	"github.com/dokzlo13/lightcycle/internal/color"
	"github.com/dokzlo13/lightcycle/internal/solar"
)

// Kind is the program tag used in configuration.
type Kind string

const (
	KindScene   Kind = "huescene"
	KindManual  Kind = "manual"
	KindDynamic Kind = "dynamic"
)

// Program is one of Scene, Manual or Dynamic.
type Program interface {
	Kind() Kind
	isProgram()
}

// Scene activates a scene by sending its id to the scene item.
type Scene struct {
	SceneID string
}

// Manual sets fixed values. Nil fields are left untouched.
type Manual struct {
	Brightness       *int
	ColorTemperature *int
	Color            *color.RGB
}

// Dynamic computes values live from a named curve.
type Dynamic struct {
	Name   string
	Params solar.Params
}

func (Scene) Kind() Kind   { return KindScene }
func (Manual) Kind() Kind  { return KindManual }
func (Dynamic) Kind() Kind { return KindDynamic }

func (Scene) isProgram()   {}
func (Manual) isProgram()  {}
func (Dynamic) isProgram() {}

// Indexed is a program with its cycling index.
type Indexed struct {
	Index   int
	Program Program
}

// List is an ordered cycling list. Lookups go by Index, not position.
type List []Indexed

// Find returns the program whose Index equals index.
func (l List) Find(index int) (Program, bool) {
	for _, p := range l {
		if p.Index == index {
			return p.Program, true
		}
	}
	return nil, false
}

// ManualFromResult turns a curve result into a Manual program.
func ManualFromResult(r solar.Result) Manual {
	bri, ct := r.Brightness, r.ColorTemperature
	return Manual{Brightness: &bri, ColorTemperature: &ct}
}
