// Package light implements the light controller: on/off with program cycling, step dimming and
// dynamic program refresh.
package light

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dokzlo13/lightcycle/internal/items"
	"github.com/dokzlo13/lightcycle/internal/program"
)

// ErrUnknownLight is returned when a light name is not configured.
var ErrUnknownLight = errors.New("unknown light")

// Light is a configured light: its items, its cycling list and an optional dynamic program
// refreshed on every tick.
type Light struct {
	Name     string
	Items    items.Names
	Programs program.List
	Dynamic  *program.Dynamic
}

// Set holds configured lights by name.
type Set map[string]Light

// Get returns the named light.
func (s Set) Get(name string) (Light, error) {
	l, ok := s[name]
	if !ok {
		return Light{}, fmt.Errorf("%w: %s", ErrUnknownLight, name)
	}
	return l, nil
}

// Names returns the light names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
