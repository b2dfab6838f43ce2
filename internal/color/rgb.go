// Package color converts RGB values to and from the item registry's wire form ("r,g,b").
package color

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidColor is returned for out-of-range channels or malformed "r,g,b" text.
var ErrInvalidColor = errors.New("invalid rgb color")

// RGB is a color with 8-bit channels.
type RGB struct {
	R int `yaml:"r" json:"r"`
	G int `yaml:"g" json:"g"`
	B int `yaml:"b" json:"b"`
}

// Valid reports whether all channels are within [0,255].
func (c RGB) Valid() bool {
	return inRange(c.R) && inRange(c.G) && inRange(c.B)
}

func (c RGB) String() string {
	return strconv.Itoa(c.R) + "," + strconv.Itoa(c.G) + "," + strconv.Itoa(c.B)
}

// Encode returns the "r,g,b" form of c.
func Encode(c RGB) (string, error) {
	if !c.Valid() {
		return "", ErrInvalidColor
	}
	return c.String(), nil
}

// Decode parses "r,g,b". Fields are trimmed; each must be an integer in [0,255].
func Decode(s string) (RGB, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return RGB{}, ErrInvalidColor
	}

	var channels [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || !inRange(v) {
			return RGB{}, ErrInvalidColor
		}
		channels[i] = v
	}

	return RGB{R: channels[0], G: channels[1], B: channels[2]}, nil
}

func inRange(v int) bool {
	return v >= 0 && v <= 255
}
