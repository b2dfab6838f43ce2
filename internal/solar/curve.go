// Package solar computes brightness and color temperature that follow the daylight cycle.
//
// The curve is two parabolas: a daytime one peaking at solar noon (+100) and a night one
// bottoming at solar midnight (-100), both crossing zero at sunrise and sunset. The signed
// percentage drives color temperature during the day and brightness during the night.
package solar

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// Default curve bounds.
const (
	DefaultMaxColorTemp  = 5500
	DefaultMinColorTemp  = 2500
	DefaultMaxBrightness = 100
	DefaultMinBrightness = 30
)

// Params bounds the curve output. Zero fields take the defaults.
type Params struct {
	MaxColorTemp  int `yaml:"max_color_temp" json:"max_color_temp"`
	MinColorTemp  int `yaml:"min_color_temp" json:"min_color_temp"`
	MaxBrightness int `yaml:"max_brightness" json:"max_brightness"`
	MinBrightness int `yaml:"min_brightness" json:"min_brightness"`
}

// WithDefaults returns p with zero fields replaced by the defaults.
func (p Params) WithDefaults() Params {
	if p.MaxColorTemp == 0 {
		p.MaxColorTemp = DefaultMaxColorTemp
	}
	if p.MinColorTemp == 0 {
		p.MinColorTemp = DefaultMinColorTemp
	}
	if p.MaxBrightness == 0 {
		p.MaxBrightness = DefaultMaxBrightness
	}
	if p.MinBrightness == 0 {
		p.MinBrightness = DefaultMinBrightness
	}
	return p
}

// Result is the curve output for one instant.
type Result struct {
	Brightness       int `json:"brightness"`
	ColorTemperature int `json:"color_temperature"`
}

// Anchors is a self-consistent set of solar reference times covering the segment "now" is in.
type Anchors struct {
	Sunrise       time.Time
	Sunset        time.Time
	SolarNoon     time.Time
	SolarMidnight time.Time
}

// todayAnchors derives noon and midnight from a sunrise/sunset pair.
func todayAnchors(sunrise, sunset time.Time) Anchors {
	return Anchors{
		Sunrise:       sunrise,
		Sunset:        sunset,
		SolarNoon:     sunrise.Add(sunset.Sub(sunrise) / 2),
		SolarMidnight: sunset.Add(sunrise.Add(day).Sub(sunset) / 2),
	}
}

func (a Anchors) shift(d time.Duration) Anchors {
	return Anchors{
		Sunrise:       a.Sunrise.Add(d),
		Sunset:        a.Sunset.Add(d),
		SolarNoon:     a.SolarNoon.Add(d),
		SolarMidnight: a.SolarMidnight.Add(d),
	}
}

// AnchorsFor returns the anchors for today's sunrise and sunset, rolled so that now lies either
// in [Sunrise, Sunset] (day) or in [Sunset, Sunrise] (night).
//
// Before sunrise the night started at yesterday's sunset, so sunset, noon and midnight move back
// a day. After sunset the night ends at tomorrow's sunrise; today's midnight already sits between
// the two.
func AnchorsFor(now, sunrise, sunset time.Time) Anchors {
	today := todayAnchors(sunrise, sunset)

	switch {
	case now.Before(today.Sunrise):
		yesterday := today.shift(-day)
		return Anchors{
			Sunrise:       today.Sunrise,
			Sunset:        yesterday.Sunset,
			SolarNoon:     yesterday.SolarNoon,
			SolarMidnight: yesterday.SolarMidnight,
		}
	case now.After(today.Sunset):
		tomorrow := today.shift(day)
		return Anchors{
			Sunrise:       tomorrow.Sunrise,
			Sunset:        today.Sunset,
			SolarNoon:     today.SolarNoon,
			SolarMidnight: today.SolarMidnight,
		}
	}
	return today
}

// Percentage returns the signed daylight percentage in [-100,100] for now.
func Percentage(now time.Time, a Anchors) float64 {
	var h, x time.Time
	var k float64

	if a.Sunrise.Before(a.Sunset) {
		// day segment
		h, k = a.SolarNoon, 100
		if now.Before(a.SolarNoon) {
			x = a.Sunrise
		} else {
			x = a.Sunset
		}
	} else {
		h, k = a.SolarMidnight, -100
		if now.Before(a.SolarMidnight) {
			x = a.Sunset
		} else {
			x = a.Sunrise
		}
	}

	span := seconds(h.Sub(x))
	if span == 0 {
		return 0
	}

	coef := (0 - k) / (span * span)
	d := seconds(now.Sub(h))
	prc := coef*d*d + k

	return math.Max(-100, math.Min(100, prc))
}

// Calculate evaluates the curve at now against the given anchors.
func Calculate(now time.Time, a Anchors, p Params) Result {
	prc := Percentage(now, a)

	var ct, bri float64
	if prc > 0 {
		ct = float64(p.MinColorTemp) + float64(p.MaxColorTemp-p.MinColorTemp)*(prc/100)
		bri = float64(p.MaxBrightness)
	} else {
		ct = float64(p.MinColorTemp)
		bri = float64(p.MinBrightness) + float64(p.MaxBrightness-p.MinBrightness)*((100+prc)/100)
	}

	return Result{
		Brightness:       int(math.Round(bri)),
		ColorTemperature: int(math.Round(ct)),
	}
}

// FollowDaylight is the "FollowDaylight" dynamic program: today's sunrise and sunset in,
// brightness and color temperature for now out.
func FollowDaylight(now, sunrise, sunset time.Time, p Params) Result {
	return Calculate(now, AnchorsFor(now, sunrise, sunset), p.WithDefaults())
}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}
