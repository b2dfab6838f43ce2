package solar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSunrise = time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)
	testSunset  = time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)
)

func defaults() Params {
	return Params{}.WithDefaults()
}

func TestParamsWithDefaults(t *testing.T) {
	p := Params{MinBrightness: 10}.WithDefaults()
	assert.Equal(t, Params{
		MaxColorTemp:  5500,
		MinColorTemp:  2500,
		MaxBrightness: 100,
		MinBrightness: 10,
	}, p)
}

func TestAnchorsFor_Day(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a := AnchorsFor(now, testSunrise, testSunset)

	assert.Equal(t, testSunrise, a.Sunrise)
	assert.Equal(t, testSunset, a.Sunset)
	assert.Equal(t, time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC), a.SolarNoon)
	// midpoint of 20:00 and next day's 06:00
	assert.Equal(t, time.Date(2024, 6, 2, 1, 0, 0, 0, time.UTC), a.SolarMidnight)
}

func TestAnchorsFor_BeforeSunrise(t *testing.T) {
	now := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	a := AnchorsFor(now, testSunrise, testSunset)

	assert.Equal(t, testSunrise, a.Sunrise)
	assert.Equal(t, time.Date(2024, 5, 31, 20, 0, 0, 0, time.UTC), a.Sunset)
	assert.Equal(t, time.Date(2024, 6, 1, 1, 0, 0, 0, time.UTC), a.SolarMidnight)
	assert.True(t, a.Sunset.Before(now) && now.Before(a.Sunrise))
}

func TestAnchorsFor_AfterSunset(t *testing.T) {
	now := time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)
	a := AnchorsFor(now, testSunrise, testSunset)

	assert.Equal(t, time.Date(2024, 6, 2, 6, 0, 0, 0, time.UTC), a.Sunrise)
	assert.Equal(t, testSunset, a.Sunset)
	assert.Equal(t, time.Date(2024, 6, 2, 1, 0, 0, 0, time.UTC), a.SolarMidnight)
	assert.True(t, a.Sunset.Before(now) && now.Before(a.Sunrise))
}

func TestFollowDaylight_SolarNoon(t *testing.T) {
	noon := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	r := FollowDaylight(noon, testSunrise, testSunset, Params{})

	assert.Equal(t, 100, r.Brightness)
	assert.Equal(t, 5500, r.ColorTemperature)
}

func TestFollowDaylight_SolarMidnight(t *testing.T) {
	p := Params{MinBrightness: 20, MinColorTemp: 2200}
	for _, now := range []time.Time{
		time.Date(2024, 6, 1, 1, 0, 0, 0, time.UTC), // reached from before sunrise
		time.Date(2024, 6, 2, 1, 0, 0, 0, time.UTC), // reached from after sunset
	} {
		r := FollowDaylight(now, testSunrise, testSunset, p)
		assert.Equal(t, 20, r.Brightness, "brightness at %s", now)
		assert.Equal(t, 2200, r.ColorTemperature, "color temperature at %s", now)
	}
}

func TestFollowDaylight_Boundaries(t *testing.T) {
	for _, now := range []time.Time{testSunrise, testSunset} {
		r := FollowDaylight(now, testSunrise, testSunset, Params{})
		assert.Equal(t, 100, r.Brightness)
		assert.Equal(t, 2500, r.ColorTemperature)
	}
}

func TestFollowDaylight_NoJumpAcrossSunset(t *testing.T) {
	before := FollowDaylight(testSunset.Add(-time.Minute), testSunrise, testSunset, Params{})
	after := FollowDaylight(testSunset.Add(time.Minute), testSunrise, testSunset, Params{})

	assert.InDelta(t, before.Brightness, after.Brightness, 1)
	assert.InDelta(t, before.ColorTemperature, after.ColorTemperature, 20)
}

func TestFollowDaylight_DayMonotonic(t *testing.T) {
	p := defaults()
	noon := testSunrise.Add(testSunset.Sub(testSunrise) / 2)

	prev := FollowDaylight(testSunrise, testSunrise, testSunset, p)
	for now := testSunrise; !now.After(noon); now = now.Add(10 * time.Minute) {
		r := FollowDaylight(now, testSunrise, testSunset, p)
		require.GreaterOrEqual(t, r.Brightness, prev.Brightness, "at %s", now)
		require.GreaterOrEqual(t, r.ColorTemperature, prev.ColorTemperature, "at %s", now)
		prev = r
	}

	for now := noon; !now.After(testSunset); now = now.Add(10 * time.Minute) {
		r := FollowDaylight(now, testSunrise, testSunset, p)
		require.LessOrEqual(t, r.Brightness, prev.Brightness, "at %s", now)
		require.LessOrEqual(t, r.ColorTemperature, prev.ColorTemperature, "at %s", now)
		prev = r
	}
}

func TestFollowDaylight_NightRamp(t *testing.T) {
	p := defaults()
	midnight := time.Date(2024, 6, 2, 1, 0, 0, 0, time.UTC)

	prev := FollowDaylight(testSunset, testSunrise, testSunset, p)
	for now := testSunset.Add(time.Minute); now.Before(midnight); now = now.Add(10 * time.Minute) {
		r := FollowDaylight(now, testSunrise, testSunset, p)
		require.LessOrEqual(t, r.Brightness, prev.Brightness, "at %s", now)
		require.Equal(t, p.MinColorTemp, r.ColorTemperature)
		prev = r
	}
}

func TestPercentage_DegenerateSpan(t *testing.T) {
	a := Anchors{Sunrise: testSunrise, Sunset: testSunrise, SolarNoon: testSunrise, SolarMidnight: testSunrise}
	assert.Equal(t, 0.0, Percentage(testSunrise, a))
}
