// Package signal turns task state into light configurations.
package signal

import (
	"strings"

	"github.com/nhle/ambrose/internal/model"
)

const (
	blinkPeriod      = 4
	successPeriod    = 2
	changedPeriod    = 1
	changedRepeat    = 20
	changedOffPeriod = 1
)

// Palette maps statuses to colors, case-insensitively. Unknown statuses
// are off.
type Palette struct {
	colors map[string]model.Color
}

// NewPalette builds a palette from a user's color settings. The first
// setting for a status wins.
func NewPalette(settings []model.StatusColor) Palette {
	colors := make(map[string]model.Color, len(settings))
	for _, s := range settings {
		key := strings.ToLower(s.Status)
		if _, ok := colors[key]; !ok {
			colors[key] = s.Color()
		}
	}
	return Palette{colors: colors}
}

// Color returns the color of status.
func (p Palette) Color(status string) model.Color {
	if status == "" {
		return model.Off
	}
	return p.colors[strings.ToLower(status)]
}

// Engine computes lights from a palette.
type Engine struct {
	palette Palette
}

// NewEngine returns an engine for palette.
func NewEngine(palette Palette) *Engine {
	return &Engine{palette: palette}
}

// Light returns the configuration a slot bound to task shows.
//
// Running tasks blink between the current and previous color. Finished
// tasks that changed since last viewed blink briefly and then settle, and
// everything else is steady.
func (e *Engine) Light(task *model.Task) model.LightConfiguration {
	if task == nil || task.Value == "" {
		return Steady(model.Off)
	}

	status := strings.ToLower(task.Value)
	primary := e.palette.Color(status)

	if model.IsRunning(status) {
		secondary := e.palette.Color(task.PrevValue)
		if secondary == primary {
			secondary = model.Off
		}
		return model.LightConfiguration{
			Type:            model.LightBlinking,
			PrimaryColor:    primary,
			PrimaryPeriod:   ptr(blinkPeriod),
			SecondaryColor:  &secondary,
			SecondaryPeriod: ptr(blinkPeriod),
		}
	}

	if !task.HasChanged {
		return Steady(primary)
	}

	period := changedPeriod
	if status == model.StatusSucceeded {
		period = successPeriod
	}
	off := model.Off
	return model.LightConfiguration{
		Type:            model.LightInitiallyBlinking,
		PrimaryColor:    primary,
		PrimaryPeriod:   ptr(period),
		SecondaryColor:  &off,
		SecondaryPeriod: ptr(changedOffPeriod),
		Repeat:          ptr(changedRepeat),
	}
}

// Steady returns a constant light of color c.
func Steady(c model.Color) model.LightConfiguration {
	return model.LightConfiguration{Type: model.LightSteady, PrimaryColor: c}
}

func ptr(v int) *int {
	return &v
}
