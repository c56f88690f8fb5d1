package model

import (
	"strconv"
	"strings"
	"time"
)

// Color is an RGB triple as sent to a status light.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Off is the color of an unlit light.
var Off = Color{}

// LightType selects the signal shape of a light.
type LightType string

const (
	LightSteady            LightType = "steady"
	LightBlinking          LightType = "blinking"
	LightInitiallyBlinking LightType = "initially_blinking"
)

// LightConfiguration is the display instruction for one light slot.
type LightConfiguration struct {
	Type            LightType `json:"type"`
	PrimaryColor    Color     `json:"primary_color"`
	PrimaryPeriod   *int      `json:"primary_period,omitempty"`
	SecondaryColor  *Color    `json:"secondary_color,omitempty"`
	SecondaryPeriod *int      `json:"secondary_period,omitempty"`
	Repeat          *int      `json:"repeat,omitempty"`
}

// StatusColor maps a status string to a color for one user.
type StatusColor struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`
	Status string `json:"status" db:"status"`
	R      uint8  `json:"r" db:"red"`
	G      uint8  `json:"g" db:"green"`
	B      uint8  `json:"b" db:"blue"`
}

// Color returns the RGB triple of the setting.
func (s StatusColor) Color() Color {
	return Color{R: s.R, G: s.G, B: s.B}
}

// Device is a physical or simulated set of status lights.
type Device struct {
	ID          string     `json:"id" db:"id"`
	UUID        string     `json:"uuid" db:"uuid"`
	UserID      string     `json:"user_id" db:"user_id"`
	Name        string     `json:"name" db:"name"`
	LastContact *time.Time `json:"last_contact,omitempty" db:"last_contact"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// StatusLight binds a device slot to at most one task.
type StatusLight struct {
	DeviceID string  `json:"device_id" db:"device_id"`
	Slot     int     `json:"slot" db:"slot"`
	TaskID   *string `json:"task_id,omitempty" db:"task_id"`
}

// Gauge displays a numeric task value as a position between Min and Max.
type Gauge struct {
	ID     string  `json:"id" db:"id"`
	UserID string  `json:"user_id" db:"user_id"`
	Name   string  `json:"name" db:"name"`
	Min    float64 `json:"min" db:"min_value"`
	Max    float64 `json:"max" db:"max_value"`
	TaskID *string `json:"task_id,omitempty" db:"task_id"`
}

// Position maps value onto the gauge range, clamped to [0, 1]. Values that
// are not numeric, and degenerate ranges, give 0.
func (g Gauge) Position(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || g.Max <= g.Min {
		return 0
	}
	p := (v - g.Min) / (g.Max - g.Min)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
