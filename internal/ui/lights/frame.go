// Package lights simulates a status-light device in the terminal. It
// polls the device endpoint and animates each slot the way the hardware
// would.
package lights

import "github.com/nhle/ambrose/internal/model"

// Frame returns the color a light shows tick period units after its
// configuration was received.
//
// Blinking alternates primary for PrimaryPeriod units and secondary for
// SecondaryPeriod units. InitiallyBlinking does the same for Repeat
// cycles and then holds the primary color.
func Frame(cfg model.LightConfiguration, tick int) model.Color {
	if cfg.Type == model.LightSteady || cfg.PrimaryPeriod == nil {
		return cfg.PrimaryColor
	}

	primary := max(*cfg.PrimaryPeriod, 1)
	secondary := primary
	if cfg.SecondaryPeriod != nil {
		secondary = max(*cfg.SecondaryPeriod, 1)
	}
	cycle := primary + secondary

	if cfg.Type == model.LightInitiallyBlinking && cfg.Repeat != nil && tick >= *cfg.Repeat*cycle {
		return cfg.PrimaryColor
	}
	if tick%cycle < primary {
		return cfg.PrimaryColor
	}
	if cfg.SecondaryColor == nil {
		return model.Off
	}
	return *cfg.SecondaryColor
}

// Settled reports whether the light no longer changes after tick.
func Settled(cfg model.LightConfiguration, tick int) bool {
	switch cfg.Type {
	case model.LightBlinking:
		return false
	case model.LightInitiallyBlinking:
		if cfg.Repeat == nil || cfg.PrimaryPeriod == nil {
			return true
		}
		secondary := *cfg.PrimaryPeriod
		if cfg.SecondaryPeriod != nil {
			secondary = *cfg.SecondaryPeriod
		}
		return tick >= *cfg.Repeat*(max(*cfg.PrimaryPeriod, 1)+max(secondary, 1))
	}
	return true
}
