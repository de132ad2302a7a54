package characteristic

import (
	"fmt"
	"strings"
)

// Kind identifies a characteristic of a thermostat accessory.
type Kind string

// Supported characteristic kinds.
const (
	CurrentHeatingCoolingState Kind = "current_heating_cooling_state"
	TargetHeatingCoolingState  Kind = "target_heating_cooling_state"
	CurrentTemperature         Kind = "current_temperature"
	TargetTemperature          Kind = "target_temperature"
	TemperatureDisplayUnits    Kind = "temperature_display_units"
	RotationSpeed              Kind = "rotation_speed"
	CurrentHorizontalTilt      Kind = "current_horizontal_tilt_angle"
	TargetHorizontalTilt       Kind = "target_horizontal_tilt_angle"
	CurrentVerticalTilt        Kind = "current_vertical_tilt_angle"
	TargetVerticalTilt         Kind = "target_vertical_tilt_angle"
)

// AllKinds lists every kind an accessory exposes, in display order.
var AllKinds = []Kind{
	CurrentHeatingCoolingState,
	TargetHeatingCoolingState,
	CurrentTemperature,
	TargetTemperature,
	TemperatureDisplayUnits,
	RotationSpeed,
	CurrentHorizontalTilt,
	TargetHorizontalTilt,
	CurrentVerticalTilt,
	TargetVerticalTilt,
}

// ParseKind accepts a kind name case-insensitively. Unrecognised names are
// returned as-is; the mapper treats them as unknown.
func ParseKind(s string) Kind {
	return Kind(strings.ToLower(strings.TrimSpace(s)))
}

// Known reports whether k is one of AllKinds.
func (k Kind) Known() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Writable reports whether a host may set k.
func (k Kind) Writable() bool {
	switch k {
	case TargetHeatingCoolingState, TargetTemperature, TemperatureDisplayUnits,
		RotationSpeed, TargetHorizontalTilt, TargetVerticalTilt:
		return true
	}
	return false
}

// Operation distinguishes reads from writes.
type Operation int

const (
	// Read returns the current value.
	Read Operation = iota
	// Write applies a new value.
	Write
)

// String returns "get" or "set".
func (o Operation) String() string {
	switch o {
	case Read:
		return "get"
	case Write:
		return "set"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// Conventions is the host's numeric encoding of enumerated characteristics.
type Conventions struct {
	StateOff  float64
	StateHeat float64
	StateCool float64
	StateAuto float64

	// StateUndefined is reported for operation modes the host cannot show.
	StateUndefined float64

	Celsius    float64
	Fahrenheit float64
}

// HomeKit returns the HomeKit Accessory Protocol encoding.
func HomeKit() Conventions {
	return Conventions{
		StateOff:       0,
		StateHeat:      1,
		StateCool:      2,
		StateAuto:      3,
		StateUndefined: 5,
		Celsius:        0,
		Fahrenheit:     1,
	}
}
