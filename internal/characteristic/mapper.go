package characteristic

import (
	"math"

	"github.com/nerrad567/gray-logic-melcloud/internal/melcloud"
)

// Action tells the caller what a write requires.
type Action int

const (
	// ActionNone means the write changes nothing and completes immediately.
	ActionNone Action = iota
	// ActionUpdateDevice means Snapshot must be sent to the device.
	ActionUpdateDevice
	// ActionSetDisplayUnits means the account preference must change to
	// UseFahrenheit. No device update is involved.
	ActionSetDisplayUnits
)

// WriteResult is the outcome of Mapper.Write.
type WriteResult struct {
	Action Action

	// Snapshot is a modified copy of the input, with EffectiveFlags set to
	// exactly the fields this write changed. Set for ActionUpdateDevice.
	Snapshot *melcloud.Snapshot

	// UseFahrenheit is the new preference. Set for ActionSetDisplayUnits.
	UseFahrenheit bool
}

type (
	readFunc  func(c Conventions, s *melcloud.Snapshot, useFahrenheit bool) float64
	writeFunc func(c Conventions, s *melcloud.Snapshot, v float64) WriteResult
)

type entry struct {
	read  readFunc
	write writeFunc
}

// Mapper converts between snapshots and characteristic values.
// It is stateless and safe for concurrent use.
type Mapper struct {
	conv  Conventions
	table map[Kind]entry
}

// NewMapper builds a mapper using the given host conventions.
func NewMapper(conv Conventions) *Mapper {
	return &Mapper{
		conv: conv,
		table: map[Kind]entry{
			CurrentHeatingCoolingState: {read: readCurrentState},
			TargetHeatingCoolingState:  {read: readTargetState, write: writeTargetState},
			CurrentTemperature:         {read: readRoomTemperature},
			TargetTemperature:          {read: readSetTemperature, write: writeSetTemperature},
			TemperatureDisplayUnits:    {read: readDisplayUnits, write: writeDisplayUnits},
			RotationSpeed:              {read: readRotationSpeed, write: writeRotationSpeed},
			CurrentHorizontalTilt:      {read: readHorizontalTilt},
			TargetHorizontalTilt:       {read: readHorizontalTilt, write: writeHorizontalTilt},
			CurrentVerticalTilt:        {read: readVerticalTilt},
			TargetVerticalTilt:         {read: readVerticalTilt, write: writeVerticalTilt},
		},
	}
}

// Read returns the value of kind in snap. Unknown kinds read as 0.
func (m *Mapper) Read(kind Kind, snap *melcloud.Snapshot, useFahrenheit bool) float64 {
	e, ok := m.table[kind]
	if !ok || e.read == nil || snap == nil {
		return 0
	}
	return e.read(m.conv, snap, useFahrenheit)
}

// Write applies value for kind to a copy of snap. snap itself is never
// modified. Kinds without a write rule yield ActionNone.
func (m *Mapper) Write(kind Kind, snap *melcloud.Snapshot, value float64) WriteResult {
	e, ok := m.table[kind]
	if !ok || e.write == nil {
		return WriteResult{Action: ActionNone}
	}
	if kind != TemperatureDisplayUnits && snap == nil {
		return WriteResult{Action: ActionNone}
	}
	return e.write(m.conv, snap, value)
}

func readCurrentState(c Conventions, s *melcloud.Snapshot, _ bool) float64 {
	if !s.Power {
		return c.StateOff
	}
	switch s.OperationMode {
	case melcloud.ModeHeat:
		return c.StateHeat
	case melcloud.ModeCool:
		return c.StateCool
	default:
		return c.StateUndefined
	}
}

func readTargetState(c Conventions, s *melcloud.Snapshot, _ bool) float64 {
	if !s.Power {
		return c.StateOff
	}
	switch s.OperationMode {
	case melcloud.ModeHeat:
		return c.StateHeat
	case melcloud.ModeCool:
		return c.StateCool
	case melcloud.ModeAuto:
		return c.StateAuto
	default:
		return c.StateUndefined
	}
}

func writeTargetState(c Conventions, s *melcloud.Snapshot, v float64) WriteResult {
	out := s.Clone()
	switch v {
	case c.StateOff:
		out.Power = false
		out.EffectiveFlags = melcloud.FlagPower
	case c.StateHeat:
		out.Power = true
		out.OperationMode = melcloud.ModeHeat
		out.EffectiveFlags = melcloud.FlagPower | melcloud.FlagOperationMode
	case c.StateCool:
		out.Power = true
		out.OperationMode = melcloud.ModeCool
		out.EffectiveFlags = melcloud.FlagPower | melcloud.FlagOperationMode
	case c.StateAuto:
		out.Power = true
		out.OperationMode = melcloud.ModeAuto
		out.EffectiveFlags = melcloud.FlagPower | melcloud.FlagOperationMode
	default:
		return WriteResult{Action: ActionNone}
	}
	return WriteResult{Action: ActionUpdateDevice, Snapshot: out}
}

func readRoomTemperature(_ Conventions, s *melcloud.Snapshot, _ bool) float64 {
	return s.RoomTemperature
}

func readSetTemperature(_ Conventions, s *melcloud.Snapshot, _ bool) float64 {
	return s.SetTemperature
}

func writeSetTemperature(_ Conventions, s *melcloud.Snapshot, v float64) WriteResult {
	out := s.Clone()
	out.SetTemperature = v
	out.EffectiveFlags = melcloud.FlagSetTemperature
	return WriteResult{Action: ActionUpdateDevice, Snapshot: out}
}

func readDisplayUnits(c Conventions, _ *melcloud.Snapshot, useFahrenheit bool) float64 {
	if useFahrenheit {
		return c.Fahrenheit
	}
	return c.Celsius
}

func writeDisplayUnits(c Conventions, _ *melcloud.Snapshot, v float64) WriteResult {
	return WriteResult{Action: ActionSetDisplayUnits, UseFahrenheit: v == c.Fahrenheit}
}

func readRotationSpeed(_ Conventions, s *melcloud.Snapshot, _ bool) float64 {
	if s.NumberOfFanSpeeds <= 0 {
		return 0
	}
	return float64(s.SetFanSpeed) / float64(s.NumberOfFanSpeeds) * 100
}

func writeRotationSpeed(_ Conventions, s *melcloud.Snapshot, v float64) WriteResult {
	out := s.Clone()
	out.SetFanSpeed = int(math.Round(v / 100 * float64(s.NumberOfFanSpeeds)))
	out.EffectiveFlags = melcloud.FlagFanSpeed
	return WriteResult{Action: ActionUpdateDevice, Snapshot: out}
}

// Vane positions 1..5 map to -90..90 degrees in 45 degree steps.

func readHorizontalTilt(_ Conventions, s *melcloud.Snapshot, _ bool) float64 {
	return -90 + 45*float64(s.VaneHorizontal-1)
}

func readVerticalTilt(_ Conventions, s *melcloud.Snapshot, _ bool) float64 {
	return 90 - 45*float64(5-s.VaneVertical)
}

func tiltToVane(v float64) int {
	return int(math.Round((v+90)/45 + 1))
}

func writeHorizontalTilt(_ Conventions, s *melcloud.Snapshot, v float64) WriteResult {
	out := s.Clone()
	out.VaneHorizontal = tiltToVane(v)
	out.EffectiveFlags = melcloud.FlagVaneHorizontal
	return WriteResult{Action: ActionUpdateDevice, Snapshot: out}
}

// The vertical write uses the horizontal inverse, as MELCloud clients send it.
func writeVerticalTilt(_ Conventions, s *melcloud.Snapshot, v float64) WriteResult {
	out := s.Clone()
	out.VaneVertical = tiltToVane(v)
	out.EffectiveFlags = melcloud.FlagVaneVertical
	return WriteResult{Action: ActionUpdateDevice, Snapshot: out}
}
