package characteristic

import (
	"testing"

	"github.com/nerrad567/gray-logic-melcloud/internal/melcloud"
)

func newSnapshot() *melcloud.Snapshot {
	return &melcloud.Snapshot{
		DeviceID:          1,
		Power:             true,
		OperationMode:     melcloud.ModeCool,
		RoomTemperature:   24.5,
		SetTemperature:    22,
		SetFanSpeed:       2,
		NumberOfFanSpeeds: 5,
		VaneHorizontal:    3,
		VaneVertical:      2,
		EffectiveFlags:    0,
	}
}

func TestMapper_Read(t *testing.T) {
	m := NewMapper(HomeKit())

	tests := []struct {
		name   string
		kind   Kind
		mutate func(s *melcloud.Snapshot)
		fahr   bool
		want   float64
	}{
		{"current state off", CurrentHeatingCoolingState, func(s *melcloud.Snapshot) { s.Power = false }, false, 0},
		{"current state heat", CurrentHeatingCoolingState, func(s *melcloud.Snapshot) { s.OperationMode = melcloud.ModeHeat }, false, 1},
		{"current state cool", CurrentHeatingCoolingState, nil, false, 2},
		{"current state auto is undefined", CurrentHeatingCoolingState, func(s *melcloud.Snapshot) { s.OperationMode = melcloud.ModeAuto }, false, 5},
		{"target state off", TargetHeatingCoolingState, func(s *melcloud.Snapshot) { s.Power = false }, false, 0},
		{"target state auto", TargetHeatingCoolingState, func(s *melcloud.Snapshot) { s.OperationMode = melcloud.ModeAuto }, false, 3},
		{"target state dry is undefined", TargetHeatingCoolingState, func(s *melcloud.Snapshot) { s.OperationMode = melcloud.ModeDry }, false, 5},
		{"room temperature", CurrentTemperature, nil, false, 24.5},
		{"set temperature", TargetTemperature, nil, false, 22},
		{"display units celsius", TemperatureDisplayUnits, nil, false, 0},
		{"display units fahrenheit", TemperatureDisplayUnits, nil, true, 1},
		{"rotation speed", RotationSpeed, nil, false, 40},
		{"rotation speed without fan speeds", RotationSpeed, func(s *melcloud.Snapshot) { s.NumberOfFanSpeeds = 0 }, false, 0},
		{"horizontal tilt centre", CurrentHorizontalTilt, nil, false, 0},
		{"horizontal tilt left", TargetHorizontalTilt, func(s *melcloud.Snapshot) { s.VaneHorizontal = 1 }, false, -90},
		{"vertical tilt", CurrentVerticalTilt, nil, false, -45},
		{"vertical tilt top", TargetVerticalTilt, func(s *melcloud.Snapshot) { s.VaneVertical = 5 }, false, 90},
		{"unknown kind", Kind("name"), nil, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSnapshot()
			if tt.mutate != nil {
				tt.mutate(s)
			}
			if got := m.Read(tt.kind, s, tt.fahr); got != tt.want {
				t.Errorf("Read(%s) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestMapper_WriteTargetState(t *testing.T) {
	m := NewMapper(HomeKit())

	tests := []struct {
		name      string
		value     float64
		wantPower bool
		wantMode  int
		wantFlags melcloud.Flags
	}{
		{"off", 0, false, melcloud.ModeCool, melcloud.FlagPower},
		{"heat", 1, true, melcloud.ModeHeat, melcloud.FlagPower | melcloud.FlagOperationMode},
		{"cool", 2, true, melcloud.ModeCool, melcloud.FlagPower | melcloud.FlagOperationMode},
		{"auto", 3, true, melcloud.ModeAuto, melcloud.FlagPower | melcloud.FlagOperationMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := m.Write(TargetHeatingCoolingState, newSnapshot(), tt.value)
			if res.Action != ActionUpdateDevice {
				t.Fatalf("Action = %v, want ActionUpdateDevice", res.Action)
			}
			if res.Snapshot.Power != tt.wantPower || res.Snapshot.OperationMode != tt.wantMode {
				t.Errorf("Power=%v Mode=%d, want %v %d", res.Snapshot.Power, res.Snapshot.OperationMode, tt.wantPower, tt.wantMode)
			}
			if res.Snapshot.EffectiveFlags != tt.wantFlags {
				t.Errorf("EffectiveFlags = %d, want %d", res.Snapshot.EffectiveFlags, tt.wantFlags)
			}
		})
	}

	if res := m.Write(TargetHeatingCoolingState, newSnapshot(), 7); res.Action != ActionNone {
		t.Errorf("unsupported state: Action = %v, want ActionNone", res.Action)
	}
}

func TestMapper_WriteDoesNotModifyInput(t *testing.T) {
	m := NewMapper(HomeKit())
	s := newSnapshot()

	res := m.Write(TargetTemperature, s, 19.5)
	if res.Snapshot.SetTemperature != 19.5 || res.Snapshot.EffectiveFlags != melcloud.FlagSetTemperature {
		t.Errorf("result = %+v", res.Snapshot)
	}
	if s.SetTemperature != 22 || s.EffectiveFlags != 0 {
		t.Errorf("input was modified: %+v", s)
	}
}

func TestMapper_FlagsReplacedPerWrite(t *testing.T) {
	m := NewMapper(HomeKit())
	s := newSnapshot()

	first := m.Write(TargetTemperature, s, 20)
	second := m.Write(RotationSpeed, first.Snapshot, 100)

	if second.Snapshot.EffectiveFlags != melcloud.FlagFanSpeed {
		t.Errorf("EffectiveFlags = %d, want %d", second.Snapshot.EffectiveFlags, melcloud.FlagFanSpeed)
	}
	if second.Snapshot.SetTemperature != 20 {
		t.Errorf("SetTemperature = %v, want 20", second.Snapshot.SetTemperature)
	}
}

func TestMapper_RotationSpeedRoundTrip(t *testing.T) {
	m := NewMapper(HomeKit())

	res := m.Write(RotationSpeed, newSnapshot(), 50)
	if res.Snapshot.SetFanSpeed != 3 {
		t.Fatalf("SetFanSpeed = %d, want 3", res.Snapshot.SetFanSpeed)
	}
	if res.Snapshot.EffectiveFlags != melcloud.FlagFanSpeed {
		t.Errorf("EffectiveFlags = %d, want %d", res.Snapshot.EffectiveFlags, melcloud.FlagFanSpeed)
	}
	if got := m.Read(RotationSpeed, res.Snapshot, false); got != 60 {
		t.Errorf("read back = %v, want 60", got)
	}

	for speed := 0; speed <= 5; speed++ {
		s := newSnapshot()
		s.SetFanSpeed = speed
		v := m.Read(RotationSpeed, s, false)
		if got := m.Write(RotationSpeed, s, v).Snapshot.SetFanSpeed; got != speed {
			t.Errorf("speed %d -> %v -> %d", speed, v, got)
		}
	}
}

func TestMapper_TiltRoundTrip(t *testing.T) {
	m := NewMapper(HomeKit())

	for vane := 1; vane <= 5; vane++ {
		s := newSnapshot()
		s.VaneHorizontal = vane
		s.VaneVertical = vane

		h := m.Read(TargetHorizontalTilt, s, false)
		res := m.Write(TargetHorizontalTilt, s, h)
		if res.Snapshot.VaneHorizontal != vane || res.Snapshot.EffectiveFlags != melcloud.FlagVaneHorizontal {
			t.Errorf("horizontal %d -> %v -> %d (flags %d)", vane, h, res.Snapshot.VaneHorizontal, res.Snapshot.EffectiveFlags)
		}

		v := m.Read(TargetVerticalTilt, s, false)
		res = m.Write(TargetVerticalTilt, s, v)
		if res.Snapshot.VaneVertical != vane || res.Snapshot.EffectiveFlags != melcloud.FlagVaneVertical {
			t.Errorf("vertical %d -> %v -> %d (flags %d)", vane, v, res.Snapshot.VaneVertical, res.Snapshot.EffectiveFlags)
		}
	}
}

func TestMapper_WriteDisplayUnits(t *testing.T) {
	m := NewMapper(HomeKit())

	res := m.Write(TemperatureDisplayUnits, nil, 1)
	if res.Action != ActionSetDisplayUnits || !res.UseFahrenheit {
		t.Errorf("fahrenheit: %+v", res)
	}
	res = m.Write(TemperatureDisplayUnits, newSnapshot(), 0)
	if res.Action != ActionSetDisplayUnits || res.UseFahrenheit {
		t.Errorf("celsius: %+v", res)
	}
	if res.Snapshot != nil {
		t.Error("display units write must not produce a device snapshot")
	}
}

func TestMapper_WriteReadOnlyOrUnknown(t *testing.T) {
	m := NewMapper(HomeKit())

	for _, kind := range []Kind{CurrentTemperature, CurrentHeatingCoolingState, CurrentVerticalTilt, Kind("bogus")} {
		if res := m.Write(kind, newSnapshot(), 1); res.Action != ActionNone {
			t.Errorf("Write(%s): Action = %v, want ActionNone", kind, res.Action)
		}
	}
}

func TestMapper_CustomConventions(t *testing.T) {
	conv := Conventions{StateOff: 10, StateHeat: 11, StateCool: 12, StateAuto: 13, StateUndefined: 99, Celsius: 20, Fahrenheit: 21}
	m := NewMapper(conv)

	s := newSnapshot()
	if got := m.Read(TargetHeatingCoolingState, s, false); got != 12 {
		t.Errorf("Read = %v, want 12", got)
	}
	if res := m.Write(TargetHeatingCoolingState, s, 11); res.Snapshot == nil || res.Snapshot.OperationMode != melcloud.ModeHeat {
		t.Errorf("Write heat = %+v", res)
	}
	if got := m.Read(TemperatureDisplayUnits, s, true); got != 21 {
		t.Errorf("units = %v, want 21", got)
	}
}

func TestKind(t *testing.T) {
	if ParseKind(" Target_Temperature ") != TargetTemperature {
		t.Error("ParseKind did not normalise")
	}
	if !TargetTemperature.Known() || Kind("x").Known() {
		t.Error("Known")
	}
	if CurrentTemperature.Writable() || !RotationSpeed.Writable() {
		t.Error("Writable")
	}
	if Read.String() != "get" || Write.String() != "set" {
		t.Error("Operation.String")
	}
}
