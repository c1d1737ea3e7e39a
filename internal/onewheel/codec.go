package onewheel

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// DecodeError reports a payload that could not be decoded for a field.
type DecodeError struct {
	Field Field
	Len   int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %s from %d byte payload", e.Field, e.Len)
}

// Decode maps a characteristic payload to its typed value. All multi-byte
// values are little-endian. Scaling follows the wire layouts observed across
// firmware revisions:
//
//	battery, ride mode    1 byte unsigned, raw
//	pitch/roll/yaw        2 bytes signed, hundredths of a degree
//	temperature           2 bytes signed, hundredths of a degree C
//	current               2 bytes signed, hundredths of an amp
//	voltage               2 bytes signed, hundredths of a volt
//	rpm                   2 bytes unsigned, raw
//	odometers             4 bytes unsigned, thousandths of a km
func Decode(field Field, data []byte) (float64, error) {
	switch field {
	case FieldBatteryPercent, FieldRideMode:
		if len(data) < 1 {
			return 0, &DecodeError{Field: field, Len: len(data)}
		}
		return float64(data[0]), nil

	case FieldPitch, FieldRoll, FieldYaw, FieldTemperature, FieldCurrent, FieldVoltage:
		if len(data) < 2 {
			return 0, &DecodeError{Field: field, Len: len(data)}
		}
		return float64(int16(binary.LittleEndian.Uint16(data))) / 100, nil

	case FieldRPM:
		if len(data) < 2 {
			return 0, &DecodeError{Field: field, Len: len(data)}
		}
		return float64(binary.LittleEndian.Uint16(data)), nil

	case FieldTripOdometer, FieldLifetimeOdometer:
		if len(data) < 4 {
			return 0, &DecodeError{Field: field, Len: len(data)}
		}
		return float64(binary.LittleEndian.Uint32(data)) / 1000, nil

	default:
		return 0, &DecodeError{Field: field, Len: len(data)}
	}
}

// Snapshot is the latest decoded telemetry for one connection. Fields are
// updated one at a time as notifications arrive, never atomically as a
// whole; concurrent readers may observe a partially updated snapshot. That
// is acceptable for advisory telemetry.
type Snapshot struct {
	mu sync.RWMutex

	BatteryPercent   float64
	Pitch            float64
	Roll             float64
	Yaw              float64
	RPM              float64
	Temperature      float64
	Current          float64
	Voltage          float64
	TripOdometer     float64
	LifetimeOdometer float64
	RideMode         float64
	UpdatedAt        time.Time
}

// Apply stores one decoded field and stamps the update time. Unknown fields
// are ignored.
func (s *Snapshot) Apply(field Field, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch field {
	case FieldBatteryPercent:
		s.BatteryPercent = value
	case FieldPitch:
		s.Pitch = value
	case FieldRoll:
		s.Roll = value
	case FieldYaw:
		s.Yaw = value
	case FieldRPM:
		s.RPM = value
	case FieldTemperature:
		s.Temperature = value
	case FieldCurrent:
		s.Current = value
	case FieldVoltage:
		s.Voltage = value
	case FieldTripOdometer:
		s.TripOdometer = value
	case FieldLifetimeOdometer:
		s.LifetimeOdometer = value
	case FieldRideMode:
		s.RideMode = value
	default:
		return
	}
	s.UpdatedAt = time.Now()
}

// View is a point-in-time copy of the snapshot, safe to retain.
type View struct {
	BatteryPercent   float64
	Pitch            float64
	Roll             float64
	Yaw              float64
	RPM              float64
	Temperature      float64
	Current          float64
	Voltage          float64
	TripOdometer     float64
	LifetimeOdometer float64
	RideMode         float64
	UpdatedAt        time.Time
}

// View returns a copy of the current values.
func (s *Snapshot) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		BatteryPercent:   s.BatteryPercent,
		Pitch:            s.Pitch,
		Roll:             s.Roll,
		Yaw:              s.Yaw,
		RPM:              s.RPM,
		Temperature:      s.Temperature,
		Current:          s.Current,
		Voltage:          s.Voltage,
		TripOdometer:     s.TripOdometer,
		LifetimeOdometer: s.LifetimeOdometer,
		RideMode:         s.RideMode,
		UpdatedAt:        s.UpdatedAt,
	}
}
