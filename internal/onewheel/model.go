package onewheel

import "strings"

// Model is the detected board generation. It drives which unlock strategy
// sequence the engine runs and which timing profile applies.
type Model int

const (
	ModelUnknown Model = iota
	ModelXR
	ModelPint
	ModelGT
	ModelGTS
)

var modelNames = map[Model]string{
	ModelUnknown: "Unknown",
	ModelXR:      "XR",
	ModelPint:    "Pint",
	ModelGT:      "GT",
	ModelGTS:     "GT-S",
}

func (m Model) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return "Unknown"
}

// NewerVariant reports whether the model belongs to the newer board family
// requiring the extended unlock strategy sequence and longer timings.
func (m Model) NewerVariant() bool {
	return m == ModelGT || m == ModelGTS
}

// DetectModel derives the model from the advertising name and the firmware
// revision string, whichever matches first. GT-S must be checked ahead of
// GT: every GT-S string also contains "gt".
func DetectModel(name, firmware string) Model {
	for _, s := range []string{name, firmware} {
		lower := strings.ToLower(s)
		switch {
		case strings.Contains(lower, "gt-s") || strings.Contains(lower, "gts"):
			return ModelGTS
		case strings.Contains(lower, "gt"):
			return ModelGT
		case strings.Contains(lower, "pint"):
			return ModelPint
		case strings.Contains(lower, "xr"):
			return ModelXR
		}
	}
	return ModelUnknown
}

// Direct unlock command hypotheses for the newer board family. Neither byte
// sequence is confirmed against hardware; each strategy writes one of them
// and verifies via a sentinel read.
var (
	DirectUnlockCommand    = []byte{0x43, 0x52, 0x58, 0x00, 0x01}
	AlternateUnlockCommand = []byte{0x43, 0x52, 0x58, 0x55, 0xaa}

	// AlternateChallengeTrigger is written once when a modified-flow
	// challenge wait times out with zero bytes received.
	AlternateChallengeTrigger = []byte{0x43, 0x52, 0x58}
)

// WakeSweepFields are read in order by the wake-up sweep strategy, purely to
// prime the link. Individual read failures are ignored.
var WakeSweepFields = []Field{
	FieldSerialNumber,
	FieldFirmwareRevision,
	FieldBatteryPercent,
	FieldPitch,
	FieldVoltage,
}

// PrioritySubscribeFields subscribe first on the newer variant, with a small
// delay between each.
var PrioritySubscribeFields = []Field{
	FieldBatteryPercent,
	FieldPitch,
	FieldRoll,
	FieldVoltage,
	FieldRPM,
	FieldSerialRead,
}
