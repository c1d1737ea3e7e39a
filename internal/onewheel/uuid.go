// Package onewheel holds the pure, transport-free pieces of the board
// protocol: the GATT identifier tables across firmware revisions, the
// advertisement filter, the telemetry codec, the CRX challenge-response
// math, and board model detection.
package onewheel

import "strings"

// ServiceUUID is the primary board service present on every supported
// firmware revision.
const ServiceUUID = "e659f300-ea98-11e3-ac10-0800200c9a66"

// uuid builds a full board characteristic UUID from its 16-bit-ish suffix.
func uuid(suffix string) string {
	return "e659" + suffix + "-ea98-11e3-ac10-0800200c9a66"
}

// normalize converts a UUID to lowercase no-dash form for map lookups.
func normalize(u string) string {
	return strings.ToLower(strings.ReplaceAll(u, "-", ""))
}

// serviceUUIDNormalized is the lookup form of ServiceUUID.
var serviceUUIDNormalized = normalize(ServiceUUID)

// IsBoardService reports whether u (any form) is the primary board service.
func IsBoardService(u string) bool {
	return normalize(u) == serviceUUIDNormalized
}

// Field identifies one decoded telemetry slot.
type Field int

const (
	FieldSerialNumber Field = iota
	FieldRideMode
	FieldBatteryPercent
	FieldPitch
	FieldRoll
	FieldYaw
	FieldTripOdometer
	FieldRPM
	FieldTemperature
	FieldFirmwareRevision
	FieldCurrent
	FieldVoltage
	FieldLifetimeOdometer
	FieldSerialRead
	FieldSerialWrite
)

var fieldNames = map[Field]string{
	FieldSerialNumber:     "serial_number",
	FieldRideMode:         "ride_mode",
	FieldBatteryPercent:   "battery_percent",
	FieldPitch:            "pitch",
	FieldRoll:             "roll",
	FieldYaw:              "yaw",
	FieldTripOdometer:     "trip_odometer",
	FieldRPM:              "rpm",
	FieldTemperature:      "motor_temperature",
	FieldFirmwareRevision: "firmware_revision",
	FieldCurrent:          "current",
	FieldVoltage:          "voltage",
	FieldLifetimeOdometer: "lifetime_odometer",
	FieldSerialRead:       "serial_read",
	FieldSerialWrite:      "serial_write",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "unknown"
}

// Layout identifies which of the two observed characteristic tables the
// connected firmware exposes.
type Layout int

const (
	// LayoutClassic is the original table (XR-era firmware).
	LayoutClassic Layout = iota
	// LayoutExtended is the rearranged table seen on newer firmware.
	LayoutExtended
)

func (l Layout) String() string {
	if l == LayoutExtended {
		return "extended"
	}
	return "classic"
}

// The two characteristic tables, keyed by normalized UUID. Suffixes overlap
// between layouts with different meanings (f307 is trip odometer on classic
// but pitch on extended), so the layout must be detected before decoding.
var layoutTables = map[Layout]map[string]Field{
	LayoutClassic: {
		normalize(uuid("f301")): FieldSerialNumber,
		normalize(uuid("f302")): FieldRideMode,
		normalize(uuid("f303")): FieldBatteryPercent,
		normalize(uuid("f304")): FieldPitch,
		normalize(uuid("f305")): FieldRoll,
		normalize(uuid("f306")): FieldYaw,
		normalize(uuid("f307")): FieldTripOdometer,
		normalize(uuid("f308")): FieldRPM,
		normalize(uuid("f309")): FieldTemperature,
		normalize(uuid("f30a")): FieldFirmwareRevision,
		normalize(uuid("f30b")): FieldCurrent,
		normalize(uuid("f30c")): FieldVoltage,
		normalize(uuid("f30d")): FieldLifetimeOdometer,
		normalize(uuid("f30e")): FieldSerialRead,
		normalize(uuid("f30f")): FieldSerialWrite,
	},
	LayoutExtended: {
		normalize(uuid("f301")): FieldSerialNumber,
		normalize(uuid("f302")): FieldRideMode,
		normalize(uuid("f303")): FieldBatteryPercent,
		normalize(uuid("f307")): FieldPitch,
		normalize(uuid("f308")): FieldRoll,
		normalize(uuid("f309")): FieldYaw,
		normalize(uuid("f30a")): FieldTripOdometer,
		normalize(uuid("f30b")): FieldRPM,
		normalize(uuid("f310")): FieldTemperature,
		normalize(uuid("f311")): FieldFirmwareRevision,
		normalize(uuid("f312")): FieldCurrent,
		normalize(uuid("f316")): FieldVoltage,
		normalize(uuid("f319")): FieldLifetimeOdometer,
		normalize(uuid("f3fe")): FieldSerialRead,
		normalize(uuid("f3ff")): FieldSerialWrite,
	},
}

// extendedMarker distinguishes the layouts: the extended serial-read channel
// only exists on newer firmware.
var extendedMarker = normalize(uuid("f3fe"))

// DetectLayout picks the characteristic table matching the discovered UUIDs
// (any form).
func DetectLayout(uuids []string) Layout {
	for _, u := range uuids {
		if normalize(u) == extendedMarker {
			return LayoutExtended
		}
	}
	return LayoutClassic
}

// FieldFor resolves a characteristic UUID (any form) to its telemetry field
// under this layout.
func (l Layout) FieldFor(u string) (Field, bool) {
	f, ok := layoutTables[l][normalize(u)]
	return f, ok
}

// UUIDFor returns the normalized characteristic UUID carrying field under
// this layout, or "" if the layout has no slot for it.
func (l Layout) UUIDFor(field Field) string {
	for u, f := range layoutTables[l] {
		if f == field {
			return u
		}
	}
	return ""
}

// CharacteristicName returns a human name for a board characteristic UUID,
// or "" when the UUID is not a known board slot. Used for logs and
// diagnostics only.
func CharacteristicName(u string) string {
	n := normalize(u)
	if f, ok := layoutTables[LayoutClassic][n]; ok {
		return f.String()
	}
	if f, ok := layoutTables[LayoutExtended][n]; ok {
		return f.String()
	}
	return ""
}
