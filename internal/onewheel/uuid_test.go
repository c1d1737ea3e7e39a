package onewheel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLayout(t *testing.T) {
	classic := []string{
		uuid("f301"), uuid("f303"), uuid("f307"), uuid("f30e"), uuid("f30f"),
	}
	assert.Equal(t, LayoutClassic, DetectLayout(classic))

	extended := append(classic, uuid("f3fe"), uuid("f3ff"))
	assert.Equal(t, LayoutExtended, DetectLayout(extended))

	// Marker matches in any form.
	assert.Equal(t, LayoutExtended, DetectLayout([]string{"E659F3FE-EA98-11E3-AC10-0800200C9A66"}))
	assert.Equal(t, LayoutClassic, DetectLayout(nil))
}

// The f307 suffix moved between firmware generations: trip odometer on the
// classic table, pitch on the extended one.
func TestLayoutFieldForDisambiguation(t *testing.T) {
	f, ok := LayoutClassic.FieldFor(uuid("f307"))
	require.True(t, ok)
	assert.Equal(t, FieldTripOdometer, f)

	f, ok = LayoutExtended.FieldFor(uuid("f307"))
	require.True(t, ok)
	assert.Equal(t, FieldPitch, f)

	_, ok = LayoutClassic.FieldFor(uuid("f3fe"))
	assert.False(t, ok)

	f, ok = LayoutExtended.FieldFor(uuid("f3fe"))
	require.True(t, ok)
	assert.Equal(t, FieldSerialRead, f)
}

func TestLayoutUUIDForRoundTrip(t *testing.T) {
	for _, layout := range []Layout{LayoutClassic, LayoutExtended} {
		for field := range fieldNames {
			u := layout.UUIDFor(field)
			require.NotEmpty(t, u, "%s should have a %s slot", layout, field)
			got, ok := layout.FieldFor(u)
			require.True(t, ok)
			assert.Equal(t, field, got)
		}
	}
}

func TestIsBoardService(t *testing.T) {
	assert.True(t, IsBoardService(ServiceUUID))
	assert.True(t, IsBoardService("E659F300-EA98-11E3-AC10-0800200C9A66"))
	assert.True(t, IsBoardService("e659f300ea9811e3ac100800200c9a66"))
	assert.False(t, IsBoardService("180d"))
	assert.False(t, IsBoardService(""))
}

func TestCharacteristicName(t *testing.T) {
	assert.Equal(t, "battery_percent", CharacteristicName(uuid("f303")))
	assert.Equal(t, "serial_read", CharacteristicName(uuid("f3fe")))
	assert.Equal(t, "", CharacteristicName("2a37"))
}
