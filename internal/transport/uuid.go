package transport

import "strings"

// NormalizeUUID converts a UUID string to the internal lookup format
// (lowercase, no dashes). Handles both dashed and already normalized forms.
func NormalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format
func NormalizeUUIDs(uuids []string) []string {
	normalized := make([]string, len(uuids))
	for i, uuid := range uuids {
		normalized[i] = NormalizeUUID(uuid)
	}
	return normalized
}
