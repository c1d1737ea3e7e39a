package testutils

import (
	"encoding/json"
	"testing"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// MustJSON marshals v, panicking on failure. Test-only convenience.
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// AssertJSONEqual compares actual (any marshalable value) against an expected
// JSON document and fails the test with a readable delta when they differ.
func AssertJSONEqual(t *testing.T, expectedJSON string, actual any) {
	t.Helper()

	actualJSON := MustJSON(actual)

	differ := gojsondiff.New()
	diff, err := differ.Compare([]byte(expectedJSON), []byte(actualJSON))
	if err != nil {
		t.Fatalf("JSON comparison failed: %v (expected=%s actual=%s)", err, expectedJSON, actualJSON)
	}
	if !diff.Modified() {
		return
	}

	var left map[string]any
	if err := json.Unmarshal([]byte(expectedJSON), &left); err != nil {
		t.Fatalf("invalid expected JSON: %v", err)
	}
	rendered, err := formatter.NewAsciiFormatter(left, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       true,
	}).Format(diff)
	if err != nil {
		t.Fatalf("failed to format JSON diff: %v", err)
	}
	t.Errorf("JSON mismatch:\n%s", rendered)
}
