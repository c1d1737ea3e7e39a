package onewheel

import "strings"

// MinRSSI is the weakest signal accepted for a candidate. Below this the
// link is too marginal to survive the unlock sequence.
const MinRSSI = -80

// nameFragments are the known board advertising-name substrings, matched
// case-insensitively.
var nameFragments = []string{
	"onewheel",
	"ow",
	"pint",
	"gt",
	"xr",
}

// addrPrefixes are the radio-module manufacturer address prefixes seen on
// boards in the wild. A prefix match alone is not enough: the primary board
// service must also be advertised.
var addrPrefixes = []string{
	"00:07:80", // Bluegiga
	"88:6b:0f",
	"e6:59:f3",
}

// IsCandidate classifies one advertisement as a board candidate.
//
// A record qualifies when its name contains a known fragment, or when its
// address prefix matches a known radio manufacturer and the primary board
// service is advertised. Records weaker than MinRSSI never qualify.
func IsCandidate(name, addr string, rssi int, services []string) bool {
	if rssi < MinRSSI {
		return false
	}

	lower := strings.ToLower(name)
	for _, fragment := range nameFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}

	lowerAddr := strings.ToLower(addr)
	for _, prefix := range addrPrefixes {
		if strings.HasPrefix(lowerAddr, prefix) {
			for _, svc := range services {
				if IsBoardService(svc) {
					return true
				}
			}
			return false
		}
	}

	return false
}
