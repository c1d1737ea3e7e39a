package onewheel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCandidate(t *testing.T) {
	boardServices := []string{ServiceUUID}

	tests := []struct {
		name     string
		devName  string
		addr     string
		rssi     int
		services []string
		want     bool
	}{
		{"named board at good signal", "Onewheel GT-S", "aa:bb:cc:dd:ee:ff", -60, nil, true},
		{"named board case insensitive", "ONEWHEEL pint", "aa:bb:cc:dd:ee:ff", -60, nil, true},
		{"named board below signal floor", "Onewheel GT-S", "aa:bb:cc:dd:ee:ff", -90, nil, false},
		{"known prefix with board service", "", "88:6b:0f:12:34:56", -60, boardServices, true},
		{"known prefix without board service", "", "88:6b:0f:12:34:56", -60, []string{"180d"}, false},
		{"unknown device", "JBL Speakers", "11:22:33:44:55:66", -50, nil, false},
		{"no name no prefix", "", "11:22:33:44:55:66", -50, boardServices, false},
		{"at the signal floor exactly", "ow-012345", "aa:bb:cc:dd:ee:ff", MinRSSI, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCandidate(tt.devName, tt.addr, tt.rssi, tt.services))
		})
	}
}
