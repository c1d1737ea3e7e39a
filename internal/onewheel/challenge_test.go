package onewheel

import (
	"crypto/md5"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChallenge returns a CRX-signed challenge of the given length with a
// deterministic body and a valid trailing checksum.
func buildChallenge(length int) []byte {
	c := make([]byte, length)
	copy(c, Signature[:])
	for i := 3; i < length-1; i++ {
		c[i] = byte(i*13 + 5)
	}
	c[length-1] = Checksum(c[:length-1])
	return c
}

// expectedResponse computes a response frame from first principles for a
// given digested slice.
func expectedResponse(slice []byte) []byte {
	h := md5.New()
	h.Write(slice)
	h.Write(secretKey[:])
	r := append([]byte{}, Signature[:]...)
	r = append(r, h.Sum(nil)...)
	return append(r, Checksum(r))
}

func TestClassicResponseFrame(t *testing.T) {
	for _, length := range []int{20, 25, 40} {
		challenge := buildChallenge(length)

		response, err := ClassicResponse(challenge)
		require.NoError(t, err, "length %d", length)
		require.Len(t, response, ResponseLen)

		// Signature, digest over challenge[3:len-1] plus the key, then
		// the XOR of everything before the final byte.
		assert.Equal(t, Signature[:], response[:3])
		assert.Equal(t, expectedResponse(challenge[3:length-1]), response)
		assert.Equal(t, Checksum(response[:19]), response[19])
	}
}

func TestClassicResponsePartialBuffer(t *testing.T) {
	// A challenge wait that expires with a short signed buffer still gets
	// answered; the slice shape is unchanged.
	for _, length := range []int{5, 8, 12, 19} {
		challenge := buildChallenge(length)

		response, err := ClassicResponse(challenge)
		require.NoError(t, err, "length %d", length)
		assert.Equal(t, expectedResponse(challenge[3:length-1]), response, "length %d", length)
	}
}

func TestClassicResponseRejectsShortChallenge(t *testing.T) {
	_, err := ClassicResponse(buildChallenge(4))
	assert.Error(t, err)
}

func TestClassicResponseRejectsMissingSignature(t *testing.T) {
	challenge := buildChallenge(20)
	challenge[0] = 0x00
	_, err := ClassicResponse(challenge)
	assert.Error(t, err)
}

func TestModifiedResponseSliceSelection(t *testing.T) {
	tests := []struct {
		length     int
		sliceStart int
		sliceEnd   int
	}{
		{length: 20, sliceStart: 3, sliceEnd: 19},
		{length: 24, sliceStart: 3, sliceEnd: 19},
		{length: 17, sliceStart: 4, sliceEnd: 16},
		{length: 16, sliceStart: 4, sliceEnd: 16},
		{length: 12, sliceStart: 3, sliceEnd: 11},
		{length: 10, sliceStart: 3, sliceEnd: 9},
		{length: 7, sliceStart: 3, sliceEnd: 6},
	}
	for _, tt := range tests {
		challenge := buildChallenge(tt.length)

		response, err := ModifiedResponse(challenge)
		require.NoError(t, err, "length %d", tt.length)
		assert.Equal(t, expectedResponse(challenge[tt.sliceStart:tt.sliceEnd]), response,
			"length %d should digest [%d, %d)", tt.length, tt.sliceStart, tt.sliceEnd)
	}
}

func TestModifiedResponseRejectsShortChallenge(t *testing.T) {
	_, err := ModifiedResponse(buildChallenge(4))
	assert.Error(t, err)
}

func TestHasSignature(t *testing.T) {
	assert.True(t, HasSignature([]byte{0x43, 0x52, 0x58}))
	assert.True(t, HasSignature([]byte{0x43, 0x52, 0x58, 0xff}))
	assert.False(t, HasSignature([]byte{0x43, 0x52}))
	assert.False(t, HasSignature([]byte{0x43, 0x52, 0x59}))
	assert.False(t, HasSignature(nil))
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, byte(0), Checksum(nil))
	assert.Equal(t, byte(0x43), Checksum([]byte{0x43}))
	assert.Equal(t, byte(0x43^0x52^0x58), Checksum([]byte{0x43, 0x52, 0x58}))
}
