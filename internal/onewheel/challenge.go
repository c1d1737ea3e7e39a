package onewheel

import (
	"crypto/md5"
	"fmt"
)

// Signature is the fixed 3-byte "CRX" marker opening every valid challenge
// and response frame.
var Signature = [3]byte{0x43, 0x52, 0x58}

// secretKey is the fixed 16-byte MD5 input shared by every board generation.
var secretKey = [16]byte{
	0xd9, 0x25, 0x5f, 0x0f, 0x23, 0x35, 0x4e, 0x19,
	0xba, 0x73, 0x9c, 0xcd, 0xc4, 0xa9, 0x17, 0x65,
}

// Challenge length targets per flow. These bound the accumulation wait
// only: a wait that expires with a shorter buffer still answers it, since
// boards have been observed truncating the frame mid-unlock.
const (
	ClassicMinChallengeLen  = 20
	ModifiedMinChallengeLen = 10
)

// minRespondLen is the shortest answerable challenge: signature(3), at
// least one payload byte, and the board's trailing checksum.
const minRespondLen = 5

// ResponseLen is signature(3) + digest(16) + checksum(1).
const ResponseLen = 20

// HasSignature reports whether the challenge opens with the CRX marker.
func HasSignature(challenge []byte) bool {
	return len(challenge) >= 3 &&
		challenge[0] == Signature[0] &&
		challenge[1] == Signature[1] &&
		challenge[2] == Signature[2]
}

// Checksum is the XOR of all bytes.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum ^= v
	}
	return sum
}

// respond builds a response frame from the selected challenge slice:
// CRX signature, MD5 over slice plus the secret key, XOR checksum over
// everything before it.
func respond(slice []byte) []byte {
	h := md5.New()
	h.Write(slice)
	h.Write(secretKey[:])
	digest := h.Sum(nil)

	response := make([]byte, 0, ResponseLen)
	response = append(response, Signature[:]...)
	response = append(response, digest...)
	response = append(response, Checksum(response))
	return response
}

// ClassicResponse computes the response for the original challenge format:
// the digested slice is challenge[3 : len-1] (everything between the
// signature and the board's own trailing checksum byte). The slice works
// for any signed buffer, so partial challenges accepted by the wait are
// answered too.
func ClassicResponse(challenge []byte) ([]byte, error) {
	if len(challenge) < minRespondLen {
		return nil, fmt.Errorf("challenge too short: %d bytes, need %d", len(challenge), minRespondLen)
	}
	if !HasSignature(challenge) {
		return nil, fmt.Errorf("challenge missing CRX signature: % x", challenge[:3])
	}
	return respond(challenge[3 : len(challenge)-1]), nil
}

// ModifiedResponse computes the response for newer-board challenges, which
// arrive in at least three mutually inconsistent shapes across firmware
// revisions. The slice is chosen by observed challenge length:
//
//	len >= 20   [3, 19)
//	16..19      [4, 16)
//	< 16        [3, len-1)
//
// None of the variants is confirmed against hardware; they are ordered
// hypotheses, and a wrong pick surfaces as the board ignoring the response
// rather than as an error here. Partial buffers below the accumulation
// target take the classic-shaped slice.
func ModifiedResponse(challenge []byte) ([]byte, error) {
	if len(challenge) < minRespondLen {
		return nil, fmt.Errorf("challenge too short: %d bytes, need %d", len(challenge), minRespondLen)
	}
	if !HasSignature(challenge) {
		return nil, fmt.Errorf("challenge missing CRX signature: % x", challenge[:3])
	}

	var slice []byte
	switch {
	case len(challenge) >= ClassicMinChallengeLen:
		slice = challenge[3:19]
	case len(challenge) >= 16:
		slice = challenge[4:16]
	default:
		slice = challenge[3 : len(challenge)-1]
	}
	return respond(slice), nil
}
