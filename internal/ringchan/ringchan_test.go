package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAndReceive(t *testing.T) {
	rc := New[int](4)
	rc.Send(1)
	rc.Send(2)

	assert.Equal(t, 1, <-rc.C())
	assert.Equal(t, 2, <-rc.C())
}

func TestSendDropsOldestWhenFull(t *testing.T) {
	rc := New[int](2)
	rc.Send(1)
	rc.Send(2)
	rc.Send(3) // evicts 1

	assert.Equal(t, 2, <-rc.C())
	assert.Equal(t, 3, <-rc.C())
	select {
	case v := <-rc.C():
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	rc := New[string](2)
	rc.Send("kept")
	rc.Close()
	rc.Send("dropped")
	rc.Close() // idempotent

	v, ok := <-rc.C()
	require.True(t, ok)
	assert.Equal(t, "kept", v)

	_, ok = <-rc.C()
	assert.False(t, ok, "channel should be closed")
}

func TestZeroCapacityPanics(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
