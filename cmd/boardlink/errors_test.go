//go:build test

package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/floatdeck/boardlink/internal/session"
)

func TestFormatUserError(t *testing.T) {
	connectErr := &session.EngineError{
		Kind: session.KindConnectFailure,
		Err:  errors.New("dial refused"),
	}
	msg := FormatUserError(connectErr)
	assert.Contains(t, msg, "could not connect")
	assert.Contains(t, msg, "dial refused")

	exhausted := &session.EngineError{Kind: session.KindAllStrategiesExhausted}
	assert.Contains(t, FormatUserError(exhausted), "power-cycle")

	// Wrapped engine errors still map.
	wrapped := fmt.Errorf("session: %w", connectErr)
	assert.Contains(t, FormatUserError(wrapped), "could not connect")

	// Unknown errors pass through untouched.
	plain := errors.New("something else")
	assert.Equal(t, "something else", FormatUserError(plain))
}
