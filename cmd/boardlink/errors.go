package main

import (
	"errors"

	"github.com/floatdeck/boardlink/internal/session"
)

// FormatUserError turns engine errors into actionable messages for the
// terminal. Anything unrecognized is passed through as-is.
func FormatUserError(err error) string {
	var engErr *session.EngineError
	if errors.As(err, &engErr) {
		switch engErr.Kind {
		case session.KindScanFailure:
			return "scan failed - check that Bluetooth is enabled (" + engErr.Error() + ")"
		case session.KindConnectFailure:
			return "could not connect to the board - make sure it is awake and in range (" + engErr.Error() + ")"
		case session.KindServiceNotFound:
			return "the device does not expose the board service - is this a OneWheel? (" + engErr.Error() + ")"
		case session.KindAllStrategiesExhausted:
			return "every unlock strategy failed - power-cycle the board and retry (" + engErr.Error() + ")"
		case session.KindHeartbeatFailure, session.KindWatchdogDisconnect:
			return "the board dropped the connection (" + engErr.Error() + ")"
		}
	}
	return err.Error()
}
