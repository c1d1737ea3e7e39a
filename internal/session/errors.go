package session

import "fmt"

// ErrorKind classifies engine failures for callers and diagnostics.
type ErrorKind string

const (
	KindScanFailure               ErrorKind = "scan_failure"
	KindConnectFailure            ErrorKind = "connect_failure"
	KindServiceNotFound           ErrorKind = "service_not_found"
	KindCharacteristicsMissing    ErrorKind = "characteristics_missing"
	KindChallengeTimeout          ErrorKind = "challenge_timeout"
	KindInvalidChallengeSignature ErrorKind = "invalid_challenge_signature"
	KindAllStrategiesExhausted    ErrorKind = "all_strategies_exhausted"
	KindHeartbeatFailure          ErrorKind = "heartbeat_failure"
	KindWatchdogDisconnect        ErrorKind = "watchdog_disconnect"
)

// EngineError wraps a failure with its kind. Every escalated failure the
// engine surfaces is one of these.
type EngineError struct {
	Kind ErrorKind
	Err  error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Is allows errors.Is to compare EngineError values by Kind
func (e *EngineError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Kind sentinels for errors.Is comparisons.
var (
	ErrScanFailure               = &EngineError{Kind: KindScanFailure}
	ErrConnectFailure            = &EngineError{Kind: KindConnectFailure}
	ErrServiceNotFound           = &EngineError{Kind: KindServiceNotFound}
	ErrCharacteristicsMissing    = &EngineError{Kind: KindCharacteristicsMissing}
	ErrChallengeTimeout          = &EngineError{Kind: KindChallengeTimeout}
	ErrInvalidChallengeSignature = &EngineError{Kind: KindInvalidChallengeSignature}
	ErrAllStrategiesExhausted    = &EngineError{Kind: KindAllStrategiesExhausted}
	ErrHeartbeatFailure          = &EngineError{Kind: KindHeartbeatFailure}
	ErrWatchdogDisconnect        = &EngineError{Kind: KindWatchdogDisconnect}
)

func engineErr(kind ErrorKind, err error) *EngineError {
	return &EngineError{Kind: kind, Err: err}
}
