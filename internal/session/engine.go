package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/floatdeck/boardlink/internal/groutine"
	"github.com/floatdeck/boardlink/internal/onewheel"
	"github.com/floatdeck/boardlink/internal/ringchan"
	"github.com/floatdeck/boardlink/internal/transport"
	"github.com/floatdeck/boardlink/pkg/config"
	"github.com/floatdeck/boardlink/scanner"
)

const (
	stateEventBuffer     = 32
	telemetryEventBuffer = 256
)

// Engine is the top-level connection state machine. It owns the session
// state exclusively: all mutation goes through one transition method that
// also publishes state events. One engine handles one board at a time; a
// connect request while a session is live is a no-op.
type Engine struct {
	cfg    *config.Config
	logger *logrus.Logger
	link   transport.Transport

	mu       sync.Mutex
	state    State
	conn     transport.Connection
	registry *Registry
	model    onewheel.Model
	layout   onewheel.Layout
	snapshot *onewheel.Snapshot
	firmware []byte
	subs     *subscriptionManager
	live     *liveness

	lastErr  *EngineError
	errors   *errorLog
	tearing  bool
	stateCh  *ringchan.RingChannel[StateChange]
	eventsCh *ringchan.RingChannel[TelemetryEvent]
}

// New creates an engine over the given transport.
func New(cfg *config.Config, logger *logrus.Logger, link transport.Transport) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		cfg:      cfg,
		logger:   logger,
		link:     link,
		state:    StateDisconnected,
		registry: NewRegistry(),
		errors:   newErrorLog(),
		stateCh:  ringchan.New[StateChange](stateEventBuffer),
		eventsCh: ringchan.New[TelemetryEvent](telemetryEventBuffer),
	}
}

// StateEvents returns the state-change event stream. Slow consumers lose
// the oldest events, never block the engine.
func (e *Engine) StateEvents() <-chan StateChange { return e.stateCh.C() }

// TelemetryEvents returns the decoded-telemetry event stream.
func (e *Engine) TelemetryEvents() <-chan TelemetryEvent { return e.eventsCh.C() }

// State returns the current connection state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot returns a copy of the latest telemetry, or a zero view before
// authentication.
func (e *Engine) Snapshot() onewheel.View {
	e.mu.Lock()
	snapshot := e.snapshot
	e.mu.Unlock()
	if snapshot == nil {
		return onewheel.View{}
	}
	return snapshot.View()
}

// transition is the single place session state changes. Callers must hold
// e.mu.
func (e *Engine) transitionLocked(to State, cause error) {
	from := e.state
	if from == to {
		return
	}
	e.state = to
	e.logger.WithFields(logrus.Fields{
		"from": from.String(),
		"to":   to.String(),
	}).Info("Connection state changed")
	e.stateCh.Send(StateChange{From: from, To: to, At: time.Now(), Err: cause})
}

// Scan discovers board candidates through the engine's transport, holding
// the Scanning state for the duration. Only valid from Disconnected.
func (e *Engine) Scan(ctx context.Context, opts *scanner.ScanOptions) ([]scanner.Candidate, error) {
	e.mu.Lock()
	if e.state != StateDisconnected {
		e.mu.Unlock()
		return nil, fmt.Errorf("scan requires a disconnected engine, state is %s", e.state)
	}
	e.transitionLocked(StateScanning, nil)
	e.mu.Unlock()

	batch, err := scanner.New(e.link, e.logger).Scan(ctx, opts)

	e.mu.Lock()
	e.transitionLocked(StateDisconnected, nil)
	e.mu.Unlock()

	if err != nil {
		e.mu.Lock()
		e.lastErr = engineErr(KindScanFailure, err)
		e.errors.record("scan", err)
		e.mu.Unlock()
		return nil, engineErr(KindScanFailure, err)
	}
	return batch, nil
}

// Connect drives the full sequence for one board: dial with bounded
// retries, discover services, authenticate, subscribe, then start the
// liveness timers. It blocks until the session is Authenticated or has been
// torn down to Disconnected. A call while another session is active returns
// nil without doing anything.
func (e *Engine) Connect(ctx context.Context, addr, name string) error {
	e.mu.Lock()
	if e.state != StateDisconnected {
		e.mu.Unlock()
		e.logger.WithField("state", e.state.String()).Debug("Connect ignored, session already active")
		return nil
	}
	e.snapshot = &onewheel.Snapshot{}
	e.lastErr = nil
	e.transitionLocked(StateConnecting, nil)
	e.mu.Unlock()

	// The advertised name gives a first model guess; the authoritative
	// detection happens after the firmware revision is read.
	guess := onewheel.DetectModel(name, "")
	newer := guess.NewerVariant()

	conn, err := e.dial(ctx, addr, newer)
	if err != nil {
		return e.fail(KindConnectFailure, err)
	}

	e.mu.Lock()
	e.conn = conn
	e.transitionLocked(StateConnected, nil)
	e.mu.Unlock()

	if err := e.discover(ctx, conn, newer); err != nil {
		return e.failWith(err)
	}

	e.mu.Lock()
	e.transitionLocked(StateAuthenticating, nil)
	layout := e.layout
	subs := newSubscriptionManager(e.logger, e.registry, layout, e.snapshot, e.eventsCh)
	e.subs = subs
	e.mu.Unlock()

	auth := &authenticator{
		cfg:      e.cfg,
		logger:   e.logger,
		registry: e.registry,
		layout:   layout,
		subs:     subs,
		name:     name,
		onFallback: func(strategy string, err error) {
			e.errors.record("strategy "+strategy, err)
		},
	}
	result, err := auth.run(ctx)
	if err != nil {
		return e.failWith(err)
	}

	e.mu.Lock()
	e.model = result.model
	e.firmware = result.firmware
	e.mu.Unlock()

	// Attach remaining subscriptions; strategies may have wired some
	// already, attach skips live ones.
	subs.attach(result.model.NewerVariant(), e.cfg.Auth.InterSubscribeGap)

	e.mu.Lock()
	e.transitionLocked(StateAuthenticated, nil)
	e.mu.Unlock()

	if err := e.startLiveness(result); err != nil {
		return e.failWith(err)
	}

	e.logger.WithFields(logrus.Fields{
		"model":    result.model.String(),
		"strategy": result.strategy,
	}).Info("Board session established")
	return nil
}

// dial performs the bounded-retry connect with linear backoff.
func (e *Engine) dial(ctx context.Context, addr string, newer bool) (transport.Connection, error) {
	attempts, backoff, timeout := e.cfg.ConnectBudget(newer)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn, err := e.link.Dial(ctx, addr, timeout)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		e.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err,
		}).Warn("Connect attempt failed")
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * backoff):
			}
		}
	}
	return nil, fmt.Errorf("connect retries exhausted after %d attempts: %w", attempts, lastErr)
}

// discover runs service discovery, requires the primary board service, and
// populates the registry.
func (e *Engine) discover(ctx context.Context, conn transport.Connection, newer bool) error {
	discoverCtx, cancel := context.WithTimeout(ctx, e.cfg.DiscoveryTimeout(newer))
	defer cancel()

	services, err := conn.DiscoverServices(discoverCtx)
	if err != nil {
		return engineErr(KindServiceNotFound, err)
	}

	var primary transport.Service
	for _, svc := range services {
		if onewheel.IsBoardService(svc.UUID()) {
			primary = svc
			break
		}
	}
	if primary == nil {
		return engineErr(KindServiceNotFound, fmt.Errorf("primary board service %s not present", onewheel.ServiceUUID))
	}

	chars := primary.Characteristics()
	if len(chars) == 0 {
		return engineErr(KindCharacteristicsMissing, fmt.Errorf("primary board service has no characteristics"))
	}

	layout := onewheel.DetectLayout(transport.NormalizeUUIDs(uuidsOf(chars)))
	e.mu.Lock()
	e.registry.Populate(chars)
	e.layout = layout
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"characteristics": len(chars),
		"layout":          layout.String(),
	}).Info("Board service discovered")
	return nil
}

func uuidsOf(chars []transport.Characteristic) []string {
	uuids := make([]string, len(chars))
	for i, char := range chars {
		uuids[i] = char.UUID()
	}
	return uuids
}

// startLiveness launches the heartbeat, keepalive and watchdog timers.
func (e *Engine) startLiveness(result *authResult) error {
	fwChar, ok := e.registry.Field(e.layout, onewheel.FieldFirmwareRevision)
	if !ok {
		return engineErr(KindCharacteristicsMissing, fmt.Errorf("firmware revision characteristic not discovered"))
	}

	newer := result.model.NewerVariant()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.live = startLiveness(e.logger, livenessParams{
		conn:            e.conn,
		fwChar:          fwChar,
		firmware:        result.firmware,
		heartbeatPeriod: e.cfg.Liveness.HeartbeatPeriod,
		keepalivePeriod: e.cfg.KeepalivePeriod(newer),
		watchdogPeriod:  e.cfg.Liveness.WatchdogPeriod,
		watchdogGrace:   e.cfg.WatchdogGrace(newer),
		writeTimeout:    e.cfg.Auth.WriteTimeout,
		onFatal: func(kind ErrorKind, err error) {
			// Teardown must not run on the timer goroutine that
			// reported the failure.
			groutine.Go("session-teardown", func() {
				_ = e.fail(kind, err)
			})
		},
	})
	return nil
}

// fail records the error, forces the Error state, and tears the session
// down to Disconnected. The returned error is what Connect surfaces.
func (e *Engine) fail(kind ErrorKind, err error) error {
	return e.failWith(engineErr(kind, err))
}

// failWith is fail for errors that may already be EngineErrors.
func (e *Engine) failWith(err error) error {
	engErr, ok := err.(*EngineError)
	if !ok {
		engErr = engineErr(KindConnectFailure, err)
	}

	e.mu.Lock()
	if e.tearing {
		e.mu.Unlock()
		return engErr
	}
	e.tearing = true
	e.lastErr = engErr
	e.errors.record("session", engErr)
	e.transitionLocked(StateError, engErr)
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"kind":  string(engErr.Kind),
		"error": engErr.Error(),
	}).Error("Session failed, tearing down")

	e.teardown()
	return engErr
}

// Disconnect tears down any active session. Idempotent: a second call on a
// Disconnected engine does nothing.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	if e.state == StateDisconnected || e.tearing {
		e.mu.Unlock()
		return
	}
	e.tearing = true
	e.mu.Unlock()
	e.teardown()
}

// teardown cancels all timers and subscriptions, releases the connection,
// clears the registry, and returns to Disconnected. Every failure path and
// explicit disconnect funnels through here.
func (e *Engine) teardown() {
	e.mu.Lock()
	live := e.live
	subs := e.subs
	conn := e.conn
	e.live = nil
	e.subs = nil
	e.conn = nil
	e.firmware = nil
	e.mu.Unlock()

	if live != nil {
		live.stop()
	}
	if subs != nil {
		subs.detach()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			e.logger.WithField("error", err).Warn("Connection close failed during teardown")
		}
	}

	e.mu.Lock()
	e.registry.Clear()
	e.model = onewheel.ModelUnknown
	e.transitionLocked(StateDisconnected, nil)
	e.tearing = false
	e.mu.Unlock()
}

// Diagnostics returns a point-in-time view for external tooling.
func (e *Engine) Diagnostics() Diagnostics {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := Diagnostics{
		State:           e.state,
		Model:           e.model.String(),
		Layout:          e.layout.String(),
		Characteristics: e.registry.Len(),
		RecentErrors:    e.errors.recent(),
	}
	if e.subs != nil {
		d.Subscriptions = e.subs.subscriptions()
	}
	if e.live != nil {
		d.HeartbeatRunning = e.live.heartbeatRunning.Load()
		d.KeepaliveRunning = e.live.keepaliveRunning.Load()
		d.WatchdogRunning = e.live.watchdogRunning.Load()
	}
	if e.lastErr != nil {
		d.LastErrorKind = e.lastErr.Kind
		d.LastError = e.lastErr.Error()
	}
	return d
}
