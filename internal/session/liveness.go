package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/floatdeck/boardlink/internal/groutine"
	"github.com/floatdeck/boardlink/internal/transport"
)

// liveness runs the post-unlock timer set: the heartbeat write that keeps
// the session alive, the model-specific keepalive re-sending the cached
// firmware bytes, and the watchdog polling the underlying link. Each timer
// is independently cancellable; stop() cancels them all.
type liveness struct {
	logger *logrus.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	heartbeatRunning atomic.Bool
	keepaliveRunning atomic.Bool
	watchdogRunning  atomic.Bool
}

// livenessParams carries everything the timers need. onFatal is invoked at
// most once per failure path and must trigger engine teardown.
type livenessParams struct {
	conn     transport.Connection
	fwChar   transport.Characteristic
	firmware []byte

	heartbeatPeriod time.Duration
	keepalivePeriod time.Duration
	watchdogPeriod  time.Duration
	watchdogGrace   time.Duration
	writeTimeout    time.Duration

	onFatal func(kind ErrorKind, err error)
}

func startLiveness(logger *logrus.Logger, p livenessParams) *liveness {
	l := &liveness{
		logger: logger,
		stopCh: make(chan struct{}),
	}

	l.wg.Add(3)
	groutine.Go("board-heartbeat", func() { l.runHeartbeat(p) })
	groutine.Go("board-keepalive", func() { l.runKeepalive(p) })
	groutine.Go("board-watchdog", func() { l.runWatchdog(p) })
	return l
}

// runHeartbeat re-sends the cached firmware bytes on a fixed period. A
// failed write means the unlocked session is gone: escalate.
func (l *liveness) runHeartbeat(p livenessParams) {
	defer l.wg.Done()
	l.heartbeatRunning.Store(true)
	defer l.heartbeatRunning.Store(false)

	ticker := time.NewTicker(p.heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			if err := p.fwChar.Write(p.firmware, p.writeTimeout); err != nil {
				l.logger.WithField("error", err).Error("Heartbeat write failed, connection considered lost")
				p.onFatal(KindHeartbeatFailure, err)
				return
			}
			l.logger.Debug("Heartbeat written")
		}
	}
}

// runKeepalive is the model-specific slower re-send. Unlike the heartbeat a
// failure here is logged only; the heartbeat and watchdog decide liveness.
func (l *liveness) runKeepalive(p livenessParams) {
	defer l.wg.Done()
	l.keepaliveRunning.Store(true)
	defer l.keepaliveRunning.Store(false)

	ticker := time.NewTicker(p.keepalivePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			if err := p.fwChar.Write(p.firmware, p.writeTimeout); err != nil {
				l.logger.WithField("error", err).Warn("Keepalive write failed")
				continue
			}
			l.logger.Debug("Keepalive written")
		}
	}
}

// runWatchdog polls the link status after an initial grace period.
func (l *liveness) runWatchdog(p livenessParams) {
	defer l.wg.Done()

	select {
	case <-l.stopCh:
		return
	case <-time.After(p.watchdogGrace):
	}

	l.watchdogRunning.Store(true)
	defer l.watchdogRunning.Store(false)

	ticker := time.NewTicker(p.watchdogPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			if !p.conn.IsConnected() {
				l.logger.Error("Watchdog detected link loss")
				p.onFatal(KindWatchdogDisconnect, transport.ErrNotConnected)
				return
			}
			l.logger.Debug("Watchdog poll ok")
		}
	}
}

// stop cancels all timers and waits for them to exit. Safe to call more
// than once.
func (l *liveness) stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}
