//go:build test

package session_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	suitelib "github.com/stretchr/testify/suite"

	"github.com/floatdeck/boardlink/internal/onewheel"
	"github.com/floatdeck/boardlink/internal/session"
	"github.com/floatdeck/boardlink/internal/testutils"
	"github.com/floatdeck/boardlink/internal/transport"
	"github.com/floatdeck/boardlink/pkg/config"
	"github.com/floatdeck/boardlink/scanner"
)

// fastConfig compresses every timing budget so a full connect sequence runs
// in milliseconds. Liveness timers default to effectively-never and are
// tightened per test.
func fastConfig() *config.Config {
	cfg := config.Default()

	cfg.Connect.Attempts = 3
	cfg.Connect.Backoff = time.Millisecond
	cfg.Connect.Timeout = 100 * time.Millisecond
	cfg.Connect.NewerAttempts = 3
	cfg.Connect.NewerBackoff = time.Millisecond
	cfg.Connect.NewerTimeout = 100 * time.Millisecond
	cfg.Connect.DiscoveryTimeout = 100 * time.Millisecond
	cfg.Connect.NewerDiscoveryTimeout = 100 * time.Millisecond

	cfg.Auth.ReadTimeout = 50 * time.Millisecond
	cfg.Auth.WriteTimeout = 50 * time.Millisecond
	cfg.Auth.ChallengeWait = 100 * time.Millisecond
	cfg.Auth.NewerChallengeWait = 100 * time.Millisecond
	cfg.Auth.SettleDelay = time.Millisecond
	cfg.Auth.SubscribePause = time.Millisecond
	cfg.Auth.InterSubscribeGap = 0
	cfg.Auth.SentinelReadDelay = time.Millisecond
	cfg.Auth.KeepalivePeriod = time.Hour
	cfg.Auth.NewerKeepalive = time.Hour

	cfg.Liveness.HeartbeatPeriod = time.Hour
	cfg.Liveness.WatchdogPeriod = time.Hour
	cfg.Liveness.WatchdogGrace = time.Hour
	cfg.Liveness.NewerWatchdogGrace = time.Hour
	return cfg
}

type EngineTestSuite struct {
	suitelib.Suite

	cfg    *config.Config
	logger *logrus.Logger
}

func (suite *EngineTestSuite) SetupTest() {
	suite.cfg = fastConfig()
	suite.logger = logrus.New()
	suite.logger.SetLevel(logrus.PanicLevel)
}

func (suite *EngineTestSuite) newEngine(link transport.Transport) *session.Engine {
	return session.New(suite.cfg, suite.logger, link)
}

func (suite *EngineTestSuite) TestClassicUnlockEndToEnd() {
	board := testutils.NewClassicBoard("Onewheel Pint", "aa:bb:cc:dd:ee:01")
	engine := suite.newEngine(board)
	defer engine.Disconnect()

	err := engine.Connect(context.Background(), board.Address, board.Name)
	suite.Require().NoError(err)
	suite.Equal(session.StateAuthenticated, engine.State())

	// The board's challenge must have been answered on the serial read
	// channel with a correctly framed CRX response.
	writes := board.Char(onewheel.FieldSerialRead).Writes()
	suite.Require().Len(writes, 1)
	expected, err := onewheel.ClassicResponse(board.Challenge)
	suite.Require().NoError(err)
	suite.Equal(expected, writes[0])

	diag := engine.Diagnostics()
	suite.Equal("Pint", diag.Model)
	suite.Equal("classic", diag.Layout)
	suite.Equal(15, diag.Characteristics)
	suite.Greater(diag.Subscriptions, 0)
	suite.True(diag.HeartbeatRunning)
	suite.True(diag.KeepaliveRunning)
}

func (suite *EngineTestSuite) TestGTSDirectUnlockSuppressesFallbacks() {
	board := testutils.NewGTSBoard("Onewheel GT-S", "aa:bb:cc:dd:ee:02")
	engine := suite.newEngine(board)
	defer engine.Disconnect()

	err := engine.Connect(context.Background(), board.Address, board.Name)
	suite.Require().NoError(err)
	suite.Equal(session.StateAuthenticated, engine.State())

	// The first strategy's unlock command is the only serial write, and
	// no challenge flow was ever triggered.
	writes := board.Char(onewheel.FieldSerialWrite).Writes()
	suite.Require().Len(writes, 1)
	suite.Equal(onewheel.DirectUnlockCommand, writes[0])
	suite.Empty(board.Char(onewheel.FieldSerialRead).Writes())

	diag := engine.Diagnostics()
	suite.Equal("GT-S", diag.Model)
	suite.Equal("extended", diag.Layout)
	suite.Empty(diag.RecentErrors)
}

func (suite *EngineTestSuite) TestDialRetryRecovers() {
	board := testutils.NewClassicBoard("Onewheel Pint", "aa:bb:cc:dd:ee:03")
	board.FailDials(2)
	engine := suite.newEngine(board)
	defer engine.Disconnect()

	err := engine.Connect(context.Background(), board.Address, board.Name)
	suite.Require().NoError(err)
	suite.Equal(3, board.DialCount())
}

func (suite *EngineTestSuite) TestDialExhaustedFails() {
	board := testutils.NewClassicBoard("Onewheel Pint", "aa:bb:cc:dd:ee:04")
	board.FailDials(3)
	engine := suite.newEngine(board)

	err := engine.Connect(context.Background(), board.Address, board.Name)
	suite.Require().Error(err)
	suite.True(errors.Is(err, session.ErrConnectFailure))
	suite.Equal(session.StateDisconnected, engine.State())
	suite.Equal(3, board.DialCount())
}

func (suite *EngineTestSuite) TestMissingBoardServiceFails() {
	conn := &testutils.FakeConnection{}
	conn.SetConnected(true)
	engine := suite.newEngine(&stubLink{conn: conn})

	err := engine.Connect(context.Background(), "aa:bb:cc:dd:ee:05", "Onewheel Pint")
	suite.Require().Error(err)
	suite.True(errors.Is(err, session.ErrServiceNotFound))
	suite.Equal(session.StateDisconnected, engine.State())
	suite.True(conn.WasClosed())
}

func (suite *EngineTestSuite) TestChallengeTimeoutExhaustsStrategies() {
	board := testutils.NewClassicBoard("Onewheel Pint", "aa:bb:cc:dd:ee:06")
	board.EmitChallenge = false
	engine := suite.newEngine(board)

	err := engine.Connect(context.Background(), board.Address, board.Name)
	suite.Require().Error(err)
	suite.True(errors.Is(err, session.ErrAllStrategiesExhausted))
	suite.True(errors.Is(err, session.ErrChallengeTimeout))
	suite.Equal(session.StateDisconnected, engine.State())

	diag := engine.Diagnostics()
	suite.Equal(session.KindAllStrategiesExhausted, diag.LastErrorKind)
	suite.NotEmpty(diag.RecentErrors)
}

func (suite *EngineTestSuite) TestClassicPartialChallengeProceeds() {
	board := testutils.NewClassicBoard("Onewheel Pint", "aa:bb:cc:dd:ee:0e")
	// The board truncates its challenge below the accumulation target; the
	// wait expires with a partial buffer and the attempt continues.
	board.Challenge = testutils.ValidChallenge(12)
	engine := suite.newEngine(board)
	defer engine.Disconnect()

	err := engine.Connect(context.Background(), board.Address, board.Name)
	suite.Require().NoError(err)
	suite.Equal(session.StateAuthenticated, engine.State())

	writes := board.Char(onewheel.FieldSerialRead).Writes()
	suite.Require().Len(writes, 1)
	expected, err := onewheel.ClassicResponse(board.Challenge)
	suite.Require().NoError(err)
	suite.Equal(expected, writes[0])
}

func (suite *EngineTestSuite) TestGTSAlternateTriggerRecoversChallenge() {
	board := testutils.NewGTSBoard("Onewheel GT-S", "aa:bb:cc:dd:ee:0f")
	board.EmitChallenge = false
	// Locked sentinels push the write-based strategies through to the
	// modified challenge flow.
	board.Char(onewheel.FieldBatteryPercent).SetReadError(fmt.Errorf("locked"))
	board.Char(onewheel.FieldPitch).SetReadError(fmt.Errorf("locked"))
	// The board stays silent until the alternate trigger arrives.
	board.Char(onewheel.FieldSerialWrite).OnWrite(func(data []byte) {
		if bytes.Equal(data, onewheel.AlternateChallengeTrigger) {
			board.Char(onewheel.FieldSerialRead).Notify(board.Challenge)
		}
	})
	engine := suite.newEngine(board)
	defer engine.Disconnect()

	err := engine.Connect(context.Background(), board.Address, board.Name)
	suite.Require().NoError(err)
	suite.Equal(session.StateAuthenticated, engine.State())

	suite.Equal(1, countWrites(board.Char(onewheel.FieldSerialWrite).Writes(), onewheel.AlternateChallengeTrigger),
		"alternate trigger must be written exactly once")

	writes := board.Char(onewheel.FieldSerialRead).Writes()
	suite.Require().Len(writes, 1)
	expected, err := onewheel.ModifiedResponse(board.Challenge)
	suite.Require().NoError(err)
	suite.Equal(expected, writes[0])
}

func (suite *EngineTestSuite) TestGTSSilentChallengeTimesOut() {
	board := testutils.NewGTSBoard("Onewheel GT-S", "aa:bb:cc:dd:ee:10")
	board.EmitChallenge = false
	board.Char(onewheel.FieldBatteryPercent).SetReadError(fmt.Errorf("locked"))
	board.Char(onewheel.FieldPitch).SetReadError(fmt.Errorf("locked"))
	engine := suite.newEngine(board)

	err := engine.Connect(context.Background(), board.Address, board.Name)
	suite.Require().Error(err)
	suite.True(errors.Is(err, session.ErrAllStrategiesExhausted))
	suite.True(errors.Is(err, session.ErrChallengeTimeout))
	suite.Equal(session.StateDisconnected, engine.State())

	// The zero-byte timeout issues the alternate trigger exactly once
	// before giving up.
	suite.Equal(1, countWrites(board.Char(onewheel.FieldSerialWrite).Writes(), onewheel.AlternateChallengeTrigger))
}

func (suite *EngineTestSuite) TestConnectWhileActiveIsNoop() {
	board := testutils.NewClassicBoard("Onewheel Pint", "aa:bb:cc:dd:ee:07")
	engine := suite.newEngine(board)
	defer engine.Disconnect()

	suite.Require().NoError(engine.Connect(context.Background(), board.Address, board.Name))
	dials := board.DialCount()

	suite.Require().NoError(engine.Connect(context.Background(), board.Address, board.Name))
	suite.Equal(dials, board.DialCount(), "second connect must not dial")
	suite.Equal(session.StateAuthenticated, engine.State())
}

func (suite *EngineTestSuite) TestDisconnectIdempotent() {
	board := testutils.NewClassicBoard("Onewheel Pint", "aa:bb:cc:dd:ee:08")
	engine := suite.newEngine(board)

	suite.Require().NoError(engine.Connect(context.Background(), board.Address, board.Name))
	conn := board.Connection()

	engine.Disconnect()
	engine.Disconnect()

	suite.Equal(session.StateDisconnected, engine.State())
	suite.True(conn.WasClosed())
	suite.False(board.Char(onewheel.FieldBatteryPercent).Subscribed())

	diag := engine.Diagnostics()
	suite.Zero(diag.Characteristics)
	suite.Zero(diag.Subscriptions)
	suite.False(diag.HeartbeatRunning)
	suite.False(diag.KeepaliveRunning)
	suite.False(diag.WatchdogRunning)
}

func (suite *EngineTestSuite) TestHeartbeatFailureTearsDown() {
	suite.cfg.Liveness.HeartbeatPeriod = 20 * time.Millisecond

	board := testutils.NewClassicBoard("Onewheel Pint", "aa:bb:cc:dd:ee:09")
	engine := suite.newEngine(board)
	defer engine.Disconnect()

	suite.Require().NoError(engine.Connect(context.Background(), board.Address, board.Name))
	board.Char(onewheel.FieldFirmwareRevision).SetWriteError(fmt.Errorf("link dead"))

	suite.Require().Eventually(func() bool {
		return engine.State() == session.StateDisconnected
	}, 2*time.Second, 10*time.Millisecond, "heartbeat failure should tear the session down")
	suite.Equal(session.KindHeartbeatFailure, engine.Diagnostics().LastErrorKind)
}

func (suite *EngineTestSuite) TestWatchdogDetectsLinkLoss() {
	suite.cfg.Liveness.WatchdogGrace = time.Millisecond
	suite.cfg.Liveness.WatchdogPeriod = 10 * time.Millisecond

	board := testutils.NewClassicBoard("Onewheel Pint", "aa:bb:cc:dd:ee:0a")
	engine := suite.newEngine(board)
	defer engine.Disconnect()

	suite.Require().NoError(engine.Connect(context.Background(), board.Address, board.Name))
	board.Connection().SetConnected(false)

	suite.Require().Eventually(func() bool {
		return engine.State() == session.StateDisconnected
	}, 2*time.Second, 10*time.Millisecond, "watchdog should tear the session down")
	suite.Equal(session.KindWatchdogDisconnect, engine.Diagnostics().LastErrorKind)
}

func (suite *EngineTestSuite) TestTelemetryRouting() {
	board := testutils.NewClassicBoard("Onewheel Pint", "aa:bb:cc:dd:ee:0b")
	engine := suite.newEngine(board)
	defer engine.Disconnect()

	suite.Require().NoError(engine.Connect(context.Background(), board.Address, board.Name))

	board.Char(onewheel.FieldBatteryPercent).Notify([]byte{42})

	var got session.TelemetryEvent
	suite.Require().Eventually(func() bool {
		for {
			select {
			case ev := <-engine.TelemetryEvents():
				if ev.Field == onewheel.FieldBatteryPercent && ev.Value == 42 {
					got = ev
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 10*time.Millisecond)

	suite.Equal(42.0, got.Snapshot.BatteryPercent)
	suite.Equal(42.0, engine.Snapshot().BatteryPercent)
}

func (suite *EngineTestSuite) TestStateEventSequence() {
	board := testutils.NewClassicBoard("Onewheel Pint", "aa:bb:cc:dd:ee:0c")
	engine := suite.newEngine(board)
	defer engine.Disconnect()

	suite.Require().NoError(engine.Connect(context.Background(), board.Address, board.Name))

	var seen []session.State
	for len(engine.StateEvents()) > 0 {
		change := <-engine.StateEvents()
		seen = append(seen, change.To)
	}
	suite.Equal([]session.State{
		session.StateConnecting,
		session.StateConnected,
		session.StateAuthenticating,
		session.StateAuthenticated,
	}, seen)
}

func (suite *EngineTestSuite) TestScanRequiresDisconnected() {
	board := testutils.NewClassicBoard("Onewheel Pint", "aa:bb:cc:dd:ee:0d")
	engine := suite.newEngine(board)
	defer engine.Disconnect()

	batch, err := engine.Scan(context.Background(), &scanner.ScanOptions{Duration: 50 * time.Millisecond})
	suite.Require().NoError(err)
	suite.Require().Len(batch, 1)
	suite.Equal(board.Address, batch[0].Address)
	suite.Equal(session.StateDisconnected, engine.State())

	suite.Require().NoError(engine.Connect(context.Background(), board.Address, board.Name))
	_, err = engine.Scan(context.Background(), nil)
	suite.Error(err, "scan during a live session must be refused")
}

// countWrites counts recorded writes equal to want.
func countWrites(writes [][]byte, want []byte) int {
	n := 0
	for _, w := range writes {
		if bytes.Equal(w, want) {
			n++
		}
	}
	return n
}

// stubLink returns a canned connection, for discovery failure paths the
// fake board cannot produce.
type stubLink struct {
	conn transport.Connection
}

func (s *stubLink) Scan(_ context.Context, _ bool, _ func(transport.Advertisement)) error {
	return nil
}

func (s *stubLink) Dial(_ context.Context, _ string, _ time.Duration) (transport.Connection, error) {
	return s.conn, nil
}

func TestEngineSuite(t *testing.T) {
	suitelib.Run(t, new(EngineTestSuite))
}
