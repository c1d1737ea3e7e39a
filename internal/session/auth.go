package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/floatdeck/boardlink/internal/onewheel"
	"github.com/floatdeck/boardlink/pkg/config"
)

// authenticator drives the model-specific unlock sequence against a
// populated registry. Strategies run strictly sequentially: a later one
// starts only after the prior definitively failed, so conflicting unlock
// commands never race on the wire.
type authenticator struct {
	cfg      *config.Config
	logger   *logrus.Logger
	registry *Registry
	layout   onewheel.Layout
	subs     *subscriptionManager
	name     string // advertised device name

	// onFallback observes every strategy failure for diagnostics.
	onFallback func(strategy string, err error)
}

// authResult is what a successful unlock hands back to the state machine.
type authResult struct {
	model    onewheel.Model
	firmware []byte
	strategy string
}

// authStrategy is one ordered unlock attempt.
type authStrategy struct {
	name string
	run  func(ctx context.Context, firmware []byte) error
}

// run reads the firmware revision, derives the model, and walks the model's
// strategy list until one succeeds or all are exhausted.
func (a *authenticator) run(ctx context.Context) (*authResult, error) {
	firmware, err := a.readFirmware(ctx)
	if err != nil {
		return nil, err
	}

	model := onewheel.DetectModel(a.name, string(firmware))
	a.logger.WithFields(logrus.Fields{
		"model":      model.String(),
		"firmware":   fmt.Sprintf("% x", firmware),
		"strategies": a.describeStrategies(model),
	}).Info("Board model detected")

	var lastErr error
	for _, strategy := range a.strategiesFor(model) {
		a.logger.WithField("strategy", strategy.name).Info("Attempting unlock strategy")
		if err := strategy.run(ctx, firmware); err != nil {
			lastErr = err
			a.logger.WithFields(logrus.Fields{
				"strategy": strategy.name,
				"error":    err,
			}).Warn("Unlock strategy failed, falling through")
			if a.onFallback != nil {
				a.onFallback(strategy.name, err)
			}
			continue
		}
		a.logger.WithField("strategy", strategy.name).Info("Board unlocked")
		return &authResult{model: model, firmware: firmware, strategy: strategy.name}, nil
	}

	return nil, engineErr(KindAllStrategiesExhausted, lastErr)
}

// strategiesFor returns the ordered unlock list for a model. New board
// generations are added by defining a new list here, not by branching.
func (a *authenticator) strategiesFor(model onewheel.Model) []authStrategy {
	challenge := func(modified bool) authStrategy {
		name := "challenge-response"
		if modified {
			name = "modified-challenge-response"
		}
		return authStrategy{name: name, run: func(ctx context.Context, fw []byte) error {
			return a.challengeResponse(ctx, fw, modified)
		}}
	}

	if !model.NewerVariant() {
		return []authStrategy{challenge(false)}
	}

	return []authStrategy{
		{name: "direct-unlock", run: func(ctx context.Context, fw []byte) error {
			return a.directUnlock(ctx, onewheel.DirectUnlockCommand, onewheel.FieldBatteryPercent)
		}},
		{name: "alternate-unlock", run: func(ctx context.Context, fw []byte) error {
			return a.directUnlock(ctx, onewheel.AlternateUnlockCommand, onewheel.FieldPitch)
		}},
		{name: "wake-sweep", run: a.wakeSweep},
		challenge(true),
	}
}

// readFirmware reads the firmware-revision characteristic with bounded
// retries. An empty result is retried, never treated as a value.
func (a *authenticator) readFirmware(ctx context.Context) ([]byte, error) {
	char, ok := a.registry.Field(a.layout, onewheel.FieldFirmwareRevision)
	if !ok {
		return nil, engineErr(KindCharacteristicsMissing, fmt.Errorf("firmware revision characteristic not discovered"))
	}

	newer := a.layout == onewheel.LayoutExtended
	retries := a.cfg.FirmwareReadRetries(newer)

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := char.Read(a.cfg.Auth.ReadTimeout)
		if err == nil && len(data) > 0 {
			return data, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("empty firmware revision")
		}
		a.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   lastErr,
		}).Warn("Firmware revision read failed")
	}
	return nil, engineErr(KindCharacteristicsMissing, fmt.Errorf("firmware revision unreadable after %d attempts: %w", retries, lastErr))
}

// directUnlock subscribes to all notify-capable characteristics, pauses,
// writes the unlock command, then verifies via a sentinel read.
func (a *authenticator) directUnlock(ctx context.Context, command []byte, sentinel onewheel.Field) error {
	writeChar, ok := a.registry.Field(a.layout, onewheel.FieldSerialWrite)
	if !ok {
		return engineErr(KindCharacteristicsMissing, fmt.Errorf("serial write characteristic not discovered"))
	}

	a.subs.attach(true, a.cfg.Auth.InterSubscribeGap)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(a.cfg.Auth.SubscribePause):
	}

	if err := writeChar.Write(command, a.cfg.Auth.WriteTimeout); err != nil {
		return fmt.Errorf("unlock command write failed: %w", err)
	}

	time.Sleep(a.cfg.Auth.SentinelReadDelay)
	return a.verifySentinel(sentinel)
}

// wakeSweep reads several known characteristics purely to prime the link,
// ignoring individual failures, then checks the battery sentinel.
func (a *authenticator) wakeSweep(ctx context.Context, _ []byte) error {
	for _, field := range onewheel.WakeSweepFields {
		if err := ctx.Err(); err != nil {
			return err
		}
		char, ok := a.registry.Field(a.layout, field)
		if !ok {
			continue
		}
		if _, err := char.Read(a.cfg.Auth.ReadTimeout); err != nil {
			a.logger.WithFields(logrus.Fields{
				"field": field.String(),
				"error": err,
			}).Debug("Wake sweep read failed")
		}
	}
	return a.verifySentinel(onewheel.FieldBatteryPercent)
}

// verifySentinel reads one characteristic and requires a decodable value.
func (a *authenticator) verifySentinel(field onewheel.Field) error {
	char, ok := a.registry.Field(a.layout, field)
	if !ok {
		return engineErr(KindCharacteristicsMissing, fmt.Errorf("sentinel %s characteristic not discovered", field))
	}
	data, err := char.Read(a.cfg.Auth.ReadTimeout)
	if err != nil {
		return fmt.Errorf("sentinel %s read failed: %w", field, err)
	}
	if _, err := onewheel.Decode(field, data); err != nil {
		return fmt.Errorf("sentinel %s not decodable: %w", field, err)
	}
	return nil
}

// challengeResponse runs the classic or modified challenge flow: subscribe
// to the serial read channel, trigger a challenge by writing the firmware
// bytes back, accumulate notifications, validate the signature, answer.
func (a *authenticator) challengeResponse(ctx context.Context, firmware []byte, modified bool) error {
	readChar, ok := a.registry.Field(a.layout, onewheel.FieldSerialRead)
	if !ok {
		return engineErr(KindCharacteristicsMissing, fmt.Errorf("serial read characteristic not discovered"))
	}
	fwChar, ok := a.registry.Field(a.layout, onewheel.FieldFirmwareRevision)
	if !ok {
		return engineErr(KindCharacteristicsMissing, fmt.Errorf("firmware revision characteristic not discovered"))
	}

	minLen := onewheel.ClassicMinChallengeLen
	if modified {
		minLen = onewheel.ModifiedMinChallengeLen
	}

	var mu sync.Mutex
	var challenge []byte
	arrived := make(chan struct{}, 1)

	if err := readChar.Subscribe(func(data []byte) {
		mu.Lock()
		challenge = append(challenge, data...)
		mu.Unlock()
		select {
		case arrived <- struct{}{}:
		default:
		}
	}); err != nil {
		return fmt.Errorf("failed to subscribe for challenge: %w", err)
	}
	defer func() {
		if err := readChar.Unsubscribe(); err != nil {
			a.logger.WithField("error", err).Debug("Challenge channel unsubscribe failed")
		}
	}()

	// Writing the firmware bytes back triggers the challenge.
	if err := fwChar.Write(firmware, a.cfg.Auth.WriteTimeout); err != nil {
		return fmt.Errorf("challenge trigger write failed: %w", err)
	}

	buf, err := a.awaitChallenge(ctx, &mu, &challenge, arrived, minLen, a.cfg.ChallengeWait(modified), modified)
	if err != nil {
		return err
	}

	if !onewheel.HasSignature(buf) {
		return engineErr(KindInvalidChallengeSignature, fmt.Errorf("challenge is % x", buf[:min(len(buf), 3)]))
	}

	var response []byte
	if modified {
		response, err = onewheel.ModifiedResponse(buf)
	} else {
		response, err = onewheel.ClassicResponse(buf)
	}
	if err != nil {
		return engineErr(KindInvalidChallengeSignature, err)
	}

	if err := readChar.Write(response, a.cfg.Auth.WriteTimeout); err != nil {
		return fmt.Errorf("challenge response write failed: %w", err)
	}

	// Brief settle before the board accepts further traffic.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(a.cfg.Auth.SettleDelay):
	}
	return nil
}

// awaitChallenge accumulates challenge bytes until minLen is reached or the
// wait expires. A timeout with a non-empty partial buffer proceeds; a
// zero-byte timeout on the modified flow issues one alternate trigger write
// and grants a short extra window before failing.
func (a *authenticator) awaitChallenge(ctx context.Context, mu *sync.Mutex, challenge *[]byte,
	arrived <-chan struct{}, minLen int, wait time.Duration, modified bool) ([]byte, error) {

	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	retriggered := false
	for {
		mu.Lock()
		buf := append([]byte(nil), (*challenge)...)
		mu.Unlock()
		if len(buf) >= minLen {
			return buf, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-arrived:
		case <-deadline.C:
			if len(buf) > 0 {
				a.logger.WithField("bytes", len(buf)).Warn("Challenge wait expired with partial buffer, proceeding")
				return buf, nil
			}
			if modified && !retriggered {
				retriggered = true
				a.logger.Warn("Challenge wait expired with zero bytes, issuing alternate trigger")
				if writeChar, ok := a.registry.Field(a.layout, onewheel.FieldSerialWrite); ok {
					if err := writeChar.Write(onewheel.AlternateChallengeTrigger, a.cfg.Auth.WriteTimeout); err != nil {
						a.logger.WithField("error", err).Debug("Alternate trigger write failed")
					}
				}
				deadline.Reset(a.cfg.Auth.SubscribePause)
				continue
			}
			return nil, engineErr(KindChallengeTimeout, fmt.Errorf("no challenge bytes within %v", wait))
		}
	}
}

// describeStrategies renders a model's strategy order for diagnostics.
func (a *authenticator) describeStrategies(model onewheel.Model) string {
	names := make([]string, 0, 4)
	for _, s := range a.strategiesFor(model) {
		names = append(names, s.name)
	}
	return strings.Join(names, " -> ")
}
