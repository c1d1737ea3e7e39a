package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/floatdeck/boardlink/internal/onewheel"
	"github.com/floatdeck/boardlink/internal/ringchan"
	"github.com/floatdeck/boardlink/internal/transport"
)

// TelemetryEvent is published after every successfully decoded notification.
type TelemetryEvent struct {
	Field    onewheel.Field
	Value    float64
	Snapshot onewheel.View
}

// subscriptionManager enables notifications on board characteristics and
// routes payloads through the telemetry codec into the shared snapshot.
type subscriptionManager struct {
	logger    *logrus.Logger
	registry  *Registry
	layout    onewheel.Layout
	snapshot  *onewheel.Snapshot
	telemetry *ringchan.RingChannel[TelemetryEvent]

	mu     sync.Mutex
	active []transport.Characteristic
	seen   map[string]bool
	count  atomic.Int32
}

func newSubscriptionManager(logger *logrus.Logger, registry *Registry, layout onewheel.Layout,
	snapshot *onewheel.Snapshot, telemetry *ringchan.RingChannel[TelemetryEvent]) *subscriptionManager {
	return &subscriptionManager{
		logger:    logger,
		registry:  registry,
		layout:    layout,
		snapshot:  snapshot,
		telemetry: telemetry,
		seen:      make(map[string]bool),
	}
}

// attach enables notifications on every notify-capable characteristic. On
// the newer variant the priority subset subscribes first, with a small gap
// between each so the board's stack keeps up.
func (m *subscriptionManager) attach(newer bool, gap time.Duration) {
	if newer {
		for _, field := range onewheel.PrioritySubscribeFields {
			char, ok := m.registry.Field(m.layout, field)
			if !ok || !char.Properties().Notifiable() {
				continue
			}
			m.subscribe(char)
			time.Sleep(gap)
		}
	}

	for _, char := range m.registry.All() {
		if !char.Properties().Notifiable() {
			continue
		}
		m.subscribe(char)
	}
}

// subscribe wires one characteristic to the codec. Already-live slots are
// skipped so repeated attach passes stay cheap; a failed subscription is
// logged and skipped so one bad slot never blocks the rest.
func (m *subscriptionManager) subscribe(char transport.Characteristic) bool {
	uuid := char.UUID()

	m.mu.Lock()
	if m.seen[uuid] {
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	err := char.Subscribe(func(data []byte) {
		m.route(uuid, data)
	})
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"char_uuid": uuid,
			"error":     err,
		}).Warn("Failed to subscribe to characteristic notifications")
		return false
	}

	m.mu.Lock()
	m.active = append(m.active, char)
	m.seen[uuid] = true
	m.mu.Unlock()
	m.count.Add(1)

	m.logger.WithFields(logrus.Fields{
		"char_uuid": uuid,
		"name":      onewheel.CharacteristicName(uuid),
	}).Debug("Subscribed to characteristic notifications")
	return true
}

// route decodes one notification payload and publishes the updated snapshot.
// Decode failures are logged per characteristic and never abort the others.
func (m *subscriptionManager) route(uuid string, data []byte) {
	field, ok := m.layout.FieldFor(uuid)
	if !ok {
		return
	}
	value, err := onewheel.Decode(field, data)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"char_uuid": uuid,
			"field":     field.String(),
			"error":     err,
		}).Debug("Failed to decode notification payload")
		return
	}

	m.snapshot.Apply(field, value)
	m.telemetry.Send(TelemetryEvent{
		Field:    field,
		Value:    value,
		Snapshot: m.snapshot.View(),
	})
}

// detach disables all notifications. Unsubscribe errors are logged only:
// teardown must always run to completion.
func (m *subscriptionManager) detach() {
	m.mu.Lock()
	active := m.active
	m.active = nil
	m.seen = make(map[string]bool)
	m.mu.Unlock()

	for _, char := range active {
		if err := char.Unsubscribe(); err != nil {
			m.logger.WithFields(logrus.Fields{
				"char_uuid": char.UUID(),
				"error":     err,
			}).Warn("Failed to unsubscribe during teardown")
		}
	}
	m.count.Store(0)
}

// subscriptions returns the number of live subscriptions.
func (m *subscriptionManager) subscriptions() int {
	return int(m.count.Load())
}
