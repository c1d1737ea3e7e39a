// Package goble implements the transport interfaces on top of go-ble/ble.
package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/floatdeck/boardlink/internal/transport"
)

const (
	// DefaultWriteChunkSize is the maximum number of bytes to write in a single
	// BLE operation. BLE 4.0/4.1 ATT_MTU is 23 bytes (20 bytes payload after
	// the ATT header), so 20-byte chunks work on every firmware revision.
	DefaultWriteChunkSize = 20

	// DefaultWriteDelay is the delay between consecutive write chunks.
	DefaultWriteDelay = 10 * time.Millisecond
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
var DeviceFactory = func() (ble.Device, error) {
	dev, err := newPlatformDevice()
	if err != nil {
		// Wrap Bluetooth state errors with clearer messages
		if strings.Contains(err.Error(), "central manager has invalid state") {
			if strings.Contains(err.Error(), "have=4") { // StatePoweredOff
				return nil, fmt.Errorf("Bluetooth is turned off - please enable Bluetooth and retry")
			}
			return nil, fmt.Errorf("Bluetooth is not ready - %w", err)
		}
		return nil, err
	}
	return dev, nil
}

// Transport is a go-ble backed transport.Transport.
type Transport struct {
	logger *logrus.Logger

	mu  sync.Mutex
	dev ble.Device
}

// New creates a go-ble transport. The underlying ble.Device is created lazily
// on first use so importing this package has no side effects.
func New(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{logger: logger}
}

func (t *Transport) device() (ble.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev != nil {
		return t.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)
	t.dev = dev
	return dev, nil
}

// Scan delivers advertisements until ctx is cancelled.
func (t *Transport) Scan(ctx context.Context, allowDup bool, handler func(transport.Advertisement)) error {
	dev, err := t.device()
	if err != nil {
		return err
	}
	return dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(&advertisement{adv: adv})
	})
}

// Dial connects to the peripheral at addr, failing after timeout.
func (t *Transport) Dial(ctx context.Context, addr string, timeout time.Duration) (transport.Connection, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("device address is not set")
	}
	if _, err := t.device(); err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t.logger.WithField("address", addr).Info("Connecting to BLE device...")
	client, err := ble.Dial(dialCtx, ble.NewAddr(addr))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", addr, err)
	}

	conn := &connection{
		client: client,
		logger: t.logger,
	}
	conn.watchDisconnect(client)
	return conn, nil
}

// advertisement wraps ble.Advertisement to implement transport.Advertisement
type advertisement struct {
	adv ble.Advertisement
}

func (a *advertisement) LocalName() string        { return a.adv.LocalName() }
func (a *advertisement) Addr() string             { return a.adv.Addr().String() }
func (a *advertisement) RSSI() int                { return a.adv.RSSI() }
func (a *advertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *advertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }

func (a *advertisement) Services() []string {
	bleServices := a.adv.Services()
	result := make([]string, len(bleServices))
	for i, svc := range bleServices {
		result[i] = svc.String()
	}
	return result
}
