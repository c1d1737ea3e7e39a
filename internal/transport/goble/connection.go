package goble

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/floatdeck/boardlink/internal/transport"
)

// connection is a live go-ble client wrapped as transport.Connection
type connection struct {
	client ble.Client
	logger *logrus.Logger

	mu         sync.RWMutex
	writeMutex sync.Mutex
	services   []transport.Service
	closed     atomic.Bool
	lost       atomic.Bool
}

// watchDisconnect monitors the client Disconnected() channel so IsConnected
// reflects link loss reported by the OS stack.
func (c *connection) watchDisconnect(client ble.Client) {
	go func() {
		<-client.Disconnected()
		c.lost.Store(true)
		if c.logger != nil && !c.closed.Load() {
			c.logger.Warn("BLE stack reported disconnection")
		}
	}()
}

func (c *connection) DiscoverServices(ctx context.Context) ([]transport.Service, error) {
	if c.closed.Load() {
		return nil, transport.ErrNotConnected
	}

	type profileResult struct {
		profile *ble.Profile
		err     error
	}
	resultCh := make(chan profileResult, 1)
	go func() {
		p, err := c.client.DiscoverProfile(true)
		resultCh <- profileResult{profile: p, err: err}
	}()

	var profile *ble.Profile
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("service discovery: %w", transport.ErrTimeout)
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("failed to discover profile: %w", result.err)
		}
		profile = result.profile
	}

	services := make([]transport.Service, 0, len(profile.Services))
	for _, bleSvc := range profile.Services {
		svc := &service{uuid: transport.NormalizeUUID(bleSvc.UUID.String())}
		for _, bleChar := range bleSvc.Characteristics {
			c.logger.WithFields(logrus.Fields{
				"service_uuid": svc.uuid,
				"char_uuid":    bleChar.UUID.String(),
			}).Debug("Found characteristic UUID")
			svc.characteristics = append(svc.characteristics, &characteristic{
				uuid:    transport.NormalizeUUID(bleChar.UUID.String()),
				bleChar: bleChar,
				conn:    c,
			})
		}
		// Sort by UUID for consistent ordering
		sort.Slice(svc.characteristics, func(i, j int) bool {
			return svc.characteristics[i].UUID() < svc.characteristics[j].UUID()
		})
		services = append(services, svc)
	}

	c.mu.Lock()
	c.services = services
	c.mu.Unlock()

	c.logger.WithField("services", len(services)).Info("BLE profile discovered")
	return services, nil
}

func (c *connection) IsConnected() bool {
	return !c.closed.Load() && !c.lost.Load()
}

func (c *connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.client.CancelConnection()
	if err != nil {
		c.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return err
	}
	c.logger.Info("BLE device disconnected")
	return nil
}

// service is one discovered GATT service
type service struct {
	uuid            string
	characteristics []*characteristic
}

func (s *service) UUID() string { return s.uuid }

func (s *service) Characteristics() []transport.Characteristic {
	result := make([]transport.Characteristic, len(s.characteristics))
	for i, char := range s.characteristics {
		result[i] = char
	}
	return result
}

// characteristic wraps *ble.Characteristic with time-boxed operations
type characteristic struct {
	uuid       string
	bleChar    *ble.Characteristic
	conn       *connection
	subscribed atomic.Bool
}

func (ch *characteristic) UUID() string { return ch.uuid }

func (ch *characteristic) Properties() transport.Properties {
	var p transport.Properties
	if ch.bleChar.Property&ble.CharRead != 0 {
		p |= transport.PropertyRead
	}
	if ch.bleChar.Property&ble.CharWriteNR != 0 {
		p |= transport.PropertyWriteNoResponse
	}
	if ch.bleChar.Property&ble.CharWrite != 0 {
		p |= transport.PropertyWrite
	}
	if ch.bleChar.Property&ble.CharNotify != 0 {
		p |= transport.PropertyNotify
	}
	if ch.bleChar.Property&ble.CharIndicate != 0 {
		p |= transport.PropertyIndicate
	}
	return p
}

// Read performs a time-boxed characteristic read. The goroutine-plus-select
// shape converts a hung read into a failure instead of blocking forever.
func (ch *characteristic) Read(timeout time.Duration) ([]byte, error) {
	if !ch.conn.IsConnected() {
		return nil, transport.ErrNotConnected
	}

	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		data, err := ch.conn.client.ReadCharacteristic(ch.bleChar)
		resultCh <- readResult{data: data, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("failed to read characteristic %s: %w", ch.uuid, result.err)
		}
		return result.data, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("reading characteristic %s after %v: %w", ch.uuid, timeout, transport.ErrTimeout)
	}
}

// Write sends data in ATT-sized chunks, serialized against other writes on
// the same connection.
func (ch *characteristic) Write(data []byte, timeout time.Duration) error {
	if !ch.conn.IsConnected() {
		return transport.ErrNotConnected
	}

	errCh := make(chan error, 1)
	go func() {
		ch.conn.writeMutex.Lock()
		defer ch.conn.writeMutex.Unlock()
		for len(data) > 0 {
			n := len(data)
			if n > DefaultWriteChunkSize {
				n = DefaultWriteChunkSize
			}
			if err := ch.conn.client.WriteCharacteristic(ch.bleChar, data[:n], false); err != nil {
				errCh <- fmt.Errorf("failed to write characteristic %s: %w", ch.uuid, err)
				return
			}
			data = data[n:]
			time.Sleep(DefaultWriteDelay)
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("writing characteristic %s after %v: %w", ch.uuid, timeout, transport.ErrTimeout)
	}
}

func (ch *characteristic) Subscribe(handler func(data []byte)) error {
	if !ch.conn.IsConnected() {
		return transport.ErrNotConnected
	}
	indicate := ch.bleChar.Property&ble.CharNotify == 0 && ch.bleChar.Property&ble.CharIndicate != 0
	if err := ch.conn.client.Subscribe(ch.bleChar, indicate, handler); err != nil {
		return fmt.Errorf("failed to subscribe to characteristic %s: %w", ch.uuid, err)
	}
	ch.subscribed.Store(true)
	return nil
}

// Unsubscribe tries both notify and indicate modes; failing both is an error.
func (ch *characteristic) Unsubscribe() error {
	if !ch.subscribed.CompareAndSwap(true, false) {
		return nil
	}
	if !ch.conn.IsConnected() {
		return nil
	}
	err1 := ch.conn.client.Unsubscribe(ch.bleChar, false)
	err2 := ch.conn.client.Unsubscribe(ch.bleChar, true)
	if err1 != nil && err2 != nil {
		return fmt.Errorf("failed to unsubscribe from %s: notify=%v, indicate=%v", ch.uuid, err1, err2)
	}
	return nil
}
