// Package testutils provides an in-memory board peripheral implementing the
// transport interfaces, so engine and scanner tests run without hardware.
package testutils

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/floatdeck/boardlink/internal/onewheel"
	"github.com/floatdeck/boardlink/internal/transport"
)

// FakeAdvertisement is a canned advertising record.
type FakeAdvertisement struct {
	Name          string
	Address       string
	Rssi          int
	ServiceIDs    []string
	IsConnectable bool
	ManufData     []byte
}

func (a *FakeAdvertisement) LocalName() string        { return a.Name }
func (a *FakeAdvertisement) Addr() string             { return a.Address }
func (a *FakeAdvertisement) RSSI() int                { return a.Rssi }
func (a *FakeAdvertisement) Connectable() bool        { return a.IsConnectable }
func (a *FakeAdvertisement) Services() []string       { return a.ServiceIDs }
func (a *FakeAdvertisement) ManufacturerData() []byte { return a.ManufData }

// FakeCharacteristic is one in-memory GATT slot.
type FakeCharacteristic struct {
	uuid  string
	props transport.Properties

	mu       sync.Mutex
	value    []byte
	readErr  error
	writeErr error
	handler  func([]byte)
	writes   [][]byte

	// onWrite observes every successful write, outside the lock.
	onWrite func(c *FakeCharacteristic, data []byte)
}

func (c *FakeCharacteristic) UUID() string                     { return c.uuid }
func (c *FakeCharacteristic) Properties() transport.Properties { return c.props }

func (c *FakeCharacteristic) Read(_ time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	return append([]byte(nil), c.value...), nil
}

func (c *FakeCharacteristic) Write(data []byte, _ time.Duration) error {
	c.mu.Lock()
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return err
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	hook := c.onWrite
	c.mu.Unlock()
	if hook != nil {
		hook(c, data)
	}
	return nil
}

func (c *FakeCharacteristic) Subscribe(handler func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.props.Notifiable() {
		return transport.ErrUnsupported
	}
	c.handler = handler
	return nil
}

func (c *FakeCharacteristic) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = nil
	return nil
}

// Notify delivers a payload to the current subscriber, if any.
func (c *FakeCharacteristic) Notify(data []byte) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(data)
	}
}

// Subscribed reports whether a notification handler is attached.
func (c *FakeCharacteristic) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

// SetValue replaces the readable value.
func (c *FakeCharacteristic) SetValue(value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = append([]byte(nil), value...)
}

// SetReadError makes subsequent reads fail.
func (c *FakeCharacteristic) SetReadError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// SetWriteError makes subsequent writes fail.
func (c *FakeCharacteristic) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// OnWrite registers an observer invoked after every successful write.
func (c *FakeCharacteristic) OnWrite(hook func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWrite = func(_ *FakeCharacteristic, data []byte) { hook(data) }
}

// Writes returns a copy of all recorded writes.
func (c *FakeCharacteristic) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([][]byte, len(c.writes))
	for i, w := range c.writes {
		result[i] = append([]byte(nil), w...)
	}
	return result
}

// FakeService groups characteristics under one service UUID.
type FakeService struct {
	ServiceUUID string
	Chars       []*FakeCharacteristic
}

func (s *FakeService) UUID() string { return s.ServiceUUID }

func (s *FakeService) Characteristics() []transport.Characteristic {
	result := make([]transport.Characteristic, len(s.Chars))
	for i, c := range s.Chars {
		result[i] = c
	}
	return result
}

// FakeConnection is an in-memory transport.Connection.
type FakeConnection struct {
	services    []transport.Service
	discoverErr error
	connected   atomic.Bool
	closed      atomic.Bool
}

func (c *FakeConnection) DiscoverServices(_ context.Context) ([]transport.Service, error) {
	if c.discoverErr != nil {
		return nil, c.discoverErr
	}
	return c.services, nil
}

func (c *FakeConnection) IsConnected() bool { return c.connected.Load() }

func (c *FakeConnection) Close() error {
	c.closed.Store(true)
	c.connected.Store(false)
	return nil
}

// WasClosed reports whether Close has been called.
func (c *FakeConnection) WasClosed() bool { return c.closed.Load() }

// SetConnected flips the reported link status, for watchdog tests.
func (c *FakeConnection) SetConnected(up bool) { c.connected.Store(up) }

// FakeBoard is the whole peripheral: advertisements, a dialable connection,
// and the CRX challenge behavior of real firmware.
type FakeBoard struct {
	Name     string
	Address  string
	Layout   onewheel.Layout
	Firmware []byte

	// Challenge emitted when the firmware characteristic is written back.
	Challenge     []byte
	EmitChallenge bool

	mu        sync.Mutex
	dialsLeft int // remaining dials to fail
	dialCount int
	conn      *FakeConnection
	chars     map[onewheel.Field]*FakeCharacteristic

	Advertisements []*FakeAdvertisement
}

// NewClassicBoard builds a Pint-style board with the classic characteristic
// layout, a valid 20-byte CRX challenge, and plausible telemetry values.
func NewClassicBoard(name, addr string) *FakeBoard {
	b := &FakeBoard{
		Name:          name,
		Address:       addr,
		Layout:        onewheel.LayoutClassic,
		Firmware:      []byte{0x10, 0x26},
		Challenge:     ValidChallenge(20),
		EmitChallenge: true,
	}
	b.build()
	return b
}

// NewGTSBoard builds a GT-S board with the extended layout.
func NewGTSBoard(name, addr string) *FakeBoard {
	b := &FakeBoard{
		Name:          name,
		Address:       addr,
		Layout:        onewheel.LayoutExtended,
		Firmware:      []byte("GTS6050"),
		Challenge:     ValidChallenge(20),
		EmitChallenge: true,
	}
	b.build()
	return b
}

// ValidChallenge returns a CRX-signed challenge of the given length.
func ValidChallenge(length int) []byte {
	challenge := make([]byte, length)
	challenge[0], challenge[1], challenge[2] = 0x43, 0x52, 0x58
	for i := 3; i < length-1; i++ {
		challenge[i] = byte(i * 7)
	}
	challenge[length-1] = onewheel.Checksum(challenge[:length-1])
	return challenge
}

// build populates the GATT table for the board's layout.
func (b *FakeBoard) build() {
	b.chars = make(map[onewheel.Field]*FakeCharacteristic)

	values := map[onewheel.Field][]byte{
		onewheel.FieldSerialNumber:     []byte("OW123456"),
		onewheel.FieldRideMode:         {0x04},
		onewheel.FieldBatteryPercent:   {77},
		onewheel.FieldPitch:            {0x2e, 0xfb}, // -12.34 deg
		onewheel.FieldRoll:             {0x00, 0x00},
		onewheel.FieldYaw:              {0x00, 0x00},
		onewheel.FieldTripOdometer:     {0xe8, 0x03, 0x00, 0x00}, // 1.000 km
		onewheel.FieldRPM:              {0xb0, 0x04},             // 1200
		onewheel.FieldTemperature:      {0x94, 0x11},             // 45.00 C
		onewheel.FieldFirmwareRevision: b.Firmware,
		onewheel.FieldCurrent:          {0x4a, 0x01}, // 3.30 A
		onewheel.FieldVoltage:          {0x0e, 0x16}, // 56.46 V
		onewheel.FieldLifetimeOdometer: {0x10, 0x27, 0x00, 0x00}, // 10.000 km
		onewheel.FieldSerialRead:       {},
		onewheel.FieldSerialWrite:      {},
	}

	fields := []onewheel.Field{
		onewheel.FieldSerialNumber, onewheel.FieldRideMode, onewheel.FieldBatteryPercent,
		onewheel.FieldPitch, onewheel.FieldRoll, onewheel.FieldYaw,
		onewheel.FieldTripOdometer, onewheel.FieldRPM, onewheel.FieldTemperature,
		onewheel.FieldFirmwareRevision, onewheel.FieldCurrent, onewheel.FieldVoltage,
		onewheel.FieldLifetimeOdometer, onewheel.FieldSerialRead, onewheel.FieldSerialWrite,
	}
	for _, field := range fields {
		props := transport.PropertyRead | transport.PropertyNotify
		if field == onewheel.FieldSerialWrite {
			props = transport.PropertyWrite
		}
		if field == onewheel.FieldSerialRead || field == onewheel.FieldFirmwareRevision {
			props |= transport.PropertyWrite
		}
		b.chars[field] = &FakeCharacteristic{
			uuid:  b.Layout.UUIDFor(field),
			props: props,
			value: values[field],
		}
	}

	// Writing the firmware bytes back triggers the challenge on the
	// serial read channel, like real firmware.
	fwChar := b.chars[onewheel.FieldFirmwareRevision]
	readChar := b.chars[onewheel.FieldSerialRead]
	fwChar.onWrite = func(_ *FakeCharacteristic, _ []byte) {
		if b.EmitChallenge {
			readChar.Notify(b.Challenge)
		}
	}

	b.Advertisements = []*FakeAdvertisement{{
		Name:          b.Name,
		Address:       b.Address,
		Rssi:          -55,
		ServiceIDs:    []string{onewheel.ServiceUUID},
		IsConnectable: true,
	}}
}

// Char returns the characteristic carrying a field.
func (b *FakeBoard) Char(field onewheel.Field) *FakeCharacteristic {
	return b.chars[field]
}

// FailDials makes the next n Dial calls fail.
func (b *FakeBoard) FailDials(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialsLeft = n
}

// DialCount returns the number of Dial calls observed.
func (b *FakeBoard) DialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dialCount
}

// Connection returns the live connection from the last successful Dial.
func (b *FakeBoard) Connection() *FakeConnection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn
}

// Scan implements transport.Scanner by replaying the advertisements once.
func (b *FakeBoard) Scan(ctx context.Context, _ bool, handler func(transport.Advertisement)) error {
	for _, adv := range b.Advertisements {
		if err := ctx.Err(); err != nil {
			return err
		}
		handler(adv)
	}
	return nil
}

// Dial implements transport.Dialer.
func (b *FakeBoard) Dial(_ context.Context, addr string, _ time.Duration) (transport.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialCount++
	if b.dialsLeft > 0 {
		b.dialsLeft--
		return nil, fmt.Errorf("dial %s: connection refused", addr)
	}
	if addr != b.Address {
		return nil, fmt.Errorf("dial %s: no such device", addr)
	}

	service := &FakeService{ServiceUUID: onewheel.ServiceUUID}
	for _, char := range b.chars {
		service.Chars = append(service.Chars, char)
	}
	conn := &FakeConnection{services: []transport.Service{service}}
	conn.connected.Store(true)
	b.conn = conn
	return conn, nil
}
