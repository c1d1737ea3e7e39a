// Package transport defines the wireless link the board engine is built on:
// scanning for advertisements, dialing a peripheral, discovering its services,
// and reading, writing and subscribing to characteristics. Implementations
// live in sub-packages (goble for real hardware, testutils for fakes).
package transport

import (
	"context"
	"time"
)

// Advertisement is a single received advertising packet.
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Connectable() bool
	Services() []string
	ManufacturerData() []byte
}

// Scanner delivers advertisements to a handler until ctx is cancelled.
type Scanner interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Dialer establishes connections to peripherals by address.
type Dialer interface {
	Dial(ctx context.Context, addr string, timeout time.Duration) (Connection, error)
}

// Transport is the full link capability consumed by the engine.
type Transport interface {
	Scanner
	Dialer
}

// Connection is an established link to one peripheral.
type Connection interface {
	// DiscoverServices walks the peripheral's GATT table. It must be called
	// once before any characteristic access.
	DiscoverServices(ctx context.Context) ([]Service, error)

	// IsConnected reports the live status of the underlying link.
	IsConnected() bool

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// Service is one discovered GATT service.
type Service interface {
	UUID() string
	Characteristics() []Characteristic
}

// Characteristic is an addressable data slot on the peripheral.
type Characteristic interface {
	UUID() string
	Properties() Properties

	// Read returns the current value, failing after timeout.
	Read(timeout time.Duration) ([]byte, error)

	// Write sends data, failing after timeout.
	Write(data []byte, timeout time.Duration) error

	// Subscribe enables notifications, invoking handler per payload. The
	// data slice is only valid for the duration of the callback.
	Subscribe(handler func(data []byte)) error

	// Unsubscribe disables notifications. A no-op when not subscribed.
	Unsubscribe() error
}

// Properties is the characteristic capability bitmask, mirroring the ATT
// property field.
type Properties uint8

const (
	PropertyRead Properties = 1 << iota
	PropertyWriteNoResponse
	PropertyWrite
	PropertyNotify
	PropertyIndicate
)

func (p Properties) Readable() bool   { return p&PropertyRead != 0 }
func (p Properties) Writable() bool   { return p&(PropertyWrite|PropertyWriteNoResponse) != 0 }
func (p Properties) Notifiable() bool { return p&(PropertyNotify|PropertyIndicate) != 0 }
