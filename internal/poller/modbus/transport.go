// internal/poller/modbus/transport.go
package modbus

import (
	"context"
	"net"
	"strconv"
	"time"
)

// DefaultPort is the registered Modbus TCP port.
const DefaultPort = 502

// Transport opens byte-stream connections. Sockets live behind it;
// this package never dials on its own.
type Transport interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// Conn is one connection to one endpoint.
// Receive returns exactly one response ADU or fails after timeout.
type Conn interface {
	Send(adu []byte) error
	Receive(timeout time.Duration) ([]byte, error)
	Close() error
}

// Endpoint identifies one remote unit. Immutable for a poll session.
type Endpoint struct {
	Label   string
	Address string // host:port
	UnitID  uint8
}

// Host returns the host part of Address.
func (e Endpoint) Host() string {
	host, _, err := net.SplitHostPort(e.Address)
	if err != nil {
		return e.Address
	}
	return host
}

// Port returns the port part of Address, DefaultPort if absent.
func (e Endpoint) Port() int {
	_, port, err := net.SplitHostPort(e.Address)
	if err != nil {
		return DefaultPort
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return DefaultPort
	}
	return n
}

func (e Endpoint) String() string {
	return e.Label + "@" + e.Address + "/" + strconv.Itoa(int(e.UnitID))
}
