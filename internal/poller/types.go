// internal/poller/types.go
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/tamzrod/counterpoll/internal/poller/modbus"
)

// RegisterReader is the part of *modbus.Session the poller uses.
type RegisterReader interface {
	ReadHoldingRegisters(ctx context.Context, address, quantity uint16, timeout time.Duration) ([]uint16, error)
}

// Channel is one counter: Registers consecutive holding registers at Address.
type Channel struct {
	Name      string
	Address   uint16
	Registers uint16 // 0 means 2
	Order     modbus.WordOrder
}

func (c Channel) quantity() uint16 {
	if c.Registers == 0 {
		return 2
	}
	return c.Registers
}

// Target is one device and the channels polled on it.
type Target struct {
	Endpoint modbus.Endpoint
	Reader   RegisterReader
	Channels []Channel
}

// ---- events ----

// EventKind tells snapshot, change and read-failure events apart.
type EventKind int

const (
	// EventSnapshot is the first successful read of a channel. No delta.
	EventSnapshot EventKind = iota
	// EventChange carries the new value and the raw difference to the previous one.
	EventChange
	// EventReadFailure leaves Poll State untouched.
	EventReadFailure
	// EventRecovered is the first successful read after a failure when the
	// value did not move. It carries the value and no delta.
	EventRecovered
)

func (k EventKind) String() string {
	switch k {
	case EventSnapshot:
		return "snapshot"
	case EventChange:
		return "change"
	case EventReadFailure:
		return "read_failure"
	case EventRecovered:
		return "recovered"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is emitted by the poller on its output channel.
type Event struct {
	Kind    EventKind
	Device  string
	Channel string
	Cycle   uint64
	At      time.Time

	// snapshot / change / recovered
	Value    uint64
	Previous uint64 // change only
	Delta    int64  // change only; negative on counter reset or rollover

	// read failure
	Err     error
	ErrKind modbus.ErrorKind
}

// ---- state machine ----

// State is the poller lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// stateKey identifies one entry of Poll State.
type stateKey struct {
	device  string
	channel string
}

// readResult is one finished read, handed to the cycle goroutine.
type readResult struct {
	device  string
	channel Channel
	regs    []uint16
	err     error
	at      time.Time
}
