// internal/poller/modbus/tcp/transport.go
package tcp

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"

	pmodbus "github.com/tamzrod/counterpoll/internal/poller/modbus"
)

// DefaultDialTimeout applies when the dial context has no deadline.
const DefaultDialTimeout = 5 * time.Second

var errNoRequest = errors.New("modbus tcp: receive without a pending request")

// Transport dials goburrow TCP handlers. The handler frames one response
// by its MBAP length field, which is all the session needs from a socket.
type Transport struct {
	// IdleTimeout closes a connection left unused (goburrow default 60s when zero).
	IdleTimeout time.Duration
	Logger      zerolog.Logger
}

// New returns a transport logging wire traffic at debug level on l.
func New(l zerolog.Logger) *Transport {
	return &Transport{Logger: l}
}

// Dial implements pmodbus.Transport.
func (t *Transport) Dial(ctx context.Context, address string) (pmodbus.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := modbus.NewTCPClientHandler(address)
	h.Timeout = DefaultDialTimeout
	if dl, ok := ctx.Deadline(); ok {
		h.Timeout = time.Until(dl)
		if h.Timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	if t.IdleTimeout > 0 {
		h.IdleTimeout = t.IdleTimeout
	}
	if t.Logger.GetLevel() <= zerolog.DebugLevel {
		wire := t.Logger.With().Str("endpoint", address).Logger()
		h.Logger = log.New(debugWriter{wire}, "", 0)
	}

	if err := h.Connect(); err != nil {
		return nil, err
	}
	return &conn{h: h}, nil
}

// conn adapts the handler's combined write+read to Send/Receive.
type conn struct {
	mu      sync.Mutex
	h       *modbus.TCPClientHandler
	pending []byte
}

func (c *conn) Send(adu []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending[:0], adu...)
	return nil
}

func (c *conn) Receive(timeout time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return nil, errNoRequest
	}
	req := c.pending
	c.pending = nil

	c.h.Timeout = timeout
	resp, err := c.h.Send(req)
	if err != nil {
		return nil, err
	}
	// goburrow returns a slice of its own buffer
	return append([]byte(nil), resp...), nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.h.Close()
}

// debugWriter bridges goburrow's *log.Logger into zerolog.
type debugWriter struct {
	l zerolog.Logger
}

func (w debugWriter) Write(p []byte) (int, error) {
	n := len(p)
	for n > 0 && (p[n-1] == '\n' || p[n-1] == '\r') {
		n--
	}
	w.l.Debug().Msg(string(p[:n]))
	return len(p), nil
}
