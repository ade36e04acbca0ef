// internal/poller/modbus/session.go
package modbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConnPolicy decides what happens to a connection after a successful exchange.
type ConnPolicy int

const (
	// Persistent keeps the connection for the next read.
	Persistent ConnPolicy = iota
	// PerRequest closes the connection after every read.
	PerRequest
)

func (p ConnPolicy) String() string {
	if p == PerRequest {
		return "per_request"
	}
	return "persistent"
}

// ParseConnPolicy accepts "persistent" / "per_request". Empty means Persistent.
func ParseConnPolicy(s string) (ConnPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "persistent":
		return Persistent, nil
	case "per_request", "perrequest":
		return PerRequest, nil
	}
	return 0, fmt.Errorf("%w: unknown connection policy %q", ErrInvalidRequest, s)
}

// Session owns one logical connection to one endpoint.
// Reads are serialized: one outstanding request per connection.
type Session struct {
	ep     Endpoint
	tr     Transport
	policy ConnPolicy
	log    zerolog.Logger

	mu   sync.Mutex
	conn Conn
	tid  uint16
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithPolicy sets the connection policy (default Persistent).
func WithPolicy(p ConnPolicy) SessionOption {
	return func(s *Session) { s.policy = p }
}

// WithSessionLogger sets the session logger (default no-op).
func WithSessionLogger(l zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// WithInitialTransactionID seeds the counter. The first request carries tid+1.
func WithInitialTransactionID(tid uint16) SessionOption {
	return func(s *Session) { s.tid = tid }
}

// NewSession creates a session. No connection is made until the first read.
func NewSession(ep Endpoint, tr Transport, opts ...SessionOption) *Session {
	s := &Session{
		ep:  ep,
		tr:  tr,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("device", ep.Label).Str("endpoint", ep.Address).Logger()
	return s
}

// Endpoint returns the endpoint this session talks to.
func (s *Session) Endpoint() Endpoint { return s.ep }

// ReadHoldingRegisters performs one request/response exchange.
// ctx and timeout bound connection setup; timeout bounds the wait for the response.
func (s *Session) ReadHoldingRegisters(ctx context.Context, address, quantity uint16, timeout time.Duration) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tid := s.nextTID()
	req, err := Encode(tid, s.ep.UnitID, address, quantity)
	if err != nil {
		return nil, err
	}

	conn, err := s.acquire(ctx, timeout)
	if err != nil {
		return nil, err
	}

	if err := conn.Send(req); err != nil {
		s.drop("send", err)
		return nil, classifyTransport(err)
	}

	raw, err := conn.Receive(timeout)
	if err != nil {
		s.drop("receive", err)
		return nil, classifyTransport(err)
	}

	resp, err := Decode(raw, tid)
	if err != nil {
		var exc *ExceptionError
		if !errors.As(err, &exc) {
			// stream may be out of step with our transaction ids
			s.drop("decode", err)
		} else if s.policy == PerRequest {
			_ = s.release()
		}
		return nil, err
	}

	if len(resp.Registers) != int(quantity) {
		err := fmt.Errorf("%w: %d registers, requested %d", ErrShortFrame, len(resp.Registers), quantity)
		s.drop("decode", err)
		return nil, err
	}

	if resp.UnitID != s.ep.UnitID {
		s.log.Debug().Uint8("want_unit", s.ep.UnitID).Uint8("got_unit", resp.UnitID).Msg("unit id rewritten by gateway")
	}

	if s.policy == PerRequest {
		s.release()
	}
	return resp.Registers, nil
}

// Close releases the connection, if any.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.release()
}

// ---- internal (callers hold mu) ----

func (s *Session) nextTID() uint16 {
	s.tid++
	return s.tid
}

// acquire dials on demand. Every dial failure, timeouts included, is
// reported as unreachable.
func (s *Session) acquire(ctx context.Context, timeout time.Duration) (Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, &UnreachableError{Cause: err}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	conn, err := s.tr.Dial(ctx, s.ep.Address)
	if err != nil {
		s.log.Debug().Err(err).Msg("dial failed")
		var ue *UnreachableError
		if errors.As(err, &ue) {
			return nil, err
		}
		return nil, &UnreachableError{Cause: err}
	}
	s.conn = conn
	return conn, nil
}

func (s *Session) drop(stage string, cause error) {
	s.log.Debug().Err(cause).Str("stage", stage).Msg("dropping connection")
	_ = s.release()
}

func (s *Session) release() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
