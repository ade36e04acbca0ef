// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/counterpoll/internal/poller/modbus"
)

// DefaultTimeout is the per-read response budget.
const DefaultTimeout = 3 * time.Second

// ErrInvalidState is returned on lifecycle misuse.
var ErrInvalidState = errors.New("poller: invalid state")

// Poller polls targets on a fixed interval and reports value changes.
//
// Reads to different targets in one cycle run concurrently; channels of
// one target are read one after another. Poll State is owned by the cycle
// goroutine and updated as each read completes.
type Poller struct {
	out     chan<- Event
	timeout time.Duration
	log     zerolog.Logger
	metrics *Metrics
	now     func() time.Time

	mu    sync.Mutex
	state State

	// fixed at Start
	targets  []Target
	interval time.Duration
	stopCh   chan struct{}
	done     chan struct{}

	// cycle goroutine only
	last   map[stateKey]uint64
	failed map[stateKey]bool
}

// Option configures a Poller.
type Option func(*Poller)

// WithTimeout sets the per-read timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Poller) { p.timeout = d }
}

// WithLogger sets the logger (default no-op).
func WithLogger(l zerolog.Logger) Option {
	return func(p *Poller) { p.log = l }
}

// WithMetrics records reads, values and cycle durations.
func WithMetrics(m *Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// New creates an idle poller emitting on out.
// The caller must keep draining out; a blocked consumer stalls the cycle.
func New(out chan<- Event, opts ...Option) *Poller {
	p := &Poller{
		out:     out,
		timeout: DefaultTimeout,
		log:     zerolog.Nop(),
		now:     time.Now,
		state:   Idle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start validates targets and begins polling. The first cycle starts immediately.
func (p *Poller) Start(targets []Target, interval time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Idle {
		return fmt.Errorf("%w: start while %s", ErrInvalidState, p.state)
	}
	if err := validateTargets(targets, interval); err != nil {
		return err
	}

	p.targets = append([]Target(nil), targets...)
	p.interval = interval
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	p.last = make(map[stateKey]uint64)
	p.failed = make(map[stateKey]bool)
	p.state = Running

	p.log.Info().
		Int("devices", len(targets)).
		Dur("interval", interval).
		Dur("timeout", p.timeout).
		Msg("poller started")

	go p.run()
	return nil
}

// Stop lets the in-flight cycle finish, then stops. It does not abort reads.
func (p *Poller) Stop() error {
	p.mu.Lock()
	if p.state != Running {
		st := p.state
		p.mu.Unlock()
		return fmt.Errorf("%w: stop while %s", ErrInvalidState, st)
	}
	p.state = Stopping
	close(p.stopCh)
	done := p.done
	p.mu.Unlock()

	<-done

	p.mu.Lock()
	p.state = Stopped
	p.mu.Unlock()

	p.log.Info().Msg("poller stopped")
	return nil
}

func validateTargets(targets []Target, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be > 0", modbus.ErrInvalidRequest)
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: at least one target required", modbus.ErrInvalidRequest)
	}

	labels := make(map[string]bool, len(targets))
	for _, t := range targets {
		if t.Endpoint.Label == "" {
			return fmt.Errorf("%w: target without label", modbus.ErrInvalidRequest)
		}
		if labels[t.Endpoint.Label] {
			return fmt.Errorf("%w: duplicate device %q", modbus.ErrInvalidRequest, t.Endpoint.Label)
		}
		labels[t.Endpoint.Label] = true

		if t.Reader == nil {
			return fmt.Errorf("%w: device %q has no reader", modbus.ErrInvalidRequest, t.Endpoint.Label)
		}
		if len(t.Channels) == 0 {
			return fmt.Errorf("%w: device %q has no channels", modbus.ErrInvalidRequest, t.Endpoint.Label)
		}

		names := make(map[string]bool, len(t.Channels))
		for _, ch := range t.Channels {
			if names[ch.Name] {
				return fmt.Errorf("%w: device %q: duplicate channel %q", modbus.ErrInvalidRequest, t.Endpoint.Label, ch.Name)
			}
			names[ch.Name] = true

			if ch.quantity() < 2 {
				return fmt.Errorf("%w: device %q channel %q: %d register(s)",
					modbus.ErrInsufficientRegisters, t.Endpoint.Label, ch.Name, ch.quantity())
			}
		}
	}
	return nil
}

// ---- one cycle ----

// pollOnce reads every channel of every target once and emits events.
func (p *Poller) pollOnce(ctx context.Context, cycle uint64) {
	started := time.Now()

	results := make(chan readResult)
	var wg sync.WaitGroup

	for i := range p.targets {
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			for _, ch := range t.Channels {
				regs, err := t.Reader.ReadHoldingRegisters(ctx, ch.Address, ch.quantity(), p.timeout)
				results <- readResult{
					device:  t.Endpoint.Label,
					channel: ch,
					regs:    regs,
					err:     err,
					at:      p.now(),
				}
			}
		}(p.targets[i])
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		p.apply(r, cycle)
	}

	p.metrics.observeCycle(time.Since(started))
}

// apply folds one read into Poll State and emits at most one event.
// An unchanged value is silent unless the previous read of the channel failed.
func (p *Poller) apply(r readResult, cycle uint64) {
	ev := Event{
		Device:  r.device,
		Channel: r.channel.Name,
		Cycle:   cycle,
		At:      r.at,
	}

	key := stateKey{device: r.device, channel: r.channel.Name}

	err := r.err
	var value uint64
	if err == nil {
		value, err = modbus.Combine(r.regs, r.channel.Order)
	}

	if err != nil {
		p.failed[key] = true
		ev.Kind = EventReadFailure
		ev.Err = err
		ev.ErrKind = modbus.KindOf(err)
		p.metrics.observeRead(r.device, ev.ErrKind.String())
		p.log.Debug().Err(err).Str("device", r.device).Str("channel", r.channel.Name).Msg("read failed")
		p.emit(ev)
		return
	}

	p.metrics.observeRead(r.device, "ok")
	p.metrics.observeValue(r.device, r.channel.Name, value)

	recovering := p.failed[key]
	delete(p.failed, key)

	prev, seen := p.last[key]
	switch {
	case !seen:
		p.last[key] = value
		ev.Kind = EventSnapshot
		ev.Value = value
	case prev != value:
		p.last[key] = value
		ev.Kind = EventChange
		ev.Value = value
		ev.Previous = prev
		ev.Delta = int64(value) - int64(prev)
		p.metrics.observeChange(r.device, r.channel.Name)
	case recovering:
		ev.Kind = EventRecovered
		ev.Value = value
	default:
		return
	}
	p.emit(ev)
}

func (p *Poller) emit(ev Event) {
	p.out <- ev
}

// Once runs exactly one cycle synchronously with a fresh Poll State,
// emitting snapshot and failure events. Only valid on an idle poller.
func (p *Poller) Once(ctx context.Context, targets []Target) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Idle {
		return fmt.Errorf("%w: once while %s", ErrInvalidState, p.state)
	}
	// interval is irrelevant for a single cycle
	if err := validateTargets(targets, time.Second); err != nil {
		return err
	}

	p.targets = targets
	p.last = make(map[stateKey]uint64)
	p.failed = make(map[stateKey]bool)
	defer func() {
		p.targets = nil
		p.last = nil
		p.failed = nil
	}()

	p.pollOnce(ctx, 1)
	return nil
}
