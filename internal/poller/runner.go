// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// run drives cycles until Stop. interval is measured from the start of
// one cycle to the start of the next; an overrunning cycle is followed
// immediately by the next one. Cycles never overlap and are never skipped.
func (p *Poller) run() {
	defer close(p.done)
	defer func() { p.last = nil }()

	// Stop does not cancel in-flight reads.
	ctx := context.Background()

	var cycle uint64
	for {
		cycle++
		started := time.Now()
		p.pollOnce(ctx, cycle)

		select {
		case <-p.stopCh:
			return
		default:
		}

		wait := p.interval - time.Since(started)
		if wait <= 0 {
			p.log.Warn().
				Uint64("cycle", cycle).
				Dur("took", time.Since(started)).
				Dur("interval", p.interval).
				Msg("poll cycle longer than interval")
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-p.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
