// internal/poller/builder.go
package poller

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/counterpoll/internal/config"
	pmodbus "github.com/tamzrod/counterpoll/internal/poller/modbus"
)

// Build turns a validated, normalized config into poll targets.
// One Session per device; sessions dial lazily on first read.
// The returned closer closes every session.
func Build(c *cfg.Config, tr pmodbus.Transport, log zerolog.Logger) ([]Target, func() error, error) {
	targets := make([]Target, 0, len(c.Devices))
	sessions := make([]*pmodbus.Session, 0, len(c.Devices))

	closeAll := func() error {
		var errs []error
		for _, s := range sessions {
			if err := s.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.Endpoint().Label, err))
			}
		}
		return errors.Join(errs...)
	}

	for _, d := range c.Devices {
		policy, err := pmodbus.ParseConnPolicy(d.Connection)
		if err != nil {
			return nil, nil, fmt.Errorf("device %q: %w", d.Label, err)
		}
		order, err := pmodbus.ParseWordOrder(d.WordOrder)
		if err != nil {
			return nil, nil, fmt.Errorf("device %q: %w", d.Label, err)
		}

		ep := pmodbus.Endpoint{
			Label:   d.Label,
			Address: d.Endpoint,
			UnitID:  d.UnitID,
		}

		s := pmodbus.NewSession(ep, tr,
			pmodbus.WithPolicy(policy),
			pmodbus.WithSessionLogger(log),
			pmodbus.WithInitialTransactionID(randomTID()),
		)
		sessions = append(sessions, s)

		channels := make([]Channel, 0, len(d.Channels))
		for _, ch := range d.Channels {
			channels = append(channels, Channel{
				Name:      ch.Name,
				Address:   ch.Address,
				Registers: ch.Registers,
				Order:     order,
			})
		}

		targets = append(targets, Target{
			Endpoint: ep,
			Reader:   s,
			Channels: channels,
		})
	}

	return targets, closeAll, nil
}

// randomTID picks a starting transaction id (best effort) so a restarted
// poller does not reuse the ids of its previous run.
func randomTID() uint16 {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return binary.BigEndian.Uint16(b[:])
}
