// internal/writer/writer.go
package writer

import (
	"errors"
	"strings"

	"github.com/tamzrod/counterpoll/internal/status"
)

// MultiWriter fans records and status out to every writer.
// A failing writer does not stop the others.
type MultiWriter struct {
	writers []Writer
}

func Multi(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

func (m *MultiWriter) Write(r Record) error {
	var errs []string
	for _, w := range m.writers {
		if err := w.Write(r); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return joinErrs(errs)
}

// WriteStatus forwards to the writers that also implement StatusWriter.
func (m *MultiWriter) WriteStatus(device string, s status.Snapshot) error {
	var errs []string
	for _, w := range m.writers {
		sw, ok := w.(StatusWriter)
		if !ok {
			continue
		}
		if err := sw.WriteStatus(device, s); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return joinErrs(errs)
}

func joinErrs(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(errs, " | "))
}
