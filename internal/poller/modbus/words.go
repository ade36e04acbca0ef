// internal/poller/modbus/words.go
package modbus

import (
	"fmt"
	"strings"
)

// WordOrder says which register of a multi-register value holds the high word.
// Devices disagree and a wrong choice corrupts values silently,
// so the order is always configured per channel.
type WordOrder int

const (
	// LowFirst: registers[0] is the least significant word (ADAM-6051 counters).
	LowFirst WordOrder = iota
	// HighFirst: registers[0] is the most significant word.
	HighFirst
)

// maxCombineRegisters keeps the result within 64 bits.
const maxCombineRegisters = 4

func (o WordOrder) String() string {
	switch o {
	case LowFirst:
		return "low_first"
	case HighFirst:
		return "high_first"
	default:
		return fmt.Sprintf("word_order(%d)", int(o))
	}
}

// ParseWordOrder accepts "low_first" / "high_first" (case-insensitive).
func ParseWordOrder(s string) (WordOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low_first", "lowfirst", "low":
		return LowFirst, nil
	case "high_first", "highfirst", "high":
		return HighFirst, nil
	}
	return 0, fmt.Errorf("%w: unknown word order %q", ErrInvalidRequest, s)
}

// Combine assembles 2..4 registers into one unsigned value.
//
//	Combine([]uint16{lo, hi}, LowFirst)  == hi<<16 | lo
//	Combine([]uint16{hi, lo}, HighFirst) == hi<<16 | lo
func Combine(regs []uint16, order WordOrder) (uint64, error) {
	if len(regs) < 2 {
		return 0, fmt.Errorf("%w: have %d, need at least 2", ErrInsufficientRegisters, len(regs))
	}
	if len(regs) > maxCombineRegisters {
		return 0, fmt.Errorf("%w: %d registers do not fit 64 bits", ErrInvalidRequest, len(regs))
	}

	var v uint64
	switch order {
	case HighFirst:
		for _, r := range regs {
			v = v<<16 | uint64(r)
		}
	case LowFirst:
		for i := len(regs) - 1; i >= 0; i-- {
			v = v<<16 | uint64(regs[i])
		}
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidRequest, order)
	}
	return v, nil
}
