// internal/poller/modbus/errors.go
package modbus

import (
	"errors"
	"fmt"
	"net"
	"os"

	gmodbus "github.com/goburrow/modbus"
)

// ---- sentinel errors ----

var (
	// ErrInvalidRequest: malformed caller input. Fatal to that call.
	ErrInvalidRequest = errors.New("modbus: invalid request")

	// Decode failures (protocol-level).
	ErrShortFrame          = errors.New("modbus: short frame")
	ErrTransactionMismatch = errors.New("modbus: transaction id mismatch")
	ErrUnexpectedFunction  = errors.New("modbus: unexpected function code")

	// Transport failures.
	ErrTimeout     = errors.New("modbus: timeout")
	ErrUnreachable = errors.New("modbus: unreachable")

	// ErrInsufficientRegisters is a channel geometry bug, not a device fault.
	ErrInsufficientRegisters = errors.New("modbus: insufficient registers")
)

// ExceptionError is a well-formed exception response from the device.
// FunctionCode has the 0x80 bit cleared.
type ExceptionError struct {
	FunctionCode  uint8
	ExceptionCode uint8
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception: fc=%d code=%d (%s)", e.FunctionCode, e.ExceptionCode, exceptionName(e.ExceptionCode))
}

func exceptionName(code uint8) string {
	switch code {
	case gmodbus.ExceptionCodeIllegalFunction:
		return "illegal function"
	case gmodbus.ExceptionCodeIllegalDataAddress:
		return "illegal data address"
	case gmodbus.ExceptionCodeIllegalDataValue:
		return "illegal data value"
	case gmodbus.ExceptionCodeServerDeviceFailure:
		return "server device failure"
	case gmodbus.ExceptionCodeAcknowledge:
		return "acknowledge"
	case gmodbus.ExceptionCodeServerDeviceBusy:
		return "server device busy"
	case gmodbus.ExceptionCodeMemoryParityError:
		return "memory parity error"
	case gmodbus.ExceptionCodeGatewayPathUnavailable:
		return "gateway path unavailable"
	case gmodbus.ExceptionCodeGatewayTargetDeviceFailedToRespond:
		return "gateway target device failed to respond"
	default:
		return "unknown"
	}
}

// UnreachableError wraps a connection-level failure (refused, reset, DNS).
type UnreachableError struct {
	Cause error
}

func (e *UnreachableError) Error() string {
	if e.Cause == nil {
		return ErrUnreachable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrUnreachable, e.Cause)
}

func (e *UnreachableError) Unwrap() error { return e.Cause }

func (e *UnreachableError) Is(target error) bool { return target == ErrUnreachable }

// ---- classification ----

// ErrorKind is the closed set of failure classes reported per read.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidRequest
	KindShortFrame
	KindTransactionMismatch
	KindUnexpectedFunction
	KindException
	KindTimeout
	KindUnreachable
	KindInsufficientRegisters
)

var kindNames = [...]string{
	KindUnknown:               "unknown",
	KindInvalidRequest:        "invalid_request",
	KindShortFrame:            "short_frame",
	KindTransactionMismatch:   "transaction_mismatch",
	KindUnexpectedFunction:    "unexpected_function",
	KindException:             "exception",
	KindTimeout:               "timeout",
	KindUnreachable:           "unreachable",
	KindInsufficientRegisters: "insufficient_registers",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// Transient reports whether the failure means "retry later".
func (k ErrorKind) Transient() bool {
	return k == KindTimeout || k == KindUnreachable
}

// CodeUnknown is reported for errors outside the taxonomy. 0 stays "no error".
const CodeUnknown uint16 = 0xFF

// Code is a stable numeric code for status registers and metrics.
// Exception responses are reported via CodeOf, which carries the exception code.
func (k ErrorKind) Code() uint16 {
	if k <= KindUnknown || int(k) >= len(kindNames) {
		return CodeUnknown
	}
	return uint16(k)
}

// KindOf classifies err. nil is KindUnknown.
func KindOf(err error) ErrorKind {
	var exc *ExceptionError
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &exc):
		return KindException
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrShortFrame):
		return KindShortFrame
	case errors.Is(err, ErrTransactionMismatch):
		return KindTransactionMismatch
	case errors.Is(err, ErrUnexpectedFunction):
		return KindUnexpectedFunction
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrUnreachable):
		return KindUnreachable
	case errors.Is(err, ErrInsufficientRegisters):
		return KindInsufficientRegisters
	}
	return KindUnknown
}

// CodeOf returns a best-effort uint16 code for err.
// Exception responses encode as 0x100 | exception code; 0 means no error.
func CodeOf(err error) uint16 {
	if err == nil {
		return 0
	}
	var exc *ExceptionError
	if errors.As(err, &exc) {
		return 0x100 | uint16(exc.ExceptionCode)
	}
	return KindOf(err).Code()
}

// classifyTransport maps a raw transport error into the taxonomy.
func classifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnreachable) {
		return err
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return &UnreachableError{Cause: err}
}
