// internal/poller/modbus/errors_test.go
package modbus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyTransport(t *testing.T) {
	assert.NoError(t, classifyTransport(nil))

	err := classifyTransport(timeoutErr{})
	assert.ErrorIs(t, err, ErrTimeout)

	err = classifyTransport(fmt.Errorf("read: %w", os.ErrDeadlineExceeded))
	assert.ErrorIs(t, err, ErrTimeout)

	err = classifyTransport(syscall.ECONNREFUSED)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED, "cause is kept")

	var ue *UnreachableError
	assert.True(t, errors.As(err, &ue))
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindUnknown},
		{errors.New("boom"), KindUnknown},
		{fmt.Errorf("%w: x", ErrInvalidRequest), KindInvalidRequest},
		{fmt.Errorf("%w: x", ErrShortFrame), KindShortFrame},
		{fmt.Errorf("%w: x", ErrTransactionMismatch), KindTransactionMismatch},
		{fmt.Errorf("%w: x", ErrUnexpectedFunction), KindUnexpectedFunction},
		{&ExceptionError{FunctionCode: 3, ExceptionCode: 2}, KindException},
		{fmt.Errorf("%w: x", ErrTimeout), KindTimeout},
		{&UnreachableError{Cause: context.Canceled}, KindUnreachable},
		{fmt.Errorf("%w: x", ErrInsufficientRegisters), KindInsufficientRegisters},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, KindOf(c.err), "err=%v", c.err)
	}
}

func TestErrorKind_Transient(t *testing.T) {
	assert.True(t, KindTimeout.Transient())
	assert.True(t, KindUnreachable.Transient())
	assert.False(t, KindException.Transient())
	assert.False(t, KindShortFrame.Transient())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, uint16(0), CodeOf(nil))
	assert.Equal(t, uint16(0x102), CodeOf(&ExceptionError{FunctionCode: 3, ExceptionCode: 2}))
	assert.Equal(t, KindTimeout.Code(), CodeOf(ErrTimeout))
	assert.Equal(t, "timeout", KindTimeout.String())
	assert.Equal(t, "unknown", ErrorKind(99).String())
}

func TestCodeOf_UnclassifiedIsNonZero(t *testing.T) {
	code := CodeOf(errors.New("boom"))
	assert.Equal(t, CodeUnknown, code)
	assert.NotZero(t, code)
	assert.Equal(t, CodeUnknown, ErrorKind(99).Code())
}

func TestExceptionError_Message(t *testing.T) {
	err := &ExceptionError{FunctionCode: 3, ExceptionCode: 2}
	assert.Contains(t, err.Error(), "illegal data address")
}
