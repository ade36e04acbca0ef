// internal/poller/modbus/frame.go
package modbus

import (
	"encoding/binary"
	"fmt"

	gmodbus "github.com/goburrow/modbus"
)

const (
	// FuncCodeReadHoldingRegisters is the only function this client issues.
	FuncCodeReadHoldingRegisters uint8 = gmodbus.FuncCodeReadHoldingRegisters

	// MaxReadQuantity is the protocol's maximum single-request span.
	MaxReadQuantity = 125

	// RequestLength is MBAP(7) + PDU(5).
	RequestLength = 12

	// HeaderLength is MBAP(7) + function code(1).
	HeaderLength = 8

	exceptionBit = 0x80
)

// Response is a decoded read-holding-registers response.
type Response struct {
	TransactionID uint16
	ProtocolID    uint16
	Length        uint16
	UnitID        uint8
	Function      uint8
	Registers     []uint16
}

// Encode builds a Modbus TCP read-holding-registers ADU.
//
// MBAP:
//
//	TID(2) PID(2=0) LEN(2=6) UID(1)
//
// PDU:
//
//	FC(1=3) Address(2) Quantity(2)
func Encode(tid uint16, unitID uint8, address, quantity uint16) ([]byte, error) {
	if quantity < 1 || quantity > MaxReadQuantity {
		return nil, fmt.Errorf("%w: quantity %d out of range 1..%d", ErrInvalidRequest, quantity, MaxReadQuantity)
	}
	if uint32(address)+uint32(quantity) > 0x10000 {
		return nil, fmt.Errorf("%w: span %d+%d runs past register 65535", ErrInvalidRequest, address, quantity)
	}

	// Length = UnitID(1) + PDU(1+2+2) = 6
	const protoID uint16 = 0
	const length uint16 = 6

	adu := make([]byte, RequestLength)
	binary.BigEndian.PutUint16(adu[0:2], tid)
	binary.BigEndian.PutUint16(adu[2:4], protoID)
	binary.BigEndian.PutUint16(adu[4:6], length)
	adu[6] = unitID

	adu[7] = FuncCodeReadHoldingRegisters
	binary.BigEndian.PutUint16(adu[8:10], address)
	binary.BigEndian.PutUint16(adu[10:12], quantity)

	return adu, nil
}

// Decode parses a response ADU for the request tagged tid.
// adu is never modified; Registers is a fresh slice.
func Decode(adu []byte, tid uint16) (*Response, error) {
	if len(adu) < HeaderLength {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrShortFrame, len(adu), HeaderLength)
	}

	resp := &Response{
		TransactionID: binary.BigEndian.Uint16(adu[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(adu[2:4]),
		Length:        binary.BigEndian.Uint16(adu[4:6]),
		UnitID:        adu[6],
		Function:      adu[7],
	}

	if resp.TransactionID != tid {
		return nil, fmt.Errorf("%w: got=%d want=%d", ErrTransactionMismatch, resp.TransactionID, tid)
	}

	if resp.Function&exceptionBit != 0 {
		if len(adu) < HeaderLength+1 {
			return nil, fmt.Errorf("%w: exception response without exception code", ErrShortFrame)
		}
		return nil, &ExceptionError{
			FunctionCode:  resp.Function &^ exceptionBit,
			ExceptionCode: adu[HeaderLength],
		}
	}

	if resp.Function != FuncCodeReadHoldingRegisters {
		return nil, fmt.Errorf("%w: got=%d want=%d", ErrUnexpectedFunction, resp.Function, FuncCodeReadHoldingRegisters)
	}

	if len(adu) < HeaderLength+1 {
		return nil, fmt.Errorf("%w: missing byte count", ErrShortFrame)
	}
	byteCount := int(adu[HeaderLength])
	if byteCount%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte count %d", ErrShortFrame, byteCount)
	}
	data := adu[HeaderLength+1:]
	if len(data) < byteCount {
		return nil, fmt.Errorf("%w: byte count %d, have %d", ErrShortFrame, byteCount, len(data))
	}

	resp.Registers = unpackRegisters(data[:byteCount])
	return resp, nil
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return out
}
