package types

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Wa4h1h/go-tftpd/pkg/utils"
)

// Error is both the TFTP error packet and a Go error, so a failing
// session can hand back exactly what the peer should be told.
type Error struct {
	ErrMsg    string
	ErrorCode ErrCode
}

func NewError(code ErrCode, msg string) *Error {
	return &Error{ErrorCode: code, ErrMsg: msg}
}

func (e *Error) Error() string {
	return fmt.Sprintf("tftp error %d: %s", e.ErrorCode, e.Message())
}

// Message returns ErrMsg or the default text for the code when ErrMsg is empty.
func (e *Error) Message() string {
	if e.ErrMsg != "" {
		return e.ErrMsg
	}

	return defaultErrMsgs[e.ErrorCode]
}

func (e *Error) MarshalBinary() ([]byte, error) {
	if !e.ErrorCode.Wire() {
		return nil, utils.ErrSilentPacket
	}

	msg := e.Message()

	b := make([]byte, 0, HeaderSize+len(msg)+1)
	b = binary.BigEndian.AppendUint16(b, uint16(OpCodeError))
	b = binary.BigEndian.AppendUint16(b, uint16(e.ErrorCode))
	b = append(b, msg...)
	b = append(b, 0)

	return b, nil
}

// UnmarshalBinary requires a known code and a NUL terminated message
// after it. Bytes past the terminator are ignored.
func (e *Error) UnmarshalBinary(data []byte) error {
	if len(data) <= HeaderSize {
		return fmt.Errorf("error packet of %d bytes: %w", len(data), utils.ErrPacketTooShort)
	}

	if OpCode(binary.BigEndian.Uint16(data)) != OpCodeError {
		return utils.ErrWrongOpCode
	}

	code := ErrCode(binary.BigEndian.Uint16(data[2:]))
	if !code.Wire() {
		return fmt.Errorf("error code %d: %w", code, utils.ErrMalformedError)
	}

	end := bytes.IndexByte(data[HeaderSize:], 0)
	if end < 0 {
		return fmt.Errorf("missing null byte: %w", utils.ErrMalformedError)
	}

	e.ErrorCode = code
	e.ErrMsg = string(data[HeaderSize : HeaderSize+end])

	return nil
}
