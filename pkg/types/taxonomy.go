package types

import (
	"encoding/binary"
	"errors"
	"io/fs"

	"github.com/Wa4h1h/go-tftpd/pkg/utils"
)

var errSilent = &Error{ErrorCode: ErrSilent, ErrMsg: "silent"}

// TranslateIOError maps a local storage failure to the error packet sent
// to the peer.
func TranslateIOError(err error) *Error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return NewError(ErrAccessViolation, "")
	case errors.Is(err, fs.ErrExist):
		return NewError(ErrFileAlreadyExists, "")
	case errors.Is(err, fs.ErrNotExist):
		return NewError(ErrFileNotFound, "")
	default:
		return NewError(ErrNotDefined, "unknown I/O error")
	}
}

// ParseOpCode returns the opcode of a datagram. Datagrams that are too
// short or carry an unknown opcode yield an ErrSilent error and must be
// dropped without reply.
func ParseOpCode(datagram []byte) (OpCode, error) {
	if len(datagram) < 2 {
		return 0, errSilent
	}

	op := OpCode(binary.BigEndian.Uint16(datagram))
	if op < OpCodeRRQ || op > OpCodeError {
		return 0, errSilent
	}

	return op, nil
}

// IsSilent reports whether err must never be answered.
func IsSilent(err error) bool {
	var tftpErr *Error

	if errors.As(err, &tftpErr) {
		return tftpErr.ErrorCode == ErrSilent
	}

	return errors.Is(err, utils.ErrSilentPacket)
}
