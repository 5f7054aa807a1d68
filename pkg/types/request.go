package types

import (
	"bytes"
	"encoding/binary"
	"strings"
	"unicode/utf8"

	"github.com/Wa4h1h/go-tftpd/pkg/utils"
)

// Request is a read or write request.
type Request struct {
	Filename string
	Mode     Mode
	Opcode   OpCode
}

// MarshalBinary encodes r the way a client would send it.
func (r *Request) MarshalBinary() ([]byte, error) {
	if r.Opcode != OpCodeRRQ && r.Opcode != OpCodeWRQ {
		return nil, utils.ErrWrongOpCode
	}

	mode := r.Mode.String()

	b := make([]byte, 0, 2+len(r.Filename)+1+len(mode)+1)
	b = binary.BigEndian.AppendUint16(b, uint16(r.Opcode))
	b = append(b, r.Filename...)
	b = append(b, 0)
	b = append(b, mode...)
	b = append(b, 0)

	return b, nil
}

// UnmarshalBinary decodes a whole request datagram. Failures other than a
// wrong opcode are *Error values meant for the requester.
func (r *Request) UnmarshalBinary(data []byte) error {
	op, err := ParseOpCode(data)
	if err != nil {
		return err
	}

	if op != OpCodeRRQ && op != OpCodeWRQ {
		return utils.ErrWrongOpCode
	}

	req, err := ParseRequest(data[2:])
	if err != nil {
		return err
	}

	*r = *req
	r.Opcode = op

	return nil
}

// ParseRequest extracts the filename and mode from the bytes following a
// request opcode. Anything after the mode field is ignored.
func ParseRequest(payload []byte) (*Request, error) {
	fields := bytes.SplitN(payload, []byte{0}, 3)

	filename := fields[0]
	if len(filename) == 0 || !utf8.Valid(filename) {
		return nil, NewError(ErrNotDefined, "Invalid filename")
	}

	if len(fields) < 2 || !utf8.Valid(fields[1]) {
		return nil, NewError(ErrNotDefined, "Invalid mode string")
	}

	var mode Mode

	switch strings.ToLower(string(fields[1])) {
	case "netascii":
		mode = ModeNetASCII
	case "octet":
		mode = ModeOctet
	case "email", "mail":
		return nil, NewError(ErrNotDefined, "Email transfer mode is not supported")
	default:
		return nil, NewError(ErrNotDefined, "Unknown transfer mode")
	}

	return &Request{Filename: string(filename), Mode: mode}, nil
}
