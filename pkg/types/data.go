package types

import (
	"encoding/binary"
	"fmt"

	"github.com/Wa4h1h/go-tftpd/pkg/utils"
)

// Data carries one block of a file. A payload shorter than MaxPayloadSize
// ends the transfer.
type Data struct {
	Payload  []byte
	BlockNum uint16
}

func (d *Data) MarshalBinary() ([]byte, error) {
	if len(d.Payload) > MaxPayloadSize {
		return nil, utils.ErrDataPayloadTooBig
	}

	b := make([]byte, 0, HeaderSize+len(d.Payload))
	b = binary.BigEndian.AppendUint16(b, uint16(OpCodeDATA))
	b = binary.BigEndian.AppendUint16(b, d.BlockNum)
	b = append(b, d.Payload...)

	return b, nil
}

// UnmarshalBinary decodes data into d. The payload aliases data, callers
// that reuse their receive buffer must copy it.
func (d *Data) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("data of %d bytes: %w", len(data), utils.ErrPacketTooShort)
	}

	if OpCode(binary.BigEndian.Uint16(data)) != OpCodeDATA {
		return utils.ErrWrongOpCode
	}

	if len(data)-HeaderSize > MaxPayloadSize {
		return utils.ErrDataPayloadTooBig
	}

	d.BlockNum = binary.BigEndian.Uint16(data[2:])
	d.Payload = data[HeaderSize:]

	return nil
}

func (d *Data) Last() bool {
	return len(d.Payload) < MaxPayloadSize
}
