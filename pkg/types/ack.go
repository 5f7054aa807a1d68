package types

import (
	"encoding/binary"
	"fmt"

	"github.com/Wa4h1h/go-tftpd/pkg/utils"
)

// Ack acknowledges the data block BlockNum. Block 0 acknowledges a write request.
type Ack struct {
	BlockNum uint16
}

func (a *Ack) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, HeaderSize)
	b = binary.BigEndian.AppendUint16(b, uint16(OpCodeACK))
	b = binary.BigEndian.AppendUint16(b, a.BlockNum)

	return b, nil
}

// UnmarshalBinary accepts exactly one 4 byte ack.
func (a *Ack) UnmarshalBinary(data []byte) error {
	if len(data) != HeaderSize {
		return fmt.Errorf("ack of %d bytes: %w", len(data), utils.ErrPacketTooShort)
	}

	if OpCode(binary.BigEndian.Uint16(data)) != OpCodeACK {
		return utils.ErrWrongOpCode
	}

	a.BlockNum = binary.BigEndian.Uint16(data[2:])

	return nil
}
