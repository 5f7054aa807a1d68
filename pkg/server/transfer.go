package server

import (
	"encoding"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/Wa4h1h/go-tftpd/pkg/storage"
	"github.com/Wa4h1h/go-tftpd/pkg/types"
	"github.com/Wa4h1h/go-tftpd/pkg/utils"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Transfer interface {
	Send(path string) error
	SendBlock(block []byte, blockNum uint16) error
	Receive(path string) error
	ReceiveBlock(blockNum uint16) (*types.Data, error)
}

// Connection runs one lock-step transfer with a single peer over its own
// ephemeral socket. Packets from any other address are answered with an
// unknown transfer id error and otherwise ignored.
type Connection struct {
	conn   net.PacketConn
	peer   net.Addr
	fs     storage.FileSystem
	l      *zap.SugaredLogger
	buffer []byte
	cfg    Config
}

func NewTransfer(conn net.PacketConn, peer net.Addr, fs storage.FileSystem,
	logger *zap.SugaredLogger, cfg Config,
) *Connection {
	return &Connection{
		conn: conn, peer: peer, fs: fs, l: logger, cfg: cfg,
		buffer: make([]byte, types.DatagramSize+1),
	}
}

// Receive handles a write request: path must not exist yet.
func (c *Connection) Receive(path string) error {
	if c.fs.Exists(path) {
		return types.NewError(types.ErrFileAlreadyExists, "")
	}

	f, err := c.fs.Create(path)
	if err != nil {
		c.l.Errorf("error while creating file: %s", err.Error())

		return types.TranslateIOError(err)
	}

	notify(c.l, "write started", c.cfg.Hooks.WriteStarted, path, f)

	if err := c.receive(f); err != nil {
		if errClean := multierr.Combine(f.Close(), c.fs.Remove(path)); errClean != nil {
			c.l.Errorf("error while discarding partial file: %s", errClean.Error())
		}

		return err
	}

	notify(c.l, "write completed", c.cfg.Hooks.WriteCompleted, path, f)

	if err := f.Close(); err != nil {
		c.l.Errorf("error while closing file: %s", err.Error())
	}

	return nil
}

func (c *Connection) receive(w io.Writer) error {
	var (
		blockNum   uint16
		bytesAccum int
	)

	for {
		data, err := c.ReceiveBlock(blockNum)
		if err != nil {
			return err
		}

		if _, err := w.Write(data.Payload); err != nil {
			c.l.Errorf("error while writing block to file: %s", err.Error())

			return types.TranslateIOError(err)
		}

		blockNum++
		bytesAccum += len(data.Payload)

		if c.cfg.Trace {
			c.l.Debugf("received block#=%d, received #bytes=%d", blockNum, len(data.Payload))
		}

		if data.Last() {
			if err := c.write(&types.Ack{BlockNum: blockNum}); err != nil {
				c.l.Errorf("error while writing final ack: %s", err.Error())
			}

			c.l.Debugf("received %d blocks, received %d bytes", blockNum, bytesAccum)

			return nil
		}
	}
}

// ReceiveBlock acknowledges blockNum and waits for block blockNum+1,
// resending the ack on every timeout. The returned payload is only valid
// until the next read on c.
func (c *Connection) ReceiveBlock(blockNum uint16) (*types.Data, error) {
	ack := &types.Ack{BlockNum: blockNum}
	want := blockNum + 1

	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if err := c.write(ack); err != nil {
			c.l.Errorf("error while writing ack: %s", err.Error())

			continue
		}

		data, err := c.awaitData(want)
		if err != nil {
			return nil, err
		}

		if data != nil {
			return data, nil
		}
	}

	return nil, utils.ErrRetriesExhausted
}

// awaitData returns nil, nil when the attempt times out.
func (c *Connection) awaitData(want uint16) (*types.Data, error) {
	deadline := c.cfg.readDeadline()

	for {
		b, ok, err := c.read(deadline)
		if err != nil || !ok {
			return nil, err
		}

		var data types.Data

		if err := data.UnmarshalBinary(b); err != nil {
			if c.peerAborted(b) {
				return nil, utils.ErrPeerAborted
			}

			continue
		}

		if data.BlockNum != want {
			if c.cfg.Trace {
				c.l.Debugf("data block# %d != expected block# %d", data.BlockNum, want)
			}

			continue
		}

		return &data, nil
	}
}

// Send handles a read request.
func (c *Connection) Send(path string) error {
	if !c.fs.Exists(path) {
		return types.NewError(types.ErrFileNotFound, "")
	}

	f, err := c.fs.Open(path)
	if err != nil {
		c.l.Errorf("error while opening file: %s", err.Error())

		return types.TranslateIOError(err)
	}

	defer func() {
		if err := f.Close(); err != nil {
			c.l.Errorf("error while closing file: %s", err.Error())
		}
	}()

	notify(c.l, "read started", c.cfg.Hooks.ReadStarted, path, f)

	if err := c.send(f); err != nil {
		return err
	}

	notify(c.l, "read completed", c.cfg.Hooks.ReadCompleted, path, f)

	return nil
}

// send streams r in full blocks. The first short block, possibly empty,
// ends the transfer, so a file sized to a multiple of the block size is
// followed by an empty block.
func (c *Connection) send(r io.Reader) error {
	var (
		blockNum   uint16 = 1
		bytesAccum int
	)

	block := make([]byte, types.MaxPayloadSize)

	for {
		n, err := io.ReadFull(r, block)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			c.l.Errorf("error while reading file block: %s", err.Error())

			return types.TranslateIOError(err)
		}

		if err := c.SendBlock(block[:n], blockNum); err != nil {
			return err
		}

		if c.cfg.Trace {
			c.l.Debugf("sent block#=%d, sent #bytes=%d", blockNum, n)
		}

		bytesAccum += n

		if n < types.MaxPayloadSize {
			c.l.Debugf("sent %d blocks, sent %d bytes", blockNum, bytesAccum)

			return nil
		}

		blockNum++
	}
}

// SendBlock sends one data block until the peer acknowledges it or the
// retry budget runs out.
func (c *Connection) SendBlock(block []byte, blockNum uint16) error {
	data := &types.Data{
		Payload:  block,
		BlockNum: blockNum,
	}

	b, err := data.MarshalBinary()
	if err != nil {
		return fmt.Errorf("error while marshalling data packet: %w", err)
	}

	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if err := c.writeBytes(b); err != nil {
			c.l.Errorf("error while writing data packet: %s", err.Error())

			continue
		}

		acked, err := c.awaitAck(blockNum)
		if err != nil {
			return err
		}

		if acked {
			return nil
		}
	}

	return utils.ErrRetriesExhausted
}

// awaitAck reports false when the attempt timed out or the reply could not
// be decoded. Stale acks are skipped within the same attempt.
func (c *Connection) awaitAck(blockNum uint16) (bool, error) {
	deadline := c.cfg.readDeadline()

	for {
		b, ok, err := c.read(deadline)
		if err != nil || !ok {
			return false, err
		}

		var ack types.Ack

		if err := ack.UnmarshalBinary(b); err != nil {
			if c.peerAborted(b) {
				return false, utils.ErrPeerAborted
			}

			return false, nil
		}

		if ack.BlockNum == blockNum {
			return true, nil
		}

		if c.cfg.Trace {
			c.l.Debugf("ack block# %d != expected block# %d", ack.BlockNum, blockNum)
		}
	}
}

// read returns the next datagram from the peer. ok is false once the
// deadline passes or the read fails; err is only set when the socket can
// no longer be read. Foreign datagrams are answered and skipped.
func (c *Connection) read(deadline time.Time) ([]byte, bool, error) {
	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, false, fmt.Errorf("%w: %w", utils.ErrCanNotSetReadTimeout, err)
		}

		n, addr, err := c.conn.ReadFrom(c.buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil, false, err
			}

			if !isTimeout(err) {
				c.l.Errorf("error while reading from peer: %s", err.Error())
			}

			return nil, false, nil
		}

		if !sameAddr(addr, c.peer) {
			c.rejectForeign(addr)

			continue
		}

		return c.buffer[:n], true, nil
	}
}

func (c *Connection) rejectForeign(addr net.Addr) {
	c.l.Warnf("packet from unknown transfer id %s", addr.String())

	errPacket := types.NewError(types.ErrUnknownTransferId, "")
	if err := c.conn.SetWriteDeadline(c.cfg.writeDeadline()); err != nil {
		c.l.Errorf("error while setting write timeout: %s", err.Error())

		return
	}

	if err := sendErrorPacket(c.conn, addr, errPacket); err != nil {
		c.l.Debugf("error while rejecting %s: %s", addr.String(), err.Error())
	}
}

func (c *Connection) peerAborted(b []byte) bool {
	var errPacket types.Error

	if errPacket.UnmarshalBinary(b) != nil {
		return false
	}

	c.l.Warnf("peer aborted transfer: %s", errPacket.Error())

	return true
}

func (c *Connection) write(p encoding.BinaryMarshaler) error {
	b, err := p.MarshalBinary()
	if err != nil {
		return fmt.Errorf("error while marshalling packet: %w", err)
	}

	return c.writeBytes(b)
}

func (c *Connection) writeBytes(b []byte) error {
	if err := c.conn.SetWriteDeadline(c.cfg.writeDeadline()); err != nil {
		return fmt.Errorf("%w: %w", utils.ErrCanNotSetWriteTimeout, err)
	}

	if _, err := c.conn.WriteTo(b, c.peer); err != nil {
		return fmt.Errorf("error while writing to %s: %w", c.peer.String(), err)
	}

	return nil
}
