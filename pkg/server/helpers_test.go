package server

import (
	"encoding"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/Wa4h1h/go-tftpd/pkg/storage"
	"github.com/Wa4h1h/go-tftpd/pkg/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var loopback = net.IPv4(127, 0, 0, 1)

// peer is a scripted client endpoint.
type peer struct {
	t    *testing.T
	conn *net.UDPConn
}

func newPeer(t *testing.T) *peer {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: loopback})
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	return &peer{t: t, conn: conn}
}

func (p *peer) addr() net.Addr {
	return p.conn.LocalAddr()
}

func (p *peer) send(to net.Addr, pkt encoding.BinaryMarshaler) {
	p.t.Helper()

	b, err := pkt.MarshalBinary()
	require.NoError(p.t, err)

	p.sendRaw(to, b)
}

func (p *peer) sendRaw(to net.Addr, b []byte) {
	p.t.Helper()

	_, err := p.conn.WriteTo(b, to)
	require.NoError(p.t, err)
}

// recv returns the next datagram or a deadline error.
func (p *peer) recv(timeout time.Duration) ([]byte, net.Addr, error) {
	buf := make([]byte, types.MaxRequestSize)

	if err := p.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, err
	}

	n, addr, err := p.conn.ReadFrom(buf)
	if err != nil {
		return nil, nil, err
	}

	return buf[:n], addr, nil
}

func (p *peer) expectData(timeout time.Duration) (*types.Data, net.Addr) {
	p.t.Helper()

	b, addr, err := p.recv(timeout)
	require.NoError(p.t, err)

	var data types.Data
	require.NoError(p.t, data.UnmarshalBinary(b), "got %v", b)

	return &data, addr
}

func (p *peer) expectAck(timeout time.Duration) (uint16, net.Addr) {
	p.t.Helper()

	b, addr, err := p.recv(timeout)
	require.NoError(p.t, err)

	var ack types.Ack
	require.NoError(p.t, ack.UnmarshalBinary(b), "got %v", b)

	return ack.BlockNum, addr
}

func (p *peer) expectError(timeout time.Duration) (*types.Error, net.Addr) {
	p.t.Helper()

	b, addr, err := p.recv(timeout)
	require.NoError(p.t, err)

	var errPacket types.Error
	require.NoError(p.t, errPacket.UnmarshalBinary(b), "got %v", b)

	return &errPacket, addr
}

func (p *peer) expectSilence(timeout time.Duration) {
	p.t.Helper()

	b, _, err := p.recv(timeout)
	require.True(p.t, errors.Is(err, os.ErrDeadlineExceeded), "unexpected datagram %v", b)
}

type session struct {
	conn *Connection
	sock net.PacketConn
	dir  *storage.Dir
	peer *peer
}

func newSession(t *testing.T, cfg Config) *session {
	t.Helper()

	sock, err := net.ListenUDP("udp", &net.UDPAddr{IP: loopback})
	require.NoError(t, err)

	t.Cleanup(func() { _ = sock.Close() })

	cfg.Root = t.TempDir()
	dir := storage.NewDir(cfg.Root)
	p := newPeer(t)

	return &session{
		conn: NewTransfer(sock, p.addr(), dir, zaptest.NewLogger(t).Sugar(), cfg),
		sock: sock,
		dir:  dir,
		peer: p,
	}
}

func (s *session) addr() net.Addr {
	return s.sock.LocalAddr()
}

// run starts fn in the background and returns its result channel.
func run(fn func() error) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not finish")

		return nil
	}
}

// slowConfig never retransmits within a test.
func slowConfig() Config {
	cfg := DefaultConfig("")
	cfg.ReadTimeout = 2 * time.Second
	cfg.Trace = true

	return cfg
}
