package server

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Wa4h1h/go-tftpd/pkg/storage"
	"github.com/Wa4h1h/go-tftpd/pkg/types"
	"github.com/Wa4h1h/go-tftpd/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func startServer(t *testing.T, setup func(*Server)) (*Server, net.Addr) {
	t.Helper()

	cfg := DefaultConfig(t.TempDir())
	cfg.ReadTimeout = 2 * time.Second

	s := NewServer(zaptest.NewLogger(t).Sugar(), "127.0.0.1:0", cfg)
	if setup != nil {
		setup(s)
	}

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	done := run(func() error { return s.Serve(conn) })
	require.Eventually(t, func() bool { return s.Addr() != nil }, time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		require.NoError(t, s.Close())
		require.NoError(t, wait(t, done))
		s.Wait()
	})

	return s, conn.LocalAddr()
}

func TestServerRead(t *testing.T) {
	completed := make(chan string, 1)

	s, addr := startServer(t, func(s *Server) {
		require.NoError(t, s.OnReadCompleted(func(p string, _ storage.File) { completed <- p }))
	})

	content := []byte("hello over tftp")
	require.NoError(t, os.WriteFile(filepath.Join(s.cfg.Root, "hello.txt"), content, 0o644))

	client := newPeer(t)
	client.send(addr, &types.Request{Filename: "hello.txt", Mode: types.ModeOctet, Opcode: types.OpCodeRRQ})

	data, tid := client.expectData(recvTimeout)
	assert.Equal(t, uint16(1), data.BlockNum)
	assert.Equal(t, content, data.Payload)
	assert.NotEqual(t, addr.String(), tid.String(), "transfer must run on its own port")

	client.send(tid, &types.Ack{BlockNum: 1})

	select {
	case p := <-completed:
		assert.Equal(t, filepath.Join(s.cfg.Root, "hello.txt"), p)
	case <-time.After(5 * time.Second):
		t.Fatal("read never completed")
	}
}

func TestServerWrite(t *testing.T) {
	s, addr := startServer(t, nil)

	client := newPeer(t)
	client.send(addr, &types.Request{Filename: "sub/../up.txt", Mode: types.ModeNetASCII, Opcode: types.OpCodeWRQ})

	block, tid := client.expectAck(recvTimeout)
	require.Equal(t, uint16(0), block)

	client.send(tid, &types.Data{BlockNum: 1, Payload: []byte("uploaded")})

	block, _ = client.expectAck(recvTimeout)
	require.Equal(t, uint16(1), block)

	s.Wait()

	got, err := os.ReadFile(filepath.Join(s.cfg.Root, "up.txt"))
	require.NoError(t, err)
	assert.Equal(t, "uploaded", string(got))
}

func TestServerConcurrentSessions(t *testing.T) {
	s, addr := startServer(t, nil)

	for _, name := range []string{"a", "b"} {
		require.NoError(t, os.WriteFile(filepath.Join(s.cfg.Root, name), []byte(name), 0o644))
	}

	a, b := newPeer(t), newPeer(t)
	a.send(addr, &types.Request{Filename: "a", Mode: types.ModeOctet, Opcode: types.OpCodeRRQ})
	b.send(addr, &types.Request{Filename: "b", Mode: types.ModeOctet, Opcode: types.OpCodeRRQ})

	dataA, tidA := a.expectData(recvTimeout)
	dataB, tidB := b.expectData(recvTimeout)

	assert.NotEqual(t, tidA.String(), tidB.String())
	assert.Equal(t, "a", string(dataA.Payload))
	assert.Equal(t, "b", string(dataB.Payload))

	a.send(tidA, &types.Ack{BlockNum: 1})
	b.send(tidB, &types.Ack{BlockNum: 1})
}

func TestServerErrors(t *testing.T) {
	s, addr := startServer(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(s.cfg.Root, "exists"), nil, 0o644))

	tests := []struct {
		name    string
		request []byte
		code    types.ErrCode
		msg     string
	}{
		{"missing file", []byte("\x00\x01nope\x00octet\x00"), types.ErrFileNotFound, "File not found"},
		{"existing file", []byte("\x00\x02exists\x00octet\x00"), types.ErrFileAlreadyExists, "File exists"},
		{"unknown mode", []byte("\x00\x01exists\x00binary\x00"), types.ErrNotDefined, "Unknown transfer mode"},
		{"email mode", []byte("\x00\x02x\x00email\x00"), types.ErrNotDefined, "Email transfer mode is not supported"},
		{"missing mode", []byte("\x00\x01exists"), types.ErrNotDefined, "Invalid mode string"},
		{"directory", []byte("\x00\x01/\x00octet\x00"), types.ErrAccessViolation, "Access violation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newPeer(t)
			client.sendRaw(addr, tt.request)

			errPacket, from := client.expectError(recvTimeout)
			assert.Equal(t, tt.code, errPacket.ErrorCode)
			assert.Equal(t, tt.msg, errPacket.ErrMsg)
			assert.NotEqual(t, addr.String(), from.String())
		})
	}
}

func TestServerIgnoresNoise(t *testing.T) {
	_, addr := startServer(t, nil)

	client := newPeer(t)

	for _, datagram := range [][]byte{
		{0},
		{0, 9, 1, 2},
		{0, 3, 0, 1, 'x'},
		{0, 4, 0, 1},
		{0, 5, 0, 1, 'x', 0},
	} {
		client.sendRaw(addr, datagram)
	}

	client.expectSilence(200 * time.Millisecond)
}

func TestServerSettersBeforeServe(t *testing.T) {
	s := NewServer(zaptest.NewLogger(t).Sugar(), "127.0.0.1:0", DefaultConfig(t.TempDir()))

	assert.ErrorIs(t, s.SetReadTimeout(0), utils.ErrZeroReadTimeout)
	assert.ErrorIs(t, s.SetReadTimeout(-time.Second), utils.ErrInvalidReadTimeout)
	assert.ErrorIs(t, s.SetRetries(-1), utils.ErrInvalidRetries)

	require.NoError(t, s.SetReadTimeout(NoReadTimeout))
	require.NoError(t, s.SetReadTimeout(50*time.Millisecond))
	require.NoError(t, s.SetRetries(7))
	assert.Equal(t, 50*time.Millisecond, s.cfg.ReadTimeout)
	assert.Equal(t, 7, s.cfg.Retries)
	assert.Nil(t, s.Addr())
}

func TestServerSettersAfterServe(t *testing.T) {
	s, addr := startServer(t, nil)

	assert.Equal(t, addr.String(), s.Addr().String())

	assert.ErrorIs(t, s.SetRetries(1), utils.ErrServerRunning)
	assert.ErrorIs(t, s.SetReadTimeout(time.Second), utils.ErrServerRunning)
	assert.ErrorIs(t, s.OnWriteStarted(nil), utils.ErrServerRunning)
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.ReadTimeout = 0

	s := NewServer(zaptest.NewLogger(t).Sugar(), "127.0.0.1:0", cfg)

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	assert.ErrorIs(t, s.Serve(conn), utils.ErrZeroReadTimeout)
}

func TestSetReadTimeoutWarnsOnlyWhenApplied(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	s := NewServer(zap.New(core).Sugar(), "127.0.0.1:0", DefaultConfig(t.TempDir()))

	require.NoError(t, s.SetReadTimeout(NoReadTimeout))
	assert.Equal(t, 1, logs.FilterMessageSnippet("read timeout disabled").Len())

	require.NoError(t, s.SetReadTimeout(time.Second))

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	done := run(func() error { return s.Serve(conn) })
	require.Eventually(t, func() bool { return s.Addr() != nil }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.SetReadTimeout(NoReadTimeout), utils.ErrServerRunning)
	assert.Equal(t, 1, logs.FilterMessageSnippet("read timeout disabled").Len())
	assert.Equal(t, time.Second, s.cfg.ReadTimeout)

	require.NoError(t, s.Close())
	require.NoError(t, wait(t, done))
}
