package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wa4h1h/go-tftpd/pkg/storage"
	"github.com/Wa4h1h/go-tftpd/pkg/types"
	"github.com/Wa4h1h/go-tftpd/pkg/utils"
	"go.uber.org/zap"
)

// Server accepts read and write requests on a well-known port and runs
// every accepted transfer in its own goroutine on an ephemeral port.
type Server struct {
	fs       storage.FileSystem
	logger   *zap.SugaredLogger
	conn     net.PacketConn
	addr     string
	cfg      Config
	sessions sync.WaitGroup
	mu       sync.Mutex
	serving  atomic.Bool
}

func NewServer(l *zap.SugaredLogger, addr string, cfg Config) *Server {
	return &Server{
		logger: l,
		addr:   addr,
		cfg:    cfg,
		fs:     storage.NewDir(cfg.Root),
	}
}

// SetFileSystem replaces the default directory store rooted at Config.Root.
func (s *Server) SetFileSystem(fs storage.FileSystem) error {
	return s.configure(func(*Config) error {
		s.fs = fs

		return nil
	})
}

// SetReadTimeout sets how long a session waits for a reply before it
// retransmits. NoReadTimeout blocks forever; zero is rejected.
func (s *Server) SetReadTimeout(d time.Duration) error {
	if err := validateReadTimeout(d); err != nil {
		return err
	}

	return s.configure(func(c *Config) error {
		if d == NoReadTimeout {
			s.logger.Warn("read timeout disabled, silent peers will hold their sessions forever")
		}

		c.ReadTimeout = d

		return nil
	})
}

// SetRetries sets how many times an unacknowledged packet is resent.
func (s *Server) SetRetries(n int) error {
	if n < 0 {
		return fmt.Errorf("retries=%d: %w", n, utils.ErrInvalidRetries)
	}

	return s.configure(func(c *Config) error {
		c.Retries = n

		return nil
	})
}

func (s *Server) OnReadStarted(fn HookFunc) error {
	return s.configure(func(c *Config) error { c.Hooks.ReadStarted = fn; return nil })
}

func (s *Server) OnReadCompleted(fn HookFunc) error {
	return s.configure(func(c *Config) error { c.Hooks.ReadCompleted = fn; return nil })
}

func (s *Server) OnWriteStarted(fn HookFunc) error {
	return s.configure(func(c *Config) error { c.Hooks.WriteStarted = fn; return nil })
}

func (s *Server) OnWriteCompleted(fn HookFunc) error {
	return s.configure(func(c *Config) error { c.Hooks.WriteCompleted = fn; return nil })
}

func (s *Server) configure(set func(*Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serving.Load() {
		return utils.ErrServerRunning
	}

	return set(&s.cfg)
}

func (s *Server) ListenAndServe() error {
	l := net.ListenConfig{
		Control: reusePort(),
	}

	conn, err := l.ListenPacket(context.Background(), "udp", s.addr)
	if err != nil {
		s.logger.Error(err.Error())

		return fmt.Errorf("%w: %w", utils.ErrStartingServer, err)
	}

	return s.Serve(conn)
}

// Serve reads requests from conn until it is closed. It returns nil once
// Close has been called.
func (s *Server) Serve(conn net.PacketConn) error {
	s.mu.Lock()

	if err := s.cfg.Validate(); err != nil {
		s.mu.Unlock()

		return err
	}

	if !s.serving.CompareAndSwap(false, true) {
		s.mu.Unlock()

		return utils.ErrServerRunning
	}

	s.conn = conn
	cfg := s.cfg
	s.mu.Unlock()

	s.logger.Infof("serving %s on %s", cfg.Root, conn.LocalAddr().String())

	datagram := make([]byte, types.MaxRequestSize)

	for {
		n, addr, err := conn.ReadFrom(datagram)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			s.logger.Errorf("error while reading request: %s", err.Error())

			continue
		}

		op, err := types.ParseOpCode(datagram[:n])
		if err != nil {
			s.logger.Debugf("dropping %d bytes of noise from %s", n, addr.String())

			continue
		}

		if op != types.OpCodeRRQ && op != types.OpCodeWRQ {
			s.logger.Debugf("ignoring %s from %s on listener", op, addr.String())

			continue
		}

		req := make([]byte, n)
		copy(req, datagram[:n])

		s.sessions.Add(1)

		go func() {
			defer s.sessions.Done()

			s.handlePacket(addr, op, req, cfg)
		}()
	}
}

// Addr returns the listener address, or nil before serving starts.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	return s.conn.LocalAddr()
}

// Close stops accepting requests. Running transfers finish on their own.
func (s *Server) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	if err := conn.Close(); err != nil {
		return fmt.Errorf("error while closing connection: %w", err)
	}

	return nil
}

// Wait blocks until every accepted transfer has returned.
func (s *Server) Wait() {
	s.sessions.Wait()
}

func (s *Server) handlePacket(addr net.Addr, op types.OpCode, datagram []byte, cfg Config) {
	l := s.logger.With("peer", addr.String(), "op", op.String())

	conn, err := s.listenEphemeral()
	if err != nil {
		l.Errorf("error while binding transfer socket: %s", err.Error())

		return
	}

	defer func() {
		if err := conn.Close(); err != nil {
			l.Errorf("error while closing connection with %s: %s", addr.String(), err.Error())
		}
	}()

	req, err := types.ParseRequest(datagram[2:])
	if err != nil {
		l.Warnf("bad request: %s", err.Error())
		s.reply(l, conn, addr, err)

		return
	}

	path := s.fs.Resolve(req.Filename)
	l = l.With("file", req.Filename, "mode", req.Mode.String())

	var t Transfer = NewTransfer(conn, addr, s.fs, l, cfg)

	switch op {
	case types.OpCodeRRQ:
		err = t.Send(path)
	case types.OpCodeWRQ:
		err = t.Receive(path)
	}

	if err != nil {
		l.Errorf("transfer failed: %s", err.Error())
		s.reply(l, conn, addr, err)

		return
	}

	l.Infof("transfer of %s complete", path)
}

// reply sends err to the peer when it is a wire error. Retry exhaustion
// and peer aborts end the session without another packet.
func (s *Server) reply(l *zap.SugaredLogger, conn net.PacketConn, addr net.Addr, err error) {
	var tftpErr *types.Error

	if !errors.As(err, &tftpErr) || !tftpErr.ErrorCode.Wire() {
		return
	}

	if err := sendErrorPacket(conn, addr, tftpErr); err != nil {
		l.Debugf("error while responding to request: %s", err.Error())
	}
}

// listenEphemeral binds a fresh port on the listener's IP.
func (s *Server) listenEphemeral() (net.PacketConn, error) {
	s.mu.Lock()
	local := s.conn.LocalAddr()
	s.mu.Unlock()

	laddr := &net.UDPAddr{}
	if udp, ok := local.(*net.UDPAddr); ok {
		laddr.IP = udp.IP
		laddr.Zone = udp.Zone
	}

	conn, err := net.ListenUDP(local.Network(), laddr)
	if err != nil {
		return nil, fmt.Errorf("error while listening on ephemeral port: %w", err)
	}

	return conn, nil
}
