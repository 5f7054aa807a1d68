package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/Wa4h1h/go-tftpd/pkg/types"
	"golang.org/x/sys/unix"
)

// sendErrorPacket is best effort, callers only log its failure.
func sendErrorPacket(conn net.PacketConn, addr net.Addr, errorPacket *types.Error) error {
	b, err := errorPacket.MarshalBinary()
	if err != nil {
		return fmt.Errorf("error while marshal error packet: %w", err)
	}

	if _, err := conn.WriteTo(b, addr); err != nil {
		return fmt.Errorf("error while writing error packet: %w", err)
	}

	return nil
}

func sameAddr(a, b net.Addr) bool {
	ua, okA := a.(*net.UDPAddr)
	ub, okB := b.(*net.UDPAddr)

	if okA && okB {
		return ua.Port == ub.Port && ua.IP.Equal(ub.IP)
	}

	return a.String() == b.String()
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}

type control func(network, address string, c syscall.RawConn) error

// reusePort lets a restarted server rebind the well-known port while old
// sessions drain.
func reusePort() control {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error

		err := c.Control(func(fd uintptr) {
			if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); opErr != nil {
				return
			}

			opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		})
		if err != nil {
			return err
		}

		return opErr
	}
}
