package server

import (
	"fmt"
	"time"

	"github.com/Wa4h1h/go-tftpd/pkg/utils"
)

// NoReadTimeout makes sessions block on reads indefinitely. A peer that
// goes silent then holds its session forever, since retries are driven
// by read timeouts.
const NoReadTimeout time.Duration = -1

const (
	DefaultReadTimeout  = 20 * time.Millisecond
	DefaultWriteTimeout = time.Second
	DefaultRetries      = 5
)

// Config is shared read-only by the dispatcher and copied into every session.
type Config struct {
	Hooks        Hooks
	Root         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Retries      int
	Trace        bool
}

func DefaultConfig(root string) Config {
	return Config{
		Root:         root,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		Retries:      DefaultRetries,
	}
}

func (c Config) Validate() error {
	if err := validateReadTimeout(c.ReadTimeout); err != nil {
		return err
	}

	if c.Retries < 0 {
		return fmt.Errorf("retries=%d: %w", c.Retries, utils.ErrInvalidRetries)
	}

	return nil
}

func validateReadTimeout(d time.Duration) error {
	switch {
	case d == 0:
		return utils.ErrZeroReadTimeout
	case d < 0 && d != NoReadTimeout:
		return fmt.Errorf("read timeout=%s: %w", d, utils.ErrInvalidReadTimeout)
	}

	return nil
}

// readDeadline returns the zero time when reads never time out.
func (c Config) readDeadline() time.Time {
	if c.ReadTimeout == NoReadTimeout {
		return time.Time{}
	}

	return time.Now().Add(c.ReadTimeout)
}

func (c Config) writeDeadline() time.Time {
	if c.WriteTimeout <= 0 {
		return time.Time{}
	}

	return time.Now().Add(c.WriteTimeout)
}
