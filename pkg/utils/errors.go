package utils

import "errors"

var (
	ErrStartingServer        = errors.New("error: starting the udp server")
	ErrWrongOpCode           = errors.New("error: invalid operation code")
	ErrPacketTooShort        = errors.New("error: packet too short")
	ErrDataPayloadTooBig     = errors.New("error: payload exceeds 512 bytes")
	ErrMalformedError        = errors.New("error: malformed error packet")
	ErrSilentPacket          = errors.New("error: silent error can not be sent")
	ErrRetriesExhausted      = errors.New("error: exceeded max send attempts")
	ErrPeerAborted           = errors.New("error: other side aborted the transfer")
	ErrZeroReadTimeout       = errors.New("error: read timeout can not be zero")
	ErrInvalidReadTimeout    = errors.New("error: read timeout can not be negative")
	ErrInvalidRetries        = errors.New("error: retry attempts can not be negative")
	ErrServerRunning         = errors.New("error: server is already serving")
	ErrCanNotSetReadTimeout  = errors.New("error: can not set read timeout")
	ErrCanNotSetWriteTimeout = errors.New("error: can not set write timeout")
)
