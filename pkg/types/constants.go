package types

type OpCode uint16

const (
	OpCodeRRQ OpCode = iota + 1
	OpCodeWRQ
	OpCodeDATA
	OpCodeACK
	OpCodeError
)

func (o OpCode) String() string {
	switch o {
	case OpCodeRRQ:
		return "RRQ"
	case OpCodeWRQ:
		return "WRQ"
	case OpCodeDATA:
		return "DATA"
	case OpCodeACK:
		return "ACK"
	case OpCodeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

type ErrCode uint16

const (
	ErrNotDefined ErrCode = iota
	ErrFileNotFound
	ErrAccessViolation
	ErrDiskFull
	ErrIllegalTftpOp
	ErrUnknownTransferId
	ErrFileAlreadyExists
	ErrNoSuchUser

	// ErrSilent marks inbound noise that is dropped. It never goes on the wire.
	ErrSilent
)

var defaultErrMsgs = map[ErrCode]string{
	ErrNotDefined:        "Undefined",
	ErrFileNotFound:      "File not found",
	ErrAccessViolation:   "Access violation",
	ErrDiskFull:          "Disk full",
	ErrIllegalTftpOp:     "Illegal operation",
	ErrUnknownTransferId: "Unknown transfer id",
	ErrFileAlreadyExists: "File exists",
	ErrNoSuchUser:        "No such user",
}

// Wire reports whether the code may be encoded in an error packet.
func (c ErrCode) Wire() bool {
	return c <= ErrNoSuchUser
}

type Mode uint8

const (
	ModeNetASCII Mode = iota + 1
	ModeOctet
)

func (m Mode) String() string {
	switch m {
	case ModeNetASCII:
		return "netascii"
	case ModeOctet:
		return "octet"
	default:
		return "unknown"
	}
}

const (
	MaxPayloadSize = 512
	HeaderSize     = 4
	DatagramSize   = HeaderSize + MaxPayloadSize
	// MaxRequestSize bounds a read/write request read on the listener.
	MaxRequestSize = 1024
)
