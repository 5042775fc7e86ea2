package packet

import (
	"errors"
	"fmt"
)

var (
	ErrTooShort          = errors.New("packet too short")
	ErrUnsupportedFormat = errors.New("unsupported packet format")
	ErrFieldCount        = errors.New("field count mismatch")
	ErrUnknownPacket     = errors.New("unknown packet id")
)

// DecodeError describes why a packet or a single car entry could not be
// decoded. Car is -1 if the error concerns the whole packet.
type DecodeError struct {
	Packet ID
	Car    int
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Car >= 0 {
		return fmt.Sprintf("%s car %d: %s: %v", e.Packet, e.Car, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Packet, e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func packetError(id ID, err error, format string, args ...any) error {
	return &DecodeError{Packet: id, Car: -1, Reason: fmt.Sprintf(format, args...), Err: err}
}

func carError(id ID, car int, err error, format string, args ...any) error {
	return &DecodeError{Packet: id, Car: car, Reason: fmt.Sprintf(format, args...), Err: err}
}
