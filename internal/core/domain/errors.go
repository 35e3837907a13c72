package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSlotNotFound     = errors.New("item not found")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrInvalidCount     = errors.New("count out of range")
	ErrInvalidBattery   = errors.New("battery level out of range")
	ErrInvalidPlacement = errors.New("placement outside grid or unsupported size")
	ErrBadLabel         = errors.New("malformed location label")
	ErrBadFrame         = errors.New("unparsable frame")
	ErrUnknownOp        = errors.New("unknown message op")
)

// ConflictError reports a reposition attempt that would overlap another
// device. Nothing is mutated when it is returned.
type ConflictError struct {
	BlockingMAC string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("position blocked by device %s", e.BlockingMAC)
}
