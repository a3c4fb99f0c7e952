package plinth

import "errors"

var (
	ErrClosed            = errors.New("closed")
	ErrOutOfRange        = errors.New("out of range")
	ErrRegionTooSmall    = errors.New("region too small")
	ErrInvalidHeader     = errors.New("invalid header")
	ErrInvalidPosition   = errors.New("invalid position")
	ErrInvalidRecordSize = errors.New("invalid record size")
	ErrNoSpace           = errors.New("no space")
)
