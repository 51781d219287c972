package exception

import "github.com/yanun0323/errors"

// Ring buffer errors
var (
	// ErrRingNotFound is returned when Attach finds no segment by that name.
	ErrRingNotFound = errors.New("ring: segment not found")

	// ErrRingExists is returned when Create finds an existing segment.
	ErrRingExists = errors.New("ring: segment already exists")

	// ErrRingCorrupt is returned when the segment header fails validation.
	ErrRingCorrupt = errors.New("ring: segment header invalid")

	// ErrRingClosed is returned when the segment mapping is gone.
	ErrRingClosed = errors.New("ring: segment closed")
)
