package disk

import (
	"emperror.dev/errors"
	"github.com/rs/zerolog"
)

const (
	// ErrInvalidGeometry is returned when a track/sector (or block) lies
	// outside the image, or when an image size is not a whole number of tracks.
	ErrInvalidGeometry = errors.Sentinel("invalid geometry")
	// ErrDiskFull means no free allocation unit or directory slot exists.
	ErrDiskFull = errors.Sentinel("disk full")
	// ErrUnsupportedOperation is returned when a capability flag says no.
	ErrUnsupportedOperation = errors.Sentinel("unsupported operation")
	// ErrCorruptStructure is raised by filesystems that find an inconsistent
	// directory, bitmap or allocation chain while reading.
	ErrCorruptStructure = errors.Sentinel("corrupt structure")

	ErrFileNotFound      = errors.Sentinel("file not found")
	ErrUnrecognizedImage = errors.Sentinel("unrecognized disk image")
)

// ErrOutOfRange is the sector I/O flavour of ErrInvalidGeometry.
var ErrOutOfRange = errors.WithMessage(ErrInvalidGeometry, "sector out of range")

var log = zerolog.Nop()

// SetLogger sets the logger used for detection and corruption diagnostics.
func SetLogger(l zerolog.Logger) {
	log = l
}
