package disk

import (
	"strings"

	"emperror.dev/errors"
)

const SectorSize = 256
const SectorsPerTrack = 16
const TrackSize = SectorSize * SectorsPerTrack
const BlockSize = 2 * SectorSize
const BlocksPerTrack = SectorsPerTrack / 2

const Tracks525 = 35
const Disk525Size = Tracks525 * TrackSize
const Disk800KSize = 1600 * BlockSize
const MaxImageSize = 32 * 1024 * 1024

// SectorOrder describes how logical DOS track/sector pairs are laid out in
// the bytes of an image file.
type SectorOrder int

const (
	OrderUnknown SectorOrder = iota
	OrderDOS
	OrderProDOS
	Order2IMG
)

func (so SectorOrder) String() string {
	switch so {
	case OrderDOS:
		return "DOS 3.3"
	case OrderProDOS:
		return "ProDOS"
	case Order2IMG:
		return "2IMG"
	}
	return "Unknown"
}

// ParseSectorOrder accepts the names used in configuration files and on the
// command line ("dos", "do", "prodos", "po", "2img", "2mg").
func ParseSectorOrder(s string) (SectorOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dos", "do", "dsk", "dos 3.3", "dos33":
		return OrderDOS, nil
	case "prodos", "po", "hdv":
		return OrderProDOS, nil
	case "2img", "2mg":
		return Order2IMG, nil
	}
	return OrderUnknown, errors.Errorf("unknown sector order '%s'", s)
}

// prodosSkew maps a DOS logical sector to its position inside a ProDOS
// ordered track. The table is its own inverse.
var prodosSkew = [SectorsPerTrack]int{
	0x00, 0x0e, 0x0d, 0x0c, 0x0b, 0x0a, 0x09, 0x08,
	0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01, 0x0f,
}

// blockSectors lists the two DOS logical sectors holding each of the eight
// ProDOS blocks of a track.
var blockSectors = [BlocksPerTrack][2]int{
	{0x00, 0x0e}, {0x0d, 0x0c}, {0x0b, 0x0a}, {0x09, 0x08},
	{0x07, 0x06}, {0x05, 0x04}, {0x03, 0x02}, {0x01, 0x0f},
}

// Geometry is the track layout implied by an ordering and an image size.
type Geometry struct {
	Order  SectorOrder
	Tracks int
}

func headerSize(order SectorOrder) int {
	if order == Order2IMG {
		return Header2IMGSize
	}
	return 0
}

// NewGeometry derives the geometry of an image whose file is physicalSize
// bytes long.
func NewGeometry(order SectorOrder, physicalSize int) (Geometry, error) {
	if order != OrderDOS && order != OrderProDOS && order != Order2IMG {
		return Geometry{}, errors.Wrapf(ErrInvalidGeometry, "unsupported sector order %d", order)
	}
	payload := physicalSize - headerSize(order)
	return geometryForPayload(order, payload)
}

func geometryForPayload(order SectorOrder, payload int) (Geometry, error) {
	if payload <= 0 || payload%TrackSize != 0 {
		return Geometry{}, errors.Wrapf(ErrInvalidGeometry, "%d bytes is not a whole number of %d byte tracks", payload, TrackSize)
	}
	if payload > MaxImageSize {
		return Geometry{}, errors.Wrapf(ErrInvalidGeometry, "%d bytes exceeds maximum image size", payload)
	}
	return Geometry{Order: order, Tracks: payload / TrackSize}, nil
}

// LogicalSize is the number of payload bytes, excluding any container header.
func (g Geometry) LogicalSize() int {
	return g.Tracks * TrackSize
}

func (g Geometry) PhysicalSize() int {
	return g.LogicalSize() + headerSize(g.Order)
}

func (g Geometry) Blocks() int {
	return g.Tracks * BlocksPerTrack
}

// Offset returns the byte offset of the first byte of a logical sector.
func (g Geometry) Offset(track, sector int) (int, error) {
	if track < 0 || track >= g.Tracks || sector < 0 || sector >= SectorsPerTrack {
		return 0, errors.Wrapf(ErrInvalidGeometry, "track %d, sector %d outside %d tracks of %d sectors", track, sector, g.Tracks, SectorsPerTrack)
	}
	position := sector
	switch g.Order {
	case OrderDOS:
	case OrderProDOS, Order2IMG:
		position = prodosSkew[sector]
	default:
		return 0, errors.Wrapf(ErrInvalidGeometry, "unsupported sector order %d", g.Order)
	}
	return headerSize(g.Order) + (track*SectorsPerTrack+position)*SectorSize, nil
}

// Locate is the inverse of Offset. The offset must be the first byte of a
// sector inside the payload.
func (g Geometry) Locate(offset int) (int, int, error) {
	base := offset - headerSize(g.Order)
	if base < 0 || base >= g.LogicalSize() || base%SectorSize != 0 {
		return 0, 0, errors.Wrapf(ErrInvalidGeometry, "offset %d is not a sector boundary inside the image", offset)
	}
	index := base / SectorSize
	track, position := index/SectorsPerTrack, index%SectorsPerTrack
	switch g.Order {
	case OrderDOS:
		return track, position, nil
	case OrderProDOS, Order2IMG:
		return track, prodosSkew[position], nil
	}
	return 0, 0, errors.Wrapf(ErrInvalidGeometry, "unsupported sector order %d", g.Order)
}

// BlockAddress returns the track and the two DOS sectors holding a block.
func (g Geometry) BlockAddress(block int) (int, [2]int, error) {
	if block < 0 || block >= g.Blocks() {
		return 0, [2]int{}, errors.Wrapf(ErrInvalidGeometry, "block %d outside %d blocks", block, g.Blocks())
	}
	return block / BlocksPerTrack, blockSectors[block%BlocksPerTrack], nil
}

// PhysicalOffset is Offset for a one-off calculation.
func PhysicalOffset(track, sector int, order SectorOrder, physicalSize int) (int, error) {
	g, err := NewGeometry(order, physicalSize)
	if err != nil {
		return 0, err
	}
	return g.Offset(track, sector)
}
