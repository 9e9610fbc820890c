package disk

import (
	"bytes"
	"encoding/binary"

	"emperror.dev/errors"
)

/*
	2IMG container. The header is little endian; only ProDOS ordered
	payloads are accepted.
*/

const Header2IMGSize = 0x40
const Creator2IMG = "A2ST"

const (
	format2IMGDOS    = 0x00
	format2IMGProDOS = 0x01
	format2IMGNibble = 0x02
)

var Magic2IMG = []byte{byte('2'), byte('I'), byte('M'), byte('G')}

type Header2IMG struct {
	Data [Header2IMGSize]byte
}

func (h *Header2IMG) SetData(data []byte) {
	copy(h.Data[:], data)
}

func (h *Header2IMG) u16(offset int) int {
	return int(binary.LittleEndian.Uint16(h.Data[offset:]))
}

func (h *Header2IMG) u32(offset int) int {
	return int(binary.LittleEndian.Uint32(h.Data[offset:]))
}

func (h *Header2IMG) GetID() string {
	return string(h.Data[0x00:0x04])
}

func (h *Header2IMG) GetCreatorID() string {
	return string(h.Data[0x04:0x08])
}

func (h *Header2IMG) GetHeaderSize() int {
	return h.u16(0x08)
}

func (h *Header2IMG) GetVersion() int {
	return h.u16(0x0A)
}

func (h *Header2IMG) GetImageFormat() int {
	return h.u32(0x0C)
}

func (h *Header2IMG) GetFlags() int {
	return h.u32(0x10)
}

func (h *Header2IMG) GetProDOSBlocks() int {
	return h.u32(0x14)
}

func (h *Header2IMG) GetDiskDataStart() int {
	return h.u32(0x18)
}

func (h *Header2IMG) GetDiskDataLength() int {
	return h.u32(0x1C)
}

// NewHeader2IMG builds a header for a ProDOS ordered payload.
func NewHeader2IMG(payload int) *Header2IMG {
	h := &Header2IMG{}
	copy(h.Data[0x00:], Magic2IMG)
	copy(h.Data[0x04:], Creator2IMG)
	binary.LittleEndian.PutUint16(h.Data[0x08:], Header2IMGSize)
	binary.LittleEndian.PutUint16(h.Data[0x0A:], 1)
	binary.LittleEndian.PutUint32(h.Data[0x0C:], format2IMGProDOS)
	binary.LittleEndian.PutUint32(h.Data[0x14:], uint32(payload/BlockSize))
	binary.LittleEndian.PutUint32(h.Data[0x18:], Header2IMGSize)
	binary.LittleEndian.PutUint32(h.Data[0x1C:], uint32(payload))
	return h
}

// Is2IMG reports whether data starts with the 2IMG magic.
func Is2IMG(data []byte) bool {
	return len(data) >= Header2IMGSize && bytes.Equal(data[:4], Magic2IMG)
}

// Parse2IMG validates the container header and returns the geometry of the
// payload it wraps.
func Parse2IMG(data []byte) (*Header2IMG, Geometry, error) {
	if !Is2IMG(data) {
		return nil, Geometry{}, errors.Wrap(ErrUnrecognizedImage, "missing 2IMG magic")
	}
	h := &Header2IMG{}
	h.SetData(data[:Header2IMGSize])

	switch h.GetImageFormat() {
	case format2IMGProDOS:
	case format2IMGDOS:
		return nil, Geometry{}, errors.Wrap(ErrUnrecognizedImage, "DOS ordered 2IMG payloads are not supported")
	case format2IMGNibble:
		return nil, Geometry{}, errors.Wrap(ErrUnrecognizedImage, "nibble 2IMG payloads are not supported")
	default:
		return nil, Geometry{}, errors.Wrapf(ErrUnrecognizedImage, "unknown 2IMG image format %d", h.GetImageFormat())
	}
	if h.GetHeaderSize() != Header2IMGSize || h.GetDiskDataStart() != Header2IMGSize {
		return nil, Geometry{}, errors.Wrapf(ErrInvalidGeometry, "2IMG header size %d, data start %d", h.GetHeaderSize(), h.GetDiskDataStart())
	}

	size := h.GetDiskDataLength()
	if size == 0 {
		// some writers leave the length empty and rely on the block count
		size = h.GetProDOSBlocks() * BlockSize
	}
	if Header2IMGSize+size > len(data) {
		return nil, Geometry{}, errors.Wrapf(ErrInvalidGeometry, "2IMG payload of %d bytes overruns %d byte file", size, len(data))
	}

	g, err := geometryForPayload(Order2IMG, size)
	if err != nil {
		return nil, Geometry{}, err
	}
	return h, g, nil
}
