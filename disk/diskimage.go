package disk

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"emperror.dev/errors"
	"github.com/zeebo/xxh3"
)

// DiskImage owns the raw bytes of an image file and knows how logical
// sectors are laid out in them. It is not safe for concurrent use.
type DiskImage struct {
	filename string
	data     []byte
	geometry Geometry
}

// NewDiskImage wraps data, which becomes owned by the image.
func NewDiskImage(filename string, data []byte, order SectorOrder) (*DiskImage, error) {
	var g Geometry
	var err error
	if order == Order2IMG {
		_, g, err = Parse2IMG(data)
	} else {
		g, err = NewGeometry(order, len(data))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot use %s as %s image", filename, order)
	}
	return &DiskImage{
		filename: filename,
		data:     data,
		geometry: g,
	}, nil
}

// NewBlankDiskImage allocates a zeroed image with logicalSize payload bytes.
func NewBlankDiskImage(filename string, order SectorOrder, logicalSize int) (*DiskImage, error) {
	if _, err := NewGeometry(order, logicalSize+headerSize(order)); err != nil {
		return nil, err
	}
	data := make([]byte, logicalSize+headerSize(order))
	if order == Order2IMG {
		h := NewHeader2IMG(logicalSize)
		copy(data, h.Data[:])
	}
	return NewDiskImage(filename, data, order)
}

// LoadDiskImage reads an image file and detects its ordering.
func LoadDiskImage(filename string) (*DiskImage, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", filename)
	}
	order, err := DetectOrder(filename, data)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("file", filename).Str("order", order.String()).Int("size", len(data)).Msg("loaded disk image")
	return NewDiskImage(filename, data, order)
}

// DetectOrder picks the ordering of an image from its 2IMG magic, then its
// file extension, then its size.
func DetectOrder(filename string, data []byte) (SectorOrder, error) {
	if Is2IMG(data) {
		return Order2IMG, nil
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".po", ".hdv":
		return OrderProDOS, nil
	case ".do", ".dsk":
		return OrderDOS, nil
	case ".2mg", ".2img":
		return OrderUnknown, errors.Wrapf(ErrUnrecognizedImage, "%s has no 2IMG header", filename)
	}
	if len(data) == Disk525Size {
		return OrderDOS, nil
	}
	return OrderProDOS, nil
}

func (d *DiskImage) Filename() string {
	return d.filename
}

func (d *DiskImage) SetFilename(filename string) {
	d.filename = filename
}

func (d *DiskImage) Geometry() Geometry {
	return d.geometry
}

func (d *DiskImage) Order() SectorOrder {
	return d.geometry.Order
}

func (d *DiskImage) Is2ImgOrder() bool {
	return d.geometry.Order == Order2IMG
}

func (d *DiskImage) IsDosOrder() bool {
	return d.geometry.Order == OrderDOS
}

func (d *DiskImage) IsProdosOrder() bool {
	return d.geometry.Order == OrderProDOS
}

// PhysicalSize is the size of the image file in bytes, headers included.
func (d *DiskImage) PhysicalSize() int {
	return len(d.data)
}

// LogicalSize is the number of bytes addressable through sectors.
func (d *DiskImage) LogicalSize() int {
	return d.geometry.LogicalSize()
}

func (d *DiskImage) Tracks() int {
	return d.geometry.Tracks
}

func (d *DiskImage) Blocks() int {
	return d.geometry.Blocks()
}

func (d *DiskImage) sectorOffset(track, sector int) (int, error) {
	offset, err := d.geometry.Offset(track, sector)
	if err != nil {
		return 0, errors.Wrapf(ErrOutOfRange, "track %d, sector %d of %d track image", track, sector, d.geometry.Tracks)
	}
	return offset, nil
}

// ReadSector returns a copy of one logical sector.
func (d *DiskImage) ReadSector(track, sector int) ([]byte, error) {
	offset, err := d.sectorOffset(track, sector)
	if err != nil {
		return nil, err
	}
	out := make([]byte, SectorSize)
	copy(out, d.data[offset:offset+SectorSize])
	return out, nil
}

// WriteSector replaces one logical sector in place.
func (d *DiskImage) WriteSector(track, sector int, data []byte) error {
	if len(data) != SectorSize {
		return errors.Errorf("sector data must be %d bytes, got %d", SectorSize, len(data))
	}
	offset, err := d.sectorOffset(track, sector)
	if err != nil {
		return err
	}
	copy(d.data[offset:offset+SectorSize], data)
	return nil
}

// ReadBlock returns a copy of a 512 byte ProDOS block.
func (d *DiskImage) ReadBlock(block int) ([]byte, error) {
	track, sectors, err := d.geometry.BlockAddress(block)
	if err != nil {
		return nil, errors.Wrapf(ErrOutOfRange, "block %d of %d block image", block, d.Blocks())
	}
	out := make([]byte, 0, BlockSize)
	for _, s := range sectors {
		chunk, err := d.ReadSector(track, s)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (d *DiskImage) WriteBlock(block int, data []byte) error {
	if len(data) != BlockSize {
		return errors.Errorf("block data must be %d bytes, got %d", BlockSize, len(data))
	}
	track, sectors, err := d.geometry.BlockAddress(block)
	if err != nil {
		return errors.Wrapf(ErrOutOfRange, "block %d of %d block image", block, d.Blocks())
	}
	for i, s := range sectors {
		if err := d.WriteSector(track, s, data[i*SectorSize:(i+1)*SectorSize]); err != nil {
			return err
		}
	}
	return nil
}

// WriteBootCode writes a boot payload to track 0, sector 0. A missing
// payload is not an error; the call does nothing.
func (d *DiskImage) WriteBootCode(boot []byte) error {
	if len(boot) == 0 {
		return nil
	}
	sector := make([]byte, SectorSize)
	copy(sector, boot)
	return d.WriteSector(0, 0, sector)
}

// Reorder returns a new image holding the same logical sectors stored under
// another ordering. The receiver is not modified.
func (d *DiskImage) Reorder(order SectorOrder) (*DiskImage, error) {
	out, err := NewBlankDiskImage(d.filename, order, d.LogicalSize())
	if err != nil {
		return nil, err
	}
	for t := 0; t < d.Tracks(); t++ {
		for s := 0; s < SectorsPerTrack; s++ {
			data, err := d.ReadSector(t, s)
			if err != nil {
				return nil, err
			}
			if err := out.WriteSector(t, s, data); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (d *DiskImage) Clone() *DiskImage {
	data := make([]byte, len(d.data))
	copy(data, d.data)
	return &DiskImage{
		filename: d.filename,
		data:     data,
		geometry: d.geometry,
	}
}

// Fingerprint is a fast hash of the physical bytes, used to detect changes.
func (d *DiskImage) Fingerprint() uint64 {
	return xxh3.Hash(d.data)
}

// WriteTo writes the physical image.
func (d *DiskImage) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(d.data)
	return int64(n), errors.WithStack(err)
}

// Dump writes a hex and ASCII listing of data.
func Dump(w io.Writer, data []byte) {
	perline := 0x10
	ascii := ""
	for i, v := range data {
		if i%perline == 0 {
			if i > 0 {
				fmt.Fprintln(w, " "+ascii)
			}
			ascii = ""
			fmt.Fprintf(w, "%.4X:", i)
		}
		ch := v & 0x7f
		if ch >= 32 && ch < 127 {
			ascii += string(rune(ch))
		} else {
			ascii += "."
		}
		fmt.Fprintf(w, " %.2X", v)
	}
	fmt.Fprintln(w, " "+ascii)
}

// fromHighASCII decodes Apple high-bit text, stopping at a NUL.
func fromHighASCII(b []byte) string {
	var sb strings.Builder
	for _, v := range b {
		ch := v & 0x7f
		if ch == 0 {
			break
		}
		if ch < 32 {
			ch = '.'
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}

// toHighASCII fills dst with s in high-bit ASCII, padded with spaces.
func toHighASCII(dst []byte, s string) {
	for i := range dst {
		ch := byte(' ')
		if i < len(s) {
			ch = s[i]
			if ch < 32 || ch > 126 {
				ch = ' '
			}
		}
		dst[i] = ch | 0x80
	}
}
