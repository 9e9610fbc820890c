package disk

import (
	"bytes"
	"fmt"
	"strings"

	"emperror.dev/errors"
	"github.com/gosimple/unidecode"
)

const RDOS_CATALOG_TRACK = 0x01
const RDOS_CATALOG_LENGTH = 0xB
const RDOS_ENTRY_LENGTH = 0x20
const RDOS_NAME_LENGTH = 0x18

var RDOS_SIGNATURE_32 = []byte{
	byte('R' + 0x80),
	byte('D' + 0x80),
	byte('O' + 0x80),
	byte('S' + 0x80),
	byte(' ' + 0x80),
	byte('2' + 0x80),
}

var RDOS_SIGNATURE_33 = []byte{
	byte('R' + 0x80),
	byte('D' + 0x80),
	byte('O' + 0x80),
	byte('S' + 0x80),
	byte(' ' + 0x80),
	byte('3' + 0x80),
}

type RDOSFormat int

const (
	RDOS_Unknown RDOSFormat = iota
	RDOS_3
	RDOS_33
)

func (f RDOSFormat) String() string {
	switch f {
	case RDOS_3:
		return "RDOS 2.1"
	case RDOS_33:
		return "RDOS 3.3"
	}
	return "Unknown"
}

// SectorsPerTrack is the number of sectors RDOS uses on each track. The
// 2.1 layout keeps its 13 sector numbering even on a 16 sector image.
func (f RDOSFormat) SectorsPerTrack() int {
	if f == RDOS_3 {
		return 13
	}
	return SectorsPerTrack
}

// DetectRDOS looks for the RDOS signature at the start of the catalog.
func DetectRDOS(img *DiskImage) RDOSFormat {
	if img.Tracks() != Tracks525 {
		return RDOS_Unknown
	}
	data, err := img.ReadSector(RDOS_CATALOG_TRACK, 0)
	if err != nil {
		return RDOS_Unknown
	}
	switch {
	case bytes.Equal(data[:6], RDOS_SIGNATURE_32):
		return RDOS_3
	case bytes.Equal(data[:6], RDOS_SIGNATURE_33):
		return RDOS_33
	}
	return RDOS_Unknown
}

func IsRDOS(img *DiskImage) bool {
	return DetectRDOS(img) != RDOS_Unknown
}

type RDOSFileType int

const (
	FileType_RDOS_Unknown RDOSFileType = iota
	FileType_RDOS_AppleSoft
	FileType_RDOS_Binary
	FileType_RDOS_Text
)

var RDOSTypeMap = map[RDOSFileType][2]string{
	FileType_RDOS_Unknown:   {"UNK", "Unknown"},
	FileType_RDOS_AppleSoft: {"A", "Applesoft Basic Program"},
	FileType_RDOS_Binary:    {"B", "Binary File"},
	FileType_RDOS_Text:      {"T", "ASCII Text"},
}

func (ft RDOSFileType) String() string {
	info, ok := RDOSTypeMap[ft]
	if ok {
		return info[1]
	}
	return "Unknown"
}

func (ft RDOSFileType) Ext() string {
	info, ok := RDOSTypeMap[ft]
	if ok {
		return info[0]
	}
	return "UNK"
}

// RDOSDisk is the read-only filesystem of SSI's RDOS game disks.
type RDOSDisk struct {
	image  *DiskImage
	format RDOSFormat
}

func NewRDOSDisk(img *DiskImage) *RDOSDisk {
	return &RDOSDisk{image: img, format: DetectRDOS(img)}
}

func (d *RDOSDisk) Image() *DiskImage {
	return d.image
}

func (d *RDOSDisk) sectors() int {
	return d.format.SectorsPerTrack() * d.image.Tracks()
}

// readSector reads an RDOS linear sector number.
func (d *RDOSDisk) readSector(n int) ([]byte, error) {
	spt := d.format.SectorsPerTrack()
	return d.image.ReadSector(n/spt, n%spt)
}

func (d *RDOSDisk) entries() ([]*RDOSFileDescriptor, error) {
	if d.format == RDOS_Unknown {
		return nil, errors.Wrap(ErrUnrecognizedImage, "no RDOS signature")
	}
	catalog := make([]byte, 0, RDOS_CATALOG_LENGTH*SectorSize)
	for s := 0; s < RDOS_CATALOG_LENGTH; s++ {
		chunk, err := d.image.ReadSector(RDOS_CATALOG_TRACK, s)
		if err != nil {
			return nil, err
		}
		catalog = append(catalog, chunk...)
	}

	var files []*RDOSFileDescriptor
	for ptr := 0; ptr+RDOS_ENTRY_LENGTH <= len(catalog); ptr += RDOS_ENTRY_LENGTH {
		entry := &RDOSFileDescriptor{disk: d}
		entry.SetData(catalog[ptr : ptr+RDOS_ENTRY_LENGTH])
		if entry.IsUnused() {
			break
		}
		files = append(files, entry)
	}
	return files, nil
}

func (d *RDOSDisk) usedSectors() []bool {
	used := make([]bool, d.sectors())
	files, err := d.entries()
	if err != nil {
		return used
	}
	for _, file := range files {
		if file.IsDeleted() {
			continue
		}
		start, length := file.StartSector(), file.NumSectors()
		if start+length > len(used) {
			log.Warn().Str("file", file.Filename()).Int("start", start).Int("sectors", length).Msg("RDOS file runs past end of disk")
			continue
		}
		for n := start; n < start+length; n++ {
			used[n] = true
		}
	}
	return used
}

func (d *RDOSDisk) DiskName() string {
	return d.format.String()
}

func (d *RDOSDisk) FormatName() string {
	return d.format.String()
}

func (d *RDOSDisk) Files() ([]FileEntry, error) {
	files, err := d.entries()
	if err != nil {
		return nil, err
	}
	out := make([]FileEntry, 0, len(files))
	for _, f := range files {
		out = append(out, f)
	}
	return out, nil
}

func (d *RDOSDisk) CreateFile() (FileEntry, error) {
	return nil, errors.Wrap(ErrUnsupportedOperation, "RDOS disks cannot create files")
}

func (d *RDOSDisk) FreeSpace() int {
	free := 0
	for _, u := range d.usedSectors() {
		if !u {
			free++
		}
	}
	return free * SectorSize
}

func (d *RDOSDisk) UsedSpace() int {
	return d.sectors()*SectorSize - d.FreeSpace()
}

func (d *RDOSDisk) BitmapDimensions() (int, int, bool) {
	return d.image.Tracks(), d.format.SectorsPerTrack(), true
}

func (d *RDOSDisk) BitmapLength() int {
	return d.sectors()
}

func (d *RDOSDisk) DiskUsage() DiskUsage {
	return usedMap(d.usedSectors())
}

func (d *RDOSDisk) BitmapLabels() []string {
	return []string{"Track", "Sector"}
}

func (d *RDOSDisk) DiskInformation() []DiskInformation {
	return append(StandardDiskInformation(d),
		infoInt("Sectors per Track", d.format.SectorsPerTrack()),
	)
}

func (d *RDOSDisk) FileColumnHeaders(mode DisplayMode) []FileColumnHeader {
	native := []FileColumnHeader{
		{Title: "Type", MaximumWidth: 1, Alignment: AlignCenter},
		{Title: "Size (sectors)", MaximumWidth: 3, Alignment: AlignRight},
		{Title: "Name", MaximumWidth: 24, Alignment: AlignLeft},
		{Title: "Size (bytes)", MaximumWidth: 5, Alignment: AlignRight},
		{Title: "Starting Sector", MaximumWidth: 4, Alignment: AlignRight},
	}
	switch mode {
	case DisplayNative:
		return native
	case DisplayDetail:
		return append(native,
			FileColumnHeader{Title: "Address", MaximumWidth: 5, Alignment: AlignRight},
			FileColumnHeader{Title: "Deleted?", MaximumWidth: 7, Alignment: AlignCenter},
		)
	}
	return StandardFileColumnHeaders()
}

func (d *RDOSDisk) CanHaveDirectories() bool   { return false }
func (d *RDOSDisk) SupportsDeletedFiles() bool { return true }
func (d *RDOSDisk) CanReadFileData() bool      { return true }
func (d *RDOSDisk) CanWriteFileData() bool     { return false }
func (d *RDOSDisk) CanCreateFile() bool        { return false }
func (d *RDOSDisk) CanDeleteFile() bool        { return false }
func (d *RDOSDisk) LogicalDiskNumber() int     { return 0 }

func (d *RDOSDisk) FileData(fe FileEntry) ([]byte, error) {
	file, ok := fe.(*RDOSFileDescriptor)
	if !ok || file.disk != d {
		return nil, errors.Errorf("file entry does not belong to %s", d.image.Filename())
	}

	start, length := file.StartSector(), file.NumSectors()
	if start+length > d.sectors() {
		return nil, errors.Wrapf(ErrCorruptStructure, "%s runs past the end of the disk", file.Filename())
	}

	data := make([]byte, 0, length*SectorSize)
	for n := start; n < start+length && len(data) < file.Length(); n++ {
		chunk, err := d.readSector(n)
		if err != nil {
			return data, err
		}
		needed := file.Length() - len(data)
		if needed >= SectorSize {
			data = append(data, chunk...)
		} else {
			data = append(data, chunk[:needed]...)
		}
	}
	return data, nil
}

func (d *RDOSDisk) Format() error {
	return errors.Wrap(ErrUnsupportedOperation, "RDOS disks cannot be formatted")
}

func (d *RDOSDisk) SuggestedFilename(name string) string {
	name = strings.ToUpper(unidecode.Unidecode(name))
	if len(name) > RDOS_NAME_LENGTH {
		name = name[:RDOS_NAME_LENGTH]
	}
	return strings.TrimSpace(name)
}

func (d *RDOSDisk) Filetypes() []string {
	return []string{"A", "B", "T"}
}

func (d *RDOSDisk) NeedsAddress(filetype string) bool {
	return filetype == "B"
}

type RDOSFileDescriptor struct {
	readOnlyEntry
	data [RDOS_ENTRY_LENGTH]byte
	disk *RDOSDisk
}

func (fd *RDOSFileDescriptor) SetData(in []byte) {
	copy(fd.data[:], in)
}

func (fd *RDOSFileDescriptor) IsDeleted() bool {
	return fd.data[24] == 0xa0 || fd.data[0] == 0x80
}

func (fd *RDOSFileDescriptor) IsUnused() bool {
	return fd.data[24] == 0x00
}

// IsLocked is always true; RDOS disks are read only here.
func (fd *RDOSFileDescriptor) IsLocked() bool {
	return true
}

func (fd *RDOSFileDescriptor) Type() RDOSFileType {
	switch rune(fd.data[24]) {
	case 'A' + 0x80:
		return FileType_RDOS_AppleSoft
	case 'B' + 0x80:
		return FileType_RDOS_Binary
	case 'T' + 0x80:
		return FileType_RDOS_Text
	}
	return FileType_RDOS_Unknown
}

func (fd *RDOSFileDescriptor) Filename() string {
	return strings.TrimRight(fromHighASCII(fd.data[:RDOS_NAME_LENGTH]), " ")
}

func (fd *RDOSFileDescriptor) Filetype() string {
	return fd.Type().Ext()
}

func (fd *RDOSFileDescriptor) NumSectors() int {
	return int(fd.data[25])
}

func (fd *RDOSFileDescriptor) LoadAddress() int {
	return int(fd.data[26]) + 256*int(fd.data[27])
}

func (fd *RDOSFileDescriptor) Length() int {
	return int(fd.data[28]) + 256*int(fd.data[29])
}

func (fd *RDOSFileDescriptor) StartSector() int {
	return int(fd.data[30]) + 256*int(fd.data[31])
}

func (fd *RDOSFileDescriptor) Size() int {
	return fd.Length()
}

func (fd *RDOSFileDescriptor) FileData() ([]byte, error) {
	return fd.disk.FileData(fd)
}

func (fd *RDOSFileDescriptor) NeedsAddress() bool {
	return fd.Type() == FileType_RDOS_Binary
}

func (fd *RDOSFileDescriptor) Address() int {
	return fd.LoadAddress()
}

func (fd *RDOSFileDescriptor) FormattedDisk() FormattedDisk {
	return fd.disk
}

func (fd *RDOSFileDescriptor) FileColumnData(mode DisplayMode) []string {
	native := []string{
		fd.Filetype(),
		fmt.Sprintf("%.3d", fd.NumSectors()),
		fd.Filename(),
		fmt.Sprintf("%d", fd.Length()),
		fmt.Sprintf("%d", fd.StartSector()),
	}
	switch mode {
	case DisplayNative:
		return native
	case DisplayDetail:
		deleted := ""
		if fd.IsDeleted() {
			deleted = "Deleted"
		}
		return append(native, fmt.Sprintf("$%.4X", fd.LoadAddress()), deleted)
	}
	return StandardFileColumnData(fd)
}
