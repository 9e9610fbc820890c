package disk

import (
	"fmt"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/gosimple/unidecode"
)

const PASCAL_BLOCK_SIZE = 512
const PASCAL_VOLUME_BLOCK = 2
const PASCAL_DIRECTORY_END = 6
const PASCAL_MAX_VOLUME_NAME = 7
const PASCAL_MAX_FILENAME = 15
const PASCAL_DIRECTORY_ENTRY_LENGTH = 26
const PASCAL_OVERSIZE_DIR = 32
const PASCAL_DEFAULT_VOLUME = "BLANK"
const PASCAL_MAX_BLOCKS = 0xFFFF

const pascalBadNameChars = "$=?,[#:"

type PascalVolumeHeader struct {
	data [PASCAL_DIRECTORY_ENTRY_LENGTH]byte
}

func (pvh *PascalVolumeHeader) SetData(data []byte) {
	copy(pvh.data[:], data)
}

func (pvh *PascalVolumeHeader) GetStartBlock() int {
	return int(pvh.data[0x00]) + 256*int(pvh.data[0x01])
}

func (pvh *PascalVolumeHeader) GetNextBlock() int {
	return int(pvh.data[0x02]) + 256*int(pvh.data[0x03])
}

func (pvh *PascalVolumeHeader) GetType() int {
	return int(pvh.data[0x04]) + 256*int(pvh.data[0x05])
}

func (pvh *PascalVolumeHeader) GetNameLength() int {
	return int(pvh.data[0x06]) & 0x07
}

func (pvh *PascalVolumeHeader) GetName() string {
	l := pvh.GetNameLength()
	return string(pvh.data[0x07 : 0x07+l])
}

func (pvh *PascalVolumeHeader) GetTotalBlocks() int {
	return int(pvh.data[0x0e]) + 256*int(pvh.data[0x0f])
}

func (pvh *PascalVolumeHeader) GetNumFiles() int {
	return int(pvh.data[0x10]) + 256*int(pvh.data[0x11])
}

func (pvh *PascalVolumeHeader) GetDate() time.Time {
	return pascalDate(pvh.data[0x14:0x16])
}

type PascalFileType int

const (
	FileType_PAS_NONE PascalFileType = 0
	FileType_PAS_BADD PascalFileType = 1
	FileType_PAS_CODE PascalFileType = 2
	FileType_PAS_TEXT PascalFileType = 3
	FileType_PAS_INFO PascalFileType = 4
	FileType_PAS_DATA PascalFileType = 5
	FileType_PAS_GRAF PascalFileType = 6
	FileType_PAS_FOTO PascalFileType = 7
	FileType_PAS_SECD PascalFileType = 8
)

var PascalTypeMap = map[PascalFileType][2]string{
	FileType_PAS_NONE: {"UNK", "Unknown"},
	FileType_PAS_BADD: {"BAD", "Bad Block"},
	FileType_PAS_CODE: {"PCD", "Pascal Code"},
	FileType_PAS_TEXT: {"PTX", "Pascal Text"},
	FileType_PAS_INFO: {"PIF", "Pascal Info"},
	FileType_PAS_DATA: {"PDA", "Pascal Data"},
	FileType_PAS_GRAF: {"GRF", "Pascal Graphics"},
	FileType_PAS_FOTO: {"FOT", "HiRes Graphics"},
	FileType_PAS_SECD: {"SEC", "Secure Directory"},
}

func (ft PascalFileType) String() string {
	info, ok := PascalTypeMap[ft]
	if ok {
		return info[1]
	}
	return "Unknown"
}

func (ft PascalFileType) Ext() string {
	info, ok := PascalTypeMap[ft]
	if ok {
		return info[0]
	}
	return "UNK"
}

// pascalDate decodes the packed month/day/year word.
func pascalDate(b []byte) time.Time {
	w := int(b[0]) + 256*int(b[1])
	month := w & 0x0f
	day := (w >> 4) & 0x1f
	year := (w >> 9) & 0x7f
	if month == 0 || day == 0 {
		return time.Time{}
	}
	if year < 40 {
		year += 100
	}
	return time.Date(1900+year, time.Month(month), day, 0, 0, 0, 0, time.Local)
}

func pascalDateBytes(t time.Time) []byte {
	w := int(t.Month()) | t.Day()<<4 | (t.Year()%100)<<9
	return []byte{byte(w & 0xff), byte(w >> 8)}
}

// PascalDisk is an Apple Pascal volume. Files can be listed and read; the
// only change supported is reformatting the whole volume.
type PascalDisk struct {
	image *DiskImage
	opts  Options
}

func NewPascalDisk(img *DiskImage, opts Options) *PascalDisk {
	return &PascalDisk{image: img, opts: opts}
}

func IsPascal(img *DiskImage) bool {
	_, err := NewPascalDisk(img, Options{}).GetVolumeHeader()
	return err == nil
}

func (d *PascalDisk) Image() *DiskImage {
	return d.image
}

func (d *PascalDisk) GetVolumeHeader() (*PascalVolumeHeader, error) {
	data, err := d.image.ReadBlock(PASCAL_VOLUME_BLOCK)
	if err != nil {
		return nil, err
	}
	if !(data[0x00] == 0 && data[0x01] == 0) ||
		!(data[0x04] == 0 && data[0x05] == 0) ||
		!(data[0x06] > 0 && data[0x06] <= PASCAL_MAX_VOLUME_NAME) {
		return nil, errors.Wrap(ErrUnrecognizedImage, "no Pascal volume header")
	}
	for _, ch := range data[0x07 : 0x07+int(data[0x06])] {
		if ch < 0x20 || ch >= 0x7f || strings.ContainsRune(pascalBadNameChars, rune(ch)) {
			return nil, errors.Wrap(ErrUnrecognizedImage, "bad Pascal volume name")
		}
	}

	pvh := &PascalVolumeHeader{}
	pvh.SetData(data)
	dirBlocks := pvh.GetNextBlock() - PASCAL_VOLUME_BLOCK
	if dirBlocks <= 0 || dirBlocks > PASCAL_OVERSIZE_DIR {
		return nil, errors.Wrapf(ErrCorruptStructure, "Pascal directory ends at block %d", pvh.GetNextBlock())
	}
	if pvh.GetTotalBlocks() < pvh.GetNextBlock() || pvh.GetTotalBlocks() > d.image.Blocks() {
		return nil, errors.Wrapf(ErrCorruptStructure, "Pascal volume claims %d blocks", pvh.GetTotalBlocks())
	}
	return pvh, nil
}

func (d *PascalDisk) entries() ([]*PascalFileEntry, *PascalVolumeHeader, error) {
	pvh, err := d.GetVolumeHeader()
	if err != nil {
		return nil, nil, err
	}

	catdata := make([]byte, 0)
	for block := PASCAL_VOLUME_BLOCK; block < pvh.GetNextBlock(); block++ {
		data, err := d.image.ReadBlock(block)
		if err != nil {
			return nil, pvh, err
		}
		catdata = append(catdata, data...)
	}

	var files []*PascalFileEntry
	dirPtr := PASCAL_DIRECTORY_ENTRY_LENGTH
	for i := 0; i < pvh.GetNumFiles(); i++ {
		if dirPtr+PASCAL_DIRECTORY_ENTRY_LENGTH > len(catdata) {
			return files, pvh, errors.Wrapf(ErrCorruptStructure, "Pascal directory lists %d files", pvh.GetNumFiles())
		}
		fd := &PascalFileEntry{disk: d}
		fd.SetData(catdata[dirPtr : dirPtr+PASCAL_DIRECTORY_ENTRY_LENGTH])
		files = append(files, fd)
		dirPtr += PASCAL_DIRECTORY_ENTRY_LENGTH
	}
	return files, pvh, nil
}

func (d *PascalDisk) usedBlocks() []bool {
	files, pvh, err := d.entries()
	if err != nil {
		return nil
	}
	total := pvh.GetTotalBlocks()
	used := make([]bool, total)
	for block := 0; block < pvh.GetNextBlock(); block++ {
		used[block] = true
	}
	for _, file := range files {
		start, next := file.GetStartBlock(), file.GetNextBlock()
		if start < 0 || next > total || next < start {
			continue
		}
		for block := start; block < next; block++ {
			used[block] = true
		}
	}
	return used
}

func (d *PascalDisk) DiskName() string {
	pvh, err := d.GetVolumeHeader()
	if err != nil {
		return ":"
	}
	return pvh.GetName() + ":"
}

func (d *PascalDisk) FormatName() string {
	return "Pascal"
}

func (d *PascalDisk) Files() ([]FileEntry, error) {
	files, _, err := d.entries()
	if err != nil {
		return nil, err
	}
	out := make([]FileEntry, 0, len(files))
	for _, f := range files {
		out = append(out, f)
	}
	return out, nil
}

func (d *PascalDisk) CreateFile() (FileEntry, error) {
	return nil, errors.Wrap(ErrUnsupportedOperation, "Pascal volumes cannot create files")
}

func (d *PascalDisk) FreeSpace() int {
	free := 0
	for _, u := range d.usedBlocks() {
		if !u {
			free++
		}
	}
	return free * PASCAL_BLOCK_SIZE
}

func (d *PascalDisk) UsedSpace() int {
	count := 0
	for _, u := range d.usedBlocks() {
		if u {
			count++
		}
	}
	return count * PASCAL_BLOCK_SIZE
}

func (d *PascalDisk) BitmapDimensions() (int, int, bool) {
	total := d.BitmapLength()
	if total == 0 || total%BlocksPerTrack != 0 {
		return 0, 0, false
	}
	return total / BlocksPerTrack, BlocksPerTrack, true
}

func (d *PascalDisk) BitmapLength() int {
	return len(d.usedBlocks())
}

func (d *PascalDisk) DiskUsage() DiskUsage {
	return usedMap(d.usedBlocks())
}

func (d *PascalDisk) BitmapLabels() []string {
	return []string{"Block"}
}

func (d *PascalDisk) DiskInformation() []DiskInformation {
	list := StandardDiskInformation(d)
	pvh, err := d.GetVolumeHeader()
	if err != nil {
		return list
	}
	list = append(list,
		infoInt("Total Blocks", pvh.GetTotalBlocks()),
		infoInt("Directory Blocks", pvh.GetNextBlock()-PASCAL_VOLUME_BLOCK),
		infoInt("Files", pvh.GetNumFiles()),
		infoString("Volume Date", formatPascalDate(pvh.GetDate())),
	)
	return list
}

func formatPascalDate(t time.Time) string {
	if t.IsZero() {
		return "<NO DATE>"
	}
	return t.Format("02-Jan-06")
}

func (d *PascalDisk) FileColumnHeaders(mode DisplayMode) []FileColumnHeader {
	native := []FileColumnHeader{
		{Title: "Modified", MaximumWidth: 9, Alignment: AlignCenter},
		{Title: "Blocks", MaximumWidth: 3, Alignment: AlignRight},
		{Title: "Filetype", MaximumWidth: 8, Alignment: AlignCenter},
		{Title: "Name", MaximumWidth: 15, Alignment: AlignLeft},
	}
	switch mode {
	case DisplayNative:
		return native
	case DisplayDetail:
		return append(native,
			FileColumnHeader{Title: "Size (bytes)", MaximumWidth: 6, Alignment: AlignRight},
			FileColumnHeader{Title: "First Block", MaximumWidth: 4, Alignment: AlignRight},
			FileColumnHeader{Title: "Last Block", MaximumWidth: 4, Alignment: AlignRight},
		)
	}
	return StandardFileColumnHeaders()
}

func (d *PascalDisk) CanHaveDirectories() bool   { return false }
func (d *PascalDisk) SupportsDeletedFiles() bool { return false }
func (d *PascalDisk) CanReadFileData() bool      { return true }
func (d *PascalDisk) CanWriteFileData() bool     { return false }
func (d *PascalDisk) CanCreateFile() bool        { return false }
func (d *PascalDisk) CanDeleteFile() bool        { return false }
func (d *PascalDisk) LogicalDiskNumber() int     { return 0 }

func (d *PascalDisk) FileData(fe FileEntry) ([]byte, error) {
	file, ok := fe.(*PascalFileEntry)
	if !ok || file.disk != d {
		return nil, errors.Errorf("file entry does not belong to %s", d.image.Filename())
	}

	start, next := file.GetStartBlock(), file.GetNextBlock()
	if next < start || next > d.image.Blocks() {
		return nil, errors.Wrapf(ErrCorruptStructure, "%s spans blocks %d to %d", file.Filename(), start, next)
	}

	size := file.GetFileSize()
	data := make([]byte, 0, size)
	for block := start; block < next && len(data) < size; block++ {
		chunk, err := d.image.ReadBlock(block)
		if err != nil {
			return data, err
		}
		needed := size - len(data)
		if needed >= PASCAL_BLOCK_SIZE {
			data = append(data, chunk...)
		} else {
			data = append(data, chunk[:needed]...)
		}
	}
	return data, nil
}

// Format writes an empty directory covering the whole image, or the first
// PASCAL_MAX_BLOCKS blocks of a larger one.
func (d *PascalDisk) Format() error {
	zero := make([]byte, PASCAL_BLOCK_SIZE)
	for b := 0; b < d.image.Blocks(); b++ {
		if err := d.image.WriteBlock(b, zero); err != nil {
			return err
		}
	}
	if err := d.image.WriteBootCode(d.opts.BootCode); err != nil {
		return err
	}

	name := d.opts.VolumeName
	if name == "" {
		name = PASCAL_DEFAULT_VOLUME
	}
	name = d.SuggestedFilename(name)
	if len(name) > PASCAL_MAX_VOLUME_NAME {
		name = name[:PASCAL_MAX_VOLUME_NAME]
	}

	total := min(d.image.Blocks(), PASCAL_MAX_BLOCKS)
	header := make([]byte, PASCAL_BLOCK_SIZE)
	header[0x02] = PASCAL_DIRECTORY_END
	header[0x06] = byte(len(name))
	copy(header[0x07:], name)
	header[0x0e] = byte(total & 0xff)
	header[0x0f] = byte(total >> 8)
	copy(header[0x14:], pascalDateBytes(time.Now()))
	return d.image.WriteBlock(PASCAL_VOLUME_BLOCK, header)
}

func (d *PascalDisk) SuggestedFilename(name string) string {
	name = strings.ToUpper(unidecode.Unidecode(name))
	var sb strings.Builder
	for _, ch := range name {
		if ch <= ' ' || ch >= 0x7f || strings.ContainsRune(pascalBadNameChars, ch) {
			continue
		}
		sb.WriteRune(ch)
	}
	name = sb.String()
	if name == "" {
		name = "A"
	}
	if len(name) > PASCAL_MAX_FILENAME {
		name = name[:PASCAL_MAX_FILENAME]
	}
	return name
}

func (d *PascalDisk) Filetypes() []string {
	types := make([]string, 0, len(PascalTypeMap))
	for ft := FileType_PAS_NONE; ft <= FileType_PAS_SECD; ft++ {
		types = append(types, ft.Ext())
	}
	return types
}

func (d *PascalDisk) NeedsAddress(filetype string) bool {
	return false
}

type PascalFileEntry struct {
	readOnlyEntry
	data [PASCAL_DIRECTORY_ENTRY_LENGTH]byte
	disk *PascalDisk
}

func (pfe *PascalFileEntry) SetData(data []byte) {
	copy(pfe.data[:], data)
}

func (pfe *PascalFileEntry) GetStartBlock() int {
	return int(pfe.data[0x00]) + 256*int(pfe.data[0x01])
}

func (pfe *PascalFileEntry) GetNextBlock() int {
	return int(pfe.data[0x02]) + 256*int(pfe.data[0x03])
}

func (pfe *PascalFileEntry) GetType() PascalFileType {
	return PascalFileType(int(pfe.data[0x04]) + 256*int(pfe.data[0x05]))
}

func (pfe *PascalFileEntry) GetNameLength() int {
	return int(pfe.data[0x06]) & 0x0f
}

func (pfe *PascalFileEntry) GetBytesRemaining() int {
	return int(pfe.data[0x16]) + 256*int(pfe.data[0x17])
}

func (pfe *PascalFileEntry) GetModified() time.Time {
	return pascalDate(pfe.data[0x18:0x1a])
}

func (pfe *PascalFileEntry) GetFileSize() int {
	blocks := pfe.GetNextBlock() - pfe.GetStartBlock() - 1
	if blocks < 0 {
		return 0
	}
	return pfe.GetBytesRemaining() + blocks*PASCAL_BLOCK_SIZE
}

func (pfe *PascalFileEntry) Filename() string {
	l := pfe.GetNameLength()
	return string(pfe.data[0x07 : 0x07+l])
}

func (pfe *PascalFileEntry) Filetype() string {
	return pfe.GetType().Ext()
}

// IsLocked is always true; nothing on a Pascal volume can be changed here.
func (pfe *PascalFileEntry) IsLocked() bool {
	return true
}

func (pfe *PascalFileEntry) Size() int {
	return pfe.GetFileSize()
}

func (pfe *PascalFileEntry) IsDeleted() bool {
	return false
}

func (pfe *PascalFileEntry) FileData() ([]byte, error) {
	return pfe.disk.FileData(pfe)
}

func (pfe *PascalFileEntry) NeedsAddress() bool {
	return false
}

func (pfe *PascalFileEntry) Address() int {
	return 0
}

func (pfe *PascalFileEntry) FormattedDisk() FormattedDisk {
	return pfe.disk
}

func (pfe *PascalFileEntry) FileColumnData(mode DisplayMode) []string {
	native := []string{
		formatPascalDate(pfe.GetModified()),
		fmt.Sprintf("%d", pfe.GetNextBlock()-pfe.GetStartBlock()),
		pfe.Filetype(),
		pfe.Filename(),
	}
	switch mode {
	case DisplayNative:
		return native
	case DisplayDetail:
		return append(native,
			fmt.Sprintf("%d", pfe.Size()),
			fmt.Sprintf("%d", pfe.GetStartBlock()),
			fmt.Sprintf("%d", pfe.GetNextBlock()-1),
		)
	}
	return StandardFileColumnData(pfe)
}
