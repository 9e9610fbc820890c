package disk

import (
	"fmt"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/gosimple/unidecode"
	"golang.org/x/exp/slices"
)

const PRODOS_ENTRY_SIZE = 39
const PRODOS_ENTRIES_PER_BLOCK = 13
const PRODOS_VOLUME_DIR = 2
const PRODOS_VOLUME_DIR_BLOCKS = 4
const PRODOS_BITMAP_START = 6
const PRODOS_MAX_FILENAME = 15
const PRODOS_MAX_BLOCKS = 65535
const PRODOS_DEFAULT_VOLUME = "NEW.DISK"

// VDH is the header entry of a directory block chain, either the volume
// directory or a subdirectory.
type VDH struct {
	Data        [PRODOS_ENTRY_SIZE]byte
	blockid     int
	blockoffset int
}

func (fd *VDH) SetData(data []byte, blockid, blockoffset int) {
	fd.blockid = blockid
	fd.blockoffset = blockoffset
	copy(fd.Data[:], data)
}

func (fd *VDH) CreateTime() time.Time {
	return prodosStampBytesToTime(fd.Data[0x18:0x1C])
}

func (fd *VDH) SetCreateTime(t time.Time) {
	copy(fd.Data[0x18:], timeToProdosStampBytes(t))
}

func (fd *VDH) SetName(name string) {
	name = strings.ToUpper(name)
	if len(name) > PRODOS_MAX_FILENAME {
		name = name[:PRODOS_MAX_FILENAME]
	}
	for i := 0; i < PRODOS_MAX_FILENAME; i++ {
		fd.Data[1+i] = 0
	}
	copy(fd.Data[1:], name)
	fd.Data[0] = (fd.Data[0] & 0xf0) | byte(len(name))
}

func (fd *VDH) SetStorageType(t ProDOSStorageType) {
	fd.Data[0] = (fd.Data[0] & 0x0f) | (byte(t) << 4)
}

func (fd *VDH) GetNameLength() int {
	return int(fd.Data[0] & 0xf)
}

func (fd *VDH) GetStorageType() ProDOSStorageType {
	return ProDOSStorageType((fd.Data[0]) >> 4)
}

func (fd *VDH) GetVolumeName() string {
	return strings.Trim(fromHighASCII(fd.Data[1:1+fd.GetNameLength()]), " ")
}

func (fd *VDH) GetVersion() int {
	return int(fd.Data[0x1C])
}

func (fd *VDH) SetVersion(b int) {
	fd.Data[0x1C] = byte(b)
}

func (fd *VDH) GetMinVersion() int {
	return int(fd.Data[0x1D])
}

func (fd *VDH) SetMinVersion(b int) {
	fd.Data[0x1D] = byte(b)
}

func (fd *VDH) GetAccess() ProDOSAccessMode {
	return ProDOSAccessMode(fd.Data[0x1E])
}

func (fd *VDH) SetAccess(m ProDOSAccessMode) {
	fd.Data[0x1E] = byte(m)
}

func (fd *VDH) GetEntryLength() int {
	return int(fd.Data[0x1F])
}

func (fd *VDH) SetEntryLength(b int) {
	fd.Data[0x1F] = byte(b & 0xff)
}

func (fd *VDH) GetEntriesPerBlock() int {
	return int(fd.Data[0x20])
}

func (fd *VDH) SetEntriesPerBlock(b int) {
	fd.Data[0x20] = byte(b & 0xff)
}

func (fd *VDH) GetFileCount() int {
	return int(fd.Data[0x21]) + 256*int(fd.Data[0x22])
}

func (fd *VDH) SetFileCount(c int) {
	fd.Data[0x21] = byte(c & 0xff)
	fd.Data[0x22] = byte(c / 256)
}

func (fd *VDH) GetBitmapPointer() int {
	return int(fd.Data[0x23]) + 256*int(fd.Data[0x24])
}

func (fd *VDH) SetBitmapPointer(b int) {
	fd.Data[0x23] = byte(b & 0xff)
	fd.Data[0x24] = byte(b / 256)
}

func (fd *VDH) GetTotalBlocks() int {
	return int(fd.Data[0x25]) + 256*int(fd.Data[0x26])
}

func (fd *VDH) SetTotalBlocks(b int) {
	fd.Data[0x25] = byte(b & 0xff)
	fd.Data[0x26] = byte(b / 256)
}

// Subdirectory headers reuse the bitmap/total fields for the parent link.

func (fd *VDH) GetDirParentPointer() int {
	return fd.GetBitmapPointer()
}

func (fd *VDH) SetDirParentPointer(b int) {
	fd.SetBitmapPointer(b)
}

func (fd *VDH) GetDirParentEntry() int {
	return int(fd.Data[0x25])
}

func (fd *VDH) SetDirParentEntry(b int) {
	fd.Data[0x25] = byte(b)
}

func (fd *VDH) GetDirParentEntryLength() int {
	return int(fd.Data[0x26])
}

func (fd *VDH) SetDirParentEntryLength(b int) {
	fd.Data[0x26] = byte(b)
}

func (fd *VDH) Publish(img *DiskImage) error {
	data, err := img.ReadBlock(fd.blockid)
	if err != nil {
		return err
	}
	copy(data[fd.blockoffset:], fd.Data[:])
	return img.WriteBlock(fd.blockid, data)
}

type ProDOSVolumeBitmap struct {
	Data   []byte
	blocks []int
	total  int
}

func (vb *ProDOSVolumeBitmap) IsBlockFree(b int) bool {
	if b < 0 || b >= vb.total {
		return false
	}
	bidx := b / 8
	bit := 7 - (b % 8)
	mask := byte(1 << uint(bit))

	return (vb.Data[bidx] & mask) == mask
}

func (vb *ProDOSVolumeBitmap) SetBlockFree(b int, free bool) {
	bidx := b / 8
	bit := 7 - (b % 8)
	setmask := byte(1 << uint(bit))
	clrmask := 0xff ^ setmask

	if free {
		vb.Data[bidx] = vb.Data[bidx] | setmask
	} else {
		vb.Data[bidx] = vb.Data[bidx] & clrmask
	}
}

func (vb *ProDOSVolumeBitmap) FreeBlocks() int {
	count := 0
	for b := 0; b < vb.total; b++ {
		if vb.IsBlockFree(b) {
			count++
		}
	}
	return count
}

// Allocate takes the first n free blocks. Only the in-memory copy changes.
func (vb *ProDOSVolumeBitmap) Allocate(n int) ([]int, error) {
	blocks := make([]int, 0, n)
	for b := 0; b < vb.total && len(blocks) < n; b++ {
		if vb.IsBlockFree(b) {
			blocks = append(blocks, b)
		}
	}
	if len(blocks) < n {
		return nil, errors.Wrapf(ErrDiskFull, "need %d blocks, %d free", n, len(blocks))
	}
	for _, b := range blocks {
		vb.SetBlockFree(b, false)
	}
	return blocks, nil
}

func (vb *ProDOSVolumeBitmap) Publish(img *DiskImage) error {
	for i, b := range vb.blocks {
		if err := img.WriteBlock(b, vb.Data[i*BlockSize:(i+1)*BlockSize]); err != nil {
			return err
		}
	}
	return nil
}

type ProDOSAccessMode byte

const (
	AccessType_Destroy  ProDOSAccessMode = 0x80
	AccessType_Rename   ProDOSAccessMode = 0x40
	AccessType_Changed  ProDOSAccessMode = 0x20
	AccessType_Writable ProDOSAccessMode = 0x02
	AccessType_Readable ProDOSAccessMode = 0x01
	//
	AccessType_Default ProDOSAccessMode = AccessType_Readable | AccessType_Writable | AccessType_Rename | AccessType_Destroy
)

type ProDOSStorageType byte

const (
	StorageType_Inactive      ProDOSStorageType = 0x0
	StorageType_Seedling      ProDOSStorageType = 0x1
	StorageType_Sapling       ProDOSStorageType = 0x2
	StorageType_Tree          ProDOSStorageType = 0x3
	StorageType_SubDir_File   ProDOSStorageType = 0xd
	StorageType_SubDir_Header ProDOSStorageType = 0xe
	StorageType_Volume_Header ProDOSStorageType = 0xf
)

func (st ProDOSStorageType) String() string {
	switch st {
	case StorageType_Seedling:
		return "Seedling"
	case StorageType_Sapling:
		return "Sapling"
	case StorageType_Tree:
		return "Tree"
	case StorageType_SubDir_File:
		return "Subdirectory"
	}
	return fmt.Sprintf("$%X", byte(st))
}

type ProDOSFileType byte

const (
	FileType_PD_None      ProDOSFileType = 0x00
	FileType_PD_TXT       ProDOSFileType = 0x04
	FileType_PD_Directory ProDOSFileType = 0x0f
	FileType_PD_BIN       ProDOSFileType = 0x06
	FileType_PD_INT       ProDOSFileType = 0xfa
	FileType_PD_INT_Var   ProDOSFileType = 0xfb
	FileType_PD_APP       ProDOSFileType = 0xfc
	FileType_PD_APP_Var   ProDOSFileType = 0xfd
	FileType_PD_Reloc     ProDOSFileType = 0xfe
	FileType_PD_SYS       ProDOSFileType = 0xff
)

var ProDOSTypeMap = map[ProDOSFileType][2]string{
	0x00: {"UNK", "Unknown"},
	0x01: {"BAD", "Bad Block"},
	0x02: {"PCD", "Pascal Code"},
	0x03: {"PTX", "Pascal Text"},
	0x04: {"TXT", "ASCII Text"},
	0x05: {"PDA", "Pascal Data"},
	0x06: {"BIN", "Binary File"},
	0x07: {"FNT", "Apple III Font"},
	0x08: {"FOT", "HiRes/Double HiRes Graphics"},
	0x09: {"BA3", "Apple III Basic Program"},
	0x0A: {"DA3", "Apple III Basic Data"},
	0x0B: {"WPF", "Generic Word Processing"},
	0x0C: {"SOS", "SOS System File"},
	0x0F: {"DIR", "ProDOS Directory"},
	0x10: {"RPD", "RPS Data"},
	0x11: {"RPI", "RPS Index"},
	0x12: {"AFD", "AppleFile Discard"},
	0x13: {"AFM", "AppleFile Model"},
	0x14: {"AFR", "AppleFile Report"},
	0x15: {"SCL", "Screen Library"},
	0x16: {"PFS", "PFS Document"},
	0x19: {"ADB", "AppleWorks Database"},
	0x1A: {"AWP", "AppleWorks Word Processing"},
	0x1B: {"ASP", "AppleWorks Spreadsheet"},
	0x80: {"GES", "System File"},
	0x81: {"GEA", "Desk Accessory"},
	0x82: {"GEO", "Application"},
	0x83: {"GED", "Document"},
	0x84: {"GEF", "Font"},
	0x85: {"GEP", "Printer Driver"},
	0x86: {"GEI", "Input Driver"},
	0x87: {"GEX", "Auxiliary Driver"},
	0x89: {"GEV", "Swap File"},
	0x8B: {"GEC", "Clock Driver"},
	0x8C: {"GEK", "Interface Card Driver"},
	0x8D: {"GEW", "Formatting Data"},
	0xA0: {"WP", " WordPerfect"},
	0xAB: {"GSB", "Apple IIgs BASIC Program"},
	0xAC: {"TDF", "Apple IIgs BASIC TDF"},
	0xAD: {"BDF", "Apple IIgs BASIC Data"},
	0x60: {"PRE", "PC Pre-Boot"},
	0x6B: {"BIO", "PC BIOS"},
	0x66: {"NCF", "ProDOS File Navigator Command File"},
	0x6D: {"DVR", "PC Driver"},
	0x6E: {"PRE", "PC Pre-Boot"},
	0x6F: {"HDV", "PC Hard Disk Image"},
	0x50: {"GWP", "Apple IIgs Word Processing"},
	0x51: {"GSS", "Apple IIgs Spreadsheet"},
	0x52: {"GDB", "Apple IIgs Database"},
	0x53: {"DRW", "Object Oriented Graphics"},
	0x54: {"GDP", "Apple IIgs Desktop Publishing"},
	0x55: {"HMD", "HyperMedia"},
	0x56: {"EDU", "Educational Program Data"},
	0x57: {"STN", "Stationery"},
	0x58: {"HLP", "Help File"},
	0x59: {"COM", "Communications"},
	0x5A: {"CFG", "Configuration"},
	0x5B: {"ANM", "Animation"},
	0x5C: {"MUM", "Multimedia"},
	0x5D: {"ENT", "Entertainment"},
	0x5E: {"DVU", "Development Utility"},
	0x41: {"OCR", "Optical Character Recognition"},
	0x42: {"FTD", "File Type Definitions"},
	0x20: {"TDM", "Desktop Manager File"},
	0x21: {"IPS", "Instant Pascal Source"},
	0x22: {"UPV", "UCSD Pascal Volume"},
	0x29: {"3SD", "SOS Directory"},
	0x2A: {"8SC", "Source Code"},
	0x2B: {"8OB", "Object Code"},
	0x2C: {"8IC", "Interpreted Code"},
	0x2D: {"8LD", "Language Data"},
	0x2E: {"P8C", "ProDOS 8 Code Module"},
	0xB0: {"SRC", "Apple IIgs Source Code"},
	0xB1: {"OBJ", "Apple IIgs Object Code"},
	0xB2: {"LIB", "Apple IIgs Library"},
	0xB3: {"S16", "Apple IIgs Application Program"},
	0xB4: {"RTL", "Apple IIgs Runtime Library"},
	0xB5: {"EXE", "Apple IIgs Shell Script"},
	0xB6: {"PIF", "Apple IIgs Permanent INIT"},
	0xB7: {"TIF", "Apple IIgs Temporary INIT"},
	0xB8: {"NDA", "Apple IIgs New Desk Accessory"},
	0xB9: {"CDA", "Apple IIgs Classic Desk Accessory"},
	0xBA: {"TOL", "Apple IIgs Tool"},
	0xBB: {"DRV", "Apple IIgs Device Driver"},
	0xBC: {"LDF", "Apple IIgs Generic Load File"},
	0xBD: {"FST", "Apple IIgs File System Translator"},
	0xBF: {"DOC", "Apple IIgs Document   "},
	0xC0: {"PNT", "Apple IIgs Packed Super HiRes"},
	0xC1: {"PIC", "Apple IIgs Super HiRes"},
	0xC2: {"ANI", "PaintWorks Animation"},
	0xC3: {"PAL", "PaintWorks Palette"},
	0xC5: {"OOG", "Object-Oriented Graphics"},
	0xC6: {"SCR", "Script"},
	0xC7: {"CDV", "Apple IIgs Control Panel"},
	0xC8: {"FON", "Apple IIgs Font"},
	0xC9: {"FND", "Apple IIgs Finder Data"},
	0xCA: {"ICN", "Apple IIgs Icon "},
	0xD5: {"MUS", "Music"},
	0xD6: {"INS", "Instrument"},
	0xD7: {"MDI", "MIDI"},
	0xD8: {"SND", "Apple IIgs Audio"},
	0xDB: {"DBM", "DB Master Document"},
	0xE0: {"LBR", "Archive"},
	0xE2: {"ATK", "AppleTalk Data"},
	0xEE: {"R16", "EDASM 816 Relocatable Code"},
	0xEF: {"PAR", "Pascal Area"},
	0xF0: {"CMD", "ProDOS Command File"},
	0xF1: {"OVL", "User Defined 1"},
	0xF2: {"UD2", "User Defined 2"},
	0xF3: {"UD3", "User Defined 3"},
	0xF4: {"UD4", "User Defined 4"},
	0xF5: {"BAT", "User Defined 5"},
	0xF6: {"UD6", "User Defined 6"},
	0xF7: {"UD7", "User Defined 7"},
	0xF8: {"PRG", "User Defined 8"},
	0xF9: {"P16", "ProDOS-16 System File"},
	0xFA: {"INT", "Integer BASIC Program"},
	0xFB: {"IVR", "Integer BASIC Variables"},
	0xFC: {"BAS", "Applesoft BASIC Program"},
	0xFD: {"VAR", "Applesoft BASIC Variables"},
	0xFE: {"REL", "EDASM Relocatable Code"},
	0xFF: {"SYS", "ProDOS-8 System File"},
}

func (t ProDOSFileType) String() string {
	info, ok := ProDOSTypeMap[t]
	if ok {
		return info[1]
	}
	return "Unknown"
}

func (ft ProDOSFileType) Ext() string {
	info, ok := ProDOSTypeMap[ft]
	if ok {
		return info[0]
	}
	return fmt.Sprintf("$%.2X", byte(ft))
}

// ProDOSFileTypeFromExt takes the lowest code when a name is listed twice.
func ProDOSFileTypeFromExt(ext string) (ProDOSFileType, bool) {
	ext = strings.ToUpper(strings.TrimSpace(ext))
	for code := 0; code < 256; code++ {
		info, ok := ProDOSTypeMap[ProDOSFileType(code)]
		if ok && info[0] == ext {
			return ProDOSFileType(code), true
		}
	}
	return 0, false
}

func prodosStampBytesToTime(in []byte) time.Time {
	dbits := (int(in[0x01]) << 8) | int(in[0x00])
	day := dbits & 31
	month := (dbits >> 5) & 15
	year := (dbits >> 9) & 127
	tbits := (int(in[0x03]) << 8) | int(in[0x02])
	mins := tbits & 63
	hours := (tbits >> 8)

	if dbits == 0 {
		return time.Time{}
	}
	if year < 70 {
		year += 100
	}
	year += 1900

	return time.Date(year, time.Month(month), day, hours, mins, 0, 0, time.Local)
}

func timeToProdosStampBytes(t time.Time) []byte {
	year, month, day, hour, minute := t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute()
	year = year - 1900
	for year > 99 {
		year -= 100
	}

	dbits := (year << 9) | (month << 5) | day
	tbits := (hour << 8) | minute

	return []byte{
		byte(dbits & 0xff),
		byte(dbits >> 8),
		byte(tbits & 0xff),
		byte(tbits >> 8),
	}
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "<NO DATE>"
	}
	return t.Format("02-Jan-06 15:04")
}

// ProdosDisk is a ProDOS volume of up to 65535 blocks.
type ProdosDisk struct {
	image *DiskImage
	opts  Options
}

func NewProdosDisk(img *DiskImage, opts Options) *ProdosDisk {
	return &ProdosDisk{image: img, opts: opts}
}

// IsProDOS checks the volume directory header in block 2.
func IsProDOS(img *DiskImage) bool {
	d := NewProdosDisk(img, Options{})
	vdh, err := d.GetVDH(PRODOS_VOLUME_DIR)
	if err != nil || vdh.GetStorageType() != StorageType_Volume_Header {
		return false
	}
	_, err = d.GetVolumeBitmap()
	return err == nil
}

func (d *ProdosDisk) Image() *DiskImage {
	return d.image
}

// GetVDH reads the header entry at the start of a directory key block.
func (d *ProdosDisk) GetVDH(block int) (*VDH, error) {
	data, err := d.image.ReadBlock(block)
	if err != nil {
		return nil, err
	}
	vdh := &VDH{}
	vdh.SetData(data[4:4+PRODOS_ENTRY_SIZE], block, 4)

	st := vdh.GetStorageType()
	if st != StorageType_Volume_Header && st != StorageType_SubDir_Header {
		return nil, errors.Wrapf(ErrCorruptStructure, "block %d is not a directory key block", block)
	}
	if vdh.GetEntryLength() != PRODOS_ENTRY_SIZE || vdh.GetEntriesPerBlock() != PRODOS_ENTRIES_PER_BLOCK {
		return nil, errors.Wrapf(ErrCorruptStructure, "directory at block %d has %d entries of %d bytes", block, vdh.GetEntriesPerBlock(), vdh.GetEntryLength())
	}
	if vdh.GetNameLength() == 0 {
		return nil, errors.Wrapf(ErrCorruptStructure, "directory at block %d has no name", block)
	}
	return vdh, nil
}

func (d *ProdosDisk) volumeHeader() (*VDH, error) {
	vdh, err := d.GetVDH(PRODOS_VOLUME_DIR)
	if err != nil {
		return nil, err
	}
	if vdh.GetStorageType() != StorageType_Volume_Header {
		return nil, errors.Wrap(ErrCorruptStructure, "block 2 is not a volume directory")
	}
	if vdh.GetTotalBlocks() == 0 || vdh.GetTotalBlocks() > d.image.Blocks() {
		return nil, errors.Wrapf(ErrCorruptStructure, "volume claims %d blocks, image has %d", vdh.GetTotalBlocks(), d.image.Blocks())
	}
	return vdh, nil
}

func (d *ProdosDisk) GetVolumeBitmap() (*ProDOSVolumeBitmap, error) {
	vdh, err := d.volumeHeader()
	if err != nil {
		return nil, err
	}
	total := vdh.GetTotalBlocks()
	start := vdh.GetBitmapPointer()
	count := (total + 4095) / 4096
	if start == 0 || start+count > total {
		return nil, errors.Wrapf(ErrCorruptStructure, "volume bitmap at block %d", start)
	}

	vb := &ProDOSVolumeBitmap{total: total}
	for b := start; b < start+count; b++ {
		data, err := d.image.ReadBlock(b)
		if err != nil {
			return nil, err
		}
		vb.Data = append(vb.Data, data...)
		vb.blocks = append(vb.blocks, b)
	}
	return vb, nil
}

// prodosDirectory is a directory block chain.
type prodosDirectory struct {
	header *VDH
	blocks []int
	data   [][]byte
}

func (d *ProdosDisk) readDirectory(key int) (*prodosDirectory, error) {
	vdh, err := d.GetVDH(key)
	if err != nil {
		return nil, err
	}
	dir := &prodosDirectory{header: vdh}
	seen := make(map[int]bool)
	for block := key; block != 0; {
		if seen[block] {
			return nil, errors.Wrapf(ErrCorruptStructure, "directory chain loops at block %d", block)
		}
		seen[block] = true
		data, err := d.image.ReadBlock(block)
		if err != nil {
			return nil, errors.Wrapf(ErrCorruptStructure, "directory block %d: %v", block, err)
		}
		dir.blocks = append(dir.blocks, block)
		dir.data = append(dir.data, data)
		block = int(data[2]) + 256*int(data[3])
	}
	return dir, nil
}

// slots visits every entry position of the directory, used or not, until
// fn returns true.
func (dir *prodosDirectory) slots(fn func(block, offset, entryNum int, data []byte) bool) {
	for idx, data := range dir.data {
		first := 0
		if idx == 0 {
			first = 1
		}
		for slot := first; slot < PRODOS_ENTRIES_PER_BLOCK; slot++ {
			offset := 4 + slot*PRODOS_ENTRY_SIZE
			if fn(dir.blocks[idx], offset, slot+1, data[offset:offset+PRODOS_ENTRY_SIZE]) {
				return
			}
		}
	}
}

func (d *ProdosDisk) catalog(key int) ([]FileEntry, error) {
	dir, err := d.readDirectory(key)
	if err != nil {
		return nil, err
	}
	var files []FileEntry
	dir.slots(func(block, offset, entryNum int, data []byte) bool {
		if ProDOSStorageType(data[0]>>4) != StorageType_Inactive {
			fd := &ProDOSFileDescriptor{disk: d, dirKey: key, entryNum: entryNum}
			fd.SetData(data, block, offset)
			files = append(files, fd)
		}
		return false
	})
	return files, nil
}

func (d *ProdosDisk) DiskName() string {
	vdh, err := d.GetVDH(PRODOS_VOLUME_DIR)
	if err != nil {
		return "/"
	}
	return "/" + vdh.GetVolumeName()
}

func (d *ProdosDisk) FormatName() string {
	return "ProDOS"
}

func (d *ProdosDisk) Files() ([]FileEntry, error) {
	return d.catalog(PRODOS_VOLUME_DIR)
}

func (d *ProdosDisk) CreateFile() (FileEntry, error) {
	return d.createEntry(PRODOS_VOLUME_DIR, "", false)
}

// CreateDirectory adds an empty subdirectory to the volume directory.
func (d *ProdosDisk) CreateDirectory(name string) (FileEntry, error) {
	return d.createEntry(PRODOS_VOLUME_DIR, name, true)
}

// createEntry claims a directory slot and a key block. The volume directory
// has a fixed size; a subdirectory gains a block when it is full. All
// checks happen before the first write.
func (d *ProdosDisk) createEntry(dirKey int, name string, directory bool) (*ProDOSFileDescriptor, error) {
	dir, err := d.readDirectory(dirKey)
	if err != nil {
		return nil, err
	}
	vb, err := d.GetVolumeBitmap()
	if err != nil {
		return nil, err
	}

	if directory {
		name = strings.ToUpper(name)
		exists := false
		dir.slots(func(block, offset, entryNum int, data []byte) bool {
			fd := &ProDOSFileDescriptor{}
			fd.SetData(data, block, offset)
			exists = fd.GetStorageType() != StorageType_Inactive && fd.Filename() == name
			return exists
		})
		if exists {
			return nil, errors.Errorf("%s already exists", name)
		}
	}

	fd := &ProDOSFileDescriptor{disk: d, dirKey: dirKey}
	dir.slots(func(block, offset, entryNum int, data []byte) bool {
		if ProDOSStorageType(data[0]>>4) == StorageType_Inactive {
			fd.blockid, fd.blockoffset, fd.entryNum = block, offset, entryNum
			return true
		}
		return false
	})

	grow := fd.blockid == 0
	if grow && dirKey == PRODOS_VOLUME_DIR {
		return nil, errors.Wrap(ErrDiskFull, "volume directory is full")
	}
	need := 1
	if grow {
		need++
	}
	blocks, err := vb.Allocate(need)
	if err != nil {
		return nil, err
	}
	key := blocks[0]

	if grow {
		newBlock := blocks[1]
		last := dir.blocks[len(dir.blocks)-1]
		lastData := dir.data[len(dir.data)-1]
		lastData[2] = byte(newBlock & 0xff)
		lastData[3] = byte(newBlock >> 8)
		fresh := make([]byte, BlockSize)
		fresh[0] = byte(last & 0xff)
		fresh[1] = byte(last >> 8)
		if err := d.image.WriteBlock(newBlock, fresh); err != nil {
			return nil, err
		}
		if err := d.image.WriteBlock(last, lastData); err != nil {
			return nil, err
		}
		if err := d.growParentEntry(dir.header); err != nil {
			return nil, err
		}
		fd.blockid, fd.blockoffset, fd.entryNum = newBlock, 4, 1
	}

	now := time.Now()
	fd.SetAccessMode(AccessType_Default)
	fd.SetCreateTime(now)
	fd.SetModTime(now)
	fd.SetHeaderPointer(dirKey)
	fd.SetIndexBlock(key)
	fd.SetTotalBlocks(1)

	if directory {
		fd.SetStorageType(StorageType_SubDir_File)
		fd.SetType(FileType_PD_Directory)
		fd.SetName(name)
		fd.SetSize(BlockSize)
		fd.SetAccessMode(AccessType_Default | AccessType_Changed)
		if err := d.initDirectoryBlock(key, fd); err != nil {
			return nil, err
		}
	} else {
		fd.SetStorageType(StorageType_Seedling)
		fd.SetType(FileType_PD_TXT)
		fd.SetSize(0)
		if err := d.image.WriteBlock(key, make([]byte, BlockSize)); err != nil {
			return nil, err
		}
	}

	if err := vb.Publish(d.image); err != nil {
		return nil, err
	}
	if err := fd.Publish(); err != nil {
		return nil, err
	}
	header, err := d.GetVDH(dirKey)
	if err != nil {
		return nil, err
	}
	header.SetFileCount(header.GetFileCount() + 1)
	return fd, header.Publish(d.image)
}

// growParentEntry accounts for a new block in a subdirectory's own entry.
func (d *ProdosDisk) growParentEntry(header *VDH) error {
	if header.GetStorageType() != StorageType_SubDir_Header {
		return nil
	}
	parent := &ProDOSFileDescriptor{disk: d}
	data, err := d.image.ReadBlock(header.GetDirParentPointer())
	if err != nil {
		return err
	}
	offset := 4 + (header.GetDirParentEntry()-1)*PRODOS_ENTRY_SIZE
	if offset < 4 || offset+PRODOS_ENTRY_SIZE > BlockSize {
		return errors.Wrapf(ErrCorruptStructure, "parent entry %d of %s", header.GetDirParentEntry(), header.GetVolumeName())
	}
	parent.SetData(data[offset:offset+PRODOS_ENTRY_SIZE], header.GetDirParentPointer(), offset)
	parent.SetTotalBlocks(parent.TotalBlocks() + 1)
	parent.SetSize(parent.Size() + BlockSize)
	return parent.Publish()
}

func (d *ProdosDisk) initDirectoryBlock(target int, entry *ProDOSFileDescriptor) error {
	block := make([]byte, BlockSize)
	dh := &VDH{blockid: target, blockoffset: 4}

	// required by ProDOS 8
	dh.Data[0x10] = 0x75

	dh.SetStorageType(StorageType_SubDir_Header)
	dh.SetName(entry.Filename())
	dh.SetCreateTime(time.Now())
	dh.SetAccess(AccessType_Default | AccessType_Changed)
	dh.SetEntriesPerBlock(PRODOS_ENTRIES_PER_BLOCK)
	dh.SetEntryLength(PRODOS_ENTRY_SIZE)
	dh.SetFileCount(0)
	dh.SetDirParentPointer(entry.blockid)
	dh.SetDirParentEntry(entry.entryNum)
	dh.SetDirParentEntryLength(PRODOS_ENTRY_SIZE)
	dh.SetMinVersion(0x00)
	dh.SetVersion(0x00)

	copy(block[4:], dh.Data[:])
	return d.image.WriteBlock(target, block)
}

func (d *ProdosDisk) FreeSpace() int {
	vb, err := d.GetVolumeBitmap()
	if err != nil {
		return 0
	}
	return vb.FreeBlocks() * BlockSize
}

func (d *ProdosDisk) UsedSpace() int {
	vb, err := d.GetVolumeBitmap()
	if err != nil {
		return 0
	}
	return (vb.total - vb.FreeBlocks()) * BlockSize
}

func (d *ProdosDisk) BitmapDimensions() (int, int, bool) {
	total := d.BitmapLength()
	if total == 0 || total%BlocksPerTrack != 0 {
		return 0, 0, false
	}
	return total / BlocksPerTrack, BlocksPerTrack, true
}

func (d *ProdosDisk) BitmapLength() int {
	vdh, err := d.volumeHeader()
	if err != nil {
		return 0
	}
	return vdh.GetTotalBlocks()
}

func (d *ProdosDisk) DiskUsage() DiskUsage {
	vb, err := d.GetVolumeBitmap()
	if err != nil {
		return NewBitmapUsage(0, nil)
	}
	return NewBitmapUsage(vb.total, vb.IsBlockFree)
}

func (d *ProdosDisk) BitmapLabels() []string {
	return []string{"Block"}
}

func (d *ProdosDisk) DiskInformation() []DiskInformation {
	list := StandardDiskInformation(d)
	vdh, err := d.volumeHeader()
	if err != nil {
		return list
	}
	list = append(list,
		infoInt("Total Blocks", vdh.GetTotalBlocks()),
		infoInt("Free Blocks", d.FreeSpace()/BlockSize),
		infoInt("Used Blocks", d.UsedSpace()/BlockSize),
		infoInt("Volume Bitmap Start", vdh.GetBitmapPointer()),
		infoInt("Directory Entry Length", vdh.GetEntryLength()),
		infoInt("Entries Per Block", vdh.GetEntriesPerBlock()),
		infoInt("Active Files", vdh.GetFileCount()),
		infoString("Creation Date", formatStamp(vdh.CreateTime())),
	)
	return list
}

func (d *ProdosDisk) FileColumnHeaders(mode DisplayMode) []FileColumnHeader {
	native := []FileColumnHeader{
		{Title: "", MaximumWidth: 1, Alignment: AlignCenter},
		{Title: "Name", MaximumWidth: 15, Alignment: AlignLeft},
		{Title: "Filetype", MaximumWidth: 8, Alignment: AlignCenter},
		{Title: "Blocks", MaximumWidth: 3, Alignment: AlignRight},
		{Title: "Modified", MaximumWidth: 15, Alignment: AlignCenter},
		{Title: "Created", MaximumWidth: 15, Alignment: AlignCenter},
		{Title: "Length", MaximumWidth: 10, Alignment: AlignRight},
		{Title: "Aux. Type", MaximumWidth: 8, Alignment: AlignLeft},
	}
	switch mode {
	case DisplayNative:
		return native
	case DisplayDetail:
		return append(native,
			FileColumnHeader{Title: "Storage", MaximumWidth: 12, Alignment: AlignLeft},
			FileColumnHeader{Title: "Key Block", MaximumWidth: 5, Alignment: AlignRight},
			FileColumnHeader{Title: "Access", MaximumWidth: 4, Alignment: AlignCenter},
		)
	}
	return StandardFileColumnHeaders()
}

func (d *ProdosDisk) CanHaveDirectories() bool   { return true }
func (d *ProdosDisk) SupportsDeletedFiles() bool { return false }
func (d *ProdosDisk) CanReadFileData() bool      { return true }
func (d *ProdosDisk) CanWriteFileData() bool     { return true }
func (d *ProdosDisk) CanCreateFile() bool        { return true }
func (d *ProdosDisk) CanDeleteFile() bool        { return true }
func (d *ProdosDisk) LogicalDiskNumber() int     { return 0 }

func (d *ProdosDisk) entry(fe FileEntry) (*ProDOSFileDescriptor, error) {
	fd, ok := fe.(*ProDOSFileDescriptor)
	if !ok || fd.disk != d {
		return nil, errors.Errorf("file entry does not belong to %s", d.image.Filename())
	}
	return fd, nil
}

func (d *ProdosDisk) checkBlock(fd *ProDOSFileDescriptor, block int) error {
	if block < 0 || block >= d.image.Blocks() {
		return errors.Wrapf(ErrCorruptStructure, "%s points at block %d", fd.Filename(), block)
	}
	return nil
}

// readIndex decodes a split index block: low bytes first, high bytes in the
// second half.
func (d *ProdosDisk) readIndex(fd *ProDOSFileDescriptor, block int) ([]int, error) {
	if err := d.checkBlock(fd, block); err != nil {
		return nil, err
	}
	data, err := d.image.ReadBlock(block)
	if err != nil {
		return nil, err
	}
	ptrs := make([]int, 256)
	for i := range ptrs {
		ptrs[i] = int(data[i]) + 256*int(data[i+256])
	}
	return ptrs, nil
}

func writeIndex(ptrs []int) []byte {
	data := make([]byte, BlockSize)
	for i, p := range ptrs {
		data[i] = byte(p & 0xff)
		data[i+256] = byte(p >> 8)
	}
	return data
}

// dataBlocks lists the data blocks of a file in order, 0 for sparse holes.
func (d *ProdosDisk) dataBlocks(fd *ProDOSFileDescriptor) ([]int, error) {
	key := fd.IndexBlock()
	switch fd.GetStorageType() {
	case StorageType_Seedling:
		return []int{key}, nil
	case StorageType_Sapling:
		return d.readIndex(fd, key)
	case StorageType_Tree:
		master, err := d.readIndex(fd, key)
		if err != nil {
			return nil, err
		}
		var out []int
		for _, sub := range master[:128] {
			if sub == 0 {
				out = append(out, make([]int, 256)...)
				continue
			}
			ptrs, err := d.readIndex(fd, sub)
			if err != nil {
				return nil, err
			}
			out = append(out, ptrs...)
		}
		return out, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedOperation, "%s has storage type %s", fd.Filename(), fd.GetStorageType())
}

// allocatedBlocks lists every block owned by an entry, index blocks included.
func (d *ProdosDisk) allocatedBlocks(fd *ProDOSFileDescriptor) ([]int, error) {
	key := fd.IndexBlock()
	if key == 0 {
		return nil, nil
	}
	var out []int
	switch fd.GetStorageType() {
	case StorageType_Seedling:
		out = append(out, key)
	case StorageType_Sapling:
		ptrs, err := d.readIndex(fd, key)
		if err != nil {
			return nil, err
		}
		out = append(out, key)
		out = appendNonZero(out, ptrs)
	case StorageType_Tree:
		master, err := d.readIndex(fd, key)
		if err != nil {
			return nil, err
		}
		out = append(out, key)
		for _, sub := range master[:128] {
			if sub == 0 {
				continue
			}
			ptrs, err := d.readIndex(fd, sub)
			if err != nil {
				return nil, err
			}
			out = append(out, sub)
			out = appendNonZero(out, ptrs)
		}
	case StorageType_SubDir_File:
		dir, err := d.readDirectory(key)
		if err != nil {
			return nil, err
		}
		out = append(out, dir.blocks...)
	default:
		return nil, errors.Wrapf(ErrUnsupportedOperation, "%s has storage type %s", fd.Filename(), fd.GetStorageType())
	}
	return out, nil
}

func appendNonZero(out []int, ptrs []int) []int {
	for _, p := range ptrs {
		if p != 0 {
			out = append(out, p)
		}
	}
	return out
}

func (d *ProdosDisk) FileData(fe FileEntry) ([]byte, error) {
	fd, err := d.entry(fe)
	if err != nil {
		return nil, err
	}
	if fd.IsDirectory() {
		return nil, errors.Wrapf(ErrUnsupportedOperation, "%s is a directory", fd.Filename())
	}
	blocks, err := d.dataBlocks(fd)
	if err != nil {
		return nil, err
	}
	size := fd.Size()
	needed := (size + BlockSize - 1) / BlockSize
	if needed > len(blocks) {
		return nil, errors.Wrapf(ErrCorruptStructure, "%s is %d bytes but indexes %d blocks", fd.Filename(), size, len(blocks))
	}

	out := make([]byte, 0, needed*BlockSize)
	for _, b := range blocks[:needed] {
		if b == 0 {
			out = append(out, make([]byte, BlockSize)...)
			continue
		}
		if err := d.checkBlock(fd, b); err != nil {
			return nil, err
		}
		chunk, err := d.image.ReadBlock(b)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out[:size], nil
}

// writeFileData stores data as a seedling, sapling or tree file in place
// of the entry's current blocks.
func (d *ProdosDisk) writeFileData(fd *ProDOSFileDescriptor, data []byte) error {
	vb, err := d.GetVolumeBitmap()
	if err != nil {
		return err
	}
	old, err := d.allocatedBlocks(fd)
	if err != nil {
		return err
	}
	for _, b := range old {
		vb.SetBlockFree(b, true)
	}

	count := (len(data) + BlockSize - 1) / BlockSize
	if count == 0 {
		count = 1
	}
	var st ProDOSStorageType
	var indexes int
	switch {
	case count == 1:
		st = StorageType_Seedling
	case count <= 256:
		st = StorageType_Sapling
		indexes = 1
	case count <= 128*256:
		st = StorageType_Tree
		indexes = 1 + (count+255)/256
	default:
		return errors.Errorf("%d bytes is too large for a ProDOS file", len(data))
	}

	blocks, err := vb.Allocate(count + indexes)
	if err != nil {
		return errors.Wrapf(err, "writing %s", fd.Filename())
	}
	indexBlocks, dataBlocks := blocks[:indexes], blocks[indexes:]

	for i, b := range dataBlocks {
		chunk := make([]byte, BlockSize)
		if i*BlockSize < len(data) {
			copy(chunk, data[i*BlockSize:])
		}
		if err := d.image.WriteBlock(b, chunk); err != nil {
			return err
		}
	}

	key := dataBlocks[0]
	switch st {
	case StorageType_Sapling:
		key = indexBlocks[0]
		if err := d.image.WriteBlock(key, writeIndex(dataBlocks)); err != nil {
			return err
		}
	case StorageType_Tree:
		key = indexBlocks[0]
		subs := indexBlocks[1:]
		for i, sub := range subs {
			end := (i + 1) * 256
			if end > len(dataBlocks) {
				end = len(dataBlocks)
			}
			if err := d.image.WriteBlock(sub, writeIndex(dataBlocks[i*256:end])); err != nil {
				return err
			}
		}
		if err := d.image.WriteBlock(key, writeIndex(subs)); err != nil {
			return err
		}
	}

	if err := vb.Publish(d.image); err != nil {
		return err
	}
	fd.SetStorageType(st)
	fd.SetIndexBlock(key)
	fd.SetTotalBlocks(len(blocks))
	fd.SetSize(len(data))
	fd.SetModTime(time.Now())
	return fd.Publish()
}

func (d *ProdosDisk) Format() error {
	total := d.image.Blocks()
	if total > PRODOS_MAX_BLOCKS {
		total = PRODOS_MAX_BLOCKS
	}
	bitmapBlocks := (total + 4095) / 4096
	if total < PRODOS_BITMAP_START+bitmapBlocks {
		return errors.Wrapf(ErrInvalidGeometry, "%d blocks is too small for ProDOS", total)
	}

	zero := make([]byte, BlockSize)
	for b := 0; b < d.image.Blocks(); b++ {
		if err := d.image.WriteBlock(b, zero); err != nil {
			return err
		}
	}
	if err := d.image.WriteBootCode(d.opts.BootCode); err != nil {
		return err
	}

	for i := 0; i < PRODOS_VOLUME_DIR_BLOCKS; i++ {
		b := PRODOS_VOLUME_DIR + i
		block := make([]byte, BlockSize)
		if i > 0 {
			block[0] = byte(b - 1)
		}
		if i < PRODOS_VOLUME_DIR_BLOCKS-1 {
			block[2] = byte(b + 1)
		}
		if err := d.image.WriteBlock(b, block); err != nil {
			return err
		}
	}

	name := d.opts.VolumeName
	if name == "" {
		name = PRODOS_DEFAULT_VOLUME
	}
	vdh := &VDH{blockid: PRODOS_VOLUME_DIR, blockoffset: 4}
	vdh.SetStorageType(StorageType_Volume_Header)
	vdh.SetName(d.SuggestedFilename(name))
	vdh.SetCreateTime(time.Now())
	vdh.SetAccess(AccessType_Default | AccessType_Changed)
	vdh.SetEntryLength(PRODOS_ENTRY_SIZE)
	vdh.SetEntriesPerBlock(PRODOS_ENTRIES_PER_BLOCK)
	vdh.SetFileCount(0)
	vdh.SetBitmapPointer(PRODOS_BITMAP_START)
	vdh.SetTotalBlocks(total)
	if err := vdh.Publish(d.image); err != nil {
		return err
	}

	vb := &ProDOSVolumeBitmap{total: total, Data: make([]byte, bitmapBlocks*BlockSize)}
	for i := 0; i < bitmapBlocks; i++ {
		vb.blocks = append(vb.blocks, PRODOS_BITMAP_START+i)
	}
	for b := PRODOS_BITMAP_START + bitmapBlocks; b < total; b++ {
		vb.SetBlockFree(b, true)
	}
	return vb.Publish(d.image)
}

func (d *ProdosDisk) SuggestedFilename(name string) string {
	name = strings.ToUpper(unidecode.Unidecode(name))
	var sb strings.Builder
	for _, ch := range strings.TrimSpace(name) {
		switch {
		case ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '.':
			sb.WriteRune(ch)
		default:
			sb.WriteRune('.')
		}
	}
	name = sb.String()
	if name == "" || name[0] < 'A' || name[0] > 'Z' {
		name = "A" + name
	}
	if len(name) > PRODOS_MAX_FILENAME {
		name = name[:PRODOS_MAX_FILENAME]
	}
	return name
}

func (d *ProdosDisk) Filetypes() []string {
	var types []string
	for code, info := range ProDOSTypeMap {
		if code != FileType_PD_Directory {
			types = append(types, info[0])
		}
	}
	slices.Sort(types)
	return slices.Compact(types)
}

func (d *ProdosDisk) NeedsAddress(filetype string) bool {
	return strings.EqualFold(filetype, "BIN")
}

// ProDOSFileDescriptor is one 39 byte directory entry.
type ProDOSFileDescriptor struct {
	Data        [PRODOS_ENTRY_SIZE]byte
	blockid     int
	blockoffset int
	entryNum    int
	dirKey      int
	disk        *ProdosDisk
}

func (fd *ProDOSFileDescriptor) SetData(data []byte, blockid int, blockoffset int) {
	fd.blockid = blockid
	fd.blockoffset = blockoffset
	copy(fd.Data[:], data)
}

func (fd *ProDOSFileDescriptor) Publish() error {
	data, err := fd.disk.image.ReadBlock(fd.blockid)
	if err != nil {
		return err
	}
	copy(data[fd.blockoffset:], fd.Data[:])
	return fd.disk.image.WriteBlock(fd.blockid, data)
}

func (fd *ProDOSFileDescriptor) FormattedDisk() FormattedDisk {
	return fd.disk
}

func (fd *ProDOSFileDescriptor) GetNameLength() int {
	return int(fd.Data[0] & 0xf)
}

func (fd *ProDOSFileDescriptor) GetStorageType() ProDOSStorageType {
	return ProDOSStorageType((fd.Data[0]) >> 4)
}

func (fd *ProDOSFileDescriptor) SetStorageType(t ProDOSStorageType) {
	fd.Data[0] = (fd.Data[0] & 0x0f) | (byte(t) << 4)
}

func (fd *ProDOSFileDescriptor) Filename() string {
	return strings.Trim(fromHighASCII(fd.Data[1:1+fd.GetNameLength()]), " ")
}

func (fd *ProDOSFileDescriptor) SetName(name string) {
	name = strings.ToUpper(name)
	if len(name) > PRODOS_MAX_FILENAME {
		name = name[:PRODOS_MAX_FILENAME]
	}
	for i := 0; i < PRODOS_MAX_FILENAME; i++ {
		fd.Data[1+i] = 0
	}
	copy(fd.Data[1:], name)
	fd.Data[0] = (fd.Data[0] & 0xf0) | byte(len(name))
}

// SetFilename also renames the header of a subdirectory.
func (fd *ProDOSFileDescriptor) SetFilename(name string) error {
	fd.SetName(name)
	if fd.IsDirectory() {
		vdh, err := fd.disk.GetVDH(fd.IndexBlock())
		if err != nil {
			return err
		}
		vdh.SetName(name)
		if err := vdh.Publish(fd.disk.image); err != nil {
			return err
		}
	}
	return fd.Publish()
}

func (fd *ProDOSFileDescriptor) AccessMode() ProDOSAccessMode {
	return ProDOSAccessMode(fd.Data[0x1e])
}

func (fd *ProDOSFileDescriptor) SetAccessMode(t ProDOSAccessMode) {
	fd.Data[0x1e] = byte(t)
}

func (fd *ProDOSFileDescriptor) IsLocked() bool {
	a := fd.AccessMode()
	return a&(AccessType_Destroy|AccessType_Rename|AccessType_Writable) == 0
}

func (fd *ProDOSFileDescriptor) SetLocked(b bool) error {
	accessMode := fd.AccessMode()
	if b {
		accessMode = accessMode & (AccessType_Changed | AccessType_Readable)
	} else {
		accessMode = accessMode | AccessType_Destroy | AccessType_Writable | AccessType_Rename
	}
	fd.SetAccessMode(accessMode)
	return fd.Publish()
}

func (fd *ProDOSFileDescriptor) CreateTime() time.Time {
	return prodosStampBytesToTime(fd.Data[0x18:0x1C])
}

func (fd *ProDOSFileDescriptor) SetCreateTime(t time.Time) {
	copy(fd.Data[0x18:], timeToProdosStampBytes(t))
}

func (fd *ProDOSFileDescriptor) ModTime() time.Time {
	return prodosStampBytesToTime(fd.Data[0x21:0x25])
}

func (fd *ProDOSFileDescriptor) SetModTime(t time.Time) {
	copy(fd.Data[0x21:], timeToProdosStampBytes(t))
}

func (fd *ProDOSFileDescriptor) Type() ProDOSFileType {
	return ProDOSFileType(fd.Data[0x10])
}

func (fd *ProDOSFileDescriptor) SetType(t ProDOSFileType) {
	fd.Data[0x10] = byte(t)
}

func (fd *ProDOSFileDescriptor) Filetype() string {
	return fd.Type().Ext()
}

func (fd *ProDOSFileDescriptor) SetFiletype(filetype string) error {
	ft, ok := ProDOSFileTypeFromExt(filetype)
	if !ok {
		return errors.Errorf("unknown ProDOS file type '%s'", filetype)
	}
	if fd.IsDirectory() || ft == FileType_PD_Directory {
		return errors.Wrap(ErrUnsupportedOperation, "directory file types cannot be changed")
	}
	fd.SetType(ft)
	return fd.Publish()
}

func (fd *ProDOSFileDescriptor) IndexBlock() int {
	return int(fd.Data[0x11]) + 256*int(fd.Data[0x12])
}

func (fd *ProDOSFileDescriptor) SetIndexBlock(b int) {
	fd.Data[0x11] = byte(b & 0xff)
	fd.Data[0x12] = byte(b / 256)
}

func (fd *ProDOSFileDescriptor) TotalBlocks() int {
	return int(fd.Data[0x13]) + 256*int(fd.Data[0x14])
}

func (fd *ProDOSFileDescriptor) SetTotalBlocks(b int) {
	fd.Data[0x13] = byte(b & 0xff)
	fd.Data[0x14] = byte(b / 256)
}

func (fd *ProDOSFileDescriptor) Size() int {
	return int(fd.Data[0x15]) + 256*int(fd.Data[0x16]) + 65536*int(fd.Data[0x17])
}

func (fd *ProDOSFileDescriptor) SetSize(v int) {
	fd.Data[0x15] = byte(v & 0xff)
	fd.Data[0x16] = byte((v >> 8) & 0xff)
	fd.Data[0x17] = byte((v >> 16) & 0xff)
}

func (fd *ProDOSFileDescriptor) AuxType() int {
	return int(fd.Data[0x1f]) + 256*int(fd.Data[0x20])
}

func (fd *ProDOSFileDescriptor) SetAuxType(b int) {
	fd.Data[0x1f] = byte(b & 0xff)
	fd.Data[0x20] = byte(b / 256)
}

func (fd *ProDOSFileDescriptor) HeaderPointer() int {
	return int(fd.Data[0x25]) + 256*int(fd.Data[0x26])
}

func (fd *ProDOSFileDescriptor) SetHeaderPointer(v int) {
	fd.Data[0x25] = byte(v & 0xff)
	fd.Data[0x26] = byte(v / 256)
}

func (fd *ProDOSFileDescriptor) IsDirectory() bool {
	return fd.GetStorageType() == StorageType_SubDir_File
}

func (fd *ProDOSFileDescriptor) Files() ([]FileEntry, error) {
	if !fd.IsDirectory() {
		return nil, nil
	}
	return fd.disk.catalog(fd.IndexBlock())
}

// CreateFile adds an unpopulated entry to this subdirectory.
func (fd *ProDOSFileDescriptor) CreateFile() (FileEntry, error) {
	if !fd.IsDirectory() {
		return nil, errors.Wrapf(ErrUnsupportedOperation, "%s is not a directory", fd.Filename())
	}
	return fd.disk.createEntry(fd.IndexBlock(), "", false)
}

func (fd *ProDOSFileDescriptor) CreateDirectory(name string) (FileEntry, error) {
	if !fd.IsDirectory() {
		return nil, errors.Wrapf(ErrUnsupportedOperation, "%s is not a directory", fd.Filename())
	}
	return fd.disk.createEntry(fd.IndexBlock(), name, true)
}

func (fd *ProDOSFileDescriptor) IsDeleted() bool {
	return false
}

// Delete releases the entry's blocks and clears its slot. Directories must
// be empty.
func (fd *ProDOSFileDescriptor) Delete() error {
	if fd.AccessMode()&AccessType_Destroy == 0 {
		return errors.Errorf("%s is locked", fd.Filename())
	}
	if fd.IsDirectory() {
		children, err := fd.Files()
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return errors.Errorf("directory %s is not empty", fd.Filename())
		}
	}

	vb, err := fd.disk.GetVolumeBitmap()
	if err != nil {
		return err
	}
	blocks, err := fd.disk.allocatedBlocks(fd)
	if err != nil {
		return err
	}
	header, err := fd.disk.GetVDH(fd.dirKey)
	if err != nil {
		return err
	}

	for _, b := range blocks {
		vb.SetBlockFree(b, true)
	}
	if err := vb.Publish(fd.disk.image); err != nil {
		return err
	}
	fd.Data[0] = 0
	if err := fd.Publish(); err != nil {
		return err
	}
	if header.GetFileCount() > 0 {
		header.SetFileCount(header.GetFileCount() - 1)
	}
	return header.Publish(fd.disk.image)
}

func (fd *ProDOSFileDescriptor) FileData() ([]byte, error) {
	return fd.disk.FileData(fd)
}

func (fd *ProDOSFileDescriptor) SetFileData(data []byte) error {
	if fd.IsDirectory() {
		return errors.Wrapf(ErrUnsupportedOperation, "%s is a directory", fd.Filename())
	}
	return fd.disk.writeFileData(fd, data)
}

func (fd *ProDOSFileDescriptor) NeedsAddress() bool {
	return fd.Type() == FileType_PD_BIN
}

// Address is the aux type, which holds the load address of BIN files.
func (fd *ProDOSFileDescriptor) Address() int {
	return fd.AuxType()
}

func (fd *ProDOSFileDescriptor) SetAddress(address int) error {
	if !fd.NeedsAddress() {
		return errors.Wrapf(ErrUnsupportedOperation, "file type %s has no address", fd.Filetype())
	}
	fd.SetAuxType(address)
	return fd.Publish()
}

func (fd *ProDOSFileDescriptor) FileColumnData(mode DisplayMode) []string {
	locked := " "
	if fd.IsLocked() {
		locked = "*"
	}
	native := []string{
		locked,
		fd.Filename(),
		fd.Filetype(),
		fmt.Sprintf("%d", fd.TotalBlocks()),
		formatStamp(fd.ModTime()),
		formatStamp(fd.CreateTime()),
		fmt.Sprintf("%d", fd.Size()),
		fmt.Sprintf("$%.4X", fd.AuxType()),
	}
	switch mode {
	case DisplayNative:
		return native
	case DisplayDetail:
		return append(native,
			fd.GetStorageType().String(),
			fmt.Sprintf("%d", fd.IndexBlock()),
			fmt.Sprintf("$%.2X", byte(fd.AccessMode())),
		)
	}
	return StandardFileColumnData(fd)
}
