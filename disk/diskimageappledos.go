package disk

import (
	"fmt"
	"strings"

	"emperror.dev/errors"
	"github.com/gosimple/unidecode"
)

const DOS_VTOC_TRACK = 17
const DOS_VTOC_SECTOR = 0
const DOS_VOLUME_NUMBER = 254
const DOS_CATALOG_FIRST_ENTRY = 0x0B
const DOS_CATALOG_ENTRY_SIZE = 35
const DOS_CATALOG_ENTRIES = 7
const DOS_TS_FIRST_PAIR = 0x0C
const DOS_TS_PAIRS = 122
const DOS_MAX_FILENAME = 30
const DOS_DELETED = 0xFF

type FileType byte

const (
	FileTypeTXT FileType = 0x00
	FileTypeINT FileType = 0x01
	FileTypeAPP FileType = 0x02
	FileTypeBIN FileType = 0x04
	FileTypeS   FileType = 0x08
	FileTypeREL FileType = 0x10
	FileTypeA   FileType = 0x20
	FileTypeB   FileType = 0x40
)

var AppleDOSTypeMap = map[FileType][2]string{
	FileTypeTXT: {"T", "ASCII Text"},
	FileTypeINT: {"I", "Integer Basic Program"},
	FileTypeAPP: {"A", "Applesoft Basic Program"},
	FileTypeBIN: {"B", "Binary File"},
	FileTypeS:   {"S", "S File Type"},
	FileTypeREL: {"R", "Relocatable Object Code"},
	FileTypeA:   {"a", "A File Type"},
	FileTypeB:   {"b", "B File Type"},
}

var appleDOSTypes = []string{"T", "I", "A", "B", "S", "R", "a", "b"}

func (ft FileType) String() string {
	info, ok := AppleDOSTypeMap[ft]
	if ok {
		return info[1]
	}
	return "Unknown"
}

func (ft FileType) Ext() string {
	info, ok := AppleDOSTypeMap[ft]
	if ok {
		return info[0]
	}
	return fmt.Sprintf("$%.2X", byte(ft))
}

// AppleDOSFileTypeFromExt is case sensitive: "A" and "a" are different types.
func AppleDOSFileTypeFromExt(ext string) (FileType, bool) {
	for ft, info := range AppleDOSTypeMap {
		if ext == info[0] {
			return ft, true
		}
	}
	return 0, false
}

type VTOC struct {
	Data [SectorSize]byte
}

func (v *VTOC) GetCatalogStart() (int, int) {
	return int(v.Data[1]), int(v.Data[2])
}

func (v *VTOC) GetDOSVersion() byte {
	return v.Data[3]
}

func (v *VTOC) GetVolumeID() int {
	return int(v.Data[6])
}

func (v *VTOC) GetMaxTSPairsPerSector() int {
	return int(v.Data[0x27])
}

func (v *VTOC) GetTracks() int {
	return int(v.Data[0x34])
}

func (v *VTOC) GetSectors() int {
	return int(v.Data[0x35])
}

func (v *VTOC) BytesPerSector() int {
	return int(v.Data[0x36]) + 256*int(v.Data[0x37])
}

func (v *VTOC) IsTSFree(t, s int) bool {
	offset := 0x38 + t*4
	if s < 8 {
		offset++
	}
	bitmask := byte(1 << uint(s&0x7))

	return (v.Data[offset]&bitmask != 0)
}

// SetTSFree marks a T/S free or not
func (v *VTOC) SetTSFree(t, s int, b bool) {
	offset := 0x38 + t*4
	if s < 8 {
		offset++
	}
	bitmask := byte(1 << uint(s&0x7))

	if b {
		v.Data[offset] |= bitmask
	} else {
		v.Data[offset] &= 0xff ^ bitmask
	}
}

func (v *VTOC) FreeSectors() int {
	count := 0
	for t := 0; t < v.GetTracks(); t++ {
		for s := 0; s < v.GetSectors(); s++ {
			if v.IsTSFree(t, s) {
				count++
			}
		}
	}
	return count
}

func (v *VTOC) valid(tracks int) error {
	ct, cs := v.GetCatalogStart()
	switch {
	case v.GetTracks() == 0 || v.GetTracks() > tracks || v.GetTracks() > 50:
		return errors.Wrapf(ErrCorruptStructure, "VTOC claims %d tracks", v.GetTracks())
	case v.GetSectors() != SectorsPerTrack:
		return errors.Wrapf(ErrCorruptStructure, "VTOC claims %d sectors per track", v.GetSectors())
	case v.BytesPerSector() != SectorSize:
		return errors.Wrapf(ErrCorruptStructure, "VTOC claims %d bytes per sector", v.BytesPerSector())
	case ct == 0 || ct >= v.GetTracks() || cs >= SectorsPerTrack:
		return errors.Wrapf(ErrCorruptStructure, "VTOC catalog start T%d S%d", ct, cs)
	}
	return nil
}

// DOSDisk is Apple DOS 3.3 on a 16 sector image.
type DOSDisk struct {
	image *DiskImage
	opts  Options
}

func NewDOSDisk(img *DiskImage, opts Options) *DOSDisk {
	return &DOSDisk{image: img, opts: opts}
}

// IsAppleDOS checks the VTOC and that the catalog chain can be walked.
func IsAppleDOS(img *DiskImage) bool {
	d := NewDOSDisk(img, Options{})
	if _, err := d.GetVTOC(); err != nil {
		return false
	}
	err := d.walkCatalog(func(t, s int, data []byte, offset int) bool { return false })
	return err == nil
}

func (d *DOSDisk) Image() *DiskImage {
	return d.image
}

func (d *DOSDisk) GetVTOC() (*VTOC, error) {
	data, err := d.image.ReadSector(DOS_VTOC_TRACK, DOS_VTOC_SECTOR)
	if err != nil {
		return nil, err
	}
	vtoc := &VTOC{}
	copy(vtoc.Data[:], data)
	if err := vtoc.valid(d.image.Tracks()); err != nil {
		return nil, err
	}
	return vtoc, nil
}

func (d *DOSDisk) publishVTOC(vtoc *VTOC) error {
	return d.image.WriteSector(DOS_VTOC_TRACK, DOS_VTOC_SECTOR, vtoc.Data[:])
}

// walkCatalog visits every catalog slot in order until fn returns true.
func (d *DOSDisk) walkCatalog(fn func(t, s int, data []byte, offset int) bool) error {
	vtoc, err := d.GetVTOC()
	if err != nil {
		return err
	}
	seen := make(map[int]bool)
	ct, cs := vtoc.GetCatalogStart()
	for ct != 0 || cs != 0 {
		if seen[ct*SectorsPerTrack+cs] {
			return errors.Wrapf(ErrCorruptStructure, "catalog chain loops at T%d S%d", ct, cs)
		}
		seen[ct*SectorsPerTrack+cs] = true

		data, err := d.image.ReadSector(ct, cs)
		if err != nil {
			return errors.Wrapf(ErrCorruptStructure, "catalog sector T%d S%d: %v", ct, cs, err)
		}
		for slot := 0; slot < DOS_CATALOG_ENTRIES; slot++ {
			if fn(ct, cs, data, DOS_CATALOG_FIRST_ENTRY+slot*DOS_CATALOG_ENTRY_SIZE) {
				return nil
			}
		}
		ct, cs = int(data[1]), int(data[2])
	}
	return nil
}

func (d *DOSDisk) DiskName() string {
	vtoc, err := d.GetVTOC()
	if err != nil {
		return "DISK VOLUME #???"
	}
	return fmt.Sprintf("DISK VOLUME #%d", vtoc.GetVolumeID())
}

func (d *DOSDisk) FormatName() string {
	return "DOS 3.3"
}

func (d *DOSDisk) Files() ([]FileEntry, error) {
	var files []FileEntry
	err := d.walkCatalog(func(t, s int, data []byte, offset int) bool {
		if data[offset] != 0x00 {
			fd := &DOSFileEntry{disk: d, track: t, sector: s, offset: offset}
			copy(fd.Data[:], data[offset:offset+DOS_CATALOG_ENTRY_SIZE])
			files = append(files, fd)
		}
		return false
	})
	return files, err
}

func (d *DOSDisk) CreateFile() (FileEntry, error) {
	vtoc, err := d.GetVTOC()
	if err != nil {
		return nil, err
	}
	if vtoc.FreeSectors() == 0 {
		return nil, errors.Wrap(ErrDiskFull, "no free sector for a track/sector list")
	}

	var fd *DOSFileEntry
	err = d.walkCatalog(func(t, s int, data []byte, offset int) bool {
		if data[offset] == 0x00 || data[offset] == DOS_DELETED {
			fd = &DOSFileEntry{disk: d, track: t, sector: s, offset: offset}
			return true
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	if fd == nil {
		return nil, errors.Wrap(ErrDiskFull, "catalog is full")
	}

	tsList, err := d.allocate(vtoc, 1)
	if err != nil {
		return nil, err
	}
	if err := d.image.WriteSector(tsList[0][0], tsList[0][1], make([]byte, SectorSize)); err != nil {
		return nil, err
	}
	if err := d.publishVTOC(vtoc); err != nil {
		return nil, err
	}

	fd.SetTrackSectorListStart(tsList[0][0], tsList[0][1])
	fd.Data[2] = byte(FileTypeTXT)
	toHighASCII(fd.Data[3:3+DOS_MAX_FILENAME], "")
	fd.Data[0x20] = 0
	fd.SetTotalSectors(1)
	return fd, fd.Publish()
}

// allocate takes n free sectors from the VTOC copy, highest tracks first,
// skipping the catalog track. Nothing is written to the image.
func (d *DOSDisk) allocate(vtoc *VTOC, n int) ([][2]int, error) {
	catTrack, _ := vtoc.GetCatalogStart()
	var out [][2]int
	for t := vtoc.GetTracks() - 1; t >= 0 && len(out) < n; t-- {
		if t == catTrack {
			continue
		}
		for s := vtoc.GetSectors() - 1; s >= 0 && len(out) < n; s-- {
			if vtoc.IsTSFree(t, s) {
				out = append(out, [2]int{t, s})
			}
		}
	}
	if len(out) < n {
		return nil, errors.Wrapf(ErrDiskFull, "need %d sectors, %d free", n, len(out))
	}
	for _, pair := range out {
		vtoc.SetTSFree(pair[0], pair[1], false)
	}
	return out, nil
}

func (d *DOSDisk) FreeSpace() int {
	vtoc, err := d.GetVTOC()
	if err != nil {
		return 0
	}
	return vtoc.FreeSectors() * SectorSize
}

func (d *DOSDisk) UsedSpace() int {
	vtoc, err := d.GetVTOC()
	if err != nil {
		return 0
	}
	return (vtoc.GetTracks()*vtoc.GetSectors() - vtoc.FreeSectors()) * SectorSize
}

func (d *DOSDisk) BitmapDimensions() (int, int, bool) {
	vtoc, err := d.GetVTOC()
	if err != nil {
		return 0, 0, false
	}
	return vtoc.GetTracks(), vtoc.GetSectors(), true
}

func (d *DOSDisk) BitmapLength() int {
	rows, cols, _ := d.BitmapDimensions()
	return rows * cols
}

func (d *DOSDisk) BitmapLabels() []string {
	return []string{"Track", "Sector"}
}

// dosUsage walks the VTOC free map track by track.
type dosUsage struct {
	vtoc          *VTOC
	track, sector int
	loaded        bool
	current       bool
}

func (d *DOSDisk) DiskUsage() DiskUsage {
	vtoc, err := d.GetVTOC()
	if err != nil {
		return NewBitmapUsage(0, nil)
	}
	return &dosUsage{vtoc: vtoc, sector: -1}
}

func (u *dosUsage) HasNext() bool {
	return u.track < u.vtoc.GetTracks()-1 || (u.track == u.vtoc.GetTracks()-1 && u.sector < u.vtoc.GetSectors()-1)
}

func (u *dosUsage) Next() {
	if !u.HasNext() {
		panic(usageExhausted)
	}
	u.sector++
	if u.sector >= u.vtoc.GetSectors() {
		u.sector = 0
		u.track++
	}
	u.current = u.vtoc.IsTSFree(u.track, u.sector)
	u.loaded = true
}

func (u *dosUsage) IsFree() bool {
	if !u.loaded {
		panic(usageNotPositioned)
	}
	return u.current
}

func (u *dosUsage) IsUsed() bool {
	return !u.IsFree()
}

func (d *DOSDisk) DiskInformation() []DiskInformation {
	list := StandardDiskInformation(d)
	vtoc, err := d.GetVTOC()
	if err != nil {
		return list
	}
	ct, cs := vtoc.GetCatalogStart()
	list = append(list,
		infoInt("Volume Number", vtoc.GetVolumeID()),
		infoString("Catalog Start", fmt.Sprintf("T%d S%d", ct, cs)),
		infoInt("DOS Version", int(vtoc.GetDOSVersion())),
		infoInt("Tracks", vtoc.GetTracks()),
		infoInt("Sectors per Track", vtoc.GetSectors()),
		infoInt("Free Sectors", vtoc.FreeSectors()),
	)
	return list
}

func (d *DOSDisk) FileColumnHeaders(mode DisplayMode) []FileColumnHeader {
	switch mode {
	case DisplayNative:
		return []FileColumnHeader{
			{Title: "", MaximumWidth: 1, Alignment: AlignCenter},
			{Title: "Type", MaximumWidth: 1, Alignment: AlignCenter},
			{Title: "Size (sectors)", MaximumWidth: 3, Alignment: AlignRight},
			{Title: "Name", MaximumWidth: 30, Alignment: AlignLeft},
		}
	case DisplayDetail:
		return []FileColumnHeader{
			{Title: "", MaximumWidth: 1, Alignment: AlignCenter},
			{Title: "Type", MaximumWidth: 1, Alignment: AlignCenter},
			{Title: "Name", MaximumWidth: 30, Alignment: AlignLeft},
			{Title: "Size (bytes)", MaximumWidth: 6, Alignment: AlignRight},
			{Title: "Size (sectors)", MaximumWidth: 3, Alignment: AlignRight},
			{Title: "Deleted?", MaximumWidth: 7, Alignment: AlignCenter},
			{Title: "Track/Sector List", MaximumWidth: 7, Alignment: AlignCenter},
		}
	}
	return StandardFileColumnHeaders()
}

func (d *DOSDisk) CanHaveDirectories() bool   { return false }
func (d *DOSDisk) SupportsDeletedFiles() bool { return true }
func (d *DOSDisk) CanReadFileData() bool      { return true }
func (d *DOSDisk) CanWriteFileData() bool     { return true }
func (d *DOSDisk) CanCreateFile() bool        { return true }
func (d *DOSDisk) CanDeleteFile() bool        { return true }
func (d *DOSDisk) LogicalDiskNumber() int     { return 0 }

func (d *DOSDisk) entry(fe FileEntry) (*DOSFileEntry, error) {
	fd, ok := fe.(*DOSFileEntry)
	if !ok || fd.disk != d {
		return nil, errors.Errorf("file entry does not belong to %s", d.image.Filename())
	}
	return fd, nil
}

// fileSectors follows the T/S list chain of an entry.
func (d *DOSDisk) fileSectors(fd *DOSFileEntry) ([][2]int, [][2]int, error) {
	var lists, data [][2]int
	seen := make(map[int]bool)
	tl, sl := fd.GetTrackSectorListStart()
	for tl != 0 || sl != 0 {
		if tl >= d.image.Tracks() || sl >= SectorsPerTrack {
			return lists, data, errors.Wrapf(ErrCorruptStructure, "%s: T/S list at T%d S%d", fd.Filename(), tl, sl)
		}
		if seen[tl*SectorsPerTrack+sl] {
			return lists, data, errors.Wrapf(ErrCorruptStructure, "%s: T/S list loops at T%d S%d", fd.Filename(), tl, sl)
		}
		seen[tl*SectorsPerTrack+sl] = true
		lists = append(lists, [2]int{tl, sl})

		block, err := d.image.ReadSector(tl, sl)
		if err != nil {
			return lists, data, err
		}
		for ptr := DOS_TS_FIRST_PAIR; ptr < SectorSize; ptr += 2 {
			t, s := int(block[ptr]), int(block[ptr+1])
			if t == 0 && s == 0 {
				break
			}
			if t >= d.image.Tracks() || s >= SectorsPerTrack {
				return lists, data, errors.Wrapf(ErrCorruptStructure, "%s: data sector T%d S%d", fd.Filename(), t, s)
			}
			data = append(data, [2]int{t, s})
		}
		tl, sl = int(block[1]), int(block[2])
	}
	return lists, data, nil
}

func (d *DOSDisk) FileData(fe FileEntry) ([]byte, error) {
	fd, err := d.entry(fe)
	if err != nil {
		return nil, err
	}
	_, sectors, err := d.fileSectors(fd)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(sectors)*SectorSize)
	for _, pair := range sectors {
		chunk, err := d.image.ReadSector(pair[0], pair[1])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// writeFileData replaces the stored bytes of an entry. Space is checked and
// allocated in memory before anything is written.
func (d *DOSDisk) writeFileData(fd *DOSFileEntry, stored []byte) error {
	vtoc, err := d.GetVTOC()
	if err != nil {
		return err
	}
	oldLists, oldData, err := d.fileSectors(fd)
	if err != nil {
		return err
	}
	for _, pair := range append(oldLists, oldData...) {
		vtoc.SetTSFree(pair[0], pair[1], true)
	}

	dataCount := (len(stored) + SectorSize - 1) / SectorSize
	listCount := (dataCount + DOS_TS_PAIRS - 1) / DOS_TS_PAIRS
	if listCount == 0 {
		listCount = 1
	}
	sectors, err := d.allocate(vtoc, listCount+dataCount)
	if err != nil {
		return errors.Wrapf(err, "writing %s", fd.Filename())
	}
	lists, data := sectors[:listCount], sectors[listCount:]

	for i, pair := range data {
		chunk := make([]byte, SectorSize)
		copy(chunk, stored[i*SectorSize:])
		if err := d.image.WriteSector(pair[0], pair[1], chunk); err != nil {
			return err
		}
	}

	for i, pair := range lists {
		buffer := make([]byte, SectorSize)
		if i < len(lists)-1 {
			buffer[0x01] = byte(lists[i+1][0])
			buffer[0x02] = byte(lists[i+1][1])
		}
		offset := i * DOS_TS_PAIRS
		buffer[0x05] = byte(offset & 0xff)
		buffer[0x06] = byte(offset >> 8)
		for j := 0; j < DOS_TS_PAIRS && offset+j < len(data); j++ {
			buffer[DOS_TS_FIRST_PAIR+j*2] = byte(data[offset+j][0])
			buffer[DOS_TS_FIRST_PAIR+j*2+1] = byte(data[offset+j][1])
		}
		if err := d.image.WriteSector(pair[0], pair[1], buffer); err != nil {
			return err
		}
	}

	if err := d.publishVTOC(vtoc); err != nil {
		return err
	}
	fd.SetTrackSectorListStart(lists[0][0], lists[0][1])
	fd.SetTotalSectors(len(sectors))
	return fd.Publish()
}

func (d *DOSDisk) Format() error {
	if d.image.Tracks() != Tracks525 {
		return errors.Wrapf(ErrInvalidGeometry, "DOS 3.3 needs %d tracks, image has %d", Tracks525, d.image.Tracks())
	}

	zero := make([]byte, SectorSize)
	for t := 0; t < d.image.Tracks(); t++ {
		for s := 0; s < SectorsPerTrack; s++ {
			if err := d.image.WriteSector(t, s, zero); err != nil {
				return err
			}
		}
	}
	if err := d.image.WriteBootCode(d.opts.BootCode); err != nil {
		return err
	}

	vtoc := &VTOC{}
	vtoc.Data[0x01] = DOS_VTOC_TRACK
	vtoc.Data[0x02] = SectorsPerTrack - 1
	vtoc.Data[0x03] = 3
	vtoc.Data[0x06] = DOS_VOLUME_NUMBER
	vtoc.Data[0x27] = DOS_TS_PAIRS
	vtoc.Data[0x30] = DOS_VTOC_TRACK
	vtoc.Data[0x31] = 1
	vtoc.Data[0x34] = Tracks525
	vtoc.Data[0x35] = SectorsPerTrack
	vtoc.Data[0x36] = SectorSize & 0xff
	vtoc.Data[0x37] = SectorSize >> 8
	for t := 0; t < Tracks525; t++ {
		for s := 0; s < SectorsPerTrack; s++ {
			vtoc.SetTSFree(t, s, t != 0 && t != DOS_VTOC_TRACK)
		}
	}
	if err := d.publishVTOC(vtoc); err != nil {
		return err
	}

	for s := SectorsPerTrack - 1; s > 0; s-- {
		catalog := make([]byte, SectorSize)
		if s > 1 {
			catalog[1] = DOS_VTOC_TRACK
			catalog[2] = byte(s - 1)
		}
		if err := d.image.WriteSector(DOS_VTOC_TRACK, s, catalog); err != nil {
			return err
		}
	}
	return nil
}

func (d *DOSDisk) SuggestedFilename(name string) string {
	name = strings.ToUpper(unidecode.Unidecode(name))
	var sb strings.Builder
	for _, ch := range name {
		if ch < 32 || ch > 126 || ch == ',' {
			continue
		}
		sb.WriteRune(ch)
	}
	name = strings.TrimSpace(sb.String())
	if name == "" || name[0] < 'A' || name[0] > 'Z' {
		name = "A" + name
	}
	if len(name) > DOS_MAX_FILENAME {
		name = strings.TrimSpace(name[:DOS_MAX_FILENAME])
	}
	return name
}

func (d *DOSDisk) Filetypes() []string {
	return append([]string(nil), appleDOSTypes...)
}

func (d *DOSDisk) NeedsAddress(filetype string) bool {
	return filetype == "B"
}

// DOSFileEntry is a 35 byte catalog slot.
type DOSFileEntry struct {
	Data   [DOS_CATALOG_ENTRY_SIZE]byte
	disk   *DOSDisk
	track  int
	sector int
	offset int
}

// Publish writes the entry back into its catalog sector.
func (fd *DOSFileEntry) Publish() error {
	block, err := fd.disk.image.ReadSector(fd.track, fd.sector)
	if err != nil {
		return err
	}
	copy(block[fd.offset:], fd.Data[:])
	return fd.disk.image.WriteSector(fd.track, fd.sector, block)
}

func (fd *DOSFileEntry) FormattedDisk() FormattedDisk {
	return fd.disk
}

func (fd *DOSFileEntry) GetTrackSectorListStart() (int, int) {
	if fd.IsDeleted() {
		return int(fd.Data[0x20]), int(fd.Data[1])
	}
	return int(fd.Data[0]), int(fd.Data[1])
}

func (fd *DOSFileEntry) SetTrackSectorListStart(t, s int) {
	fd.Data[0] = byte(t)
	fd.Data[1] = byte(s)
}

func (fd *DOSFileEntry) Type() FileType {
	return FileType(fd.Data[2] & 0x7f)
}

func (fd *DOSFileEntry) TotalSectors() int {
	return int(fd.Data[0x21]) + 256*int(fd.Data[0x22])
}

func (fd *DOSFileEntry) SetTotalSectors(v int) {
	fd.Data[0x21] = byte(v & 0xff)
	fd.Data[0x22] = byte(v >> 8)
}

// Filename of a deleted entry drops the last byte, which then holds the
// original T/S list track.
func (fd *DOSFileEntry) Filename() string {
	n := DOS_MAX_FILENAME
	if fd.IsDeleted() {
		n--
	}
	return strings.TrimRight(fromHighASCII(fd.Data[3:3+n]), " ")
}

func (fd *DOSFileEntry) SetFilename(name string) error {
	if len(name) > DOS_MAX_FILENAME {
		name = name[:DOS_MAX_FILENAME]
	}
	toHighASCII(fd.Data[3:3+DOS_MAX_FILENAME], name)
	return fd.Publish()
}

func (fd *DOSFileEntry) Filetype() string {
	return fd.Type().Ext()
}

func (fd *DOSFileEntry) SetFiletype(filetype string) error {
	ft, ok := AppleDOSFileTypeFromExt(filetype)
	if !ok {
		return errors.Errorf("unknown DOS 3.3 file type '%s'", filetype)
	}
	fd.Data[2] = (fd.Data[2] & 0x80) | byte(ft)
	return fd.Publish()
}

func (fd *DOSFileEntry) IsLocked() bool {
	return fd.Data[2]&0x80 != 0
}

func (fd *DOSFileEntry) SetLocked(b bool) error {
	fd.Data[2] &= 0x7f
	if b {
		fd.Data[2] |= 0x80
	}
	return fd.Publish()
}

func (fd *DOSFileEntry) Size() int {
	return fd.TotalSectors() * SectorSize
}

func (fd *DOSFileEntry) IsDirectory() bool {
	return false
}

func (fd *DOSFileEntry) Files() ([]FileEntry, error) {
	return nil, nil
}

func (fd *DOSFileEntry) IsDeleted() bool {
	return fd.Data[0] == DOS_DELETED
}

// Delete frees the file's sectors and marks the slot deleted. The name and
// the original T/S list track stay in the slot. Locked files are refused.
func (fd *DOSFileEntry) Delete() error {
	if fd.IsDeleted() {
		return nil
	}
	if fd.IsLocked() {
		return errors.Errorf("%s is locked", fd.Filename())
	}
	vtoc, err := fd.disk.GetVTOC()
	if err != nil {
		return err
	}
	lists, data, err := fd.disk.fileSectors(fd)
	if err != nil {
		return err
	}
	for _, pair := range append(lists, data...) {
		vtoc.SetTSFree(pair[0], pair[1], true)
	}
	if err := fd.disk.publishVTOC(vtoc); err != nil {
		return err
	}
	fd.Data[0x20] = fd.Data[0]
	fd.Data[0] = DOS_DELETED
	return fd.Publish()
}

func (fd *DOSFileEntry) FileData() ([]byte, error) {
	raw, err := fd.disk.FileData(fd)
	if err != nil {
		return nil, err
	}
	switch fd.Type() {
	case FileTypeBIN:
		if len(raw) < 4 {
			return []byte{}, nil
		}
		return clampPrefixed(raw[4:], int(raw[2])+256*int(raw[3])), nil
	case FileTypeAPP, FileTypeINT:
		if len(raw) < 2 {
			return []byte{}, nil
		}
		return clampPrefixed(raw[2:], int(raw[0])+256*int(raw[1])), nil
	}
	return raw, nil
}

func clampPrefixed(data []byte, length int) []byte {
	if length > len(data) {
		length = len(data)
	}
	return data[:length]
}

func (fd *DOSFileEntry) SetFileData(data []byte) error {
	stored := data
	switch fd.Type() {
	case FileTypeBIN:
		addr := fd.Address()
		header := []byte{byte(addr & 0xff), byte(addr >> 8), byte(len(data) & 0xff), byte(len(data) >> 8)}
		stored = append(header, data...)
	case FileTypeAPP, FileTypeINT:
		header := []byte{byte(len(data) & 0xff), byte(len(data) >> 8)}
		stored = append(header, data...)
	}
	return fd.disk.writeFileData(fd, stored)
}

func (fd *DOSFileEntry) NeedsAddress() bool {
	return fd.Type() == FileTypeBIN
}

// Address is the load address stored in the first two bytes of a B file.
func (fd *DOSFileEntry) Address() int {
	if !fd.NeedsAddress() {
		return 0
	}
	raw, err := fd.disk.FileData(fd)
	if err != nil || len(raw) < 2 {
		return 0
	}
	return int(raw[0]) + 256*int(raw[1])
}

func (fd *DOSFileEntry) SetAddress(address int) error {
	if !fd.NeedsAddress() {
		return errors.Wrapf(ErrUnsupportedOperation, "file type %s has no address", fd.Filetype())
	}
	raw, err := fd.disk.FileData(fd)
	if err != nil {
		return err
	}
	if len(raw) < 4 {
		raw = make([]byte, 4)
	}
	raw[0] = byte(address & 0xff)
	raw[1] = byte(address >> 8)
	return fd.disk.writeFileData(fd, raw)
}

func (fd *DOSFileEntry) FileColumnData(mode DisplayMode) []string {
	locked := " "
	if fd.IsLocked() {
		locked = "*"
	}
	switch mode {
	case DisplayNative:
		return []string{
			locked,
			fd.Filetype(),
			fmt.Sprintf("%.3d", fd.TotalSectors()),
			fd.Filename(),
		}
	case DisplayDetail:
		deleted := ""
		if fd.IsDeleted() {
			deleted = "Deleted"
		}
		t, s := fd.GetTrackSectorListStart()
		return []string{
			locked,
			fd.Filetype(),
			fd.Filename(),
			fmt.Sprintf("%d", fd.Size()),
			fmt.Sprintf("%.3d", fd.TotalSectors()),
			deleted,
			fmt.Sprintf("T%d S%d", t, s),
		}
	}
	return StandardFileColumnData(fd)
}
