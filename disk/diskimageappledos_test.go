package disk

import (
	"bytes"
	"testing"

	"emperror.dev/errors"
	"github.com/go-test/deep"
)

func newDOS(t *testing.T, order SectorOrder) *DOSDisk {
	t.Helper()
	img, err := NewBlankDiskImage("dos.dsk", order, Disk525Size)
	if err != nil {
		t.Fatal(err)
	}
	d := NewDOSDisk(img, Options{})
	if err := d.Format(); err != nil {
		t.Fatal(err)
	}
	return d
}

func addDOSFile(t *testing.T, d *DOSDisk, name, filetype string, data []byte) FileEntry {
	t.Helper()
	fe, err := d.CreateFile()
	if err != nil {
		t.Fatal(err)
	}
	if err := fe.SetFilename(name); err != nil {
		t.Fatal(err)
	}
	if err := fe.SetFiletype(filetype); err != nil {
		t.Fatal(err)
	}
	if err := fe.SetFileData(data); err != nil {
		t.Fatal(err)
	}
	return fe
}

func TestDOSFormat(t *testing.T) {
	for _, order := range []SectorOrder{OrderDOS, OrderProDOS} {
		d := newDOS(t, order)
		if !IsAppleDOS(d.Image()) {
			t.Fatalf("%s: formatted disk not recognised", order)
		}
		if d.DiskName() != "DISK VOLUME #254" {
			t.Errorf("disk name %q", d.DiskName())
		}
		files, err := d.Files()
		if err != nil || len(files) != 0 {
			t.Errorf("%s: %d files, %v", order, len(files), err)
		}
		if d.FreeSpace() != 33*16*SectorSize {
			t.Errorf("free %d", d.FreeSpace())
		}
		if d.FreeSpace()+d.UsedSpace() != Disk525Size {
			t.Errorf("free %d + used %d", d.FreeSpace(), d.UsedSpace())
		}
	}
}

func TestDOSFormatNeeds35Tracks(t *testing.T) {
	img, _ := NewBlankDiskImage("big.po", OrderProDOS, Disk800KSize)
	if err := NewDOSDisk(img, Options{}).Format(); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("got %v", err)
	}
}

func TestDOSFormatBootCode(t *testing.T) {
	img, _ := NewBlankDiskImage("boot.dsk", OrderDOS, Disk525Size)
	if err := NewDOSDisk(img, Options{BootCode: []byte{0x01, 0xA5, 0x27}}).Format(); err != nil {
		t.Fatal(err)
	}
	s0, _ := img.ReadSector(0, 0)
	if !bytes.Equal(s0[:3], []byte{0x01, 0xA5, 0x27}) {
		t.Errorf("boot sector % x", s0[:3])
	}
}

func TestDOSFileRoundTrip(t *testing.T) {
	d := newDOS(t, OrderDOS)
	text := bytes.Repeat([]byte("HELLO WORLD\r"), 100)
	addDOSFile(t, d, "GREETING", "T", text)

	bin := []byte{0xA9, 0xC1, 0x20, 0xED, 0xFD, 0x60}
	fe, err := d.CreateFile()
	if err != nil {
		t.Fatal(err)
	}
	_ = fe.SetFilename("PRINTA")
	_ = fe.SetFiletype("B")
	if err := fe.SetAddress(0x300); err != nil {
		t.Fatal(err)
	}
	if err := fe.SetFileData(bin); err != nil {
		t.Fatal(err)
	}

	found, err := GetFile(d, "greeting")
	if err != nil {
		t.Fatal(err)
	}
	got, err := found.FileData()
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := d.FileData(found)
	if !bytes.Equal(raw[:len(text)], text) {
		t.Error("raw text differs")
	}
	if diff := deep.Equal(got, raw); diff != nil {
		t.Error(diff)
	}
	if found.Size() != 6*SectorSize {
		t.Errorf("size %d", found.Size())
	}

	found, err = GetFile(d, " PRINTA ")
	if err != nil {
		t.Fatal(err)
	}
	if found.Address() != 0x300 || !found.NeedsAddress() {
		t.Errorf("address %x", found.Address())
	}
	got, _ = found.FileData()
	if diff := deep.Equal(got, bin); diff != nil {
		t.Error(diff)
	}
	raw, _ = d.FileData(found)
	if diff := deep.Equal(raw[:4], []byte{0x00, 0x03, 0x06, 0x00}); diff != nil {
		t.Errorf("B header: %v", diff)
	}
}

func TestDOSApplesoftPrefix(t *testing.T) {
	d := newDOS(t, OrderDOS)
	prog := []byte{0x01, 0x08, 0x0A, 0x00, 0xBA, 0x00, 0x00, 0x00}
	fe := addDOSFile(t, d, "HELLO", "A", prog)
	got, _ := fe.FileData()
	if diff := deep.Equal(got, prog); diff != nil {
		t.Error(diff)
	}
	raw, _ := d.FileData(fe)
	if raw[0] != byte(len(prog)) || raw[1] != 0 {
		t.Errorf("length prefix % x", raw[:2])
	}
}

func TestDOSFiletypes(t *testing.T) {
	d := newDOS(t, OrderDOS)
	if diff := deep.Equal(d.Filetypes(), []string{"T", "I", "A", "B", "S", "R", "a", "b"}); diff != nil {
		t.Error(diff)
	}
	fe := addDOSFile(t, d, "X", "a", nil)
	if fe.Filetype() != "a" {
		t.Errorf("type %s", fe.Filetype())
	}
	if err := fe.SetFiletype("BIN"); err == nil {
		t.Error("ProDOS type accepted")
	}
	if !d.NeedsAddress("B") || d.NeedsAddress("b") || d.NeedsAddress("T") {
		t.Error("NeedsAddress")
	}
}

func TestDOSLockAndDelete(t *testing.T) {
	d := newDOS(t, OrderDOS)
	free := d.FreeSpace()
	fe := addDOSFile(t, d, "DOOMED", "T", make([]byte, 1000))
	if d.FreeSpace() != free-5*SectorSize {
		t.Errorf("free %d after 1000 byte file", d.FreeSpace())
	}
	if err := fe.SetLocked(true); err != nil {
		t.Fatal(err)
	}
	again, _ := GetFile(d, "DOOMED")
	if !again.IsLocked() {
		t.Error("lock not published")
	}
	if err := again.Delete(); err == nil {
		t.Error("deleted a locked file")
	}
	_ = again.SetLocked(false)

	if err := again.Delete(); err != nil {
		t.Fatal(err)
	}
	if d.FreeSpace() != free {
		t.Errorf("free %d after delete, want %d", d.FreeSpace(), free)
	}
	files, _ := d.Files()
	if len(files) != 1 || !files[0].IsDeleted() || files[0].Filename() != "DOOMED" {
		t.Fatalf("deleted entry not kept: %v", files)
	}
	if _, err := GetFile(d, "DOOMED"); err != nil {
		t.Errorf("lookup of a deleted name: %v", err)
	}

	// the slot is reused
	addDOSFile(t, d, "NEW", "T", []byte("X"))
	files, _ = d.Files()
	if len(files) != 1 || files[0].Filename() != "NEW" {
		t.Errorf("slot not reused")
	}
}

func TestDOSDiskFullLeavesImage(t *testing.T) {
	d := newDOS(t, OrderDOS)
	fe, err := d.CreateFile()
	if err != nil {
		t.Fatal(err)
	}
	before := d.Image().Fingerprint()
	err = fe.SetFileData(make([]byte, 600*SectorSize))
	if !errors.Is(err, ErrDiskFull) {
		t.Fatalf("got %v", err)
	}
	if d.Image().Fingerprint() != before {
		t.Error("failed write changed the image")
	}
}

func TestDOSCatalogFull(t *testing.T) {
	d := newDOS(t, OrderDOS)
	for i := 0; i < 15*DOS_CATALOG_ENTRIES; i++ {
		if _, err := d.CreateFile(); err != nil {
			t.Fatalf("file %d: %v", i, err)
		}
	}
	before := d.Image().Fingerprint()
	if _, err := d.CreateFile(); !errors.Is(err, ErrDiskFull) {
		t.Errorf("got %v", err)
	}
	if d.Image().Fingerprint() != before {
		t.Error("failed create changed the image")
	}
}

func TestDOSUsage(t *testing.T) {
	d := newDOS(t, OrderDOS)
	addDOSFile(t, d, "F", "T", make([]byte, 3000))

	rows, cols, ok := d.BitmapDimensions()
	if !ok || rows != 35 || cols != 16 || d.BitmapLength() != 560 {
		t.Errorf("dimensions %d x %d %v", rows, cols, ok)
	}
	u := d.DiskUsage()
	free, used := 0, 0
	for u.HasNext() {
		u.Next()
		if u.IsFree() {
			free++
		}
		if u.IsUsed() {
			used++
		}
	}
	if free+used != d.BitmapLength() || free*SectorSize != d.FreeSpace() {
		t.Errorf("cursor %d free %d used, disk %d free", free, used, d.FreeSpace()/SectorSize)
	}
}

func TestDOSInformation(t *testing.T) {
	d := newDOS(t, OrderDOS)
	info := d.DiskInformation()
	var labels []string
	for _, i := range info {
		labels = append(labels, i.Label)
	}
	want := []string{
		"File Name", "Disk Name", "Physical Size (bytes)", "Free Space (bytes)", "Used Space (bytes)",
		"Physical Size (KB)", "Free Space (KB)", "Used Space (KB)", "Archive Order", "Disk Format",
		"Volume Number", "Catalog Start", "DOS Version", "Tracks", "Sectors per Track", "Free Sectors",
	}
	if diff := deep.Equal(labels, want); diff != nil {
		t.Error(diff)
	}
	if info[8].Value != "DOS 3.3" || info[11].Value != "T17 S15" {
		t.Errorf("order %s, catalog %s", info[8].Value, info[11].Value)
	}
}

func TestDOSColumns(t *testing.T) {
	d := newDOS(t, OrderDOS)
	fe := addDOSFile(t, d, "LIST", "T", []byte("1"))
	_ = fe.SetLocked(true)
	for _, mode := range []DisplayMode{DisplayStandard, DisplayNative, DisplayDetail} {
		if len(d.FileColumnHeaders(mode)) != len(fe.FileColumnData(mode)) {
			t.Errorf("mode %d: header and data widths differ", mode)
		}
	}
	if diff := deep.Equal(fe.FileColumnData(DisplayNative), []string{"*", "T", "002", "LIST"}); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(fe.FileColumnData(DisplayStandard), []string{"LIST", "T", "512", "Locked"}); diff != nil {
		t.Error(diff)
	}
}

func TestDOSSuggestedFilename(t *testing.T) {
	d := newDOS(t, OrderDOS)
	tests := [][2]string{
		{"hello", "HELLO"},
		{"1st, file", "A1ST FILE"},
		{"café", "CAFE"},
		{"a very long name indeed that", "A VERY LONG NAME INDEED THAT"},
		{"abcdefghijklmnopqrstuvwxyz01234", "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123"},
	}
	for _, tt := range tests {
		if got := d.SuggestedFilename(tt[0]); got != tt[1] {
			t.Errorf("%q: got %q, want %q", tt[0], got, tt[1])
		}
	}
}

func TestDOSEntryOwnership(t *testing.T) {
	a := newDOS(t, OrderDOS)
	b := newDOS(t, OrderDOS)
	fe := addDOSFile(t, a, "MINE", "T", []byte("x"))
	if _, err := b.FileData(fe); err == nil {
		t.Error("foreign entry accepted")
	}
}

func TestDOSCorruptCatalogLoop(t *testing.T) {
	d := newDOS(t, OrderDOS)
	s, _ := d.Image().ReadSector(DOS_VTOC_TRACK, 14)
	s[1], s[2] = DOS_VTOC_TRACK, 15
	_ = d.Image().WriteSector(DOS_VTOC_TRACK, 14, s)
	if _, err := d.Files(); !errors.Is(err, ErrCorruptStructure) {
		t.Errorf("got %v", err)
	}
	if IsAppleDOS(d.Image()) {
		t.Error("looping catalog identified as DOS")
	}
}

func TestDOSCreateOnFullDisk(t *testing.T) {
	d := newDOS(t, OrderDOS)
	// 523 data sectors need 5 track/sector lists, which is every free sector
	addDOSFile(t, d, "BIG", "T", make([]byte, 523*SectorSize))
	if d.FreeSpace() != 0 {
		t.Fatalf("free %d", d.FreeSpace())
	}
	files, _ := d.Files()
	before := d.Image().Fingerprint()
	if _, err := d.CreateFile(); !errors.Is(err, ErrDiskFull) {
		t.Errorf("got %v", err)
	}
	after, _ := d.Files()
	if len(after) != len(files) || d.FreeSpace() != 0 || d.Image().Fingerprint() != before {
		t.Error("failed create changed the disk")
	}
}

func TestDOSDeletedNameKeepsTrack(t *testing.T) {
	d := newDOS(t, OrderDOS)
	long := "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123"
	fe := addDOSFile(t, d, long, "T", []byte("GONE"))
	entry := fe.(*DOSFileEntry)
	track, _ := entry.GetTrackSectorListStart()
	if err := fe.Delete(); err != nil {
		t.Fatal(err)
	}

	files, _ := d.Files()
	deleted := files[0].(*DOSFileEntry)
	if int(deleted.Data[0x20]) != track {
		t.Errorf("original track %d not kept, slot holds %d", track, deleted.Data[0x20])
	}
	if diff := deep.Equal(
		[]string{deleted.Filename(), deleted.FileColumnData(DisplayNative)[3]},
		[]string{long[:DOS_MAX_FILENAME-1], long[:DOS_MAX_FILENAME-1]},
	); diff != nil {
		t.Error(diff)
	}
	if _, err := GetFile(d, long[:DOS_MAX_FILENAME-1]); err != nil {
		t.Errorf("deleted entry lookup: %v", err)
	}
}
