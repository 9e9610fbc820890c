package disk

import (
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/go-test/deep"
)

func newPascal(t *testing.T, opts Options) *PascalDisk {
	t.Helper()
	img, err := NewBlankDiskImage("pascal.po", OrderProDOS, Disk525Size)
	if err != nil {
		t.Fatal(err)
	}
	d := NewPascalDisk(img, opts)
	if err := d.Format(); err != nil {
		t.Fatal(err)
	}
	return d
}

// addPascalEntry writes a directory entry and its blocks straight onto the
// image and bumps the file count in the volume header. Blocks the entry
// claims past the end of the image are not written.
func addPascalEntry(t *testing.T, d *PascalDisk, slot int, name string, ft PascalFileType, start, next, remaining int, data []byte) {
	t.Helper()
	dir, err := d.image.ReadBlock(PASCAL_VOLUME_BLOCK)
	if err != nil {
		t.Fatal(err)
	}
	e := dir[(slot+1)*PASCAL_DIRECTORY_ENTRY_LENGTH:]
	e[0], e[1] = byte(start), byte(start>>8)
	e[2], e[3] = byte(next), byte(next>>8)
	e[4], e[5] = byte(ft), 0
	e[6] = byte(len(name))
	copy(e[7:], name)
	e[0x16], e[0x17] = byte(remaining), byte(remaining>>8)
	copy(e[0x18:], pascalDateBytes(time.Date(1986, time.March, 14, 0, 0, 0, 0, time.Local)))
	dir[0x10] = byte(slot + 1)
	if err := d.image.WriteBlock(PASCAL_VOLUME_BLOCK, dir); err != nil {
		t.Fatal(err)
	}

	for b := start; b < min(next, d.image.Blocks()); b++ {
		chunk := make([]byte, PASCAL_BLOCK_SIZE)
		copy(chunk, data[min(len(data), (b-start)*PASCAL_BLOCK_SIZE):])
		if err := d.image.WriteBlock(b, chunk); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPascalFormat(t *testing.T) {
	d := newPascal(t, Options{})
	if !IsPascal(d.Image()) {
		t.Fatal("formatted disk not recognised")
	}
	if IsProDOS(d.Image()) || IsAppleDOS(d.Image()) {
		t.Error("Pascal volume mistaken for another filesystem")
	}
	if d.DiskName() != "BLANK:" {
		t.Errorf("disk name %q", d.DiskName())
	}
	if free := d.FreeSpace(); free != (280-PASCAL_DIRECTORY_END)*PASCAL_BLOCK_SIZE {
		t.Errorf("free space %d", free)
	}
	if d.FreeSpace()+d.UsedSpace() != Disk525Size {
		t.Errorf("free %d + used %d", d.FreeSpace(), d.UsedSpace())
	}
	files, err := d.Files()
	if err != nil || len(files) != 0 {
		t.Errorf("new volume has %d files, %v", len(files), err)
	}
	pvh, err := d.GetVolumeHeader()
	if err != nil {
		t.Fatal(err)
	}
	if y := pvh.GetDate().Year(); y != time.Now().Year() {
		t.Errorf("volume date year %d", y)
	}
}

func TestPascalVolumeName(t *testing.T) {
	d := newPascal(t, Options{VolumeName: "my games disk"})
	if d.DiskName() != "MYGAMES:" {
		t.Errorf("disk name %q", d.DiskName())
	}
}

func TestPascalReadOnly(t *testing.T) {
	d := newPascal(t, Options{})
	addPascalEntry(t, d, 0, "HELLO.TEXT", FileType_PAS_TEXT, 6, 8, 100, counting(1024))
	before := d.Image().Fingerprint()

	if d.CanCreateFile() || d.CanWriteFileData() || d.CanDeleteFile() || !d.CanReadFileData() {
		t.Error("wrong capability flags")
	}
	if _, err := d.CreateFile(); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("CreateFile: %v", err)
	}

	fe, err := GetFile(d, "hello.text")
	if err != nil {
		t.Fatal(err)
	}
	for name, err := range map[string]error{
		"SetFilename": fe.SetFilename("OTHER"),
		"SetFiletype": fe.SetFiletype("PCD"),
		"SetLocked":   fe.SetLocked(false),
		"SetFileData": fe.SetFileData([]byte{1}),
		"SetAddress":  fe.SetAddress(0x800),
		"Delete":      fe.Delete(),
	} {
		if !errors.Is(err, ErrUnsupportedOperation) {
			t.Errorf("%s: %v", name, err)
		}
	}
	if !fe.IsLocked() {
		t.Error("Pascal entries should report locked")
	}
	if d.Image().Fingerprint() != before {
		t.Error("refused operations changed the image")
	}
}

func TestPascalFileData(t *testing.T) {
	d := newPascal(t, Options{})
	content := counting(1024)
	addPascalEntry(t, d, 0, "HELLO.TEXT", FileType_PAS_TEXT, 6, 8, 100, content)
	addPascalEntry(t, d, 1, "SYSTEM.CODE", FileType_PAS_CODE, 8, 11, 512, nil)

	files, err := d.Files()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("%d files", len(files))
	}
	hello := files[0].(*PascalFileEntry)
	if diff := deep.Equal(
		[]interface{}{hello.Filename(), hello.Filetype(), hello.Size(), hello.GetModified().Year()},
		[]interface{}{"HELLO.TEXT", "PTX", 612, 1986},
	); diff != nil {
		t.Error(diff)
	}
	data, err := hello.FileData()
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(data, content[:612]); diff != nil {
		t.Error(diff)
	}
	if files[1].Size() != 3*PASCAL_BLOCK_SIZE {
		t.Errorf("SYSTEM.CODE size %d", files[1].Size())
	}
	if free := d.FreeSpace(); free != (280-11)*PASCAL_BLOCK_SIZE {
		t.Errorf("free space %d", free)
	}

	other := newPascal(t, Options{})
	if _, err := other.FileData(hello); err == nil {
		t.Error("read an entry through the wrong disk")
	}
}

func TestPascalCorruptEntry(t *testing.T) {
	d := newPascal(t, Options{})
	addPascalEntry(t, d, 0, "BAD", FileType_PAS_DATA, 300, 302, 10, nil)
	fe, err := GetFile(d, "BAD")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fe.FileData(); !errors.Is(err, ErrCorruptStructure) {
		t.Errorf("entry past end of disk: %v", err)
	}
}

func TestPascalUsage(t *testing.T) {
	d := newPascal(t, Options{})
	addPascalEntry(t, d, 0, "A", FileType_PAS_DATA, 6, 9, 512, nil)
	rows, cols, ok := d.BitmapDimensions()
	if !ok || rows != 35 || cols != 8 {
		t.Errorf("dimensions %d x %d %v", rows, cols, ok)
	}
	usage := d.DiskUsage()
	used := 0
	n := 0
	for usage.HasNext() {
		usage.Next()
		if usage.IsUsed() {
			used++
		}
		n++
	}
	if n != d.BitmapLength() || used != 9 {
		t.Errorf("%d units, %d used", n, used)
	}
}

func TestPascalColumns(t *testing.T) {
	d := newPascal(t, Options{})
	addPascalEntry(t, d, 0, "HELLO.TEXT", FileType_PAS_TEXT, 6, 8, 100, nil)
	fe, _ := GetFile(d, "HELLO.TEXT")
	for _, mode := range []DisplayMode{DisplayStandard, DisplayNative, DisplayDetail} {
		if h, c := len(d.FileColumnHeaders(mode)), len(fe.FileColumnData(mode)); h != c {
			t.Errorf("mode %d: %d headers, %d columns", mode, h, c)
		}
	}
	if diff := deep.Equal(fe.FileColumnData(DisplayNative), []string{"14-Mar-86", "2", "PTX", "HELLO.TEXT"}); diff != nil {
		t.Error(diff)
	}
	info := d.DiskInformation()
	if info[len(info)-2].Label != "Files" || info[len(info)-2].Value != "1" {
		t.Errorf("information ends %v", info[len(info)-2:])
	}
}

func TestPascalSuggestedFilename(t *testing.T) {
	d := NewPascalDisk(nil, Options{})
	for _, tt := range [][2]string{
		{"hello.text", "HELLO.TEXT"},
		{"a$b=c?d", "ABCD"},
		{"  ", "A"},
		{"a very long file name", "AVERYLONGFILENA"},
	} {
		if got := d.SuggestedFilename(tt[0]); got != tt[1] {
			t.Errorf("%q: got %q, want %q", tt[0], got, tt[1])
		}
	}
}

func TestPascalRejectsOtherDisks(t *testing.T) {
	img, _ := NewBlankDiskImage("blank.po", OrderProDOS, Disk525Size)
	if IsPascal(img) {
		t.Error("blank image accepted")
	}
	block := make([]byte, PASCAL_BLOCK_SIZE)
	block[0x02] = PASCAL_DIRECTORY_END
	block[0x06] = 3
	copy(block[0x07:], "A#B")
	block[0x0e] = 0x18
	block[0x0f] = 0x01
	_ = img.WriteBlock(PASCAL_VOLUME_BLOCK, block)
	if IsPascal(img) {
		t.Error("volume name with '#' accepted")
	}
	copy(block[0x07:], "ABC")
	block[0x0f] = 0x02
	_ = img.WriteBlock(PASCAL_VOLUME_BLOCK, block)
	if _, err := NewPascalDisk(img, Options{}).GetVolumeHeader(); !errors.Is(err, ErrCorruptStructure) {
		t.Errorf("oversize volume: %v", err)
	}
	if IsPascal(newProdos(t, OrderProDOS, Disk525Size).Image()) {
		t.Error("ProDOS volume accepted")
	}
}

func TestPascalFormatLargestImage(t *testing.T) {
	img, err := NewBlankDiskImage("big.po", OrderProDOS, MaxImageSize)
	if err != nil {
		t.Fatal(err)
	}
	d := NewPascalDisk(img, Options{})
	if err := d.Format(); err != nil {
		t.Fatal(err)
	}
	pvh, err := d.GetVolumeHeader()
	if err != nil {
		t.Fatalf("formatted volume does not read back: %v", err)
	}
	if pvh.GetTotalBlocks() != PASCAL_MAX_BLOCKS {
		t.Errorf("volume claims %d blocks", pvh.GetTotalBlocks())
	}
	if !IsPascal(img) {
		t.Error("formatted volume not recognised")
	}
}
