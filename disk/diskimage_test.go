package disk

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"emperror.dev/errors"
	"github.com/go-test/deep"
)

func patterned(track, sector int) []byte {
	data := make([]byte, SectorSize)
	for i := range data {
		data[i] = byte(track*31 + sector*7 + i)
	}
	return data
}

func fillImage(t *testing.T, img *DiskImage) {
	t.Helper()
	for tr := 0; tr < img.Tracks(); tr++ {
		for s := 0; s < SectorsPerTrack; s++ {
			if err := img.WriteSector(tr, s, patterned(tr, s)); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func TestSectorRoundTrip(t *testing.T) {
	for _, order := range []SectorOrder{OrderDOS, OrderProDOS, Order2IMG} {
		img, err := NewBlankDiskImage("test", order, Disk525Size)
		if err != nil {
			t.Fatalf("%s: %v", order, err)
		}
		fillImage(t, img)
		for tr := 0; tr < img.Tracks(); tr++ {
			for s := 0; s < SectorsPerTrack; s++ {
				got, err := img.ReadSector(tr, s)
				if err != nil {
					t.Fatal(err)
				}
				if diff := deep.Equal(got, patterned(tr, s)); diff != nil {
					t.Fatalf("%s T%d S%d: %v", order, tr, s, diff)
				}
			}
		}
	}
}

func TestReadSectorIsCopy(t *testing.T) {
	img, _ := NewBlankDiskImage("test", OrderDOS, Disk525Size)
	data, _ := img.ReadSector(3, 3)
	data[0] = 0xAA
	again, _ := img.ReadSector(3, 3)
	if again[0] != 0 {
		t.Error("ReadSector returned a view into the image")
	}
}

func TestSectorBounds(t *testing.T) {
	img, _ := NewBlankDiskImage("test", OrderDOS, Disk525Size)
	before := img.Fingerprint()
	if _, err := img.ReadSector(35, 0); !errors.Is(err, ErrOutOfRange) || !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("read T35: %v", err)
	}
	if err := img.WriteSector(0, 16, make([]byte, SectorSize)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("write S16: %v", err)
	}
	if err := img.WriteSector(0, 0, make([]byte, 10)); err == nil {
		t.Error("short sector accepted")
	}
	if _, err := img.ReadBlock(280); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("block 280: %v", err)
	}
	if img.Fingerprint() != before {
		t.Error("failed writes changed the image")
	}
}

func TestBlocksOverSectors(t *testing.T) {
	for _, order := range []SectorOrder{OrderDOS, OrderProDOS} {
		img, _ := NewBlankDiskImage("test", order, Disk525Size)
		fillImage(t, img)
		block, err := img.ReadBlock(9)
		if err != nil {
			t.Fatal(err)
		}
		want := append(patterned(1, 0x0d), patterned(1, 0x0c)...)
		if diff := deep.Equal(block, want); diff != nil {
			t.Errorf("%s block 9: %v", order, diff)
		}
	}
}

func TestProdosOrderBlocksAreContiguous(t *testing.T) {
	img, _ := NewBlankDiskImage("test", OrderProDOS, Disk525Size)
	for b := 0; b < img.Blocks(); b++ {
		data := bytes.Repeat([]byte{byte(b)}, BlockSize)
		if err := img.WriteBlock(b, data); err != nil {
			t.Fatal(err)
		}
	}
	for b := 0; b < img.Blocks(); b++ {
		chunk := img.data[b*BlockSize : (b+1)*BlockSize]
		if !bytes.Equal(chunk, bytes.Repeat([]byte{byte(b)}, BlockSize)) {
			t.Fatalf("block %d not stored at %d", b, b*BlockSize)
		}
	}
}

func TestReorder(t *testing.T) {
	src, _ := NewBlankDiskImage("test", OrderDOS, Disk525Size)
	fillImage(t, src)
	before := src.Fingerprint()

	po, err := src.Reorder(OrderProDOS)
	if err != nil {
		t.Fatal(err)
	}
	if !po.IsProdosOrder() || po.PhysicalSize() != Disk525Size {
		t.Errorf("reordered image is %s, %d bytes", po.Order(), po.PhysicalSize())
	}
	mg, err := po.Reorder(Order2IMG)
	if err != nil {
		t.Fatal(err)
	}
	if mg.PhysicalSize() != Disk525Size+Header2IMGSize {
		t.Errorf("2IMG size %d", mg.PhysicalSize())
	}
	back, err := mg.Reorder(OrderDOS)
	if err != nil {
		t.Fatal(err)
	}
	if src.Fingerprint() != before {
		t.Error("Reorder modified its receiver")
	}
	if back.Fingerprint() != src.Fingerprint() {
		t.Error("DOS -> ProDOS -> 2IMG -> DOS changed the image")
	}
	for _, img := range []*DiskImage{po, mg} {
		for tr := 0; tr < Tracks525; tr += 7 {
			for s := 0; s < SectorsPerTrack; s++ {
				got, _ := img.ReadSector(tr, s)
				if !bytes.Equal(got, patterned(tr, s)) {
					t.Fatalf("%s T%d S%d differs", img.Order(), tr, s)
				}
			}
		}
	}
}

func Test2IMG(t *testing.T) {
	img, err := NewBlankDiskImage("test.2mg", Order2IMG, Disk800KSize)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := img.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	h, g, err := Parse2IMG(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(
		[]interface{}{h.GetID(), h.GetCreatorID(), h.GetProDOSBlocks(), h.GetDiskDataLength(), g.Tracks},
		[]interface{}{"2IMG", Creator2IMG, 1600, Disk800KSize, 200},
	); diff != nil {
		t.Error(diff)
	}

	dosOrdered := buf.Bytes()
	dosOrdered[0x0C] = format2IMGDOS
	if _, _, err := Parse2IMG(dosOrdered); !errors.Is(err, ErrUnrecognizedImage) {
		t.Errorf("DOS ordered 2IMG: %v", err)
	}
}

func TestWriteBootCode(t *testing.T) {
	img, _ := NewBlankDiskImage("test", OrderProDOS, Disk525Size)
	before := img.Fingerprint()
	if err := img.WriteBootCode(nil); err != nil || img.Fingerprint() != before {
		t.Errorf("empty boot code: %v", err)
	}
	if err := img.WriteBootCode([]byte{0x01, 0xA9}); err != nil {
		t.Fatal(err)
	}
	s0, _ := img.ReadSector(0, 0)
	if s0[0] != 0x01 || s0[1] != 0xA9 || s0[2] != 0 {
		t.Errorf("boot sector starts % x", s0[:3])
	}
}

func TestDetectOrder(t *testing.T) {
	blank := make([]byte, Disk525Size)
	mg, _ := NewBlankDiskImage("x", Order2IMG, Disk525Size)
	tests := []struct {
		name string
		data []byte
		want SectorOrder
	}{
		{"game.dsk", blank, OrderDOS},
		{"game.DO", blank, OrderDOS},
		{"game.po", blank, OrderProDOS},
		{"game.img", blank, OrderDOS},
		{"game.img", make([]byte, Disk800KSize), OrderProDOS},
		{"game.dsk", mg.data, Order2IMG},
	}
	for _, tt := range tests {
		got, err := DetectOrder(tt.name, tt.data)
		if err != nil || got != tt.want {
			t.Errorf("%s (%d bytes): got %s %v, want %s", tt.name, len(tt.data), got, err, tt.want)
		}
	}
	if _, err := DetectOrder("game.2mg", blank); !errors.Is(err, ErrUnrecognizedImage) {
		t.Errorf("2mg without header: %v", err)
	}
}

func TestLoadDiskImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.po")
	img, _ := NewBlankDiskImage(path, OrderProDOS, Disk525Size)
	fillImage(t, img)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := img.WriteTo(f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	loaded, err := LoadDiskImage(path)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.IsProdosOrder() || loaded.Fingerprint() != img.Fingerprint() {
		t.Errorf("loaded %s image, fingerprint match %v", loaded.Order(), loaded.Fingerprint() == img.Fingerprint())
	}
	if _, err := LoadDiskImage(filepath.Join(t.TempDir(), "missing.dsk")); err == nil {
		t.Error("missing file loaded")
	}
}

func TestClone(t *testing.T) {
	img, _ := NewBlankDiskImage("test", OrderDOS, Disk525Size)
	c := img.Clone()
	_ = c.WriteSector(1, 1, patterned(1, 1))
	if img.Fingerprint() == c.Fingerprint() {
		t.Error("clone shares storage")
	}
}

func TestDump(t *testing.T) {
	var sb strings.Builder
	Dump(&sb, []byte("HELLO\x00"))
	if got := sb.String(); got != "0000: 48 45 4C 4C 4F 00 HELLO.\n" {
		t.Errorf("got %q", got)
	}
}

func TestHighASCII(t *testing.T) {
	buf := make([]byte, 6)
	toHighASCII(buf, "HI")
	if diff := deep.Equal(buf, []byte{0xC8, 0xC9, 0xA0, 0xA0, 0xA0, 0xA0}); diff != nil {
		t.Error(diff)
	}
	if got := fromHighASCII(buf); got != "HI    " {
		t.Errorf("got %q", got)
	}
}
