package disk

import (
	"testing"

	"emperror.dev/errors"
	"github.com/go-test/deep"
)

type fakeEntry struct {
	readOnlyEntry
	name     string
	locked   bool
	size     int
	dir      bool
	children []FileEntry
	err      error
}

func (e *fakeEntry) Filename() string                    { return e.name }
func (e *fakeEntry) Filetype() string                    { return "BIN" }
func (e *fakeEntry) IsLocked() bool                      { return e.locked }
func (e *fakeEntry) Size() int                           { return e.size }
func (e *fakeEntry) IsDeleted() bool                     { return false }
func (e *fakeEntry) FileData() ([]byte, error)           { return nil, nil }
func (e *fakeEntry) NeedsAddress() bool                  { return false }
func (e *fakeEntry) Address() int                        { return 0 }
func (e *fakeEntry) FormattedDisk() FormattedDisk        { return nil }
func (e *fakeEntry) FileColumnData(DisplayMode) []string { return StandardFileColumnData(e) }
func (e *fakeEntry) IsDirectory() bool                   { return e.dir }
func (e *fakeEntry) Files() ([]FileEntry, error)         { return e.children, e.err }

// fakeDisk only answers what GetFile asks of it.
type fakeDisk struct {
	FormattedDisk
	files []FileEntry
}

func (d *fakeDisk) Files() ([]FileEntry, error) { return d.files, nil }
func (d *fakeDisk) DiskName() string            { return "FAKE" }

func TestGetFileIgnoresCaseAndSpace(t *testing.T) {
	d := &fakeDisk{files: []FileEntry{&fakeEntry{name: "HELLO  "}}}
	for _, name := range []string{"HELLO", "hello", "  Hello "} {
		fe, err := GetFile(d, name)
		if err != nil || fe.Filename() != "HELLO  " {
			t.Errorf("%q: %v", name, err)
		}
	}
	if _, err := GetFile(d, "HELL"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("prefix matched: %v", err)
	}
}

func TestGetFileSearchesFirstDirectoryOnly(t *testing.T) {
	d := &fakeDisk{files: []FileEntry{
		&fakeEntry{name: "DIR.A", dir: true, children: []FileEntry{&fakeEntry{name: "X"}}},
		&fakeEntry{name: "FILE.B"},
		&fakeEntry{name: "DIR.C", dir: true, children: []FileEntry{&fakeEntry{name: "Y"}}},
	}}
	if fe, err := GetFile(d, "x"); err != nil || fe.Filename() != "X" {
		t.Errorf("X: %v", err)
	}
	for _, name := range []string{"FILE.B", "Y", "DIR.A", "DIR.C"} {
		if _, err := GetFile(d, name); !errors.Is(err, ErrFileNotFound) {
			t.Errorf("%s: expected not found, got %v", name, err)
		}
	}

	broken := errors.New("unreadable directory")
	d.files[0].(*fakeEntry).err = broken
	if _, err := GetFile(d, "X"); !errors.Is(err, broken) {
		t.Errorf("directory error: %v", err)
	}
}

func TestStandardColumns(t *testing.T) {
	headers := StandardFileColumnHeaders()
	var titles []string
	for _, h := range headers {
		titles = append(titles, h.Title)
	}
	if diff := deep.Equal(titles, []string{"Name", "Type", "Size (bytes)", "Locked?"}); diff != nil {
		t.Error(diff)
	}
	if !headers[0].IsLeftAlign() || !headers[1].IsCenterAlign() || !headers[2].IsRightAlign() {
		t.Error("wrong alignment")
	}
	row := StandardFileColumnData(&fakeEntry{name: "A", locked: true, size: 12})
	if diff := deep.Equal(row, []string{"A", "BIN", "12", "Locked"}); diff != nil {
		t.Error(diff)
	}
}

func TestStandardDiskInformation(t *testing.T) {
	d := newDOS(t, OrderDOS)
	var labels []string
	for _, info := range StandardDiskInformation(d) {
		labels = append(labels, info.Label)
	}
	if diff := deep.Equal(labels, []string{
		"File Name", "Disk Name",
		"Physical Size (bytes)", "Free Space (bytes)", "Used Space (bytes)",
		"Physical Size (KB)", "Free Space (KB)", "Used Space (KB)",
		"Archive Order", "Disk Format",
	}); diff != nil {
		t.Error(diff)
	}
	for _, order := range []SectorOrder{OrderDOS, OrderProDOS, Order2IMG} {
		img, _ := NewBlankDiskImage("x", order, Disk525Size)
		want := map[SectorOrder]string{OrderDOS: "DOS 3.3", OrderProDOS: "ProDOS", Order2IMG: "2IMG"}[order]
		if got := ArchiveOrder(img); got != want {
			t.Errorf("%s: %s", order, got)
		}
	}
}

func TestDiskUsageCursor(t *testing.T) {
	u := NewBitmapUsage(3, func(unit int) bool { return unit != 1 })
	var got []bool
	for u.HasNext() {
		u.Next()
		got = append(got, u.IsFree())
	}
	if diff := deep.Equal(got, []bool{true, false, true}); diff != nil {
		t.Error(diff)
	}
	if !u.IsFree() || u.IsUsed() {
		t.Error("cursor moved after the last unit")
	}

	expectPanic := func(name string, f func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s did not panic", name)
			}
		}()
		f()
	}
	expectPanic("IsFree before Next", func() { NewBitmapUsage(3, nil).IsFree() })
	expectPanic("IsUsed before Next", func() { NewBitmapUsage(3, nil).IsUsed() })
	expectPanic("Next past the end", u.Next)
	expectPanic("Next on empty map", usedMap(nil).Next)
}
