package disk

import (
	"strconv"
	"strings"

	"emperror.dev/errors"
)

// FormattedDisk is a filesystem interpretation of exactly one DiskImage.
// Every mutation goes through the image's sector primitives.
//
// Callers check the Can* flags before calling an operation; an operation
// the filesystem does not support fails with ErrUnsupportedOperation and
// leaves the image untouched.
type FormattedDisk interface {
	Image() *DiskImage

	// DiskName is the volume label stored in the filesystem, such as
	// "DISK VOLUME #254" or "/MY.DISK", not the host filename.
	DiskName() string
	// Files returns the top level entries. Directory entries expose their
	// own children.
	Files() ([]FileEntry, error)
	// CreateFile allocates an unpopulated entry, or fails with ErrDiskFull
	// without modifying the image.
	CreateFile() (FileEntry, error)
	FormatName() string

	FreeSpace() int
	UsedSpace() int
	// BitmapDimensions suggests rows and columns for drawing the bitmap.
	BitmapDimensions() (rows, cols int, ok bool)
	BitmapLength() int
	DiskUsage() DiskUsage
	// BitmapLabels names each unit of the bitmap; at least one label.
	BitmapLabels() []string

	DiskInformation() []DiskInformation
	FileColumnHeaders(mode DisplayMode) []FileColumnHeader

	CanHaveDirectories() bool
	// SupportsDeletedFiles reports whether deleted entries stay in the
	// directory, not whether files can be deleted.
	SupportsDeletedFiles() bool
	CanReadFileData() bool
	CanWriteFileData() bool
	CanCreateFile() bool
	CanDeleteFile() bool

	// FileData returns the bytes stored for an entry with no interpretation
	// of format specific prefixes. Use FileEntry.FileData for that.
	FileData(entry FileEntry) ([]byte, error)
	// Format reinitializes the filesystem. There is no undo.
	Format() error

	// LogicalDiskNumber is 0 unless the image holds several volumes.
	LogicalDiskNumber() int
	// SuggestedFilename turns name into one the filesystem accepts. It does
	// not check uniqueness.
	SuggestedFilename(name string) string
	Filetypes() []string
	NeedsAddress(filetype string) bool
}

// FileEntry is one directory record of a FormattedDisk. It must not outlive
// the disk it came from.
type FileEntry interface {
	Filename() string
	SetFilename(name string) error
	Filetype() string
	SetFiletype(filetype string) error
	IsLocked() bool
	SetLocked(locked bool) error
	// Size in bytes.
	Size() int
	IsDirectory() bool
	// Files lists the children of a directory entry and is nil otherwise.
	Files() ([]FileEntry, error)
	IsDeleted() bool
	Delete() error
	// FileData returns the file contents with format prefixes (load address,
	// length) interpreted and removed.
	FileData() ([]byte, error)
	SetFileData(data []byte) error
	NeedsAddress() bool
	Address() int
	SetAddress(address int) error
	FormattedDisk() FormattedDisk
	FileColumnData(mode DisplayMode) []string
}

// DiskInformation is one label/value line of the disk information page.
type DiskInformation struct {
	Label string
	Value string
}

func infoString(label, value string) DiskInformation {
	return DiskInformation{Label: label, Value: value}
}

func infoInt(label string, value int) DiskInformation {
	return DiskInformation{Label: label, Value: strconv.Itoa(value)}
}

type DisplayMode int

const (
	DisplayStandard DisplayMode = iota + 1
	DisplayNative
	DisplayDetail
)

type Alignment int

const (
	AlignLeft Alignment = iota + 1
	AlignCenter
	AlignRight
)

// FileColumnHeader describes one column of a directory listing. The values
// returned by FileEntry.FileColumnData line up with these.
type FileColumnHeader struct {
	Title        string
	MaximumWidth int
	Alignment    Alignment
}

func (h FileColumnHeader) IsLeftAlign() bool {
	return h.Alignment == AlignLeft
}

func (h FileColumnHeader) IsCenterAlign() bool {
	return h.Alignment == AlignCenter
}

func (h FileColumnHeader) IsRightAlign() bool {
	return h.Alignment == AlignRight
}

// ArchiveOrder labels the ordering of an image for the information page.
func ArchiveOrder(img *DiskImage) string {
	switch {
	case img.Is2ImgOrder():
		return "2IMG"
	case img.IsDosOrder():
		return "DOS 3.3"
	case img.IsProdosOrder():
		return "ProDOS"
	}
	return "Unknown"
}

// StandardDiskInformation builds the information every filesystem reports.
// Implementations append their own lines to it.
func StandardDiskInformation(d FormattedDisk) []DiskInformation {
	img := d.Image()
	return []DiskInformation{
		infoString("File Name", img.Filename()),
		infoString("Disk Name", d.DiskName()),
		infoInt("Physical Size (bytes)", img.PhysicalSize()),
		infoInt("Free Space (bytes)", d.FreeSpace()),
		infoInt("Used Space (bytes)", d.UsedSpace()),
		infoInt("Physical Size (KB)", img.PhysicalSize()/1024),
		infoInt("Free Space (KB)", d.FreeSpace()/1024),
		infoInt("Used Space (KB)", d.UsedSpace()/1024),
		infoString("Archive Order", ArchiveOrder(img)),
		infoString("Disk Format", d.FormatName()),
	}
}

// StandardFileColumnHeaders are the columns of DisplayStandard.
func StandardFileColumnHeaders() []FileColumnHeader {
	return []FileColumnHeader{
		{Title: "Name", MaximumWidth: 30, Alignment: AlignLeft},
		{Title: "Type", MaximumWidth: 8, Alignment: AlignCenter},
		{Title: "Size (bytes)", MaximumWidth: 6, Alignment: AlignRight},
		{Title: "Locked?", MaximumWidth: 6, Alignment: AlignCenter},
	}
}

// StandardFileColumnData matches StandardFileColumnHeaders.
func StandardFileColumnData(e FileEntry) []string {
	locked := ""
	if e.IsLocked() {
		locked = "Locked"
	}
	return []string{
		e.Filename(),
		e.Filetype(),
		strconv.Itoa(e.Size()),
		locked,
	}
}

// GetFile finds an entry by name, ignoring case and surrounding spaces.
//
// At each level only the first directory is searched: once a directory has
// been descended into, its later siblings are never looked at, whether or
// not the directory held a match. Directories themselves never match.
func GetFile(d FormattedDisk, filename string) (FileEntry, error) {
	files, err := d.Files()
	if err != nil {
		return nil, err
	}
	entry, err := findFile(files, strings.TrimSpace(filename))
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, errors.Wrapf(ErrFileNotFound, "%s on %s", filename, d.DiskName())
	}
	return entry, nil
}

func findFile(files []FileEntry, filename string) (FileEntry, error) {
	for _, entry := range files {
		if entry.IsDirectory() {
			children, err := entry.Files()
			if err != nil {
				return nil, err
			}
			return findFile(children, filename)
		}
		if strings.EqualFold(filename, strings.TrimSpace(entry.Filename())) {
			return entry, nil
		}
	}
	return nil, nil
}

// readOnlyEntry supplies the mutators of entries on filesystems that cannot
// change files.
type readOnlyEntry struct{}

func (readOnlyEntry) SetFilename(string) error {
	return errors.WithStack(ErrUnsupportedOperation)
}

func (readOnlyEntry) SetFiletype(string) error {
	return errors.WithStack(ErrUnsupportedOperation)
}

func (readOnlyEntry) SetLocked(bool) error {
	return errors.WithStack(ErrUnsupportedOperation)
}

func (readOnlyEntry) Delete() error {
	return errors.WithStack(ErrUnsupportedOperation)
}

func (readOnlyEntry) SetFileData([]byte) error {
	return errors.WithStack(ErrUnsupportedOperation)
}

func (readOnlyEntry) SetAddress(int) error {
	return errors.WithStack(ErrUnsupportedOperation)
}

func (readOnlyEntry) IsDirectory() bool {
	return false
}

func (readOnlyEntry) Files() ([]FileEntry, error) {
	return nil, nil
}
