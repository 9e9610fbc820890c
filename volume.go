package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/dustin/go-humanize"
	"github.com/paleotronic/a2storage/disk"
)

// volume is an identified disk image together with the fingerprint it had
// when it was loaded, so unchanged images are never rewritten.
type volume struct {
	path        string
	disk        disk.FormattedDisk
	fingerprint uint64
}

func openVolume(path string) (*volume, error) {
	img, err := disk.LoadDiskImage(path)
	if err != nil {
		return nil, err
	}
	opts, err := conf.Options("")
	if err != nil {
		return nil, err
	}
	fd, err := disk.Identify(img, opts)
	if err != nil {
		return nil, err
	}
	return &volume{
		path:        path,
		disk:        fd,
		fingerprint: fd.Image().Fingerprint(),
	}, nil
}

func (v *volume) Changed() bool {
	return v.disk.Image().Fingerprint() != v.fingerprint
}

// Save writes the image back when its contents changed.
func (v *volume) Save() error {
	if !v.Changed() {
		logger.Debugf("%s unchanged, not saving", v.path)
		return nil
	}
	if persistentFlagBackup {
		if err := backupFile(v.path); err != nil {
			return err
		}
	}
	if err := saveDisk(v.disk.Image(), v.path); err != nil {
		return err
	}
	v.fingerprint = v.disk.Image().Fingerprint()
	return nil
}

func backupFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "cannot back up %s", path)
	}

	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	path = strings.Replace(path, ":", "", -1)
	path = strings.Replace(path, "\\", "/", -1)

	bpath := filepath.Join(binpath(), "backup", path+"."+fts())
	if err := os.MkdirAll(filepath.Dir(bpath), 0755); err != nil {
		return errors.WithStack(err)
	}
	if err := os.WriteFile(bpath, data, 0644); err != nil {
		return errors.WithStack(err)
	}

	logger.Logf("backed up %s to %s", path, bpath)
	return nil
}

func saveDisk(img *disk.DiskImage, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := writeAndClose(f, img); err != nil {
		return errors.Wrapf(err, "cannot write %s", path)
	}
	logger.Logf("updated disk %s", path)
	return nil
}

// writeAndClose reports the Close error too; a failed flush is a failed save.
func writeAndClose(w io.WriteCloser, img *disk.DiskImage) error {
	if _, err := img.WriteTo(w); err != nil {
		w.Close()
		return err
	}
	return errors.WithStack(w.Close())
}

func fts() string {
	return time.Now().Format("20060102150405")
}

func parseMode(s string) (disk.DisplayMode, error) {
	switch strings.ToLower(s) {
	case "", "standard":
		return disk.DisplayStandard, nil
	case "native":
		return disk.DisplayNative, nil
	case "detail":
		return disk.DisplayDetail, nil
	}
	return 0, errors.Errorf("unknown display mode '%s' (standard|native|detail)", s)
}

func pad(s string, width int, h disk.FileColumnHeader) string {
	if len(s) >= width {
		return s
	}
	gap := width - len(s)
	switch {
	case h.IsRightAlign():
		return strings.Repeat(" ", gap) + s
	case h.IsCenterAlign():
		left := gap / 2
		return strings.Repeat(" ", left) + s + strings.Repeat(" ", gap-left)
	}
	return s + strings.Repeat(" ", gap)
}

type catalogRow struct {
	depth int
	cells []string
}

func collectRows(files []disk.FileEntry, mode disk.DisplayMode, depth int, deleted bool) ([]catalogRow, error) {
	var rows []catalogRow
	for _, f := range files {
		if f.IsDeleted() && !deleted {
			continue
		}
		rows = append(rows, catalogRow{depth: depth, cells: f.FileColumnData(mode)})
		if f.IsDirectory() {
			children, err := f.Files()
			if err != nil {
				return nil, err
			}
			sub, err := collectRows(children, mode, depth+1, deleted)
			if err != nil {
				return nil, err
			}
			rows = append(rows, sub...)
		}
	}
	return rows, nil
}

// printCatalog lays out the listing using the column headers of the disk.
// Directory contents are indented under their entry.
func printCatalog(w io.Writer, fd disk.FormattedDisk, mode disk.DisplayMode, deleted bool) error {
	files, err := fd.Files()
	if err != nil {
		return err
	}
	headers := fd.FileColumnHeaders(mode)
	rows, err := collectRows(files, mode, 0, deleted && fd.SupportsDeletedFiles())
	if err != nil {
		return err
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h.Title)
	}
	for _, r := range rows {
		for i := range headers {
			if i >= len(r.cells) {
				break
			}
			n := len(r.cells[i])
			if i == 0 {
				n += 2 * r.depth
			}
			if n > widths[i] {
				widths[i] = n
			}
		}
	}

	fmt.Fprintf(w, "%s (%s)\n\n", fd.DiskName(), fd.FormatName())
	var line []string
	for i, h := range headers {
		line = append(line, pad(h.Title, widths[i], h))
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(line, "  "), " "))
	for _, r := range rows {
		line = line[:0]
		for i, h := range headers {
			cell := ""
			if i < len(r.cells) {
				cell = r.cells[i]
			}
			if i == 0 {
				cell = strings.Repeat("  ", r.depth) + cell
			}
			line = append(line, pad(cell, widths[i], h))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(line, "  "), " "))
	}
	fmt.Fprintf(w, "\n%s free, %s used\n",
		humanize.IBytes(uint64(fd.FreeSpace())),
		humanize.IBytes(uint64(fd.UsedSpace())))
	return nil
}

func printInfo(w io.Writer, fd disk.FormattedDisk) {
	info := fd.DiskInformation()
	width := 0
	for _, i := range info {
		if len(i.Label) > width {
			width = len(i.Label)
		}
	}
	for _, i := range info {
		fmt.Fprintf(w, "%-*s : %s\n", width, i.Label, i.Value)
	}
	img := fd.Image()
	fmt.Fprintf(w, "%-*s : %s\n", width, "Size", humanize.IBytes(uint64(img.PhysicalSize())))
	fmt.Fprintf(w, "%-*s : %016x\n", width, "Fingerprint", img.Fingerprint())
}

// printBitmap draws one character per allocation unit: '.' free, '#' used.
func printBitmap(w io.Writer, fd disk.FormattedDisk) {
	_, cols, ok := fd.BitmapDimensions()
	if !ok || cols <= 0 {
		cols = 64
	}
	labels := fd.BitmapLabels()
	fmt.Fprintf(w, "%d %s units, %d per row\n", fd.BitmapLength(), strings.ToLower(strings.Join(labels, "/")), cols)

	usage := fd.DiskUsage()
	var sb strings.Builder
	col := 0
	for usage.HasNext() {
		usage.Next()
		if usage.IsFree() {
			sb.WriteByte('.')
		} else {
			sb.WriteByte('#')
		}
		col++
		if col == cols {
			sb.WriteByte('\n')
			col = 0
		}
	}
	if col != 0 {
		sb.WriteByte('\n')
	}
	fmt.Fprint(w, sb.String())
}

// directoryCreator is implemented by filesystems and entries that can hold
// subdirectories.
type directoryCreator interface {
	CreateDirectory(name string) (disk.FileEntry, error)
}

type fileCreator interface {
	CreateFile() (disk.FileEntry, error)
}

// resolveDir walks a slash separated directory path from the volume root and
// returns the container to create files in along with its listing.
func resolveDir(fd disk.FormattedDisk, dir string) (fileCreator, []disk.FileEntry, error) {
	files, err := fd.Files()
	if err != nil {
		return nil, nil, err
	}
	var container fileCreator = fd
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if part == "" {
			continue
		}
		var next disk.FileEntry
		for _, f := range files {
			if f.IsDirectory() && !f.IsDeleted() && strings.EqualFold(f.Filename(), part) {
				next = f
				break
			}
		}
		if next == nil {
			return nil, nil, errors.Wrapf(disk.ErrFileNotFound, "directory %s", part)
		}
		fc, ok := next.(fileCreator)
		if !ok {
			return nil, nil, errors.Wrapf(disk.ErrUnsupportedOperation, "%s cannot hold files", part)
		}
		container = fc
		if files, err = next.Files(); err != nil {
			return nil, nil, err
		}
	}
	return container, files, nil
}

func splitPath(p string) (string, string) {
	p = strings.Trim(p, "/")
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

// findEntry looks a path up exactly; plain names fall back to GetFile.
func findEntry(fd disk.FormattedDisk, p string) (disk.FileEntry, error) {
	dir, name := splitPath(p)
	if dir == "" {
		return disk.GetFile(fd, name)
	}
	_, files, err := resolveDir(fd, dir)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if !f.IsDeleted() && strings.EqualFold(strings.TrimSpace(f.Filename()), name) {
			return f, nil
		}
	}
	return nil, errors.Wrapf(disk.ErrFileNotFound, "%s on %s", p, fd.DiskName())
}

func defaultFiletype(fd disk.FormattedDisk) string {
	types := fd.Filetypes()
	for _, t := range []string{"BIN", "B"} {
		for _, have := range types {
			if have == t {
				return t
			}
		}
	}
	if len(types) > 0 {
		return types[0]
	}
	return ""
}

// putFile stores data under target, replacing the contents of an existing
// file of the same name. The image is only changed in memory.
func putFile(fd disk.FormattedDisk, target, filetype string, address int, data []byte) (disk.FileEntry, error) {
	if !fd.CanCreateFile() || !fd.CanWriteFileData() {
		return nil, errors.Wrapf(disk.ErrUnsupportedOperation, "%s volumes are read only", fd.FormatName())
	}
	dir, name := splitPath(target)
	container, files, err := resolveDir(fd, dir)
	if err != nil {
		return nil, err
	}
	name = fd.SuggestedFilename(name)
	if filetype == "" {
		filetype = defaultFiletype(fd)
	}

	var entry disk.FileEntry
	for _, f := range files {
		if !f.IsDeleted() && !f.IsDirectory() && strings.EqualFold(strings.TrimSpace(f.Filename()), name) {
			entry = f
			break
		}
	}
	if entry != nil && entry.IsLocked() {
		return nil, errors.Errorf("%s is locked", name)
	}
	if entry == nil {
		if entry, err = container.CreateFile(); err != nil {
			return nil, err
		}
		if err = entry.SetFilename(name); err != nil {
			return nil, err
		}
	}
	if err = entry.SetFiletype(filetype); err != nil {
		return nil, err
	}
	if fd.NeedsAddress(filetype) {
		if err = entry.SetAddress(address); err != nil {
			return nil, err
		}
	}
	if err = entry.SetFileData(data); err != nil {
		return nil, err
	}
	logger.Logf("wrote %s (%s, %d bytes) to %s", name, filetype, len(data), fd.DiskName())
	return entry, nil
}

func makeDirectory(fd disk.FormattedDisk, target string) (disk.FileEntry, error) {
	if !fd.CanHaveDirectories() {
		return nil, errors.Wrapf(disk.ErrUnsupportedOperation, "%s has no directories", fd.FormatName())
	}
	dir, name := splitPath(target)
	container, _, err := resolveDir(fd, dir)
	if err != nil {
		return nil, err
	}
	dc, ok := container.(directoryCreator)
	if !ok {
		return nil, errors.WithStack(disk.ErrUnsupportedOperation)
	}
	return dc.CreateDirectory(fd.SuggestedFilename(name))
}

func deleteFile(fd disk.FormattedDisk, target string) error {
	if !fd.CanDeleteFile() {
		return errors.Wrapf(disk.ErrUnsupportedOperation, "%s volumes are read only", fd.FormatName())
	}
	entry, err := findEntry(fd, target)
	if err != nil {
		return err
	}
	if entry.IsLocked() {
		return errors.Errorf("%s is locked", entry.Filename())
	}
	if err := entry.Delete(); err != nil {
		return err
	}
	logger.Logf("deleted %s from %s", target, fd.DiskName())
	return nil
}

func lockFile(fd disk.FormattedDisk, target string, locked bool) error {
	entry, err := findEntry(fd, target)
	if err != nil {
		return err
	}
	return entry.SetLocked(locked)
}

// extractFile returns the file contents; raw keeps any load address or
// length prefix the filesystem stores.
func extractFile(fd disk.FormattedDisk, target string, raw bool) (disk.FileEntry, []byte, error) {
	if !fd.CanReadFileData() {
		return nil, nil, errors.WithStack(disk.ErrUnsupportedOperation)
	}
	entry, err := findEntry(fd, target)
	if err != nil {
		return nil, nil, err
	}
	if entry.IsDirectory() {
		return nil, nil, errors.Errorf("%s is a directory", target)
	}
	var data []byte
	if raw {
		data, err = fd.FileData(entry)
	} else {
		data, err = entry.FileData()
	}
	return entry, data, err
}
