package disk

import (
	"strings"

	"emperror.dev/errors"
	"golang.org/x/exp/slices"
)

// Options carries what a filesystem needs from outside the image when it
// formats one. BootCode is written to track 0, sector 0 when present.
type Options struct {
	BootCode   []byte
	VolumeName string
}

type detector struct {
	name  string
	match func(img *DiskImage) bool
	open  func(img *DiskImage, opts Options) FormattedDisk
}

// detectors are tried in order; RDOS comes before DOS 3.3 because some RDOS
// disks also carry a plausible VTOC.
var detectors = []detector{
	{
		name:  "ProDOS",
		match: IsProDOS,
		open:  func(img *DiskImage, opts Options) FormattedDisk { return NewProdosDisk(img, opts) },
	},
	{
		name:  "RDOS",
		match: IsRDOS,
		open:  func(img *DiskImage, opts Options) FormattedDisk { return NewRDOSDisk(img) },
	},
	{
		name:  "DOS 3.3",
		match: IsAppleDOS,
		open:  func(img *DiskImage, opts Options) FormattedDisk { return NewDOSDisk(img, opts) },
	},
	{
		name:  "Pascal",
		match: IsPascal,
		open:  func(img *DiskImage, opts Options) FormattedDisk { return NewPascalDisk(img, opts) },
	},
}

// Identify returns the filesystem found on img. A 140K image whose ordering
// came from a guess is also tried under the other ordering; when that
// matches, the returned disk wraps a reordered copy and img is left as is.
func Identify(img *DiskImage, opts Options) (FormattedDisk, error) {
	if d := identify(img, opts); d != nil {
		return d, nil
	}

	if !img.Is2ImgOrder() && img.Tracks() == Tracks525 {
		alt := OrderProDOS
		if img.IsProdosOrder() {
			alt = OrderDOS
		}
		data := make([]byte, img.PhysicalSize())
		copy(data, img.data)
		swapped, err := NewDiskImage(img.Filename(), data, alt)
		if err == nil {
			if d := identify(swapped, opts); d != nil {
				log.Debug().Str("file", img.Filename()).Str("order", alt.String()).Msg("identified under alternate ordering")
				return d, nil
			}
		}
	}
	return nil, errors.Wrapf(ErrUnrecognizedImage, "%s", img.Filename())
}

func identify(img *DiskImage, opts Options) FormattedDisk {
	for _, det := range detectors {
		if det.match(img) {
			log.Debug().Str("file", img.Filename()).Str("format", det.name).Str("order", img.Order().String()).Msg("identified disk")
			return det.open(img, opts)
		}
	}
	return nil
}

var formatters = map[string]func(img *DiskImage, opts Options) FormattedDisk{
	"dos33":  func(img *DiskImage, opts Options) FormattedDisk { return NewDOSDisk(img, opts) },
	"prodos": func(img *DiskImage, opts Options) FormattedDisk { return NewProdosDisk(img, opts) },
	"pascal": func(img *DiskImage, opts Options) FormattedDisk { return NewPascalDisk(img, opts) },
}

// FormatNames lists the filesystems NewFormattedDisk can create.
func FormatNames() []string {
	names := make([]string, 0, len(formatters))
	for name := range formatters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewFormattedDisk formats img with the named filesystem.
func NewFormattedDisk(name string, img *DiskImage, opts Options) (FormattedDisk, error) {
	ctor, ok := formatters[strings.ToLower(name)]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedOperation, "cannot format as '%s' (have %s)", name, strings.Join(FormatNames(), ", "))
	}
	d := ctor(img, opts)
	if err := d.Format(); err != nil {
		return nil, errors.Wrapf(err, "formatting %s as %s", img.Filename(), d.FormatName())
	}
	return d, nil
}
