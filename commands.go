package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"emperror.dev/errors"
	"github.com/dustin/go-humanize"
	"github.com/paleotronic/a2storage/disk"
	"github.com/spf13/cobra"
)

var (
	flagMode     string
	flagDeleted  bool
	flagOrder    string
	flagConvert  string
	flagFS       string
	flagSize     string
	flagVolume   string
	flagOutput   string
	flagRaw      bool
	flagFiletype string
	flagAddress  string
	flagName     string
)

// parseAddress accepts decimal, 0x or $ prefixed hex.
func parseAddress(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	base := 10
	switch {
	case strings.HasPrefix(s, "$"):
		s, base = s[1:], 16
	case strings.HasPrefix(strings.ToLower(s), "0x"):
		s, base = s[2:], 16
	}
	v, err := strconv.ParseInt(s, base, 32)
	if err != nil || v < 0 || v > 0xFFFF {
		return 0, errors.Errorf("invalid address '%s'", s)
	}
	return int(v), nil
}

var infoCmd = &cobra.Command{
	Use:   "info <image>",
	Short: "Show volume information",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVolume(args[0])
		if err != nil {
			return err
		}
		printInfo(cmd.OutOrStdout(), v.disk)
		return nil
	},
}

var catalogCmd = &cobra.Command{
	Use:     "catalog <image>",
	Aliases: []string{"cat", "ls"},
	Short:   "List the files on a disk",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := parseMode(flagMode)
		if err != nil {
			return err
		}
		v, err := openVolume(args[0])
		if err != nil {
			return err
		}
		return printCatalog(cmd.OutOrStdout(), v.disk, mode, flagDeleted)
	},
}

var bitmapCmd = &cobra.Command{
	Use:   "bitmap <image>",
	Short: "Draw the free space map",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVolume(args[0])
		if err != nil {
			return err
		}
		printBitmap(cmd.OutOrStdout(), v.disk)
		return nil
	},
}

var sectorCmd = &cobra.Command{
	Use:   "sector <image> <track> <sector>",
	Short: "Hex dump one sector",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := disk.LoadDiskImage(args[0])
		if err != nil {
			return err
		}
		t, err := strconv.Atoi(args[1])
		if err != nil {
			return errors.Errorf("invalid track '%s'", args[1])
		}
		s, err := strconv.Atoi(args[2])
		if err != nil {
			return errors.Errorf("invalid sector '%s'", args[2])
		}
		data, err := img.ReadSector(t, s)
		if err != nil {
			return err
		}
		disk.Dump(cmd.OutOrStdout(), data)
		return nil
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert <image> <output>",
	Short: "Write a copy of an image in another sector order",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		order, err := disk.ParseSectorOrder(flagConvert)
		if err != nil {
			return err
		}
		img, err := disk.LoadDiskImage(args[0])
		if err != nil {
			return err
		}
		out, err := img.Reorder(order)
		if err != nil {
			return err
		}
		out.SetFilename(args[1])
		if err := saveDisk(out, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) -> %s (%s)\n", args[0], img.Order(), args[1], out.Order())
		return nil
	},
}

var formatCmd = &cobra.Command{
	Use:   "format <image>",
	Short: "Create a freshly formatted disk image",
	Long: fmt.Sprintf(`Create a new image holding an empty filesystem.
Filesystems: %s`, strings.Join(disk.FormatNames(), ", ")),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := humanize.ParseBytes(flagSize)
		if err != nil {
			return errors.Wrapf(err, "invalid size '%s'", flagSize)
		}
		order := conf.SectorOrder()
		if flagOrder != "" {
			if order, err = disk.ParseSectorOrder(flagOrder); err != nil {
				return err
			}
		}
		if _, err := os.Stat(args[0]); err == nil {
			return errors.Errorf("%s already exists", args[0])
		}
		opts, err := conf.Options(flagFS)
		if err != nil {
			return err
		}
		if flagVolume != "" {
			opts.VolumeName = flagVolume
		}
		img, err := disk.NewBlankDiskImage(args[0], order, int(size))
		if err != nil {
			return err
		}
		fd, err := disk.NewFormattedDisk(flagFS, img, opts)
		if err != nil {
			return err
		}
		if err := saveDisk(img, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Formatted %s as %s %s (%s free)\n",
			args[0], fd.FormatName(), fd.DiskName(), humanize.IBytes(uint64(fd.FreeSpace())))
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <image> <file>",
	Short: "Extract a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVolume(args[0])
		if err != nil {
			return err
		}
		entry, data, err := extractFile(v.disk, args[1], flagRaw)
		if err != nil {
			return err
		}
		out := flagOutput
		if out == "" {
			out = strings.TrimSpace(entry.Filename())
			if entry.NeedsAddress() && !flagRaw {
				out = fmt.Sprintf("%s#0x%04x", out, entry.Address())
			}
			out = filepath.Base(out)
		}
		if out == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return errors.WithStack(err)
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			return errors.WithStack(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Extracted %s (%s, %s) to %s\n",
			entry.Filename(), entry.Filetype(), humanize.IBytes(uint64(len(data))), out)
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put <image> <local file>",
	Short: "Store a local file on a disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := parseAddress(flagAddress)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return errors.WithStack(err)
		}
		v, err := openVolume(args[0])
		if err != nil {
			return err
		}
		name := flagName
		if name == "" {
			name = filepath.Base(args[1])
		}
		entry, err := putFile(v.disk, name, flagFiletype, address, data)
		if err != nil {
			return err
		}
		if err := v.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored %s as %s (%s)\n", args[1], entry.Filename(), entry.Filetype())
		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <image> <directory>",
	Short: "Create a subdirectory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVolume(args[0])
		if err != nil {
			return err
		}
		if _, err := makeDirectory(v.disk, args[1]); err != nil {
			return err
		}
		return v.Save()
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <image> <file>...",
	Aliases: []string{"delete"},
	Short:   "Delete files",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVolume(args[0])
		if err != nil {
			return err
		}
		for _, name := range args[1:] {
			if err := deleteFile(v.disk, name); err != nil {
				return err
			}
		}
		return v.Save()
	},
}

func lockCommand(use, short string, locked bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <image> <file>...",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVolume(args[0])
			if err != nil {
				return err
			}
			for _, name := range args[1:] {
				if err := lockFile(v.disk, name, locked); err != nil {
					return err
				}
			}
			return v.Save()
		},
	}
}

var shellCmd = &cobra.Command{
	Use:   "shell [image]",
	Short: "Interactive shell",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			if r := shellMount(args); r != 0 {
				return errors.Errorf("cannot mount %s", args[0])
			}
		}
		return shellDo()
	},
}

func initCommands() {
	catalogCmd.Flags().StringVarP(&flagMode, "mode", "m", "standard", "listing style (standard|native|detail)")
	catalogCmd.Flags().BoolVarP(&flagDeleted, "deleted", "d", false, "include deleted files where the filesystem keeps them")

	convertCmd.Flags().StringVarP(&flagConvert, "order", "o", "prodos", "target order (dos|prodos|2img)")

	formatCmd.Flags().StringVarP(&flagFS, "fs", "f", "dos33", "filesystem ("+strings.Join(disk.FormatNames(), "|")+")")
	formatCmd.Flags().StringVarP(&flagSize, "size", "s", "140KiB", "image size, 140KiB or 800KiB for example")
	formatCmd.Flags().StringVarP(&flagOrder, "order", "o", "", "sector order (dos|prodos|2img); default from config")
	formatCmd.Flags().StringVar(&flagVolume, "volume", "", "volume name")

	getCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "local file to write, - for stdout")
	getCmd.Flags().BoolVar(&flagRaw, "raw", false, "keep address and length prefixes")

	putCmd.Flags().StringVarP(&flagFiletype, "type", "t", "", "filetype on the disk")
	putCmd.Flags().StringVarP(&flagAddress, "address", "a", "", "load address for binary files")
	putCmd.Flags().StringVarP(&flagName, "name", "n", "", "name on the disk, may include a directory path")

	rootCmd.AddCommand(
		infoCmd,
		catalogCmd,
		bitmapCmd,
		sectorCmd,
		convertCmd,
		formatCmd,
		getCmd,
		putCmd,
		mkdirCmd,
		rmCmd,
		lockCommand("lock", "Lock files", true),
		lockCommand("unlock", "Unlock files", false),
		shellCmd,
	)
}
