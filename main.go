package main

/*
a2storage reads and writes Apple II disk images: DOS 3.3, ProDOS, Apple
Pascal and RDOS filesystems stored as DOS ordered, ProDOS ordered or 2IMG
files.
*/

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/paleotronic/a2storage/config"
	"github.com/paleotronic/a2storage/disk"
	"github.com/paleotronic/a2storage/loggy"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/spf13/cobra"
)

const VERSION = "v0.3.0"

var persistentFlagConfigFile string
var persistentFlagLoglevel string
var persistentFlagVerbose bool
var persistentFlagBackup bool

var conf *config.Config
var logger *loggy.Logger

var rootCmd = &cobra.Command{
	Use:   "a2storage",
	Short: "a2storage reads and writes Apple II disk images",
	Long: fmt.Sprintf(`Catalog, extract, add and remove files on Apple II disk images.
Supports DOS 3.3, ProDOS, Apple Pascal and RDOS volumes in .dsk/.do, .po and
.2mg images.
Version %s`, VERSION),
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func binpath() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("USERPROFILE") + "/a2storage"
	}
	return os.Getenv("HOME") + "/a2storage"
}

func initConfig() {
	var err error
	conf, err = config.LoadConfigFile(persistentFlagConfigFile)
	if err != nil {
		_ = rootCmd.Help()
		fmt.Fprintf(os.Stderr, "error loading config file %s: %v\n", persistentFlagConfigFile, err)
		os.Exit(1)
	}

	// command line overrides the config file
	if persistentFlagLoglevel != "" {
		conf.Log.Level = persistentFlagLoglevel
	}
	if persistentFlagVerbose {
		conf.Log.Echo = true
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	level, err := loggy.ParseLevel(conf.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	loggy.Level = level
	loggy.ECHO = conf.Log.Echo
	loggy.LogFolder = conf.Log.Folder
	if !filepath.IsAbs(loggy.LogFolder) && persistentFlagConfigFile == "" {
		loggy.LogFolder = filepath.Join(binpath(), "logs")
	}
	loggy.SetApp("a2storage")

	logger = loggy.Get(0)
	disk.SetLogger(logger.Logger)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&persistentFlagConfigFile, "config", "", "config file (default is the built in configuration)")
	rootCmd.PersistentFlags().StringVar(&persistentFlagLoglevel, "log-level", "", "log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVarP(&persistentFlagVerbose, "verbose", "v", false, "Log to stderr")
	rootCmd.PersistentFlags().BoolVar(&persistentFlagBackup, "backup", false, "Copy an image to the backup folder before changing it")

	initCommands()
}

func main() {
	err := rootCmd.Execute()
	loggy.Close()
	if err != nil {
		os.Exit(1)
	}
}
