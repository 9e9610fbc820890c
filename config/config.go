package config

import (
	_ "embed"
	"os"
	"strings"

	"emperror.dev/errors"
	"github.com/BurntSushi/toml"
	"github.com/paleotronic/a2storage/disk"
	"github.com/rs/zerolog"
)

//go:embed default.toml
var DefaultConfig []byte

type LogConfig struct {
	Level  string `toml:"level"`
	Folder string `toml:"folder"`
	Echo   bool   `toml:"echo"`
}

type ImageConfig struct {
	Order    string `toml:"order"`
	BootCode string `toml:"bootcode"`
}

type VolumeConfig struct {
	VolumeName string `toml:"volumename"`
}

type Config struct {
	Log    *LogConfig    `toml:"Log"`
	Image  *ImageConfig  `toml:"Image"`
	ProDOS *VolumeConfig `toml:"ProDOS"`
	Pascal *VolumeConfig `toml:"Pascal"`
}

func LoadConfig(data string) (*Config, error) {
	var conf = &Config{
		Log: &LogConfig{
			Level:  "info",
			Folder: "./logs/",
		},
		Image: &ImageConfig{
			Order: "dos",
		},
		ProDOS: &VolumeConfig{VolumeName: disk.PRODOS_DEFAULT_VOLUME},
		Pascal: &VolumeConfig{VolumeName: disk.PASCAL_DEFAULT_VOLUME},
	}

	if _, err := toml.Decode(data, conf); err != nil {
		return nil, errors.Wrap(err, "Error on loading config")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(conf.Log.Level)); err != nil {
		return nil, errors.Errorf("unknown log level '%s'", conf.Log.Level)
	}
	if _, err := disk.ParseSectorOrder(conf.Image.Order); err != nil {
		return nil, errors.WithStack(err)
	}
	return conf, nil
}

// LoadConfigFile reads a config file, or the embedded defaults when
// filename is empty.
func LoadConfigFile(filename string) (*Config, error) {
	if filename == "" {
		return LoadConfig(string(DefaultConfig))
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %s", filename)
	}
	return LoadConfig(string(data))
}

func (c *Config) SectorOrder() disk.SectorOrder {
	order, err := disk.ParseSectorOrder(c.Image.Order)
	if err != nil {
		return disk.OrderDOS
	}
	return order
}

// BootCode reads the configured boot payload. No file configured is not an
// error.
func (c *Config) BootCode() ([]byte, error) {
	if c.Image.BootCode == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.Image.BootCode)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read boot code %s", c.Image.BootCode)
	}
	return data, nil
}

// Options builds the format options for the named filesystem.
func (c *Config) Options(format string) (disk.Options, error) {
	boot, err := c.BootCode()
	if err != nil {
		return disk.Options{}, err
	}
	opts := disk.Options{BootCode: boot}
	switch strings.ToLower(format) {
	case "prodos":
		opts.VolumeName = c.ProDOS.VolumeName
	case "pascal":
		opts.VolumeName = c.Pascal.VolumeName
	}
	return opts, nil
}
