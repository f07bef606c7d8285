package config

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/consts"
	"go.uber.org/fx"
)

var Module = fx.Module("config", fx.Provide(
	// The path comes from DBCHORES_CONFIG, falling back to dbchores.yaml. The
	// root command may replace it from --config before anything is loaded, so
	// commands that don't need a config (help, version) never touch the disk.
	func() *File {
		path := os.Getenv(consts.ConfigEnvVar)
		if path == "" {
			path = consts.DefaultConfigFile
		}

		return &File{Path: path}
	},
))

// File is a config file loaded on first use.
type File struct {
	Path string

	once sync.Once
	cfg  *Config
	err  error
}

// Exists reports whether the file is present.
func (f *File) Exists() bool {
	_, err := os.Stat(f.Path)
	return err == nil
}

// Load reads and validates the file once; later calls return the same result.
func (f *File) Load() (*Config, error) {
	f.once.Do(func() {
		if !f.Exists() {
			f.err = errors.Errorf("%s not found", f.Path)
			return
		}

		f.cfg, f.err = LoadConfigFile(f.Path)
	})

	return f.cfg, f.err
}
