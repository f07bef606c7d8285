package config

import (
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/batch"
	"github.com/pseudomuto/dbchores/pkg/connection"
	"github.com/pseudomuto/dbchores/pkg/consts"
	"gopkg.in/yaml.v3"
)

type (
	// Config is the contents of a dbchores.yaml file: connection settings
	// shared by every query and the batch itself.
	Config struct {
		// Defaults apply when neither a group nor a query sets a value.
		Defaults connection.Defaults `yaml:"defaults"`

		// Targets describe where each engine is reachable, keyed by engine.
		Targets map[string]connection.Target `yaml:"targets,omitempty" validate:"dive,keys,engine,endkeys"`

		// Credentials are keyed by engine. DBCHORES_<ENGINE>_USER and
		// DBCHORES_<ENGINE>_PASSWORD take precedence.
		Credentials map[string]connection.Credentials `yaml:"credentials,omitempty" validate:"dive,keys,engine,endkeys"`

		// History is the ledger file. Relative paths resolve against Dir.
		History string `yaml:"history,omitempty"`

		// Timeout is the default per-query timeout. Zero means no limit.
		Timeout time.Duration `yaml:"timeout,omitempty" validate:"gte=0"`

		// Vars are exposed to templates as .vars.
		Vars map[string]any `yaml:"vars,omitempty"`

		batch.Spec `yaml:",inline"`

		// Dir is the directory relative query and history paths resolve
		// against. Set by LoadConfigFile to the config file's directory.
		Dir string `yaml:"-"`
	}
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("engine", func(fl validator.FieldLevel) bool {
		return slices.Contains(consts.Engines, fl.Field().String())
	})

	return v
}

// LoadConfig parses a batch configuration from the provided io.Reader.
//
// Defaults are applied after decoding: the history file falls back to
// DefaultHistoryFile. The result is validated before it's returned.
//
// Example:
//
//	cfg, err := config.LoadConfig(strings.NewReader(`
//	defaults:
//	  engine: postgres
//	admin_groups:
//	  - db: acme
//	    queries:
//	      - query: VACUUM ANALYZE
//	`))
//	if err != nil {
//		panic(err)
//	}
//
//	fmt.Printf("%d queries\n", cfg.Len())
func LoadConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if cfg.History == "" {
		cfg.History = consts.DefaultHistoryFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadConfigFile loads a configuration from the specified file path. Dir is
// set to the file's directory.
//
// Example:
//
//	cfg, err := config.LoadConfigFile("dbchores.yaml")
//	if err != nil {
//		log.Fatal("Failed to load config:", err)
//	}
//
//	fmt.Printf("History: %s\n", cfg.HistoryPath())
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file: %s", path)
	}
	defer func() { _ = f.Close() }()

	cfg, err := LoadConfig(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", path)
	}

	cfg.Dir = filepath.Dir(abs)
	return cfg, nil
}

// Validate checks field constraints and engine names. Batch structure is
// checked separately by the orchestrator.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	engines := []string{c.Defaults.Engine}
	for _, groups := range [][]batch.QueryGroup{c.FactGroups, c.AdminGroups} {
		for _, g := range groups {
			engines = append(engines, g.Engine)
			for _, q := range g.Queries {
				engines = append(engines, q.Engine)
			}
		}
	}

	for _, e := range engines {
		if err := validate.Var(e, "omitempty,engine"); err != nil {
			return errors.Errorf("invalid config: unknown engine %q (expected one of %v)", e, consts.Engines)
		}
	}

	return nil
}

// HistoryPath is the ledger location, resolved against Dir.
func (c *Config) HistoryPath() string {
	return c.resolve(c.History)
}

// Resolver builds a connection resolver from the config. Credentials from the
// environment win over those in the file.
func (c *Config) Resolver(engines map[string]connection.EngineDefaults) *connection.Resolver {
	return &connection.Resolver{
		Defaults: c.Defaults,
		Targets:  c.Targets,
		Credentials: connection.ChainCredentials{
			connection.EnvCredentials{},
			connection.StaticCredentials(c.Credentials),
		},
		Engines: engines,
	}
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Dir == "" {
		return path
	}

	return filepath.Join(c.Dir, path)
}
