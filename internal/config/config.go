// Package config loads the worldsync YAML configuration.
package config

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/worldsync/internal/core/observability/log"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	IDStrategySequential = "sequential"
	IDStrategyUUID       = "uuid"
)

type Config struct {
	Log        LogConfig        `json:"log" yaml:"log"`
	World      WorldConfig      `json:"world" yaml:"world"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Document   DocumentConfig   `json:"document" yaml:"document"`
	Components ComponentsConfig `json:"components" yaml:"components"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

type WorldConfig struct {
	IDStrategy string `json:"id_strategy" yaml:"id_strategy"`
	IDPrefix   string `json:"id_prefix" yaml:"id_prefix"`
}

type StoreConfig struct {
	Path string `json:"path" yaml:"path"`
}

type DocumentConfig struct {
	ID string `json:"id" yaml:"id"`
}

// ComponentsConfig names extra free-form component types to register next
// to the built-in ones.
type ComponentsConfig struct {
	Dynamic []string `json:"dynamic,omitempty" yaml:"dynamic,omitempty"`
}

func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info"},
		World:    WorldConfig{IDStrategy: IDStrategySequential, IDPrefix: "e"},
		Store:    StoreConfig{Path: "worldsync.db"},
		Document: DocumentConfig{ID: "default"},
	}
}

// Load reads YAML from r on top of the defaults and validates the result.
func Load(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()
	c, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "log.level: %v", err)
	}
	switch c.World.IDStrategy {
	case IDStrategySequential:
		if c.World.IDPrefix == "" {
			return errors.Wrap(ErrInvalidConfig, "world.id_prefix must not be empty")
		}
	case IDStrategyUUID:
	default:
		return errors.Wrapf(ErrInvalidConfig, "world.id_strategy %q", c.World.IDStrategy)
	}
	if c.Store.Path == "" {
		return errors.Wrap(ErrInvalidConfig, "store.path must not be empty")
	}
	if c.Document.ID == "" {
		return errors.Wrap(ErrInvalidConfig, "document.id must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Components.Dynamic))
	for _, name := range c.Components.Dynamic {
		if name == "" {
			return errors.Wrap(ErrInvalidConfig, "components.dynamic: empty name")
		}
		if _, dup := seen[name]; dup {
			return errors.Wrapf(ErrInvalidConfig, "components.dynamic: duplicate %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// LogLevel returns the parsed log level. Validate has already checked it.
func (c *Config) LogLevel() log.Level {
	level, _ := log.ParseLevel(c.Log.Level)
	return level
}
