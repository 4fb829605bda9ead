// Package config loads the database configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mit.edu/dsg/rowdb/common"
)

// Config is the database configuration:
//
//	data_dir: /var/lib/rowdb   # empty: in-memory catalog
//	log_level: info            # debug | info | warn | error
//	log_format: text           # text | json
type Config struct {
	DataDir   string `yaml:"data_dir"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Default() Config {
	return Config{LogLevel: "info", LogFormat: "text"}
}

// Load reads a configuration file. Keys missing from the file keep their defaults; unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse decodes a configuration document over the defaults and validates it.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, common.WrapError(common.ParseError, err, "invalid configuration")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
		return nil
	}
	return common.NewError(common.ParseError, "unknown log_format '%s'", c.LogFormat)
}

// Level returns the slog level named by LogLevel. Empty means info.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, common.WrapError(common.ParseError, err, "unknown log_level '%s'", c.LogLevel)
	}
	return level, nil
}

// NewLogger builds the logger described by the configuration, writing to w.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
