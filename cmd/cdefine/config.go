package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pthm/cdefine"
)

// Config is the optional YAML configuration file:
//
//	key: change-me
//	sensitive: false
//	waitUndefined: false
//	logLevel: debug
type Config struct {
	Key           string `yaml:"key"`
	Sensitive     bool   `yaml:"sensitive"`
	WaitUndefined bool   `yaml:"waitUndefined"`
	LogLevel      string `yaml:"logLevel"`
}

// loadConfig reads path. An empty path yields the zero Config.
func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func (cfg Config) options(logger *slog.Logger) cdefine.Options {
	return cdefine.Options{
		Key:           []byte(cfg.Key),
		Sensitive:     cfg.Sensitive,
		WaitUndefined: cfg.WaitUndefined,
		Logger:        logger,
	}
}
