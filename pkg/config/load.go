package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment override, as in
// WPSCOUT_SCAN_RATE_LIMIT_SAFE=5 (section "scan", key "rate_limit_safe").
const EnvPrefix = "WPSCOUT_"

// DefaultPath returns ~/.wpscout/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".wpscout", "config.yaml")
}

// Load builds a Config from defaults, the YAML file at path and the
// process environment. An empty path uses DefaultPath; a missing file at
// the default path is not an error, a missing explicit file is.
func Load(path string) (Config, error) {
	return load(path, os.Environ())
}

func load(path string, environ []string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decodeStrict(bytes.NewReader(data), &cfg); err != nil {
				return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		case errors.Is(err, fs.ErrNotExist):
			return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, environ); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeStrict(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overlays WPSCOUT_<SECTION>_<KEY> variables. Each value is read
// as a YAML scalar or flow collection, so "5", "true" and "[a, b]" keep
// their types. Variables naming no known section are ignored.
func applyEnv(cfg *Config, environ []string) error {
	sections := knownSections()
	overlay := map[string]map[string]any{}

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		section, field, ok := strings.Cut(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "_")
		if !ok || !sections[section] || field == "" {
			continue
		}
		var v any
		if err := yaml.Unmarshal([]byte(value), &v); err != nil || v == nil {
			v = value
		}
		if overlay[section] == nil {
			overlay[section] = map[string]any{}
		}
		overlay[section][field] = v
	}
	if len(overlay) == 0 {
		return nil
	}

	data, err := yaml.Marshal(overlay)
	if err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	if err := decodeStrict(bytes.NewReader(data), cfg); err != nil {
		return fmt.Errorf("%w: environment: %v", ErrInvalidConfig, err)
	}
	return nil
}

func knownSections() map[string]bool {
	var doc map[string]any
	data, _ := yaml.Marshal(Default())
	_ = yaml.Unmarshal(data, &doc)
	out := make(map[string]bool, len(doc))
	for k := range doc {
		out[k] = true
	}
	return out
}
