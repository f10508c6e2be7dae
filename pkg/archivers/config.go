package archivers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// Supported archive service types.
	TypePrefix       = "prefix"
	TypeWayback      = "wayback"
	TypeArchiveToday = "archive_today"

	defaultWaybackPrefix      = "http://web.archive.org/save/"
	defaultArchiveTodayPrefix = "https://archive.ph/submit/?url="
	defaultTimeoutSeconds     = 60
)

// configFile represents the structure of the archivers configuration file.
type configFile struct {
	Archivers []ServiceConfig `json:"archivers" yaml:"archivers"`
}

// ServiceConfig is a single archive service entry. Prefix is prepended to the post URL
// to form the submission target.
type ServiceConfig struct {
	ID             string            `json:"id" yaml:"id"`
	Type           string            `json:"type" yaml:"type"`
	Enabled        *bool             `json:"enabled" yaml:"enabled"`
	Prefix         string            `json:"prefix" yaml:"prefix"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// DefaultConfigs is used when no archivers file is configured.
func DefaultConfigs() []ServiceConfig {
	enabled := true
	return []ServiceConfig{sanitizeServiceConfig(ServiceConfig{
		ID:      "wayback",
		Type:    TypeWayback,
		Enabled: &enabled,
	})}
}

// LoadConfigs loads archive service entries from a YAML/JSON file.
func LoadConfigs(path string) ([]ServiceConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("archivers file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archivers file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read archivers file: %w", err)
	}

	parsed, err := parseConfigFile(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Archivers) == 0 {
		return nil, errors.New("archivers file contains no archivers entries")
	}

	seen := make(map[string]struct{}, len(parsed.Archivers))
	out := make([]ServiceConfig, 0, len(parsed.Archivers))
	for i := range parsed.Archivers {
		cfg := sanitizeServiceConfig(parsed.Archivers[i])
		if err := validateServiceConfig(cfg); err != nil {
			return nil, fmt.Errorf("archivers[%d]: %w", i, err)
		}
		if _, exists := seen[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate archiver id %q", cfg.ID)
		}
		seen[cfg.ID] = struct{}{}
		out = append(out, cfg)
	}
	return out, nil
}

// Enabled filters configs down to enabled entries, keeping order.
func Enabled(cfgs []ServiceConfig) []ServiceConfig {
	out := make([]ServiceConfig, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}

func parseConfigFile(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var parsed configFile
		if err := d.fn(data, &parsed); err == nil {
			return parsed, nil
		}
	}

	return configFile{}, errors.New("archivers file format not recognized (expected YAML or JSON)")
}

func sanitizeServiceConfig(cfg ServiceConfig) ServiceConfig {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	cfg.Prefix = strings.TrimSpace(cfg.Prefix)

	if cfg.Type == "" {
		cfg.Type = TypePrefix
	}
	if cfg.Enabled == nil {
		def := true
		cfg.Enabled = &def
	}
	if cfg.Prefix == "" {
		switch cfg.Type {
		case TypeWayback:
			cfg.Prefix = defaultWaybackPrefix
		case TypeArchiveToday:
			cfg.Prefix = defaultArchiveTodayPrefix
		}
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaultTimeoutSeconds
	}
	cfg.Headers = sanitizeHeaders(cfg.Headers)
	return cfg
}

// sanitizeHeaders trims and removes empty headers.
func sanitizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func validateServiceConfig(cfg ServiceConfig) error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	switch cfg.Type {
	case TypePrefix, TypeWayback, TypeArchiveToday:
	default:
		return fmt.Errorf("unsupported type %q for archiver %q", cfg.Type, cfg.ID)
	}
	if cfg.Prefix == "" {
		return fmt.Errorf("prefix is required for archiver %q", cfg.ID)
	}
	if !strings.HasPrefix(cfg.Prefix, "http://") && !strings.HasPrefix(cfg.Prefix, "https://") {
		return fmt.Errorf("prefix for archiver %q must be an http(s) URL", cfg.ID)
	}
	return nil
}

// EnabledValue returns enabled flag defaulting to true.
func (cfg ServiceConfig) EnabledValue() bool {
	if cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}
