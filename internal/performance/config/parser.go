package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/stampede/pkg/jsonschema"
)

const (
	// DefaultMethod is used when target.method is omitted.
	DefaultMethod = "GET"

	// DefaultRequestTimeout is used when target.timeout is omitted.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultName is used when name is omitted.
	DefaultName = "stampede"
)

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompile("test-config.json", schemaJSON)

// Schema returns the JSON Schema configurations are validated against.
func Schema() string {
	return schemaJSON
}

// Format is a configuration file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format by file extension; anything that is not
// .json is read as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// LoadConfig loads a configuration from a file. The format is determined by
// the extension (.json, otherwise YAML). Every failure is a *ConfigError.
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{File: path, Err: fmt.Errorf("failed to read config file: %w", err)}
	}

	cfg, err := ParseConfig(data, FormatFromPath(path))
	if err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			cerr.File = path
			return nil, cerr
		}
		return nil, &ConfigError{File: path, Err: err}
	}
	return cfg, nil
}

// ParseConfig decodes, schema-checks, defaults and validates a configuration.
func ParseConfig(data []byte, format Format) (*TestConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ConfigError{Err: errors.New("config is empty")}
	}

	doc, err := decodeDocument(data, format)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	if violations := schema.ValidateValue(doc); len(violations) > 0 {
		var errs ValidationErrors
		for _, v := range violations {
			errs.Add(v.Field(), v.Message)
		}
		return nil, &ConfigError{Err: errs}
	}

	var cfg TestConfig
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to parse %s config: %w", format, err)}
	}

	ApplyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	return &cfg, nil
}

// decodeDocument decodes into the generic form encoding/json produces, which
// is what the schema validator expects.
func decodeDocument(data []byte, format Format) (interface{}, error) {
	var raw interface{}
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
		return raw, nil
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	// Round-trip YAML through JSON so numbers and maps have JSON types.
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("config is not representable as JSON: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ApplyDefaults fills in default values for optional fields.
func ApplyDefaults(cfg *TestConfig) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}

	cfg.Target.Method = strings.ToUpper(strings.TrimSpace(cfg.Target.Method))
	if cfg.Target.Method == "" {
		cfg.Target.Method = DefaultMethod
	}
	if cfg.Target.Timeout == 0 {
		cfg.Target.Timeout = Duration(DefaultRequestTimeout)
	}
}
