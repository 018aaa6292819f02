// Package config loads and validates the runtime configuration that
// bootstraps a proxy-resolving client: logging, retry policy defaults, and
// per-transport connection settings. Configuration is authored as YAML and
// validated against an embedded JSON Schema before any field is trusted,
// so a malformed deployment file fails fast with a precise error instead
// of surfacing as a confusing runtime panic three layers down.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// RetryConfig configures internal/retry.Policy.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"maxAttempts" json:"maxAttempts"`
	InitialIntervalMS int     `yaml:"initialIntervalMs" json:"initialIntervalMs"`
	MaxIntervalMS     int     `yaml:"maxIntervalMs" json:"maxIntervalMs"`
	Multiplier        float64 `yaml:"multiplier" json:"multiplier"`
}

// GRPCConfig configures transport/grpctransport.Binder.
type GRPCConfig struct {
	DefaultPort int `yaml:"defaultPort" json:"defaultPort"`
}

// QUICConfig configures transport/quictransport.Binder.
type QUICConfig struct {
	DefaultPort        int  `yaml:"defaultPort" json:"defaultPort"`
	InsecureSkipVerify bool `yaml:"insecureSkipVerify" json:"insecureSkipVerify"`
}

// TransportConfig groups per-transport settings.
type TransportConfig struct {
	GRPC GRPCConfig `yaml:"grpc" json:"grpc"`
	QUIC QUICConfig `yaml:"quic" json:"quic"`
}

// ProxyDefaultsConfig configures the attributes a freshly bootstrapped
// Reference starts with, before any per-call With* override.
type ProxyDefaultsConfig struct {
	EncodingMajor              byte   `yaml:"encodingMajor" json:"encodingMajor"`
	EncodingMinor              byte   `yaml:"encodingMinor" json:"encodingMinor"`
	InvocationTimeoutMS        int    `yaml:"invocationTimeoutMs" json:"invocationTimeoutMs"`
	LocatorCacheTimeoutSeconds int    `yaml:"locatorCacheTimeoutSeconds" json:"locatorCacheTimeoutSeconds"`
	EndpointSelection          string `yaml:"endpointSelection" json:"endpointSelection"`
}

// RuntimeConfig is the top-level configuration document.
type RuntimeConfig struct {
	Logging   LoggingConfig       `yaml:"logging" json:"logging"`
	Retry     RetryConfig         `yaml:"retry" json:"retry"`
	Transport TransportConfig     `yaml:"transport" json:"transport"`
	Proxy     ProxyDefaultsConfig `yaml:"proxy" json:"proxy"`
}

// Default returns the configuration a deployment gets when no file is
// supplied at all.
func Default() RuntimeConfig {
	return RuntimeConfig{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Retry: RetryConfig{
			MaxAttempts:       5,
			InitialIntervalMS: 10,
			MaxIntervalMS:     2000,
			Multiplier:        2.0,
		},
		Transport: TransportConfig{
			GRPC: GRPCConfig{DefaultPort: 4061},
			QUIC: QUICConfig{DefaultPort: 4062},
		},
		Proxy: ProxyDefaultsConfig{
			EncodingMajor:              1,
			EncodingMinor:              1,
			InvocationTimeoutMS:        -1,
			LocatorCacheTimeoutSeconds: -1,
			EndpointSelection:          "random",
		},
	}
}

// Load reads and validates a RuntimeConfig from path.
func Load(path string) (RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates and decodes a RuntimeConfig from raw YAML bytes.
func Parse(data []byte) (RuntimeConfig, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return RuntimeConfig{}, fmt.Errorf("parsing config yaml: %w", err)
	}

	if raw != nil {
		if err := validate(raw); err != nil {
			return RuntimeConfig{}, fmt.Errorf("validating config: %w", err)
		}
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RuntimeConfig{}, fmt.Errorf("decoding config yaml: %w", err)
	}
	return cfg, nil
}

func validate(raw map[string]interface{}) error {
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("re-encoding config as json for schema validation: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("runtime-config.json", bytes.NewReader([]byte(schemaJSON))); err != nil {
		return fmt.Errorf("loading config schema: %w", err)
	}
	schema, err := compiler.Compile("runtime-config.json")
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return fmt.Errorf("decoding config json: %w", err)
	}
	return schema.Validate(doc)
}

const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
        "format": {"type": "string", "enum": ["text", "json"]}
      }
    },
    "retry": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "maxAttempts": {"type": "integer", "minimum": 0},
        "initialIntervalMs": {"type": "integer", "minimum": 0},
        "maxIntervalMs": {"type": "integer", "minimum": 0},
        "multiplier": {"type": "number", "exclusiveMinimum": 1}
      }
    },
    "transport": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "grpc": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "defaultPort": {"type": "integer", "minimum": 1, "maximum": 65535}
          }
        },
        "quic": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "defaultPort": {"type": "integer", "minimum": 1, "maximum": 65535},
            "insecureSkipVerify": {"type": "boolean"}
          }
        }
      }
    },
    "proxy": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "encodingMajor": {"type": "integer", "minimum": 0, "maximum": 255},
        "encodingMinor": {"type": "integer", "minimum": 0, "maximum": 255},
        "invocationTimeoutMs": {"type": "integer"},
        "locatorCacheTimeoutSeconds": {"type": "integer"},
        "endpointSelection": {"type": "string", "enum": ["random", "ordered"]}
      }
    }
  }
}`
