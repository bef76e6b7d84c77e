package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// defaultsYAML seeds the koanf tree before file and env loading so that
// Unmarshal always sees a complete section structure.
const defaultsYAML = `
server:
  host: localhost
logging:
  level: info
  format: json
vectorstore:
  backend: chromem
embedding:
  provider: tei
`

// Load loads configuration from the default path with env overrides.
func Load() (*Config, error) {
	return LoadWithFile("")
}

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, PIPELINE_DEDUP_THRESHOLD, ...)
//  2. YAML config file (~/.config/ideabank/config.yaml by default)
//  3. Hardcoded defaults
//
// Environment variables use an underscore separator: the first segment is
// the section, the rest is the field name. Examples:
//
//	SERVER_HTTP_PORT          -> server.http_port
//	PIPELINE_DEDUP_THRESHOLD  -> pipeline.dedup_threshold
//	GENERATION_API_KEY        -> generation.api_key
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaultsYAML)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "ideabank", "config.yaml")
	}

	if info, err := os.Stat(configPath); err == nil {
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
		}
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// knownSections guards the env transform: only variables whose first
// segment names a config section are mapped, the rest of the process
// environment is ignored.
var knownSections = map[string]bool{
	"server":        true,
	"logging":       true,
	"pipeline":      true,
	"vectorstore":   true,
	"embedding":     true,
	"generation":    true,
	"events":        true,
	"observability": true,
}

func envTransform(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) != 2 || !knownSections[parts[0]] {
		return ""
	}
	return parts[0] + "." + parts[1]
}
