package projectconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

const DefaultPath = ".contextos/config.yaml"

type Config struct {
	Store   StoreDefaults   `yaml:"store"`
	Views   ViewDefaults    `yaml:"views"`
	Planner PlannerDefaults `yaml:"planner"`
	Logging LoggingDefaults `yaml:"logging"`
	Metrics MetricsDefaults `yaml:"metrics"`
	Signing SigningDefaults `yaml:"signing"`
}

type StoreDefaults struct {
	Backend    string `yaml:"backend"`
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

type ViewDefaults struct {
	Path string `yaml:"path"`
}

// PlannerDefaults apply when a request does not carry its own stream window.
type PlannerDefaults struct {
	StreamRecent int `yaml:"stream_recent"`
	StreamMiddle int `yaml:"stream_middle"`
}

type LoggingDefaults struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsDefaults struct {
	Textfile string `yaml:"textfile"`
}

type SigningDefaults struct {
	KeyMode       string `yaml:"key_mode"`
	PrivateKey    string `yaml:"private_key"` // #nosec G117 -- config key name documents expected secret input.
	PrivateKeyEnv string `yaml:"private_key_env"`
	PublicKey     string `yaml:"public_key"`
	PublicKeyEnv  string `yaml:"public_key_env"`
}

func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("project config path is required")
	}

	// #nosec G304 -- project config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read project config: %w", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return Config{}, nil
	}

	var configuration Config
	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Config{}, fmt.Errorf("parse project config: %w", err)
	}
	configuration.normalize()
	if configuration.Planner.StreamRecent < 0 || configuration.Planner.StreamMiddle < 0 {
		return Config{}, fmt.Errorf("planner stream window must not be negative")
	}
	return configuration, nil
}

func (configuration *Config) normalize() {
	configuration.Store.Backend = strings.ToLower(strings.TrimSpace(configuration.Store.Backend))
	configuration.Store.Dir = strings.TrimSpace(configuration.Store.Dir)
	configuration.Store.SQLitePath = strings.TrimSpace(configuration.Store.SQLitePath)
	configuration.Views.Path = strings.TrimSpace(configuration.Views.Path)
	configuration.Logging.Level = strings.ToLower(strings.TrimSpace(configuration.Logging.Level))
	configuration.Logging.Format = strings.ToLower(strings.TrimSpace(configuration.Logging.Format))
	configuration.Metrics.Textfile = strings.TrimSpace(configuration.Metrics.Textfile)
	configuration.Signing.KeyMode = strings.ToLower(strings.TrimSpace(configuration.Signing.KeyMode))
	configuration.Signing.PrivateKey = strings.TrimSpace(configuration.Signing.PrivateKey)
	configuration.Signing.PrivateKeyEnv = strings.TrimSpace(configuration.Signing.PrivateKeyEnv)
	configuration.Signing.PublicKey = strings.TrimSpace(configuration.Signing.PublicKey)
	configuration.Signing.PublicKeyEnv = strings.TrimSpace(configuration.Signing.PublicKeyEnv)
}

// SlogLevel maps logging.level to a slog level. Unknown or empty values log
// warnings and above.
func (defaults LoggingDefaults) SlogLevel() slog.Level {
	switch defaults.Level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
