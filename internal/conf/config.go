// Package conf loads leafscan settings from defaults, a YAML config file,
// environment variables and command-line flags, in increasing precedence.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cropdx/leafscan/internal/logger"
)

// Settings contains all configuration options for leafscan.
// It is loaded once at startup and passed explicitly to each component.
type Settings struct {
	Debug bool // true to enable debug logging

	// Runtime values, not stored in config file
	Version    string `yaml:"-"`
	BuildDate  string `yaml:"-"`
	ConfigFile string `yaml:"-"` // path of the config file that was read, if any

	API struct {
		BaseURL   string        // service root, e.g. http://localhost:8000
		Timeout   time.Duration // per-request timeout
		UserAgent string        // User-Agent header sent to the service
	}

	Staging struct {
		MaxBytes int64 // largest image file accepted for staging
	}

	History struct {
		PollInterval time.Duration // interval between history refreshes in watch mode
	}

	Uploads struct {
		CacheTTL  time.Duration // how long downloaded images are cached
		RateLimit float64       // max image downloads per second
	}

	Logging LoggingSettings

	Telemetry struct {
		Sentry struct {
			Enabled bool   // true to report errors to Sentry
			DSN     string // Sentry project DSN
		}
	}

	Metrics struct {
		Enabled bool   // true to serve Prometheus metrics in watch mode
		Listen  string // address for the metrics and status endpoint
	}

	Preferences struct {
		Path string // YAML file holding UI preferences
	}

	UI struct {
		Theme   string // theme used when no preference is stored: dark or light
		NoColor bool   // true to disable ANSI colours in command output
	}
}

// LoggingSettings configures console and file logging.
type LoggingSettings struct {
	Level        string            // trace, debug, info, warn, error
	Timezone     string            // "Local", "UTC" or IANA name for file timestamps
	ModuleLevels map[string]string // per-module overrides, e.g. remote: debug
	File         struct {
		Enabled bool
		Path    string
		Level   string
	}
}

// LoggerConfig converts settings into the logger package's configuration.
func (s *Settings) LoggerConfig() *logger.LoggingConfig {
	level := s.Logging.Level
	if s.Debug {
		level = string(logger.LogLevelDebug)
	}
	cfg := &logger.LoggingConfig{
		Level:        level,
		Timezone:     s.Logging.Timezone,
		ModuleLevels: s.Logging.ModuleLevels,
	}
	if s.Logging.File.Enabled {
		cfg.FileOutput = &logger.FileOutput{
			Enabled: true,
			Path:    s.Logging.File.Path,
			Level:   s.Logging.File.Level,
		}
	}
	return cfg
}

// Load reads configuration into a new Settings using the global viper
// instance, which is where command-line flags are bound.
func Load(configFile string) (*Settings, error) {
	return LoadWith(viper.GetViper(), configFile)
}

// LoadWith reads configuration using v. configFile, when non-empty, must exist;
// otherwise the default search paths are tried and a missing file is not an error.
func LoadWith(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	settings.ConfigFile = v.ConfigFileUsed()

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	if err := bindEnvVars(v); err != nil {
		return err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range GetDefaultConfigPaths() {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Defaults and environment are enough to run
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in order: working directory, user config directory, system directory.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "leafscan"))
	}
	paths = append(paths, "/etc/leafscan")
	return paths
}

// DefaultPreferencesPath returns the preferences file location under the
// user config directory, falling back to the working directory.
func DefaultPreferencesPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "leafscan", "preferences.yaml")
	}
	return "leafscan-preferences.yaml"
}

// DefaultConfigPath returns where a new config file is written: the user
// config directory, or the working directory when it cannot be determined.
func DefaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "leafscan", "config.yaml")
	}
	return "config.yaml"
}

// MarshalYAML renders settings in config file form.
func MarshalYAML(settings *Settings) ([]byte, error) {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return yamlData, nil
}

// SaveYAMLConfig writes settings to configPath atomically.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := MarshalYAML(settings)
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Write to a temporary file first so a crash never leaves a partial config
	tempFile, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
