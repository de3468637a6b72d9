// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/cropdx/leafscan/internal/httpclient"
	"github.com/cropdx/leafscan/internal/preferences"
)

var validLogLevels = []string{"trace", "debug", "info", "warn", "error"}

// minPollInterval keeps watch mode from hammering the service.
const minPollInterval = time.Second

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, validate := range []func(*Settings) error{
		validateAPISettings,
		validateStagingSettings,
		validateHistorySettings,
		validateUploadsSettings,
		validateLoggingSettings,
		validateTelemetrySettings,
		validateMetricsSettings,
		validateUISettings,
	} {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAPISettings(s *Settings) error {
	if strings.TrimSpace(s.API.BaseURL) == "" {
		return fmt.Errorf("api.baseurl is required")
	}
	if _, err := httpclient.ParseBaseURL(s.API.BaseURL); err != nil {
		return fmt.Errorf("api.baseurl: %w", err)
	}
	if s.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", s.API.Timeout)
	}
	return nil
}

func validateStagingSettings(s *Settings) error {
	if s.Staging.MaxBytes <= 0 {
		return fmt.Errorf("staging.maxbytes must be positive, got %d", s.Staging.MaxBytes)
	}
	return nil
}

func validateHistorySettings(s *Settings) error {
	if s.History.PollInterval < minPollInterval {
		return fmt.Errorf("history.pollinterval must be at least %s, got %s", minPollInterval, s.History.PollInterval)
	}
	return nil
}

func validateUploadsSettings(s *Settings) error {
	if s.Uploads.CacheTTL < 0 {
		return fmt.Errorf("uploads.cachettl cannot be negative")
	}
	if s.Uploads.RateLimit < 0 {
		return fmt.Errorf("uploads.ratelimit cannot be negative")
	}
	return nil
}

func validateLoggingSettings(s *Settings) error {
	if !isValidLogLevel(s.Logging.Level) {
		return fmt.Errorf("logging.level %q must be one of %s", s.Logging.Level, strings.Join(validLogLevels, ", "))
	}
	for module, level := range s.Logging.ModuleLevels {
		if !isValidLogLevel(level) {
			return fmt.Errorf("logging.modulelevels.%s %q must be one of %s", module, level, strings.Join(validLogLevels, ", "))
		}
	}
	if s.Logging.File.Enabled && strings.TrimSpace(s.Logging.File.Path) == "" {
		return fmt.Errorf("logging.file.path is required when file logging is enabled")
	}
	if lvl := s.Logging.File.Level; lvl != "" && !isValidLogLevel(lvl) {
		return fmt.Errorf("logging.file.level %q must be one of %s", lvl, strings.Join(validLogLevels, ", "))
	}
	return nil
}

func validateTelemetrySettings(s *Settings) error {
	if s.Telemetry.Sentry.Enabled && strings.TrimSpace(s.Telemetry.Sentry.DSN) == "" {
		return fmt.Errorf("telemetry.sentry.dsn is required when Sentry reporting is enabled")
	}
	return nil
}

func validateMetricsSettings(s *Settings) error {
	if !s.Metrics.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(s.Metrics.Listen); err != nil {
		return fmt.Errorf("metrics.listen %q must be host:port: %w", s.Metrics.Listen, err)
	}
	return nil
}

func validateUISettings(s *Settings) error {
	if _, err := preferences.ParseTheme(s.UI.Theme); err != nil {
		return fmt.Errorf("ui.theme: %w", err)
	}
	return nil
}

func isValidLogLevel(level string) bool {
	return slices.Contains(validLogLevels, strings.ToLower(level))
}
