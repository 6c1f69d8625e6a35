// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"main.environment", "WEAPP_ENV", validateEnvEnvironment},
		{"main.debug", "WEAPP_DEBUG", validateEnvBool},

		{"log.level", "WEAPP_DIAG_LEVEL", validateEnvDiagLevel},

		{"applog.minlevel", "WEAPP_LOG_LEVEL", validateEnvEntryLevel},
		{"applog.uploadurl", "WEAPP_LOG_UPLOAD_URL", validateEnvURL},
		{"applog.uploaddebounce", "WEAPP_LOG_UPLOAD_DEBOUNCE", validateEnvDuration},

		{"queue.maxretries", "WEAPP_QUEUE_MAX_RETRIES", validateEnvNonNegativeInt},
		{"queue.jitter", "WEAPP_QUEUE_JITTER", validateEnvBool},

		{"api.baseurl", "WEAPP_API_BASE_URL", validateEnvURL},
		{"api.timeout", "WEAPP_API_TIMEOUT", validateEnvDuration},

		{"storage.driver", "WEAPP_STORAGE_DRIVER", validateEnvStorageDriver},
		{"storage.path", "WEAPP_STORAGE_PATH", nil},

		{"telemetry.enabled", "WEAPP_TELEMETRY", validateEnvBool},
		{"telemetry.dsn", "WEAPP_SENTRY_DSN", nil},

		{"transport.kind", "WEAPP_TRANSPORT", validateEnvTransportKind},
		{"transport.broker", "WEAPP_MQTT_BROKER", nil},
		{"transport.password", "WEAPP_MQTT_PASSWORD", nil},

		{"devconsole.enabled", "WEAPP_DEVCONSOLE", validateEnvBool},
		{"devconsole.listen", "WEAPP_DEVCONSOLE_LISTEN", nil},
	}
}

// bindEnvVars binds every known environment variable and validates the ones that are set
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue, ok := os.LookupEnv(binding.EnvVar); ok && envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvEnvironment(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "develop", "dev", EnvDevelopment, "trial", "stage", EnvStaging, "release", "prod", EnvProduction:
		return nil
	}
	return fmt.Errorf("unknown environment %q", value)
}

func validateEnvDiagLevel(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unknown log level %q", value)
}

func validateEnvEntryLevel(value string) error {
	if _, ok := parseEntryLevel(value); !ok {
		return fmt.Errorf("unknown entry level %q, expected DEBUG, INFO, WARN, ERROR or FATAL", value)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("must not be negative, got %d", n)
	}
	return nil
}

func validateEnvStorageDriver(value string) error {
	switch strings.TrimSpace(value) {
	case StorageMemory, StorageSQLite:
		return nil
	}
	return fmt.Errorf("storage driver must be %q or %q", StorageMemory, StorageSQLite)
}

func validateEnvTransportKind(value string) error {
	switch strings.TrimSpace(value) {
	case TransportHTTP, TransportMQTT:
		return nil
	}
	return fmt.Errorf("transport must be %q or %q", TransportHTTP, TransportMQTT)
}
