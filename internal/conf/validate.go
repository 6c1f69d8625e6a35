// conf/validate.go

package conf

import (
	"fmt"
	"strings"
)

// Storage drivers and transport kinds accepted by the settings.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"

	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

var entryLevels = []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

// parseEntryLevel accepts an entry level name, case-insensitively.
// The applog package owns the Level type; conf only checks names.
func parseEntryLevel(value string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(value))
	for _, l := range entryLevels {
		if upper == l {
			return l, true
		}
	}
	return "", false
}

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
		validateAppLogSettings,
		validateQueueSettings,
		validatePaymentSettings,
		validateStorageSettings,
		validateTransportSettings,
		validateTelemetrySettings,
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

func validateAppLogSettings(s *Settings) error {
	var errs []string
	if _, ok := parseEntryLevel(s.AppLog.MinLevel); !ok {
		errs = append(errs, fmt.Sprintf("applog.minlevel %q is not a known level", s.AppLog.MinLevel))
	}
	if _, ok := parseEntryLevel(s.AppLog.UploadTrigger); !ok {
		errs = append(errs, fmt.Sprintf("applog.uploadtrigger %q is not a known level", s.AppLog.UploadTrigger))
	}
	if s.AppLog.MaxLogs <= 0 {
		errs = append(errs, "applog.maxlogs must be positive")
	}
	if s.AppLog.UploadDebounce < 0 {
		errs = append(errs, "applog.uploaddebounce must not be negative")
	}
	if s.Alerts.MinLevel != "" {
		if _, ok := parseEntryLevel(s.Alerts.MinLevel); !ok {
			errs = append(errs, fmt.Sprintf("alerts.minlevel %q is not a known level", s.Alerts.MinLevel))
		}
	}
	return joinErrors("applog", errs)
}

func validateQueueSettings(s *Settings) error {
	var errs []string
	if s.Queue.MaxRetries < 0 {
		errs = append(errs, "queue.maxretries must not be negative")
	}
	if s.Queue.BaseDelay <= 0 {
		errs = append(errs, "queue.basedelay must be positive")
	}
	if s.Queue.MaxDelay < s.Queue.BaseDelay {
		errs = append(errs, "queue.maxdelay must not be smaller than queue.basedelay")
	}
	return joinErrors("queue", errs)
}

func validatePaymentSettings(s *Settings) error {
	if s.Payment.MinInterval < 0 {
		return fmt.Errorf("payment settings: payment.mininterval must not be negative")
	}
	return nil
}

func validateStorageSettings(s *Settings) error {
	switch s.Storage.Driver {
	case StorageMemory:
		return nil
	case StorageSQLite:
		if s.Storage.Path == "" {
			return fmt.Errorf("storage settings: storage.path is required for the sqlite driver")
		}
		return nil
	}
	return fmt.Errorf("storage settings: unknown driver %q", s.Storage.Driver)
}

func validateTransportSettings(s *Settings) error {
	switch s.Transport.Kind {
	case TransportHTTP:
		return nil
	case TransportMQTT:
		if s.Transport.Broker == "" {
			return fmt.Errorf("transport settings: transport.broker is required for mqtt")
		}
		return nil
	}
	return fmt.Errorf("transport settings: unknown kind %q", s.Transport.Kind)
}

func validateTelemetrySettings(s *Settings) error {
	if !s.Telemetry.Enabled {
		return nil
	}
	var errs []string
	if s.Telemetry.DSN == "" {
		errs = append(errs, "telemetry.dsn is required when telemetry is enabled")
	}
	if s.Telemetry.SampleRate < 0 || s.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.samplerate must be between 0 and 1")
	}
	return joinErrors("telemetry", errs)
}

func joinErrors(section string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s settings errors: %s", section, strings.Join(errs, "; "))
}
