// Package conf loads application settings from defaults, an optional YAML
// file and WEAPP_* environment variables.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// Runtime environments. Host build flavours (develop, trial, release) are
// normalized onto these.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Settings is the root of the application configuration
type Settings struct {
	Main       MainSettings       `yaml:"main"`
	Log        LogSettings        `yaml:"log"`
	AppLog     AppLogSettings     `yaml:"applog"`
	Queue      QueueSettings      `yaml:"queue"`
	API        APISettings        `yaml:"api"`
	Payment    PaymentSettings    `yaml:"payment"`
	Share      ShareSettings      `yaml:"share"`
	Analytics  AnalyticsSettings  `yaml:"analytics"`
	Storage    StorageSettings    `yaml:"storage"`
	Telemetry  TelemetrySettings  `yaml:"telemetry"`
	Alerts     AlertSettings      `yaml:"alerts"`
	Transport  TransportSettings  `yaml:"transport"`
	DevConsole DevConsoleSettings `yaml:"devconsole"`
}

// MainSettings holds application identity
type MainSettings struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"` // development, staging, production
	Debug       bool   `yaml:"debug"`       // enables the state debug middleware and page timing logs
}

// LogSettings configures the diagnostics logger
type LogSettings struct {
	Level    string `yaml:"level"`
	Timezone string `yaml:"timezone"`
	Console  bool   `yaml:"console"`
	File     string `yaml:"file"` // optional JSON log file
}

// AppLogSettings configures the structured event buffer
type AppLogSettings struct {
	MinLevel        string        `yaml:"minlevel"`
	Categories      []string      `yaml:"categories"` // empty means all categories
	MaxLogs         int           `yaml:"maxlogs"`
	UploadURL       string        `yaml:"uploadurl"`
	UploadTrigger   string        `yaml:"uploadtrigger"`
	UploadDebounce  time.Duration `yaml:"uploaddebounce"`
	RemoteConfigURL string        `yaml:"remoteconfigurl"`
}

// QueueSettings configures retry queues
type QueueSettings struct {
	MaxRetries int           `yaml:"maxretries"`
	BaseDelay  time.Duration `yaml:"basedelay"`
	MaxDelay   time.Duration `yaml:"maxdelay"`
	Jitter     bool          `yaml:"jitter"`
}

// APISettings configures the HTTP transport
type APISettings struct {
	BaseURL  string            `yaml:"baseurl"`  // overrides BaseURLs when set
	BaseURLs map[string]string `yaml:"baseurls"` // per environment
	Timeout  time.Duration     `yaml:"timeout"`
}

// PaymentSettings configures the payment plugin
type PaymentSettings struct {
	ConfirmEnabled bool          `yaml:"confirmenabled"`
	MinInterval    time.Duration `yaml:"mininterval"`
}

// ShareSettings configures the share plugin
type ShareSettings struct {
	EnableDefaultStrategy bool   `yaml:"enabledefaultstrategy"`
	Title                 string `yaml:"title"`
	Path                  string `yaml:"path"`
	ImageURL              string `yaml:"imageurl"`
}

// AnalyticsSettings configures local event storage and upload
type AnalyticsSettings struct {
	Capacity int    `yaml:"capacity"`
	Endpoint string `yaml:"endpoint"`
}

// StorageSettings selects the key-value persistence backend
type StorageSettings struct {
	Driver string `yaml:"driver"` // memory or sqlite
	Path   string `yaml:"path"`
}

// TelemetrySettings configures Sentry error telemetry
type TelemetrySettings struct {
	Enabled    bool    `yaml:"enabled"`
	DSN        string  `yaml:"dsn"`
	SampleRate float64 `yaml:"samplerate"`
}

// AlertSettings configures shoutrrr alerting
type AlertSettings struct {
	URLs     []string `yaml:"urls"`
	MinLevel string   `yaml:"minlevel"`
}

// TransportSettings selects the outbound report transport
type TransportSettings struct {
	Kind        string `yaml:"kind"` // http or mqtt
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"clientid"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topicprefix"`
}

// DevConsoleSettings configures the developer HTTP console
type DevConsoleSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load builds Settings from defaults, the config file and the environment.
// An empty configFile searches the working directory and the user config
// directory for config.yaml; a missing file is not an error.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, path := range defaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	settings.Main.Environment = NormalizeEnvironment(settings.Main.Environment)
	applyEnvironmentProfile(v, settings)

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

// NormalizeEnvironment maps host build flavours onto runtime environments.
// Unknown values fall back to production.
func NormalizeEnvironment(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "develop", "dev", EnvDevelopment:
		return EnvDevelopment
	case "trial", "stage", EnvStaging:
		return EnvStaging
	default:
		return EnvProduction
	}
}

// applyEnvironmentProfile fills per-environment values the user did not set.
func applyEnvironmentProfile(v *viper.Viper, s *Settings) {
	if !v.IsSet("main.debug") {
		s.Main.Debug = s.Main.Environment != EnvProduction
	}
	if !v.IsSet("api.timeout") {
		switch s.Main.Environment {
		case EnvDevelopment:
			s.API.Timeout = 10 * time.Second
		case EnvStaging:
			s.API.Timeout = 15 * time.Second
		default:
			s.API.Timeout = 20 * time.Second
		}
	}
}

// APIBaseURL returns the explicit base URL or the one for the current environment.
func (s *Settings) APIBaseURL() string {
	if s.API.BaseURL != "" {
		return s.API.BaseURL
	}
	return s.API.BaseURLs[s.Main.Environment]
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "weapp"))
	}
	return paths
}

// DefaultConfigYAML returns the embedded, commented default configuration.
func DefaultConfigYAML() ([]byte, error) {
	return configFiles.ReadFile("config.yaml")
}

// WriteDefaultConfig writes the embedded default configuration to path,
// refusing to overwrite an existing file.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	data, err := DefaultConfigYAML()
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// RedactedYAML renders settings as YAML with secrets masked.
func (s *Settings) RedactedYAML() ([]byte, error) {
	cp := *s
	if cp.Transport.Password != "" {
		cp.Transport.Password = "[REDACTED]"
	}
	if cp.Telemetry.DSN != "" {
		cp.Telemetry.DSN = "[REDACTED]"
	}
	return yaml.Marshal(&cp)
}

// SaveYAMLConfig writes settings to configPath through a temporary file so
// the replacement is atomic on most filesystems.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
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
