package applog

import (
	"slices"
	"time"
)

// Defaults applied by New.
const (
	DefaultMaxLogs        = 500
	DefaultUploadDebounce = 5 * time.Second
	DefaultRecentCount    = 100
	DefaultContextWindow  = 5
)

// Config controls admission and upload scheduling.
type Config struct {
	MinLevel Level
	// EnabledCategories lists admitted categories. Nil admits the fixed
	// category set; an empty non-nil slice admits nothing.
	EnabledCategories  []Category
	UploadURL          string
	UploadTriggerLevel Level
	UploadDebounce     time.Duration
}

// DefaultConfig admits everything and uploads nothing.
func DefaultConfig() Config {
	return Config{
		MinLevel:           LevelDebug,
		UploadTriggerLevel: LevelError,
		UploadDebounce:     DefaultUploadDebounce,
	}
}

func (c Config) clone() Config {
	c.EnabledCategories = slices.Clone(c.EnabledCategories)
	return c
}

func categorySet(cats []Category) map[Category]struct{} {
	if cats == nil {
		cats = AllCategories()
	}
	set := make(map[Category]struct{}, len(cats))
	for _, c := range cats {
		set[c] = struct{}{}
	}
	return set
}

// ConfigPatch is a partial configuration update. Nil fields are left
// unchanged, and so is an empty UploadURL.
type ConfigPatch struct {
	Level              *Level     `json:"level,omitempty"`
	EnabledCategories  []Category `json:"enabledCategories,omitempty"`
	UploadURL          string     `json:"uploadUrl,omitempty"`
	UploadTriggerLevel *Level     `json:"uploadTriggerLevel,omitempty"`
	// UploadDebounceMillis mirrors the remote config format.
	UploadDebounceMillis *int64 `json:"uploadDebounceTime,omitempty"`
}

func (c *Config) apply(p ConfigPatch) {
	if p.Level != nil {
		c.MinLevel = *p.Level
	}
	if p.EnabledCategories != nil {
		c.EnabledCategories = slices.Clone(p.EnabledCategories)
	}
	if p.UploadURL != "" {
		c.UploadURL = p.UploadURL
	}
	if p.UploadTriggerLevel != nil {
		c.UploadTriggerLevel = *p.UploadTriggerLevel
	}
	if p.UploadDebounceMillis != nil && *p.UploadDebounceMillis >= 0 {
		c.UploadDebounce = time.Duration(*p.UploadDebounceMillis) * time.Millisecond
	}
}
