package applog

import (
	"fmt"
	"strings"
)

// Level is the severity of an entry. Levels are ordered; a higher value is
// more severe. Entries serialize the level as its ordinal.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelFatal {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return levelNames[l]
}

// Levels returns every level in ascending order.
func Levels() []Level {
	return []Level{LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal}
}

// ParseLevel accepts a level name in any case, or its ordinal.
func ParseLevel(s string) (Level, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range levelNames {
		if s == name || s == fmt.Sprint(i) {
			return Level(i), nil
		}
	}
	if s == "WARNING" {
		return LevelWarn, nil
	}
	return LevelDebug, fmt.Errorf("unknown log level %q", s)
}

// Category partitions entries by subsystem.
type Category string

const (
	CategoryAPI         Category = "API"
	CategoryUI          Category = "UI"
	CategoryData        Category = "DATA"
	CategoryAuth        Category = "AUTH"
	CategoryPay         Category = "PAY"
	CategoryShare       Category = "SHARE"
	CategoryStorage     Category = "STORAGE"
	CategoryNetwork     Category = "NETWORK"
	CategoryPerformance Category = "PERFORMANCE"
	CategoryUser        Category = "USER"
	CategoryAnalytics   Category = "ANALYTICS"
	CategoryPlugin      Category = "PLUGIN"
	CategoryError       Category = "ERROR"
)

// AllCategories returns the fixed category set.
func AllCategories() []Category {
	return []Category{
		CategoryAPI, CategoryUI, CategoryData, CategoryAuth, CategoryPay,
		CategoryShare, CategoryStorage, CategoryNetwork, CategoryPerformance,
		CategoryUser, CategoryAnalytics, CategoryPlugin, CategoryError,
	}
}
