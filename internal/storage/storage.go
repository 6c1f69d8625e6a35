// Package storage provides the synchronous, process-local key-value
// persistence used for session-scoped values such as the device id, the
// current user id and the rolling analytics event list.
//
// Values are stored as JSON so every backend round-trips the same shapes.
package storage

import (
	"encoding/json"

	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
)

// Well-known keys.
const (
	KeyDeviceID      = "deviceId"
	KeyUserID        = "userId"
	KeyUserInfo      = "userInfo"
	KeyToken         = "token"
	KeyAnalyticsData = "analytics_data"
)

// KV is the persistence collaborator.
type KV interface {
	// Get decodes the value stored under key into dst. It reports false,
	// without error, when the key is absent.
	Get(key string, dst any) (bool, error)
	// Set stores value under key, replacing any previous value.
	Set(key string, value any) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
}

func encode(key string, value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, errors.New(err).
			Component("storage").
			Category(errors.CategorySerialization).
			Context("key", key).
			Build()
	}
	return data, nil
}

func decode(key string, data []byte, dst any) error {
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.New(err).
			Component("storage").
			Category(errors.CategorySerialization).
			Context("key", key).
			Build()
	}
	return nil
}

// GetString is a convenience for string values; it returns "" when absent or undecodable.
func GetString(kv KV, key string) string {
	var s string
	if ok, err := kv.Get(key, &s); !ok || err != nil {
		return ""
	}
	return s
}
