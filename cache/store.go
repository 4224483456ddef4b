// Package cache holds the small persistent key-value store that memoizes
// upstream tokens and the most recently resolved lyrics.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Key names one of the fixed store entries.
type Key string

const (
	KeyUserToken              Key = "current_user_token"
	KeyUserTokenLastRefreshed Key = "user_token_last_refreshed"
	KeyLyricAPIToken          Key = "current_lyric_api_token"
	KeyLyricAPITokenExpiresAt Key = "lyric_api_token_expires_at"
	KeyLyricCache             Key = "lyric_cache"
)

// AllKeys lists every key the service reads or writes.
var AllKeys = []Key{
	KeyUserToken,
	KeyUserTokenLastRefreshed,
	KeyLyricAPIToken,
	KeyLyricAPITokenExpiresAt,
	KeyLyricCache,
}

var ErrStoreClosed = errors.New("cache store is closed")

// Store is a durable mapping from key to a JSON document.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the raw document for key. ok is false when the key is absent.
	Load(key Key) (data []byte, ok bool, err error)
	// Save overwrites the document for key.
	Save(key Key, data []byte) error
	// Reset removes every entry.
	Reset() error
	Close() error
}

// Get decodes the entry for key into a T. An absent key yields the zero value.
func Get[T any](s Store, key Key) (T, bool, error) {
	var v T
	data, ok, err := s.Load(key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("malformed cache entry %q: %w", key, err)
	}
	return v, true, nil
}

// Set stores value under key and returns it, so callers can chain the write.
func Set[T any](s Store, key Key, value T) (T, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return value, fmt.Errorf("encoding cache entry %q: %w", key, err)
	}
	if err := s.Save(key, data); err != nil {
		return value, fmt.Errorf("saving cache entry %q: %w", key, err)
	}
	return value, nil
}

// EntryInfo describes a stored entry without exposing its value.
type EntryInfo struct {
	Key       Key `json:"key"`
	SizeBytes int `json:"size_bytes"`
}

// Entries reports which of the known keys are present and how large they are.
func Entries(s Store) ([]EntryInfo, error) {
	var entries []EntryInfo
	for _, key := range AllKeys {
		data, ok, err := s.Load(key)
		if err != nil {
			return nil, err
		}
		if ok {
			entries = append(entries, EntryInfo{Key: key, SizeBytes: len(data)})
		}
	}
	return entries, nil
}
