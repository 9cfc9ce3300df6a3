// Package store provides the persisted session store interface and its
// SQLite and in-memory implementations.
package store

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Entry is one stored key/value pair.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListParams holds parameters for listing entries.
type ListParams struct {
	Prefix string
	Limit  int
}

// Stats holds store statistics.
type Stats struct {
	Path       string        `json:"path,omitempty"`
	SizeBytes  int64         `json:"size_bytes,omitempty"`
	Entries    int           `json:"entries"`
	Namespaces []PrefixStats `json:"namespaces"`
}

// PrefixStats holds per-namespace counts.
type PrefixStats struct {
	Namespace string `json:"namespace"`
	Count     int    `json:"count"`
}

// Store is a durable key/value store. Writes are synchronous: when Set
// returns nil the value survives a restart.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// List returns entries whose key starts with the given prefix.
	List(ctx context.Context, p ListParams) ([]Entry, error)

	// Stats returns entry counts per namespace.
	Stats(ctx context.Context) (*Stats, error)

	// Close closes the store.
	Close() error
}

const (
	NamespaceSession   = "session"
	NamespaceSubmitted = "submitted"
)

// SessionKey is the key of the in-progress session for identity and instance.
func SessionKey(identity, instance string) string {
	return key(NamespaceSession, identity, instance)
}

// SubmittedKey is the key of the locally known "submitted" flag.
func SubmittedKey(identity, instance string) string {
	return key(NamespaceSubmitted, identity, instance)
}

// ParseKey splits a key built by SessionKey or SubmittedKey.
func ParseKey(k string) (namespace, identity, instance string, ok bool) {
	parts := strings.Split(k, "/")
	if len(parts) != 3 {
		return "", "", "", false
	}
	id, err := url.PathUnescape(parts[1])
	if err != nil {
		return "", "", "", false
	}
	inst, err := url.PathUnescape(parts[2])
	if err != nil {
		return "", "", "", false
	}
	return parts[0], id, inst, true
}

// Components are escaped so ("a/b", "c") and ("a", "b/c") stay distinct.
func key(namespace, identity, instance string) string {
	return namespace + "/" + url.PathEscape(identity) + "/" + url.PathEscape(instance)
}

func namespaceOf(k string) string {
	ns, _, _ := strings.Cut(k, "/")
	return ns
}
