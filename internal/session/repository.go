// Package session reads and writes survey session state through a Store.
package session

import (
	"context"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"

	"github.com/rcliao/pulse/internal/model"
	"github.com/rcliao/pulse/internal/store"
)

const envelopeVersion = 1

type envelope struct {
	Version int                `json:"v"`
	State   model.SessionState `json:"state"`
}

// Repository persists session state and the local "submitted" flag for one
// identity. Unreadable values are purged and reported as absent.
type Repository struct {
	store    store.Store
	identity string
	log      *slog.Logger
}

// NewRepository returns a repository scoped to identity.
func NewRepository(s store.Store, identity string, log *slog.Logger) *Repository {
	if log == nil {
		log = slog.Default()
	}
	return &Repository{store: s, identity: identity, log: log.With("component", "session")}
}

// Identity returns the respondent identity this repository is scoped to.
func (r *Repository) Identity() string { return r.identity }

// Load returns the saved state for instance, or false if there is none or
// it could not be read.
func (r *Repository) Load(ctx context.Context, instance string) (model.SessionState, bool) {
	key := store.SessionKey(r.identity, instance)
	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.log.Warn("load session", "key", key, "error", err)
		return model.SessionState{}, false
	}
	if !ok {
		return model.SessionState{}, false
	}

	st, err := Decode(raw)
	if err == nil && st.InstanceKey != instance {
		err = fmt.Errorf("instance mismatch: stored %q", st.InstanceKey)
	}
	if err != nil {
		r.log.Warn("discarding unreadable session", "key", key, "error", err)
		if rmErr := r.store.Remove(ctx, key); rmErr != nil {
			r.log.Warn("purge unreadable session", "key", key, "error", rmErr)
		}
		return model.SessionState{}, false
	}
	return st, true
}

// Save writes state synchronously.
func (r *Repository) Save(ctx context.Context, st model.SessionState) error {
	b, err := Encode(st)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, store.SessionKey(r.identity, st.InstanceKey), b); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Purge deletes any saved state for instance.
func (r *Repository) Purge(ctx context.Context, instance string) error {
	if err := r.store.Remove(ctx, store.SessionKey(r.identity, instance)); err != nil {
		return fmt.Errorf("purge session: %w", err)
	}
	return nil
}

// MarkSubmitted records that a submission for instance was acknowledged.
func (r *Repository) MarkSubmitted(ctx context.Context, instance string) error {
	if err := r.store.Set(ctx, store.SubmittedKey(r.identity, instance), []byte("true")); err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	return nil
}

// ClearSubmitted removes the local "submitted" flag for instance.
func (r *Repository) ClearSubmitted(ctx context.Context, instance string) error {
	if err := r.store.Remove(ctx, store.SubmittedKey(r.identity, instance)); err != nil {
		return fmt.Errorf("clear submitted: %w", err)
	}
	return nil
}

// WasSubmitted reports whether the local flag is set. Any value other than
// "true" counts as unset and is purged.
func (r *Repository) WasSubmitted(ctx context.Context, instance string) bool {
	key := store.SubmittedKey(r.identity, instance)
	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.log.Warn("read submitted flag", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if string(raw) != "true" {
		r.log.Warn("discarding unreadable submitted flag", "key", key)
		if rmErr := r.store.Remove(ctx, key); rmErr != nil {
			r.log.Warn("purge unreadable submitted flag", "key", key, "error", rmErr)
		}
		return false
	}
	return true
}

// Encode serialises state in the versioned on-disk format.
func Encode(st model.SessionState) ([]byte, error) {
	b, err := json.Marshal(envelope{Version: envelopeVersion, State: st})
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return b, nil
}

// Decode parses a value produced by Encode.
func Decode(raw []byte) (model.SessionState, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.SessionState{}, fmt.Errorf("decode session: %w", err)
	}
	if env.Version != envelopeVersion {
		return model.SessionState{}, fmt.Errorf("decode session: unsupported version %d", env.Version)
	}
	st := env.State
	if st.Answers == nil {
		st.Answers = map[string]model.Answer{}
	}
	if st.Visited == nil {
		st.Visited = []string{}
	}
	return st, nil
}
