package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rcliao/pulse/internal/model"
	"github.com/rcliao/pulse/internal/store"
)

func newTestRepo(t *testing.T) (*Repository, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "pulse.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewRepository(s, "emp-7", nil), s
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)

	st := model.NewSessionState("sentiment-form-2")
	st.Answers["q1"] = model.TextAnswer("busy but good")
	st.Answers["q3"] = model.AmountAnswer(55)
	st.CurrentIndex = 1
	st.CurrentID = "q2"
	st.MarkVisited("q1")
	st.MarkVisited("q2")

	if err := r.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok := r.Load(ctx, "sentiment-form-2")
	if !ok {
		t.Fatal("expected saved session")
	}
	if got.Answers["q1"].Text != "busy but good" {
		t.Errorf("expected text answer, got %+v", got.Answers["q1"])
	}
	if got.Answers["q3"].Amount == nil || *got.Answers["q3"].Amount != 55 {
		t.Errorf("expected amount 55, got %+v", got.Answers["q3"])
	}
	if got.CurrentIndex != 1 || got.CurrentID != "q2" {
		t.Errorf("expected position 1/q2, got %d/%s", got.CurrentIndex, got.CurrentID)
	}
	if len(got.Visited) != 2 {
		t.Errorf("expected 2 visited, got %v", got.Visited)
	}
}

func TestLoadAbsent(t *testing.T) {
	r, _ := newTestRepo(t)
	if _, ok := r.Load(context.Background(), "hr-feedback"); ok {
		t.Error("expected no session")
	}
}

func TestCorruptValueIsPurged(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{{{"},
		{"wrong version", `{"v":99,"state":{"instance_key":"hr-feedback"}}`},
		{"wrong instance", `{"v":1,"state":{"instance_key":"other"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			r, s := newTestRepo(t)
			key := store.SessionKey("emp-7", "hr-feedback")
			s.Set(ctx, key, []byte(tt.raw))

			if _, ok := r.Load(ctx, "hr-feedback"); ok {
				t.Fatal("expected corrupt session to load as absent")
			}
			if _, present, _ := s.Get(ctx, key); present {
				t.Error("expected corrupt session to be purged")
			}
		})
	}
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)

	r.Save(ctx, model.NewSessionState("hr-feedback"))
	if err := r.Purge(ctx, "hr-feedback"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, ok := r.Load(ctx, "hr-feedback"); ok {
		t.Error("expected session purged")
	}
}

func TestSubmittedFlag(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRepo(t)

	if r.WasSubmitted(ctx, "sentiment-form-1") {
		t.Fatal("flag should start unset")
	}
	r.MarkSubmitted(ctx, "sentiment-form-1")
	if !r.WasSubmitted(ctx, "sentiment-form-1") {
		t.Error("expected flag set")
	}
	if r.WasSubmitted(ctx, "sentiment-form-2") {
		t.Error("flag must be scoped to the instance")
	}
	if NewRepository(s, "emp-8", nil).WasSubmitted(ctx, "sentiment-form-1") {
		t.Error("flag must be scoped to the identity")
	}

	r.ClearSubmitted(ctx, "sentiment-form-1")
	if r.WasSubmitted(ctx, "sentiment-form-1") {
		t.Error("expected flag cleared")
	}

	s.Set(ctx, store.SubmittedKey("emp-7", "sentiment-form-3"), []byte("yes?"))
	if r.WasSubmitted(ctx, "sentiment-form-3") {
		t.Error("unreadable flag should count as unset")
	}
}

type stuckStore struct{ store.Store }

func (stuckStore) Remove(context.Context, string) error { return errors.New("disk is read-only") }

func TestUnreadableFlagPurgeFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	key := store.SubmittedKey("emp-7", "hr-feedback")
	mem.Set(ctx, key, []byte("maybe"))

	var buf bytes.Buffer
	r := NewRepository(stuckStore{mem}, "emp-7", slog.New(slog.NewTextHandler(&buf, nil)))
	if r.WasSubmitted(ctx, "hr-feedback") {
		t.Fatal("unreadable flag should count as unset")
	}
	if out := buf.String(); !strings.Contains(out, "purge unreadable submitted flag") || !strings.Contains(out, "disk is read-only") {
		t.Errorf("expected purge failure logged, got %q", out)
	}
}
