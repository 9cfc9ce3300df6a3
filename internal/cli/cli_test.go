package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/rcliao/pulse/internal/model"
	"github.com/rcliao/pulse/internal/session"
	"github.com/rcliao/pulse/internal/store"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "none.yaml")))
	if err := RootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func seed(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pulse.db")
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer s.Close()

	repo := session.NewRepository(s, "42", nil)
	st := model.NewSessionState("sentiment-form-2")
	st.Answers["q1"] = model.TextAnswer("fine")
	st.Visited = []string{"q1"}
	if err := repo.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.MarkSubmitted(ctx, "hr-feedback"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	return path
}

func TestInstanceCommand(t *testing.T) {
	out := run(t, "instance", "--at", "2026-06-03", "--forms", "4")

	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("parse output %q: %v", out, err)
	}
	if got["sentiment"] != "sentiment-form-2" || got["feedback"] != "hr-feedback" || got["date"] != "2026-06-03" {
		t.Errorf("unexpected instances: %v", got)
	}
}

func TestSessionListShowRm(t *testing.T) {
	db := seed(t)

	out := run(t, "session", "list", "--db", db, "--keys-only", "--submitted=false")
	if strings.TrimSpace(out) != "42/sentiment-form-2" {
		t.Errorf("expected one saved session, got %q", out)
	}

	out = run(t, "session", "list", "--db", db, "--keys-only=false", "--submitted")
	var rows []sessionRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("parse list: %v", err)
	}
	if len(rows) != 1 || rows[0].Namespace != store.NamespaceSubmitted || rows[0].Instance != "hr-feedback" {
		t.Errorf("unexpected submitted rows: %+v", rows)
	}

	out = run(t, "session", "show", "sentiment-form-2", "--db", db, "--identity", "42")
	var st model.SessionState
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("parse show: %v", err)
	}
	if st.Answers["q1"].Text != "fine" {
		t.Errorf("expected saved answer, got %+v", st.Answers)
	}

	run(t, "session", "rm", "sentiment-form-2", "--db", db, "--identity", "42", "--submitted=false")
	out = run(t, "session", "list", "--db", db, "--keys-only", "--submitted=false")
	if strings.TrimSpace(out) != "" {
		t.Errorf("expected session removed, got %q", out)
	}
}

func TestStatsCommand(t *testing.T) {
	db := seed(t)
	out := run(t, "stats", "--db", db)

	var st store.Stats
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("parse stats: %v", err)
	}
	if st.Entries != 2 || len(st.Namespaces) != 2 {
		t.Errorf("expected 2 entries in 2 namespaces, got %+v", st)
	}
}
