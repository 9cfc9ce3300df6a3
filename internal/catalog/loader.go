// Package catalog loads the ordered question list for a survey instance.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/rcliao/pulse/internal/model"
)

// Source fetches a raw question list from the remote collaborator.
type Source interface {
	Catalog(ctx context.Context, instanceKey string) ([]model.Question, error)
}

// Loader validates and caches catalogs. Once an instance's catalog has been
// loaded, later calls return the same questions in the same order.
type Loader struct {
	src Source
	log *slog.Logger

	mu    sync.Mutex
	cache map[string][]model.Question
}

// NewLoader returns a loader backed by src.
func NewLoader(src Source, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{src: src, log: log.With("component", "catalog"), cache: map[string][]model.Question{}}
}

// Load returns the ordered questions for instanceKey. An empty slice is a
// valid result. Fetch or validation failures wrap model.ErrCatalogUnavailable.
func (l *Loader) Load(ctx context.Context, instanceKey string) ([]model.Question, error) {
	l.mu.Lock()
	if qs, ok := l.cache[instanceKey]; ok {
		l.mu.Unlock()
		return copyQuestions(qs), nil
	}
	l.mu.Unlock()

	raw, err := l.src.Catalog(ctx, instanceKey)
	if err != nil {
		l.log.Error("fetch catalog", "instance", instanceKey, "error", err)
		return nil, fmt.Errorf("%w: %v", model.ErrCatalogUnavailable, err)
	}

	qs, err := Normalize(raw)
	if err != nil {
		l.log.Error("invalid catalog", "instance", instanceKey, "error", err)
		return nil, fmt.Errorf("%w: %v", model.ErrCatalogUnavailable, err)
	}
	l.log.Info("catalog loaded", "instance", instanceKey, "questions", len(qs))

	l.mu.Lock()
	defer l.mu.Unlock()
	// A concurrent load may have won; keep the first so positions never shift.
	if cached, ok := l.cache[instanceKey]; ok {
		return copyQuestions(cached), nil
	}
	l.cache[instanceKey] = qs
	return copyQuestions(qs), nil
}

// Normalize checks every question and orders them by position. Questions
// without a position keep their relative order after positioned ones.
func Normalize(raw []model.Question) ([]model.Question, error) {
	qs := copyQuestions(raw)
	seen := make(map[string]bool, len(qs))
	for _, q := range qs {
		if err := q.Check(); err != nil {
			return nil, err
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = true
	}
	sort.SliceStable(qs, func(i, j int) bool {
		pi, pj := qs[i].Position, qs[j].Position
		if pi == 0 || pj == 0 {
			return pi != 0 && pj == 0
		}
		return pi < pj
	})
	for i := range qs {
		qs[i].Position = i + 1
	}
	return qs, nil
}

func copyQuestions(qs []model.Question) []model.Question {
	out := make([]model.Question, len(qs))
	for i, q := range qs {
		q.Options = append([]model.Option(nil), q.Options...)
		out[i] = q
	}
	return out
}
