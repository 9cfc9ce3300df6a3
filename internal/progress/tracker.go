// Package progress owns the respondent's position, answers and visited set
// for one survey session.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rcliao/pulse/internal/model"
)

const (
	msgReadFirst = "Please take a moment to read the question carefully before proceeding."
	msgAnswer    = "Please provide an answer before proceeding to the next question."
)

// Gate is the dwell check consulted before forward moves.
type Gate interface {
	Enter(firstVisit bool)
	Active() bool
}

// Saver persists a state snapshot synchronously.
type Saver interface {
	Save(ctx context.Context, st model.SessionState) error
}

// Params holds what a Tracker needs to start.
type Params struct {
	InstanceKey string
	Questions   []model.Question
	Saved       *model.SessionState // nil starts a fresh session
	Saver       Saver
	Gate        Gate
	Now         func() time.Time
}

// Tracker is the only writer of session state. Every mutation is persisted
// before it becomes visible; a mutation whose write fails is discarded.
// A Tracker is not safe for concurrent use.
type Tracker struct {
	questions []model.Question
	byID      map[string]int
	state     model.SessionState
	saver     Saver
	gate      Gate
	now       func() time.Time
}

// New creates a tracker positioned at the saved question (or the first one)
// and records the arrival there.
func New(ctx context.Context, p Params) (*Tracker, error) {
	if len(p.Questions) == 0 {
		return nil, errors.New("progress: empty catalog")
	}
	if p.Saver == nil || p.Gate == nil {
		return nil, errors.New("progress: saver and gate are required")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	t := &Tracker{
		questions: p.Questions,
		byID:      make(map[string]int, len(p.Questions)),
		saver:     p.Saver,
		gate:      p.Gate,
		now:       now,
	}
	for i, q := range p.Questions {
		t.byID[q.ID] = i
	}

	if p.Saved != nil {
		t.state = Restore(p.Questions, *p.Saved)
	} else {
		t.state = model.NewSessionState(p.InstanceKey)
	}
	t.state.InstanceKey = p.InstanceKey

	if err := t.moveTo(ctx, t.state.CurrentIndex); err != nil {
		return nil, err
	}
	return t, nil
}

// Restore reconciles a saved state with the loaded catalog. Answers for
// unknown questions or with values the question no longer accepts are
// dropped, and the position is resolved by question id before index.
func Restore(questions []model.Question, saved model.SessionState) model.SessionState {
	st := model.NewSessionState(saved.InstanceKey)
	st.AttemptID = saved.AttemptID
	st.UpdatedAt = saved.UpdatedAt
	if len(questions) == 0 {
		return st
	}

	byID := make(map[string]int, len(questions))
	for i, q := range questions {
		byID[q.ID] = i
	}
	for id, a := range saved.Answers {
		i, ok := byID[id]
		if !ok || questions[i].Accepts(a) != nil {
			continue
		}
		st.Answers[id] = a
	}
	for _, id := range saved.Visited {
		if _, ok := byID[id]; ok {
			st.MarkVisited(id)
		}
	}

	idx := saved.CurrentIndex
	if i, ok := byID[saved.CurrentID]; ok {
		idx = i
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(questions) {
		idx = len(questions) - 1
	}
	st.CurrentIndex = idx
	st.CurrentID = questions[idx].ID
	return st
}

// RecordAnswer stores value for the question, replacing any earlier value.
func (t *Tracker) RecordAnswer(ctx context.Context, questionID string, a model.Answer) error {
	if t.state.Sealed {
		return model.ErrSealed
	}
	i, ok := t.byID[questionID]
	if !ok {
		return model.Invalid(fmt.Sprintf("Unknown question %q.", questionID))
	}
	q := t.questions[i]
	a = coerce(q, a)
	if err := q.Accepts(a); err != nil {
		return model.Invalid(capitalize(err.Error()) + ".")
	}

	next := t.state.Clone()
	next.Answers[questionID] = a
	return t.commit(ctx, next)
}

// Advance moves to the next question. At the last question it only checks
// the preconditions.
func (t *Tracker) Advance(ctx context.Context) error {
	if err := t.checkForward(); err != nil {
		return err
	}
	if t.state.CurrentIndex >= len(t.questions)-1 {
		return nil
	}
	return t.moveTo(ctx, t.state.CurrentIndex+1)
}

// Retreat moves to the previous question. It is never gated.
func (t *Tracker) Retreat(ctx context.Context) error {
	if t.state.Sealed {
		return model.ErrSealed
	}
	if t.state.CurrentIndex == 0 {
		return nil
	}
	return t.moveTo(ctx, t.state.CurrentIndex-1)
}

// JumpTo moves to an arbitrary question. Jumps backward follow Retreat
// rules, jumps forward follow Advance rules.
func (t *Tracker) JumpTo(ctx context.Context, index int) error {
	if t.state.Sealed {
		return model.ErrSealed
	}
	if index < 0 || index >= len(t.questions) {
		return model.Invalid(fmt.Sprintf("There is no question %d.", index+1))
	}
	switch {
	case index == t.state.CurrentIndex:
		return nil
	case index > t.state.CurrentIndex:
		if err := t.checkForward(); err != nil {
			return err
		}
	}
	return t.moveTo(ctx, index)
}

// Complete reports whether every question has a satisfying answer.
func (t *Tracker) Complete() bool {
	return t.Answered() == len(t.questions)
}

// Answered counts questions with a satisfying answer.
func (t *Tracker) Answered() int {
	n := 0
	for i := range t.questions {
		if t.Satisfied(i) {
			n++
		}
	}
	return n
}

// Satisfied reports whether question i has a satisfying answer.
func (t *Tracker) Satisfied(i int) bool {
	if i < 0 || i >= len(t.questions) {
		return false
	}
	q := t.questions[i]
	a, ok := t.state.Answers[q.ID]
	return q.Satisfied(a, ok)
}

// CurrentSatisfied reports whether the current question has a satisfying answer.
func (t *Tracker) CurrentSatisfied() bool {
	return t.Satisfied(t.state.CurrentIndex)
}

// EnsureAttemptID returns the session's submission attempt id, creating and
// persisting one on first use so retries reuse it.
func (t *Tracker) EnsureAttemptID(ctx context.Context, newID func() string) (string, error) {
	if t.state.Sealed {
		return "", model.ErrSealed
	}
	if t.state.AttemptID != "" {
		return t.state.AttemptID, nil
	}
	next := t.state.Clone()
	next.AttemptID = newID()
	if err := t.commit(ctx, next); err != nil {
		return "", err
	}
	return next.AttemptID, nil
}

// Seal marks the session as submitted. The transition happens at most once;
// the in-memory seal holds even if persisting it fails.
func (t *Tracker) Seal(ctx context.Context) error {
	if t.state.Sealed {
		return model.ErrSealed
	}
	t.state.Sealed = true
	t.state.UpdatedAt = t.now().UTC()
	if err := t.saver.Save(ctx, t.state.Clone()); err != nil {
		return fmt.Errorf("persist seal: %w", err)
	}
	return nil
}

// Sealed reports whether the session has been sealed.
func (t *Tracker) Sealed() bool { return t.state.Sealed }

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() model.SessionState { return t.state.Clone() }

// Questions returns the catalog the tracker was built with.
func (t *Tracker) Questions() []model.Question {
	return append([]model.Question(nil), t.questions...)
}

// CurrentIndex returns the position of the current question.
func (t *Tracker) CurrentIndex() int { return t.state.CurrentIndex }

// Current returns the current question.
func (t *Tracker) Current() model.Question { return t.questions[t.state.CurrentIndex] }

// Answer returns the stored answer for a question.
func (t *Tracker) Answer(questionID string) (model.Answer, bool) {
	a, ok := t.state.Answers[questionID]
	return a, ok
}

// VisitedIndices returns catalog positions of visited questions, ascending.
func (t *Tracker) VisitedIndices() []int {
	out := make([]int, 0, len(t.state.Visited))
	for _, id := range t.state.Visited {
		if i, ok := t.byID[id]; ok {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

func (t *Tracker) checkForward() error {
	if t.state.Sealed {
		return model.ErrSealed
	}
	if t.gate.Active() {
		return model.DwellViolation(msgReadFirst)
	}
	if !t.CurrentSatisfied() {
		return model.Invalid(msgAnswer)
	}
	return nil
}

// moveTo marks the target visited and persists before the gate starts, so
// the visited set always contains the current question.
func (t *Tracker) moveTo(ctx context.Context, index int) error {
	next := t.state.Clone()
	next.CurrentIndex = index
	next.CurrentID = t.questions[index].ID
	first := next.MarkVisited(next.CurrentID)
	if err := t.commit(ctx, next); err != nil {
		return err
	}
	t.gate.Enter(first)
	return nil
}

func (t *Tracker) commit(ctx context.Context, next model.SessionState) error {
	next.UpdatedAt = t.now().UTC()
	if err := t.saver.Save(ctx, next); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	t.state = next
	return nil
}

// coerce lets callers use choice and rating answers interchangeably and
// omit the kind entirely.
func coerce(q model.Question, a model.Answer) model.Answer {
	switch {
	case a.Kind == "":
		a.Kind = q.Type
	case (q.Type == model.TypeRating || q.Type == model.TypeSingleChoice) &&
		(a.Kind == model.TypeRating || a.Kind == model.TypeSingleChoice):
		a.Kind = q.Type
	}
	return a
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if c := s[0]; c >= 'a' && c <= 'z' {
		return string(c-'a'+'A') + s[1:]
	}
	return s
}
