// Package submission checks remote completion, assembles the final payload
// and transmits it exactly once per session.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/pulse/internal/model"
)

const (
	msgReadFirst     = "Please take a moment to read the question carefully before submitting."
	msgAnswerCurrent = "Please provide an answer to the current question before submitting."
	msgAnswerAll     = "Please answer all %d questions before submitting. You have answered %d/%d questions."
)

// Remote is the part of the collaborator the coordinator talks to.
type Remote interface {
	Status(ctx context.Context, identity, instance string) (model.CompletionRecord, error)
	Submit(ctx context.Context, sub model.Submission) (model.SubmitResult, error)
}

// Ledger is the local record of sessions and submitted flags.
type Ledger interface {
	Purge(ctx context.Context, instance string) error
	MarkSubmitted(ctx context.Context, instance string) error
	ClearSubmitted(ctx context.Context, instance string) error
	WasSubmitted(ctx context.Context, instance string) bool
}

// Session is what the coordinator needs from a progress tracker.
type Session interface {
	Sealed() bool
	CurrentSatisfied() bool
	Complete() bool
	Answered() int
	Questions() []model.Question
	Snapshot() model.SessionState
	EnsureAttemptID(ctx context.Context, newID func() string) (string, error)
	Seal(ctx context.Context) error
}

// Params configures a Coordinator.
type Params struct {
	Remote   Remote
	Ledger   Ledger
	Identity string
	Instance string
	NewID    func() string // defaults to a ULID
	Logger   *slog.Logger
}

// Coordinator owns the remote side of one survey instance for one identity.
type Coordinator struct {
	remote   Remote
	ledger   Ledger
	identity string
	instance string
	newID    func() string
	log      *slog.Logger

	inFlight atomic.Bool
}

// New returns a coordinator.
func New(p Params) *Coordinator {
	newID := p.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		remote:   p.Remote,
		ledger:   p.Ledger,
		identity: p.Identity,
		instance: p.Instance,
		newID:    newID,
		log:      log.With("component", "submission", "instance", p.Instance),
	}
}

// CheckRemoteStatus asks the remote whether the identity already completed
// the instance. A positive answer is cached locally and discards any saved
// session; a negative answer clears a stale cached flag. When the remote
// cannot be reached the cached flag decides, and without one the instance
// counts as not complete.
func (c *Coordinator) CheckRemoteStatus(ctx context.Context) model.CompletionRecord {
	rec, err := c.remote.Status(ctx, c.identity, c.instance)
	if err != nil {
		c.log.Warn("remote status unreachable", "error", fmt.Errorf("%w: %v", model.ErrRemoteStatusUnreachable, err))
		if c.ledger.WasSubmitted(ctx, c.instance) {
			return model.CompletionRecord{IsComplete: true, Source: model.SourceLocalCache}
		}
		return model.CompletionRecord{IsComplete: false, Source: model.SourceDefault}
	}

	if rec.IsComplete {
		c.recordCompleted(ctx)
		return model.CompletionRecord{IsComplete: true, Source: model.SourceRemote}
	}
	if err := c.ledger.ClearSubmitted(ctx, c.instance); err != nil {
		c.log.Warn("clear stale submitted flag", "error", err)
	}
	return model.CompletionRecord{IsComplete: false, Source: model.SourceRemote}
}

// Prepare checks the submit preconditions and builds the payload. The
// attempt id is created once per session and reused on retries.
func (c *Coordinator) Prepare(ctx context.Context, s Session, gateActive bool) (model.Submission, error) {
	if s.Sealed() {
		return model.Submission{}, model.ErrSealed
	}
	if gateActive {
		return model.Submission{}, model.DwellViolation(msgReadFirst)
	}
	if !s.CurrentSatisfied() {
		return model.Submission{}, model.Invalid(msgAnswerCurrent)
	}
	if !s.Complete() {
		n := len(s.Questions())
		return model.Submission{}, model.Invalid(fmt.Sprintf(msgAnswerAll, n, s.Answered(), n))
	}

	attempt, err := s.EnsureAttemptID(ctx, c.newID)
	if err != nil {
		return model.Submission{}, err
	}
	st := s.Snapshot()
	return BuildPayload(c.identity, c.instance, attempt, s.Questions(), st.Answers), nil
}

// Transmit sends a prepared submission. Only one transmission runs at a
// time; a concurrent call gets ErrSubmitInFlight without touching the
// network. If the remote already reports completion the submission is not
// sent and ErrAlreadyComplete is returned.
func (c *Coordinator) Transmit(ctx context.Context, sub model.Submission) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return model.ErrSubmitInFlight
	}
	defer c.inFlight.Store(false)

	rec, err := c.remote.Status(ctx, c.identity, c.instance)
	switch {
	case err != nil:
		c.log.Warn("status re-check failed, sending anyway", "error", err)
	case rec.IsComplete:
		c.recordCompleted(ctx)
		return model.ErrAlreadyComplete
	}

	res, err := c.remote.Submit(ctx, sub)
	if err != nil {
		c.log.Error("submit", "attempt", sub.AttemptID, "error", err)
		return fmt.Errorf("%w: %v", model.ErrSubmission, err)
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = "rejected by server"
		}
		c.log.Error("submit rejected", "attempt", sub.AttemptID, "message", msg)
		return fmt.Errorf("%w: %s", model.ErrSubmission, msg)
	}
	c.log.Info("submitted", "attempt", sub.AttemptID, "answers", len(sub.Answers))
	return nil
}

// InFlight reports whether a transmission is outstanding.
func (c *Coordinator) InFlight() bool { return c.inFlight.Load() }

// Finalize seals the session after an acknowledged submission, purges it
// from the store and records the local submitted flag. Store failures are
// logged; the seal stands regardless.
func (c *Coordinator) Finalize(ctx context.Context, s Session) error {
	if err := s.Seal(ctx); err != nil {
		if errors.Is(err, model.ErrSealed) {
			return err
		}
		c.log.Warn("persist seal", "error", err)
	}
	c.recordCompleted(ctx)
	return nil
}

func (c *Coordinator) recordCompleted(ctx context.Context) {
	if err := c.ledger.MarkSubmitted(ctx, c.instance); err != nil {
		c.log.Warn("mark submitted", "error", err)
	}
	if err := c.ledger.Purge(ctx, c.instance); err != nil {
		c.log.Warn("purge session", "error", err)
	}
}

// BuildPayload maps each answered question, in catalog order, to its
// kind-appropriate field. Free text is trimmed.
func BuildPayload(identity, instance, attempt string, questions []model.Question, answers map[string]model.Answer) model.Submission {
	sub := model.Submission{
		Identity:    identity,
		InstanceKey: instance,
		AttemptID:   attempt,
		Answers:     make([]model.AnswerEntry, 0, len(questions)),
	}
	for _, q := range questions {
		a, ok := answers[q.ID]
		if !q.Satisfied(a, ok) {
			continue
		}
		e := model.AnswerEntry{QuestionID: q.ID, Kind: q.Type}
		switch q.Type {
		case model.TypeFreeText:
			text := strings.TrimSpace(a.Text)
			e.Text = &text
		case model.TypeSingleChoice, model.TypeRating:
			choice := a.Choice
			e.Choice = &choice
		case model.TypeBoundedAmount:
			amount := *a.Amount
			e.Amount = &amount
		}
		sub.Answers = append(sub.Answers, e)
	}
	return sub
}
