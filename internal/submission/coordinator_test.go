package submission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/pulse/internal/clock/clocktest"
	"github.com/rcliao/pulse/internal/dwell"
	"github.com/rcliao/pulse/internal/model"
	"github.com/rcliao/pulse/internal/progress"
	"github.com/rcliao/pulse/internal/remote/remotetest"
	"github.com/rcliao/pulse/internal/session"
	"github.com/rcliao/pulse/internal/store"
)

const (
	identity = "emp-42"
	instance = "sentiment-form-3"
)

func questions() []model.Question {
	return []model.Question{
		{ID: "q1", Position: 1, Type: model.TypeFreeText, Text: "Anything else?"},
		{ID: "q2", Position: 2, Type: model.TypeRating, Text: "Mood", Options: []model.Option{
			{Value: "1", Label: "1"}, {Value: "2", Label: "2"}, {Value: "3", Label: "3"}, {Value: "4", Label: "4"}, {Value: "5", Label: "5"},
		}},
		{ID: "q3", Position: 3, Type: model.TypeBoundedAmount, Text: "Budget", Min: 30, Max: 100},
	}
}

type fixture struct {
	remote *remotetest.Fake
	store  *store.MemoryStore
	repo   *session.Repository
	coord  *Coordinator
}

func newFixture() *fixture {
	r := remotetest.New(map[string][]model.Question{instance: questions()})
	s := store.NewMemoryStore()
	repo := session.NewRepository(s, identity, nil)
	ids := 0
	return &fixture{
		remote: r,
		store:  s,
		repo:   repo,
		coord: New(Params{
			Remote:   r,
			Ledger:   repo,
			Identity: identity,
			Instance: instance,
			NewID:    func() string { ids++; return "01ATTEMPT" },
		}),
	}
}

func (f *fixture) tracker(t *testing.T) *progress.Tracker {
	t.Helper()
	c := clocktest.New(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	tr, err := progress.New(context.Background(), progress.Params{
		InstanceKey: instance,
		Questions:   questions(),
		Saver:       f.repo,
		Gate:        dwell.New(c, time.Second, 0),
		Now:         c.Now,
	})
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	return tr
}

func answerAll(t *testing.T, tr *progress.Tracker) {
	t.Helper()
	ctx := context.Background()
	for _, step := range []struct {
		id string
		a  model.Answer
	}{
		{"q1", model.TextAnswer("  more snacks  ")},
		{"q2", model.RatingAnswer("4")},
		{"q3", model.AmountAnswer(75)},
	} {
		if err := tr.RecordAnswer(ctx, step.id, step.a); err != nil {
			t.Fatalf("record %s: %v", step.id, err)
		}
		if step.id != "q3" {
			if err := tr.Advance(ctx); err != nil {
				t.Fatalf("advance from %s: %v", step.id, err)
			}
		}
	}
}

func TestCheckRemoteStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("remote complete purges and caches", func(t *testing.T) {
		f := newFixture()
		f.repo.Save(ctx, model.NewSessionState(instance))
		f.remote.SetComplete(identity, instance, true)

		rec := f.coord.CheckRemoteStatus(ctx)
		if !rec.IsComplete || rec.Source != model.SourceRemote {
			t.Fatalf("expected remote completion, got %+v", rec)
		}
		if _, ok := f.repo.Load(ctx, instance); ok {
			t.Error("expected local session purged")
		}
		if !f.repo.WasSubmitted(ctx, instance) {
			t.Error("expected local flag set")
		}
	})

	t.Run("remote not filled clears stale flag", func(t *testing.T) {
		f := newFixture()
		f.repo.MarkSubmitted(ctx, instance)

		rec := f.coord.CheckRemoteStatus(ctx)
		if rec.IsComplete || rec.Source != model.SourceRemote {
			t.Fatalf("expected remote not complete, got %+v", rec)
		}
		if f.repo.WasSubmitted(ctx, instance) {
			t.Error("expected stale local flag cleared")
		}
	})

	t.Run("unreachable without cache", func(t *testing.T) {
		f := newFixture()
		f.remote.SetStatusErr(errors.New("connection refused"))

		rec := f.coord.CheckRemoteStatus(ctx)
		if rec.IsComplete || rec.Source != model.SourceDefault {
			t.Fatalf("expected default not complete, got %+v", rec)
		}
	})

	t.Run("unreachable with cache", func(t *testing.T) {
		f := newFixture()
		f.repo.MarkSubmitted(ctx, instance)
		f.remote.SetStatusErr(errors.New("connection refused"))

		rec := f.coord.CheckRemoteStatus(ctx)
		if !rec.IsComplete || rec.Source != model.SourceLocalCache {
			t.Fatalf("expected local cache completion, got %+v", rec)
		}
	})
}

func TestPreparePreconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	tr := f.tracker(t)

	_, err := f.coord.Prepare(ctx, tr, true)
	var adv *model.AdvisoryError
	if !errors.As(err, &adv) || !errors.Is(err, model.ErrDwell) {
		t.Fatalf("expected dwell advisory, got %v", err)
	}
	if adv.Message != msgReadFirst {
		t.Errorf("unexpected message %q", adv.Message)
	}

	_, err = f.coord.Prepare(ctx, tr, false)
	if !errors.As(err, &adv) || adv.Message != msgAnswerCurrent {
		t.Fatalf("expected current-answer advisory, got %v", err)
	}

	tr.RecordAnswer(ctx, "q1", model.TextAnswer("ok"))
	_, err = f.coord.Prepare(ctx, tr, false)
	want := "Please answer all 3 questions before submitting. You have answered 1/3 questions."
	if !errors.As(err, &adv) || adv.Message != want {
		t.Fatalf("expected %q, got %v", want, err)
	}
	if !errors.Is(err, model.ErrValidation) {
		t.Error("incomplete submit should be a validation error")
	}
}

func TestPrepareBuildsPayloadInCatalogOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	tr := f.tracker(t)
	answerAll(t, tr)

	sub, err := f.coord.Prepare(ctx, tr, false)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if sub.Identity != identity || sub.InstanceKey != instance || sub.AttemptID != "01ATTEMPT" {
		t.Errorf("unexpected header %+v", sub)
	}
	if len(sub.Answers) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(sub.Answers))
	}
	if e := sub.Answers[0]; e.QuestionID != "q1" || e.Text == nil || *e.Text != "more snacks" {
		t.Errorf("expected trimmed text for q1, got %+v", e)
	}
	if e := sub.Answers[1]; e.QuestionID != "q2" || e.Choice == nil || *e.Choice != "4" || e.Text != nil {
		t.Errorf("expected choice for q2, got %+v", e)
	}
	if e := sub.Answers[2]; e.QuestionID != "q3" || e.Amount == nil || *e.Amount != 75 {
		t.Errorf("expected amount for q3, got %+v", e)
	}

	again, _ := f.coord.Prepare(ctx, tr, false)
	if again.AttemptID != sub.AttemptID {
		t.Errorf("attempt id changed on retry: %q vs %q", sub.AttemptID, again.AttemptID)
	}
}

func TestSubmitSuccessSealsAndPurges(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	tr := f.tracker(t)
	answerAll(t, tr)

	sub, err := f.coord.Prepare(ctx, tr, false)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := f.coord.Transmit(ctx, sub); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if err := f.coord.Finalize(ctx, tr); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if got := len(f.remote.Submissions()); got != 1 {
		t.Errorf("expected 1 submission, got %d", got)
	}
	if !tr.Sealed() {
		t.Error("expected session sealed")
	}
	if _, ok := f.repo.Load(ctx, instance); ok {
		t.Error("expected store entry purged")
	}
	if !f.repo.WasSubmitted(ctx, instance) {
		t.Error("expected local submitted flag")
	}
	if err := f.coord.Finalize(ctx, tr); !errors.Is(err, model.ErrSealed) {
		t.Errorf("second finalize: expected ErrSealed, got %v", err)
	}
}

func TestSubmitFailureLeavesSessionIntact(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*remotetest.Fake)
	}{
		{"network", func(r *remotetest.Fake) { r.SetSubmitErr(errors.New("timeout")) }},
		{"rejected", func(r *remotetest.Fake) { r.SetReject("form closed") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture()
			tr := f.tracker(t)
			answerAll(t, tr)
			tt.setup(f.remote)

			sub, _ := f.coord.Prepare(ctx, tr, false)
			err := f.coord.Transmit(ctx, sub)
			if !errors.Is(err, model.ErrSubmission) {
				t.Fatalf("expected ErrSubmission, got %v", err)
			}
			if tr.Sealed() {
				t.Error("failed submission must not seal")
			}
			saved, ok := f.repo.Load(ctx, instance)
			if !ok || len(saved.Answers) != 3 {
				t.Errorf("expected answers kept for retry, got %+v", saved.Answers)
			}
			if f.repo.WasSubmitted(ctx, instance) {
				t.Error("failed submission must not set the local flag")
			}
		})
	}
}

func TestTransmitRechecksRemoteStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	tr := f.tracker(t)
	answerAll(t, tr)
	sub, _ := f.coord.Prepare(ctx, tr, false)

	f.remote.SetComplete(identity, instance, true)
	if err := f.coord.Transmit(ctx, sub); !errors.Is(err, model.ErrAlreadyComplete) {
		t.Fatalf("expected ErrAlreadyComplete, got %v", err)
	}
	if len(f.remote.Submissions()) != 0 {
		t.Error("nothing should be sent once the remote reports completion")
	}
	if _, ok := f.repo.Load(ctx, instance); ok {
		t.Error("expected session discarded")
	}
}

func TestTransmitSendsWhenStatusUnreachable(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	tr := f.tracker(t)
	answerAll(t, tr)
	sub, _ := f.coord.Prepare(ctx, tr, false)

	f.remote.SetStatusErr(errors.New("dns"))
	if err := f.coord.Transmit(ctx, sub); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if len(f.remote.Submissions()) != 1 {
		t.Error("expected submission sent despite status failure")
	}
}

func TestTransmitSingleFlight(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	tr := f.tracker(t)
	answerAll(t, tr)
	sub, _ := f.coord.Prepare(ctx, tr, false)

	release := f.remote.Hold()
	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstErr = f.coord.Transmit(ctx, sub)
	}()
	<-f.remote.Entered()

	if !f.coord.InFlight() {
		t.Error("expected transmission in flight")
	}
	if err := f.coord.Transmit(ctx, sub); !errors.Is(err, model.ErrSubmitInFlight) {
		t.Errorf("expected ErrSubmitInFlight, got %v", err)
	}
	release()
	wg.Wait()

	if firstErr != nil {
		t.Fatalf("first transmit: %v", firstErr)
	}
	if got := len(f.remote.Submissions()); got != 1 {
		t.Errorf("expected exactly 1 transmitted payload, got %d", got)
	}
}

func TestBuildPayloadSkipsUnsatisfied(t *testing.T) {
	answers := map[string]model.Answer{
		"q1": model.TextAnswer("   "),
		"q2": model.RatingAnswer("2"),
	}
	sub := BuildPayload(identity, instance, "a", questions(), answers)
	if len(sub.Answers) != 1 || sub.Answers[0].QuestionID != "q2" {
		t.Errorf("expected only q2, got %+v", sub.Answers)
	}
}
