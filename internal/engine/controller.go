// Package engine drives one respondent through one survey instance. It
// translates intents into calls on the dwell gate, the progress tracker and
// the submission coordinator, and publishes a Snapshot after every change.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/pulse/internal/catalog"
	"github.com/rcliao/pulse/internal/clock"
	"github.com/rcliao/pulse/internal/dwell"
	"github.com/rcliao/pulse/internal/model"
	"github.com/rcliao/pulse/internal/progress"
	"github.com/rcliao/pulse/internal/remote"
	"github.com/rcliao/pulse/internal/session"
	"github.com/rcliao/pulse/internal/store"
	"github.com/rcliao/pulse/internal/submission"
)

// DefaultAdvisoryTTL is how long an advisory stays visible.
const DefaultAdvisoryTTL = 3 * time.Second

// Config wires a Controller.
type Config struct {
	Identity    string
	InstanceKey string
	Remote      remote.Collaborator
	Store       store.Store

	Clock       clock.Clock   // defaults to the wall clock
	DwellUnit   time.Duration // defaults to dwell.DefaultUnit
	DwellUnits  *int          // nil means dwell.DefaultUnits
	AdvisoryTTL time.Duration // defaults to DefaultAdvisoryTTL
	NewAttempt  func() string // submission attempt ids; defaults to ULIDs
	Logger      *slog.Logger
}

// Controller is safe for concurrent use. Remote calls run without holding
// its lock, so snapshots stay available while they are outstanding.
type Controller struct {
	identity string
	instance string
	clock    clock.Clock
	ttl      time.Duration
	log      *slog.Logger

	repo   *session.Repository
	loader *catalog.Loader
	coord  *submission.Coordinator
	gate   *dwell.Gate

	mu         sync.Mutex
	started    bool
	closed     bool
	phase      Phase
	completion model.CompletionRecord
	questions  []model.Question
	tracker    *progress.Tracker
	advisory   *Advisory
	advGen     uint64
	advTimer   clock.Timer
	errMsg     string
	seq        uint64
	subs       map[int]chan Snapshot
	nextSub    int
}

// New returns a controller in the bootstrapping phase. Call Start to run
// the status check and load the catalog.
func New(cfg Config) (*Controller, error) {
	if cfg.Remote == nil || cfg.Store == nil {
		return nil, errors.New("engine: remote and store are required")
	}
	if cfg.InstanceKey == "" {
		return nil, errors.New("engine: instance key is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	units := dwell.DefaultUnits
	if cfg.DwellUnits != nil {
		units = *cfg.DwellUnits
	}
	ttl := cfg.AdvisoryTTL
	if ttl <= 0 {
		ttl = DefaultAdvisoryTTL
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	repo := session.NewRepository(cfg.Store, cfg.Identity, log)
	c := &Controller{
		identity: cfg.Identity,
		instance: cfg.InstanceKey,
		clock:    clk,
		ttl:      ttl,
		log:      log.With("component", "engine", "instance", cfg.InstanceKey),
		repo:     repo,
		loader:   catalog.NewLoader(cfg.Remote, log),
		coord: submission.New(submission.Params{
			Remote:   cfg.Remote,
			Ledger:   repo,
			Identity: cfg.Identity,
			Instance: cfg.InstanceKey,
			NewID:    cfg.NewAttempt,
			Logger:   log,
		}),
		gate:  dwell.New(clk, cfg.DwellUnit, units),
		phase: PhaseBootstrapping,
		subs:  map[int]chan Snapshot{},
	}
	c.gate.OnChange(c.onDwellTick)
	return c, nil
}

// Start checks remote completion and loads the catalog concurrently, then
// settles into the first real phase. It returns once that phase is published.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("engine: already started")
	}
	c.started = true
	c.mu.Unlock()

	var (
		rec    model.CompletionRecord
		qs     []model.Question
		catErr error
		g      errgroup.Group
	)
	g.Go(func() error {
		rec = c.coord.CheckRemoteStatus(ctx)
		return nil
	})
	g.Go(func() error {
		qs, catErr = c.loader.Load(ctx, c.instance)
		return nil
	})
	g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.completion = rec

	switch {
	case rec.IsComplete:
		c.log.Info("already complete", "source", rec.Source)
		c.phase = PhaseAlreadyComplete
	case catErr != nil:
		c.phase = PhaseCatalogUnavailable
		c.errMsg = "The survey could not be loaded. Please try again later."
	case len(qs) == 0:
		c.phase = PhaseNoQuestions
	default:
		if err := c.activateLocked(ctx, qs); err != nil {
			c.log.Error("open session", "error", err)
			c.phase = PhaseCatalogUnavailable
			c.errMsg = "Your saved progress could not be opened. Please try again later."
			c.publishLocked()
			return err
		}
	}
	c.log.Info("bootstrapped", "phase", c.phase, "questions", len(qs))
	c.publishLocked()
	return nil
}

func (c *Controller) activateLocked(ctx context.Context, qs []model.Question) error {
	var saved *model.SessionState
	if st, ok := c.repo.Load(ctx, c.instance); ok {
		if st.Sealed {
			c.log.Warn("discarding sealed leftover session")
			c.repo.Purge(ctx, c.instance)
		} else {
			saved = &st
		}
	}
	tr, err := progress.New(ctx, progress.Params{
		InstanceKey: c.instance,
		Questions:   qs,
		Saved:       saved,
		Saver:       c.repo,
		Gate:        c.gate,
		Now:         c.clock.Now,
	})
	if err != nil {
		return err
	}
	c.questions = qs
	c.tracker = tr
	c.phase = PhaseActive
	return nil
}

// Answer records a value for a question.
func (c *Controller) Answer(ctx context.Context, questionID string, a model.Answer) error {
	return c.mutate(func() error { return c.tracker.RecordAnswer(ctx, questionID, a) })
}

// Next moves forward one question.
func (c *Controller) Next(ctx context.Context) error {
	return c.mutate(func() error { return c.tracker.Advance(ctx) })
}

// Previous moves back one question.
func (c *Controller) Previous(ctx context.Context) error {
	return c.mutate(func() error { return c.tracker.Retreat(ctx) })
}

// Jump moves to the question at index.
func (c *Controller) Jump(ctx context.Context, index int) error {
	return c.mutate(func() error { return c.tracker.JumpTo(ctx, index) })
}

func (c *Controller) mutate(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireActiveLocked(); err != nil {
		return err
	}
	err := fn()
	if err == nil {
		c.errMsg = ""
	}
	c.noteLocked(err)
	c.publishLocked()
	return err
}

// Submit transmits the answers. It blocks until the remote responds; a
// second call while one is outstanding returns model.ErrSubmitInFlight.
// Cancelling ctx does not abort a transmission already under way.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if err := c.requireActiveLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	sub, err := c.coord.Prepare(ctx, c.tracker, c.gate.Active())
	if err != nil {
		c.noteLocked(err)
		c.publishLocked()
		c.mu.Unlock()
		return err
	}
	c.phase = PhaseSubmitting
	c.errMsg = ""
	c.clearAdvisoryLocked()
	c.publishLocked()
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	err = c.coord.Transmit(ctx, sub)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err == nil:
		c.coord.Finalize(ctx, c.tracker)
		c.gate.Stop()
		c.phase = PhaseSealed
	case errors.Is(err, model.ErrAlreadyComplete):
		c.gate.Stop()
		c.completion = model.CompletionRecord{IsComplete: true, Source: model.SourceRemote}
		c.phase = PhaseAlreadyComplete
	default:
		c.phase = PhaseActive
		c.errMsg = "Your answers could not be submitted. They are saved; please try again."
	}
	c.publishLocked()
	return err
}

func (c *Controller) requireActiveLocked() error {
	switch c.phase {
	case PhaseActive:
		return nil
	case PhaseSubmitting:
		return model.ErrSubmitInFlight
	case PhaseSealed:
		return model.ErrSealed
	case PhaseAlreadyComplete:
		return model.ErrAlreadyComplete
	}
	return fmt.Errorf("%w: %s", model.ErrNotActive, c.phase)
}

// noteLocked turns recoverable failures into an advisory.
func (c *Controller) noteLocked(err error) {
	if err == nil {
		return
	}
	var adv *model.AdvisoryError
	if !errors.As(err, &adv) {
		c.log.Error("intent failed", "error", err)
		c.errMsg = "Something went wrong saving your progress. Please try again."
		return
	}
	kind := AdvisoryValidation
	if errors.Is(err, model.ErrDwell) {
		kind = AdvisoryDwell
	}
	c.showAdvisoryLocked(Advisory{Kind: kind, Message: adv.Message})
}

func (c *Controller) showAdvisoryLocked(a Advisory) {
	c.clearAdvisoryLocked()
	c.advisory = &a
	gen := c.advGen
	c.advTimer = c.clock.AfterFunc(c.ttl, func() { c.expireAdvisory(gen) })
}

func (c *Controller) clearAdvisoryLocked() {
	c.advGen++
	if c.advTimer != nil {
		c.advTimer.Stop()
		c.advTimer = nil
	}
	c.advisory = nil
}

func (c *Controller) expireAdvisory(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.advGen || c.closed {
		return
	}
	c.advisory = nil
	c.advTimer = nil
	c.publishLocked()
}

func (c *Controller) onDwellTick(int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.publishLocked()
}

// Subscribe returns a channel of snapshots starting with the current one.
// Each subscriber holds at most one pending snapshot; a slow reader only
// misses intermediate ones. The channel is closed by cancel or Close.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close stops timers and closes subscriptions. An outstanding submission
// is left to finish on its own.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.gate.Stop()
	c.clearAdvisoryLocked()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

func (c *Controller) publishLocked() {
	c.seq++
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Seq:         c.seq,
		Phase:       c.phase,
		Identity:    c.identity,
		InstanceKey: c.instance,
		Completion:  c.completion,
		Error:       c.errMsg,
	}
	if c.advisory != nil {
		a := *c.advisory
		s.Advisory = &a
	}
	if c.tracker == nil || c.phase == PhaseAlreadyComplete {
		return s
	}
	st := c.tracker.Snapshot()
	s.Questions = c.questions
	s.Index = st.CurrentIndex
	s.Answers = st.Answers
	s.Visited = c.tracker.VisitedIndices()
	s.Satisfied = make([]bool, len(c.questions))
	for i := range c.questions {
		s.Satisfied[i] = c.tracker.Satisfied(i)
	}
	s.Answered = c.tracker.Answered()
	s.Complete = s.Answered == len(c.questions)
	s.DwellRemaining = c.gate.Remaining()
	return s
}
