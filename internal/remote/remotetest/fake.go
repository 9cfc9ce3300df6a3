// Package remotetest provides an in-memory remote collaborator for tests.
package remotetest

import (
	"context"
	"sync"

	"github.com/rcliao/pulse/internal/model"
)

// Fake records every call. Configure the exported fields before use; the
// Set* methods may be called while the fake is in use.
type Fake struct {
	Catalogs map[string][]model.Question

	mu          sync.Mutex
	complete    map[string]bool
	statusErr   error
	catalogErr  error
	submitErr   error
	reject      string
	hold        chan struct{}
	entered     chan struct{}
	submissions []model.Submission
	statusCalls int
}

// New returns a fake serving catalogs keyed by instance.
func New(catalogs map[string][]model.Question) *Fake {
	if catalogs == nil {
		catalogs = map[string][]model.Question{}
	}
	return &Fake{
		Catalogs: catalogs,
		complete: map[string]bool{},
		entered:  make(chan struct{}, 16),
	}
}

func key(identity, instance string) string { return identity + "\x00" + instance }

// SetComplete marks identity as having completed instance.
func (f *Fake) SetComplete(identity, instance string, done bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.complete[key(identity, instance)] = done
}

// SetStatusErr makes Status fail with err (nil to recover).
func (f *Fake) SetStatusErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusErr = err
}

// SetCatalogErr makes Catalog fail with err.
func (f *Fake) SetCatalogErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalogErr = err
}

// SetSubmitErr makes Submit fail with a transport error.
func (f *Fake) SetSubmitErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
}

// SetReject makes Submit answer {success:false, message:msg}. An empty
// message accepts again.
func (f *Fake) SetReject(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reject = msg
}

// Hold makes subsequent Submit calls block until the returned release
// function is called.
func (f *Fake) Hold() (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.hold = ch
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.hold = nil
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Entered receives a value each time Submit is called.
func (f *Fake) Entered() <-chan struct{} { return f.entered }

// Submissions returns the payloads Submit has received.
func (f *Fake) Submissions() []model.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Submission(nil), f.submissions...)
}

// StatusCalls returns how many times Status was called.
func (f *Fake) StatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func (f *Fake) Status(ctx context.Context, identity, instance string) (model.CompletionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return model.CompletionRecord{}, f.statusErr
	}
	return model.CompletionRecord{IsComplete: f.complete[key(identity, instance)], Source: model.SourceRemote}, nil
}

func (f *Fake) Catalog(ctx context.Context, instance string) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	return append([]model.Question(nil), f.Catalogs[instance]...), nil
}

func (f *Fake) Submit(ctx context.Context, sub model.Submission) (model.SubmitResult, error) {
	f.mu.Lock()
	hold := f.hold
	f.submissions = append(f.submissions, sub)
	f.mu.Unlock()

	select {
	case f.entered <- struct{}{}:
	default:
	}
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return model.SubmitResult{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return model.SubmitResult{}, f.submitErr
	}
	if f.reject != "" {
		return model.SubmitResult{Success: false, Message: f.reject}, nil
	}
	f.complete[key(sub.Identity, sub.InstanceKey)] = true
	return model.SubmitResult{Success: true}, nil
}
