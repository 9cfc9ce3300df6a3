// Package profile defines the two surveys the engine runs: the rotating
// monthly sentiment form and the one-time HR feedback survey.
package profile

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rcliao/pulse/internal/config"
	"github.com/rcliao/pulse/internal/engine"
	"github.com/rcliao/pulse/internal/remote"
	"github.com/rcliao/pulse/internal/store"
)

// Kind names a survey profile.
type Kind string

const (
	Sentiment Kind = "sentiment"
	Feedback  Kind = "feedback"
)

// Kinds lists the profiles in display order.
var Kinds = []Kind{Sentiment, Feedback}

// DefaultForms is the number of rotating sentiment forms.
const DefaultForms = 4

// SentimentInstanceKey picks this month's sentiment form: January is form 1,
// and the forms repeat every `forms` months.
func SentimentInstanceKey(now time.Time, forms int) string {
	if forms <= 0 {
		forms = DefaultForms
	}
	month := int(now.Month()) - 1
	return remote.SentimentInstanceKey(month%forms + 1)
}

// FeedbackInstanceKey is the HR feedback survey's only instance.
func FeedbackInstanceKey(time.Time) string {
	return remote.FeedbackInstanceKey
}

// Profile binds a survey to its backend client and identity scoping.
type Profile struct {
	Kind     Kind
	Title    string
	Identity string
	Instance func(now time.Time) string
	Remote   remote.Collaborator
}

// Parse accepts a profile name.
func Parse(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Sentiment:
		return Sentiment, nil
	case Feedback, "hr", "hr-feedback":
		return Feedback, nil
	}
	return "", fmt.Errorf("unknown survey %q (want sentiment or feedback)", s)
}

// New builds the profile of kind from the config.
func New(kind Kind, cfg *config.Config, log *slog.Logger) (Profile, error) {
	if err := cfg.RequireRemote(); err != nil {
		return Profile{}, err
	}
	client := remote.NewClient(cfg.APIURL, cfg.Token, cfg.RequestTimeout, log)
	identity := cfg.EmployeeID
	if identity == "" {
		identity = remote.Me
	}

	switch kind {
	case Sentiment:
		forms := cfg.Sentiment.Forms
		return Profile{
			Kind:     Sentiment,
			Title:    "Monthly sentiment check-in",
			Identity: identity,
			Instance: func(now time.Time) string { return SentimentInstanceKey(now, forms) },
			Remote:   remote.NewSentimentClient(client),
		}, nil
	case Feedback:
		return Profile{
			Kind:     Feedback,
			Title:    "HR feedback",
			Identity: identity,
			Instance: FeedbackInstanceKey,
			Remote:   remote.NewFeedbackClient(client),
		}, nil
	}
	return Profile{}, fmt.Errorf("unknown survey %q", kind)
}

// EngineConfig returns the controller settings for the instance current at now.
func (p Profile) EngineConfig(cfg *config.Config, st store.Store, now time.Time, log *slog.Logger) engine.Config {
	return engine.Config{
		Identity:    p.Identity,
		InstanceKey: p.Instance(now),
		Remote:      p.Remote,
		Store:       st,
		DwellUnit:   cfg.Dwell.Unit,
		DwellUnits:  cfg.Dwell.Units,
		AdvisoryTTL: cfg.AdvisoryTTL,
		Logger:      log,
	}
}
