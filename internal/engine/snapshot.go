package engine

import "github.com/rcliao/pulse/internal/model"

// Phase is the controller's lifecycle state.
type Phase string

const (
	PhaseBootstrapping      Phase = "bootstrapping"
	PhaseAlreadyComplete    Phase = "already_complete"
	PhaseNoQuestions        Phase = "no_questions"
	PhaseCatalogUnavailable Phase = "catalog_unavailable"
	PhaseActive             Phase = "active"
	PhaseSubmitting         Phase = "submitting"
	PhaseSealed             Phase = "sealed"
)

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseAlreadyComplete, PhaseNoQuestions, PhaseCatalogUnavailable, PhaseSealed:
		return true
	}
	return false
}

// ThankYou reports whether the phase renders the "thank you" view.
func (p Phase) ThankYou() bool {
	return p == PhaseAlreadyComplete || p == PhaseSealed
}

// AdvisoryKind distinguishes advisories; all of them are handled the same way.
type AdvisoryKind string

const (
	AdvisoryValidation AdvisoryKind = "validation"
	AdvisoryDwell      AdvisoryKind = "dwell"
)

// Advisory is a transient message shown next to the current question.
type Advisory struct {
	Kind    AdvisoryKind `json:"kind"`
	Message string       `json:"message"`
}

// Snapshot is an immutable view of the engine. Questions is shared between
// snapshots and must not be modified.
type Snapshot struct {
	Seq            uint64                  `json:"seq"`
	Phase          Phase                   `json:"phase"`
	Identity       string                  `json:"identity"`
	InstanceKey    string                  `json:"instance_key"`
	Completion     model.CompletionRecord  `json:"completion"`
	Questions      []model.Question        `json:"questions,omitempty"`
	Index          int                     `json:"index"`
	Answers        map[string]model.Answer `json:"answers,omitempty"`
	Visited        []int                   `json:"visited,omitempty"`
	Satisfied      []bool                  `json:"satisfied,omitempty"`
	Answered       int                     `json:"answered"`
	Complete       bool                    `json:"complete"`
	DwellRemaining int                     `json:"dwell_remaining"`
	Advisory       *Advisory               `json:"advisory,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

// Total returns the number of questions.
func (s Snapshot) Total() int { return len(s.Questions) }

// Current returns the current question, if the flow is showing one.
func (s Snapshot) Current() (model.Question, bool) {
	if s.Index < 0 || s.Index >= len(s.Questions) {
		return model.Question{}, false
	}
	return s.Questions[s.Index], true
}

// Percent is the share of satisfied questions, 0..100.
func (s Snapshot) Percent() int {
	if len(s.Questions) == 0 {
		return 0
	}
	return s.Answered * 100 / len(s.Questions)
}

// IsVisited reports whether question i was visited.
func (s Snapshot) IsVisited(i int) bool {
	for _, v := range s.Visited {
		if v == i {
			return true
		}
	}
	return false
}
