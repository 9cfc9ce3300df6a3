package model

import (
	"sort"
	"time"
)

// SessionState is the unit of persistence for one respondent and survey instance.
type SessionState struct {
	InstanceKey  string            `json:"instance_key"`
	Answers      map[string]Answer `json:"answers"`
	CurrentIndex int               `json:"current_index"`
	CurrentID    string            `json:"current_id,omitempty"`
	Visited      []string          `json:"visited"`
	Sealed       bool              `json:"sealed"`
	AttemptID    string            `json:"attempt_id,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewSessionState returns an empty state positioned at the first question.
func NewSessionState(instanceKey string) SessionState {
	return SessionState{
		InstanceKey: instanceKey,
		Answers:     map[string]Answer{},
		Visited:     []string{},
	}
}

// HasVisited reports whether the question id is in the visited set.
func (s SessionState) HasVisited(id string) bool {
	for _, v := range s.Visited {
		if v == id {
			return true
		}
	}
	return false
}

// MarkVisited adds id to the visited set. Returns false if it was already there.
func (s *SessionState) MarkVisited(id string) bool {
	if s.HasVisited(id) {
		return false
	}
	s.Visited = append(s.Visited, id)
	sort.Strings(s.Visited)
	return true
}

// Clone returns a deep copy so callers can hold snapshots safely.
func (s SessionState) Clone() SessionState {
	out := s
	out.Answers = make(map[string]Answer, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v.clone()
	}
	out.Visited = append([]string{}, s.Visited...)
	return out
}

// CompletionSource says where a completion record came from.
type CompletionSource string

const (
	SourceRemote     CompletionSource = "remote"
	SourceLocalCache CompletionSource = "local-cache"
	SourceDefault    CompletionSource = "default"
)

// CompletionRecord is the remote truth about whether an identity already submitted.
type CompletionRecord struct {
	IsComplete bool             `json:"is_complete"`
	Source     CompletionSource `json:"source"`
}

// AnswerEntry is one question's value in a submission payload.
type AnswerEntry struct {
	QuestionID string       `json:"question_id"`
	Kind       QuestionType `json:"kind"`
	Text       *string      `json:"text,omitempty"`
	Choice     *string      `json:"choice,omitempty"`
	Amount     *float64     `json:"amount,omitempty"`
}

// Submission is the final payload transmitted for a sealed session.
type Submission struct {
	Identity    string        `json:"identity"`
	InstanceKey string        `json:"instance_key"`
	AttemptID   string        `json:"attempt_id"`
	Answers     []AnswerEntry `json:"answers"`
}

// SubmitResult is the collaborator's acknowledgment of a submission.
type SubmitResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
