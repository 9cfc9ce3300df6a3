// Package model defines the core survey data types.
package model

import (
	"fmt"
	"math"
	"strings"
)

// QuestionType tags how a question is answered.
type QuestionType string

const (
	TypeFreeText      QuestionType = "free_text"
	TypeSingleChoice  QuestionType = "single_choice"
	TypeRating        QuestionType = "rating"
	TypeBoundedAmount QuestionType = "bounded_amount"
)

// ValidQuestionTypes are the allowed question types.
var ValidQuestionTypes = map[QuestionType]bool{
	TypeFreeText:      true,
	TypeSingleChoice:  true,
	TypeRating:        true,
	TypeBoundedAmount: true,
}

// Option is one selectable value of a choice or rating question.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Question is an immutable question definition within a survey instance.
type Question struct {
	ID       string       `json:"id"`
	Position int          `json:"position"`
	Text     string       `json:"text"`
	Helper   string       `json:"helper,omitempty"`
	Type     QuestionType `json:"type"`
	Options  []Option     `json:"options,omitempty"`
	Min      float64      `json:"min,omitempty"`
	Max      float64      `json:"max,omitempty"`
}

// Check reports whether the definition itself is usable.
func (q Question) Check() error {
	if strings.TrimSpace(q.ID) == "" {
		return fmt.Errorf("question at position %d has no id", q.Position)
	}
	if !ValidQuestionTypes[q.Type] {
		return fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)
	}
	switch q.Type {
	case TypeSingleChoice, TypeRating:
		if len(q.Options) == 0 {
			return fmt.Errorf("question %s: %s needs at least one option", q.ID, q.Type)
		}
		seen := map[string]bool{}
		for _, o := range q.Options {
			if o.Value == "" {
				return fmt.Errorf("question %s: option with empty value", q.ID)
			}
			if seen[o.Value] {
				return fmt.Errorf("question %s: duplicate option %q", q.ID, o.Value)
			}
			seen[o.Value] = true
		}
	case TypeBoundedAmount:
		if !(q.Min < q.Max) {
			return fmt.Errorf("question %s: invalid bounds [%v,%v]", q.ID, q.Min, q.Max)
		}
	}
	return nil
}

// HasOption reports whether v is one of the question's option values.
func (q Question) HasOption(v string) bool {
	for _, o := range q.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

// Accepts validates an answer against the question. Blank text is accepted
// since a respondent may clear a field while typing.
func (q Question) Accepts(a Answer) error {
	if a.Kind != q.Type {
		return fmt.Errorf("answer kind %q does not match question type %q", a.Kind, q.Type)
	}
	switch q.Type {
	case TypeSingleChoice, TypeRating:
		if a.Choice != "" && !q.HasOption(a.Choice) {
			return fmt.Errorf("%q is not an option of this question", a.Choice)
		}
	case TypeBoundedAmount:
		if a.Amount == nil {
			return nil
		}
		v := *a.Amount
		if math.IsNaN(v) || math.IsInf(v, 0) || v < q.Min || v > q.Max {
			return fmt.Errorf("amount must be between %v and %v", q.Min, q.Max)
		}
	}
	return nil
}

// Satisfied reports whether a counts toward completeness for q.
func (q Question) Satisfied(a Answer, ok bool) bool {
	if !ok || a.Kind != q.Type {
		return false
	}
	switch q.Type {
	case TypeFreeText:
		return strings.TrimSpace(a.Text) != ""
	case TypeSingleChoice, TypeRating:
		return a.Choice != ""
	case TypeBoundedAmount:
		return a.Amount != nil
	}
	return false
}

// Answer is a respondent's value for one question, tagged by the question type.
type Answer struct {
	Kind   QuestionType `json:"kind"`
	Text   string       `json:"text,omitempty"`
	Choice string       `json:"choice,omitempty"`
	Amount *float64     `json:"amount,omitempty"`
}

// TextAnswer builds a free-text answer.
func TextAnswer(s string) Answer { return Answer{Kind: TypeFreeText, Text: s} }

// ChoiceAnswer builds a single-choice answer.
func ChoiceAnswer(v string) Answer { return Answer{Kind: TypeSingleChoice, Choice: v} }

// RatingAnswer builds a rating answer.
func RatingAnswer(v string) Answer { return Answer{Kind: TypeRating, Choice: v} }

// AmountAnswer builds a bounded-amount answer.
func AmountAnswer(v float64) Answer { return Answer{Kind: TypeBoundedAmount, Amount: &v} }

func (a Answer) clone() Answer {
	if a.Amount != nil {
		v := *a.Amount
		a.Amount = &v
	}
	return a
}
