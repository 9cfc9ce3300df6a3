package remote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/rcliao/pulse/internal/model"
)

// FeedbackInstanceKey is the single instance of the HR feedback survey.
const FeedbackInstanceKey = "hr-feedback"

// Default bounds of an HR "amount" question.
const (
	FeedbackAmountMin = 30
	FeedbackAmountMax = 100
)

// FeedbackClient serves the one-time HR feedback survey. The backend scopes
// it to the token's user, so the identity is not sent.
type FeedbackClient struct {
	c *Client
}

// NewFeedbackClient wraps a Client.
func NewFeedbackClient(c *Client) *FeedbackClient {
	return &FeedbackClient{c: c}
}

func checkFeedbackInstance(instance string) error {
	if instance != FeedbackInstanceKey {
		return fmt.Errorf("not the feedback instance: %q", instance)
	}
	return nil
}

// Status asks whether the token's user already sent feedback.
func (f *FeedbackClient) Status(ctx context.Context, identity, instance string) (model.CompletionRecord, error) {
	if err := checkFeedbackInstance(instance); err != nil {
		return model.CompletionRecord{}, err
	}
	var resp struct {
		HasSubmitted bool `json:"hasSubmitted"`
	}
	if err := f.c.getJSON(ctx, "/hr/feedback/responses", &resp); err != nil {
		return model.CompletionRecord{}, err
	}
	return model.CompletionRecord{IsComplete: resp.HasSubmitted, Source: model.SourceRemote}, nil
}

type feedbackOption struct {
	ID   flexString `json:"option_id"`
	Text string     `json:"option_text"`
}

type feedbackQuestion struct {
	ID      flexString       `json:"question_id"`
	Text    string           `json:"question_text"`
	Type    string           `json:"question_type"`
	Order   int              `json:"question_order"`
	Options []feedbackOption `json:"options"`
	Min     *float64         `json:"min"`
	Max     *float64         `json:"max"`
}

// Catalog fetches the feedback questions.
func (f *FeedbackClient) Catalog(ctx context.Context, instance string) ([]model.Question, error) {
	if err := checkFeedbackInstance(instance); err != nil {
		return nil, err
	}
	var resp struct {
		Questions []feedbackQuestion `json:"questions"`
	}
	if err := f.c.getJSON(ctx, "/hr/feedback/questions", &resp); err != nil {
		return nil, err
	}

	out := make([]model.Question, 0, len(resp.Questions))
	for i, wq := range resp.Questions {
		q := model.Question{ID: string(wq.ID), Position: wq.Order, Text: wq.Text}
		if q.Position == 0 {
			q.Position = i + 1
		}
		for _, o := range wq.Options {
			q.Options = append(q.Options, model.Option{Value: string(o.ID), Label: o.Text})
		}
		switch wq.Type {
		case "text":
			q.Type = model.TypeFreeText
			q.Options = nil
		case "amount":
			q.Type = model.TypeBoundedAmount
			q.Min, q.Max = FeedbackAmountMin, FeedbackAmountMax
			if wq.Min != nil {
				q.Min = *wq.Min
			}
			if wq.Max != nil {
				q.Max = *wq.Max
			}
			q.Options = nil
		case "rating":
			q.Type = model.TypeRating
			if len(q.Options) == 0 {
				opts, err := ratingScale(wq.Min, wq.Max)
				if err != nil {
					return nil, fmt.Errorf("question %s: %w", q.ID, err)
				}
				q.Options = opts
			}
		case "choice":
			q.Type = model.TypeSingleChoice
		default:
			return nil, fmt.Errorf("question %s: unknown type %q", q.ID, wq.Type)
		}
		out = append(out, q)
	}
	return out, nil
}

// MaxRatingOptions bounds a synthesised rating scale (0..10 fits).
const MaxRatingOptions = 11

const maxRatingBound = 1e6

// ratingScale builds options lo..hi, 1..5 by default.
func ratingScale(lower, upper *float64) ([]model.Option, error) {
	lo, hi := 1.0, 5.0
	if lower != nil {
		lo = *lower
	}
	if upper != nil {
		hi = *upper
	}
	if math.IsNaN(lo) || math.IsNaN(hi) || math.Abs(lo) > maxRatingBound || math.Abs(hi) > maxRatingBound {
		return nil, fmt.Errorf("rating bounds %v..%v out of range", lo, hi)
	}
	lo, hi = math.Ceil(lo), math.Floor(hi)
	if hi < lo || hi-lo+1 > MaxRatingOptions {
		return nil, fmt.Errorf("rating bounds %v..%v: want 1 to %d steps", lo, hi, MaxRatingOptions)
	}
	opts := make([]model.Option, 0, int(hi-lo)+1)
	for v := int(lo); v <= int(hi); v++ {
		s := strconv.Itoa(v)
		opts = append(opts, model.Option{Value: s, Label: s})
	}
	return opts, nil
}

type feedbackResponse struct {
	QuestionID any     `json:"question_id"`
	OptionID   any     `json:"option_id"`
	Text       *string `json:"response_text"`
}

// Submit posts the responses. Free text and amounts go in response_text,
// choices and ratings in option_id.
func (f *FeedbackClient) Submit(ctx context.Context, sub model.Submission) (model.SubmitResult, error) {
	if err := checkFeedbackInstance(sub.InstanceKey); err != nil {
		return model.SubmitResult{}, err
	}
	body := struct {
		Responses []feedbackResponse `json:"responses"`
	}{Responses: make([]feedbackResponse, 0, len(sub.Answers))}

	for _, e := range sub.Answers {
		r := feedbackResponse{QuestionID: wireID(e.QuestionID)}
		switch {
		case e.Text != nil:
			r.Text = e.Text
		case e.Amount != nil:
			v := strconv.FormatFloat(*e.Amount, 'f', -1, 64)
			r.Text = &v
		case e.Choice != nil:
			r.OptionID = wireID(*e.Choice)
		}
		body.Responses = append(body.Responses, r)
	}

	var resp ack
	if err := f.c.postJSON(ctx, "/hr/feedback/responses", body, sub.AttemptID, &resp); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
			msg := se.Body
			if msg == "" {
				msg = "Submission failed"
			}
			return model.SubmitResult{Success: false, Message: msg}, nil
		}
		return model.SubmitResult{}, err
	}
	return resp.result(), nil
}
