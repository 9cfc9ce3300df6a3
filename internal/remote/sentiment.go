package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/rcliao/pulse/internal/model"
)

// SentimentInstancePrefix prefixes instance keys of the rotating sentiment
// forms; the remainder is the backend form id.
const SentimentInstancePrefix = "sentiment-form-"

// SentimentInstanceKey returns the instance key of a form id.
func SentimentInstanceKey(formID int) string {
	return SentimentInstancePrefix + strconv.Itoa(formID)
}

// FormID extracts the backend form id from a sentiment instance key.
func FormID(instance string) (int, error) {
	s, ok := strings.CutPrefix(instance, SentimentInstancePrefix)
	if !ok {
		return 0, fmt.Errorf("not a sentiment instance: %q", instance)
	}
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad form id in %q", instance)
	}
	return id, nil
}

// SentimentClient serves the monthly sentiment forms.
type SentimentClient struct {
	c *Client
}

// NewSentimentClient wraps a Client.
func NewSentimentClient(c *Client) *SentimentClient {
	return &SentimentClient{c: c}
}

type sentimentStatus struct {
	Success  bool `json:"success"`
	IsFilled bool `json:"isFilled"`
}

// Me stands for the employee the token belongs to.
const Me = "me"

// Status asks whether identity filled in this month's form. An empty
// identity or Me asks about the token's own employee.
func (s *SentimentClient) Status(ctx context.Context, identity, instance string) (model.CompletionRecord, error) {
	path := "/employees/me/status"
	if identity != "" && identity != Me {
		path = "/employees/" + url.PathEscape(identity) + "/status"
	}
	var resp sentimentStatus
	if err := s.c.getJSON(ctx, path, &resp); err != nil {
		return model.CompletionRecord{}, err
	}
	return model.CompletionRecord{IsComplete: resp.Success && resp.IsFilled, Source: model.SourceRemote}, nil
}

type sentimentOption struct {
	Value flexString `json:"value"`
	Label string     `json:"label"`
}

type sentimentQuestion struct {
	ID      flexString      `json:"form_question_id"`
	Text    string          `json:"question_text"`
	Type    string          `json:"question_type"`
	Helper  string          `json:"helper_text"`
	Order   int             `json:"question_order"`
	Options json.RawMessage `json:"options_questions"`
}

type sentimentForm struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	Questions []sentimentQuestion `json:"questions"`
}

// Catalog fetches the questions of the form the instance refers to.
func (s *SentimentClient) Catalog(ctx context.Context, instance string) ([]model.Question, error) {
	formID, err := FormID(instance)
	if err != nil {
		return nil, err
	}
	var resp sentimentForm
	if err := s.c.getJSON(ctx, "/sentiment/form/"+strconv.Itoa(formID), &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "Failed to load questions"
		}
		return nil, errors.New(msg)
	}

	out := make([]model.Question, 0, len(resp.Questions))
	for i, wq := range resp.Questions {
		q := model.Question{
			ID:       string(wq.ID),
			Position: wq.Order,
			Text:     wq.Text,
			Helper:   wq.Helper,
		}
		if q.Position == 0 {
			q.Position = i + 1
		}
		switch wq.Type {
		case "text":
			q.Type = model.TypeFreeText
		case "rating":
			q.Type = model.TypeRating
		default:
			q.Type = model.TypeSingleChoice
		}
		if q.Type != model.TypeFreeText {
			opts, err := parseSentimentOptions(wq.Options)
			if err != nil {
				return nil, fmt.Errorf("question %s: %w", q.ID, err)
			}
			if len(opts) == 0 && q.Type == model.TypeRating {
				if opts, err = ratingScale(nil, nil); err != nil {
					return nil, fmt.Errorf("question %s: %w", q.ID, err)
				}
			}
			q.Options = opts
		}
		out = append(out, q)
	}
	return out, nil
}

// parseSentimentOptions accepts an array of {value,label} or the same array
// encoded as a JSON string.
func parseSentimentOptions(raw json.RawMessage) ([]model.Option, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("options: %w", err)
		}
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		raw = json.RawMessage(s)
	}
	var wire []sentimentOption
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	opts := make([]model.Option, 0, len(wire))
	for _, o := range wire {
		label := o.Label
		if label == "" {
			label = string(o.Value)
		}
		opts = append(opts, model.Option{Value: string(o.Value), Label: label})
	}
	return opts, nil
}

type sentimentAnswer struct {
	QuestionID any     `json:"form_question_id"`
	Text       *string `json:"answer_text,omitempty"`
	Choice     *string `json:"answer_choice,omitempty"`
}

type sentimentResponse struct {
	EmployeeID string            `json:"employee_id,omitempty"`
	FormID     int               `json:"form_id"`
	Answers    []sentimentAnswer `json:"answers"`
}

type ack struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// result treats a 2xx without a success field as accepted.
func (a ack) result() model.SubmitResult {
	return model.SubmitResult{Success: a.Success == nil || *a.Success, Message: a.Message}
}

// confirmed requires an explicit success:true.
func (a ack) confirmed() model.SubmitResult {
	return model.SubmitResult{Success: a.Success != nil && *a.Success, Message: a.Message}
}

// Submit posts the answers. Amounts are sent as choice text.
func (s *SentimentClient) Submit(ctx context.Context, sub model.Submission) (model.SubmitResult, error) {
	formID, err := FormID(sub.InstanceKey)
	if err != nil {
		return model.SubmitResult{}, err
	}
	body := sentimentResponse{FormID: formID}
	if sub.Identity != Me {
		body.EmployeeID = sub.Identity
	}
	for _, e := range sub.Answers {
		a := sentimentAnswer{QuestionID: wireID(e.QuestionID)}
		switch {
		case e.Text != nil:
			a.Text = e.Text
		case e.Choice != nil:
			a.Choice = e.Choice
		case e.Amount != nil:
			v := strconv.FormatFloat(*e.Amount, 'f', -1, 64)
			a.Choice = &v
		}
		body.Answers = append(body.Answers, a)
	}

	var resp ack
	if err := s.c.postJSON(ctx, "/sentiment/response", body, sub.AttemptID, &resp); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
			return model.SubmitResult{Success: false, Message: se.Body}, nil
		}
		return model.SubmitResult{}, err
	}
	return resp.confirmed(), nil
}
