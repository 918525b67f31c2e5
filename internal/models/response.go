package models

import (
	"crypto/rand"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type Response struct {
	ID             string     `json:"id"`
	SurveyID       string     `json:"survey_id"`
	RespondentID   string     `json:"respondent_id"`
	ResponseCode   string     `json:"response_code"`
	Answers        []Answer   `json:"answers"`
	StartedAt      time.Time  `json:"started_at"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	CompletionTime int        `json:"completion_time"`
	IsComplete     bool       `json:"is_complete"`
	QualityScore   int        `json:"quality_score"`
	QualityFlags   []string   `json:"quality_flags"`
	IsDeleted      bool       `json:"is_deleted"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	DeletedBy      string     `json:"deleted_by,omitempty"`
}

// Answer holds exactly one value field, selected by QuestionType.
type Answer struct {
	QuestionID   string       `json:"question_id"`
	QuestionType QuestionType `json:"question_type,omitempty"`
	ChoiceID     string       `json:"choice_id,omitempty"`
	ChoiceIDs    []string     `json:"choice_ids,omitempty"`
	Text         string       `json:"text,omitempty"`
	Rating       *int         `json:"rating,omitempty"`
	TimeSpent    int          `json:"time_spent,omitempty"`
}

// FirstChoice is the choice id an answer resolves to for the same-answer
// heuristic.
func (a Answer) FirstChoice() string {
	if a.ChoiceID != "" {
		return a.ChoiceID
	}
	if len(a.ChoiceIDs) > 0 {
		return a.ChoiceIDs[0]
	}
	return ""
}

// NewResponse validates answers against the survey and scores the result.
// submittedAt is the intake time; startedAt comes from the client.
func NewResponse(s *Survey, inputs []Answer, startedAt, submittedAt time.Time, respondentID string, rules QualityRules) (*Response, error) {
	answers, complete, blank, err := collectAnswers(s, inputs)
	if err != nil {
		return nil, err
	}
	if startedAt.IsZero() || startedAt.After(submittedAt) {
		startedAt = submittedAt
	}
	completion := int(math.Round(submittedAt.Sub(startedAt).Seconds()))
	// Blank text answers are not stored but still count as minimal text.
	scored := append(append(make([]Answer, 0, len(answers)+len(blank)), answers...), blank...)
	score, flags := ScoreQuality(scored, completion, rules)

	return &Response{
		ID:             uuid.NewString(),
		SurveyID:       s.ID,
		RespondentID:   respondentID,
		ResponseCode:   NewResponseCode(),
		Answers:        answers,
		StartedAt:      startedAt,
		SubmittedAt:    submittedAt,
		CompletionTime: completion,
		IsComplete:     complete,
		QualityScore:   score,
		QualityFlags:   flags,
	}, nil
}

// CollectAnswers walks the questions in order and keeps one normalized
// answer per shown question. Answers to unknown questions are ignored.
// complete reports whether every shown question has a usable answer.
func CollectAnswers(s *Survey, inputs []Answer) ([]Answer, bool, error) {
	answers, complete, _, err := collectAnswers(s, inputs)
	return answers, complete, err
}

// collectAnswers also returns an empty answer for every shown text question
// left blank.
func collectAnswers(s *Survey, inputs []Answer) ([]Answer, bool, []Answer, error) {
	byID := make(map[string]Answer, len(inputs))
	for _, in := range inputs {
		byID[in.QuestionID] = in
	}

	collected := make(map[string]Answer, len(s.Questions))
	answers := make([]Answer, 0, len(s.Questions))
	var blank []Answer
	complete := true
	for i := range s.Questions {
		q := &s.Questions[i]
		if q.ShowIf != nil && !q.ShowIf.Evaluate(collected) {
			continue
		}
		in, has := byID[q.ID]
		if !has {
			in = Answer{QuestionID: q.ID}
		}
		ans, usable, err := q.normalize(in)
		if err != nil {
			return nil, false, nil, err
		}
		if !usable {
			if q.Required {
				return nil, false, nil, detail(ErrRequiredAnswer, "question %q is required", q.Title)
			}
			if q.Type.IsText() {
				blank = append(blank, ans)
			}
			complete = false
			continue
		}
		collected[q.ID] = ans
		answers = append(answers, ans)
	}
	return answers, complete, blank, nil
}

func (q *Question) hasChoice(id string) bool {
	for _, c := range q.Choices {
		if c.ID == id {
			return true
		}
	}
	return false
}

// normalize reports usable=false when the answer carries no value for the
// question's type.
func (q *Question) normalize(in Answer) (Answer, bool, error) {
	out := Answer{QuestionID: q.ID, QuestionType: q.Type}
	if in.TimeSpent > 0 {
		out.TimeSpent = in.TimeSpent
	}

	switch q.Type {
	case SingleChoice:
		if in.ChoiceID == "" {
			return out, false, nil
		}
		if !q.hasChoice(in.ChoiceID) {
			return out, false, detail(ErrInvalidChoice, "question %q has no choice %s", q.Title, in.ChoiceID)
		}
		out.ChoiceID = in.ChoiceID

	case MultipleChoice:
		if len(in.ChoiceIDs) == 0 {
			return out, false, nil
		}
		seen := make(map[string]struct{}, len(in.ChoiceIDs))
		for _, id := range in.ChoiceIDs {
			if !q.hasChoice(id) {
				return out, false, detail(ErrInvalidChoice, "question %q has no choice %s", q.Title, id)
			}
			if _, dup := seen[id]; dup {
				return out, false, detail(ErrInvalidChoice, "question %q: choice %s selected twice", q.Title, id)
			}
			seen[id] = struct{}{}
		}
		n := len(in.ChoiceIDs)
		if q.MaxSelections != nil && n > *q.MaxSelections {
			return out, false, detail(ErrSelectionCount, "question %q allows at most %d choices", q.Title, *q.MaxSelections)
		}
		if q.MinSelections != nil && n < *q.MinSelections {
			return out, false, detail(ErrSelectionCount, "question %q needs at least %d choices", q.Title, *q.MinSelections)
		}
		out.ChoiceIDs = append([]string(nil), in.ChoiceIDs...)

	case ShortText, LongText:
		text := strings.TrimSpace(in.Text)
		if text == "" {
			return out, false, nil
		}
		n := utf8.RuneCountInString(text)
		if q.MaxLength != nil && n > *q.MaxLength {
			return out, false, detail(ErrTextLength, "question %q allows at most %d characters", q.Title, *q.MaxLength)
		}
		if q.MinLength != nil && n < *q.MinLength {
			return out, false, detail(ErrTextLength, "question %q needs at least %d characters", q.Title, *q.MinLength)
		}
		out.Text = text

	case Rating:
		if in.Rating == nil {
			return out, false, nil
		}
		if *in.Rating < 1 || *in.Rating > q.RatingScale {
			return out, false, detail(ErrRatingOutOfRange, "question %q takes a rating from 1 to %d", q.Title, q.RatingScale)
		}
		v := *in.Rating
		out.Rating = &v
	}
	return out, true, nil
}

func (r *Response) SoftDelete(by string, now time.Time) {
	r.IsDeleted = true
	stamp := now
	r.DeletedAt = &stamp
	r.DeletedBy = by
}

// Answer returns the stored answer for a question, if any.
func (r *Response) Answer(questionID string) (Answer, bool) {
	for _, a := range r.Answers {
		if a.QuestionID == questionID {
			return a, true
		}
	}
	return Answer{}, false
}

const responseCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const responseCodeLength = 8

// NewResponseCode returns a short uppercase token respondents can share.
func NewResponseCode() string {
	b := make([]byte, responseCodeLength)
	if _, err := rand.Read(b); err != nil {
		return strings.ToUpper(shortID()[:responseCodeLength])
	}
	for i := range b {
		b[i] = responseCodeAlphabet[int(b[i])%len(responseCodeAlphabet)]
	}
	return string(b)
}

type SkipOperator string

const (
	OpEquals    SkipOperator = "equals"
	OpNotEquals SkipOperator = "not_equals"
	OpContains  SkipOperator = "contains"
)

// SkipRule shows a question only when an earlier answer matches.
type SkipRule struct {
	QuestionID string       `json:"question_id"`
	Operator   SkipOperator `json:"operator"`
	Value      string       `json:"value"`
}

// Evaluate reports whether the question guarded by r should be shown.
func (r SkipRule) Evaluate(collected map[string]Answer) bool {
	a, ok := collected[r.QuestionID]
	switch r.Operator {
	case OpEquals:
		return ok && a.equals(r.Value)
	case OpNotEquals:
		return !ok || !a.equals(r.Value)
	case OpContains:
		return ok && a.contains(r.Value)
	default:
		return true
	}
}

func (a Answer) equals(value string) bool {
	switch {
	case a.ChoiceID != "":
		return a.ChoiceID == value
	case len(a.ChoiceIDs) > 0:
		return len(a.ChoiceIDs) == 1 && a.ChoiceIDs[0] == value
	case a.Rating != nil:
		return strconv.Itoa(*a.Rating) == value
	default:
		return strings.EqualFold(a.Text, value)
	}
}

func (a Answer) contains(value string) bool {
	switch {
	case a.ChoiceID != "":
		return a.ChoiceID == value
	case len(a.ChoiceIDs) > 0:
		for _, id := range a.ChoiceIDs {
			if id == value {
				return true
			}
		}
		return false
	case a.Rating != nil:
		return strconv.Itoa(*a.Rating) == value
	default:
		return strings.Contains(strings.ToLower(a.Text), strings.ToLower(value))
	}
}
