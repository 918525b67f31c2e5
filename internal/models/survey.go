package models

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SurveyStatus string

const (
	SurveyDraft  SurveyStatus = "draft"
	SurveyOpen   SurveyStatus = "open"
	SurveyClosed SurveyStatus = "closed"
)

type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	ShortText      QuestionType = "short_text"
	LongText       QuestionType = "long_text"
	Rating         QuestionType = "rating"
)

func (t QuestionType) IsChoice() bool {
	return t == SingleChoice || t == MultipleChoice
}

func (t QuestionType) IsText() bool {
	return t == ShortText || t == LongText
}

type Survey struct {
	ID           string         `json:"id"`
	Version      uint64         `json:"version"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Questions    []Question     `json:"questions"`
	Status       SurveyStatus   `json:"status"`
	Settings     SurveySettings `json:"settings"`
	Stats        SurveyStats    `json:"stats"`
	IsEditable   bool           `json:"is_editable"`
	PasswordHash string         `json:"password_hash"`
	IsHidden     bool           `json:"is_hidden"`
	IsDeleted    bool           `json:"is_deleted"`
	DeletedAt    *time.Time     `json:"deleted_at,omitempty"`
	PublishedAt  *time.Time     `json:"published_at,omitempty"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type Question struct {
	ID          string       `json:"id"`
	Type        QuestionType `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Required    bool         `json:"required"`
	Choices     []Choice     `json:"choices,omitempty"`
	// Selection bounds apply to multiple_choice only.
	MinSelections *int `json:"min_selections,omitempty"`
	MaxSelections *int `json:"max_selections,omitempty"`
	// Length bounds apply to text questions, counted in characters.
	MinLength *int `json:"min_length,omitempty"`
	MaxLength *int `json:"max_length,omitempty"`
	// RatingScale is 5 or 10.
	RatingScale int       `json:"rating_scale,omitempty"`
	ShowIf      *SkipRule `json:"show_if,omitempty"`
}

type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type SurveySettings struct {
	ResponseLimit       *int       `json:"response_limit,omitempty"`
	CloseAt             *time.Time `json:"close_at,omitempty"`
	ShowProgressBar     bool       `json:"show_progress_bar"`
	ShowQuestionNumbers bool       `json:"show_question_numbers"`
	AllowBackNavigation bool       `json:"allow_back_navigation"`
	Autosave            bool       `json:"autosave"`
}

type SurveyStats struct {
	ResponseCount     int        `json:"response_count"`
	CompletionRate    int        `json:"completion_rate"`
	AvgCompletionTime float64    `json:"avg_completion_time"`
	ViewCount         int        `json:"view_count"`
	FirstResponseAt   *time.Time `json:"first_response_at,omitempty"`
	LastResponseAt    *time.Time `json:"last_response_at,omitempty"`
}

type NewSurveyInput struct {
	Title        string
	Description  string
	Questions    []Question
	Settings     SurveySettings
	PasswordHash string
}

// NewSurvey validates input and builds a draft survey.
func NewSurvey(in NewSurveyInput, now time.Time) (*Survey, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrTitleRequired
	}
	if in.PasswordHash == "" {
		return nil, ErrPasswordRequired
	}
	questions, err := PrepareQuestions(in.Questions)
	if err != nil {
		return nil, err
	}
	return &Survey{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Description:  in.Description,
		Questions:    questions,
		Status:       SurveyDraft,
		Settings:     in.Settings,
		IsEditable:   true,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// PrepareQuestions checks question definitions and assigns missing ids.
func PrepareQuestions(questions []Question) ([]Question, error) {
	out := make([]Question, len(questions))
	ids := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if q.ID == "" {
			q.ID = shortID()
		}
		if _, dup := ids[q.ID]; dup {
			return nil, detail(ErrInvalidQuestion, "duplicate question id: %s", q.ID)
		}
		ids[q.ID] = struct{}{}
		if strings.TrimSpace(q.Title) == "" {
			return nil, detail(ErrInvalidQuestion, "question %d has no title", i+1)
		}
		switch {
		case q.Type.IsChoice():
			if len(q.Choices) == 0 {
				return nil, detail(ErrInvalidQuestion, "question %q has no choices", q.Title)
			}
			choices := make([]Choice, len(q.Choices))
			seen := make(map[string]struct{}, len(q.Choices))
			for j, c := range q.Choices {
				if c.ID == "" {
					c.ID = shortID()
				}
				if _, dup := seen[c.ID]; dup {
					return nil, detail(ErrInvalidQuestion, "question %q repeats choice %s", q.Title, c.ID)
				}
				seen[c.ID] = struct{}{}
				choices[j] = c
			}
			q.Choices = choices
		case q.Type.IsText():
		case q.Type == Rating:
			if q.RatingScale == 0 {
				q.RatingScale = 5
			}
			if q.RatingScale != 5 && q.RatingScale != 10 {
				return nil, detail(ErrInvalidQuestion, "question %q must use a rating scale of 5 or 10", q.Title)
			}
		default:
			return nil, detail(ErrInvalidQuestion, "question %q has unknown type %q", q.Title, q.Type)
		}
		if q.ShowIf != nil {
			if _, ok := ids[q.ShowIf.QuestionID]; !ok {
				return nil, detail(ErrInvalidQuestion, "question %q depends on an unknown or later question", q.Title)
			}
		}
		out[i] = q
	}
	return out, nil
}

func (s *Survey) Question(id string) *Question {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return &s.Questions[i]
		}
	}
	return nil
}

// RefreshStatus closes an open survey whose deadline has passed.
func (s *Survey) RefreshStatus(now time.Time) bool {
	if s.Status != SurveyOpen || s.IsHidden || s.IsDeleted {
		return false
	}
	if s.Settings.CloseAt != nil && now.After(*s.Settings.CloseAt) {
		s.Status = SurveyClosed
		stamp := *s.Settings.CloseAt
		s.ClosedAt = &stamp
		return true
	}
	return false
}

func (s *Survey) CanReceiveResponse(now time.Time) bool {
	if s.Status != SurveyOpen || s.IsHidden || s.IsDeleted {
		return false
	}
	if s.Settings.ResponseLimit != nil && s.Stats.ResponseCount >= *s.Settings.ResponseLimit {
		return false
	}
	if s.Settings.CloseAt != nil && now.After(*s.Settings.CloseAt) {
		return false
	}
	return true
}

// CanEdit is false forever once the first response has been recorded.
func (s *Survey) CanEdit() bool {
	return s.IsEditable && s.Stats.FirstResponseAt == nil
}

// TimeRemaining is zero when the survey has no deadline or it has passed.
func (s *Survey) TimeRemaining(now time.Time) time.Duration {
	if s.Settings.CloseAt == nil || now.After(*s.Settings.CloseAt) {
		return 0
	}
	return s.Settings.CloseAt.Sub(now)
}

func (s *Survey) ReplaceQuestions(questions []Question, now time.Time) error {
	if !s.CanEdit() {
		return ErrSurveyLocked
	}
	prepared, err := PrepareQuestions(questions)
	if err != nil {
		return err
	}
	s.Questions = prepared
	s.UpdatedAt = now
	return nil
}

type SurveyUpdate struct {
	Title       *string
	Description *string
	Settings    *SurveySettings
}

func (s *Survey) Apply(u SurveyUpdate, now time.Time) error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return ErrTitleRequired
	}
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.Description != nil {
		s.Description = *u.Description
	}
	if u.Settings != nil {
		s.Settings = *u.Settings
	}
	s.UpdatedAt = now
	return nil
}

func (s *Survey) Publish(now time.Time) error {
	if s.Status != SurveyDraft {
		return ErrSurveyNotDraft
	}
	if len(s.Questions) == 0 {
		return ErrNoQuestions
	}
	s.Status = SurveyOpen
	stamp := now
	s.PublishedAt = &stamp
	s.UpdatedAt = now
	return nil
}

func (s *Survey) Close(now time.Time) error {
	if s.Status != SurveyOpen {
		return ErrSurveyNotOpen
	}
	s.Status = SurveyClosed
	stamp := now
	s.ClosedAt = &stamp
	s.UpdatedAt = now
	return nil
}

func (s *Survey) SetHidden(hidden bool, now time.Time) {
	s.IsHidden = hidden
	s.UpdatedAt = now
}

func (s *Survey) SoftDelete(now time.Time) {
	s.IsDeleted = true
	stamp := now
	s.DeletedAt = &stamp
	s.UpdatedAt = now
}

// RecordResponse applies the effects of a new response. live must hold
// every non-deleted response including the new one.
func (s *Survey) RecordResponse(live []*Response, now time.Time) {
	s.Stats.ResponseCount++
	stamp := now
	s.Stats.LastResponseAt = &stamp
	if s.Stats.FirstResponseAt == nil {
		first := now
		s.Stats.FirstResponseAt = &first
		s.IsEditable = false
	}
	s.recomputeRates(live)
	s.UpdatedAt = now
}

// RecomputeStats rebuilds the derived counters after a response was removed.
func (s *Survey) RecomputeStats(live []*Response, now time.Time) {
	s.Stats.ResponseCount = len(live)
	s.recomputeRates(live)
	s.UpdatedAt = now
}

func (s *Survey) recomputeRates(live []*Response) {
	complete := 0
	totalTime := 0
	for _, r := range live {
		if r.IsComplete {
			complete++
			totalTime += r.CompletionTime
		}
	}
	s.Stats.CompletionRate = Percent(complete, len(live))
	if complete == 0 {
		s.Stats.AvgCompletionTime = 0
		return
	}
	s.Stats.AvgCompletionTime = math.Round(float64(totalTime)/float64(complete)*10) / 10
}
