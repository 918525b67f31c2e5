package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/jaam8/surbate/internal/auth"
	"github.com/jaam8/surbate/internal/events"
	"github.com/jaam8/surbate/internal/models"
	"go.uber.org/zap"
)

const surveySubject = "survey"

type SurveyService struct {
	base
	r       SurveyRepository
	quality models.QualityRules
}

func NewSurveyService(r SurveyRepository, opts Options, l *zap.Logger) *SurveyService {
	quality := opts.Quality
	if quality == (models.QualityRules{}) {
		quality = models.DefaultQualityRules()
	}
	return &SurveyService{
		base:    newBase(opts, l),
		r:       r,
		quality: quality,
	}
}

type CreateSurveyInput struct {
	Title       string
	Description string
	Questions   []models.Question
	Settings    models.SurveySettings
	Password    string
}

type SurveyView struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Questions     []models.Question     `json:"questions"`
	Status        models.SurveyStatus   `json:"status"`
	Settings      models.SurveySettings `json:"settings"`
	ResponseCount int                   `json:"response_count"`
	CanRespond    bool                  `json:"can_respond"`
	IsClosed      bool                  `json:"is_closed"`
	TimeRemaining string                `json:"time_remaining"`
	PublishedAt   *time.Time            `json:"published_at,omitempty"`
	// Admin-only fields.
	Stats      *models.SurveyStats `json:"stats,omitempty"`
	IsEditable *bool               `json:"is_editable,omitempty"`
	IsHidden   *bool               `json:"is_hidden,omitempty"`
}

// ResponseView omits the respondent identifier.
type ResponseView struct {
	ID             string          `json:"id"`
	ResponseCode   string          `json:"response_code"`
	Answers        []models.Answer `json:"answers"`
	StartedAt      time.Time       `json:"started_at"`
	SubmittedAt    time.Time       `json:"submitted_at"`
	CompletionTime int             `json:"completion_time"`
	IsComplete     bool            `json:"is_complete"`
	QualityScore   *int            `json:"quality_score,omitempty"`
	QualityFlags   []string        `json:"quality_flags,omitempty"`
}

func surveyView(s *models.Survey, admin bool, now time.Time) *SurveyView {
	v := &SurveyView{
		ID:            s.ID,
		Title:         s.Title,
		Description:   s.Description,
		Questions:     s.Questions,
		Status:        s.Status,
		Settings:      s.Settings,
		ResponseCount: s.Stats.ResponseCount,
		CanRespond:    s.CanReceiveResponse(now),
		IsClosed:      s.Status == models.SurveyClosed,
		TimeRemaining: remaining(now, s.TimeRemaining(now)),
		PublishedAt:   s.PublishedAt,
	}
	if admin {
		stats := s.Stats
		editable := s.CanEdit()
		hidden := s.IsHidden
		v.Stats = &stats
		v.IsEditable = &editable
		v.IsHidden = &hidden
	}
	return v
}

func responseView(r *models.Response, admin bool) *ResponseView {
	v := &ResponseView{
		ID:             r.ID,
		ResponseCode:   r.ResponseCode,
		Answers:        r.Answers,
		StartedAt:      r.StartedAt,
		SubmittedAt:    r.SubmittedAt,
		CompletionTime: r.CompletionTime,
		IsComplete:     r.IsComplete,
	}
	if admin {
		score := r.QualityScore
		v.QualityScore = &score
		v.QualityFlags = r.QualityFlags
	}
	return v
}

func (s *SurveyService) Create(ctx context.Context, in CreateSurveyInput) (*SurveyView, string, error) {
	if in.Password == "" {
		return nil, "", models.ErrPasswordRequired
	}
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, "", s.fail("create survey", err)
	}
	now := s.now()
	survey, err := models.NewSurvey(models.NewSurveyInput{
		Title:        in.Title,
		Description:  in.Description,
		Questions:    in.Questions,
		Settings:     in.Settings,
		PasswordHash: hash,
	}, now)
	if err != nil {
		return nil, "", s.fail("create survey", err)
	}
	if err = s.r.CreateSurvey(ctx, survey); err != nil {
		return nil, "", s.fail("create survey", err)
	}
	token, err := s.sessions.Create(ctx, auth.Subject(surveySubject, survey.ID))
	if err != nil {
		return nil, "", s.fail("create survey session", err)
	}
	s.l.Info("survey created",
		zap.String("survey_id", survey.ID),
		zap.Int("questions", len(survey.Questions)))
	return surveyView(survey, true, now), token, nil
}

// load returns a survey that is not deleted. Hidden and draft surveys are
// only visible to their admin.
func (s *SurveyService) load(ctx context.Context, surveyID string, admin bool) (*models.Survey, error) {
	survey, err := s.r.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if survey.IsDeleted {
		return nil, models.ErrSurveyNotFound
	}
	if !admin && (survey.IsHidden || survey.Status == models.SurveyDraft) {
		return nil, models.ErrSurveyNotFound
	}
	return survey, nil
}

func (s *SurveyService) update(ctx context.Context, op, surveyID string, admin bool, mutate func(*models.Survey, time.Time) error) (*models.Survey, error) {
	var saved *models.Survey
	err := s.retry(op, func() error {
		survey, err := s.load(ctx, surveyID, admin)
		if err != nil {
			return err
		}
		expected := survey.Version
		if err = mutate(survey, s.now()); err != nil {
			return err
		}
		if err = s.r.SaveSurvey(ctx, survey, expected); err != nil {
			return err
		}
		saved = survey
		return nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}
	return saved, nil
}

// View returns the respondent page of an open or closed survey and counts
// the visit.
func (s *SurveyService) View(ctx context.Context, surveyID string) (*SurveyView, error) {
	survey, err := s.update(ctx, "view survey", surveyID, false, func(sv *models.Survey, now time.Time) error {
		sv.RefreshStatus(now)
		sv.Stats.ViewCount++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return surveyView(survey, false, s.now()), nil
}

func (s *SurveyService) List(ctx context.Context, status models.SurveyStatus) ([]*SurveyView, error) {
	if status == models.SurveyDraft {
		return []*SurveyView{}, nil
	}
	stored := []models.SurveyStatus{status}
	if status == models.SurveyClosed {
		stored = append(stored, models.SurveyOpen)
	}
	now := s.now()
	views := make([]*SurveyView, 0)
	for _, st := range stored {
		surveys, err := s.r.ListSurveys(ctx, st)
		if err != nil {
			return nil, s.fail("list surveys", err)
		}
		for _, sv := range surveys {
			if sv.IsHidden {
				continue
			}
			expected := sv.Version
			if sv.RefreshStatus(now) {
				if err = s.r.SaveSurvey(ctx, sv, expected); err != nil {
					s.l.Debug("failed to store refreshed status", zap.String("survey_id", sv.ID), zap.Error(err))
				}
			}
			if sv.Status != status {
				continue
			}
			v := surveyView(sv, false, now)
			v.Questions = nil
			views = append(views, v)
		}
	}
	return views, nil
}

func liveResponses(all []*models.Response) []*models.Response {
	live := make([]*models.Response, 0, len(all))
	for _, r := range all {
		if !r.IsDeleted {
			live = append(live, r)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].SubmittedAt.Before(live[j].SubmittedAt) })
	return live
}

func (s *SurveyService) duplicate(ctx context.Context, surveyID, respondentID string) error {
	existing, err := s.r.FindResponse(ctx, surveyID, respondentID)
	if err != nil {
		if errors.Is(err, models.ErrResponseNotFound) {
			return models.ErrDuplicateResponse
		}
		return err
	}
	return &models.DuplicateResponseError{ResponseCode: existing.ResponseCode}
}

// Submit validates and stores one response per respondent.
func (s *SurveyService) Submit(ctx context.Context, surveyID, addr string, answers []models.Answer, startedAt time.Time) (*ResponseView, error) {
	respondentID := s.hasher.ForSurvey(surveyID, addr)
	var stored *models.Response
	err := s.retry("submit response", func() error {
		survey, err := s.load(ctx, surveyID, false)
		if err != nil {
			return err
		}
		expected := survey.Version
		now := s.now()
		if survey.RefreshStatus(now) {
			if err = s.r.SaveSurvey(ctx, survey, expected); err != nil && !errors.Is(err, models.ErrVersionConflict) {
				return err
			}
		}
		if !survey.CanReceiveResponse(now) {
			return models.ErrSurveyClosed
		}

		existing, err := s.r.FindResponse(ctx, surveyID, respondentID)
		switch {
		case err == nil:
			return &models.DuplicateResponseError{ResponseCode: existing.ResponseCode}
		case !errors.Is(err, models.ErrResponseNotFound):
			return err
		}

		response, err := models.NewResponse(survey, answers, startedAt, now, respondentID, s.quality)
		if err != nil {
			return err
		}
		all, err := s.r.ListResponses(ctx, surveyID)
		if err != nil {
			return err
		}
		survey.RecordResponse(append(liveResponses(all), response), now)

		err = s.r.InsertResponse(ctx, survey, expected, response)
		if errors.Is(err, models.ErrDuplicateResponse) {
			return s.duplicate(ctx, surveyID, respondentID)
		}
		if err != nil {
			return err
		}
		stored = response
		return nil
	})
	if err != nil {
		return nil, s.fail("submit response", err)
	}

	s.publish(ctx, events.Event{
		Type:        events.TypeResponseSubmitted,
		AggregateID: surveyID,
		ActorID:     respondentID,
		OccurredAt:  stored.SubmittedAt,
		Payload: map[string]string{
			"response_id":   stored.ID,
			"is_complete":   strconv.FormatBool(stored.IsComplete),
			"quality_score": strconv.Itoa(stored.QualityScore),
		},
	})
	s.l.Info("response submitted",
		zap.String("survey_id", surveyID),
		zap.String("response_id", stored.ID),
		zap.Int("quality_score", stored.QualityScore))
	return responseView(stored, false), nil
}

// ResponseByCode looks up a live response by its shareable code.
func (s *SurveyService) ResponseByCode(ctx context.Context, surveyID, code string) (*ResponseView, error) {
	if _, err := s.load(ctx, surveyID, false); err != nil {
		return nil, s.fail("get response", err)
	}
	r, err := s.r.GetResponseByCode(ctx, surveyID, code)
	if err != nil {
		return nil, s.fail("get response", err)
	}
	if r.IsDeleted {
		return nil, models.ErrResponseNotFound
	}
	return responseView(r, false), nil
}

func (s *SurveyService) Login(ctx context.Context, surveyID, password string) (string, error) {
	survey, err := s.load(ctx, surveyID, true)
	if err != nil {
		return "", s.fail("login", err)
	}
	token, err := s.login(ctx, auth.Subject(surveySubject, survey.ID), survey.PasswordHash, password)
	if err != nil {
		if errors.Is(err, models.ErrWrongPassword) {
			s.l.Warn("wrong survey password", zap.String("survey_id", surveyID))
		}
		return "", s.fail("login", err)
	}
	return token, nil
}

func (s *SurveyService) Authorize(ctx context.Context, surveyID, token string) error {
	if err := s.authorize(ctx, token, auth.Subject(surveySubject, surveyID)); err != nil {
		return s.fail("authorize", err)
	}
	return nil
}

func (s *SurveyService) AdminView(ctx context.Context, surveyID string) (*SurveyView, error) {
	survey, err := s.load(ctx, surveyID, true)
	if err != nil {
		return nil, s.fail("get survey", err)
	}
	return surveyView(survey, true, s.now()), nil
}

func (s *SurveyService) mutate(ctx context.Context, op, surveyID string, fn func(*models.Survey, time.Time) error) (*SurveyView, error) {
	survey, err := s.update(ctx, op, surveyID, true, fn)
	if err != nil {
		return nil, err
	}
	return surveyView(survey, true, s.now()), nil
}

func (s *SurveyService) ReplaceQuestions(ctx context.Context, surveyID string, questions []models.Question) (*SurveyView, error) {
	return s.mutate(ctx, "replace questions", surveyID, func(sv *models.Survey, now time.Time) error {
		return sv.ReplaceQuestions(questions, now)
	})
}

func (s *SurveyService) Update(ctx context.Context, surveyID string, u models.SurveyUpdate) (*SurveyView, error) {
	return s.mutate(ctx, "update survey", surveyID, func(sv *models.Survey, now time.Time) error {
		return sv.Apply(u, now)
	})
}

func (s *SurveyService) Publish(ctx context.Context, surveyID string) (*SurveyView, error) {
	return s.mutate(ctx, "publish survey", surveyID, func(sv *models.Survey, now time.Time) error {
		return sv.Publish(now)
	})
}

func (s *SurveyService) Close(ctx context.Context, surveyID string) (*SurveyView, error) {
	return s.mutate(ctx, "close survey", surveyID, func(sv *models.Survey, now time.Time) error {
		return sv.Close(now)
	})
}

func (s *SurveyService) SetHidden(ctx context.Context, surveyID string, hidden bool) (*SurveyView, error) {
	return s.mutate(ctx, "hide survey", surveyID, func(sv *models.Survey, now time.Time) error {
		sv.SetHidden(hidden, now)
		return nil
	})
}

func (s *SurveyService) Delete(ctx context.Context, surveyID string) error {
	_, err := s.mutate(ctx, "delete survey", surveyID, func(sv *models.Survey, now time.Time) error {
		sv.SoftDelete(now)
		return nil
	})
	if err != nil {
		return err
	}
	s.l.Info("survey deleted", zap.String("survey_id", surveyID))
	return nil
}

func (s *SurveyService) responses(ctx context.Context, surveyID string) (*models.Survey, []*models.Response, error) {
	survey, err := s.load(ctx, surveyID, true)
	if err != nil {
		return nil, nil, err
	}
	all, err := s.r.ListResponses(ctx, surveyID)
	if err != nil {
		return nil, nil, err
	}
	return survey, liveResponses(all), nil
}

func (s *SurveyService) ListResponses(ctx context.Context, surveyID string) ([]*ResponseView, error) {
	_, live, err := s.responses(ctx, surveyID)
	if err != nil {
		return nil, s.fail("list responses", err)
	}
	views := make([]*ResponseView, len(live))
	for i, r := range live {
		views[i] = responseView(r, true)
	}
	return views, nil
}

// DeleteResponse soft-deletes a response and rebuilds the survey counters
// from the remaining ones. The respondent may answer again afterwards.
func (s *SurveyService) DeleteResponse(ctx context.Context, surveyID, responseID, deletedBy string) error {
	err := s.retry("delete response", func() error {
		survey, live, err := s.responses(ctx, surveyID)
		if err != nil {
			return err
		}
		expected := survey.Version
		var target *models.Response
		rest := make([]*models.Response, 0, len(live))
		for _, r := range live {
			if r.ID == responseID {
				target = r
				continue
			}
			rest = append(rest, r)
		}
		if target == nil {
			return models.ErrResponseNotFound
		}
		now := s.now()
		target.SoftDelete(deletedBy, now)
		survey.RecomputeStats(rest, now)
		return s.r.ReplaceResponse(ctx, survey, expected, target)
	})
	if err != nil {
		return s.fail("delete response", err)
	}
	s.l.Info("response deleted",
		zap.String("survey_id", surveyID),
		zap.String("response_id", responseID),
		zap.String("deleted_by", deletedBy))
	return nil
}

func (s *SurveyService) Stats(ctx context.Context, surveyID string) (*SurveyStatistics, error) {
	survey, live, err := s.responses(ctx, surveyID)
	if err != nil {
		return nil, s.fail("get survey stats", err)
	}
	return SurveyStats(survey, live), nil
}
