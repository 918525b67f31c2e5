package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/jaam8/surbate/internal/models"
	"go.uber.org/zap"
)

// Memory keeps every aggregate as a JSON document in process memory. It
// honors the same version and uniqueness rules as the Tarantool store and
// backs tests and STORAGE_DRIVER=memory.
type Memory struct {
	mu        sync.Mutex
	polls     map[string][]byte
	surveys   map[string][]byte
	responses map[string][]byte
	l         *zap.Logger
}

func NewMemory(l *zap.Logger) *Memory {
	return &Memory{
		polls:     make(map[string][]byte),
		surveys:   make(map[string][]byte),
		responses: make(map[string][]byte),
		l:         l,
	}
}

func encode(v interface{}) ([]byte, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("repository: json marshal error: %w", err)
	}
	return doc, nil
}

func decode(doc []byte, out interface{}) error {
	if err := json.Unmarshal(doc, out); err != nil {
		return fmt.Errorf("repository: failed to unmarshal document: %w", err)
	}
	return nil
}

func (m *Memory) CreatePoll(_ context.Context, poll *models.Poll) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.polls[poll.ID]; ok {
		return fmt.Errorf("repository: poll %s already exists", poll.ID)
	}
	doc, err := encode(poll)
	if err != nil {
		return err
	}
	m.polls[poll.ID] = doc
	return nil
}

func (m *Memory) GetPoll(_ context.Context, pollID string) (*models.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.polls[pollID]
	if !ok {
		return nil, models.ErrPollNotFound
	}
	poll := &models.Poll{}
	return poll, decode(doc, poll)
}

func (m *Memory) SavePoll(_ context.Context, poll *models.Poll, expected uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.polls[poll.ID]
	if !ok {
		return models.ErrPollNotFound
	}
	var stored models.Poll
	if err := decode(doc, &stored); err != nil {
		return err
	}
	if stored.Version != expected {
		m.l.Debug("poll version conflict",
			zap.String("poll_id", poll.ID),
			zap.Uint64("stored", stored.Version),
			zap.Uint64("expected", expected))
		return models.ErrVersionConflict
	}
	poll.Version = expected + 1
	next, err := encode(poll)
	if err != nil {
		poll.Version = expected
		return err
	}
	m.polls[poll.ID] = next
	return nil
}

func (m *Memory) ListPolls(_ context.Context, status models.PollStatus) ([]*models.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	polls := make([]*models.Poll, 0)
	for _, doc := range m.polls {
		poll := &models.Poll{}
		if err := decode(doc, poll); err != nil {
			return nil, err
		}
		if poll.Status == status && !poll.IsDeleted {
			polls = append(polls, poll)
		}
	}
	sort.Slice(polls, func(i, j int) bool { return polls[i].CreatedAt.After(polls[j].CreatedAt) })
	return polls, nil
}

func (m *Memory) CreateSurvey(_ context.Context, survey *models.Survey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.surveys[survey.ID]; ok {
		return fmt.Errorf("repository: survey %s already exists", survey.ID)
	}
	doc, err := encode(survey)
	if err != nil {
		return err
	}
	m.surveys[survey.ID] = doc
	return nil
}

func (m *Memory) GetSurvey(_ context.Context, surveyID string) (*models.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.surveys[surveyID]
	if !ok {
		return nil, models.ErrSurveyNotFound
	}
	survey := &models.Survey{}
	return survey, decode(doc, survey)
}

func (m *Memory) SaveSurvey(_ context.Context, survey *models.Survey, expected uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := m.checkSurvey(survey, expected)
	if err != nil {
		return err
	}
	m.surveys[survey.ID] = next
	return nil
}

// checkSurvey verifies the stored version and returns the encoded next
// revision. The caller holds mu.
func (m *Memory) checkSurvey(survey *models.Survey, expected uint64) ([]byte, error) {
	doc, ok := m.surveys[survey.ID]
	if !ok {
		return nil, models.ErrSurveyNotFound
	}
	var stored models.Survey
	if err := decode(doc, &stored); err != nil {
		return nil, err
	}
	if stored.Version != expected {
		m.l.Debug("survey version conflict",
			zap.String("survey_id", survey.ID),
			zap.Uint64("stored", stored.Version),
			zap.Uint64("expected", expected))
		return nil, models.ErrVersionConflict
	}
	survey.Version = expected + 1
	next, err := encode(survey)
	if err != nil {
		survey.Version = expected
		return nil, err
	}
	return next, nil
}

func (m *Memory) ListSurveys(_ context.Context, status models.SurveyStatus) ([]*models.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	surveys := make([]*models.Survey, 0)
	for _, doc := range m.surveys {
		survey := &models.Survey{}
		if err := decode(doc, survey); err != nil {
			return nil, err
		}
		if survey.Status == status && !survey.IsDeleted {
			surveys = append(surveys, survey)
		}
	}
	sort.Slice(surveys, func(i, j int) bool { return surveys[i].CreatedAt.After(surveys[j].CreatedAt) })
	return surveys, nil
}

func (m *Memory) InsertResponse(_ context.Context, survey *models.Survey, expected uint64, response *models.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.surveys[survey.ID]; !ok {
		return models.ErrSurveyNotFound
	}
	key := DedupeKey(response)
	for _, doc := range m.responses {
		var other models.Response
		if err := decode(doc, &other); err != nil {
			return err
		}
		if other.SurveyID == response.SurveyID && DedupeKey(&other) == key {
			return models.ErrDuplicateResponse
		}
	}
	next, err := m.checkSurvey(survey, expected)
	if err != nil {
		return err
	}
	doc, err := encode(response)
	if err != nil {
		survey.Version = expected
		return err
	}
	m.responses[response.ID] = doc
	m.surveys[survey.ID] = next
	return nil
}

func (m *Memory) ReplaceResponse(_ context.Context, survey *models.Survey, expected uint64, response *models.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := m.checkSurvey(survey, expected)
	if err != nil {
		return err
	}
	doc, err := encode(response)
	if err != nil {
		survey.Version = expected
		return err
	}
	m.responses[response.ID] = doc
	m.surveys[survey.ID] = next
	return nil
}

func (m *Memory) FindResponse(_ context.Context, surveyID, respondentID string) (*models.Response, error) {
	return m.findResponse(func(r *models.Response) bool {
		return r.SurveyID == surveyID && DedupeKey(r) == respondentID
	})
}

func (m *Memory) GetResponseByCode(_ context.Context, surveyID, code string) (*models.Response, error) {
	return m.findResponse(func(r *models.Response) bool {
		return r.SurveyID == surveyID && r.ResponseCode == code
	})
}

func (m *Memory) findResponse(match func(*models.Response) bool) (*models.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range m.responses {
		response := &models.Response{}
		if err := decode(doc, response); err != nil {
			return nil, err
		}
		if match(response) {
			return response, nil
		}
	}
	return nil, models.ErrResponseNotFound
}

func (m *Memory) ListResponses(_ context.Context, surveyID string) ([]*models.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	responses := make([]*models.Response, 0)
	for _, doc := range m.responses {
		response := &models.Response{}
		if err := decode(doc, response); err != nil {
			return nil, err
		}
		if response.SurveyID == surveyID {
			responses = append(responses, response)
		}
	}
	sort.Slice(responses, func(i, j int) bool { return responses[i].SubmittedAt.Before(responses[j].SubmittedAt) })
	return responses, nil
}
