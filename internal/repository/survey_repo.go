package repository

import (
	"context"
	"fmt"
	"math"

	"github.com/jaam8/surbate/internal/models"
	"github.com/tarantool/go-tarantool"
	"go.uber.org/zap"
)

type SurveyRepository struct {
	db *tarantool.Connection
	l  *zap.Logger
}

func NewSurveyRepository(db *tarantool.Connection, l *zap.Logger) *SurveyRepository {
	return &SurveyRepository{
		db: db,
		l:  l,
	}
}

func (r *SurveyRepository) CreateSurvey(_ context.Context, survey *models.Survey) error {
	r.l.Debug("creating survey", zap.String("survey_id", survey.ID))
	tuple, err := surveyTuple(survey)
	if err != nil {
		return err
	}
	resp, err := r.db.Insert("surveys", tuple)
	if err != nil {
		r.l.Debug("error inserting survey", zap.Error(err))
		return fmt.Errorf("repository: database insert error: %w", err)
	}
	r.l.Debug("tarantool response",
		zap.Uint32("status_code", resp.Code),
		zap.String("error", resp.Error))
	return nil
}

func (r *SurveyRepository) GetSurvey(_ context.Context, surveyID string) (*models.Survey, error) {
	resp, err := r.db.Select("surveys", "primary", 0, 1, tarantool.IterEq, []interface{}{surveyID})
	if err != nil {
		r.l.Debug("failed to select survey", zap.Error(err))
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	if len(resp.Data) == 0 {
		r.l.Debug("survey not found", zap.String("survey_id", surveyID))
		return nil, models.ErrSurveyNotFound
	}
	survey := &models.Survey{}
	if err = decodeTuple(resp.Data[0], survey); err != nil {
		return nil, err
	}
	return survey, nil
}

func (r *SurveyRepository) SaveSurvey(_ context.Context, survey *models.Survey, expected uint64) error {
	survey.Version = expected + 1
	tuple, err := surveyTuple(survey)
	if err != nil {
		survey.Version = expected
		return err
	}
	if err = r.eval(casScript, survey, []interface{}{"surveys", expected, tuple}); err != nil {
		survey.Version = expected
		return err
	}
	return nil
}

func (r *SurveyRepository) ListSurveys(_ context.Context, status models.SurveyStatus) ([]*models.Survey, error) {
	resp, err := r.db.Select("surveys", "status", 0, listLimit, tarantool.IterEq, []interface{}{string(status)})
	if err != nil {
		r.l.Debug("failed to select surveys", zap.Error(err))
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	warnTruncated(r.l, "surveys", string(status), len(resp.Data))
	surveys := make([]*models.Survey, 0, len(resp.Data))
	for _, raw := range resp.Data {
		survey := &models.Survey{}
		if err = decodeTuple(raw, survey); err != nil {
			return nil, err
		}
		if survey.IsDeleted {
			continue
		}
		surveys = append(surveys, survey)
	}
	return surveys, nil
}

// InsertResponse stores a new response and the survey it was recorded on
// atomically. It fails with ErrDuplicateResponse if the respondent already
// has a live response, and with ErrVersionConflict if the survey moved on.
func (r *SurveyRepository) InsertResponse(_ context.Context, survey *models.Survey, expected uint64, response *models.Response) error {
	return r.writeResponse(insertResponseScript, survey, expected, response)
}

// ReplaceResponse overwrites a stored response, typically a soft delete,
// together with its survey.
func (r *SurveyRepository) ReplaceResponse(_ context.Context, survey *models.Survey, expected uint64, response *models.Response) error {
	return r.writeResponse(replaceResponseScript, survey, expected, response)
}

func (r *SurveyRepository) writeResponse(script string, survey *models.Survey, expected uint64, response *models.Response) error {
	survey.Version = expected + 1
	sTuple, err := surveyTuple(survey)
	if err != nil {
		survey.Version = expected
		return err
	}
	rTuple, err := responseTuple(response)
	if err != nil {
		survey.Version = expected
		return err
	}
	if err = r.eval(script, survey, []interface{}{expected, sTuple, rTuple}); err != nil {
		survey.Version = expected
		return err
	}
	return nil
}

func (r *SurveyRepository) eval(script string, survey *models.Survey, args []interface{}) error {
	resp, err := r.db.Eval(script, args)
	if err != nil {
		r.l.Debug("failed to eval survey script", zap.Error(err))
		return fmt.Errorf("repository: database eval error: %w", err)
	}
	status, err := evalStatus(resp)
	if err != nil {
		return err
	}
	r.l.Debug("save survey",
		zap.String("survey_id", survey.ID),
		zap.Uint64("version", survey.Version),
		zap.String("status", status))
	return statusError(status, models.ErrSurveyNotFound)
}

func (r *SurveyRepository) FindResponse(_ context.Context, surveyID, respondentID string) (*models.Response, error) {
	return r.selectResponse("respondent", surveyID, respondentID)
}

func (r *SurveyRepository) GetResponseByCode(_ context.Context, surveyID, code string) (*models.Response, error) {
	return r.selectResponse("code", surveyID, code)
}

func (r *SurveyRepository) selectResponse(index, surveyID, key string) (*models.Response, error) {
	resp, err := r.db.Select("responses", index, 0, 1, tarantool.IterEq, []interface{}{surveyID, key})
	if err != nil {
		r.l.Debug("failed to select response", zap.String("index", index), zap.Error(err))
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, models.ErrResponseNotFound
	}
	response := &models.Response{}
	if err = decodeTuple(resp.Data[0], response); err != nil {
		return nil, err
	}
	return response, nil
}

// ListResponses returns every response of a survey, deleted ones included.
func (r *SurveyRepository) ListResponses(_ context.Context, surveyID string) ([]*models.Response, error) {
	resp, err := r.db.Select("responses", "survey", 0, math.MaxUint32, tarantool.IterEq, []interface{}{surveyID})
	if err != nil {
		r.l.Debug("failed to select responses", zap.Error(err))
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	r.l.Debug("tarantool response",
		zap.Uint32("status_code", resp.Code),
		zap.Int("tuples", len(resp.Data)))
	responses := make([]*models.Response, 0, len(resp.Data))
	for _, raw := range resp.Data {
		response := &models.Response{}
		if err = decodeTuple(raw, response); err != nil {
			return nil, err
		}
		responses = append(responses, response)
	}
	return responses, nil
}
