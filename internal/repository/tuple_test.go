package repository

import (
	"testing"

	"github.com/jaam8/surbate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarantool/go-tarantool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPollTupleRoundTrip(t *testing.T) {
	poll := newPoll(t)
	poll.Version = 3

	tuple, err := pollTuple(poll)
	require.NoError(t, err)
	require.Len(t, tuple, docField+1)
	assert.Equal(t, poll.ID, tuple[0])
	assert.Equal(t, uint64(3), tuple[1])
	assert.Equal(t, string(poll.Status), tuple[2])
	assert.Equal(t, false, tuple[3])

	decoded := &models.Poll{}
	require.NoError(t, decodeTuple(tuple, decoded))
	assert.Equal(t, poll.ID, decoded.ID)
	assert.Equal(t, poll.Version, decoded.Version)
	assert.Equal(t, poll.Title, decoded.Title)
	assert.Len(t, decoded.Options, len(poll.Options))
}

func TestSurveyTupleRoundTrip(t *testing.T) {
	survey, err := models.NewSurvey(models.NewSurveyInput{
		Title:        "feedback",
		PasswordHash: "h",
		Questions:    []models.Question{{ID: "q1", Type: models.ShortText, Title: "name"}},
	}, now)
	require.NoError(t, err)
	survey.Version = 7

	tuple, err := surveyTuple(survey)
	require.NoError(t, err)
	assert.Equal(t, survey.ID, tuple[0])
	assert.Equal(t, uint64(7), tuple[1])
	assert.Equal(t, string(survey.Status), tuple[2])

	decoded := &models.Survey{}
	require.NoError(t, decodeTuple(tuple, decoded))
	assert.Equal(t, survey.Title, decoded.Title)
	assert.Equal(t, survey.Version, decoded.Version)
	require.Len(t, decoded.Questions, 1)
	assert.Equal(t, "q1", decoded.Questions[0].ID)
}

func TestResponseTupleRoundTrip(t *testing.T) {
	response := &models.Response{
		ID:           "r1",
		SurveyID:     "s1",
		RespondentID: "abc",
		ResponseCode: "K7QX2MPA",
		Answers:      []models.Answer{{QuestionID: "q1", QuestionType: models.ShortText, Text: "hello"}},
	}

	tuple, err := responseTuple(response)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"r1", "s1", "abc", "K7QX2MPA"}, tuple[:docField])

	decoded := &models.Response{}
	require.NoError(t, decodeTuple(tuple, decoded))
	assert.Equal(t, response.RespondentID, decoded.RespondentID)
	assert.Equal(t, response.Answers, decoded.Answers)

	response.IsDeleted = true
	tuple, err = responseTuple(response)
	require.NoError(t, err)
	assert.Equal(t, "deleted:r1", tuple[2])
}

func TestDecodeTupleRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
	}{
		{name: "not a tuple", raw: "poll"},
		{name: "nil", raw: nil},
		{name: "short", raw: []interface{}{"id", uint64(1)}},
		{name: "document not a string", raw: []interface{}{"id", uint64(1), "active", false, 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, decodeTuple(tt.raw, &models.Poll{}), errMalformedTuple)
		})
	}

	err := decodeTuple([]interface{}{"id", uint64(1), "active", false, "{not json"}, &models.Poll{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, errMalformedTuple)
}

func TestEvalStatus(t *testing.T) {
	tests := []struct {
		name    string
		resp    *tarantool.Response
		want    string
		wantErr bool
	}{
		{name: "nil response", resp: nil, wantErr: true},
		{name: "empty data", resp: &tarantool.Response{}, wantErr: true},
		{name: "not a string", resp: &tarantool.Response{Data: []interface{}{1}}, wantErr: true},
		{name: "ok", resp: &tarantool.Response{Data: []interface{}{statusOK}}, want: statusOK},
		{name: "conflict", resp: &tarantool.Response{Data: []interface{}{statusConflict}}, want: statusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evalStatus(tt.resp)
			if tt.wantErr {
				assert.ErrorIs(t, err, errMalformedTuple)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		status string
		want   error
	}{
		{status: statusOK, want: nil},
		{status: statusConflict, want: models.ErrVersionConflict},
		{status: statusDuplicate, want: models.ErrDuplicateResponse},
		{status: statusMissing, want: models.ErrSurveyNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			err := statusError(tt.status, models.ErrSurveyNotFound)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.ErrorIs(t, statusError(statusMissing, models.ErrPollNotFound), models.ErrPollNotFound)

	err := statusError("exploded", models.ErrPollNotFound)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exploded")
	assert.Equal(t, models.KindUnexpected, models.KindOf(err))
}

func TestWarnTruncated(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	l := zap.New(core)

	warnTruncated(l, "polls", "active", int(listLimit)-1)
	assert.Zero(t, logs.Len())

	warnTruncated(l, "surveys", "open", int(listLimit))
	entries := logs.TakeAll()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "surveys", fields["space"])
	assert.Equal(t, "open", fields["status"])
	assert.Equal(t, listLimit, fields["limit"])
}
