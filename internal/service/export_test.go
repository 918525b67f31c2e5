package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/jaam8/surbate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	raw := buf.String()
	require.True(t, strings.HasPrefix(raw, utf8BOM))
	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(raw, utf8BOM))).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestExportResponses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	survey := openSurvey(t, f, models.SurveySettings{})

	f.clock.advance(time.Minute)
	first, err := f.surveys.Submit(ctx, survey.ID, "10.0.0.1", fullAnswers("red", 4, "short, with comma"), start)
	require.NoError(t, err)
	_, err = f.surveys.Submit(ctx, survey.ID, "10.0.0.2", []models.Answer{{QuestionID: "color", ChoiceID: "blue"}}, start)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.surveys.ExportResponses(ctx, survey.ID, &buf))
	rows := readCSV(t, &buf)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{
		"response_code", "submitted_at", "completion_time", "is_complete", "quality_score",
		"Favourite colour", "Tools", "Score", "Notes",
	}, rows[0])
	assert.Equal(t, []string{
		first.ResponseCode, "2026-03-10 12:01:00", "60", "true", "100",
		"Red", "Go; Git", "4", "short, with comma",
	}, rows[1])
	assert.Equal(t, []string{"Blue", "", "", ""}, rows[2][5:])
	assert.Equal(t, "false", rows[2][3])
	assert.NotContains(t, buf.String(), "10.0.0.1")
}

func TestExportResponsesSkipsDeleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	survey := openSurvey(t, f, models.SurveySettings{})

	got, err := f.surveys.Submit(ctx, survey.ID, "10.0.0.1", fullAnswers("red", 4, "gone soon"), start)
	require.NoError(t, err)
	require.NoError(t, f.surveys.DeleteResponse(ctx, survey.ID, got.ID, "admin"))

	var buf bytes.Buffer
	require.NoError(t, f.surveys.ExportResponses(ctx, survey.ID, &buf))
	assert.Len(t, readCSV(t, &buf), 1)

	assert.ErrorIs(t, f.surveys.ExportResponses(ctx, "missing", &buf), models.ErrSurveyNotFound)
}

func TestExportVotes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	in := pollInput()
	in.Settings.AllowAnonymousVote = true
	poll, _, err := f.polls.Create(ctx, in)
	require.NoError(t, err)

	_, err = f.polls.CastVote(ctx, poll.ID, "10.0.0.1", []string{poll.Options[0].ID}, models.VoterInfo{Nickname: "ann"})
	require.NoError(t, err)
	_, err = f.polls.CastVote(ctx, poll.ID, "10.0.0.2", []string{poll.Options[2].ID}, models.VoterInfo{Nickname: "bob", IsAnonymous: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.polls.ExportVotes(ctx, poll.ID, &buf))
	rows := readCSV(t, &buf)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"option_id", "option", "nickname", "is_anonymous", "voted_at"}, rows[0])
	assert.Equal(t, []string{poll.Options[0].ID, "pizza", "ann", "false", "2026-03-10 12:00:00"}, rows[1])
	assert.Equal(t, []string{poll.Options[2].ID, "soup", "", "true", "2026-03-10 12:00:00"}, rows[2])
	assert.NotContains(t, buf.String(), "bob")
}

func TestExportName(t *testing.T) {
	assert.Equal(t, "survey-abc-20260310.csv", ExportName("survey", "abc", start))
}
