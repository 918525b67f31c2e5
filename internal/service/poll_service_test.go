package service

import (
	"context"
	"testing"
	"time"

	"github.com/jaam8/surbate/internal/events"
	"github.com/jaam8/surbate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pollInput() CreatePollInput {
	return CreatePollInput{
		Title:    "lunch",
		Options:  []string{"pizza", "sushi", "soup"},
		StartAt:  start.Add(-time.Minute),
		EndAt:    start.Add(24 * time.Hour),
		Password: "secret",
	}
}

func TestCreatePoll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.polls.Create(ctx, CreatePollInput{Title: "x", Options: []string{"a", "b"}, EndAt: start.Add(time.Hour)})
	assert.ErrorIs(t, err, models.ErrPasswordRequired)

	in := pollInput()
	in.Options = []string{"only"}
	_, _, err = f.polls.Create(ctx, in)
	assert.ErrorIs(t, err, models.ErrNotEnoughOptions)

	poll, token, err := f.polls.Create(ctx, pollInput())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, models.PollActive, poll.Status)
	assert.NotNil(t, poll.Results)
	assert.Equal(t, []string{poll.ID}, f.notifier.created)

	require.NoError(t, f.polls.Authorize(ctx, poll.ID, token))
	assert.ErrorIs(t, f.polls.Authorize(ctx, "other", token), models.ErrUnauthorized)
	assert.ErrorIs(t, f.polls.Authorize(ctx, poll.ID, ""), models.ErrUnauthorized)

	stored, err := f.repo.GetPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret", stored.PasswordHash)
}

func TestCastVoteOncePerAddress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	poll, _, err := f.polls.Create(ctx, pollInput())
	require.NoError(t, err)

	ok, err := f.polls.CanVote(ctx, poll.ID, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)

	view, err := f.polls.CastVote(ctx, poll.ID, "10.0.0.1", []string{poll.Options[1].ID}, models.VoterInfo{Nickname: "ann"})
	require.NoError(t, err)
	require.NotNil(t, view.CanVote)
	assert.False(t, *view.CanVote)
	assert.Nil(t, view.Results, "results stay private until the poll ends")
	assert.Equal(t, 1, view.Stats.TotalVotes)

	_, err = f.polls.CastVote(ctx, poll.ID, "10.0.0.1", []string{poll.Options[0].ID}, models.VoterInfo{})
	assert.ErrorIs(t, err, models.ErrVoteLimitReached)

	_, err = f.polls.CastVote(ctx, poll.ID, "10.0.0.2", []string{poll.Options[0].ID, poll.Options[1].ID}, models.VoterInfo{})
	assert.ErrorIs(t, err, models.ErrSingleChoiceOnly)

	recorded := f.events.Events()
	require.Len(t, recorded, 1)
	assert.Equal(t, events.TypeVoteCast, recorded[0].Type)
	assert.Equal(t, poll.ID, recorded[0].AggregateID)
	assert.NotEqual(t, "10.0.0.1", recorded[0].ActorID)

	stored, err := f.repo.GetPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Stats.UniqueVoters)
	assert.Equal(t, 100, stored.Options[1].Percentage)
}

func TestViewCountsVisits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	poll, _, err := f.polls.Create(ctx, pollInput())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.polls.View(ctx, poll.ID, "10.0.0.1")
		require.NoError(t, err)
	}
	view, err := f.polls.View(ctx, poll.ID, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 4, view.Stats.ViewCount)
	require.NotNil(t, view.CanVote)
	assert.True(t, *view.CanVote)
	assert.Equal(t, "1 day left", view.TimeRemaining)

	_, err = f.polls.View(ctx, "missing", "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrPollNotFound)
}

func TestHiddenAndDeletedPolls(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	poll, _, err := f.polls.Create(ctx, pollInput())
	require.NoError(t, err)

	_, err = f.polls.SetHidden(ctx, poll.ID, true)
	require.NoError(t, err)

	_, err = f.polls.View(ctx, poll.ID, "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrPollNotFound)
	_, err = f.polls.CastVote(ctx, poll.ID, "10.0.0.1", []string{poll.Options[0].ID}, models.VoterInfo{})
	assert.ErrorIs(t, err, models.ErrPollNotFound)
	active, err := f.polls.List(ctx, models.PollActive)
	require.NoError(t, err)
	assert.Empty(t, active)

	admin, err := f.polls.AdminView(ctx, poll.ID)
	require.NoError(t, err)
	assert.True(t, admin.IsHidden)

	require.NoError(t, f.polls.Delete(ctx, poll.ID))
	_, err = f.polls.AdminView(ctx, poll.ID)
	assert.ErrorIs(t, err, models.ErrPollNotFound)
}

func TestListRefreshesStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	in := pollInput()
	in.StartAt = start.Add(time.Hour)
	in.EndAt = start.Add(2 * time.Hour)
	poll, _, err := f.polls.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, models.PollScheduled, poll.Status)

	scheduled, err := f.polls.List(ctx, models.PollScheduled)
	require.NoError(t, err)
	assert.Len(t, scheduled, 1)

	f.clock.advance(90 * time.Minute)
	active, err := f.polls.List(ctx, models.PollActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, models.PollActive, active[0].Status)
	assert.Nil(t, active[0].Opinions)

	stored, err := f.repo.GetPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PollActive, stored.Status)

	f.clock.advance(time.Hour)
	ended, err := f.polls.List(ctx, models.PollEnded)
	require.NoError(t, err)
	require.Len(t, ended, 1)
	assert.NotNil(t, ended[0].Results)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	poll, _, err := f.polls.Create(ctx, pollInput())
	require.NoError(t, err)

	_, err = f.polls.Login(ctx, poll.ID, "wrong")
	assert.ErrorIs(t, err, models.ErrWrongPassword)
	_, err = f.polls.Login(ctx, poll.ID, "")
	assert.ErrorIs(t, err, models.ErrWrongPassword)

	token, err := f.polls.Login(ctx, poll.ID, "secret")
	require.NoError(t, err)
	require.NoError(t, f.polls.Authorize(ctx, poll.ID, token))

	f.clock.advance(2 * time.Hour)
	assert.ErrorIs(t, f.polls.Authorize(ctx, poll.ID, token), models.ErrUnauthorized)

	token, err = f.polls.Login(ctx, poll.ID, "secret")
	require.NoError(t, err)
	require.NoError(t, f.polls.Logout(ctx, token))
	assert.ErrorIs(t, f.polls.Authorize(ctx, poll.ID, token), models.ErrUnauthorized)
}

func TestEndPoll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	poll, _, err := f.polls.Create(ctx, pollInput())
	require.NoError(t, err)
	_, err = f.polls.CastVote(ctx, poll.ID, "10.0.0.1", []string{poll.Options[0].ID}, models.VoterInfo{})
	require.NoError(t, err)

	results, err := f.polls.Results(ctx, poll.ID)
	require.NoError(t, err)
	assert.Nil(t, results)

	ended, err := f.polls.End(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PollEnded, ended.Status)
	assert.False(t, ended.IsActive)
	require.Len(t, f.notifier.ended, 1)
	assert.Equal(t, 1, f.notifier.ended[0].TotalVotes)

	results, err = f.polls.Results(ctx, poll.ID)
	require.NoError(t, err)
	require.NotNil(t, results)
	assert.Equal(t, 100, results.Options[0].Percentage)

	_, err = f.polls.End(ctx, poll.ID)
	assert.ErrorIs(t, err, models.ErrPollAlreadyEnded)
	_, err = f.polls.CastVote(ctx, poll.ID, "10.0.0.2", []string{poll.Options[0].ID}, models.VoterInfo{})
	assert.ErrorIs(t, err, models.ErrPollNotActive)
}

func TestOpinions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	in := pollInput()
	in.Settings.AllowOpinions = true
	poll, _, err := f.polls.Create(ctx, in)
	require.NoError(t, err)

	op, err := f.polls.AddOpinion(ctx, poll.ID, "10.0.0.1", models.OpinionInput{Nickname: "ann", Content: "soup is underrated"})
	require.NoError(t, err)
	assert.Equal(t, "ann", op.Nickname)

	view, err := f.polls.AdminView(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, view.Opinions, 1)
	assert.Equal(t, 1, view.Stats.OpinionCount)

	require.NoError(t, f.polls.DeleteOpinion(ctx, poll.ID, op.ID))
	assert.ErrorIs(t, f.polls.DeleteOpinion(ctx, poll.ID, "nope"), models.ErrOpinionNotFound)

	view, err = f.polls.AdminView(ctx, poll.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Opinions)
	assert.Equal(t, 0, view.Stats.OpinionCount)

	recorded := f.events.Events()
	require.Len(t, recorded, 1)
	assert.Equal(t, events.TypeOpinionAdded, recorded[0].Type)
}

func TestUpdatePoll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	poll, _, err := f.polls.Create(ctx, pollInput())
	require.NoError(t, err)

	title := "dinner"
	view, err := f.polls.Update(ctx, poll.ID, models.PollUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "dinner", view.Title)

	past := start.Add(-time.Hour)
	_, err = f.polls.Update(ctx, poll.ID, models.PollUpdate{EndAt: &past})
	assert.ErrorIs(t, err, models.ErrInvalidWindow)
}

func TestPollStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	in := pollInput()
	in.Settings.AllowAnonymousVote = true
	in.Settings.AllowMultipleChoice = true
	poll, _, err := f.polls.Create(ctx, in)
	require.NoError(t, err)

	_, err = f.polls.CastVote(ctx, poll.ID, "10.0.0.1", []string{poll.Options[0].ID, poll.Options[2].ID}, models.VoterInfo{Nickname: "ann"})
	require.NoError(t, err)
	f.clock.advance(2 * time.Hour)
	_, err = f.polls.CastVote(ctx, poll.ID, "10.0.0.2", []string{poll.Options[0].ID}, models.VoterInfo{IsAnonymous: true})
	require.NoError(t, err)

	st, err := f.polls.Stats(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalVotes)
	assert.Equal(t, 2, st.UniqueVoters)
	assert.Equal(t, 1, st.AnonymousVotes)
	assert.Equal(t, 67, st.Options[0].Percentage)
	assert.Equal(t, 2, st.Votes.ByHour[12])
	assert.Equal(t, 1, st.Votes.ByHour[14])
	assert.Equal(t, []DayCount{{Date: "2026-03-10", Count: 3}}, st.Votes.ByDay)
}
