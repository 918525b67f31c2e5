package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pollNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func activePoll(t *testing.T, settings PollSettings, labels ...string) *Poll {
	t.Helper()
	if len(labels) == 0 {
		labels = []string{"A", "B"}
	}
	p, err := NewPoll(NewPollInput{
		Title:        "lunch",
		Options:      labels,
		StartAt:      pollNow.Add(-time.Hour),
		EndAt:        pollNow.Add(time.Hour),
		Settings:     settings,
		PasswordHash: "hash",
	}, pollNow)
	require.NoError(t, err)
	for i := range p.Options {
		p.Options[i].ID = string(rune('a' + i))
	}
	return p
}

func TestNewPollValidation(t *testing.T) {
	base := NewPollInput{
		Title:        "t",
		Options:      []string{"x", "y"},
		StartAt:      pollNow,
		EndAt:        pollNow.Add(time.Hour),
		PasswordHash: "h",
	}
	tests := []struct {
		name   string
		mutate func(*NewPollInput)
		want   error
	}{
		{"no title", func(in *NewPollInput) { in.Title = "  " }, ErrTitleRequired},
		{"one option", func(in *NewPollInput) { in.Options = []string{"x"} }, ErrNotEnoughOptions},
		{"empty option", func(in *NewPollInput) { in.Options = []string{"x", " "} }, ErrOptionIsEmpty},
		{"bad window", func(in *NewPollInput) { in.EndAt = in.StartAt }, ErrInvalidWindow},
		{"no password", func(in *NewPollInput) { in.PasswordHash = "" }, ErrPasswordRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := NewPoll(in, pollNow)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}

	p, err := NewPoll(base, pollNow)
	require.NoError(t, err)
	assert.Equal(t, PollActive, p.Status)
	assert.Equal(t, DefaultMaxVotesPerIP, p.Settings.MaxVotesPerIP)
	assert.NotEqual(t, p.Options[0].ID, p.Options[1].ID)
}

func TestDerivePollStatus(t *testing.T) {
	start := pollNow
	end := pollNow.Add(time.Hour)
	tests := []struct {
		name    string
		now     time.Time
		hidden  bool
		deleted bool
		stored  PollStatus
		want    PollStatus
	}{
		{"before start", start.Add(-time.Second), false, false, PollActive, PollScheduled},
		{"at start", start, false, false, PollScheduled, PollActive},
		{"at end", end, false, false, PollScheduled, PollActive},
		{"after end", end.Add(time.Second), false, false, PollActive, PollEnded},
		{"hidden keeps stored", end.Add(time.Second), true, false, PollActive, PollActive},
		{"deleted keeps stored", start.Add(-time.Second), false, true, PollEnded, PollEnded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DerivePollStatus(tt.now, start, end, tt.hidden, tt.deleted, tt.stored)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, DerivePollStatus(tt.now, start, end, tt.hidden, tt.deleted, got))
		})
	}

	assert.Equal(t, PollActive, DerivePollStatus(start, start, start, false, false, PollScheduled))
}

func TestCastVoteSingleChoice(t *testing.T) {
	p := activePoll(t, PollSettings{})

	require.NoError(t, p.CastVote([]string{"a"}, "x", VoterInfo{Nickname: "bob"}, pollNow))

	assert.Equal(t, 1, p.Options[0].VoteCount)
	assert.Equal(t, 0, p.Options[1].VoteCount)
	assert.Equal(t, 1, p.Stats.TotalVotes)
	assert.Equal(t, 100, p.Options[0].Percentage)
	assert.Equal(t, 0, p.Options[1].Percentage)
	assert.Equal(t, "bob", p.Options[0].Votes[0].Nickname)

	err := p.CastVote([]string{"b"}, "x", VoterInfo{}, pollNow)
	assert.ErrorIs(t, err, ErrVoteLimitReached)
	assert.Equal(t, KindIneligible, KindOf(err))
	assert.Equal(t, 1, p.Stats.TotalVotes)
}

func TestCastVoteMultipleChoice(t *testing.T) {
	p := activePoll(t, PollSettings{AllowMultipleChoice: true}, "A", "B", "C")

	require.NoError(t, p.CastVote([]string{"a", "b"}, "y", VoterInfo{}, pollNow))

	assert.Equal(t, 2, p.Stats.TotalVotes)
	assert.Equal(t, 1, p.Stats.UniqueVoters)
	assert.Len(t, p.Options[0].Votes, 1)
	assert.Len(t, p.Options[1].Votes, 1)
	assert.Empty(t, p.Options[2].Votes)
	assert.Equal(t, 50, p.Options[0].Percentage)
}

func TestCastVoteRejections(t *testing.T) {
	tests := []struct {
		name     string
		settings PollSettings
		options  []string
		info     VoterInfo
		want     error
	}{
		{"nothing selected", PollSettings{}, nil, VoterInfo{}, ErrNoOptionSelected},
		{"single choice only", PollSettings{}, []string{"a", "b"}, VoterInfo{}, ErrSingleChoiceOnly},
		{"unknown option", PollSettings{}, []string{"zz"}, VoterInfo{}, ErrInvalidOption},
		{"duplicate option", PollSettings{AllowMultipleChoice: true}, []string{"a", "a"}, VoterInfo{}, ErrInvalidOption},
		{"anonymous disabled", PollSettings{}, []string{"a"}, VoterInfo{IsAnonymous: true}, ErrAnonymousForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := activePoll(t, tt.settings)
			err := p.CastVote(tt.options, "v", tt.info, pollNow)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, p.Stats.TotalVotes)
			assert.Empty(t, p.Voters)
		})
	}
}

func TestCastVoteOutsideWindow(t *testing.T) {
	p := activePoll(t, PollSettings{})

	err := p.CastVote([]string{"a"}, "v", VoterInfo{}, pollNow.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrPollNotActive)
	assert.Equal(t, PollEnded, p.Status)

	p.SetHidden(true, pollNow)
	assert.False(t, p.CanVote("v", pollNow))
}

func TestVoteLimitProperty(t *testing.T) {
	for limit := 1; limit <= 4; limit++ {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			p := activePoll(t, PollSettings{MaxVotesPerIP: limit})
			for i := 0; i < limit; i++ {
				require.True(t, p.CanVote("v", pollNow))
				require.NoError(t, p.CastVote([]string{"a"}, "v", VoterInfo{}, pollNow))
			}
			assert.False(t, p.CanVote("v", pollNow))
			assert.True(t, p.CanVote("w", pollNow))
		})
	}
}

func TestTallyInvariant(t *testing.T) {
	p := activePoll(t, PollSettings{}, "A", "B", "C")
	picks := []string{"a", "b", "a", "c", "a", "b", "a"}
	for i, id := range picks {
		require.NoError(t, p.CastVote([]string{id}, fmt.Sprintf("voter-%d", i), VoterInfo{}, pollNow))
	}

	sum := 0
	for _, o := range p.Options {
		sum += o.VoteCount
		assert.Equal(t, Percent(o.VoteCount, p.Stats.TotalVotes), o.Percentage)
	}
	assert.Equal(t, p.Stats.TotalVotes, sum)
	assert.Equal(t, len(picks), p.Stats.UniqueVoters)
	assert.Equal(t, 57, p.Options[0].Percentage)
}

func TestAnonymousVoteHidesNickname(t *testing.T) {
	p := activePoll(t, PollSettings{AllowAnonymousVote: true})
	require.NoError(t, p.CastVote([]string{"b"}, "v", VoterInfo{Nickname: "eve", IsAnonymous: true}, pollNow))
	assert.Empty(t, p.Options[1].Votes[0].Nickname)
	assert.True(t, p.Options[1].Votes[0].IsAnonymous)
}

func TestAddOpinion(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		p := activePoll(t, PollSettings{})
		_, err := p.AddOpinion(OpinionInput{Content: "hi"}, "v", pollNow)
		assert.ErrorIs(t, err, ErrOpinionsDisabled)
	})

	t.Run("not started", func(t *testing.T) {
		p := activePoll(t, PollSettings{AllowOpinions: true})
		_, err := p.AddOpinion(OpinionInput{Content: "hi"}, "v", pollNow.Add(-2*time.Hour))
		assert.ErrorIs(t, err, ErrPollNotStarted)
	})

	t.Run("ended poll still accepts opinions", func(t *testing.T) {
		p := activePoll(t, PollSettings{AllowOpinions: true})
		op, err := p.AddOpinion(OpinionInput{Nickname: "ann", Content: " good ", OptionID: "a"}, "v", pollNow.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "good", op.Content)
		assert.Equal(t, 1, p.Stats.OpinionCount)
	})

	t.Run("unknown option", func(t *testing.T) {
		p := activePoll(t, PollSettings{AllowOpinions: true})
		_, err := p.AddOpinion(OpinionInput{Content: "hi", OptionID: "nope"}, "v", pollNow)
		assert.ErrorIs(t, err, ErrInvalidOption)
	})

	t.Run("delete recounts", func(t *testing.T) {
		p := activePoll(t, PollSettings{AllowOpinions: true})
		first, err := p.AddOpinion(OpinionInput{Content: "one"}, "v", pollNow)
		require.NoError(t, err)
		id := first.ID
		_, err = p.AddOpinion(OpinionInput{Content: "two"}, "w", pollNow)
		require.NoError(t, err)

		require.NoError(t, p.DeleteOpinion(id, pollNow))
		assert.Equal(t, 1, p.Stats.OpinionCount)
		assert.Len(t, p.VisibleOpinions(), 1)
		assert.ErrorIs(t, p.DeleteOpinion(id, pollNow), ErrOpinionNotFound)
	})
}

func TestResultsVisibility(t *testing.T) {
	p := activePoll(t, PollSettings{})
	require.NoError(t, p.CastVote([]string{"a"}, "v", VoterInfo{}, pollNow))

	assert.Nil(t, p.Results(false, pollNow))

	forced := p.Results(true, pollNow)
	require.NotNil(t, forced)
	assert.Equal(t, 1, forced.TotalVotes)
	assert.Equal(t, 100, forced.Options[0].Percentage)

	assert.NotNil(t, p.Results(false, pollNow.Add(2*time.Hour)))

	early := activePoll(t, PollSettings{ShowResultsBeforeEnd: true})
	assert.NotNil(t, early.Results(false, pollNow))
}

func TestEndPoll(t *testing.T) {
	p := activePoll(t, PollSettings{})
	require.NoError(t, p.End(pollNow))
	assert.Equal(t, PollEnded, p.Status)
	assert.ErrorIs(t, p.CastVote([]string{"a"}, "v", VoterInfo{}, pollNow), ErrPollNotActive)
	assert.ErrorIs(t, p.End(pollNow), ErrPollAlreadyEnded)

	scheduled := activePoll(t, PollSettings{})
	assert.ErrorIs(t, scheduled.End(pollNow.Add(-2*time.Hour)), ErrPollNotStarted)
}

func TestApplyUpdate(t *testing.T) {
	p := activePoll(t, PollSettings{})
	title := ""
	assert.ErrorIs(t, p.Apply(PollUpdate{Title: &title}, pollNow), ErrTitleRequired)

	early := pollNow.Add(-2 * time.Hour)
	assert.ErrorIs(t, p.Apply(PollUpdate{EndAt: &early}, pollNow), ErrInvalidWindow)

	past := pollNow.Add(-time.Minute)
	require.NoError(t, p.Apply(PollUpdate{EndAt: &past, Settings: &PollSettings{}}, pollNow))
	assert.Equal(t, PollEnded, p.Status)
	assert.Equal(t, DefaultMaxVotesPerIP, p.Settings.MaxVotesPerIP)
}

func TestDetailedErrorsKeepSentinel(t *testing.T) {
	err := detail(ErrInvalidOption, "invalid option: %s", "q")
	assert.True(t, errors.Is(err, ErrInvalidOption))
	assert.Equal(t, "invalid option: q", Message(err))
	assert.Equal(t, KindUnexpected, KindOf(errors.New("boom")))
	assert.Equal(t, "something went wrong", Message(errors.New("boom")))

	dup := fmt.Errorf("wrapped: %w", &DuplicateResponseError{ResponseCode: "ABC"})
	assert.ErrorIs(t, dup, ErrDuplicateResponse)
	assert.Equal(t, KindConflict, KindOf(dup))
}
