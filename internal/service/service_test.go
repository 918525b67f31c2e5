package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jaam8/surbate/internal/auth"
	"github.com/jaam8/surbate/internal/events/eventstest"
	"github.com/jaam8/surbate/internal/models"
	"github.com/jaam8/surbate/internal/repository"
	"github.com/jaam8/surbate/pkg/pseudonym"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var start = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []string
	ended   []*models.PollResults
}

func (n *recordingNotifier) PollCreated(_ context.Context, poll *models.Poll) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, poll.ID)
	return nil
}

func (n *recordingNotifier) PollEnded(_ context.Context, _ *models.Poll, results *models.PollResults) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, results)
	return nil
}

type fixture struct {
	clock    *clock
	repo     *repository.Memory
	events   *eventstest.Recorder
	notifier *recordingNotifier
	polls    *PollService
	surveys  *SurveyService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:    &clock{t: start},
		repo:     repository.NewMemory(zap.NewNop()),
		events:   &eventstest.Recorder{},
		notifier: &recordingNotifier{},
	}
	opts := f.options()
	f.polls = NewPollService(f.repo, opts, zap.NewNop())
	f.surveys = NewSurveyService(f.repo, opts, zap.NewNop())
	return f
}

func (f *fixture) options() Options {
	return Options{
		Hasher:    pseudonym.New("test-salt"),
		Passwords: auth.NewPasswords(bcrypt.MinCost),
		Sessions:  auth.NewMemorySessions(time.Hour, f.clock.now),
		Events:    f.events,
		Notifier:  f.notifier,
		Now:       f.clock.now,
	}
}

// conflictingPolls loses the version race a fixed number of times.
type conflictingPolls struct {
	*repository.Memory
	mu        sync.Mutex
	conflicts int
	saves     int
}

func (c *conflictingPolls) SavePoll(ctx context.Context, poll *models.Poll, expected uint64) error {
	c.mu.Lock()
	c.saves++
	if c.conflicts != 0 {
		c.conflicts--
		c.mu.Unlock()
		return models.ErrVersionConflict
	}
	c.mu.Unlock()
	return c.Memory.SavePoll(ctx, poll, expected)
}

func TestRetryRecoversFromConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	repo := &conflictingPolls{Memory: f.repo}
	svc := NewPollService(repo, f.options(), zap.NewNop())

	poll, _, err := svc.Create(ctx, pollInput())
	require.NoError(t, err)

	repo.conflicts = 2
	_, err = svc.CastVote(ctx, poll.ID, "10.0.0.1", []string{poll.Options[0].ID}, models.VoterInfo{Nickname: "ann"})
	require.NoError(t, err)
	assert.Equal(t, 3, repo.saves)

	stored, err := f.repo.GetPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Stats.TotalVotes)
}

func TestRetryGivesUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	repo := &conflictingPolls{Memory: f.repo}
	opts := f.options()
	opts.SaveRetries = 3
	svc := NewPollService(repo, opts, zap.NewNop())

	poll, _, err := svc.Create(ctx, pollInput())
	require.NoError(t, err)

	repo.conflicts = -1
	_, err = svc.CastVote(ctx, poll.ID, "10.0.0.1", []string{poll.Options[0].ID}, models.VoterInfo{})
	require.Error(t, err)
	assert.Equal(t, models.KindUnexpected, models.KindOf(err))
	assert.Equal(t, 3, repo.saves)
	assert.Empty(t, f.events.Events())
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, "", remaining(start, 0))
	assert.Equal(t, "", remaining(start, -time.Minute))
	assert.Equal(t, "3 hours left", remaining(start, 3*time.Hour))
}
