package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jaam8/surbate/internal/auth"
	"github.com/jaam8/surbate/internal/events"
	"github.com/jaam8/surbate/internal/models"
	"github.com/jaam8/surbate/internal/notify"
	"github.com/jaam8/surbate/pkg/pseudonym"
	"go.uber.org/zap"
)

const DefaultSaveRetries = 5

type PollRepository interface {
	CreatePoll(ctx context.Context, poll *models.Poll) error
	GetPoll(ctx context.Context, pollID string) (*models.Poll, error)
	SavePoll(ctx context.Context, poll *models.Poll, expected uint64) error
	ListPolls(ctx context.Context, status models.PollStatus) ([]*models.Poll, error)
}

type SurveyRepository interface {
	CreateSurvey(ctx context.Context, survey *models.Survey) error
	GetSurvey(ctx context.Context, surveyID string) (*models.Survey, error)
	SaveSurvey(ctx context.Context, survey *models.Survey, expected uint64) error
	ListSurveys(ctx context.Context, status models.SurveyStatus) ([]*models.Survey, error)
	InsertResponse(ctx context.Context, survey *models.Survey, expected uint64, response *models.Response) error
	ReplaceResponse(ctx context.Context, survey *models.Survey, expected uint64, response *models.Response) error
	FindResponse(ctx context.Context, surveyID, respondentID string) (*models.Response, error)
	GetResponseByCode(ctx context.Context, surveyID, code string) (*models.Response, error)
	ListResponses(ctx context.Context, surveyID string) ([]*models.Response, error)
}

// Options carries the collaborators shared by both services. Zero values
// fall back to in-process defaults.
type Options struct {
	Hasher      *pseudonym.Hasher
	Passwords   *auth.Passwords
	Sessions    auth.SessionStore
	Events      events.Publisher
	Notifier    notify.Notifier
	Quality     models.QualityRules
	SaveRetries int
	Now         func() time.Time
}

type base struct {
	hasher    *pseudonym.Hasher
	passwords *auth.Passwords
	sessions  auth.SessionStore
	events    events.Publisher
	notifier  notify.Notifier
	retries   int
	clock     func() time.Time
	l         *zap.Logger
}

func newBase(opts Options, l *zap.Logger) base {
	b := base{
		hasher:    opts.Hasher,
		passwords: opts.Passwords,
		sessions:  opts.Sessions,
		events:    opts.Events,
		notifier:  opts.Notifier,
		retries:   opts.SaveRetries,
		clock:     opts.Now,
		l:         l,
	}
	if b.hasher == nil {
		b.hasher = pseudonym.New("")
	}
	if b.passwords == nil {
		b.passwords = auth.NewPasswords(0)
	}
	if b.sessions == nil {
		b.sessions = auth.NewMemorySessions(auth.DefaultSessionTTL, nil)
	}
	if b.events == nil {
		b.events = events.Noop{}
	}
	if b.notifier == nil {
		b.notifier = notify.Noop{}
	}
	if b.retries < 1 {
		b.retries = DefaultSaveRetries
	}
	if b.clock == nil {
		b.clock = time.Now
	}
	return b
}

func (b *base) now() time.Time {
	return b.clock().UTC()
}

// retry runs a load, mutate and save cycle until the save stops losing
// the version race. Running out of attempts is an unexpected failure.
func (b *base) retry(op string, fn func() error) error {
	for attempt := 1; attempt <= b.retries; attempt++ {
		err := fn()
		if !errors.Is(err, models.ErrVersionConflict) {
			return err
		}
		b.l.Debug("version conflict, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt))
	}
	b.l.Error("giving up after concurrent modifications",
		zap.String("op", op),
		zap.Int("attempts", b.retries))
	return fmt.Errorf("service: failed to %s: document kept changing", op)
}

// fail passes domain errors through and logs and wraps everything else.
func (b *base) fail(op string, err error) error {
	if models.KindOf(err) != models.KindUnexpected {
		b.l.Debug("rejected", zap.String("op", op), zap.Error(err))
		return err
	}
	b.l.Error("failed to "+op, zap.Error(err))
	return fmt.Errorf("service: failed to %s: %w", op, err)
}

func (b *base) publish(ctx context.Context, event events.Event) {
	if err := b.events.Publish(ctx, event); err != nil {
		b.l.Warn("failed to publish event",
			zap.String("type", event.Type),
			zap.String("aggregate_id", event.AggregateID),
			zap.Error(err))
	}
}

func (b *base) login(ctx context.Context, subject, hash, password string) (string, error) {
	if password == "" || !b.passwords.Verify(hash, password) {
		return "", models.ErrWrongPassword
	}
	token, err := b.sessions.Create(ctx, subject)
	if err != nil {
		return "", err
	}
	return token, nil
}

// Logout ends an admin session. Unknown tokens are ignored.
func (b *base) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := b.sessions.Delete(ctx, token); err != nil {
		return b.fail("logout", err)
	}
	return nil
}

// authorize checks that token is a live session for subject.
func (b *base) authorize(ctx context.Context, token, subject string) error {
	if token == "" {
		return models.ErrUnauthorized
	}
	got, err := b.sessions.Validate(ctx, token)
	if err != nil {
		return err
	}
	if got != subject {
		return models.ErrUnauthorized
	}
	return nil
}

// remaining renders a countdown such as "3 hours left", empty once over.
func remaining(now time.Time, d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return humanize.RelTime(now, now.Add(d), "left", "")
}
