package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jaam8/surbate/internal/auth"
	"github.com/jaam8/surbate/internal/events"
	"github.com/jaam8/surbate/internal/models"
	"go.uber.org/zap"
)

const pollSubject = "poll"

type PollService struct {
	base
	r PollRepository
}

func NewPollService(r PollRepository, opts Options, l *zap.Logger) *PollService {
	return &PollService{
		base: newBase(opts, l),
		r:    r,
	}
}

// CreatePollInput.StartAt defaults to the creation time.
type CreatePollInput struct {
	Title       string
	Description string
	Options     []string
	StartAt     time.Time
	EndAt       time.Time
	Settings    models.PollSettings
	Password    string
}

type OptionView struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type OpinionView struct {
	ID          string    `json:"id"`
	Nickname    string    `json:"nickname"`
	OptionID    string    `json:"option_id,omitempty"`
	Content     string    `json:"content"`
	IsAnonymous bool      `json:"is_anonymous"`
	CreatedAt   time.Time `json:"created_at"`
}

// PollView is what participants see. It never carries voter identifiers.
type PollView struct {
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Options       []OptionView        `json:"options"`
	Status        models.PollStatus   `json:"status"`
	StartAt       time.Time           `json:"start_at"`
	EndAt         time.Time           `json:"end_at"`
	Settings      models.PollSettings `json:"settings"`
	Stats         models.PollStats    `json:"stats"`
	IsActive      bool                `json:"is_active"`
	IsHidden      bool                `json:"is_hidden"`
	TimeRemaining string              `json:"time_remaining"`
	Opinions      []OpinionView       `json:"opinions"`
	Results       *models.PollResults `json:"results"`
	CanVote       *bool               `json:"can_vote,omitempty"`
}

func (s *PollService) view(p *models.Poll, forceResults bool, now time.Time) *PollView {
	v := &PollView{
		ID:            p.ID,
		Title:         p.Title,
		Description:   p.Description,
		Options:       make([]OptionView, len(p.Options)),
		Status:        p.Status,
		StartAt:       p.StartAt,
		EndAt:         p.EndAt,
		Settings:      p.Settings,
		Stats:         p.Stats,
		IsActive:      p.IsActive(now),
		IsHidden:      p.IsHidden,
		TimeRemaining: remaining(now, p.TimeRemaining(now)),
		Results:       p.Results(forceResults, now),
	}
	for i, o := range p.Options {
		v.Options[i] = OptionView{ID: o.ID, Label: o.Label}
	}
	opinions := p.VisibleOpinions()
	v.Opinions = make([]OpinionView, len(opinions))
	for i, o := range opinions {
		v.Opinions[i] = OpinionView{
			ID:          o.ID,
			Nickname:    o.Nickname,
			OptionID:    o.OptionID,
			Content:     o.Content,
			IsAnonymous: o.IsAnonymous,
			CreatedAt:   o.CreatedAt,
		}
	}
	return v
}

// Create stores a new poll and opens an admin session for its creator.
func (s *PollService) Create(ctx context.Context, in CreatePollInput) (*PollView, string, error) {
	if in.Password == "" {
		return nil, "", models.ErrPasswordRequired
	}
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, "", s.fail("create poll", err)
	}
	now := s.now()
	if in.StartAt.IsZero() {
		in.StartAt = now
	}
	poll, err := models.NewPoll(models.NewPollInput{
		Title:        in.Title,
		Description:  in.Description,
		Options:      in.Options,
		StartAt:      in.StartAt,
		EndAt:        in.EndAt,
		Settings:     in.Settings,
		PasswordHash: hash,
	}, now)
	if err != nil {
		return nil, "", s.fail("create poll", err)
	}
	if err = s.r.CreatePoll(ctx, poll); err != nil {
		return nil, "", s.fail("create poll", err)
	}
	token, err := s.sessions.Create(ctx, auth.Subject(pollSubject, poll.ID))
	if err != nil {
		return nil, "", s.fail("create poll session", err)
	}
	if err = s.notifier.PollCreated(ctx, poll); err != nil {
		s.l.Warn("failed to announce poll", zap.String("poll_id", poll.ID), zap.Error(err))
	}
	s.l.Info("poll created",
		zap.String("poll_id", poll.ID),
		zap.Int("options", len(poll.Options)))
	return s.view(poll, true, now), token, nil
}

// load returns a poll that is not deleted. Hidden polls are only visible
// to their admin.
func (s *PollService) load(ctx context.Context, pollID string, admin bool) (*models.Poll, error) {
	poll, err := s.r.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if poll.IsDeleted || (poll.IsHidden && !admin) {
		return nil, models.ErrPollNotFound
	}
	return poll, nil
}

// update applies mutate to a fresh copy of the poll and saves it, retrying
// on version conflicts.
func (s *PollService) update(ctx context.Context, op, pollID string, admin bool, mutate func(*models.Poll, time.Time) error) (*models.Poll, error) {
	var saved *models.Poll
	err := s.retry(op, func() error {
		poll, err := s.load(ctx, pollID, admin)
		if err != nil {
			return err
		}
		expected := poll.Version
		if err = mutate(poll, s.now()); err != nil {
			return err
		}
		if err = s.r.SavePoll(ctx, poll, expected); err != nil {
			return err
		}
		saved = poll
		return nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}
	return saved, nil
}

// View returns the public poll page and counts the visit.
func (s *PollService) View(ctx context.Context, pollID, addr string) (*PollView, error) {
	poll, err := s.update(ctx, "view poll", pollID, false, func(p *models.Poll, now time.Time) error {
		p.RefreshStatus(now)
		p.Stats.ViewCount++
		return nil
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	v := s.view(poll, false, now)
	canVote := poll.CanVote(s.hasher.Hash(addr), now)
	v.CanVote = &canVote
	return v, nil
}

// List returns visible polls whose current status is status. Stale stored
// statuses are corrected on the way.
func (s *PollService) List(ctx context.Context, status models.PollStatus) ([]*PollView, error) {
	var polls []*models.Poll
	for _, stored := range listedStatuses(status) {
		batch, err := s.r.ListPolls(ctx, stored)
		if err != nil {
			return nil, s.fail("list polls", err)
		}
		polls = append(polls, batch...)
	}
	now := s.now()
	views := make([]*PollView, 0, len(polls))
	for _, p := range polls {
		if p.IsHidden {
			continue
		}
		expected := p.Version
		if p.RefreshStatus(now) {
			if err := s.r.SavePoll(ctx, p, expected); err != nil {
				s.l.Debug("failed to store refreshed status", zap.String("poll_id", p.ID), zap.Error(err))
			}
		}
		if p.Status != status {
			continue
		}
		v := s.view(p, false, now)
		v.Opinions = nil
		views = append(views, v)
	}
	return views, nil
}

// listedStatuses are the stored statuses a poll may have while its current
// status is status.
func listedStatuses(status models.PollStatus) []models.PollStatus {
	switch status {
	case models.PollActive:
		return []models.PollStatus{models.PollScheduled, models.PollActive}
	case models.PollEnded:
		return []models.PollStatus{models.PollScheduled, models.PollActive, models.PollEnded}
	default:
		return []models.PollStatus{status}
	}
}

func (s *PollService) CanVote(ctx context.Context, pollID, addr string) (bool, error) {
	poll, err := s.load(ctx, pollID, false)
	if err != nil {
		return false, s.fail("check vote", err)
	}
	return poll.CanVote(s.hasher.Hash(addr), s.now()), nil
}

func (s *PollService) CastVote(ctx context.Context, pollID, addr string, optionIDs []string, info models.VoterInfo) (*PollView, error) {
	voterID := s.hasher.Hash(addr)
	poll, err := s.update(ctx, "vote", pollID, false, func(p *models.Poll, now time.Time) error {
		return p.CastVote(optionIDs, voterID, info, now)
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	s.publish(ctx, events.Event{
		Type:        events.TypeVoteCast,
		AggregateID: poll.ID,
		ActorID:     voterID,
		OccurredAt:  now,
		Payload:     map[string]string{"options": strconv.Itoa(len(optionIDs))},
	})
	s.l.Info("voted successfully",
		zap.String("poll_id", poll.ID),
		zap.Strings("option_ids", optionIDs))
	v := s.view(poll, false, now)
	canVote := poll.CanVote(voterID, now)
	v.CanVote = &canVote
	return v, nil
}

func (s *PollService) AddOpinion(ctx context.Context, pollID, addr string, in models.OpinionInput) (*OpinionView, error) {
	authorID := s.hasher.Hash(addr)
	var added *models.Opinion
	poll, err := s.update(ctx, "add opinion", pollID, false, func(p *models.Poll, now time.Time) error {
		op, err := p.AddOpinion(in, authorID, now)
		if err != nil {
			return err
		}
		added = op
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Type:        events.TypeOpinionAdded,
		AggregateID: poll.ID,
		ActorID:     authorID,
		OccurredAt:  added.CreatedAt,
		Payload:     map[string]string{"opinion_id": added.ID},
	})
	return &OpinionView{
		ID:          added.ID,
		Nickname:    added.Nickname,
		OptionID:    added.OptionID,
		Content:     added.Content,
		IsAnonymous: added.IsAnonymous,
		CreatedAt:   added.CreatedAt,
	}, nil
}

// Results returns nil when the poll keeps its results private for now.
func (s *PollService) Results(ctx context.Context, pollID string) (*models.PollResults, error) {
	poll, err := s.load(ctx, pollID, false)
	if err != nil {
		return nil, s.fail("get poll results", err)
	}
	return poll.Results(false, s.now()), nil
}

func (s *PollService) Login(ctx context.Context, pollID, password string) (string, error) {
	poll, err := s.load(ctx, pollID, true)
	if err != nil {
		return "", s.fail("login", err)
	}
	token, err := s.login(ctx, auth.Subject(pollSubject, poll.ID), poll.PasswordHash, password)
	if err != nil {
		if errors.Is(err, models.ErrWrongPassword) {
			s.l.Warn("wrong poll password", zap.String("poll_id", pollID))
		}
		return "", s.fail("login", err)
	}
	return token, nil
}

func (s *PollService) Authorize(ctx context.Context, pollID, token string) error {
	if err := s.authorize(ctx, token, auth.Subject(pollSubject, pollID)); err != nil {
		return s.fail("authorize", err)
	}
	return nil
}

// AdminView is the owner's page: results are always included.
func (s *PollService) AdminView(ctx context.Context, pollID string) (*PollView, error) {
	poll, err := s.load(ctx, pollID, true)
	if err != nil {
		return nil, s.fail("get poll", err)
	}
	return s.view(poll, true, s.now()), nil
}

func (s *PollService) Update(ctx context.Context, pollID string, u models.PollUpdate) (*PollView, error) {
	poll, err := s.update(ctx, "update poll", pollID, true, func(p *models.Poll, now time.Time) error {
		return p.Apply(u, now)
	})
	if err != nil {
		return nil, err
	}
	return s.view(poll, true, s.now()), nil
}

func (s *PollService) SetHidden(ctx context.Context, pollID string, hidden bool) (*PollView, error) {
	poll, err := s.update(ctx, "hide poll", pollID, true, func(p *models.Poll, now time.Time) error {
		p.SetHidden(hidden, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(poll, true, s.now()), nil
}

func (s *PollService) Delete(ctx context.Context, pollID string) error {
	_, err := s.update(ctx, "delete poll", pollID, true, func(p *models.Poll, now time.Time) error {
		p.SoftDelete(now)
		return nil
	})
	if err != nil {
		return err
	}
	s.l.Info("poll deleted", zap.String("poll_id", pollID))
	return nil
}

func (s *PollService) DeleteOpinion(ctx context.Context, pollID, opinionID string) error {
	_, err := s.update(ctx, "delete opinion", pollID, true, func(p *models.Poll, now time.Time) error {
		return p.DeleteOpinion(opinionID, now)
	})
	return err
}

// End stops voting now and announces the final results.
func (s *PollService) End(ctx context.Context, pollID string) (*PollView, error) {
	poll, err := s.update(ctx, "end poll", pollID, true, func(p *models.Poll, now time.Time) error {
		return p.End(now)
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err = s.notifier.PollEnded(ctx, poll, poll.Results(true, now)); err != nil {
		s.l.Warn("failed to announce poll end", zap.String("poll_id", poll.ID), zap.Error(err))
	}
	s.l.Info("poll ended", zap.String("poll_id", poll.ID))
	return s.view(poll, true, now), nil
}

func (s *PollService) Stats(ctx context.Context, pollID string) (*PollStatistics, error) {
	poll, err := s.load(ctx, pollID, true)
	if err != nil {
		return nil, s.fail("get poll stats", err)
	}
	return PollStats(poll), nil
}
