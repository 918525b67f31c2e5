package repository

import (
	"context"
	"fmt"

	"github.com/jaam8/surbate/internal/models"
	"github.com/tarantool/go-tarantool"
	"go.uber.org/zap"
)

const listLimit uint32 = 500

type PollRepository struct {
	db *tarantool.Connection
	l  *zap.Logger
}

func NewPollRepository(db *tarantool.Connection, l *zap.Logger) *PollRepository {
	return &PollRepository{
		db: db,
		l:  l,
	}
}

func (r *PollRepository) CreatePoll(_ context.Context, poll *models.Poll) error {
	r.l.Debug("creating poll", zap.String("poll_id", poll.ID))
	tuple, err := pollTuple(poll)
	if err != nil {
		return err
	}

	resp, err := r.db.Insert("polls", tuple)
	if err != nil {
		r.l.Debug("error inserting poll", zap.Error(err))
		return fmt.Errorf("repository: database insert error: %w", err)
	}
	r.l.Debug("tarantool response",
		zap.Uint32("status_code", resp.Code),
		zap.String("error", resp.Error))
	return nil
}

func (r *PollRepository) GetPoll(_ context.Context, pollID string) (*models.Poll, error) {
	resp, err := r.db.Select("polls", "primary", 0, 1, tarantool.IterEq, []interface{}{pollID})
	if err != nil {
		r.l.Debug("failed to select poll", zap.Error(err))
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	r.l.Debug("tarantool response",
		zap.Uint32("status_code", resp.Code),
		zap.Int("tuples", len(resp.Data)))

	if len(resp.Data) == 0 {
		r.l.Debug("poll not found", zap.String("poll_id", pollID))
		return nil, models.ErrPollNotFound
	}
	poll := &models.Poll{}
	if err = decodeTuple(resp.Data[0], poll); err != nil {
		r.l.Debug("unexpected data type", zap.Any("data", resp.Data))
		return nil, err
	}
	return poll, nil
}

// SavePoll writes the poll if nobody else saved it since expected was
// read. On success poll.Version is expected+1.
func (r *PollRepository) SavePoll(_ context.Context, poll *models.Poll, expected uint64) error {
	poll.Version = expected + 1
	tuple, err := pollTuple(poll)
	if err != nil {
		poll.Version = expected
		return err
	}

	resp, err := r.db.Eval(casScript, []interface{}{"polls", expected, tuple})
	if err != nil {
		poll.Version = expected
		r.l.Debug("failed to save poll", zap.Error(err))
		return fmt.Errorf("repository: database eval error: %w", err)
	}
	status, err := evalStatus(resp)
	if err != nil {
		poll.Version = expected
		return err
	}
	r.l.Debug("save poll",
		zap.String("poll_id", poll.ID),
		zap.Uint64("version", poll.Version),
		zap.String("status", status))
	if err = statusError(status, models.ErrPollNotFound); err != nil {
		poll.Version = expected
		return err
	}
	return nil
}

// ListPolls returns polls by stored status, skipping deleted ones.
func (r *PollRepository) ListPolls(_ context.Context, status models.PollStatus) ([]*models.Poll, error) {
	resp, err := r.db.Select("polls", "status", 0, listLimit, tarantool.IterEq, []interface{}{string(status)})
	if err != nil {
		r.l.Debug("failed to select polls", zap.Error(err))
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	warnTruncated(r.l, "polls", string(status), len(resp.Data))
	polls := make([]*models.Poll, 0, len(resp.Data))
	for _, raw := range resp.Data {
		poll := &models.Poll{}
		if err = decodeTuple(raw, poll); err != nil {
			return nil, err
		}
		if poll.IsDeleted {
			continue
		}
		polls = append(polls, poll)
	}
	return polls, nil
}
