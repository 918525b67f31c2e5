package models

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PollStatus string

const (
	PollScheduled PollStatus = "scheduled"
	PollActive    PollStatus = "active"
	PollEnded     PollStatus = "ended"
)

const DefaultMaxVotesPerIP = 1

type Poll struct {
	ID           string       `json:"id"`
	Version      uint64       `json:"version"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Options      []Option     `json:"options"`
	StartAt      time.Time    `json:"start_at"`
	EndAt        time.Time    `json:"end_at"`
	Status       PollStatus   `json:"status"`
	Settings     PollSettings `json:"settings"`
	Voters       []Voter      `json:"voters"`
	Opinions     []Opinion    `json:"opinions"`
	Stats        PollStats    `json:"stats"`
	PasswordHash string       `json:"password_hash"`
	IsHidden     bool         `json:"is_hidden"`
	IsDeleted    bool         `json:"is_deleted"`
	DeletedAt    *time.Time   `json:"deleted_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type Option struct {
	ID         string       `json:"id"`
	Label      string       `json:"label"`
	Votes      []VoteRecord `json:"votes"`
	VoteCount  int          `json:"vote_count"`
	Percentage int          `json:"percentage"`
}

type VoteRecord struct {
	VoterID     string    `json:"voter_id"`
	Nickname    string    `json:"nickname,omitempty"`
	IsAnonymous bool      `json:"is_anonymous"`
	VotedAt     time.Time `json:"voted_at"`
}

// Voter is the per-identifier history used to enforce MaxVotesPerIP.
type Voter struct {
	VoterID    string    `json:"voter_id"`
	VoteCount  int       `json:"vote_count"`
	LastVoteAt time.Time `json:"last_vote_at"`
}

type PollSettings struct {
	AllowMultipleChoice  bool `json:"allow_multiple_choice"`
	ShowResultsBeforeEnd bool `json:"show_results_before_end"`
	AllowAnonymousVote   bool `json:"allow_anonymous_vote"`
	AllowOpinions        bool `json:"allow_opinions"`
	MaxVotesPerIP        int  `json:"max_votes_per_ip"`
}

type Opinion struct {
	ID          string    `json:"id"`
	Nickname    string    `json:"nickname"`
	AuthorID    string    `json:"author_id"`
	OptionID    string    `json:"option_id,omitempty"`
	Content     string    `json:"content"`
	IsAnonymous bool      `json:"is_anonymous"`
	IsDeleted   bool      `json:"is_deleted"`
	CreatedAt   time.Time `json:"created_at"`
}

// PollStats is maintained incrementally on every mutation.
type PollStats struct {
	TotalVotes   int        `json:"total_votes"`
	UniqueVoters int        `json:"unique_voters"`
	OpinionCount int        `json:"opinion_count"`
	ViewCount    int        `json:"view_count"`
	LastVoteAt   *time.Time `json:"last_vote_at,omitempty"`
}

type VoterInfo struct {
	Nickname    string
	IsAnonymous bool
}

type OpinionInput struct {
	Nickname    string
	OptionID    string
	Content     string
	IsAnonymous bool
}

type NewPollInput struct {
	Title        string
	Description  string
	Options      []string
	StartAt      time.Time
	EndAt        time.Time
	Settings     PollSettings
	PasswordHash string
}

// NewPoll validates input and builds a poll with fresh identifiers.
func NewPoll(in NewPollInput, now time.Time) (*Poll, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrTitleRequired
	}
	if len(in.Options) < 2 {
		return nil, ErrNotEnoughOptions
	}
	if !in.EndAt.After(in.StartAt) {
		return nil, ErrInvalidWindow
	}
	if in.PasswordHash == "" {
		return nil, ErrPasswordRequired
	}
	options := make([]Option, len(in.Options))
	for i, label := range in.Options {
		if strings.TrimSpace(label) == "" {
			return nil, ErrOptionIsEmpty
		}
		options[i] = Option{ID: shortID(), Label: label, Votes: []VoteRecord{}}
	}
	settings := in.Settings
	if settings.MaxVotesPerIP < 1 {
		settings.MaxVotesPerIP = DefaultMaxVotesPerIP
	}

	p := &Poll{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Description:  in.Description,
		Options:      options,
		StartAt:      in.StartAt,
		EndAt:        in.EndAt,
		Settings:     settings,
		Voters:       []Voter{},
		Opinions:     []Opinion{},
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	p.Status = DerivePollStatus(now, p.StartAt, p.EndAt, false, false, PollScheduled)
	return p, nil
}

// DerivePollStatus classifies a poll against its window. Hidden and deleted
// polls keep whatever status they had.
func DerivePollStatus(now, startAt, endAt time.Time, hidden, deleted bool, stored PollStatus) PollStatus {
	switch {
	case hidden || deleted:
		return stored
	case now.Before(startAt):
		return PollScheduled
	case !now.After(endAt):
		return PollActive
	default:
		return PollEnded
	}
}

// RefreshStatus stores the derived status and reports whether it changed.
func (p *Poll) RefreshStatus(now time.Time) bool {
	next := DerivePollStatus(now, p.StartAt, p.EndAt, p.IsHidden, p.IsDeleted, p.Status)
	if next == p.Status {
		return false
	}
	p.Status = next
	return true
}

func (p *Poll) IsActive(now time.Time) bool {
	p.RefreshStatus(now)
	return p.Status == PollActive && !p.IsHidden && !p.IsDeleted
}

// TimeRemaining is zero once the poll has ended.
func (p *Poll) TimeRemaining(now time.Time) time.Duration {
	if now.After(p.EndAt) {
		return 0
	}
	return p.EndAt.Sub(now)
}

func (p *Poll) voter(voterID string) *Voter {
	for i := range p.Voters {
		if p.Voters[i].VoterID == voterID {
			return &p.Voters[i]
		}
	}
	return nil
}

// CanVote reports whether voterID may cast another vote right now.
func (p *Poll) CanVote(voterID string, now time.Time) bool {
	return p.voteEligibility(voterID, now) == nil
}

func (p *Poll) voteEligibility(voterID string, now time.Time) error {
	if !p.IsActive(now) {
		return ErrPollNotActive
	}
	if v := p.voter(voterID); v != nil && v.VoteCount >= p.maxVotes() {
		return ErrVoteLimitReached
	}
	return nil
}

func (p *Poll) maxVotes() int {
	if p.Settings.MaxVotesPerIP < 1 {
		return DefaultMaxVotesPerIP
	}
	return p.Settings.MaxVotesPerIP
}

func (p *Poll) optionIndex(optionID string) int {
	for i := range p.Options {
		if p.Options[i].ID == optionID {
			return i
		}
	}
	return -1
}

// CastVote records one vote per selected option. Nothing is mutated when
// an error is returned.
func (p *Poll) CastVote(optionIDs []string, voterID string, info VoterInfo, now time.Time) error {
	if err := p.voteEligibility(voterID, now); err != nil {
		return err
	}
	if len(optionIDs) == 0 {
		return ErrNoOptionSelected
	}
	if len(optionIDs) > 1 && !p.Settings.AllowMultipleChoice {
		return ErrSingleChoiceOnly
	}
	if info.IsAnonymous && !p.Settings.AllowAnonymousVote {
		return ErrAnonymousForbidden
	}
	indexes := make([]int, 0, len(optionIDs))
	seen := make(map[string]struct{}, len(optionIDs))
	for _, id := range optionIDs {
		idx := p.optionIndex(id)
		if idx < 0 {
			return detail(ErrInvalidOption, "invalid option: %s", id)
		}
		if _, dup := seen[id]; dup {
			return detail(ErrInvalidOption, "option %s selected twice", id)
		}
		seen[id] = struct{}{}
		indexes = append(indexes, idx)
	}

	nickname := info.Nickname
	if info.IsAnonymous {
		nickname = ""
	}
	for _, idx := range indexes {
		opt := &p.Options[idx]
		opt.Votes = append(opt.Votes, VoteRecord{
			VoterID:     voterID,
			Nickname:    nickname,
			IsAnonymous: info.IsAnonymous,
			VotedAt:     now,
		})
		opt.VoteCount = len(opt.Votes)
	}

	if v := p.voter(voterID); v != nil {
		v.VoteCount++
		v.LastVoteAt = now
	} else {
		p.Voters = append(p.Voters, Voter{VoterID: voterID, VoteCount: 1, LastVoteAt: now})
	}

	p.Stats.TotalVotes += len(indexes)
	p.Stats.UniqueVoters = len(p.Voters)
	stamp := now
	p.Stats.LastVoteAt = &stamp
	p.recomputePercentages()
	p.UpdatedAt = now
	return nil
}

func (p *Poll) recomputePercentages() {
	for i := range p.Options {
		p.Options[i].Percentage = Percent(p.Options[i].VoteCount, p.Stats.TotalVotes)
	}
}

// Percent is round(100*part/total), or 0 when total is 0.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}

// AddOpinion appends a free-text opinion and refreshes OpinionCount.
func (p *Poll) AddOpinion(in OpinionInput, authorID string, now time.Time) (*Opinion, error) {
	if !p.Settings.AllowOpinions {
		return nil, ErrOpinionsDisabled
	}
	p.RefreshStatus(now)
	if p.Status == PollScheduled {
		return nil, ErrPollNotStarted
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, ErrContentRequired
	}
	if in.IsAnonymous && !p.Settings.AllowAnonymousVote {
		return nil, ErrAnonymousForbidden
	}
	if in.OptionID != "" && p.optionIndex(in.OptionID) < 0 {
		return nil, detail(ErrInvalidOption, "invalid option: %s", in.OptionID)
	}

	nickname := in.Nickname
	if in.IsAnonymous {
		nickname = ""
	}
	p.Opinions = append(p.Opinions, Opinion{
		ID:          uuid.NewString(),
		Nickname:    nickname,
		AuthorID:    authorID,
		OptionID:    in.OptionID,
		Content:     strings.TrimSpace(in.Content),
		IsAnonymous: in.IsAnonymous,
		CreatedAt:   now,
	})
	p.recountOpinions()
	p.UpdatedAt = now
	return &p.Opinions[len(p.Opinions)-1], nil
}

// DeleteOpinion soft-deletes an opinion.
func (p *Poll) DeleteOpinion(opinionID string, now time.Time) error {
	for i := range p.Opinions {
		if p.Opinions[i].ID == opinionID && !p.Opinions[i].IsDeleted {
			p.Opinions[i].IsDeleted = true
			p.recountOpinions()
			p.UpdatedAt = now
			return nil
		}
	}
	return ErrOpinionNotFound
}

func (p *Poll) recountOpinions() {
	count := 0
	for _, o := range p.Opinions {
		if !o.IsDeleted {
			count++
		}
	}
	p.Stats.OpinionCount = count
}

// VisibleOpinions returns the opinions that are not soft-deleted.
func (p *Poll) VisibleOpinions() []Opinion {
	out := make([]Opinion, 0, len(p.Opinions))
	for _, o := range p.Opinions {
		if !o.IsDeleted {
			out = append(out, o)
		}
	}
	return out
}

type OptionResult struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	VoteCount  int    `json:"vote_count"`
	Percentage int    `json:"percentage"`
}

type PollResults struct {
	Options      []OptionResult `json:"options"`
	TotalVotes   int            `json:"total_votes"`
	UniqueVoters int            `json:"unique_voters"`
}

// Results returns nil unless force is set, the poll shows results early,
// or it has ended.
func (p *Poll) Results(force bool, now time.Time) *PollResults {
	p.RefreshStatus(now)
	if !force && !p.Settings.ShowResultsBeforeEnd && p.Status != PollEnded {
		return nil
	}
	res := &PollResults{
		Options:      make([]OptionResult, len(p.Options)),
		TotalVotes:   p.Stats.TotalVotes,
		UniqueVoters: p.Stats.UniqueVoters,
	}
	for i, o := range p.Options {
		res.Options[i] = OptionResult{ID: o.ID, Label: o.Label, VoteCount: o.VoteCount, Percentage: o.Percentage}
	}
	return res
}

type PollUpdate struct {
	Title       *string
	Description *string
	EndAt       *time.Time
	Settings    *PollSettings
}

// Apply edits an existing poll. Options are never changed after creation.
func (p *Poll) Apply(u PollUpdate, now time.Time) error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return ErrTitleRequired
	}
	if u.EndAt != nil && !u.EndAt.After(p.StartAt) {
		return ErrInvalidWindow
	}
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.EndAt != nil {
		p.EndAt = *u.EndAt
	}
	if u.Settings != nil {
		s := *u.Settings
		if s.MaxVotesPerIP < 1 {
			s.MaxVotesPerIP = DefaultMaxVotesPerIP
		}
		p.Settings = s
	}
	p.UpdatedAt = now
	p.RefreshStatus(now)
	return nil
}

// End closes an active poll immediately by moving its end just behind now.
func (p *Poll) End(now time.Time) error {
	p.RefreshStatus(now)
	switch {
	case p.Status == PollEnded:
		return ErrPollAlreadyEnded
	case now.Before(p.StartAt):
		return ErrPollNotStarted
	}
	end := now.Add(-time.Nanosecond)
	if p.StartAt.After(end) {
		p.StartAt = end
	}
	p.EndAt = end
	p.UpdatedAt = now
	p.RefreshStatus(now)
	return nil
}

func (p *Poll) SetHidden(hidden bool, now time.Time) {
	p.IsHidden = hidden
	p.UpdatedAt = now
	p.RefreshStatus(now)
}

func (p *Poll) SoftDelete(now time.Time) {
	p.IsDeleted = true
	stamp := now
	p.DeletedAt = &stamp
	p.UpdatedAt = now
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
