// Package notify announces poll lifecycle changes in a chat channel.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/jaam8/surbate/internal/models"
	"github.com/mattermost/mattermost-server/v6/model"
	"go.uber.org/zap"
)

type Notifier interface {
	PollCreated(ctx context.Context, poll *models.Poll) error
	PollEnded(ctx context.Context, poll *models.Poll, results *models.PollResults) error
}

type Config struct {
	MmURL     string `yaml:"MM_URL" env:"MM_URL"`
	BotToken  string `yaml:"BOT_TOKEN" env:"BOT_TOKEN"`
	ChannelID string `yaml:"CHANNEL_ID" env:"CHANNEL_ID"`
}

func (c Config) Enabled() bool {
	return c.MmURL != "" && c.BotToken != "" && c.ChannelID != ""
}

type Mattermost struct {
	client    *model.Client4
	channelID string
	baseURL   string
	l         *zap.Logger
}

func NewMattermost(cfg Config, baseURL string, l *zap.Logger) *Mattermost {
	client := model.NewAPIv4Client(cfg.MmURL)
	client.SetToken(cfg.BotToken)
	return &Mattermost{
		client:    client,
		channelID: cfg.ChannelID,
		baseURL:   strings.TrimRight(baseURL, "/"),
		l:         l,
	}
}

func (m *Mattermost) PollCreated(_ context.Context, poll *models.Poll) error {
	return m.SendMsg(CreatedMessage(poll, m.baseURL))
}

func (m *Mattermost) PollEnded(_ context.Context, poll *models.Poll, results *models.PollResults) error {
	return m.SendMsg(EndedMessage(poll, results))
}

func (m *Mattermost) SendMsg(message string) error {
	post := &model.Post{
		ChannelId: m.channelID,
		Message:   message,
	}
	created, resp, err := m.client.CreatePost(post)
	if err != nil {
		return fmt.Errorf("notify: create post: %w", err)
	}
	m.l.Debug("send new message",
		zap.String("channel_id", created.ChannelId),
		zap.String("post_id", created.Id),
		zap.Int("status_code", resp.StatusCode))
	return nil
}

func CreatedMessage(poll *models.Poll, baseURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**New poll**: %s\n", poll.Title)
	if poll.Description != "" {
		fmt.Fprintf(&b, "%s\n", poll.Description)
	}
	b.WriteString("**Options**:\n")
	for _, option := range poll.Options {
		fmt.Fprintf(&b, "  [%s] *%s*\n", option.ID, option.Label)
	}
	fmt.Fprintf(&b, "**Voting**: %s to %s\n",
		poll.StartAt.UTC().Format("2006-01-02 15:04"), poll.EndAt.UTC().Format("2006-01-02 15:04"))
	if baseURL != "" {
		fmt.Fprintf(&b, "%s/polls/%s\n", baseURL, poll.ID)
	}
	return b.String()
}

func EndedMessage(poll *models.Poll, results *models.PollResults) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Poll ended**: %s\n", poll.Title)
	if results == nil {
		return b.String()
	}
	for _, option := range results.Options {
		fmt.Fprintf(&b, "  [%s] votes: **%d** (%d%%) *%s*\n", option.ID, option.VoteCount, option.Percentage, option.Label)
	}
	fmt.Fprintf(&b, "**Total votes**: %d, **voters**: %d\n", results.TotalVotes, results.UniqueVoters)
	return b.String()
}

type Noop struct{}

func (Noop) PollCreated(context.Context, *models.Poll) error { return nil }

func (Noop) PollEnded(context.Context, *models.Poll, *models.PollResults) error { return nil }
