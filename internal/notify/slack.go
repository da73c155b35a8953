package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	GetUserByEmailContext(ctx context.Context, email string) (*slackapi.User, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackOpts holds parameters for creating a Slack notifier.
type SlackOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // fallback channel when the recipient has no Slack account
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// Slack posts notifications as a direct message to the recipient's Slack
// account (matched by email), falling back to a shared channel.
type Slack struct {
	client    slackClient
	channelID string
}

// NewSlack creates a Slack notifier.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: slack: channel id is required")
	}
	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.BotToken)
	}
	return &Slack{client: client, channelID: opts.ChannelID}, nil
}

// Notify implements Notifier.
func (s *Slack) Notify(ctx context.Context, n Notification) error {
	channel, direct := s.channelID, false
	if n.Recipient.Email != "" {
		// Lookup failures are not fatal; the shared channel still gets it.
		if u, err := s.client.GetUserByEmailContext(ctx, n.Recipient.Email); err == nil && u != nil && u.ID != "" {
			channel, direct = u.ID, true
		}
	}

	text := fmt.Sprintf("*%s*\n>%s", Subject(n), n.Preview)
	if !direct {
		text = fmt.Sprintf("*%s* (for %s)\n>%s", Subject(n), n.Recipient.Username, n.Preview)
	}
	if _, _, err := s.client.PostMessageContext(ctx, channel, slackapi.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("notify: slack: post: %w", err)
	}
	return nil
}
