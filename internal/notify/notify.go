// Package notify delivers offline-message notifications through external
// channels. Delivery is best-effort: one attempt, no retries.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/zulandar/signalbox/internal/config"
	"github.com/zulandar/signalbox/internal/identity"
)

// Ellipsis marks a truncated preview.
const Ellipsis = "..."

// Notification tells a recipient that a message arrived while they were offline.
type Notification struct {
	MessageID uint
	Sender    identity.Identity
	Recipient identity.Identity
	Preview   string
	SentAt    time.Time
}

// Notifier delivers a notification through one channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Preview truncates content to limit runes, appending Ellipsis when it cuts.
// A non-positive limit disables truncation.
func Preview(content string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(content) <= limit {
		return content
	}
	runes := []rune(content)
	return string(runes[:limit]) + Ellipsis
}

// Subject is the headline used by every channel.
func Subject(n Notification) string {
	return "New message from " + n.Sender.Username
}

// Body is the plain-text notification body.
func Body(n Notification) string {
	return fmt.Sprintf(`Hello %s,

You have a new message from %s:

"%s"

Sign in to read the full message.

Help Desk System
`, n.Recipient.Username, n.Sender.Username, n.Preview)
}

// Multi fans a notification out to several channels. Every channel is
// attempted; failures are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log records notifications in the log. It is the fallback channel when
// nothing else is configured.
type Log struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (l Log) Notify(ctx context.Context, n Notification) error {
	l.Logger.Info().
		Uint("message_id", n.MessageID).
		Uint("sender_id", n.Sender.ID).
		Uint("recipient_id", n.Recipient.ID).
		Str("preview", n.Preview).
		Msg("offline notification")
	return nil
}

// FromConfig builds the notifier for every configured channel.
func FromConfig(cfg config.NotifyConfig, logger zerolog.Logger) (Notifier, error) {
	var out Multi
	if cfg.Command != "" {
		out = append(out, Command{Template: cfg.Command})
	}
	if cfg.Slack.BotToken != "" {
		s, err := NewSlack(SlackOpts{BotToken: cfg.Slack.BotToken, ChannelID: cfg.Slack.ChannelID})
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if cfg.Discord.BotToken != "" {
		d, err := NewDiscord(DiscordOpts{BotToken: cfg.Discord.BotToken, ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if cfg.SMTP.Host != "" {
		m, err := NewMail(MailOpts{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return Log{Logger: logger}, nil
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}
