package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// ErrNoAddress is returned when the recipient has no email address.
var ErrNoAddress = errors.New("notify: mail: recipient has no email address")

// defaultMailTimeout bounds each SMTP step when the caller sets no deadline.
const defaultMailTimeout = 15 * time.Second

// mailSender is the subset of *gomail.Client used by Mail.
type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// MailOpts holds parameters for creating a Mail notifier.
type MailOpts struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// For testing: replaces the go-mail client built per attempt.
	Dial func(timeout time.Duration) (mailSender, error)
}

// Mail sends notifications through an SMTP relay. Each attempt dials its own
// client on the calling goroutine, so queue workers bound concurrent sends.
type Mail struct {
	from string
	dial func(timeout time.Duration) (mailSender, error)
}

// NewMail creates a Mail notifier. Authentication is used only when a
// username is configured.
func NewMail(opts MailOpts) (*Mail, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("notify: mail: host is required")
	}
	if opts.From == "" {
		return nil, fmt.Errorf("notify: mail: from address is required")
	}
	if opts.Port == 0 {
		opts.Port = 587
	}
	m := &Mail{from: opts.From, dial: opts.Dial}
	if m.dial == nil {
		m.dial = func(timeout time.Duration) (mailSender, error) {
			clientOpts := []gomail.Option{
				gomail.WithPort(opts.Port),
				gomail.WithTLSPolicy(gomail.TLSOpportunistic),
				gomail.WithTimeout(timeout),
			}
			if opts.Username != "" {
				clientOpts = append(clientOpts,
					gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
					gomail.WithUsername(opts.Username),
					gomail.WithPassword(opts.Password),
				)
			}
			return gomail.NewClient(opts.Host, clientOpts...)
		}
	}
	return m, nil
}

// Notify implements Notifier. The attempt runs to completion or until ctx
// expires; every SMTP step is bounded by the time left on ctx.
func (m *Mail) Notify(ctx context.Context, n Notification) error {
	if n.Recipient.Email == "" {
		return fmt.Errorf("%w: user %d", ErrNoAddress, n.Recipient.ID)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("notify: mail: %w", err)
	}
	msg, err := m.compose(n)
	if err != nil {
		return err
	}

	timeout := defaultMailTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
		if timeout <= 0 {
			return fmt.Errorf("notify: mail: %w", context.DeadlineExceeded)
		}
	}
	client, err := m.dial(timeout)
	if err != nil {
		return fmt.Errorf("notify: mail: client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify: mail: send: %w", err)
	}
	return nil
}

func (m *Mail) compose(n Notification) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("notify: mail: from: %w", err)
	}
	if err := msg.To(n.Recipient.Email); err != nil {
		return nil, fmt.Errorf("notify: mail: to user %d: %w", n.Recipient.ID, err)
	}
	msg.Subject(stripCRLF(Subject(n)))
	msg.SetBodyString(gomail.TypeTextPlain, Body(n))
	return msg, nil
}

// stripCRLF keeps user-controlled values on a single header line.
func stripCRLF(s string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(s)
}
