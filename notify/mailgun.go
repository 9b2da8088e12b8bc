package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"
)

// MailgunConfig configures the [Mailgun] notifier.
type MailgunConfig struct {
	// Domain is the sending domain registered with Mailgun.
	Domain string

	// APIKey is the private API key.
	APIKey string

	// From is the sender address. Defaults to "visaslot <mailgun@{Domain}>".
	From string

	// To lists the recipients; every message goes to all of them.
	To []string

	// APIBase overrides the API endpoint, e.g. mailgun.APIBaseEU.
	APIBase string
}

// Mailgun sends messages as plain-text email.
type Mailgun struct {
	mg   *mailgun.MailgunImpl
	from string
	to   []string
}

// NewMailgun creates a [Mailgun] notifier.
func NewMailgun(cfg MailgunConfig) (*Mailgun, error) {
	if cfg.Domain == "" {
		return nil, errors.New("notify: mailgun domain is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("notify: mailgun api key is required")
	}
	if len(cfg.To) == 0 {
		return nil, fmt.Errorf("mailgun: %w", ErrNoRecipients)
	}

	mg := mailgun.NewMailgun(cfg.Domain, cfg.APIKey)
	if cfg.APIBase != "" {
		mg.SetAPIBase(cfg.APIBase)
	}

	from := cfg.From
	if from == "" {
		from = fmt.Sprintf("visaslot <mailgun@%s>", cfg.Domain)
	}

	return &Mailgun{
		mg:   mg,
		from: from,
		to:   append([]string(nil), cfg.To...),
	}, nil
}

// Notify sends msg to every configured recipient in one email.
func (m *Mailgun) Notify(ctx context.Context, msg Message) error {
	email := m.mg.NewMessage(m.from, msg.Subject, msg.Body, m.to...)

	if _, _, err := m.mg.Send(ctx, email); err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	return nil
}
