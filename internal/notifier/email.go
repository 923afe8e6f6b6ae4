package notifier

import (
	"context"
	"fmt"

	"github.com/pfrederiksen/race-alerts/internal/digest"
	"github.com/pfrederiksen/race-alerts/internal/email"
	"github.com/pfrederiksen/race-alerts/internal/logger"
)

// Sender is the subset of the email client the notifier needs
type Sender interface {
	Send(ctx context.Context, msg email.Message) (string, error)
}

// EmailNotifier sends digests by email
type EmailNotifier struct {
	sender Sender
	from   string
	to     []string
	log    *logger.Logger
}

// NewEmailNotifier creates a notifier sending from from to every address in to
func NewEmailNotifier(sender Sender, from string, to []string, log *logger.Logger) (*EmailNotifier, error) {
	if sender == nil {
		return nil, fmt.Errorf("email sender is required")
	}
	if from == "" || len(to) == 0 {
		return nil, fmt.Errorf("sender address and recipients are required")
	}
	if log == nil {
		log = logger.Default()
	}
	return &EmailNotifier{
		sender: sender,
		from:   from,
		to:     to,
		log:    log.With(logger.Fields{"component": "notifier"}),
	}, nil
}

// Notify sends msg to all recipients in a single API call
func (n *EmailNotifier) Notify(ctx context.Context, msg digest.Message) error {
	id, err := n.sender.Send(ctx, email.Message{
		From:    n.from,
		To:      n.to,
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("sending digest email: %w", err)
	}

	n.log.Info("Digest email sent", logger.Fields{
		"email_id":   id,
		"recipients": len(n.to),
		"subject":    msg.Subject,
	})
	return nil
}
