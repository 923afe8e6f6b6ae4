package notifier

import (
	"context"

	"github.com/pfrederiksen/race-alerts/internal/digest"
)

// Notifier defines the interface for delivering a digest
type Notifier interface {
	// Notify delivers msg once; failures are returned, not retried
	Notify(ctx context.Context, msg digest.Message) error
}
