package notifier

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pfrederiksen/race-alerts/internal/digest"
)

// DryRunNotifier prints what would be emailed without sending anything
type DryRunNotifier struct {
	out io.Writer
}

// NewDryRunNotifier creates a new dry-run notifier writing to out (stdout when nil)
func NewDryRunNotifier(out io.Writer) *DryRunNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &DryRunNotifier{out: out}
}

// Notify prints the digest that would be sent
func (n *DryRunNotifier) Notify(_ context.Context, msg digest.Message) error {
	if _, err := fmt.Fprintf(n.out, "--- Digest (dry run) ---\nSubject: %s\n\n%s\n", msg.Subject, msg.HTML); err != nil {
		return fmt.Errorf("writing dry run digest: %w", err)
	}
	fmt.Fprintf(n.out, "(Length: %d characters)\n\n", len(msg.HTML))
	return nil
}
