package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/obligation-engine/generic"
)

// InboxNotifier tells owners about runs that created records. Runs that
// created nothing stay silent.
type InboxNotifier struct {
	Inbox      generic.Inbox
	Recipients []string
	Clock      generic.Clock
}

func (n InboxNotifier) PublishSummary(ctx context.Context, result *generic.GenerationResult) error {
	if result.Created == 0 || len(n.Recipients) == 0 {
		return nil
	}

	title, message := Compose(result)
	now := n.now()

	var errs []error
	for _, r := range n.Recipients {
		err := n.Inbox.SaveNotification(ctx, generic.Notification{
			ID:        uuid.NewString(),
			Recipient: r,
			Title:     title,
			Message:   message,
			Type:      string(result.Kind),
			CreatedBy: result.Actor,
			CreatedAt: now,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", r, err))
		}
	}
	return errors.Join(errs...)
}

func (n InboxNotifier) now() time.Time {
	if n.Clock == nil {
		return time.Now()
	}
	return n.Clock.Now()
}

// Compose renders the notification title and body for a run.
func Compose(result *generic.GenerationResult) (title, message string) {
	var b strings.Builder
	switch result.Kind {
	case generic.KindBilling:
		title = "Billing records generated"
		fmt.Fprintf(&b, "%d bill(s) generated on %s", result.Created, result.ReferenceDate)
	case generic.KindPayroll:
		title = "Payroll generated"
		fmt.Fprintf(&b, "%d payroll record(s) generated for %04d-%02d",
			result.Created, result.ReferenceDate.Year(), int(result.ReferenceDate.Month()))
	default:
		title = "Records generated"
		fmt.Fprintf(&b, "%d record(s) generated on %s", result.Created, result.ReferenceDate)
	}
	for _, p := range result.Produced {
		label := p.Label
		if label == "" {
			label = string(p.EntityID)
		}
		fmt.Fprintf(&b, "\n- %s: %d", label, p.Created)
	}
	if result.Failed > 0 {
		fmt.Fprintf(&b, "\n%d failed, see generation runs", result.Failed)
	}
	return title, b.String()
}
