// Package notify is the engine's hook into the marketplace notification
// system (email/push/WhatsApp delivery lives elsewhere). Calls are
// fire-and-forget: a failed notification is logged and never fails the
// payout operation that triggered it.
package notify

import (
	"context"
	"log"

	"github.com/tiketla/settlement/internal/domain"
)

// Notifier delivers payout state-change notifications to organizers.
type Notifier interface {
	PayoutApproved(ctx context.Context, payout *domain.Payout)
	PayoutPaid(ctx context.Context, payout *domain.Payout)
	PayoutFailed(ctx context.Context, payout *domain.Payout, reason string)
}

// LogNotifier writes notifications to the process log. Used standalone in
// development and as the fallback when the delivery service is down.
type LogNotifier struct{}

func (LogNotifier) PayoutApproved(_ context.Context, p *domain.Payout) {
	log.Printf("[notify] organizer %s: payout %s approved (%s)",
		p.OrganizerID, p.ID, p.Amount.FormatForDisplay("en-US"))
}

func (LogNotifier) PayoutPaid(_ context.Context, p *domain.Payout) {
	log.Printf("[notify] organizer %s: payout %s paid (%s)",
		p.OrganizerID, p.ID, p.Amount.FormatForDisplay("en-US"))
}

func (LogNotifier) PayoutFailed(_ context.Context, p *domain.Payout, reason string) {
	log.Printf("[notify] organizer %s: payout %s failed: %s",
		p.OrganizerID, p.ID, reason)
}
