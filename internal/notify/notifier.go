// Package notify delivers operator alerts over Telegram and Discord. The
// engine raises an alert when a settlement fault leaves an asset outside
// custody; those must reach a human.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chainbazaar/escrowd/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Alerter dispatches alerts to one or more Senders. A single sender failure
// does not prevent delivery to the remaining senders.
type Alerter struct {
	senders []Sender
	logger  *slog.Logger
}

// NewAlerter creates an Alerter delivering to the given senders. An Alerter
// with no senders is valid and drops everything.
func NewAlerter(senders []Sender, logger *slog.Logger) *Alerter {
	return &Alerter{
		senders: senders,
		logger:  logger.With(slog.String("component", "notify")),
	}
}

// SettlementFault alerts operators that a purchase failed after the asset
// left custody and the reversal also failed.
func (a *Alerter) SettlementFault(ctx context.Context, fault *domain.SettlementFault) error {
	msg := fmt.Sprintf(
		"asset: %s\nseller: %s\nbuyer: %s\namount: %s\nleg error: %v\nreversal error: %v",
		fault.Key, fault.Seller.Hex(), fault.Buyer.Hex(), fault.Amount, fault.LegErr, fault.CompErr,
	)
	return a.Alert(ctx, "SETTLEMENT FAULT: manual intervention required", msg)
}

// Alert sends a notification to all senders.
func (a *Alerter) Alert(ctx context.Context, title, message string) error {
	if len(a.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range a.senders {
		if err := s.Send(ctx, title, message); err != nil {
			a.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		a.logger.DebugContext(ctx, "alert sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
