package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainbazaar/escrowd/internal/domain"
)

// PaymentSwap executes the coupled asset-for-payment transfer of a purchase.
// It is invoked only after the listing row has been removed from the store,
// so a reentrant callback from either boundary call observes the key as
// unlisted and fails fast.
//
// Leg order is asset first, payment second. If the payment leg fails the
// asset leg is compensated by transferring the asset back to the seller; if
// that reversal also fails the swap surfaces a *domain.SettlementFault, which
// callers must treat as fatal rather than recoverable.
type PaymentSwap struct {
	registry domain.AssetRegistry
	payments domain.PaymentBackend
	logger   *slog.Logger
}

// NewPaymentSwap creates a PaymentSwap over the given boundary collaborators.
func NewPaymentSwap(registry domain.AssetRegistry, payments domain.PaymentBackend, logger *slog.Logger) *PaymentSwap {
	return &PaymentSwap{
		registry: registry,
		payments: payments,
		logger:   logger.With(slog.String("component", "swap")),
	}
}

// Settle moves the asset from l.Seller to buyer and l.Price to l.Seller as a
// single logical unit. On a recoverable failure nothing has moved when Settle
// returns; the caller is responsible for restoring the listing row.
func (s *PaymentSwap) Settle(ctx context.Context, key domain.AssetKey, l domain.Listing, buyer common.Address) error {
	if err := s.registry.Transfer(ctx, key, l.Seller, buyer); err != nil {
		return fmt.Errorf("swap: asset leg %s: %w", key, err)
	}

	if err := s.payments.Transfer(ctx, l.Seller, l.Price); err != nil {
		s.logger.WarnContext(ctx, "payment leg failed, reversing asset leg",
			slog.String("key", key.String()),
			slog.String("seller", l.Seller.Hex()),
			slog.String("buyer", buyer.Hex()),
			slog.String("error", err.Error()),
		)
		if rerr := s.registry.Transfer(ctx, key, buyer, l.Seller); rerr != nil {
			return &domain.SettlementFault{
				Key:     key,
				Seller:  l.Seller,
				Buyer:   buyer,
				Amount:  l.Price,
				LegErr:  err,
				CompErr: rerr,
			}
		}
		return fmt.Errorf("swap: payment leg %s: %w", key, err)
	}

	return nil
}
