package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotOwner means the caller is not the registry's current title-holder.
	ErrNotOwner = errors.New("caller is not the asset owner")
	// ErrNoApproval means the owner has not authorized the engine to transfer
	// the asset, neither blanket nor per-token.
	ErrNoApproval = errors.New("engine is not approved to transfer the asset")
	// ErrAlreadyListed means a listing already exists for the key.
	ErrAlreadyListed = errors.New("asset is already listed")
	// ErrNotListed means no listing exists for the key.
	ErrNotListed = errors.New("asset is not listed")
	// ErrInvalidPrice means the price is missing, zero, or negative.
	ErrInvalidPrice = errors.New("price must be strictly positive")
	// ErrIncorrectPayment means the tendered amount does not equal the price.
	ErrIncorrectPayment = errors.New("payment does not match listing price")
	// ErrTransferRejected means the asset registry refused the transfer.
	ErrTransferRejected = errors.New("asset transfer rejected")
	// ErrPaymentRejected means the payment backend refused the transfer.
	ErrPaymentRejected = errors.New("payment transfer rejected")

	// ErrNotFound is returned by stores for missing rows.
	ErrNotFound = errors.New("not found")
	// ErrLockHeld is returned when a per-key lock is already held.
	ErrLockHeld = errors.New("lock already held")
)

// SettlementFault is the unrecoverable purchase outcome: the asset leg
// completed, the payment leg failed, and reversing the asset leg also failed.
// It is a distinct type, never matched by the recoverable sentinels above, so
// callers can separate "retry the purchase" from "page an operator".
type SettlementFault struct {
	Key    AssetKey
	Seller common.Address
	Buyer  common.Address
	Amount *big.Int
	// LegErr is the payment failure that triggered compensation.
	LegErr error
	// CompErr is the failure of the compensating asset reversal.
	CompErr error
}

func (f *SettlementFault) Error() string {
	return fmt.Sprintf(
		"settlement fault on %s: asset moved to %s but payment of %s to %s failed (%v); reversal failed (%v)",
		f.Key, f.Buyer.Hex(), f.Amount, f.Seller.Hex(), f.LegErr, f.CompErr,
	)
}

// Unwrap exposes the payment-leg error for errors.Is inspection.
func (f *SettlementFault) Unwrap() error { return f.LegErr }
