package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetRegistry is the external authority holding title and transfer-approval
// state for each asset. The first three methods are read-only queries;
// Transfer mutates registry state and is an untrusted boundary call that may
// re-enter the engine before returning.
type AssetRegistry interface {
	OwnerOf(ctx context.Context, key AssetKey) (common.Address, error)
	IsApprovedForAll(ctx context.Context, contract, owner, operator common.Address) (bool, error)
	GetApproved(ctx context.Context, key AssetKey) (common.Address, error)
	// Transfer moves the asset from `from` to `to`. A refusal surfaces as an
	// error wrapping ErrTransferRejected.
	Transfer(ctx context.Context, key AssetKey, from, to common.Address) error
}

// PaymentBackend moves tendered funds. Like AssetRegistry.Transfer, Transfer
// is an untrusted boundary call. A refusal surfaces as an error wrapping
// ErrPaymentRejected.
type PaymentBackend interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
}
