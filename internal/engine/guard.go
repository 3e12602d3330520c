package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainbazaar/escrowd/internal/domain"
)

// OwnershipGuard verifies, against the external asset registry, that a caller
// is the current title-holder of an asset and has authorized the engine to
// transfer it. Both checks are read-only queries; the guard never mutates
// registry state.
type OwnershipGuard struct {
	registry domain.AssetRegistry
	operator common.Address
}

// NewOwnershipGuard creates a guard. operator is the engine's own transfer
// identity, i.e. the address that must hold the owner's approval.
func NewOwnershipGuard(registry domain.AssetRegistry, operator common.Address) *OwnershipGuard {
	return &OwnershipGuard{registry: registry, operator: operator}
}

// VerifyOwnerAndApproval returns nil when caller owns the asset and the
// engine holds either a blanket or a per-token transfer approval. It returns
// domain.ErrNotOwner or domain.ErrNoApproval on precondition failure, and a
// wrapped infrastructure error when the registry itself cannot be queried.
func (g *OwnershipGuard) VerifyOwnerAndApproval(ctx context.Context, key domain.AssetKey, caller common.Address) error {
	owner, err := g.registry.OwnerOf(ctx, key)
	if err != nil {
		return fmt.Errorf("guard: owner of %s: %w", key, err)
	}
	if owner != caller {
		return domain.ErrNotOwner
	}

	ok, err := g.registry.IsApprovedForAll(ctx, key.Contract, owner, g.operator)
	if err != nil {
		return fmt.Errorf("guard: approval for all %s: %w", key, err)
	}
	if ok {
		return nil
	}

	approved, err := g.registry.GetApproved(ctx, key)
	if err != nil {
		return fmt.Errorf("guard: approved of %s: %w", key, err)
	}
	if approved != g.operator {
		return domain.ErrNoApproval
	}
	return nil
}
