package eth

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/chainbazaar/escrowd/internal/domain"
)

// erc721ABIJSON covers the slice of ERC-721 the engine consumes: title and
// approval queries plus transferFrom.
const erc721ABIJSON = `[
	{"name":"ownerOf","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"getApproved","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"isApprovedForAll","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]}
]`

// Registry implements domain.AssetRegistry over ERC-721 contracts.
type Registry struct {
	client *Client
	abi    abi.ABI
}

// NewRegistry creates a Registry using the given client.
func NewRegistry(client *Client) (*Registry, error) {
	parsed, err := abi.JSON(strings.NewReader(erc721ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("eth: parse erc721 abi: %w", err)
	}
	return &Registry{client: client, abi: parsed}, nil
}

// OwnerOf returns the current title-holder of the asset.
func (r *Registry) OwnerOf(ctx context.Context, key domain.AssetKey) (common.Address, error) {
	input, err := r.abi.Pack("ownerOf", key.TokenID)
	if err != nil {
		return common.Address{}, fmt.Errorf("eth: pack ownerOf: %w", err)
	}

	out, err := r.client.call(ctx, key.Contract, input)
	if err != nil {
		return common.Address{}, err
	}

	results, err := r.abi.Unpack("ownerOf", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("eth: unpack ownerOf: %w", err)
	}
	return results[0].(common.Address), nil
}

// IsApprovedForAll reports whether owner granted operator a blanket transfer
// authorization on the contract.
func (r *Registry) IsApprovedForAll(ctx context.Context, contract, owner, operator common.Address) (bool, error) {
	input, err := r.abi.Pack("isApprovedForAll", owner, operator)
	if err != nil {
		return false, fmt.Errorf("eth: pack isApprovedForAll: %w", err)
	}

	out, err := r.client.call(ctx, contract, input)
	if err != nil {
		return false, err
	}

	results, err := r.abi.Unpack("isApprovedForAll", out)
	if err != nil {
		return false, fmt.Errorf("eth: unpack isApprovedForAll: %w", err)
	}
	return results[0].(bool), nil
}

// GetApproved returns the single address approved for the token, if any.
func (r *Registry) GetApproved(ctx context.Context, key domain.AssetKey) (common.Address, error) {
	input, err := r.abi.Pack("getApproved", key.TokenID)
	if err != nil {
		return common.Address{}, fmt.Errorf("eth: pack getApproved: %w", err)
	}

	out, err := r.client.call(ctx, key.Contract, input)
	if err != nil {
		return common.Address{}, err
	}

	results, err := r.abi.Unpack("getApproved", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("eth: unpack getApproved: %w", err)
	}
	return results[0].(common.Address), nil
}

// Transfer moves the asset from `from` to `to` with an operator-signed
// transferFrom. Any refusal by the contract surfaces as
// domain.ErrTransferRejected.
func (r *Registry) Transfer(ctx context.Context, key domain.AssetKey, from, to common.Address) error {
	input, err := r.abi.Pack("transferFrom", from, to, key.TokenID)
	if err != nil {
		return fmt.Errorf("eth: pack transferFrom: %w", err)
	}

	if err := r.client.transact(ctx, key.Contract, input, nil); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrTransferRejected, key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AssetRegistry = (*Registry)(nil)
