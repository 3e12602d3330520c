// Package domain defines the core types, store interfaces, and error
// taxonomy for the escrow listing engine.
package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AssetKey uniquely identifies a single asset: the collection contract plus
// the token id within it.
type AssetKey struct {
	Contract common.Address
	TokenID  *big.Int
}

// NewAssetKey builds an AssetKey from a contract address and token id.
func NewAssetKey(contract common.Address, tokenID *big.Int) AssetKey {
	return AssetKey{Contract: contract, TokenID: tokenID}
}

// ParseAssetKey parses the canonical "0x<contract>:<tokenid>" form produced
// by AssetKey.String. The token id is decimal.
func ParseAssetKey(s string) (AssetKey, error) {
	contractStr, tokenStr, ok := strings.Cut(s, ":")
	if !ok {
		return AssetKey{}, fmt.Errorf("domain: malformed asset key %q", s)
	}
	if !common.IsHexAddress(contractStr) {
		return AssetKey{}, fmt.Errorf("domain: invalid contract address %q", contractStr)
	}
	tokenID, ok := new(big.Int).SetString(tokenStr, 10)
	if !ok || tokenID.Sign() < 0 {
		return AssetKey{}, fmt.Errorf("domain: invalid token id %q", tokenStr)
	}
	return AssetKey{Contract: common.HexToAddress(contractStr), TokenID: tokenID}, nil
}

// String returns the canonical key form used for storage rows, cache keys,
// and lock keys: lowercase hex contract, colon, decimal token id.
func (k AssetKey) String() string {
	return strings.ToLower(k.Contract.Hex()) + ":" + k.TokenID.String()
}

// Valid reports whether the key carries a contract and a non-negative token id.
func (k AssetKey) Valid() bool {
	return k.Contract != (common.Address{}) && k.TokenID != nil && k.TokenID.Sign() >= 0
}

// Listing is a seller's standing offer to sell one asset at a fixed price.
// A listing exists if and only if a store row exists for its key; a stored
// row always has Price > 0.
type Listing struct {
	Price     *big.Int
	Seller    common.Address
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListingRecord pairs a listing with the key it is stored under, for list
// queries and event payloads.
type ListingRecord struct {
	Key     AssetKey
	Listing Listing
}
