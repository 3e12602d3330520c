package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/chainbazaar/escrowd/internal/domain"
)

const listingTTL = 5 * time.Minute

// ListingCache implements domain.ListingCache with JSON-serialized listings
// under short TTLs. Only the read API consults it; the engine invalidates it
// on every mutation, so a stale entry can never outlive the TTL or a write.
//
// Key schema:
//
//	listing:{contract}:{tokenID} - JSON listing
type ListingCache struct {
	rdb *redis.Client
}

// NewListingCache creates a ListingCache backed by the given Client.
func NewListingCache(c *Client) *ListingCache {
	return &ListingCache{rdb: c.Underlying()}
}

func listingCacheKey(key domain.AssetKey) string {
	return "listing:" + key.String()
}

// cachedListing is the JSON shape stored in Redis; big integers travel as
// decimal strings.
type cachedListing struct {
	Price     string    `json:"price"`
	Seller    string    `json:"seller"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Set stores a listing with the package TTL.
func (lc *ListingCache) Set(ctx context.Context, key domain.AssetKey, l domain.Listing) error {
	data, err := json.Marshal(cachedListing{
		Price:     l.Price.String(),
		Seller:    l.Seller.Hex(),
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal listing %s: %w", key, err)
	}

	if err := lc.rdb.Set(ctx, listingCacheKey(key), data, listingTTL).Err(); err != nil {
		return fmt.Errorf("redis: set listing %s: %w", key, err)
	}
	return nil
}

// Get retrieves a cached listing, returning domain.ErrNotFound on a miss.
func (lc *ListingCache) Get(ctx context.Context, key domain.AssetKey) (domain.Listing, error) {
	data, err := lc.rdb.Get(ctx, listingCacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("redis: get listing %s: %w", key, err)
	}

	var c cachedListing
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Listing{}, fmt.Errorf("redis: unmarshal listing %s: %w", key, err)
	}

	price, ok := new(big.Int).SetString(c.Price, 10)
	if !ok {
		return domain.Listing{}, fmt.Errorf("redis: listing %s: bad cached price %q", key, c.Price)
	}

	return domain.Listing{
		Price:     price,
		Seller:    common.HexToAddress(c.Seller),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}, nil
}

// Invalidate drops the cached entry for key.
func (lc *ListingCache) Invalidate(ctx context.Context, key domain.AssetKey) error {
	if err := lc.rdb.Del(ctx, listingCacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate listing %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ListingCache = (*ListingCache)(nil)
