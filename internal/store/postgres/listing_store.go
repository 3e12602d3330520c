package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainbazaar/escrowd/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// ListingStore implements domain.ListingStore using PostgreSQL. Big integers
// (token ids, prices) travel as decimal strings into NUMERIC(78,0) columns;
// the schema enforces price > 0 as a second line of defence behind the
// engine's own validation.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

func contractCol(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// Get retrieves the listing stored under key.
func (s *ListingStore) Get(ctx context.Context, key domain.AssetKey) (domain.Listing, error) {
	const query = `
		SELECT price::text, seller, created_at, updated_at
		FROM listings
		WHERE contract = $1 AND token_id = $2`

	var (
		l         domain.Listing
		priceStr  string
		sellerStr string
	)
	err := s.pool.QueryRow(ctx, query, contractCol(key.Contract), key.TokenID.String()).
		Scan(&priceStr, &sellerStr, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %s: %w", key, err)
	}

	price, ok := new(big.Int).SetString(priceStr, 10)
	if !ok {
		return domain.Listing{}, fmt.Errorf("postgres: get listing %s: bad price %q", key, priceStr)
	}
	l.Price = price
	l.Seller = common.HexToAddress(sellerStr)
	return l, nil
}

// Put inserts or overwrites the listing stored under key.
func (s *ListingStore) Put(ctx context.Context, key domain.AssetKey, l domain.Listing) error {
	const query = `
		INSERT INTO listings (contract, token_id, price, seller, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (contract, token_id) DO UPDATE SET
			price      = EXCLUDED.price,
			seller     = EXCLUDED.seller,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		contractCol(key.Contract), key.TokenID.String(),
		l.Price.String(), contractCol(l.Seller),
		l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put listing %s: %w", key, err)
	}
	return nil
}

// Remove deletes the listing stored under key.
func (s *ListingStore) Remove(ctx context.Context, key domain.AssetKey) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM listings WHERE contract = $1 AND token_id = $2`,
		contractCol(key.Contract), key.TokenID.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: remove listing %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns listings ordered by creation time, newest first.
func (s *ListingStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.ListingRecord, error) {
	query := `
		SELECT contract, token_id::text, price::text, seller, created_at, updated_at
		FROM listings
		ORDER BY created_at DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	defer rows.Close()

	var recs []domain.ListingRecord
	for rows.Next() {
		var (
			rec                 domain.ListingRecord
			contractStr         string
			tokenStr, priceStr  string
			sellerStr           string
		)
		if err := rows.Scan(
			&contractStr, &tokenStr, &priceStr, &sellerStr,
			&rec.Listing.CreatedAt, &rec.Listing.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}

		tokenID, ok := new(big.Int).SetString(tokenStr, 10)
		if !ok {
			return nil, fmt.Errorf("postgres: scan listing: bad token id %q", tokenStr)
		}
		price, ok := new(big.Int).SetString(priceStr, 10)
		if !ok {
			return nil, fmt.Errorf("postgres: scan listing: bad price %q", priceStr)
		}

		rec.Key = domain.AssetKey{Contract: common.HexToAddress(contractStr), TokenID: tokenID}
		rec.Listing.Price = price
		rec.Listing.Seller = common.HexToAddress(sellerStr)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list listings rows: %w", err)
	}
	return recs, nil
}

// Count returns the number of stored listings.
func (s *ListingStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count listings: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.ListingStore = (*ListingStore)(nil)
