package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainbazaar/escrowd/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// AuditStore implements domain.AuditStore using PostgreSQL. The audit_log
// table is append-only; nothing in this package updates or deletes rows.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Append records one mutation event.
func (s *AuditStore) Append(ctx context.Context, ev domain.Event) error {
	const query = `
		INSERT INTO audit_log (kind, contract, token_id, seller, buyer, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	var buyer *string
	if ev.Buyer != (common.Address{}) {
		b := contractCol(ev.Buyer)
		buyer = &b
	}
	var price *string
	if ev.Price != nil {
		p := ev.Price.String()
		price = &p
	}

	_, err := s.pool.Exec(ctx, query,
		string(ev.Kind),
		contractCol(ev.Key.Contract), ev.Key.TokenID.String(),
		contractCol(ev.Seller), buyer, price,
		ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append audit event %s: %w", ev.Kind, err)
	}
	return nil
}

const auditCols = `id, kind, contract, token_id::text, seller, buyer, price::text, created_at`

// List returns events newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT ` + auditCols + ` FROM audit_log ORDER BY id DESC`
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
		return nil, fmt.Errorf("postgres: list audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRange returns events with id greater than afterID and created strictly
// before the cutoff, oldest first.
func (s *AuditStore) ListRange(ctx context.Context, afterID int64, before time.Time, limit int) ([]domain.Event, error) {
	query := `SELECT ` + auditCols + ` FROM audit_log WHERE id > $1 AND created_at < $2 ORDER BY id ASC`
	args := []any{afterID, before}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit events before %s: %w", before, err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var (
			ev                  domain.Event
			kind                string
			contractStr, token  string
			sellerStr           string
			buyerStr, priceStr  *string
		)
		if err := rows.Scan(
			&ev.ID, &kind, &contractStr, &token,
			&sellerStr, &buyerStr, &priceStr, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan audit event: %w", err)
		}

		tokenID, ok := new(big.Int).SetString(token, 10)
		if !ok {
			return nil, fmt.Errorf("postgres: scan audit event: bad token id %q", token)
		}
		ev.Kind = domain.EventKind(kind)
		ev.Key = domain.AssetKey{Contract: common.HexToAddress(contractStr), TokenID: tokenID}
		ev.Seller = common.HexToAddress(sellerStr)
		if buyerStr != nil {
			ev.Buyer = common.HexToAddress(*buyerStr)
		}
		if priceStr != nil {
			price, ok := new(big.Int).SetString(*priceStr, 10)
			if !ok {
				return nil, fmt.Errorf("postgres: scan audit event: bad price %q", *priceStr)
			}
			ev.Price = price
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: audit events rows: %w", err)
	}
	return events, nil
}

// Compile-time interface check.
var _ domain.AuditStore = (*AuditStore)(nil)
