package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainbazaar/escrowd/internal/domain"
)

// BlobWriter is the upload surface the archiver needs. Writer satisfies it.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver periodically snapshots old audit events to object storage as
// newline-delimited JSON. Archived events are NOT deleted from the primary
// store; pruning is a separate, explicit operation run after an archive has
// been verified.
type Archiver struct {
	writer    BlobWriter
	audit     domain.AuditStore
	interval  time.Duration
	retain    time.Duration
	batchSize int
	logger    *slog.Logger

	// lastID is the cursor over the append-only log. It resets on restart;
	// re-uploaded batches overwrite their deterministic object keys.
	lastID int64
}

// NewArchiver creates an Archiver that runs every interval, archiving events
// older than retain, at most batchSize per object.
func NewArchiver(writer BlobWriter, audit domain.AuditStore, interval, retain time.Duration, batchSize int, logger *slog.Logger) *Archiver {
	if batchSize <= 0 {
		batchSize = 10_000
	}
	return &Archiver{
		writer:    writer,
		audit:     audit,
		interval:  interval,
		retain:    retain,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run executes the archive cycle on the configured interval until ctx is
// cancelled. One cycle runs immediately on start.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if n, err := a.ArchiveBefore(ctx, time.Now().UTC().Add(-a.retain)); err != nil {
			a.logger.ErrorContext(ctx, "archive cycle failed",
				slog.String("error", err.Error()),
			)
		} else if n > 0 {
			a.logger.InfoContext(ctx, "archive cycle complete",
				slog.Int64("events", n),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ArchiveBefore uploads all not-yet-archived audit events created strictly
// before the cutoff, in batches, and returns the number of events archived.
func (a *Archiver) ArchiveBefore(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		events, err := a.audit.ListRange(ctx, a.lastID, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive query: %w", err)
		}
		if len(events) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(events)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive marshal: %w", err)
		}

		path := archivePath(before, events[0].ID)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: archive upload: %w", err)
		}

		a.lastID = events[len(events)-1].ID
		total += int64(len(events))
		a.logger.InfoContext(ctx, "archived audit batch",
			slog.String("path", path),
			slog.Int("events", len(events)),
		)

		if len(events) < a.batchSize {
			return total, nil
		}
	}
}

// archivePath builds the object key for one archive batch, partitioned by the
// cutoff date and keyed by the batch's first event id. Batch boundaries are a
// pure function of the id cursor and batch size, so a restarted cursor
// regenerates identical keys and contents:
//
//	archive/audit/2026-08-23-1.jsonl
func archivePath(before time.Time, firstID int64) string {
	return fmt.Sprintf("archive/audit/%s-%d.jsonl", before.Format("2006-01-02"), firstID)
}

// archivedEvent is the JSONL row shape: the wire payload plus the store id.
type archivedEvent struct {
	ID       int64     `json:"id"`
	Kind     string    `json:"kind"`
	Contract string    `json:"contract"`
	TokenID  string    `json:"token_id"`
	Seller   string    `json:"seller"`
	Buyer    string    `json:"buyer,omitempty"`
	Price    string    `json:"price,omitempty"`
	At       time.Time `json:"at"`
}

// marshalJSONL serialises events as newline-delimited JSON, one compact line
// per event.
func marshalJSONL(events []domain.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, ev := range events {
		row := archivedEvent{
			ID:       ev.ID,
			Kind:     string(ev.Kind),
			Contract: ev.Key.Contract.Hex(),
			TokenID:  ev.Key.TokenID.String(),
			Seller:   ev.Seller.Hex(),
			At:       ev.CreatedAt,
		}
		if ev.Buyer != (common.Address{}) {
			row.Buyer = ev.Buyer.Hex()
		}
		if ev.Price != nil {
			row.Price = ev.Price.String()
		}
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
