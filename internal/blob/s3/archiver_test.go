package s3blob

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/chainbazaar/escrowd/internal/domain"
	"github.com/chainbazaar/escrowd/internal/store/memory"
)

type fakeBlobWriter struct {
	objects map[string]string
}

func newFakeBlobWriter() *fakeBlobWriter {
	return &fakeBlobWriter{objects: make(map[string]string)}
}

func (w *fakeBlobWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = string(b)
	return nil
}

func seedAudit(t *testing.T, n int, base time.Time) *memory.AuditStore {
	t.Helper()
	audit := memory.NewAuditStore()
	for i := 1; i <= n; i++ {
		require.NoError(t, audit.Append(context.Background(), domain.Event{
			Kind: domain.EventListingCreated,
			Key: domain.NewAssetKey(
				common.HexToAddress("0x1111111111111111111111111111111111111111"),
				big.NewInt(int64(i)),
			),
			Seller:    common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Price:     big.NewInt(int64(i) * 100),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	return audit
}

func TestArchiveBeforeBatches(t *testing.T) {
	base := time.Now().UTC().Add(-time.Hour)
	audit := seedAudit(t, 5, base)
	writer := newFakeBlobWriter()
	arch := NewArchiver(writer, audit, time.Hour, 0, 2, slog.New(slog.DiscardHandler))

	// Cutoff admits the first four events only.
	cutoff := base.Add(4*time.Minute + time.Second)
	n, err := arch.ArchiveBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(4), n)

	// Two full batches of two, keyed by each batch's first event id.
	require.Len(t, writer.objects, 2)
	day := cutoff.Format("2006-01-02")
	first, ok := writer.objects["archive/audit/"+day+"-1.jsonl"]
	require.True(t, ok)
	require.Equal(t, 2, strings.Count(first, "\n"))
	require.Contains(t, first, `"id":1`)
	require.Contains(t, first, `"price":"100"`)

	second, ok := writer.objects["archive/audit/"+day+"-3.jsonl"]
	require.True(t, ok)
	require.Contains(t, second, `"id":4`)
}

func TestArchiveBeforeResumesFromCursor(t *testing.T) {
	base := time.Now().UTC().Add(-time.Hour)
	audit := seedAudit(t, 3, base)
	writer := newFakeBlobWriter()
	arch := NewArchiver(writer, audit, time.Hour, 0, 10, slog.New(slog.DiscardHandler))

	cutoff := base.Add(10 * time.Minute)
	n, err := arch.ArchiveBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	// A second cycle with no new events uploads nothing.
	n, err = arch.ArchiveBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, writer.objects, 1)

	// New events past the cursor are picked up without re-reading old ones.
	require.NoError(t, audit.Append(context.Background(), domain.Event{
		Kind: domain.EventListingCanceled,
		Key: domain.NewAssetKey(
			common.HexToAddress("0x1111111111111111111111111111111111111111"),
			big.NewInt(99),
		),
		Seller:    common.HexToAddress("0x2222222222222222222222222222222222222222"),
		CreatedAt: base.Add(5 * time.Minute),
	}))

	n, err = arch.ArchiveBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Len(t, writer.objects, 2)

	latest := writer.objects["archive/audit/"+cutoff.Format("2006-01-02")+"-4.jsonl"]
	require.Contains(t, latest, `"id":4`)
	require.Contains(t, latest, `"kind":"listing_canceled"`)
	require.NotContains(t, latest, `"price"`)
}

func TestMarshalJSONLEmpty(t *testing.T) {
	buf, err := marshalJSONL(nil)
	require.NoError(t, err)
	require.Empty(t, buf)
}
