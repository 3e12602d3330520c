package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/chainbazaar/escrowd/internal/domain"
)

func testKey(token int64) domain.AssetKey {
	return domain.NewAssetKey(
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		big.NewInt(token),
	)
}

func testListing(price int64, created time.Time) domain.Listing {
	return domain.Listing{
		Price:     big.NewInt(price),
		Seller:    common.HexToAddress("0x2222222222222222222222222222222222222222"),
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestListingStoreGetPutRemove(t *testing.T) {
	s := NewListingStore()
	ctx := context.Background()
	key := testKey(1)

	_, err := s.Get(ctx, key)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Put(ctx, key, testListing(100, time.Now())))

	l, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "100", l.Price.String())

	// Put overwrites.
	require.NoError(t, s.Put(ctx, key, testListing(200, time.Now())))
	l, err = s.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "200", l.Price.String())

	require.NoError(t, s.Remove(ctx, key))
	require.ErrorIs(t, s.Remove(ctx, key), domain.ErrNotFound)
}

func TestListingStoreListNewestFirst(t *testing.T) {
	s := NewListingStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, s.Put(ctx, testKey(i), testListing(i*100, base.Add(time.Duration(i)*time.Second))))
	}

	records, err := s.List(ctx, domain.ListOpts{Limit: 3})
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "5", records[0].Key.TokenID.String())
	require.Equal(t, "4", records[1].Key.TokenID.String())

	records, err = s.List(ctx, domain.ListOpts{Limit: 3, Offset: 3})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "2", records[0].Key.TokenID.String())

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), count)
}

func TestAuditStoreAppendAssignsIDs(t *testing.T) {
	s := NewAuditStore()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, s.Append(ctx, domain.Event{
			Kind:      domain.EventListingCreated,
			Key:       testKey(i),
			CreatedAt: time.Now().UTC(),
		}))
	}

	events, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	// Newest first.
	require.Equal(t, int64(3), events[0].ID)
	require.Equal(t, int64(1), events[2].ID)
}

func TestAuditStoreListRange(t *testing.T) {
	s := NewAuditStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, s.Append(ctx, domain.Event{
			Kind:      domain.EventListingCreated,
			Key:       testKey(i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	// Cutoff excludes the two newest events.
	cutoff := base.Add(3*time.Hour + time.Minute)

	events, err := s.ListRange(ctx, 0, cutoff, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int64(1), events[0].ID)

	// Resume from the last id.
	events, err = s.ListRange(ctx, events[len(events)-1].ID, cutoff, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, int64(3), events[0].ID)

	events, err = s.ListRange(ctx, 3, cutoff, 2)
	require.NoError(t, err)
	require.Empty(t, events)
}
