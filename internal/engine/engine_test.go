package engine

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/chainbazaar/escrowd/internal/domain"
	"github.com/chainbazaar/escrowd/internal/lock"
	"github.com/chainbazaar/escrowd/internal/store/memory"
)

var (
	seller   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	buyer    = common.HexToAddress("0x2000000000000000000000000000000000000002")
	operator = common.HexToAddress("0x3000000000000000000000000000000000000003")
	contract = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

// fakeRegistry simulates an asset registry with in-memory title and approval
// state. Hooks allow individual transfers to fail or to reenter the engine.
type fakeRegistry struct {
	mu         sync.Mutex
	owners     map[string]common.Address
	blanket    map[common.Address]bool
	perToken   map[string]common.Address
	onTransfer func(key domain.AssetKey, from, to common.Address) error
	transfers  int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		owners:   make(map[string]common.Address),
		blanket:  make(map[common.Address]bool),
		perToken: make(map[string]common.Address),
	}
}

func (r *fakeRegistry) OwnerOf(_ context.Context, key domain.AssetKey) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owners[key.String()], nil
}

func (r *fakeRegistry) IsApprovedForAll(_ context.Context, _ common.Address, owner, op common.Address) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return op == operator && r.blanket[owner], nil
}

func (r *fakeRegistry) GetApproved(_ context.Context, key domain.AssetKey) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perToken[key.String()], nil
}

func (r *fakeRegistry) Transfer(_ context.Context, key domain.AssetKey, from, to common.Address) error {
	if r.onTransfer != nil {
		if err := r.onTransfer(key, from, to); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers++
	if r.owners[key.String()] != from {
		return errors.New("fake registry: from is not the owner")
	}
	r.owners[key.String()] = to
	return nil
}

// fakePayments records payouts and can be made to fail.
type fakePayments struct {
	mu        sync.Mutex
	transfers []string
	fail      error
}

func (p *fakePayments) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	if p.fail != nil {
		return p.fail
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transfers = append(p.transfers, to.Hex()+"="+amount.String())
	return nil
}

type harness struct {
	engine   *Engine
	listings *memory.ListingStore
	audit    *memory.AuditStore
	registry *fakeRegistry
	payments *fakePayments
	key      domain.AssetKey
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	registry := newFakeRegistry()
	payments := &fakePayments{}
	listings := memory.NewListingStore()
	audit := memory.NewAuditStore()
	logger := slog.New(slog.DiscardHandler)

	eng := New(
		listings,
		NewOwnershipGuard(registry, operator),
		NewPaymentSwap(registry, payments, logger),
		lock.NewKeyMutex(),
		audit,
		logger,
	)

	key := domain.NewAssetKey(contract, big.NewInt(7))
	registry.owners[key.String()] = seller
	registry.blanket[seller] = true

	return &harness{
		engine:   eng,
		listings: listings,
		audit:    audit,
		registry: registry,
		payments: payments,
		key:      key,
	}
}

func (h *harness) list(t *testing.T, price int64) {
	t.Helper()
	require.NoError(t, h.engine.CreateListing(context.Background(), seller, h.key, big.NewInt(price)))
}

func TestCreateListing(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1000)

	l, err := h.listings.Get(context.Background(), h.key)
	require.NoError(t, err)
	require.Equal(t, "1000", l.Price.String())
	require.Equal(t, seller, l.Seller)

	events, err := h.audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventListingCreated, events[0].Kind)
}

func TestCreateListingRejectsNonPositivePrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.ErrorIs(t, h.engine.CreateListing(ctx, seller, h.key, big.NewInt(0)), domain.ErrInvalidPrice)
	require.ErrorIs(t, h.engine.CreateListing(ctx, seller, h.key, big.NewInt(-5)), domain.ErrInvalidPrice)
	require.ErrorIs(t, h.engine.CreateListing(ctx, seller, h.key, nil), domain.ErrInvalidPrice)

	_, err := h.listings.Get(ctx, h.key)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateListingAlreadyListed(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1000)

	err := h.engine.CreateListing(context.Background(), seller, h.key, big.NewInt(2000))
	require.ErrorIs(t, err, domain.ErrAlreadyListed)

	// Price unchanged.
	l, err := h.listings.Get(context.Background(), h.key)
	require.NoError(t, err)
	require.Equal(t, "1000", l.Price.String())
}

func TestCreateListingNotOwner(t *testing.T) {
	h := newHarness(t)

	err := h.engine.CreateListing(context.Background(), buyer, h.key, big.NewInt(1000))
	require.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestCreateListingNoApproval(t *testing.T) {
	h := newHarness(t)
	h.registry.blanket[seller] = false

	err := h.engine.CreateListing(context.Background(), seller, h.key, big.NewInt(1000))
	require.ErrorIs(t, err, domain.ErrNoApproval)
}

func TestCreateListingPerTokenApproval(t *testing.T) {
	h := newHarness(t)
	h.registry.blanket[seller] = false
	h.registry.perToken[h.key.String()] = operator

	require.NoError(t, h.engine.CreateListing(context.Background(), seller, h.key, big.NewInt(1000)))
}

func TestUpdateListing(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1000)

	require.NoError(t, h.engine.UpdateListing(context.Background(), seller, h.key, big.NewInt(2500)))

	l, err := h.listings.Get(context.Background(), h.key)
	require.NoError(t, err)
	require.Equal(t, "2500", l.Price.String())
}

func TestUpdateListingNotListed(t *testing.T) {
	h := newHarness(t)

	err := h.engine.UpdateListing(context.Background(), seller, h.key, big.NewInt(2500))
	require.ErrorIs(t, err, domain.ErrNotListed)
}

// A listing whose seller lost title can no longer be repriced by the original
// seller, but the new owner can cancel it.
func TestUpdateListingAfterTitleChange(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1000)

	h.registry.owners[h.key.String()] = buyer

	err := h.engine.UpdateListing(context.Background(), seller, h.key, big.NewInt(2500))
	require.ErrorIs(t, err, domain.ErrNotOwner)

	h.registry.blanket[buyer] = true
	require.NoError(t, h.engine.CancelListing(context.Background(), buyer, h.key))
}

func TestUpdateListingPriceCheckedBeforeGuard(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1000)

	// The invalid price must win over the ownership failure.
	err := h.engine.UpdateListing(context.Background(), buyer, h.key, big.NewInt(0))
	require.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestCancelListing(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1000)

	require.NoError(t, h.engine.CancelListing(context.Background(), seller, h.key))

	_, err := h.listings.Get(context.Background(), h.key)
	require.ErrorIs(t, err, domain.ErrNotFound)

	// No transfer of any kind happened.
	require.Zero(t, h.registry.transfers)
	require.Empty(t, h.payments.transfers)
}

func TestCancelListingNotListed(t *testing.T) {
	h := newHarness(t)

	err := h.engine.CancelListing(context.Background(), seller, h.key)
	require.ErrorIs(t, err, domain.ErrNotListed)
}

func TestPurchase(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1000)

	require.NoError(t, h.engine.PurchaseListing(context.Background(), buyer, h.key, big.NewInt(1000)))

	// Asset moved to the buyer, payment moved to the seller, listing gone.
	require.Equal(t, buyer, h.registry.owners[h.key.String()])
	require.Equal(t, []string{seller.Hex() + "=1000"}, h.payments.transfers)

	_, err := h.listings.Get(context.Background(), h.key)
	require.ErrorIs(t, err, domain.ErrNotFound)

	events, err := h.audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Equal(t, domain.EventListingPurchased, events[0].Kind)
	require.Equal(t, buyer, events[0].Buyer)
}

func TestPurchaseIncorrectPayment(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1000)
	ctx := context.Background()

	require.ErrorIs(t, h.engine.PurchaseListing(ctx, buyer, h.key, big.NewInt(999)), domain.ErrIncorrectPayment)
	require.ErrorIs(t, h.engine.PurchaseListing(ctx, buyer, h.key, big.NewInt(1001)), domain.ErrIncorrectPayment)
	require.ErrorIs(t, h.engine.PurchaseListing(ctx, buyer, h.key, nil), domain.ErrIncorrectPayment)

	// Listing intact, nothing moved.
	require.Equal(t, seller, h.registry.owners[h.key.String()])
	require.Empty(t, h.payments.transfers)
	_, err := h.listings.Get(ctx, h.key)
	require.NoError(t, err)
}

func TestPurchaseNotListed(t *testing.T) {
	h := newHarness(t)

	err := h.engine.PurchaseListing(context.Background(), buyer, h.key, big.NewInt(1000))
	require.ErrorIs(t, err, domain.ErrNotListed)
}

// A reentrant purchase attempt from inside the asset transfer must observe
// the listing as already removed rather than double-selling it.
func TestPurchaseReentrancy(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1000)
	ctx := context.Background()

	var reentrantErr error
	called := false
	h.registry.onTransfer = func(key domain.AssetKey, from, to common.Address) error {
		if !called {
			called = true
			reentrantErr = h.engine.PurchaseListing(ctx, buyer, key, big.NewInt(1000))
		}
		return nil
	}

	require.NoError(t, h.engine.PurchaseListing(ctx, buyer, h.key, big.NewInt(1000)))
	require.True(t, called)
	require.ErrorIs(t, reentrantErr, domain.ErrNotListed)

	// Exactly one settlement happened.
	require.Len(t, h.payments.transfers, 1)
}

func TestPurchaseAssetLegFails(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1000)
	ctx := context.Background()

	h.registry.onTransfer = func(domain.AssetKey, common.Address, common.Address) error {
		return domain.ErrTransferRejected
	}

	err := h.engine.PurchaseListing(ctx, buyer, h.key, big.NewInt(1000))
	require.ErrorIs(t, err, domain.ErrTransferRejected)

	// The listing was restored and nothing moved.
	l, getErr := h.listings.Get(ctx, h.key)
	require.NoError(t, getErr)
	require.Equal(t, "1000", l.Price.String())
	require.Equal(t, seller, h.registry.owners[h.key.String()])
	require.Empty(t, h.payments.transfers)
}

func TestPurchasePaymentLegFailsAndReverses(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1000)
	ctx := context.Background()

	h.payments.fail = domain.ErrPaymentRejected

	err := h.engine.PurchaseListing(ctx, buyer, h.key, big.NewInt(1000))
	require.ErrorIs(t, err, domain.ErrPaymentRejected)

	// Asset is back with the seller and the listing was restored.
	require.Equal(t, seller, h.registry.owners[h.key.String()])
	l, getErr := h.listings.Get(ctx, h.key)
	require.NoError(t, getErr)
	require.Equal(t, "1000", l.Price.String())

	// The failed purchase emitted no audit event.
	events, auditErr := h.audit.List(ctx, domain.ListOpts{})
	require.NoError(t, auditErr)
	require.Len(t, events, 1) // only listing_created
}

func TestPurchaseSettlementFault(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1000)
	ctx := context.Background()

	h.payments.fail = domain.ErrPaymentRejected
	h.registry.onTransfer = func(_ domain.AssetKey, from, _ common.Address) error {
		if from == buyer {
			// The compensating reversal fails.
			return errors.New("registry unavailable")
		}
		return nil
	}

	err := h.engine.PurchaseListing(ctx, buyer, h.key, big.NewInt(1000))

	var fault *domain.SettlementFault
	require.ErrorAs(t, err, &fault)
	require.Equal(t, h.key, fault.Key)
	require.Equal(t, seller, fault.Seller)
	require.Equal(t, buyer, fault.Buyer)

	// The listing stays removed: the asset is outside custody and must not be
	// resellable until an operator intervenes.
	_, getErr := h.listings.Get(ctx, h.key)
	require.ErrorIs(t, getErr, domain.ErrNotFound)
}

// If the key is relisted while a failed purchase is being compensated, the
// newer listing wins and is not clobbered by the restore.
func TestPurchaseRestoreSkippedWhenRelisted(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1000)
	ctx := context.Background()

	h.payments.fail = domain.ErrPaymentRejected
	h.registry.blanket[buyer] = true
	relisted := false
	h.registry.onTransfer = func(_ domain.AssetKey, from, _ common.Address) error {
		if from == buyer && !relisted {
			relisted = true
			// The buyer briefly holds title mid-reversal and relists at a new
			// price before the reversal completes.
			require.NoError(t, h.engine.CreateListing(ctx, buyer, h.key, big.NewInt(9999)))
		}
		return nil
	}

	err := h.engine.PurchaseListing(ctx, buyer, h.key, big.NewInt(1000))
	require.ErrorIs(t, err, domain.ErrPaymentRejected)

	l, getErr := h.listings.Get(ctx, h.key)
	require.NoError(t, getErr)
	require.Equal(t, "9999", l.Price.String())
	require.Equal(t, buyer, l.Seller)
}

func TestPurchaseAnyoneCanBuy(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1000)

	// The buyer holds no title and no approvals; neither is required.
	other := common.HexToAddress("0x5000000000000000000000000000000000000005")
	require.NoError(t, h.engine.PurchaseListing(context.Background(), other, h.key, big.NewInt(1000)))
	require.Equal(t, other, h.registry.owners[h.key.String()])
}

func TestSinkReceivesEvents(t *testing.T) {
	h := newHarness(t)

	var got []domain.Event
	h.engine.AddSink(sinkFunc(func(_ context.Context, ev domain.Event) {
		got = append(got, ev)
	}))

	h.list(t, 1000)
	require.NoError(t, h.engine.PurchaseListing(context.Background(), buyer, h.key, big.NewInt(1000)))

	require.Len(t, got, 2)
	require.Equal(t, domain.EventListingCreated, got[0].Kind)
	require.Equal(t, domain.EventListingPurchased, got[1].Kind)
}

type sinkFunc func(ctx context.Context, ev domain.Event)

func (f sinkFunc) Emit(ctx context.Context, ev domain.Event) { f(ctx, ev) }
