package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/chainbazaar/escrowd/internal/domain"
)

type fakeListingService struct {
	createFn   func(ctx context.Context, caller common.Address, key domain.AssetKey, price *big.Int) error
	updateFn   func(ctx context.Context, caller common.Address, key domain.AssetKey, price *big.Int) error
	cancelFn   func(ctx context.Context, caller common.Address, key domain.AssetKey) error
	purchaseFn func(ctx context.Context, buyer common.Address, key domain.AssetKey, payment *big.Int) error
	getFn      func(ctx context.Context, key domain.AssetKey) (domain.Listing, error)
	listFn     func(ctx context.Context, opts domain.ListOpts) ([]domain.ListingRecord, int64, error)
}

func (f *fakeListingService) Create(ctx context.Context, caller common.Address, key domain.AssetKey, price *big.Int) error {
	return f.createFn(ctx, caller, key, price)
}

func (f *fakeListingService) Update(ctx context.Context, caller common.Address, key domain.AssetKey, price *big.Int) error {
	return f.updateFn(ctx, caller, key, price)
}

func (f *fakeListingService) Cancel(ctx context.Context, caller common.Address, key domain.AssetKey) error {
	return f.cancelFn(ctx, caller, key)
}

func (f *fakeListingService) Purchase(ctx context.Context, buyer common.Address, key domain.AssetKey, payment *big.Int) error {
	return f.purchaseFn(ctx, buyer, key, payment)
}

func (f *fakeListingService) Get(ctx context.Context, key domain.AssetKey) (domain.Listing, error) {
	return f.getFn(ctx, key)
}

func (f *fakeListingService) List(ctx context.Context, opts domain.ListOpts) ([]domain.ListingRecord, int64, error) {
	return f.listFn(ctx, opts)
}

func newTestMux(svc ListingService) *http.ServeMux {
	h := NewListingHandler(svc, slog.New(slog.DiscardHandler))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/listings", h.ListListings)
	mux.HandleFunc("POST /api/listings", h.CreateListing)
	mux.HandleFunc("GET /api/listings/{contract}/{token}", h.GetListing)
	mux.HandleFunc("PUT /api/listings/{contract}/{token}", h.UpdateListing)
	mux.HandleFunc("DELETE /api/listings/{contract}/{token}", h.CancelListing)
	mux.HandleFunc("POST /api/listings/{contract}/{token}/purchase", h.PurchaseListing)
	return mux
}

const (
	testContract = "0x1111111111111111111111111111111111111111"
	testSeller   = "0x2222222222222222222222222222222222222222"
	testBuyer    = "0x3333333333333333333333333333333333333333"
)

func TestCreateListingOK(t *testing.T) {
	var gotKey domain.AssetKey
	svc := &fakeListingService{
		createFn: func(_ context.Context, caller common.Address, key domain.AssetKey, price *big.Int) error {
			gotKey = key
			require.Equal(t, common.HexToAddress(testSeller), caller)
			require.Equal(t, "1000", price.String())
			return nil
		},
	}
	mux := newTestMux(svc)

	body, _ := json.Marshal(createListingRequest{
		Contract: testContract,
		TokenID:  "42",
		Price:    "1000",
		Seller:   testSeller,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/listings", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, common.HexToAddress(testContract), gotKey.Contract)
	require.Equal(t, "42", gotKey.TokenID.String())
}

func TestCreateListingAlreadyListed(t *testing.T) {
	svc := &fakeListingService{
		createFn: func(context.Context, common.Address, domain.AssetKey, *big.Int) error {
			return domain.ErrAlreadyListed
		},
	}
	mux := newTestMux(svc)

	body, _ := json.Marshal(createListingRequest{
		Contract: testContract, TokenID: "1", Price: "5", Seller: testSeller,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/listings", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateListingBadAddress(t *testing.T) {
	mux := newTestMux(&fakeListingService{})

	body, _ := json.Marshal(createListingRequest{
		Contract: "not-an-address", TokenID: "1", Price: "5", Seller: testSeller,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/listings", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetListingNotFound(t *testing.T) {
	svc := &fakeListingService{
		getFn: func(context.Context, domain.AssetKey) (domain.Listing, error) {
			return domain.Listing{}, domain.ErrNotFound
		},
	}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/listings/"+testContract+"/7", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateListingForbidden(t *testing.T) {
	svc := &fakeListingService{
		updateFn: func(context.Context, common.Address, domain.AssetKey, *big.Int) error {
			return domain.ErrNotOwner
		},
	}
	mux := newTestMux(svc)

	body, _ := json.Marshal(updateListingRequest{Price: "10", Caller: testSeller})
	req := httptest.NewRequest(http.MethodPut, "/api/listings/"+testContract+"/7", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCancelListingRequiresCaller(t *testing.T) {
	mux := newTestMux(&fakeListingService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/listings/"+testContract+"/7", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelListingOK(t *testing.T) {
	svc := &fakeListingService{
		cancelFn: func(_ context.Context, caller common.Address, key domain.AssetKey) error {
			require.Equal(t, common.HexToAddress(testSeller), caller)
			require.Equal(t, "7", key.TokenID.String())
			return nil
		},
	}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/listings/"+testContract+"/7?caller="+testSeller, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPurchaseIncorrectPayment(t *testing.T) {
	svc := &fakeListingService{
		purchaseFn: func(context.Context, common.Address, domain.AssetKey, *big.Int) error {
			return domain.ErrIncorrectPayment
		},
	}
	mux := newTestMux(svc)

	body, _ := json.Marshal(purchaseRequest{Buyer: testBuyer, Payment: "999"})
	req := httptest.NewRequest(http.MethodPost, "/api/listings/"+testContract+"/7/purchase", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchaseNotListed(t *testing.T) {
	svc := &fakeListingService{
		purchaseFn: func(context.Context, common.Address, domain.AssetKey, *big.Int) error {
			return domain.ErrNotListed
		},
	}
	mux := newTestMux(svc)

	body, _ := json.Marshal(purchaseRequest{Buyer: testBuyer, Payment: "1000"})
	req := httptest.NewRequest(http.MethodPost, "/api/listings/"+testContract+"/7/purchase", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListListings(t *testing.T) {
	svc := &fakeListingService{
		listFn: func(_ context.Context, opts domain.ListOpts) ([]domain.ListingRecord, int64, error) {
			require.Equal(t, 50, opts.Limit)
			key, err := domain.ParseAssetKey(testContract + ":42")
			require.NoError(t, err)
			return []domain.ListingRecord{{
				Key: key,
				Listing: domain.Listing{
					Price:  big.NewInt(1000),
					Seller: common.HexToAddress(testSeller),
				},
			}}, 1, nil
		},
	}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp listListingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Listings, 1)
	require.Equal(t, int64(1), resp.Total)
	require.Equal(t, "1000", resp.Listings[0].Price)
}
