package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainbazaar/escrowd/internal/domain"
)

// ListingService defines the methods that the listing handler requires from
// the service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type ListingService interface {
	Create(ctx context.Context, caller common.Address, key domain.AssetKey, price *big.Int) error
	Update(ctx context.Context, caller common.Address, key domain.AssetKey, price *big.Int) error
	Cancel(ctx context.Context, caller common.Address, key domain.AssetKey) error
	Purchase(ctx context.Context, buyer common.Address, key domain.AssetKey, payment *big.Int) error
	Get(ctx context.Context, key domain.AssetKey) (domain.Listing, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.ListingRecord, int64, error)
}

// ListingHandler serves listing lifecycle HTTP endpoints.
type ListingHandler struct {
	listings ListingService
	logger   *slog.Logger
}

// NewListingHandler creates a ListingHandler with the given service and logger.
func NewListingHandler(listings ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		listings: listings,
		logger:   logger,
	}
}

// listingJSON is the wire form of a single listing.
type listingJSON struct {
	Contract  string    `json:"contract"`
	TokenID   string    `json:"token_id"`
	Price     string    `json:"price"`
	Seller    string    `json:"seller"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toListingJSON(key domain.AssetKey, l domain.Listing) listingJSON {
	return listingJSON{
		Contract:  key.Contract.Hex(),
		TokenID:   key.TokenID.String(),
		Price:     l.Price.String(),
		Seller:    l.Seller.Hex(),
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

// listListingsResponse wraps the list endpoint output with metadata.
type listListingsResponse struct {
	Listings []listingJSON `json:"listings"`
	Total    int64         `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

// ListListings returns active listings with pagination.
// GET /api/listings?limit=50&offset=0
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	records, total, err := h.listings.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list listings failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}

	out := make([]listingJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, toListingJSON(rec.Key, rec.Listing))
	}

	writeJSON(w, http.StatusOK, listListingsResponse{
		Listings: out,
		Total:    total,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// GetListing returns a single listing.
// GET /api/listings/{contract}/{token}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	l, err := h.listings.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get listing failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get listing")
		return
	}

	writeJSON(w, http.StatusOK, toListingJSON(key, l))
}

// createListingRequest is the body for listing creation.
type createListingRequest struct {
	Contract string `json:"contract"`
	TokenID  string `json:"token_id"`
	Price    string `json:"price"`
	Seller   string `json:"seller"`
}

// CreateListing lists an asset for sale.
// POST /api/listings
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	contract, err := parseAddress("contract", req.Contract)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tokenID, ok := new(big.Int).SetString(req.TokenID, 10)
	if !ok || tokenID.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "invalid token_id")
		return
	}
	seller, err := parseAddress("seller", req.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := domain.NewAssetKey(contract, tokenID)
	if err := h.listings.Create(r.Context(), seller, key, price); err != nil {
		h.writeDomainError(w, r, "create listing", key, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"contract": key.Contract.Hex(),
		"token_id": key.TokenID.String(),
		"status":   "listed",
	})
}

// updateListingRequest is the body for a price change.
type updateListingRequest struct {
	Price  string `json:"price"`
	Caller string `json:"caller"`
}

// UpdateListing changes the price of an existing listing.
// PUT /api/listings/{contract}/{token}
func (h *ListingHandler) UpdateListing(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req updateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.listings.Update(r.Context(), caller, key, price); err != nil {
		h.writeDomainError(w, r, "update listing", key, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"contract": key.Contract.Hex(),
		"token_id": key.TokenID.String(),
		"status":   "updated",
	})
}

// CancelListing removes a listing. The caller address is passed in the
// `caller` query parameter since DELETE bodies are not reliably forwarded.
// DELETE /api/listings/{contract}/{token}?caller=0x...
func (h *ListingHandler) CancelListing(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller, err := parseAddress("caller", r.URL.Query().Get("caller"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.listings.Cancel(r.Context(), caller, key); err != nil {
		h.writeDomainError(w, r, "cancel listing", key, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"contract": key.Contract.Hex(),
		"token_id": key.TokenID.String(),
		"status":   "canceled",
	})
}

// purchaseRequest is the body for a purchase.
type purchaseRequest struct {
	Buyer   string `json:"buyer"`
	Payment string `json:"payment"`
}

// PurchaseListing buys a listed asset.
// POST /api/listings/{contract}/{token}/purchase
func (h *ListingHandler) PurchaseListing(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	buyer, err := parseAddress("buyer", req.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payment, err := parseAmount("payment", req.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.listings.Purchase(r.Context(), buyer, key, payment); err != nil {
		h.writeDomainError(w, r, "purchase listing", key, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"contract": key.Contract.Hex(),
		"token_id": key.TokenID.String(),
		"status":   "purchased",
	})
}

// writeDomainError maps domain errors onto HTTP status codes. Unrecognized
// errors are logged and surfaced as 500s.
func (h *ListingHandler) writeDomainError(w http.ResponseWriter, r *http.Request, op string, key domain.AssetKey, err error) {
	var fault *domain.SettlementFault

	switch {
	case errors.Is(err, domain.ErrNotListed), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "listing not found")
	case errors.Is(err, domain.ErrAlreadyListed):
		writeError(w, http.StatusConflict, "asset already listed")
	case errors.Is(err, domain.ErrInvalidPrice):
		writeError(w, http.StatusBadRequest, "price must be a positive integer")
	case errors.Is(err, domain.ErrIncorrectPayment):
		writeError(w, http.StatusBadRequest, "payment must equal the listed price exactly")
	case errors.Is(err, domain.ErrNotOwner):
		writeError(w, http.StatusForbidden, "caller does not own the asset")
	case errors.Is(err, domain.ErrNoApproval):
		writeError(w, http.StatusForbidden, "escrow operator is not authorized for the asset")
	case errors.As(err, &fault):
		h.logger.ErrorContext(r.Context(), "handler: settlement fault",
			slog.String("op", op),
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "settlement failed; manual intervention required")
	case errors.Is(err, domain.ErrTransferRejected), errors.Is(err, domain.ErrPaymentRejected):
		h.logger.WarnContext(r.Context(), "handler: transfer rejected",
			slog.String("op", op),
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "transfer rejected by the chain")
	default:
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
