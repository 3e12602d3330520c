package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainbazaar/escrowd/internal/domain"
)

// AuditService defines what the audit handler needs from the service layer.
type AuditService interface {
	Audit(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error)
}

// AuditHandler serves the audit trail endpoint.
type AuditHandler struct {
	audit  AuditService
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler with the given service and logger.
func NewAuditHandler(audit AuditService, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

// auditEventJSON is the wire form of one audit record.
type auditEventJSON struct {
	ID       int64     `json:"id"`
	Kind     string    `json:"kind"`
	Contract string    `json:"contract"`
	TokenID  string    `json:"token_id"`
	Seller   string    `json:"seller"`
	Buyer    string    `json:"buyer,omitempty"`
	Price    string    `json:"price,omitempty"`
	At       time.Time `json:"at"`
}

// ListAudit returns audit events, newest first, with pagination.
// GET /api/audit?limit=50&offset=0
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	events, err := h.audit.Audit(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit events")
		return
	}

	out := make([]auditEventJSON, 0, len(events))
	for _, ev := range events {
		e := auditEventJSON{
			ID:       ev.ID,
			Kind:     string(ev.Kind),
			Contract: ev.Key.Contract.Hex(),
			TokenID:  ev.Key.TokenID.String(),
			Seller:   ev.Seller.Hex(),
			At:       ev.CreatedAt,
		}
		if ev.Buyer != (common.Address{}) {
			e.Buyer = ev.Buyer.Hex()
		}
		if ev.Price != nil {
			e.Price = ev.Price.String()
		}
		out = append(out, e)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}
