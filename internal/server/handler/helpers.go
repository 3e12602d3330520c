package handler

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainbazaar/escrowd/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathKey builds the AssetKey from the {contract} and {token} path parameters
// using Go 1.22+ built-in routing (http.Request.PathValue).
func pathKey(r *http.Request) (domain.AssetKey, error) {
	contract := r.PathValue("contract")
	if !common.IsHexAddress(contract) {
		return domain.AssetKey{}, fmt.Errorf("invalid contract address %q", contract)
	}

	token := r.PathValue("token")
	tokenID, ok := new(big.Int).SetString(token, 10)
	if !ok || tokenID.Sign() < 0 {
		return domain.AssetKey{}, fmt.Errorf("invalid token id %q", token)
	}

	return domain.NewAssetKey(common.HexToAddress(contract), tokenID), nil
}

// parseAddress validates and decodes a hex address field.
func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", field, s)
	}
	return common.HexToAddress(s), nil
}

// parseAmount decodes a positive decimal big integer field.
func parseAmount(field, s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s %q", field, s)
	}
	return n, nil
}
