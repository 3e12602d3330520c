package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a successful listing mutation.
type EventKind string

const (
	EventListingCreated   EventKind = "listing_created"
	EventListingUpdated   EventKind = "listing_updated"
	EventListingCanceled  EventKind = "listing_canceled"
	EventListingPurchased EventKind = "listing_purchased"
)

// Event is one audit record: exactly one is emitted per successful mutation.
// Buyer is set only for purchases.
type Event struct {
	ID        int64
	Kind      EventKind
	Key       AssetKey
	Seller    common.Address
	Buyer     common.Address
	Price     *big.Int
	CreatedAt time.Time
}

// eventJSON is the wire form used on the event bus and the websocket stream.
type eventJSON struct {
	Kind     EventKind `json:"kind"`
	Contract string    `json:"contract"`
	TokenID  string    `json:"token_id"`
	Seller   string    `json:"seller"`
	Buyer    string    `json:"buyer,omitempty"`
	Price    string    `json:"price,omitempty"`
	At       time.Time `json:"at"`
}

// WirePayload returns the JSON-marshalable form of the event.
func (e Event) WirePayload() any {
	w := eventJSON{
		Kind:     e.Kind,
		Contract: e.Key.Contract.Hex(),
		TokenID:  e.Key.TokenID.String(),
		Seller:   e.Seller.Hex(),
		At:       e.CreatedAt,
	}
	if e.Buyer != (common.Address{}) {
		w.Buyer = e.Buyer.Hex()
	}
	if e.Price != nil {
		w.Price = e.Price.String()
	}
	return w
}

// Sink receives successful mutation events. Implementations must not block
// the engine; slow consumers drop or buffer on their side.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}
