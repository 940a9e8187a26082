package market

import (
	"context"
	"errors"
	"math/big"

	"github.com/GoPolymarket/itemsale/internal/venue"
)

var ErrNoItems = errors.New("item count must be positive")

// Pricing is the engine's per-batch utility price.
type Pricing interface {
	RequiredUtility(items int) *big.Int
}

// VenueQuoter quotes against a read-only vault, such as a deployed pool
// reached over RPC, using the engine's batch pricing.
type VenueQuoter struct {
	adapter *venue.Adapter
	pricing Pricing
}

func NewVenueQuoter(adapter *venue.Adapter, pricing Pricing) *VenueQuoter {
	return &VenueQuoter{adapter: adapter, pricing: pricing}
}

func (q *VenueQuoter) Quote(ctx context.Context, items int) (*big.Int, error) {
	if items <= 0 {
		return nil, ErrNoItems
	}
	return q.adapter.Quote(ctx, q.pricing.RequiredUtility(items))
}

func (q *VenueQuoter) RequiredUtility(items int) *big.Int {
	return q.pricing.RequiredUtility(items)
}
