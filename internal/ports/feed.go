package ports

import "github.com/zonebet/engine/internal/domain"

// PriceFeed is a push subscription to the external price stream.
// Reconnection and backoff are the feed's responsibility; the core only
// consumes samples.
type PriceFeed interface {
	// Subscribe registers a consumer and returns its sample channel plus an
	// unsubscribe func. Unsubscribe is idempotent and safe to call multiple
	// times.
	Subscribe() (<-chan domain.PriceSample, func())

	// RecentPrices returns up to n of the most recent prices, oldest first.
	// Used to seed the volatility estimate when quoting leverage.
	RecentPrices(n int) []float64
}
