package domain

import "math"

// Pricing constants. These are part of the product contract: the leverage
// quoted for a bet must be reproducible from the same inputs, so every
// value here is fixed rather than configurable.
const (
	MinLeverage = 5
	MaxLeverage = 50

	// DefaultVolatility is used when there is not enough price history
	// to compute a real estimate.
	DefaultVolatility = 0.0035

	volatilityFloor = 0.002
	volatilityCeil  = 0.06
)

// RecentVolatility estimates short-term volatility from a window of prices.
// It blends three measures of the return series with weights 4:2:3:
//
//	meanAbsReturn : average magnitude of per-step returns
//	stdDev        : standard deviation of returns
//	lastReturn    : magnitude of the most recent return
//
// The result is clamped to [0.002, 0.06]. With fewer than 3 prices, or no
// valid returns (non-positive priors are skipped), it returns
// DefaultVolatility.
func RecentVolatility(prices []float64) float64 {
	if len(prices) < 3 {
		return DefaultVolatility
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev <= 0 {
			continue
		}
		returns = append(returns, (prices[i]-prev)/prev)
	}
	if len(returns) == 0 {
		return DefaultVolatility
	}

	var sumAbs, sum float64
	for _, r := range returns {
		sumAbs += math.Abs(r)
		sum += r
	}
	n := float64(len(returns))
	meanAbs := sumAbs / n
	mean := sum / n

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(variance / n)

	lastAbs := math.Abs(returns[len(returns)-1])

	blended := (4*meanAbs + 2*stdDev + 3*lastAbs) / 9
	return clamp(blended, volatilityFloor, volatilityCeil)
}

// RequiredLeverage quotes the leverage for a bet that the price reaches
// targetPrice within secondsToExpiry, given current volatility.
//
// The base leverage comes from a tiered piecewise-linear map on the relative
// price distance, then gets scaled by a time factor (less time → higher
// leverage) and a volatility factor (more volatility → lower leverage).
// Deterministic: identical inputs always yield the same quote.
func RequiredLeverage(currentPrice, targetPrice, secondsToExpiry, volatility float64) int {
	if currentPrice <= 0 || targetPrice <= 0 {
		return MinLeverage
	}

	distance := math.Abs(targetPrice-currentPrice) / currentPrice
	base := leverageForDistance(distance)

	timeFactor := 1.2
	if secondsToExpiry > 0 {
		timeFactor = clamp(30/secondsToExpiry, 0.5, 1.2)
	}

	volFactor := 1.3
	if volatility > 0 {
		volFactor = clamp(0.005/volatility, 0.7, 1.3)
	}

	lev := int(math.Round(base * timeFactor * volFactor))
	if lev < MinLeverage {
		return MinLeverage
	}
	if lev > MaxLeverage {
		return MaxLeverage
	}
	return lev
}

// leverageForDistance maps relative distance to a base leverage, linear
// within each tier.
func leverageForDistance(distance float64) float64 {
	switch {
	case distance < 0.002:
		return lerp(5, 10, distance/0.002)
	case distance < 0.005:
		return lerp(10, 20, (distance-0.002)/0.003)
	case distance < 0.008:
		return lerp(20, 35, (distance-0.005)/0.003)
	default:
		// Saturates at 50 once distance reaches 1.6%.
		return math.Min(lerp(35, 50, (distance-0.008)/0.008), 50)
	}
}

// Profit returns the P&L for a leveraged move of pctChange. The sign follows
// pctChange; win/loss resolution passes the unsigned magnitude and applies
// the outcome's sign itself.
func Profit(collateral float64, leverage int, pctChange float64) float64 {
	return collateral * float64(leverage) * pctChange
}

func lerp(lo, hi, t float64) float64 {
	return lo + (hi-lo)*t
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
