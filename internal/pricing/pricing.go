package pricing

// Cart totals are computed in int64 cents. The only operation that can
// produce a fraction of a cent is the tax rate; it is rounded half-up at
// computation time so the stored breakdown always sums exactly.

const (
	// Orders above this item total ship free.
	freeShippingThreshold = 100_00
	flatShippingFee       = 10_00
	// Tax applied to the item total, in basis points.
	taxRateBasisPoints = 800
)

// LineItem is a priced cart line.
type LineItem struct {
	UnitPrice int64
	Quantity  int
}

// Quote is the monetary breakdown for a cart.
type Quote struct {
	ItemTotal int64
	Shipping  int64
	Tax       int64
	Discount  int64
	Total     int64
}

// Calculate prices a cart. Discount is always zero in the current flow; the
// field exists so the breakdown shape does not change when discounts land.
func Calculate(items []LineItem) Quote {
	var itemTotal int64
	for _, it := range items {
		itemTotal += it.UnitPrice * int64(it.Quantity)
	}

	var shipping int64
	if itemTotal <= freeShippingThreshold {
		shipping = flatShippingFee
	}

	tax := roundHalfUp(itemTotal*taxRateBasisPoints, 10_000)

	q := Quote{
		ItemTotal: itemTotal,
		Shipping:  shipping,
		Tax:       tax,
	}
	q.Total = q.ItemTotal + q.Shipping + q.Tax - q.Discount
	return q
}

func roundHalfUp(numerator, denominator int64) int64 {
	return (numerator + denominator/2) / denominator
}
