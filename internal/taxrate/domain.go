// Package taxrate resolves VAT rates from the time-varying tax-rate table.
// Rates change over calendar time, so every lookup is point-in-time against
// a reference date. Table maintenance lives outside this service.
package taxrate

import "errors"

// Category enumerates VAT rate categories.
type Category string

const (
	CategoryStandard Category = "STANDARD"
	CategoryReduced  Category = "REDUCED"
)

var (
	// ErrNoRateForDate occurs when no rate row covers the reference date.
	ErrNoRateForDate = errors.New("taxrate: no rate configured for date")
	// ErrInvalidCategory occurs when an unknown rate category is requested.
	ErrInvalidCategory = errors.New("taxrate: invalid category")
)
