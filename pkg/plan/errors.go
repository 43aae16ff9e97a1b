package plan

import "errors"

var (
	ErrTierNotFound         = errors.New("plan tier not found")
	ErrInvalidBillingPeriod = errors.New("invalid billing period")
	ErrInvalidCatalog       = errors.New("invalid plan catalog configuration")
	ErrPriceNotFound        = errors.New("gateway price reference not found in catalog")
)
