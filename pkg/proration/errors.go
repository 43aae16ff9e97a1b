package proration

import "errors"

var (
	ErrEmptyPeriod      = errors.New("billing period must span at least one day")
	ErrCurrencyMismatch = errors.New("old and new prices must share a currency")
)
