package subscription

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionExists   = errors.New("subscription already exists for subscriber")
	ErrPauseRecordNotFound  = errors.New("pause record not found")
	ErrActivePauseExists    = errors.New("subscription already has an active pause record")
	ErrPerkUsageNotFound    = errors.New("perk usage record not found")

	ErrInvalidTransition = errors.New("invalid subscription status transition")

	ErrMissingSubscriberID       = errors.New("subscription requires a subscriber ID")
	ErrInvalidTier               = errors.New("subscription tier is not a known plan tier")
	ErrInconsistentPauseState    = errors.New("pause flag and pause window are inconsistent")
	ErrMissingCancellationReason = errors.New("cancellation lock requires a non-empty reason")
	ErrInvalidChurnRisk          = errors.New("churn risk must be between 0 and 1")

	ErrInvalidPerkAmount = errors.New("perk consumption amount must be positive")
	ErrPerkQuotaExceeded = errors.New("perk quota exceeded for current cycle")
)
