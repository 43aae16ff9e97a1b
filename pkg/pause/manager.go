package pause

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dwellcare/billing/pkg/booking"
	"github.com/dwellcare/billing/pkg/gateway"
	"github.com/dwellcare/billing/pkg/notify"
	"github.com/dwellcare/billing/pkg/subscription"
)

const (
	// DefaultGracePeriodDays is the window after a payment failure during
	// which service continues before suspension.
	DefaultGracePeriodDays = 7

	minPauseMonths = 1
	maxPauseMonths = 6
)

// Churn-risk nudges applied on payment failure and recovery. The score is a
// bounded signal for retention tooling, not a prediction model.
const (
	churnRiskFailureBump  = 0.2
	churnRiskRecoveryDrop = 0.1
)

// Result is the outcome of a pause or resume. GatewayCall records the
// best-effort synchronization with the payment gateway; local state commits
// regardless of its outcome.
type Result struct {
	Subscription *subscription.Subscription
	Record       *subscription.PauseRecord

	// AlreadyPaused marks a payment-failure pause that found the
	// subscription paused and changed nothing.
	AlreadyPaused bool

	GatewayCall gateway.Outcome
}

// RecoveryResult is the outcome of a payment-recovery attempt. Recovered is
// false when the subscription was not paused for a payment failure, in which
// case nothing changed.
type RecoveryResult struct {
	Recovered bool
	Resume    *Result
}

// StatusInfo is a read-only snapshot of a subscription's pause state.
type StatusInfo struct {
	IsPaused   bool
	Reason     subscription.PauseReason
	PauseStart *time.Time
	PauseEnd   *time.Time
	Status     subscription.Status
}

// Manager governs voluntary and involuntary pauses: opening and closing pause
// windows, grace-period expiry into suspension, automatic resumption, and the
// payment-recovery path.
type Manager struct {
	subs     subscription.Store
	pauses   subscription.PauseStore
	locker   subscription.Locker
	gw       gateway.Gateway
	booking  booking.Checker
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time

	graceDays int
}

// Option configures the pause manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithNotifier sets the subscriber notification channel.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithGracePeriodDays overrides the payment-failure grace window.
func WithGracePeriodDays(days int) Option {
	return func(m *Manager) {
		if days > 0 {
			m.graceDays = days
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates the pause/resume manager. Panics on nil dependencies to
// fail fast during initialization.
func NewManager(subs subscription.Store, pauses subscription.PauseStore, locker subscription.Locker, gw gateway.Gateway, checker booking.Checker, opts ...Option) *Manager {
	if subs == nil {
		panic("pause: subscription store is required")
	}
	if pauses == nil {
		panic("pause: pause store is required")
	}
	if locker == nil {
		panic("pause: locker is required")
	}
	if gw == nil {
		panic("pause: payment gateway is required")
	}
	if checker == nil {
		panic("pause: booking checker is required")
	}

	m := &Manager{
		subs:      subs,
		pauses:    pauses,
		locker:    locker,
		gw:        gw,
		booking:   checker,
		notifier:  notify.NewMulti(nil),
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		graceDays: DefaultGracePeriodDays,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PauseForPaymentFailure opens a grace-period pause after a failed payment:
// the subscription goes past-due and paused for the grace window, during
// which the gateway's own retry schedule keeps attempting collection. No
// gateway call is made here for exactly that reason.
//
// An already-paused subscription is left untouched and reported as such, so
// repeated failure events within one grace window stay harmless.
func (m *Manager) PauseForPaymentFailure(ctx context.Context, subscriberID uuid.UUID) (*Result, error) {
	var result *Result

	err := m.locker.WithSubscriberLock(ctx, subscriberID, func(ctx context.Context) error {
		sub, err := m.subs.GetBySubscriberID(ctx, subscriberID)
		if err != nil {
			return err
		}
		if sub.IsPaused {
			result = &Result{Subscription: sub, AlreadyPaused: true}
			return nil
		}
		if err := sub.Transition(subscription.StatusPastDue); err != nil {
			return err
		}

		now := m.now()
		end := now.AddDate(0, 0, m.graceDays)
		record := &subscription.PauseRecord{
			SubscriptionID: sub.ID,
			Reason:         subscription.PauseReasonPaymentFailed,
			StartDate:      now,
			ScheduledEnd:   end,
			Status:         subscription.PauseStatusActive,
		}

		sub.OpenPauseWindow(now, end)
		sub.ChurnRisk = clampRisk(sub.ChurnRisk + churnRiskFailureBump)
		if err := m.subs.Save(ctx, sub); err != nil {
			return err
		}
		if err := m.pauses.Save(ctx, record); err != nil {
			return err
		}

		result = &Result{Subscription: sub, Record: record}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.AlreadyPaused {
		m.logger.LogAttrs(ctx, slog.LevelInfo, "payment failure for already-paused subscription",
			slog.String("subscriber_id", subscriberID.String()),
		)
		return result, nil
	}

	m.logger.LogAttrs(ctx, slog.LevelWarn, "grace period started after payment failure",
		slog.String("subscriber_id", subscriberID.String()),
		slog.Time("grace_ends", *result.Subscription.PauseEnd),
	)
	m.send(ctx, result.Subscription, notify.KindGracePeriodStarted,
		"Payment failed",
		fmt.Sprintf("We could not collect your payment. Service continues until %s while we retry.",
			result.Subscription.PauseEnd.Format("January 2, 2006")),
	)
	return result, nil
}

// PauseManually opens a voluntary pause for the given number of months
// (1 to 6). Only active subscriptions qualify, and a subscriber with a
// technician visit still on the calendar must reschedule it first.
//
// The gateway is asked to pause collection as a best-effort follow-up; the
// local pause stands either way because the local record is authoritative for
// service availability.
func (m *Manager) PauseManually(ctx context.Context, subscriberID uuid.UUID, durationMonths int) (*Result, error) {
	if durationMonths < minPauseMonths || durationMonths > maxPauseMonths {
		return nil, ErrInvalidDuration
	}

	var result *Result

	err := m.locker.WithSubscriberLock(ctx, subscriberID, func(ctx context.Context) error {
		sub, err := m.subs.GetBySubscriberID(ctx, subscriberID)
		if err != nil {
			return err
		}
		if sub.IsPaused {
			return ErrAlreadyPaused
		}
		if sub.Status != subscription.StatusActive {
			return fmt.Errorf("%w: status is %s", ErrNotActive, sub.Status)
		}

		hasBooking, err := m.booking.HasUpcomingAppointment(ctx, subscriberID)
		if err != nil {
			return err
		}
		if hasBooking {
			return ErrUpcomingAppointment
		}

		now := m.now()
		end := now.AddDate(0, durationMonths, 0)
		record := &subscription.PauseRecord{
			SubscriptionID: sub.ID,
			Reason:         subscription.PauseReasonManual,
			StartDate:      now,
			ScheduledEnd:   end,
			Status:         subscription.PauseStatusActive,
		}

		sub.OpenPauseWindow(now, end)
		if err := m.subs.Save(ctx, sub); err != nil {
			return err
		}
		if err := m.pauses.Save(ctx, record); err != nil {
			return err
		}

		result = &Result{
			Subscription: sub,
			Record:       record,
			GatewayCall:  m.pauseAtGateway(ctx, sub),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.LogAttrs(ctx, slog.LevelInfo, "subscription paused",
		slog.String("subscriber_id", subscriberID.String()),
		slog.Int("duration_months", durationMonths),
	)
	m.send(ctx, result.Subscription, notify.KindPauseConfirmed,
		"Your subscription is paused",
		fmt.Sprintf("Billing and visits are paused until %s.", result.Record.ScheduledEnd.Format("January 2, 2006")),
	)
	return result, nil
}

// Resume closes the open pause window and returns the subscription to
// active. The gateway resume is best-effort, same as the pause.
func (m *Manager) Resume(ctx context.Context, subscriberID uuid.UUID) (*Result, error) {
	var result *Result

	err := m.locker.WithSubscriberLock(ctx, subscriberID, func(ctx context.Context) error {
		sub, err := m.subs.GetBySubscriberID(ctx, subscriberID)
		if err != nil {
			return err
		}
		if !sub.IsPaused {
			return ErrNotPaused
		}
		result, err = m.resumeLocked(ctx, sub)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.send(ctx, result.Subscription, notify.KindResumeConfirmed,
		"Your subscription has resumed",
		"Billing and visits are back on.",
	)
	return result, nil
}

// HandlePaymentRecovered resumes a subscription that is paused for a payment
// failure. Pauses for any other reason are left alone: a successful charge
// during a voluntary pause does not end the pause.
func (m *Manager) HandlePaymentRecovered(ctx context.Context, subscriberID uuid.UUID) (*RecoveryResult, error) {
	recovery := &RecoveryResult{}

	err := m.locker.WithSubscriberLock(ctx, subscriberID, func(ctx context.Context) error {
		sub, err := m.subs.GetBySubscriberID(ctx, subscriberID)
		if err != nil {
			return err
		}
		if !sub.IsPaused {
			return nil
		}
		record, err := m.pauses.GetActive(ctx, sub.ID)
		if err != nil && !errors.Is(err, subscription.ErrPauseRecordNotFound) {
			return err
		}
		if record == nil || record.Reason != subscription.PauseReasonPaymentFailed {
			return nil
		}

		sub.ChurnRisk = clampRisk(sub.ChurnRisk - churnRiskRecoveryDrop)
		result, err := m.resumeLocked(ctx, sub)
		if err != nil {
			return err
		}
		recovery.Recovered = true
		recovery.Resume = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	if recovery.Recovered {
		m.logger.LogAttrs(ctx, slog.LevelInfo, "payment recovered within grace period",
			slog.String("subscriber_id", subscriberID.String()),
		)
		m.send(ctx, recovery.Resume.Subscription, notify.KindPaymentRecovered,
			"Payment recovered",
			"Your payment went through and your subscription is active again.",
		)
	}
	return recovery, nil
}

// GetPauseStatus returns a snapshot of the subscription's pause state.
func (m *Manager) GetPauseStatus(ctx context.Context, subscriberID uuid.UUID) (*StatusInfo, error) {
	sub, err := m.subs.GetBySubscriberID(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	info := &StatusInfo{
		IsPaused:   sub.IsPaused,
		PauseStart: sub.PauseStart,
		PauseEnd:   sub.PauseEnd,
		Status:     sub.Status,
	}
	if !sub.IsPaused {
		return info, nil
	}

	record, err := m.pauses.GetActive(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, subscription.ErrPauseRecordNotFound) {
			return info, nil
		}
		return nil, err
	}
	info.Reason = record.Reason
	return info, nil
}

// resumeLocked performs the shared resume mutation. The caller holds the
// subscriber lock and sends the notification appropriate to its path.
func (m *Manager) resumeLocked(ctx context.Context, sub *subscription.Subscription) (*Result, error) {
	now := m.now()

	record, err := m.pauses.GetActive(ctx, sub.ID)
	switch {
	case err == nil:
		record.Complete(now)
		if err := m.pauses.Save(ctx, record); err != nil {
			return nil, err
		}
	case errors.Is(err, subscription.ErrPauseRecordNotFound):
		// Tolerated: the window on the subscription is still cleared so a
		// missing history row cannot wedge the record in a paused state.
		m.logger.LogAttrs(ctx, slog.LevelWarn, "paused subscription has no active pause record",
			slog.String("subscriber_id", sub.SubscriberID.String()),
		)
	default:
		return nil, err
	}

	sub.ClosePauseWindow()
	if sub.Status == subscription.StatusPastDue {
		if err := sub.Transition(subscription.StatusActive); err != nil {
			return nil, err
		}
	}
	if err := m.subs.Save(ctx, sub); err != nil {
		return nil, err
	}

	return &Result{
		Subscription: sub,
		Record:       record,
		GatewayCall:  m.resumeAtGateway(ctx, sub),
	}, nil
}

func (m *Manager) pauseAtGateway(ctx context.Context, sub *subscription.Subscription) gateway.Outcome {
	const operation = "pause_subscription"
	if sub.GatewaySubscriptionID == "" {
		return gateway.Skipped(operation)
	}
	return gateway.BestEffort(ctx, m.logger, operation, func(ctx context.Context) error {
		return m.gw.PauseSubscription(ctx, sub.GatewaySubscriptionID)
	})
}

func (m *Manager) resumeAtGateway(ctx context.Context, sub *subscription.Subscription) gateway.Outcome {
	const operation = "resume_subscription"
	if sub.GatewaySubscriptionID == "" {
		return gateway.Skipped(operation)
	}
	return gateway.BestEffort(ctx, m.logger, operation, func(ctx context.Context) error {
		return m.gw.ResumeSubscription(ctx, sub.GatewaySubscriptionID)
	})
}

func (m *Manager) send(ctx context.Context, sub *subscription.Subscription, kind notify.Kind, title, message string) {
	err := m.notifier.Send(ctx, notify.Notification{
		SubscriberID: sub.SubscriberID,
		Email:        sub.Email,
		Kind:         kind,
		Title:        title,
		Message:      message,
		CreatedAt:    m.now(),
	})
	if err != nil {
		m.logger.LogAttrs(ctx, slog.LevelError, "failed to send pause notification",
			slog.String("subscriber_id", sub.SubscriberID.String()),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
}

func clampRisk(risk float64) float64 {
	if risk < 0 {
		return 0
	}
	if risk > 1 {
		return 1
	}
	return risk
}
