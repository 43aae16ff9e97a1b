package billing

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dwellcare/billing/pkg/booking"
	"github.com/dwellcare/billing/pkg/gateway"
	"github.com/dwellcare/billing/pkg/notify"
	"github.com/dwellcare/billing/pkg/pause"
	"github.com/dwellcare/billing/pkg/perks"
	"github.com/dwellcare/billing/pkg/plan"
	"github.com/dwellcare/billing/pkg/planchange"
	"github.com/dwellcare/billing/pkg/reconciler"
	"github.com/dwellcare/billing/pkg/renewal"
	"github.com/dwellcare/billing/pkg/subscription"
)

// Dependencies are the collaborators the billing service composes. All are
// required except Parser and Deduper, which only webhook delivery uses.
type Dependencies struct {
	Catalog   *plan.Catalog
	Subs      subscription.Store
	Pauses    subscription.PauseStore
	Usage     subscription.PerkUsageStore
	Locker    subscription.Locker
	Gateway   gateway.Gateway
	Bookings  booking.Checker
	Directory reconciler.SubscriberDirectory

	// Parser verifies and normalizes webhook payloads; required only when
	// WebhookHandler is used.
	Parser gateway.WebhookParser
	// Deduper suppresses webhook replays; optional.
	Deduper reconciler.EventDeduper
}

// Service is the billing facade: subscription onboarding and cancellation
// plus delegation to the plan-change orchestrator, pause manager, perk
// tracker, webhook reconciler, and renewal job. One instance serves the
// whole process.
type Service struct {
	deps     Dependencies
	logger   *slog.Logger
	notifier notify.Notifier
	now      func() time.Time

	perks       *perks.Service
	planChanges *planchange.Service
	pauses      *pause.Manager
	reconciler  *reconciler.Reconciler
	renewals    *renewal.Service
}

// Option configures the billing service.
type Option func(*Service)

// WithLogger sets the service logger, shared with all composed components.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier sets the subscriber notification channel.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithClock overrides the time source for the service and every composed
// component, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New composes the billing service. Panics on missing required dependencies
// to fail fast during initialization.
func New(deps Dependencies, opts ...Option) *Service {
	if deps.Catalog == nil {
		panic("billing: plan catalog is required")
	}
	if deps.Subs == nil {
		panic("billing: subscription store is required")
	}
	if deps.Pauses == nil {
		panic("billing: pause store is required")
	}
	if deps.Usage == nil {
		panic("billing: perk usage store is required")
	}
	if deps.Locker == nil {
		panic("billing: locker is required")
	}
	if deps.Gateway == nil {
		panic("billing: payment gateway is required")
	}
	if deps.Bookings == nil {
		panic("billing: booking checker is required")
	}
	if deps.Directory == nil {
		panic("billing: subscriber directory is required")
	}

	s := &Service{
		deps:   deps,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	s.perks = perks.NewService(deps.Catalog, deps.Subs, deps.Usage, deps.Locker,
		perks.WithLogger(s.logger),
	)
	s.planChanges = planchange.NewService(deps.Catalog, deps.Subs, deps.Usage, deps.Locker, deps.Gateway,
		planchange.WithLogger(s.logger),
		planchange.WithNotifier(s.notifier),
		planchange.WithClock(s.now),
	)
	s.pauses = pause.NewManager(deps.Subs, deps.Pauses, deps.Locker, deps.Gateway, deps.Bookings,
		pause.WithLogger(s.logger),
		pause.WithNotifier(s.notifier),
		pause.WithClock(s.now),
	)

	reconcilerOpts := []reconciler.Option{
		reconciler.WithLogger(s.logger),
		reconciler.WithClock(s.now),
	}
	if deps.Deduper != nil {
		reconcilerOpts = append(reconcilerOpts, reconciler.WithEventDeduper(deps.Deduper))
	}
	s.reconciler = reconciler.New(deps.Subs, deps.Locker, deps.Gateway, deps.Catalog, s.pauses, deps.Directory, reconcilerOpts...)

	s.renewals = renewal.NewService(deps.Subs, deps.Usage, deps.Catalog, deps.Locker,
		renewal.WithLogger(s.logger),
		renewal.WithClock(s.now),
	)

	return s
}

// ChangePlan switches the subscriber's tier: upgrades apply immediately with
// a prorated charge, downgrades defer to period end.
func (s *Service) ChangePlan(ctx context.Context, subscriberID uuid.UUID, toTier plan.Tier, period plan.BillingPeriod) (*planchange.Result, error) {
	return s.planChanges.ChangePlan(ctx, subscriberID, toTier, period)
}

// GetChangePreview computes a plan change's financial impact without
// committing anything.
func (s *Service) GetChangePreview(ctx context.Context, subscriberID uuid.UUID, toTier plan.Tier, period plan.BillingPeriod) (*planchange.Preview, error) {
	return s.planChanges.GetChangePreview(ctx, subscriberID, toTier, period)
}

// PauseSubscription opens a voluntary pause for the given number of months.
func (s *Service) PauseSubscription(ctx context.Context, subscriberID uuid.UUID, durationMonths int) (*pause.Result, error) {
	return s.pauses.PauseManually(ctx, subscriberID, durationMonths)
}

// ResumeSubscription ends a pause ahead of its scheduled end.
func (s *Service) ResumeSubscription(ctx context.Context, subscriberID uuid.UUID) (*pause.Result, error) {
	return s.pauses.Resume(ctx, subscriberID)
}

// PauseForPaymentFailure opens a grace-period pause after a failed payment.
// A no-op when the subscription is already paused.
func (s *Service) PauseForPaymentFailure(ctx context.Context, subscriberID uuid.UUID) (*pause.Result, error) {
	return s.pauses.PauseForPaymentFailure(ctx, subscriberID)
}

// HandlePaymentRecovered resumes a grace-period pause after payment succeeds.
// Pauses for other reasons are left untouched.
func (s *Service) HandlePaymentRecovered(ctx context.Context, subscriberID uuid.UUID) (*pause.RecoveryResult, error) {
	return s.pauses.HandlePaymentRecovered(ctx, subscriberID)
}

// GetPauseStatus reports the subscriber's current pause window, if any.
func (s *Service) GetPauseStatus(ctx context.Context, subscriberID uuid.UUID) (*pause.StatusInfo, error) {
	return s.pauses.GetPauseStatus(ctx, subscriberID)
}

// TrackPerkUsage consumes a perk, locking self-service cancellation on the
// first consumption in a cycle.
func (s *Service) TrackPerkUsage(ctx context.Context, subscriberID uuid.UUID, perk plan.Perk, amount int64) (*subscription.PerkUsage, error) {
	return s.perks.TrackPerkUsage(ctx, subscriberID, perk, amount)
}

// UseVisit consumes one visit from the cycle allowance.
func (s *Service) UseVisit(ctx context.Context, subscriberID uuid.UUID) (*subscription.PerkUsage, error) {
	return s.perks.UseVisit(ctx, subscriberID)
}

// GetPerkUsage returns the subscriber's current-cycle consumption record.
func (s *Service) GetPerkUsage(ctx context.Context, subscriberID uuid.UUID) (*subscription.PerkUsage, error) {
	return s.perks.GetUsage(ctx, subscriberID)
}

// CanUsePerk reports whether quota remains for the perk this cycle.
func (s *Service) CanUsePerk(ctx context.Context, subscriberID uuid.UUID, perk plan.Perk) (bool, error) {
	return s.perks.CanUsePerk(ctx, subscriberID, perk)
}

// ProcessWebhookEvent applies one normalized gateway event.
func (s *Service) ProcessWebhookEvent(ctx context.Context, ev *gateway.Event) (*reconciler.Result, error) {
	return s.reconciler.Process(ctx, ev)
}

// WebhookHandler mounts the gateway's webhook delivery endpoint. Requires
// Dependencies.Parser; panics without one.
func (s *Service) WebhookHandler() http.Handler {
	if s.deps.Parser == nil {
		panic("billing: webhook parser is required for WebhookHandler")
	}
	return gateway.NewWebhookRouter(s.deps.Parser, func(r *http.Request, ev *gateway.Event) error {
		_, err := s.reconciler.Process(r.Context(), ev)
		return err
	}, gateway.WithWebhookLogger(s.logger))
}

// RunRenewals processes all due billing-period rollovers once.
func (s *Service) RunRenewals(ctx context.Context) (*renewal.RunResult, error) {
	return s.renewals.Run(ctx)
}

// ProcessGracePeriodExpirations suspends past-due subscriptions whose grace
// window elapsed.
func (s *Service) ProcessGracePeriodExpirations(ctx context.Context) (*pause.SweepResult, error) {
	return s.pauses.ProcessGracePeriodExpirations(ctx)
}

// ProcessAutomaticResumes reactivates voluntary pauses whose window elapsed.
func (s *Service) ProcessAutomaticResumes(ctx context.Context) (*pause.SweepResult, error) {
	return s.pauses.ProcessAutomaticResumes(ctx)
}

// Scheduler wires the renewal and sweep jobs onto cron schedules. The caller
// owns Start/Stop.
func (s *Service) Scheduler(ctx context.Context, cfg renewal.SchedulerConfig) (*renewal.Scheduler, error) {
	return renewal.NewScheduler(ctx, cfg, s.renewals, s.pauses, s.logger)
}
