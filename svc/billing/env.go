package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dwellcare/billing/pkg/booking"
	"github.com/dwellcare/billing/pkg/config"
	"github.com/dwellcare/billing/pkg/gateway"
	"github.com/dwellcare/billing/pkg/notify"
	"github.com/dwellcare/billing/pkg/pg"
	"github.com/dwellcare/billing/pkg/plan"
	"github.com/dwellcare/billing/pkg/reconciler"
	"github.com/dwellcare/billing/pkg/redis"
)

// NewFromEnv builds a production billing service from environment
// configuration: Postgres stores behind advisory locks, the Redis webhook
// dedup ledger, the Paddle gateway, and Postmark notifications. The
// subscriber directory and the booking checker are ports into neighboring
// systems, so the caller supplies them.
func NewFromEnv(ctx context.Context, catalog *plan.Catalog, directory reconciler.SubscriberDirectory, bookings booking.Checker, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return nil, err
	}
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx, pool, pgCfg, logger); err != nil {
		return nil, err
	}

	var redisCfg redis.Config
	if err := config.Load(&redisCfg); err != nil {
		return nil, err
	}
	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return nil, err
	}

	var paddleCfg gateway.PaddleConfig
	if err := config.Load(&paddleCfg); err != nil {
		return nil, err
	}
	paddleGw, err := gateway.NewPaddleGateway(paddleCfg)
	if err != nil {
		return nil, err
	}

	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}
	var emailCfg notify.EmailConfig
	switch err := config.Load(&emailCfg); {
	case err == nil:
		email, err := notify.NewEmailNotifier(emailCfg)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, email)
	case errors.Is(err, config.ErrParsingConfig):
		// Postmark not configured; notifications go to the log only.
		logger.InfoContext(ctx, "email notifications disabled, postmark is not configured")
	default:
		return nil, err
	}

	return New(Dependencies{
		Catalog:   catalog,
		Subs:      pg.NewSubscriptionStore(pool),
		Pauses:    pg.NewPauseStore(pool),
		Usage:     pg.NewPerkUsageStore(pool),
		Locker:    pg.NewAdvisoryLocker(pool),
		Gateway:   paddleGw,
		Bookings:  bookings,
		Directory: directory,
		Parser:    paddleGw,
		Deduper:   redis.NewEventLedger(redisClient, redis.WithEventTTL(redisCfg.EventTTL)),
	},
		WithLogger(logger),
		WithNotifier(notify.NewMulti(notifiers, notify.WithMultiLogger(logger))),
	), nil
}
