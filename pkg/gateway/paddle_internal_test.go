package gateway

import (
	"testing"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePaddlePayload_SubscriptionEvent(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"event_id": "evt_123",
		"event_type": "subscription.created",
		"occurred_at": "2024-01-15T10:00:00Z",
		"data": {
			"id": "sub_456",
			"status": "active",
			"customer_id": "ctm_789",
			"custom_data": {"subscriber_id": "9f4ce18d-32c8-4a65-97a1-7ad8e9201842"},
			"current_billing_period": {
				"starts_at": "2024-01-15T10:00:00Z",
				"ends_at": "2024-02-15T10:00:00Z"
			},
			"items": [{"price": {"id": "pri_homecare_monthly"}}]
		}
	}`)

	event, err := parsePaddlePayload(payload)
	require.NoError(t, err)

	assert.Equal(t, "evt_123", event.ID)
	assert.Equal(t, EventSubscriptionCreated, event.Kind)
	assert.Equal(t, "subscription.created", event.ProviderEvent)
	assert.Equal(t, "sub_456", event.SubscriptionID)
	assert.Equal(t, "ctm_789", event.CustomerID)
	assert.Equal(t, "9f4ce18d-32c8-4a65-97a1-7ad8e9201842", event.SubscriberID)
	assert.Equal(t, "active", event.Status)
	assert.Equal(t, "pri_homecare_monthly", event.PriceID)
	require.NotNil(t, event.PeriodStart)
	require.NotNil(t, event.PeriodEnd)
	assert.Equal(t, time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC), event.PeriodEnd.UTC())
}

func TestParsePaddlePayload_TransactionEvent(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"event_id": "evt_900",
		"event_type": "transaction.payment_failed",
		"occurred_at": "2024-01-20T08:30:00Z",
		"data": {
			"id": "txn_1",
			"subscription_id": "sub_456",
			"status": "past_due",
			"customer_id": "ctm_789",
			"items": [{"price_id": "pri_homecare_monthly"}]
		}
	}`)

	event, err := parsePaddlePayload(payload)
	require.NoError(t, err)

	assert.Equal(t, EventPaymentFailed, event.Kind)
	assert.Equal(t, "sub_456", event.SubscriptionID)
	assert.Equal(t, "pri_homecare_monthly", event.PriceID)
	assert.Empty(t, event.SubscriberID)
}

func TestParsePaddlePayload_Malformed(t *testing.T) {
	t.Parallel()

	_, err := parsePaddlePayload([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestMapPaddleSubscription(t *testing.T) {
	t.Parallel()

	t.Run("maps catalog item price id", func(t *testing.T) {
		t.Parallel()

		sub := mapPaddleSubscription(&paddle.Subscription{
			ID:         "sub_456",
			CustomerID: "ctm_789",
			Status:     paddle.SubscriptionStatusActive,
			CurrentBillingPeriod: &paddle.TimePeriod{
				StartsAt: "2024-01-15T10:00:00Z",
				EndsAt:   "2024-02-15T10:00:00Z",
			},
			Items: []paddle.SubscriptionItem{
				{Price: paddle.Price{ID: "pri_homecare_monthly"}},
			},
		})

		assert.Equal(t, "sub_456", sub.ID)
		assert.Equal(t, "ctm_789", sub.CustomerID)
		assert.Equal(t, "active", sub.Status)
		assert.Equal(t, "pri_homecare_monthly", sub.PriceID)
		assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), sub.PeriodStart.UTC())
		assert.Equal(t, time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC), sub.PeriodEnd.UTC())
	})

	t.Run("tolerates missing items and period", func(t *testing.T) {
		t.Parallel()

		sub := mapPaddleSubscription(&paddle.Subscription{
			ID:     "sub_456",
			Status: paddle.SubscriptionStatusPaused,
		})

		assert.Empty(t, sub.PriceID)
		assert.True(t, sub.PeriodStart.IsZero())
		assert.True(t, sub.PeriodEnd.IsZero())
	})

	t.Run("ignores item with empty price id", func(t *testing.T) {
		t.Parallel()

		sub := mapPaddleSubscription(&paddle.Subscription{
			ID:    "sub_456",
			Items: []paddle.SubscriptionItem{{Quantity: 1}},
		})

		assert.Empty(t, sub.PriceID)
	})
}

func TestMapPaddleEventKind(t *testing.T) {
	t.Parallel()

	cases := map[string]EventKind{
		"subscription.created":       EventSubscriptionCreated,
		"subscription.updated":       EventSubscriptionUpdated,
		"subscription.paused":        EventSubscriptionUpdated,
		"subscription.canceled":      EventSubscriptionDeleted,
		"transaction.completed":      EventPaymentSucceeded,
		"transaction.payment_failed": EventPaymentFailed,
		"adjustment.created":         EventUnknown,
	}
	for providerEvent, want := range cases {
		assert.Equal(t, want, mapPaddleEventKind(providerEvent), providerEvent)
	}
}
