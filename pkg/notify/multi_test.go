package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dwellcare/billing/pkg/notify"
)

type recordingNotifier struct {
	sent []notify.Notification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, notification notify.Notification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func TestMulti_BestEffortFanOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	notification := notify.Notification{
		SubscriberID: uuid.New(),
		Kind:         notify.KindGracePeriodStarted,
		Title:        "Payment issue",
		Message:      "We could not charge your card; service continues for 7 days.",
	}

	t.Run("all channels receive the notification", func(t *testing.T) {
		t.Parallel()

		first := &recordingNotifier{}
		second := &recordingNotifier{}
		multi := notify.NewMulti([]notify.Notifier{first, second})

		assert.NoError(t, multi.Send(ctx, notification))
		assert.Len(t, first.sent, 1)
		assert.Len(t, second.sent, 1)
	})

	t.Run("failing channel does not block the rest", func(t *testing.T) {
		t.Parallel()

		broken := &recordingNotifier{err: errors.New("smtp down")}
		working := &recordingNotifier{}
		multi := notify.NewMulti([]notify.Notifier{broken, working})

		assert.NoError(t, multi.Send(ctx, notification), "fan-out never propagates channel failures")
		assert.Len(t, working.sent, 1)
	})
}

func TestEmailNotifier_Validation(t *testing.T) {
	t.Parallel()

	_, err := notify.NewEmailNotifier(notify.EmailConfig{})
	assert.ErrorIs(t, err, notify.ErrInvalidConfig)
}
