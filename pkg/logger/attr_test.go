package logger_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwellcare/billing/pkg/logger"
)

func TestGroup(t *testing.T) {
	attr := logger.Group("event", slog.String("id", "evt_1"), slog.Int("n", 2))
	require.Equal(t, "event", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "id", g[0].Key)
	assert.Equal(t, "n", g[1].Key)
}

func TestError(t *testing.T) {
	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	empty := logger.Error(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestErrors(t *testing.T) {
	err1 := errors.New("first")
	err2 := errors.New("second")

	attr := logger.Errors(err1, nil, err2)
	require.Equal(t, "errors", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, err1, g[0].Value.Any())
	assert.Equal(t, err2, g[1].Value.Any())

	empty := logger.Errors(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestSubscriberID(t *testing.T) {
	attr := logger.SubscriberID("sub-123")
	require.Equal(t, "subscriber_id", attr.Key)
	assert.Equal(t, "sub-123", attr.Value.Any())

	empty := logger.SubscriberID(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestTier(t *testing.T) {
	attr := logger.Tier("priority")
	require.Equal(t, "tier", attr.Key)
	assert.Equal(t, "priority", attr.Value.String())
}

func TestEventID(t *testing.T) {
	attr := logger.EventID("evt_9")
	require.Equal(t, "event_id", attr.Key)
	assert.Equal(t, "evt_9", attr.Value.String())
}
