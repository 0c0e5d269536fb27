// ABOUTME: Tests for the delivery deduplication stage
// ABOUTME: Duplicates are rejected with an acknowledging 200 status

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/dedupe"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
)

func TestDedupeStage_FirstDeliveryPasses(t *testing.T) {
	cache := dedupe.New(time.Minute, 100)
	defer cache.Close()
	s := NewDedupeStage(5, cache, nil)

	out, rejection := s.Process(context.Background(), testRequest())
	assert.Nil(t, rejection)
	assert.NotNil(t, out)
}

func TestDedupeStage_RedeliveryIsAcknowledged(t *testing.T) {
	cache := dedupe.New(time.Minute, 100)
	defer cache.Close()
	s := NewDedupeStage(5, cache, nil)
	ctx := context.Background()

	_, rejection := s.Process(ctx, testRequest())
	require.Nil(t, rejection)

	_, rejection = s.Process(ctx, testRequest())
	require.NotNil(t, rejection)
	assert.Equal(t, CodeDuplicate, rejection.Code)
	// Webhook transports retry on errors: a duplicate acks with success.
	assert.Equal(t, 200, rejection.Status)
}

func TestDedupeStage_KeysIncludeSource(t *testing.T) {
	cache := dedupe.New(time.Minute, 100)
	defer cache.Close()
	s := NewDedupeStage(5, cache, nil)
	ctx := context.Background()

	_, rejection := s.Process(ctx, testRequest())
	require.Nil(t, rejection)

	// The same id from a different transport is not a duplicate.
	other := testRequest()
	other.Source = message.PlatformCLI
	_, rejection = s.Process(ctx, other)
	assert.Nil(t, rejection)
}

func TestDedupeStage_EmptyIDPasses(t *testing.T) {
	cache := dedupe.New(time.Minute, 100)
	defer cache.Close()
	s := NewDedupeStage(5, cache, nil)
	ctx := context.Background()

	req := testRequest()
	req.ID = ""
	for i := 0; i < 3; i++ {
		_, rejection := s.Process(ctx, req)
		assert.Nil(t, rejection)
	}
}
