package tts_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/tts"
)

type countingSynthesizer struct {
	calls int
	audio []byte
}

func (c *countingSynthesizer) Synthesize(
	_ context.Context,
	_ string,
	_ core.Voice,
	_ core.AudioParams,
) ([]byte, error) {
	c.calls++

	return c.audio, nil
}

func TestCachingSynthesizer_ReusesResult(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := &countingSynthesizer{audio: []byte("audio")}
	cached := tts.NewCachingSynthesizer(ctx, inner, time.Hour)

	for range 3 {
		audio, err := cached.Synthesize(ctx, "<speak>a</speak>", testVoice, testParams)
		require.NoError(t, err)
		assert.Equal(t, []byte("audio"), audio)
	}

	assert.Equal(t, 1, inner.calls)

	slower := testParams
	slower.SpeakingRate = 0.5

	_, err := cached.Synthesize(ctx, "<speak>a</speak>", testVoice, slower)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "different parameters must miss the cache")
}

func TestCachingSynthesizer_DoesNotCacheEmptyPayload(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := &countingSynthesizer{}
	cached := tts.NewCachingSynthesizer(ctx, inner, time.Hour)

	for range 2 {
		audio, err := cached.Synthesize(ctx, "<speak>a</speak>", testVoice, testParams)
		require.NoError(t, err)
		assert.Empty(t, audio)
	}

	assert.Equal(t, 2, inner.calls)
}
