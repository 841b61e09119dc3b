package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	gcache "github.com/Code-Hex/go-generics-cache"

	"github.com/book-expert/narrator/internal/core"
)

// CachingSynthesizer remembers recent synthesis results so re-running a
// conversion with unchanged fragments does not hit the remote service again.
// Empty payloads and errors are never cached.
type CachingSynthesizer struct {
	next  core.Synthesizer
	cache *gcache.Cache[string, []byte]
	ttl   time.Duration
}

// NewCachingSynthesizer wraps next. The cache janitor stops when ctx is done.
func NewCachingSynthesizer(ctx context.Context, next core.Synthesizer, ttl time.Duration) *CachingSynthesizer {
	return &CachingSynthesizer{
		next:  next,
		cache: gcache.NewContext[string, []byte](ctx),
		ttl:   ttl,
	}
}

// Synthesize implements core.Synthesizer.
func (c *CachingSynthesizer) Synthesize(
	ctx context.Context,
	markup string,
	voice core.Voice,
	params core.AudioParams,
) ([]byte, error) {
	key := cacheKey(markup, voice, params)

	cached, ok := c.cache.Get(key)
	if ok {
		return cached, nil
	}

	audio, synthErr := c.next.Synthesize(ctx, markup, voice, params)
	if synthErr != nil {
		return nil, synthErr
	}

	if len(audio) > 0 {
		c.cache.Set(key, audio, gcache.WithExpiration(c.ttl))
	}

	return audio, nil
}

func cacheKey(markup string, voice core.Voice, params core.AudioParams) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%s|%g|%g|%s",
		voice.LanguageCode, voice.Name, voice.Gender,
		params.Encoding, params.SpeakingRate, params.Pitch, markup))

	return hex.EncodeToString(sum[:])
}
