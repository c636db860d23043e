package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/XiaoConstantine/promptforge/pkg/core"
)

// CachedLLM decorates a model so repeated identical Generate calls are
// served from a cache. Structured and streaming calls always reach the
// model.
type CachedLLM struct {
	inner core.LLM
	cache Cache
	ttl   time.Duration
}

// Wrap decorates inner with response caching. Responses are kept for ttl; a
// zero ttl keeps them until evicted.
func Wrap(inner core.LLM, cache Cache, ttl time.Duration) *CachedLLM {
	return &CachedLLM{inner: inner, cache: cache, ttl: ttl}
}

// Generate serves the response cached for an identical earlier call when one
// exists, and otherwise calls the wrapped model and caches the result.
// Responses carry cache_hit and cache_key metadata either way.
func (l *CachedLLM) Generate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.LLMResponse, error) {
	key := Key(l.inner.ModelID(), prompt, options...)

	if data, ok, err := l.cache.Get(ctx, key); err == nil && ok {
		var response core.LLMResponse
		if err := json.Unmarshal(data, &response); err == nil {
			annotate(&response, key, true)
			return &response, nil
		}
	}

	response, err := l.inner.Generate(ctx, prompt, options...)
	if err != nil || response == nil {
		return response, err
	}

	annotate(response, key, false)
	if data, err := json.Marshal(response); err == nil {
		_ = l.cache.Set(ctx, key, data, l.ttl)
	}
	return response, nil
}

// GenerateWithJSON bypasses the cache.
func (l *CachedLLM) GenerateWithJSON(ctx context.Context, prompt string, options ...core.GenerateOption) (map[string]interface{}, error) {
	return l.inner.GenerateWithJSON(ctx, prompt, options...)
}

// StreamGenerate bypasses the cache.
func (l *CachedLLM) StreamGenerate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.StreamResponse, error) {
	return l.inner.StreamGenerate(ctx, prompt, options...)
}

// ProviderName implements core.LLM.
func (l *CachedLLM) ProviderName() string {
	return l.inner.ProviderName()
}

// ModelID implements core.LLM.
func (l *CachedLLM) ModelID() string {
	return l.inner.ModelID()
}

// Capabilities implements core.LLM.
func (l *CachedLLM) Capabilities() []core.Capability {
	return l.inner.Capabilities()
}

func annotate(response *core.LLMResponse, key string, hit bool) {
	if response.Metadata == nil {
		response.Metadata = make(map[string]interface{})
	}
	response.Metadata["cache_hit"] = hit
	response.Metadata["cache_key"] = key
}
