// Package cache caches model responses so identical Generate calls within a
// TTL are served locally instead of reaching the provider again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/XiaoConstantine/promptforge/pkg/core"
)

// Cache stores serialized model responses by key.
type Cache interface {
	// Get retrieves a cached value by key.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under key. A zero TTL keeps the value until it is
	// evicted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Clear removes all cached values.
	Clear(ctx context.Context) error

	// Stats returns cache counters.
	Stats() Stats

	// Close releases any resources held by the cache.
	Close() error
}

// Stats contains cache performance counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Evictions int64 `json:"evictions"`
	Entries   int64 `json:"entries"`
	Bytes     int64 `json:"bytes"`
	MaxBytes  int64 `json:"max_bytes"`
}

// Key derives a deterministic cache key from the model and the effective
// generation parameters. Calls that could produce different generations get
// distinct keys.
func Key(modelID string, prompt string, options ...core.GenerateOption) string {
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%g\x00%g\x00%s",
		modelID, prompt, opts.MaxTokens, opts.Temperature, opts.TopP,
		strings.Join(opts.Stop, ","))
	return fmt.Sprintf("%s_%s", modelID, hex.EncodeToString(h.Sum(nil))[:16])
}
