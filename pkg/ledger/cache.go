/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bluele/gcache"
	"github.com/hyperledger/aries-framework-go/component/log"
)

var logger = log.New("aries-framework/ledger")

const (
	defaultCacheSize = 1000

	keySchema    = "schema:"
	keyCredDef   = "cred_def:"
	keyRevRegDef = "rev_reg_def:"
)

// CachingReader caches the immutable artifacts of another Reader. Revocation deltas and status lists
// change over time and are always read through.
type CachingReader struct {
	next   Reader
	gstore gcache.Cache
}

var _ Reader = (*CachingReader)(nil)

type cacheOpts struct {
	size int
	ttl  time.Duration
}

// CacheOption configures a CachingReader.
type CacheOption func(o *cacheOpts)

// WithCacheSize bounds the number of cached artifacts; the least recently used are evicted first.
func WithCacheSize(size int) CacheOption {
	return func(o *cacheOpts) {
		o.size = size
	}
}

// WithCacheTTL expires cached artifacts after ttl.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(o *cacheOpts) {
		o.ttl = ttl
	}
}

// NewCachingReader wraps next.
func NewCachingReader(next Reader, opts ...CacheOption) *CachingReader {
	o := &cacheOpts{size: defaultCacheSize}

	for _, opt := range opts {
		opt(o)
	}

	builder := gcache.New(o.size).LRU()
	if o.ttl > 0 {
		builder = builder.Expiration(o.ttl)
	}

	return &CachingReader{next: next, gstore: builder.Build()}
}

// GetSchema implements Reader.
func (c *CachingReader) GetSchema(ctx context.Context, id string) (json.RawMessage, error) {
	return c.cached(keySchema+id, func() (json.RawMessage, error) { return c.next.GetSchema(ctx, id) })
}

// GetCredDef implements Reader.
func (c *CachingReader) GetCredDef(ctx context.Context, id string) (json.RawMessage, error) {
	return c.cached(keyCredDef+id, func() (json.RawMessage, error) { return c.next.GetCredDef(ctx, id) })
}

// GetRevRegDef implements Reader.
func (c *CachingReader) GetRevRegDef(ctx context.Context, id string) (json.RawMessage, error) {
	return c.cached(keyRevRegDef+id, func() (json.RawMessage, error) { return c.next.GetRevRegDef(ctx, id) })
}

// GetRevRegDelta implements Reader.
func (c *CachingReader) GetRevRegDelta(ctx context.Context, id string, from, to *int64) (*RevRegDelta, error) {
	return c.next.GetRevRegDelta(ctx, id, from, to)
}

// GetRevStatusList implements Reader.
func (c *CachingReader) GetRevStatusList(ctx context.Context, id string, timestamp *int64) (*RevStatusList, error) {
	return c.next.GetRevStatusList(ctx, id, timestamp)
}

// Purge drops every cached artifact.
func (c *CachingReader) Purge() {
	c.gstore.Purge()
}

// cached returns the value under key, loading and caching it on a miss. Errors, not-found included,
// are never cached.
func (c *CachingReader) cached(key string, load func() (json.RawMessage, error)) (json.RawMessage, error) {
	v, err := c.gstore.Get(key)
	if err == nil {
		if raw, ok := v.(json.RawMessage); ok {
			return slices.Clone(raw), nil
		}
	} else if !errors.Is(err, gcache.KeyNotFoundError) {
		logger.Warnf("ledger cache get %s: %s", key, err)
	}

	raw, err := load()
	if err != nil {
		return nil, err
	}

	if err = c.gstore.Set(key, slices.Clone(raw)); err != nil {
		return nil, fmt.Errorf("ledger cache set %s: %w", key, err)
	}

	return raw, nil
}
