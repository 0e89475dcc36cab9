package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"eventregistration/internal/domain"
	"eventregistration/internal/metrics"
)

const (
	DefaultCredentialTTL  = 5 * time.Minute
	DefaultVerifyTimeout  = 10 * time.Second
	DefaultMaxCredentials = 10000
)

// CredentialCacheConfig tunes a CredentialCache. Zero values fall back to the defaults;
// a zero SweepInterval sweeps once per TTL, a negative one disables the background sweep.
type CredentialCacheConfig struct {
	TTL           time.Duration
	VerifyTimeout time.Duration
	SweepInterval time.Duration
	MaxEntries    int
	Now           func() time.Time
}

type credentialEntry struct {
	identity  *domain.Identity
	expiresAt time.Time
}

// CredentialCache memoizes verified bearer tokens for a bounded time. It is the single
// authentication path for every privileged entry point.
type CredentialCache struct {
	verifier      domain.TokenVerifier
	logger        *slog.Logger
	metrics       *metrics.Metrics
	ttl           time.Duration
	verifyTimeout time.Duration
	maxEntries    int
	now           func() time.Time

	mu      sync.RWMutex
	entries map[string]credentialEntry
	group   singleflight.Group

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewCredentialCache returns a cache in front of verifier and starts its sweeper.
// Call Close to stop the sweeper.
func NewCredentialCache(verifier domain.TokenVerifier, logger *slog.Logger, m *metrics.Metrics, cfg CredentialCacheConfig) *CredentialCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCredentialTTL
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = DefaultVerifyTimeout
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxCredentials
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = cfg.TTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &CredentialCache{
		verifier:      verifier,
		logger:        logger,
		metrics:       m,
		ttl:           cfg.TTL,
		verifyTimeout: cfg.VerifyTimeout,
		maxEntries:    cfg.MaxEntries,
		now:           cfg.Now,
		entries:       make(map[string]credentialEntry),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go c.run(cfg.SweepInterval)
	} else {
		close(c.done)
	}
	return c
}

// AuthenticateHeader authenticates the raw Authorization header value. A missing or
// malformed header yields nil without calling the verifier.
func (c *CredentialCache) AuthenticateHeader(ctx context.Context, header string) *domain.Identity {
	token, ok := domain.BearerToken(header)
	if !ok {
		return nil
	}
	return c.Authenticate(ctx, token)
}

// Authenticate returns the identity for token, or nil when it cannot be verified.
// It never returns the verifier's error; failures are logged at warn level.
func (c *CredentialCache) Authenticate(ctx context.Context, token string) *domain.Identity {
	if token == "" {
		return nil
	}
	if identity, ok := c.lookup(token); ok {
		c.metrics.CacheHit()
		return identity
	}
	c.metrics.CacheMiss()

	ch := c.group.DoChan(token, func() (any, error) {
		return c.verify(ctx, token)
	})
	select {
	case <-ctx.Done():
		c.logger.WarnContext(ctx, "credential verification abandoned", "err", ctx.Err())
		return nil
	case res := <-ch:
		if res.Err != nil {
			c.metrics.VerifyFailure()
			c.logger.WarnContext(ctx, "credential verification failed", "err", res.Err)
			return nil
		}
		return res.Val.(*domain.Identity).Clone()
	}
}

// verify calls the verifier under the hard timeout and caches a success.
// The call is detached from the first caller's cancellation because other callers may share it.
func (c *CredentialCache) verify(ctx context.Context, token string) (*domain.Identity, error) {
	vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.verifyTimeout)
	defer cancel()

	type result struct {
		identity *domain.Identity
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		identity, err := c.verifier.Verify(vctx, token)
		ch <- result{identity: identity, err: err}
	}()

	var res result
	select {
	case <-vctx.Done():
		return nil, vctx.Err()
	case res = <-ch:
	}
	if res.err != nil {
		return nil, res.err
	}
	if res.identity == nil {
		return nil, domain.ErrUnauthenticated
	}

	now := c.now()
	expiresAt := now.Add(c.ttl)
	if !res.identity.ExpiresAt.IsZero() && res.identity.ExpiresAt.Before(expiresAt) {
		expiresAt = res.identity.ExpiresAt
	}
	if expiresAt.After(now) {
		c.store(token, credentialEntry{identity: res.identity.Clone(), expiresAt: expiresAt})
	}
	return res.identity, nil
}

func (c *CredentialCache) lookup(token string) (*domain.Identity, bool) {
	now := c.now()
	c.mu.RLock()
	entry, ok := c.entries[token]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if now.Before(entry.expiresAt) {
		return entry.identity.Clone(), true
	}

	c.mu.Lock()
	if current, ok := c.entries[token]; ok && !now.Before(current.expiresAt) {
		delete(c.entries, token)
		c.metrics.Evicted(1)
	}
	c.metrics.SetCacheEntries(len(c.entries))
	c.mu.Unlock()
	return nil, false
}

func (c *CredentialCache) store(token string, entry credentialEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[token]; !exists && len(c.entries) >= c.maxEntries {
		c.sweepLocked(c.now())
		if len(c.entries) >= c.maxEntries {
			c.evictSoonestLocked()
		}
	}
	c.entries[token] = entry
	c.metrics.SetCacheEntries(len(c.entries))
}

// Sweep evicts every expired entry and returns how many were removed.
func (c *CredentialCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := c.sweepLocked(c.now())
	c.metrics.SetCacheEntries(len(c.entries))
	return removed
}

func (c *CredentialCache) sweepLocked(now time.Time) int {
	removed := 0
	for token, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, token)
			removed++
		}
	}
	c.metrics.Evicted(removed)
	return removed
}

func (c *CredentialCache) evictSoonestLocked() {
	var victim string
	var soonest time.Time
	for token, entry := range c.entries {
		if victim == "" || entry.expiresAt.Before(soonest) {
			victim, soonest = token, entry.expiresAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
		c.metrics.Evicted(1)
	}
}

// Len returns the number of cached entries, expired or not.
func (c *CredentialCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *CredentialCache) run(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("credential cache swept", "evicted", n)
			}
		}
	}
}

// Close stops the background sweep and waits for it to exit. Safe to call more than once.
func (c *CredentialCache) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
	<-c.done
}
