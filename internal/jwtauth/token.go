// Package jwtauth issues short-lived HS512 bearer tokens for outbound
// calls to the EPR service adapter, and caches the scope claim, per
// spec.md §5's credential-acquisition model.
package jwtauth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrScopeUnavailable is returned in production (see Issuer.Production)
// when the scope cache has no unexpired entry for the audience — the
// caller should treat this as service-unavailable.
var ErrScopeUnavailable = errors.New("jwtauth: scope unavailable")

// ScopeCache is a process-local, short-TTL cache of the JWT "scope"
// claim, keyed by audience.
type ScopeCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	scopes  map[string]cachedScope
}

type cachedScope struct {
	value     string
	fetchedAt time.Time
}

func NewScopeCache(ttl time.Duration) *ScopeCache {
	return &ScopeCache{ttl: ttl, scopes: make(map[string]cachedScope)}
}

// Set stores scope for audience, refreshing its timestamp.
func (c *ScopeCache) Set(audience, scope string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scopes[audience] = cachedScope{value: scope, fetchedAt: time.Now()}
}

// Get returns the cached scope for audience if present and not expired.
func (c *ScopeCache) Get(audience string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.scopes[audience]
	if !ok || time.Since(s.fetchedAt) >= c.ttl {
		return "", false
	}
	return s.value, true
}

// Issuer mints bearer tokens for the EPR service adapter.
type Issuer struct {
	Key        string
	Issuer     string
	Audience   string
	Expiry     time.Duration
	Scopes     *ScopeCache
	Production bool
}

// Issue signs a new HS512 token with claims {iss, aud, scope, exp}. If the
// scope cache has no entry for the audience and Production is true, the
// request fails with ErrScopeUnavailable rather than issuing a
// scope-less token.
func (i *Issuer) Issue(now time.Time) (string, error) {
	scope, ok := i.Scopes.Get(i.Audience)
	if !ok {
		if i.Production {
			return "", ErrScopeUnavailable
		}
		scope = ""
	}

	claims := jwt.MapClaims{
		"iss":   i.Issuer,
		"aud":   i.Audience,
		"scope": scope,
		"exp":   now.Add(i.Expiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString([]byte(i.Key))
}
