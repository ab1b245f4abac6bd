// Package openidcache caches OpenID credentials issued to a widget's user,
// so a repeated get_openid request within the token's validity period is
// answered without round-tripping to the Matrix client (spec §3.3,
// §4.4.1's "cache hit (non-expired credential)").
package openidcache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/matrix-org/widgetdriver/internal/widget/statemachine"
)

// Cache wraps patrickmn/go-cache with the widget driver's credential type.
// Expiry is native to go-cache: Get returns a miss once a token's
// expires_in has elapsed, so callers never need to check AcquiredAt
// themselves.
type Cache struct {
	inner *gocache.Cache
}

// New constructs a Cache with a background cleanup interval of twice the
// shortest realistic OpenID token lifetime.
func New() *Cache {
	return &Cache{inner: gocache.New(gocache.NoExpiration, 5*time.Minute)}
}

func key(userID, deviceID string) string {
	return userID + "\x00" + deviceID
}

// Put stores creds for (userID, deviceID), expiring after creds.ExpiresIn
// seconds.
func (c *Cache) Put(userID, deviceID string, creds statemachine.OpenIDCredentials) {
	c.inner.Set(key(userID, deviceID), creds, time.Duration(creds.ExpiresIn)*time.Second)
}

// Get returns the cached credentials for (userID, deviceID), if any and
// still valid.
func (c *Cache) Get(userID, deviceID string) (statemachine.OpenIDCredentials, bool) {
	v, ok := c.inner.Get(key(userID, deviceID))
	if !ok {
		return statemachine.OpenIDCredentials{}, false
	}
	creds, ok := v.(statemachine.OpenIDCredentials)
	return creds, ok
}

// Invalidate drops any cached credential for (userID, deviceID).
func (c *Cache) Invalidate(userID, deviceID string) {
	c.inner.Delete(key(userID, deviceID))
}
