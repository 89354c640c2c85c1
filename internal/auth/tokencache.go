package auth

import (
	"encoding/json"
	"os"
	"time"
)

// cachedToken is the on-disk shape of a persisted token.
type cachedToken struct {
	AccessToken string    `json:"access_token"`
	TokenExpiry time.Time `json:"token_expiry"`
}

// loadCachedToken seeds the in-memory token from the cache file so a restart
// does not always pay the exchange latency. Unreadable or expired entries are
// ignored.
func (a *ServiceAccountAuth) loadCachedToken() {
	if a.cacheFile == "" {
		return
	}
	data, err := os.ReadFile(a.cacheFile)
	if err != nil {
		return
	}
	var saved cachedToken
	if err := json.Unmarshal(data, &saved); err != nil {
		a.log.Warn("ignoring unreadable token cache", "file", a.cacheFile, "error", err)
		return
	}
	if saved.AccessToken == "" || !time.Now().Before(saved.TokenExpiry) {
		return
	}
	a.mu.Lock()
	a.token = saved.AccessToken
	a.expiry = saved.TokenExpiry
	a.mu.Unlock()
	a.log.Info("loaded persisted token", "expiry", saved.TokenExpiry.Format(time.RFC3339))
}

// saveCachedToken persists the current token. Callers must hold the mutex.
// Failures are logged and otherwise ignored; persistence is best-effort.
func (a *ServiceAccountAuth) saveCachedToken() {
	if a.cacheFile == "" {
		return
	}
	data, err := json.MarshalIndent(cachedToken{AccessToken: a.token, TokenExpiry: a.expiry}, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(a.cacheFile, data, 0o600); err != nil {
		a.log.Warn("failed to persist token", "file", a.cacheFile, "error", err)
	}
}
