package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"github.com/waylon256yhw/simple-vertex-bridge/internal/core"
)

const (
	// DefaultExpiryBuffer is how long before hard expiry a token is treated
	// as stale and proactively refreshed.
	DefaultExpiryBuffer = 10 * time.Minute
	// DefaultRefreshInterval is the background refresh cadence.
	DefaultRefreshInterval = 5 * time.Minute
)

var tokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "svbridge_token_refreshes_total",
	Help: "Credential exchange attempts by result.",
}, []string{"result"})

// ServiceAccountConfig configures the managed-token strategy.
type ServiceAccountConfig struct {
	ProjectID string
	Source    TokenSource
	// ExpiryBuffer is the grace window: a token inside the buffer is stale
	// (refresh wanted) but still servable if the refresh fails.
	ExpiryBuffer time.Duration
	// RefreshInterval is the background refresh cadence; zero disables the
	// timer, leaving the on-demand path as the only refresher.
	RefreshInterval time.Duration
	// CacheFile, when set, persists the token across restarts.
	CacheFile string
	Logger    *slog.Logger
}

// ServiceAccountAuth holds a cached bearer token refreshed on demand and on a
// fixed background schedule. The token and its expiry are read and written
// only inside the mutex-guarded critical section.
type ServiceAccountAuth struct {
	projectID       string
	source          TokenSource
	expiryBuffer    time.Duration
	refreshInterval time.Duration
	cacheFile       string
	log             *slog.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time

	cron *cron.Cron
}

// NewServiceAccountAuth creates the managed-token strategy.
func NewServiceAccountAuth(cfg ServiceAccountConfig) *ServiceAccountAuth {
	if cfg.ExpiryBuffer <= 0 {
		cfg.ExpiryBuffer = DefaultExpiryBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ServiceAccountAuth{
		projectID:       cfg.ProjectID,
		source:          cfg.Source,
		expiryBuffer:    cfg.ExpiryBuffer,
		refreshInterval: cfg.RefreshInterval,
		cacheFile:       cfg.CacheFile,
		log:             cfg.Logger,
	}
}

// Headers returns bearer headers, refreshing the token first if it is stale.
func (a *ServiceAccountAuth) Headers(ctx context.Context) (map[string]string, error) {
	token, ok := a.cached()
	if !ok {
		var err error
		token, err = a.refresh(ctx)
		if err != nil {
			return nil, err
		}
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	if a.projectID != "" {
		headers["x-goog-user-project"] = a.projectID
	}
	return headers, nil
}

// SupportsNativePassthrough reports true: the regional Vertex endpoints accept
// the native wire format directly.
func (a *ServiceAccountAuth) SupportsNativePassthrough() bool {
	return true
}

// cached returns the token without refreshing if it is outside the buffer.
func (a *ServiceAccountAuth) cached() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fresh() {
		return a.token, true
	}
	return "", false
}

// fresh reports whether the cached token is valid beyond the expiry buffer.
// Callers must hold the mutex.
func (a *ServiceAccountAuth) fresh() bool {
	return a.token != "" && time.Now().Add(a.expiryBuffer).Before(a.expiry)
}

// refresh performs the credential exchange inside the critical section.
// The expiry is re-checked under the lock so callers that raced in behind a
// concurrent refresh reuse its result instead of exchanging again.
func (a *ServiceAccountAuth) refresh(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fresh() {
		return a.token, nil
	}

	value, expiry, err := a.source.Token(ctx)
	if err != nil {
		// Grace: a token inside the buffer but short of hard expiry is
		// still honest to serve. Once truly expired, fail the request.
		if a.token != "" && time.Now().Before(a.expiry) {
			tokenRefreshes.WithLabelValues("stale_served").Inc()
			a.log.Warn("token refresh failed, serving last good token",
				"error", err, "expires_in", time.Until(a.expiry).Round(time.Second))
			return a.token, nil
		}
		tokenRefreshes.WithLabelValues("failure").Inc()
		return "", core.NewAuthError("token refresh failed", err)
	}

	a.token = value
	a.expiry = expiry
	tokenRefreshes.WithLabelValues("success").Inc()
	a.log.Info("token refreshed", "expiry", expiry.Format(time.RFC3339))
	a.saveCachedToken()
	return a.token, nil
}

// ChatCompletionsURL returns the regional OpenAI-compatible endpoint.
func (a *ServiceAccountAuth) ChatCompletionsURL(region string) (string, error) {
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/endpoints/openapi/chat/completions",
		regionBaseURL(region), a.projectID, region), nil
}

// GenerateURL returns the regional model method endpoint.
func (a *ServiceAccountAuth) GenerateURL(region, model, method string) string {
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:%s",
		regionBaseURL(region), a.projectID, region, model, method)
}

// ModelsURL returns the publisher model listing endpoint. Model listing is
// region-agnostic and always served from the global host.
func (a *ServiceAccountAuth) ModelsURL(publisher string) string {
	return fmt.Sprintf("%s/v1beta1/publishers/%s/models", regionBaseURL("global"), publisher)
}

func regionBaseURL(region string) string {
	if region == "global" {
		return "https://aiplatform.googleapis.com"
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com", region)
}

// Start loads any persisted token, performs an eager refresh and starts the
// background refresher. A failed eager refresh is logged, not fatal: the
// on-demand path retries on the first request.
func (a *ServiceAccountAuth) Start(ctx context.Context) error {
	a.loadCachedToken()

	if _, err := a.refresh(ctx); err != nil {
		a.log.Warn("initial token refresh failed", "error", err)
	}

	if a.refreshInterval > 0 {
		a.cron = cron.New()
		a.cron.Schedule(cron.Every(a.refreshInterval), cron.FuncJob(func() {
			if _, err := a.refresh(context.Background()); err != nil {
				a.log.Error("background token refresh failed", "error", err)
			}
		}))
		a.cron.Start()
		a.log.Info("background token refresh scheduled", "interval", a.refreshInterval)
	}
	return nil
}

// Stop halts the background refresher.
func (a *ServiceAccountAuth) Stop() {
	if a.cron != nil {
		a.cron.Stop()
	}
}
