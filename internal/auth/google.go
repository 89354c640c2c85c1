package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// googleTokenSource adapts an oauth2 token source to the bridge's seam.
type googleTokenSource struct {
	ts oauth2.TokenSource
}

// NewGoogleTokenSource builds a TokenSource over Application Default
// Credentials.
func NewGoogleTokenSource(ctx context.Context) (TokenSource, error) {
	ts, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("application default credentials not available: %w", err)
	}
	return &googleTokenSource{ts: ts}, nil
}

// Token exchanges credentials for a bearer token. oauth2.TokenSource has no
// context parameter, so the exchange runs in a goroutine and the caller's
// cancellation is honored by abandoning its result.
func (g *googleTokenSource) Token(ctx context.Context) (string, time.Time, error) {
	type exchange struct {
		tok *oauth2.Token
		err error
	}
	done := make(chan exchange, 1)
	go func() {
		tok, err := g.ts.Token()
		done <- exchange{tok: tok, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", time.Time{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", time.Time{}, r.err
		}
		return r.tok.AccessToken, r.tok.Expiry, nil
	}
}

// DefaultProjectID discovers the project ID carried by Application Default
// Credentials.
func DefaultProjectID(ctx context.Context) (string, error) {
	creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
	if err != nil {
		return "", fmt.Errorf("application default credentials not available: %w", err)
	}
	if creds.ProjectID == "" {
		return "", fmt.Errorf("no project ID in default credentials; set GOOGLE_CLOUD_PROJECT or run gcloud auth application-default login")
	}
	return creds.ProjectID, nil
}
