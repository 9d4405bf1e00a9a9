// Package lark implements the thin clients for the Lark open platform:
// tenant token acquisition and the calendar source API.
package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// tokenSlack is subtracted from the advertised token lifetime so a token is
// refreshed before the platform actually rejects it.
const tokenSlack = 5 * time.Minute

// TokenSource acquires and caches the tenant access token used for table
// uploads. It holds {token, expiry} explicitly and is safe for concurrent
// use; callers pass the source by handle instead of reading global state.
type TokenSource struct {
	appID     string
	appSecret string
	baseURL   string
	httpc     *http.Client
	log       *zap.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewTokenSource creates a token source for the given app credentials.
// If httpc is nil a client with a 30 second timeout is used.
func NewTokenSource(appID, appSecret, baseURL string, httpc *http.Client, log *zap.Logger) *TokenSource {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenSource{
		appID:     appID,
		appSecret: appSecret,
		baseURL:   baseURL,
		httpc:     httpc,
		log:       log,
		now:       time.Now,
	}
}

// Token returns a valid tenant access token, refreshing it over the network
// when the cached one is absent or within the expiry slack.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Before(ts.expiresAt) {
		return ts.token, nil
	}

	token, expiresIn, err := ts.fetch(ctx)
	if err != nil {
		return "", err
	}

	ts.token = token
	ts.expiresAt = ts.now().Add(time.Duration(expiresIn)*time.Second - tokenSlack)
	ts.log.Debug("refreshed tenant access token",
		zap.Time("expires_at", ts.expiresAt))

	return ts.token, nil
}

// Invalidate drops the cached token so the next Token call refreshes.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = ""
	ts.expiresAt = time.Time{}
}

func (ts *TokenSource) fetch(ctx context.Context) (string, int, error) {
	body, err := json.Marshal(map[string]string{
		"app_id":     ts.appID,
		"app_secret": ts.appSecret,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal token request: %w", err)
	}

	url := ts.baseURL + "/auth/v3/tenant_access_token/internal"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := ts.httpc.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token request returned HTTP %d", resp.StatusCode)
	}

	var out struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
		Expire            int    `json:"expire"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("failed to decode token response: %w", err)
	}
	if out.Code != 0 {
		return "", 0, fmt.Errorf("token request rejected: code=%d msg=%s", out.Code, out.Msg)
	}
	if out.TenantAccessToken == "" {
		return "", 0, fmt.Errorf("token response carried no token")
	}

	return out.TenantAccessToken, out.Expire, nil
}
