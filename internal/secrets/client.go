// Package secrets obtains short-lived access tokens from the token-issuing
// proxy, given a long-lived API key.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNoCredential indicates no API key is available from any source.
	ErrNoCredential = errors.New("no api key available")
	// ErrAPIKeyRejected indicates the proxy refused the API key (401/403).
	ErrAPIKeyRejected = errors.New("api key invalid or expired")
)

// expiryBuffer keeps tokens that are about to expire from being handed to
// in-flight requests.
const expiryBuffer = 5 * time.Minute

// KeyStore persists the API key across sessions.
type KeyStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string // optional bootstrap; falls back to the stored key
	StorageKey string // key under which the API key is persisted
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time // test hook, defaults to time.Now
}

// Client fetches and caches access tokens. Safe for concurrent use; a
// refresh holds the lock, so concurrent callers wait rather than issuing
// duplicate token requests.
type Client struct {
	baseURL    string
	storageKey string
	store      KeyStore
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	apiKey string
	token  string
	expiry time.Time
}

// NewClient creates a credential client. The API key is resolved lazily:
// an explicit key wins, otherwise the stored key is used.
func NewClient(store KeyStore, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		storageKey: opts.StorageKey,
		store:      store,
		httpClient: httpClient,
		logger:     logger,
		now:        now,
	}
}

// Initialize resolves the API key and fetches an initial token.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.resolveAPIKey(); err != nil {
		return err
	}
	return c.refresh(ctx)
}

// SetAPIKey installs a new API key (e.g. from the URL bootstrap parameter)
// and drops any cached token so the next request uses the new key.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = key
	c.clearToken()
}

// Expired reports whether the cached token is missing or inside the safety
// buffer before its expiry.
func (c *Client) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired()
}

func (c *Client) expired() bool {
	if c.token == "" || c.expiry.IsZero() {
		return true
	}
	return !c.now().Before(c.expiry.Add(-expiryBuffer))
}

// Token returns a valid access token, refreshing synchronously when the
// cached one is expired or force is set. It never returns a token inside
// the buffer window.
func (c *Client) Token(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if force || c.expired() {
		if err := c.refresh(ctx); err != nil {
			return "", err
		}
	}
	return c.token, nil
}

// ClearToken drops the cached token and expiry.
func (c *Client) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearToken()
}

func (c *Client) clearToken() {
	c.token = ""
	c.expiry = time.Time{}
}

// ClearAPIKey forgets the API key everywhere, including the store.
func (c *Client) ClearAPIKey() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = ""
	c.clearToken()
	if c.store != nil && c.storageKey != "" {
		if err := c.store.Delete(c.storageKey); err != nil {
			c.logger.Warn("could not clear stored api key", "error", err)
		}
	}
}

func (c *Client) resolveAPIKey() (string, error) {
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	if c.store != nil && c.storageKey != "" {
		if stored, err := c.store.Get(c.storageKey); err == nil && stored != "" {
			c.apiKey = stored
			return stored, nil
		}
	}
	return "", ErrNoCredential
}

type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	Expiry      json.RawMessage `json:"expiry,omitempty"`
}

// refresh fetches a new token. Any failure clears the cached token entirely;
// no partial or stale state is retained.
func (c *Client) refresh(ctx context.Context) error {
	apiKey, err := c.resolveAPIKey()
	if err != nil {
		return err
	}

	tokenURL := fmt.Sprintf("%s/oauth/token?api-key=%s", c.baseURL, url.QueryEscape(apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL, nil)
	if err != nil {
		c.clearToken()
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.clearToken()
		return fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.clearToken()
		return ErrAPIKeyRejected
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.clearToken()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("token endpoint error: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.clearToken()
		return fmt.Errorf("read token response: %w", err)
	}
	if len(body) == 0 {
		c.clearToken()
		return errors.New("empty token response")
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		c.clearToken()
		return fmt.Errorf("parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		c.clearToken()
		return errors.New("no access token in response")
	}

	c.token = tr.AccessToken
	c.expiry = c.parseExpiry(tr.Expiry)

	// Persist the key that worked so the next session doesn't need it resupplied.
	if c.store != nil && c.storageKey != "" {
		if err := c.store.Set(c.storageKey, apiKey); err != nil {
			c.logger.Warn("could not persist api key", "error", err)
		}
	}

	c.logger.Debug("access token refreshed", "expires", c.expiry)
	return nil
}

// parseExpiry accepts an RFC3339 string, a unix-seconds number, or a numeric
// string. A missing or unparseable expiry defaults to one hour out.
func (c *Client) parseExpiry(raw json.RawMessage) time.Time {
	fallback := c.now().Add(time.Hour)
	if len(raw) == 0 {
		return fallback
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if t, err := time.Parse(time.RFC3339, asString); err == nil {
			return t
		}
		if secs, err := strconv.ParseInt(asString, 10, 64); err == nil {
			return time.Unix(secs, 0)
		}
		return fallback
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return time.Unix(int64(asNumber), 0)
	}
	return fallback
}
