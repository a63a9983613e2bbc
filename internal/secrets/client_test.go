package secrets_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ganot/dayloop/internal/secrets"
)

type memStore struct {
	values map[string]string
}

func newMemStore() *memStore { return &memStore{values: map[string]string{}} }

func (m *memStore) Get(key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", fmt.Errorf("key not found")
	}
	return v, nil
}

func (m *memStore) Set(key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memStore) Delete(key string) error {
	delete(m.values, key)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, baseURL, apiKey string, store secrets.KeyStore, now func() time.Time) *secrets.Client {
	t.Helper()
	return secrets.NewClient(store, secrets.Options{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		StorageKey: "api_key",
		Logger:     testLogger(),
		Now:        now,
	})
}

func TestToken_FetchAndCache(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.Equal(t, "key1", r.URL.Query().Get("api-key"))
		require.Equal(t, "key1", r.Header.Get("X-API-Key"))
		expiry := time.Now().Add(time.Hour).Format(time.RFC3339)
		fmt.Fprintf(w, `{"access_token":"tok-1","expiry":%q}`, expiry)
	}))
	defer srv.Close()

	client := newClient(t, srv.URL, "key1", newMemStore(), nil)

	tok, err := client.Token(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok)

	tok, err = client.Token(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok)
	require.Equal(t, 1, calls, "second call served from cache")

	_, err = client.Token(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, 2, calls, "force refreshes")
}

func TestToken_ExpiryBuffer(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// Expires 4 minutes out: inside the 5-minute safety buffer.
		fmt.Fprintf(w, `{"access_token":"tok-%d","expiry":%q}`, calls, now.Add(4*time.Minute).Format(time.RFC3339))
	}))
	defer srv.Close()

	client := newClient(t, srv.URL, "k", newMemStore(), func() time.Time { return now })

	_, err := client.Token(context.Background(), false)
	require.NoError(t, err)
	require.True(t, client.Expired(), "token within the buffer counts as expired")

	_, err = client.Token(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 2, calls, "buffered token is refreshed, not reused")
}

func TestToken_ExpiryFormats(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		payload string
		expired bool
	}{
		{"rfc3339", fmt.Sprintf(`{"access_token":"t","expiry":%q}`, now.Add(2*time.Hour).Format(time.RFC3339)), false},
		{"unix number", fmt.Sprintf(`{"access_token":"t","expiry":%d}`, now.Add(2*time.Hour).Unix()), false},
		{"numeric string", fmt.Sprintf(`{"access_token":"t","expiry":"%d"}`, now.Add(2*time.Hour).Unix()), false},
		{"missing defaults to an hour", `{"access_token":"t"}`, false},
		{"garbage defaults to an hour", `{"access_token":"t","expiry":"soon"}`, false},
		{"already past", fmt.Sprintf(`{"access_token":"t","expiry":%q}`, now.Add(-time.Hour).Format(time.RFC3339)), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tc.payload)
			}))
			defer srv.Close()

			client := newClient(t, srv.URL, "k", newMemStore(), func() time.Time { return now })
			_, err := client.Token(context.Background(), false)
			require.NoError(t, err)
			require.Equal(t, tc.expired, client.Expired())
		})
	}
}

func TestRefresh_RejectedKeyClearsToken(t *testing.T) {
	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		fmt.Fprintf(w, `{"access_token":"tok","expiry":%q}`, time.Now().Add(time.Hour).Format(time.RFC3339))
	}))
	defer srv.Close()

	client := newClient(t, srv.URL, "k", newMemStore(), nil)
	_, err := client.Token(context.Background(), false)
	require.NoError(t, err)
	require.False(t, client.Expired())

	status = http.StatusUnauthorized
	_, err = client.Token(context.Background(), true)
	require.ErrorIs(t, err, secrets.ErrAPIKeyRejected)
	require.True(t, client.Expired(), "failed refresh retains no stale token")

	status = http.StatusForbidden
	_, err = client.Token(context.Background(), true)
	require.ErrorIs(t, err, secrets.ErrAPIKeyRejected)
}

func TestRefresh_MalformedResponses(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"not json", "<html>"},
		{"no token field", `{"expiry":"2030-01-01T00:00:00Z"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			client := newClient(t, srv.URL, "k", newMemStore(), nil)
			_, err := client.Token(context.Background(), false)
			require.Error(t, err)
			require.True(t, client.Expired())
		})
	}
}

func TestAPIKey_PersistedOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok"}`)
	}))
	defer srv.Close()

	store := newMemStore()
	client := newClient(t, srv.URL, "fresh-key", store, nil)
	require.NoError(t, client.Initialize(context.Background()))
	require.Equal(t, "fresh-key", store.values["api_key"])
}

func TestAPIKey_FallsBackToStored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "stored-key", r.Header.Get("X-API-Key"))
		fmt.Fprint(w, `{"access_token":"tok"}`)
	}))
	defer srv.Close()

	store := newMemStore()
	store.values["api_key"] = "stored-key"
	client := newClient(t, srv.URL, "", store, nil)

	tok, err := client.Token(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "tok", tok)
}

func TestNoCredential(t *testing.T) {
	client := newClient(t, "http://unused", "", newMemStore(), nil)
	err := client.Initialize(context.Background())
	require.ErrorIs(t, err, secrets.ErrNoCredential)

	_, err = client.Token(context.Background(), false)
	require.ErrorIs(t, err, secrets.ErrNoCredential)
}

func TestClearAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok"}`)
	}))
	defer srv.Close()

	store := newMemStore()
	client := newClient(t, srv.URL, "k", store, nil)
	require.NoError(t, client.Initialize(context.Background()))
	require.Contains(t, store.values, "api_key")

	client.ClearAPIKey()
	require.NotContains(t, store.values, "api_key")
	_, err := client.Token(context.Background(), false)
	require.ErrorIs(t, err, secrets.ErrNoCredential)
}

func TestSetAPIKey_DropsCachedToken(t *testing.T) {
	var lastKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastKey = r.Header.Get("X-API-Key")
		fmt.Fprint(w, `{"access_token":"tok"}`)
	}))
	defer srv.Close()

	client := newClient(t, srv.URL, "old", newMemStore(), nil)
	_, err := client.Token(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "old", lastKey)

	client.SetAPIKey("new")
	_, err = client.Token(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "new", lastKey)
}
