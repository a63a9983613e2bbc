package sheets_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ganot/dayloop/internal/sheets"
)

// staticTokens hands out a fixed token and counts forced refreshes.
type staticTokens struct {
	mu       sync.Mutex
	token    string
	err      error
	forced   int
	requests int
}

func (s *staticTokens) Token(ctx context.Context, force bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if force {
		s.forced++
	}
	return s.token, s.err
}

func newTestClient(t *testing.T, baseURL string, tokens sheets.TokenSource) *sheets.Client {
	t.Helper()
	return sheets.NewClient(sheets.Options{
		BaseURL:     baseURL,
		Tokens:      tokens,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestGetValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/tables/t1/values/activities", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		io.WriteString(w, `{"values":[["ID","Name"],["1","Run"]]}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &staticTokens{token: "tok"})
	rows, err := client.GetValues(context.Background(), "t1", "activities")
	require.NoError(t, err)
	require.Equal(t, [][]string{{"ID", "Name"}, {"1", "Run"}}, rows)
}

func TestSetValues_SendsRows(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &staticTokens{token: "tok"})
	err := client.SetValues(context.Background(), "t1", "config", [][]string{{"Setting", "Value", "Modified"}})
	require.NoError(t, err)
	require.JSONEq(t, `{"values":[["Setting","Value","Modified"]]}`, body)
}

func TestCreateAndFindTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/tables":
			io.WriteString(w, `{"id":"new-id","name":"Daily Routine App Data","ranges":[]}`)
		case r.URL.Path == "/v1/tables:find":
			require.Equal(t, "Daily Routine App Data", r.URL.Query().Get("name"))
			io.WriteString(w, `{"tables":[{"id":"found-id","name":"Daily Routine App Data"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &staticTokens{token: "tok"})

	table, err := client.CreateTable(context.Background(), "Daily Routine App Data")
	require.NoError(t, err)
	require.Equal(t, "new-id", table.ID)

	tables, err := client.FindTableByName(context.Background(), "Daily Routine App Data")
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Equal(t, "found-id", tables[0].ID)
}

func TestAppendValues_PostsToAppendPath(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/tables/t1/values/history:append", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &staticTokens{token: "tok"})
	err := client.AppendValues(context.Background(), "t1", "history", [][]string{{"h1", "Run"}})
	require.NoError(t, err)
	require.JSONEq(t, `{"values":[["h1","Run"]]}`, body)
}

func TestBatchGet_FetchesAllRanges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/tables/t1/values:batchGet", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"ranges":["activities","config"]}`, string(raw))
		io.WriteString(w, `{"valueRanges":[
			{"range":"activities","values":[["ID","Name"]]},
			{"range":"config","values":[]}
		]}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &staticTokens{token: "tok"})
	got, err := client.BatchGet(context.Background(), "t1", []string{"activities", "config"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "activities", got[0].Range)
	require.Equal(t, [][]string{{"ID", "Name"}}, got[0].Values)
	require.Empty(t, got[1].Values)
}

func TestBatchSet_SendsAllRanges(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/tables/t1/values:batchUpdate", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &staticTokens{token: "tok"})
	err := client.BatchSet(context.Background(), "t1", []sheets.ValueRange{
		{Range: "activities", Values: [][]string{{"ID", "Name"}}},
		{Range: "config", Values: [][]string{{"Setting", "Value", "Modified"}}},
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"data":[
		{"range":"activities","values":[["ID","Name"]]},
		{"range":"config","values":[["Setting","Value","Modified"]]}
	]}`, body)
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, `{"values":[]}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &staticTokens{token: "tok"})
	_, err := client.GetValues(context.Background(), "t1", "history")
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetry_ExhaustionKeepsKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &staticTokens{token: "tok"})
	_, err := client.GetValues(context.Background(), "t1", "history")
	require.Error(t, err)
	require.Equal(t, sheets.KindRateLimit, sheets.KindOf(err))
}

func TestRetry_NotFoundDoesNotRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &staticTokens{token: "tok"})
	_, err := client.GetTable(context.Background(), "gone")
	require.Error(t, err)
	require.Equal(t, sheets.KindNotFound, sheets.KindOf(err))
	require.Equal(t, 1, calls, "not-found surfaces immediately")
}

func TestRetry_AuthForcesRefresh(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"values":[]}`)
	}))
	defer srv.Close()

	tokens := &staticTokens{token: "tok"}
	client := newTestClient(t, srv.URL, tokens)
	_, err := client.GetValues(context.Background(), "t1", "config")
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, tokens.forced, "auth failure forces a token refresh")
}

func TestRetry_TokenErrorRetries(t *testing.T) {
	tokens := &staticTokens{err: fmt.Errorf("no api key available")}
	client := newTestClient(t, "http://unused", tokens)
	_, err := client.GetValues(context.Background(), "t1", "config")
	require.Error(t, err)
	require.Equal(t, 3, tokens.requests, "credential fetch is attempted each try")
}

func TestRetry_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := sheets.NewClient(sheets.Options{
		BaseURL:     srv.URL,
		Tokens:      &staticTokens{token: "tok"},
		MaxAttempts: 3,
		BaseDelay:   time.Minute,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.GetValues(ctx, "t1", "history")
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("retry loop did not honor cancellation")
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   sheets.Kind
	}{
		{http.StatusUnauthorized, sheets.KindAuth},
		{http.StatusForbidden, sheets.KindAuth},
		{http.StatusNotFound, sheets.KindNotFound},
		{http.StatusTooManyRequests, sheets.KindRateLimit},
		{http.StatusInternalServerError, sheets.KindTransient},
		{http.StatusBadGateway, sheets.KindTransient},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("status %d", tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			client := sheets.NewClient(sheets.Options{
				BaseURL:     srv.URL,
				Tokens:      &staticTokens{token: "tok"},
				MaxAttempts: 1,
				BaseDelay:   time.Millisecond,
				Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
			})
			_, err := client.GetValues(context.Background(), "t1", "x")
			require.Equal(t, tc.kind, sheets.KindOf(err))
		})
	}
}

func TestKindOf_PlainErrorIsTransient(t *testing.T) {
	require.Equal(t, sheets.KindTransient, sheets.KindOf(fmt.Errorf("dial tcp: refused")))
}
