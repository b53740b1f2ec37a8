package azrest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azstorex/azstorage/internal/oauth"
	"github.com/azstorex/azstorage/internal/retry"
)

func freshSession(bearer string) *oauth.Session {
	return oauth.NewSession(oauth.ClientCredentials, bearer, time.Now().Add(time.Hour), "tenant", "client", "scope", "resource")
}

func TestCallWithRetrySucceedsFirstTry(t *testing.T) {
	var gotAuth, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("x-ms-version")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient(2*time.Second, 2*time.Second, 4, nil)
	auth := &Auth{Session: freshSession("tok123")}

	var body string
	outcome, verdict, err := c.CallWithRetry(context.Background(), 3, &Opts{
		Method: http.MethodGet,
		URL:    srv.URL + "/blob",
	}, auth, func(resp *http.Response) error {
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, retry.VerdictOK, verdict)
	assert.Equal(t, 200, outcome.Status)
	assert.Equal(t, "Bearer tok123", gotAuth)
	assert.Equal(t, APIVersion, gotVersion)
	assert.Equal(t, "ok", body)
}

func TestCallWithRetryRetriesThenSucceeds(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(2*time.Second, 2*time.Second, 4, nil)
	auth := &Auth{Session: freshSession("tok")}

	outcome, verdict, err := c.CallWithRetry(context.Background(), 5, &Opts{
		Method: http.MethodPut,
		URL:    srv.URL + "/blob",
		Body:   func() (io.Reader, error) { return strings.NewReader("payload"), nil },
	}, auth, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, retry.VerdictOK, verdict)
	assert.Equal(t, 200, outcome.Status)
	assert.EqualValues(t, 3, atomic.LoadInt64(&calls))
}

func TestCallWithRetryStopsOnPermanentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(2*time.Second, 2*time.Second, 4, nil)
	auth := &Auth{Session: freshSession("tok")}

	outcome, verdict, err := c.CallWithRetry(context.Background(), 3, &Opts{
		Method: http.MethodGet,
		URL:    srv.URL,
	}, auth, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, retry.VerdictFatal, verdict)
	assert.Equal(t, 403, outcome.Status)
}

func TestCallWithRetryCapturesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(2*time.Second, 2*time.Second, 4, nil)
	auth := &Auth{Session: freshSession("tok")}

	outcome, verdict, err := c.CallWithRetry(context.Background(), 1, &Opts{
		Method: http.MethodGet,
		URL:    srv.URL,
	}, auth, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, retry.VerdictRetry, verdict)
	assert.True(t, outcome.HasRetryAfter)
	assert.Equal(t, time.Second, outcome.RetryAfter)
}
