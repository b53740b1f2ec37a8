package upload

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azstorex/azstorage/internal/azrest"
	"github.com/azstorex/azstorage/internal/oauth"
)

func newUploader() *Uploader {
	client := azrest.NewClient(2*time.Second, 2*time.Second, 4, nil)
	sess := oauth.NewSession(oauth.ClientCredentials, "tok", time.Now().Add(time.Hour), "t", "c", "s", "r")
	return &Uploader{Client: client, Auth: &azrest.Auth{Session: sess}}
}

func newTestUploader(t *testing.T, handler http.HandlerFunc) (*Uploader, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		endpointOverrideHost = ""
		srv.Close()
	})
	endpointOverrideHost = srv.URL
	return newUploader(), srv
}

func baseConfig() Config {
	return Config{
		Account:   "acct",
		Container: "ct",
		Blob:      "blob1",
		NThreads:  2,
		NRetries:  3,
	}
}

func TestUploadSingleThreadedFastPath(t *testing.T) {
	var gotBlobType string
	u, _ := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		gotBlobType = r.Header.Get("x-ms-blob-type")
		w.WriteHeader(http.StatusCreated)
	})

	cfg := baseConfig()
	cfg.SingleThreaded = true
	err := u.Upload(context.Background(), cfg, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "BlockBlob", gotBlobType)
}

func TestUploadBlocksThenCommitSucceeds(t *testing.T) {
	var blockPuts, commitPuts int64
	u, _ := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Query().Get("comp") == "block":
			atomic.AddInt64(&blockPuts, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Query().Get("comp") == "blocklist":
			atomic.AddInt64(&commitPuts, 1)
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	err := u.Upload(context.Background(), baseConfig(), []byte("payload-bytes"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(&blockPuts))
	assert.EqualValues(t, 1, atomic.LoadInt64(&commitPuts))
}

func TestUploadRaceRecoverReconcilesMatchingCommit(t *testing.T) {
	const blockID = "MA==" // base64("0"), the only block id for a 1-block plan
	u, _ := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Query().Get("comp") == "block":
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Query().Get("comp") == "blocklist":
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `<?xml version="1.0"?><Error><Code>InvalidBlockList</Code><Message>already committed</Message></Error>`)
		case r.Method == http.MethodGet && r.URL.Query().Get("comp") == "blocklist":
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `<?xml version="1.0"?><BlockList><CommittedBlocks><Block><Name>%s</Name><Size>5</Size></Block></CommittedBlocks></BlockList>`, blockID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	err := u.Upload(context.Background(), baseConfig(), []byte("hello"))
	require.NoError(t, err)
}

func TestUploadRaceRecoverPropagatesOnMismatch(t *testing.T) {
	u, _ := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Query().Get("comp") == "block":
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Query().Get("comp") == "blocklist":
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `<?xml version="1.0"?><Error><Code>InvalidBlockList</Code><Message>already committed</Message></Error>`)
		case r.Method == http.MethodGet && r.URL.Query().Get("comp") == "blocklist":
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `<?xml version="1.0"?><BlockList><CommittedBlocks><Block><Name>some-other-id</Name><Size>5</Size></Block></CommittedBlocks></BlockList>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	err := u.Upload(context.Background(), baseConfig(), []byte("hello"))
	require.Error(t, err)
}

func TestUploadBlockPermanentFailureAbortsAfterDrain(t *testing.T) {
	u, _ := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("comp") == "block" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	err := u.Upload(context.Background(), baseConfig(), []byte("hello"))
	require.Error(t, err)
}
