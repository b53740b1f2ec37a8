package copypipeline

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azstorex/azstorage/internal/azrest"
	"github.com/azstorex/azstorage/internal/blockplan"
	"github.com/azstorex/azstorage/internal/download"
	"github.com/azstorex/azstorage/internal/oauth"
	"github.com/azstorex/azstorage/internal/upload"
	"github.com/azstorex/azstorage/internal/xmlmodel"
)

// fakeBlobServer is a minimal in-memory Azure Blob Storage double: it
// accepts block PUTs, a blocklist commit, and serves Range-GETs back
// from the committed content, enough to exercise UploadFile/DownloadFile
// end to end without a real storage account.
type fakeBlobServer struct {
	mu      sync.Mutex
	blocks  map[string][]byte
	content []byte
}

func newFakeBlobServer() *fakeBlobServer {
	return &fakeBlobServer{blocks: map[string][]byte{}}
}

func (f *fakeBlobServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Query().Get("comp") == "block":
			id := r.URL.Query().Get("blockid")
			buf := new(bytes.Buffer)
			buf.ReadFrom(r.Body)
			f.mu.Lock()
			f.blocks[id] = buf.Bytes()
			f.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Query().Get("comp") == "blocklist":
			var bl xmlmodel.BlockList
			buf := new(bytes.Buffer)
			buf.ReadFrom(r.Body)
			xml.Unmarshal(buf.Bytes(), &bl)
			f.mu.Lock()
			var assembled bytes.Buffer
			for _, id := range bl.Uncommitted {
				assembled.Write(f.blocks[id])
			}
			f.content = assembled.Bytes()
			f.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet:
			f.mu.Lock()
			content := f.content
			f.mu.Unlock()
			a, b := 0, len(content)-1
			if rng := r.Header.Get("Range"); rng != "" {
				var pa, pb int
				if n, _ := parseRange(rng, &pa, &pb); n == 2 {
					a, b = pa, pb
				}
			}
			if b >= len(content) {
				b = len(content) - 1
			}
			w.WriteHeader(http.StatusPartialContent)
			w.Write(content[a : b+1])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func parseRange(h string, a, b *int) (int, error) {
	return fmt.Sscanf(h, "bytes=%d-%d", a, b)
}

func TestUploadThenDownloadFileRoundTrips(t *testing.T) {
	total := int64(2 * blockplan.MinBlock)
	payload := make([]byte, total)
	for i := range payload {
		payload[i] = byte(i % 256)
	}

	srv := httptest.NewServer(newFakeBlobServer().handler())
	defer srv.Close()
	upload.SetEndpointOverrideForTesting(srv.URL)
	download.SetEndpointOverrideForTesting(srv.URL)
	defer func() {
		upload.SetEndpointOverrideForTesting("")
		download.SetEndpointOverrideForTesting("")
	}()

	client := azrest.NewClient(2*time.Second, 2*time.Second, 4, nil)
	sess := oauth.NewSession(oauth.ClientCredentials, "tok", time.Now().Add(time.Hour), "t", "c", "s", "r")
	auth := &azrest.Auth{Session: sess}

	p := &Pipeline{
		Uploader:   &upload.Uploader{Client: client, Auth: auth},
		Downloader: &download.Downloader{Client: client, Auth: auth},
	}

	cfg := Config{
		Account: "acct", Container: "ct", Blob: "big.bin",
		NThreads: 2, NRetries: 3,
		BufferSize: 2 * blockplan.MinBlock, // one block per half-buffer
	}

	var progressCalls int
	cfg.OnProgress = func(Progress) { progressCalls++ }

	err := p.UploadFile(context.Background(), cfg, bytes.NewReader(payload), total)
	require.NoError(t, err)
	assert.True(t, progressCalls > 0)

	var out bytes.Buffer
	err = p.DownloadFile(context.Background(), cfg, &out, total)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, out.Bytes()))
}
