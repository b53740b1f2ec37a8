package azstorage

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azstorex/azstorage/azconfig"
	"github.com/azstorex/azstorage/internal/xmlmodel"
)

// fakeAzureServer is a minimal in-memory double of the account/container/
// blob-scoped subset of the Azure Blob Storage REST surface the facade
// drives: container create/delete/list, blob whole-PUT/HEAD/metadata-GET/
// range-GET/DELETE, and the server-side copy verb.
type fakeAzureServer struct {
	mu         sync.Mutex
	containers map[string]bool
	blobs      map[string]map[string][]byte
}

func newFakeAzureServer() *fakeAzureServer {
	return &fakeAzureServer{containers: map[string]bool{}, blobs: map[string]map[string][]byte{}}
}

func (f *fakeAzureServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		q := r.URL.Query()

		if path == "" {
			if r.Method == http.MethodGet && q.Get("comp") == "list" {
				f.writeContainerList(w)
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		parts := strings.SplitN(path, "/", 2)
		container := parts[0]

		if len(parts) == 1 && q.Get("restype") == "container" {
			f.handleContainer(w, r, container, q)
			return
		}

		if len(parts) == 2 {
			blobName, _ := url.PathUnescape(parts[1])
			f.handleBlob(w, r, container, blobName, q)
			return
		}

		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAzureServer) writeContainerList(w http.ResponseWriter) {
	f.mu.Lock()
	var items []xmlmodel.ContainerItem
	for name := range f.containers {
		items = append(items, xmlmodel.ContainerItem{Name: name})
	}
	f.mu.Unlock()
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	body, _ := xml.Marshal(xmlmodel.ContainerEnumerationResults{Containers: items})
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (f *fakeAzureServer) handleContainer(w http.ResponseWriter, r *http.Request, container string, q url.Values) {
	switch r.Method {
	case http.MethodPut:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.containers[container] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.containers[container] = true
		f.blobs[container] = map[string][]byte{}
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		f.mu.Lock()
		delete(f.containers, container)
		delete(f.blobs, container)
		f.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	case http.MethodGet:
		if q.Get("comp") != "list" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		prefix := q.Get("prefix")
		f.mu.Lock()
		var items []xmlmodel.BlobItem
		for name, content := range f.blobs[container] {
			if prefix != "" && !strings.HasPrefix(name, prefix) {
				continue
			}
			items = append(items, xmlmodel.BlobItem{Name: name, ContentLength: int64(len(content))})
		}
		f.mu.Unlock()
		sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
		body, _ := xml.Marshal(xmlmodel.BlobEnumerationResults{Blobs: items})
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeAzureServer) handleBlob(w http.ResponseWriter, r *http.Request, container, blobName string, q url.Values) {
	switch {
	case r.Method == http.MethodPut && q.Get("comp") == "":
		if src := r.Header.Get("x-ms-copy-source"); src != "" {
			f.copyFrom(src, container, blobName)
			w.WriteHeader(http.StatusAccepted)
			return
		}
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body)
		f.mu.Lock()
		if f.blobs[container] == nil {
			f.blobs[container] = map[string][]byte{}
		}
		f.blobs[container][blobName] = buf.Bytes()
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodHead:
		f.mu.Lock()
		content, ok := f.blobs[container][blobName]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodGet && q.Get("comp") == "metadata":
		f.mu.Lock()
		_, ok := f.blobs[container][blobName]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodGet:
		f.mu.Lock()
		content, ok := f.blobs[container][blobName]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		a, b := 0, len(content)-1
		if rng := r.Header.Get("Range"); rng != "" {
			fmt.Sscanf(rng, "bytes=%d-%d", &a, &b)
		}
		if b >= len(content) {
			b = len(content) - 1
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write(content[a : b+1])

	case r.Method == http.MethodDelete:
		f.mu.Lock()
		_, ok := f.blobs[container][blobName]
		delete(f.blobs[container], blobName)
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeAzureServer) copyFrom(sourceURL, dstContainer, dstBlob string) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return
	}
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if len(parts) != 2 {
		return
	}
	srcContainer, srcBlob := parts[0], parts[1]
	f.mu.Lock()
	defer f.mu.Unlock()
	content := f.blobs[srcContainer][srcBlob]
	if f.blobs[dstContainer] == nil {
		f.blobs[dstContainer] = map[string][]byte{}
	}
	f.blobs[dstContainer][dstBlob] = append([]byte(nil), content...)
}

func newTestContainer(t *testing.T, name string, opts ...azconfig.Option) *Container {
	t.Helper()
	srv := httptest.NewServer(newFakeAzureServer().handler())
	t.Cleanup(srv.Close)
	SetEndpointOverrideForTesting(srv.URL)
	t.Cleanup(func() { SetEndpointOverrideForTesting("") })

	allOpts := append([]azconfig.Option{
		azconfig.WithNThreads(1),
		azconfig.WithConnectTimeout(2 * time.Second),
		azconfig.WithReadTimeout(2 * time.Second),
		azconfig.WithNRetries(2),
	}, opts...)
	cfg := azconfig.New("acct", name, allOpts...)
	return Open(cfg)
}

func TestS1SmallRoundTrip(t *testing.T) {
	c := newTestContainer(t, "ct-a")
	ctx := context.Background()

	require.NoError(t, c.CreateContainer(ctx))
	require.NoError(t, c.Blob("k1").WriteString(ctx, "one"))

	got, err := c.Blob("k1").ReadString(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", got)

	names, err := c.ListBlobs(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, names)

	require.NoError(t, c.RemoveContainer(ctx))
	containers, err := c.ListContainers(ctx)
	require.NoError(t, err)
	assert.NotContains(t, containers, "ct-a")
}

func TestS2PrefixAddressing(t *testing.T) {
	c := newTestContainer(t, "ct-b", azconfig.WithPrefix("p"))
	ctx := context.Background()

	require.NoError(t, c.CreateContainer(ctx))
	require.NoError(t, c.Blob("k1").WriteString(ctx, "v1"))
	require.NoError(t, c.Blob("k2").WriteString(ctx, "v2"))

	filtered, err := c.ListBlobs(ctx, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"k1", "k2"}, filtered)

	full, err := c.ListBlobs(ctx, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p/k1", "p/k2"}, full)
}

func TestCreateContainerIsIdempotent(t *testing.T) {
	c := newTestContainer(t, "ct-c")
	ctx := context.Background()
	require.NoError(t, c.CreateContainer(ctx))
	require.NoError(t, c.CreateContainer(ctx))
}

func TestRemoveSemanticsProperty8(t *testing.T) {
	c := newTestContainer(t, "ct-d")
	ctx := context.Background()
	require.NoError(t, c.CreateContainer(ctx))
	require.NoError(t, c.RemoveContainer(ctx))

	containers, err := c.ListContainers(ctx)
	require.NoError(t, err)
	assert.NotContains(t, containers, "ct-d")

	require.NoError(t, c.Blob("missing").Delete(ctx))
}

func TestExistsAndStat(t *testing.T) {
	c := newTestContainer(t, "ct-e")
	ctx := context.Background()
	require.NoError(t, c.CreateContainer(ctx))

	exists, err := c.Blob("k1").Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Blob("k1").WriteString(ctx, "hello"))

	exists, err = c.Blob("k1").Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	size, err := c.Blob("k1").Stat(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, len("hello"), size)
}

func TestZeroByteWriteWritesOneNullByte(t *testing.T) {
	c := newTestContainer(t, "ct-f")
	ctx := context.Background()
	require.NoError(t, c.CreateContainer(ctx))

	require.NoError(t, c.Blob("empty").Write(ctx, nil, "application/octet-stream"))
	size, err := c.Blob("empty").Stat(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)
}

func TestCopyToServerSide(t *testing.T) {
	srv := httptest.NewServer(newFakeAzureServer().handler())
	t.Cleanup(srv.Close)
	SetEndpointOverrideForTesting(srv.URL)
	t.Cleanup(func() { SetEndpointOverrideForTesting("") })

	opts := []azconfig.Option{azconfig.WithNThreads(1), azconfig.WithConnectTimeout(2 * time.Second), azconfig.WithReadTimeout(2 * time.Second), azconfig.WithNRetries(2)}
	src := Open(azconfig.New("acct", "ct-src", opts...))
	dst := Open(azconfig.New("acct", "ct-dst", opts...))

	ctx := context.Background()
	require.NoError(t, src.CreateContainer(ctx))
	require.NoError(t, dst.CreateContainer(ctx))
	require.NoError(t, src.Blob("k1").WriteString(ctx, "payload"))

	require.NoError(t, src.Blob("k1").CopyTo(ctx, dst.Blob("k1")))

	got, err := dst.Blob("k1").ReadString(ctx)
	require.NoError(t, err)
	assert.Equal(t, "payload", got)
}
