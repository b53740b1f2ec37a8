package azstorage

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/azstorex/azstorage/internal/azrest"
	"github.com/azstorex/azstorage/internal/download"
	"github.com/azstorex/azstorage/internal/retry"
	"github.com/azstorex/azstorage/internal/upload"
	"github.com/azstorex/azstorage/internal/xerrors"
)

// Blob is a pure-addressing pair {container_handle, blob_name}; it has no
// open file state and no position cursor, per spec.md §3.
type Blob struct {
	c        *Container
	name     string // caller-supplied, unprefixed
	fullName string // c.addPrefix(name), the wire-level blob name
}

// Blob returns a handle addressing name under c's prefix.
func (c *Container) Blob(name string) *Blob {
	return &Blob{c: c, name: name, fullName: c.addPrefix(name)}
}

// Name returns the caller-supplied, unprefixed blob name.
func (b *Blob) Name() string { return b.name }

// FullName returns the fully-qualified (prefix-included) wire name.
func (b *Blob) FullName() string { return b.fullName }

// Write implements spec.md §4.8/§4.5's write path: a whole-blob
// overwrite, routed through the parallel block-upload engine (C5).
// Per spec.md §9's resolved Open Question, a zero-length data is widened
// to one null byte before upload, since a zero-length PUT without the
// block protocol is accepted but indistinguishable from an absent blob on
// some query paths.
func (b *Blob) Write(ctx context.Context, data []byte, contentType string) error {
	if len(data) == 0 {
		data = []byte{0}
	}
	cfg := upload.Config{
		Account:        b.c.cfg.StorageAccount,
		Container:      b.c.cfg.ContainerName,
		Blob:           b.fullName,
		ContentType:    contentType,
		NThreads:       b.c.cfg.NThreads,
		NRetries:       b.c.cfg.NRetries,
		ConnectTimeout: b.c.cfg.ConnectTimeout,
		ReadTimeout:    b.c.cfg.ReadTimeout,
		SingleThreaded: b.c.cfg.SingleThreaded(),
	}
	return b.c.Uploader.Upload(ctx, cfg, data)
}

// WriteString writes s as a text/plain blob, the string-write variant of
// spec.md §4.8.
func (b *Blob) WriteString(ctx context.Context, s string) error {
	return b.Write(ctx, []byte(s), "text/plain; charset=utf-8")
}

// Read fetches the blob's entire content: a HEAD to learn its size (C3),
// then a single parallel read_into (C6) of that many bytes.
func (b *Blob) Read(ctx context.Context) ([]byte, error) {
	size, err := b.Stat(ctx)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if size == 0 {
		return buf, nil
	}
	cfg := download.Config{
		Account:        b.c.cfg.StorageAccount,
		Container:      b.c.cfg.ContainerName,
		Blob:           b.fullName,
		NThreads:       b.c.cfg.NThreads,
		NRetries:       b.c.cfg.NRetries,
		ConnectTimeout: b.c.cfg.ConnectTimeout,
		ReadTimeout:    b.c.cfg.ReadTimeout,
		SingleThreaded: b.c.cfg.SingleThreaded(),
	}
	if err := b.c.Downloader.ReadInto(ctx, cfg, buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadString is Read decoded as a UTF-8 string, the symmetric counterpart
// of WriteString.
func (b *Blob) ReadString(ctx context.Context) (string, error) {
	data, err := b.Read(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Stat issues HEAD /{container}/{blob} and reads Content-Length, per
// spec.md §4.8.
func (b *Blob) Stat(ctx context.Context) (int64, error) {
	var contentLength int64
	outcome, verdict, err := b.c.Client.CallWithRetry(ctx, b.c.cfg.NRetries, &azrest.Opts{
		Method: http.MethodHead,
		URL:    blobURL(b.c.cfg.StorageAccount, b.c.cfg.ContainerName, b.fullName),
	}, b.c.Auth, func(resp *http.Response) error {
		contentLength = resp.ContentLength
		return nil
	}, b.c.Log)
	if err != nil {
		return 0, xerrors.Wrap(err, "azstorage.Stat")
	}
	if verdict != retry.VerdictOK {
		return 0, translateStatus("azstorage.Stat", b.c.cfg.ContainerName, b.fullName, outcome.Status, int(outcome.Transport), verdict)
	}
	return contentLength, nil
}

// Exists issues GET ?comp=metadata; a 404 is absorbed to false per
// spec.md §7 ("exists/stat treat 404 as false"); any other error
// propagates.
func (b *Blob) Exists(ctx context.Context) (bool, error) {
	outcome, verdict, err := b.c.Client.CallWithRetry(ctx, b.c.cfg.NRetries, &azrest.Opts{
		Method: http.MethodGet,
		URL:    blobMetadataURL(b.c.cfg.StorageAccount, b.c.cfg.ContainerName, b.fullName),
	}, b.c.Auth, nil, b.c.Log)
	if err != nil {
		return false, xerrors.Wrap(err, "azstorage.Exists")
	}
	if outcome.Status == http.StatusNotFound {
		return false, nil
	}
	if verdict != retry.VerdictOK {
		return false, translateStatus("azstorage.Exists", b.c.cfg.ContainerName, b.fullName, outcome.Status, int(outcome.Transport), verdict)
	}
	return true, nil
}

// Delete issues DELETE /{container}/{blob}; a 404 is not an error
// (idempotent delete), per spec.md §7/testable property 8.
func (b *Blob) Delete(ctx context.Context) error {
	return b.c.removeBlobFullName(ctx, b.fullName)
}

// CopyTo issues the server-side copy verb: PUT /{dst-container}/{blob}
// with x-ms-copy-source pointing at b, used for container-to-container
// replication (spec.md §4.8). The destination blob name is taken
// verbatim (already addressed through dst's own prefix rules by the
// caller via dst.Blob(name)).
func (b *Blob) CopyTo(ctx context.Context, dst *Blob) error {
	sourceURL := blobURL(b.c.cfg.StorageAccount, b.c.cfg.ContainerName, b.fullName)
	outcome, verdict, err := dst.c.Client.CallWithRetry(ctx, dst.c.cfg.NRetries, &azrest.Opts{
		Method:  http.MethodPut,
		URL:     blobURL(dst.c.cfg.StorageAccount, dst.c.cfg.ContainerName, dst.fullName),
		Headers: http.Header{"x-ms-copy-source": {sourceURL}},
		Body:    func() (io.Reader, error) { return bytes.NewReader(nil), nil },
	}, dst.c.Auth, nil, dst.c.Log)
	if err != nil {
		return xerrors.Wrap(err, "azstorage.CopyTo")
	}
	if verdict != retry.VerdictOK {
		return translateStatus("azstorage.CopyTo", dst.c.cfg.ContainerName, dst.fullName, outcome.Status, int(outcome.Transport), verdict)
	}
	return nil
}
