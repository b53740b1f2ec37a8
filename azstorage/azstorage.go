// Package azstorage is the container/blob facade of C8: a POSIX-like
// surface (create/list/remove containers; read/write/copy/delete blobs)
// built by composing the REST primitive (internal/azrest), the parallel
// transfer engines (internal/upload, internal/download,
// internal/copypipeline) and the naming/prefix rules of the data model's
// Container Handle. Grounded in backend/azureblob/azureblob.go's
// f.split/addprefix path joining and its makeContainer/deleteContainer/
// list/listContainersToFn/Copy operations — the original C source never
// implemented a facade of its own (it only exposes the raw curl
// primitives), so this layer has no original_source precedent.
package azstorage

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/azstorex/azstorage/azconfig"
	"github.com/azstorex/azstorage/internal/azrest"
	"github.com/azstorex/azstorage/internal/copypipeline"
	"github.com/azstorex/azstorage/internal/download"
	"github.com/azstorex/azstorage/internal/logx"
	"github.com/azstorex/azstorage/internal/oauth"
	"github.com/azstorex/azstorage/internal/retry"
	"github.com/azstorex/azstorage/internal/upload"
	"github.com/azstorex/azstorage/internal/xerrors"
	"github.com/azstorex/azstorage/internal/xmlmodel"
)

// endpointOverrideHost lets tests point every request this package issues
// at an httptest server instead of the real *.blob.core.windows.net host,
// mirroring the same test seam internal/upload and internal/download
// expose.
var endpointOverrideHost string

// SetEndpointOverrideForTesting redirects every request this package
// builds to host instead of the real Azure endpoint.
func SetEndpointOverrideForTesting(host string) {
	endpointOverrideHost = host
	upload.SetEndpointOverrideForTesting(host)
	download.SetEndpointOverrideForTesting(host)
}

func accountHost(account string) string {
	if endpointOverrideHost != "" {
		return endpointOverrideHost
	}
	return "https://" + account + ".blob.core.windows.net"
}

func containerURL(account, container string) string {
	return accountHost(account) + "/" + container + "?restype=container"
}

func listContainersURL(account, marker string) string {
	u := accountHost(account) + "/?comp=list"
	if marker != "" {
		u += "&marker=" + url.QueryEscape(marker)
	}
	return u
}

func listBlobsURL(account, container, prefix, marker string) string {
	u := accountHost(account) + "/" + container + "?restype=container&comp=list"
	if prefix != "" {
		u += "&prefix=" + url.QueryEscape(prefix)
	}
	if marker != "" {
		u += "&marker=" + url.QueryEscape(marker)
	}
	return u
}

func blobURL(account, container, blob string) string {
	return accountHost(account) + "/" + container + "/" + url.PathEscape(blob)
}

func blobMetadataURL(account, container, blob string) string {
	return blobURL(account, container, blob) + "?comp=metadata"
}

// xmlConsume returns an azrest.Consume that XML-decodes a 2xx response
// body into dst.
func xmlConsume(dst interface{}) azrest.Consume {
	return func(resp *http.Response) error {
		return xml.NewDecoder(resp.Body).Decode(dst)
	}
}

// Container is a handle over one (storage_account, container_name,
// prefix) address, bundling the shared HTTP client, auth session, and the
// three transfer engines every blob operation composes.
type Container struct {
	cfg *azconfig.Config

	Client     *azrest.Client
	Auth       *azrest.Auth
	Log        *logx.Logger
	Uploader   *upload.Uploader
	Downloader *download.Downloader
	Pipeline   *copypipeline.Pipeline
}

// Open builds a Container handle from cfg, wiring a shared azrest.Client
// and the upload/download/copypipeline engines against it, per spec.md
// §3's "Container Handle" lifecycle: user-owned, copyable, no teardown.
func Open(cfg *azconfig.Config) *Container {
	log := logx.New(cfg.StorageAccount+"/"+cfg.ContainerName, cfg.Verbosity)
	client := azrest.NewClient(cfg.ConnectTimeout, cfg.ReadTimeout, cfg.NThreads, log)

	var refresher *oauth.Refresher
	if cfg.Session != nil {
		refresher = oauth.NewRefresher(&http.Client{Timeout: cfg.ConnectTimeout + cfg.ReadTimeout})
	}
	auth := &azrest.Auth{
		Session:        cfg.Session,
		Refresher:      refresher,
		NRetries:       cfg.NRetries,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
	}

	uploader := &upload.Uploader{Client: client, Auth: auth, Log: log}
	downloader := &download.Downloader{Client: client, Auth: auth, Log: log}

	return &Container{
		cfg:        cfg,
		Client:     client,
		Auth:       auth,
		Log:        log,
		Uploader:   uploader,
		Downloader: downloader,
		Pipeline:   &copypipeline.Pipeline{Uploader: uploader, Downloader: downloader, Log: log},
	}
}

// Config exposes the handle's addressing/behavioral tuple.
func (c *Container) Config() *azconfig.Config { return c.cfg }

// Equal implements spec.md §3's handle-equality rule by delegating to the
// underlying azconfig.Config.
func (c *Container) Equal(other *Container) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.cfg.Equal(other.cfg)
}

// addPrefix joins the handle's prefix onto a caller-supplied blob name,
// grounded in backend/azureblob/azureblob.go's f.split/root-join
// convention. Implements spec.md line 44's normpath(prefix + "/" + o),
// with backslashes rewritten to forward slashes before cleaning so a
// caller-supplied Windows-style path still collapses "." and ".." segments
// the same way a forward-slash one does.
func (c *Container) addPrefix(name string) string {
	joined := name
	if c.cfg.Prefix != "" {
		joined = c.cfg.Prefix + "/" + name
	}
	return normpath(joined)
}

// normpath rewrites backslashes to forward slashes and runs path.Clean,
// then strips the leading "/" path.Clean would otherwise introduce for an
// already-rooted join (blob names are never absolute).
func normpath(s string) string {
	s = strings.ReplaceAll(s, "\\", "/")
	cleaned := strings.TrimPrefix(path.Clean(s), "/")
	if cleaned == "." {
		return ""
	}
	return cleaned
}

// stripPrefix undoes addPrefix for filterlist=true listings (spec.md §7
// testable property 7: "P/ stripped"). The prefix is normalized the same
// way addPrefix normalizes its join, so a Windows-style configured prefix
// still strips correctly against the normalized wire names the service
// returns.
func (c *Container) stripPrefix(fullName string) string {
	if c.cfg.Prefix == "" {
		return fullName
	}
	return strings.TrimPrefix(fullName, normpath(c.cfg.Prefix)+"/")
}

// translateStatus maps a terminal outcome/verdict pair into the §7
// taxonomy. Callers absorb the operation-specific codes (404 on
// exists/delete/remove-container, 409 on create-container) before calling
// this; Stat does not absorb 404.
func translateStatus(op, container, blob string, httpStatus, transportCode int, verdict retry.Verdict) error {
	ctxt := xerrors.Context{Op: op, Container: container, Blob: blob, HTTPStatus: httpStatus, TransportCode: transportCode}
	if verdict == retry.VerdictFatal {
		return &xerrors.PermanentServiceError{Context: ctxt}
	}
	return &xerrors.TransientServiceError{Context: ctxt}
}

// CreateContainer issues PUT /{container}?restype=container, idempotent:
// HTTP 409 (already exists) is absorbed per spec.md §7.
func (c *Container) CreateContainer(ctx context.Context) error {
	outcome, verdict, err := c.Client.CallWithRetry(ctx, c.cfg.NRetries, &azrest.Opts{
		Method: http.MethodPut,
		URL:    containerURL(c.cfg.StorageAccount, c.cfg.ContainerName),
	}, c.Auth, nil, c.Log)
	if err != nil {
		return xerrors.Wrap(err, "azstorage.CreateContainer")
	}
	if verdict == retry.VerdictOK || outcome.Status == http.StatusConflict {
		return nil
	}
	return translateStatus("azstorage.CreateContainer", c.cfg.ContainerName, "", outcome.Status, int(outcome.Transport), verdict)
}

// RemoveContainer implements spec.md §4.8: if the handle carries a
// prefix, every blob under that prefix is removed first and the
// container itself is only deleted if no other blobs remain.
func (c *Container) RemoveContainer(ctx context.Context) error {
	if c.cfg.Prefix != "" {
		names, err := c.listBlobNames(ctx, c.cfg.Prefix)
		if err != nil {
			return err
		}
		for _, n := range names {
			if err := c.removeBlobFullName(ctx, n); err != nil {
				return err
			}
		}
		remaining, err := c.listBlobNames(ctx, "")
		if err != nil {
			return err
		}
		if len(remaining) > 0 {
			return nil
		}
	}

	outcome, verdict, err := c.Client.CallWithRetry(ctx, c.cfg.NRetries, &azrest.Opts{
		Method: http.MethodDelete,
		URL:    containerURL(c.cfg.StorageAccount, c.cfg.ContainerName),
	}, c.Auth, nil, c.Log)
	if err != nil {
		return xerrors.Wrap(err, "azstorage.RemoveContainer")
	}
	if verdict == retry.VerdictOK || outcome.Status == http.StatusNotFound {
		return nil
	}
	return translateStatus("azstorage.RemoveContainer", c.cfg.ContainerName, "", outcome.Status, int(outcome.Transport), verdict)
}

// ListContainers lists every container at the handle's storage-account
// scope, paginating on the service-supplied marker.
func (c *Container) ListContainers(ctx context.Context) ([]string, error) {
	var names []string
	marker := ""
	for {
		var page xmlmodel.ContainerEnumerationResults
		outcome, verdict, err := c.Client.CallWithRetry(ctx, c.cfg.NRetries, &azrest.Opts{
			Method: http.MethodGet,
			URL:    listContainersURL(c.cfg.StorageAccount, marker),
		}, c.Auth, xmlConsume(&page), c.Log)
		if err != nil {
			return nil, xerrors.Wrap(err, "azstorage.ListContainers")
		}
		if verdict != retry.VerdictOK {
			return nil, translateStatus("azstorage.ListContainers", "", "", outcome.Status, int(outcome.Transport), verdict)
		}
		for _, item := range page.Containers {
			names = append(names, item.Name)
		}
		if page.NextMarker == "" {
			return names, nil
		}
		marker = page.NextMarker
	}
}

// ListBlobs implements spec.md §4.8's paginated list_blobs: names are
// always gathered relative to the container, then either stripped
// of the handle's prefix (filterlist=true) or returned fully-qualified
// (filterlist=false), per testable property 7.
func (c *Container) ListBlobs(ctx context.Context, filterlist bool) ([]string, error) {
	fullNames, err := c.listBlobNames(ctx, c.cfg.Prefix)
	if err != nil {
		return nil, err
	}
	if !filterlist {
		return fullNames, nil
	}
	out := make([]string, len(fullNames))
	for i, n := range fullNames {
		out[i] = c.stripPrefix(n)
	}
	return out, nil
}

// listBlobNames is the shared pagination loop behind ListBlobs and
// RemoveContainer's prefix sweep.
func (c *Container) listBlobNames(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	marker := ""
	for {
		var page xmlmodel.BlobEnumerationResults
		outcome, verdict, err := c.Client.CallWithRetry(ctx, c.cfg.NRetries, &azrest.Opts{
			Method: http.MethodGet,
			URL:    listBlobsURL(c.cfg.StorageAccount, c.cfg.ContainerName, prefix, marker),
		}, c.Auth, xmlConsume(&page), c.Log)
		if err != nil {
			return nil, xerrors.Wrap(err, "azstorage.listBlobNames")
		}
		if verdict != retry.VerdictOK {
			return nil, translateStatus("azstorage.listBlobNames", c.cfg.ContainerName, "", outcome.Status, int(outcome.Transport), verdict)
		}
		for _, b := range page.Blobs {
			names = append(names, b.Name)
		}
		if page.NextMarker == "" {
			return names, nil
		}
		marker = page.NextMarker
	}
}

func (c *Container) removeBlobFullName(ctx context.Context, fullName string) error {
	outcome, verdict, err := c.Client.CallWithRetry(ctx, c.cfg.NRetries, &azrest.Opts{
		Method: http.MethodDelete,
		URL:    blobURL(c.cfg.StorageAccount, c.cfg.ContainerName, fullName),
	}, c.Auth, nil, c.Log)
	if err != nil {
		return xerrors.Wrap(err, "azstorage.removeBlob")
	}
	if verdict == retry.VerdictOK || outcome.Status == http.StatusNotFound {
		return nil
	}
	return translateStatus("azstorage.removeBlob", c.cfg.ContainerName, fullName, outcome.Status, int(outcome.Transport), verdict)
}
