package upload

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/azstorex/azstorage/internal/azrest"
	"github.com/azstorex/azstorage/internal/blockplan"
	"github.com/azstorex/azstorage/internal/logx"
	"github.com/azstorex/azstorage/internal/retry"
	"github.com/azstorex/azstorage/internal/xerrors"
	"github.com/azstorex/azstorage/internal/xmlmodel"
)

// Config carries the per-upload knobs derived from a container handle.
type Config struct {
	Account   string
	Container string
	Blob      string

	ContentType string

	NThreads       int
	NRetries       int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// SingleThreaded mirrors spec.md §4.8's environment constraint:
	// platforms without multi-thread transfer support force this true,
	// which collapses a one-block plan to the whole-blob PUT fast path.
	SingleThreaded bool
}

// Uploader drives C5 against a shared HTTP client and auth session.
type Uploader struct {
	Client *azrest.Client
	Auth   *azrest.Auth
	Log    *logx.Logger
}

// Upload implements the PLAN -> UPLOAD_BLOCKS -> COMMIT -> DONE state
// machine (with RACE_RECOVER) of spec.md §4.5 for an in-memory payload.
func (u *Uploader) Upload(ctx context.Context, cfg Config, data []byte) error {
	if cfg.ContentType == "" {
		cfg.ContentType = "application/octet-stream"
	}
	if cfg.NThreads < 1 {
		cfg.NThreads = 1
	}
	if cfg.NRetries < 1 {
		cfg.NRetries = 1
	}

	plan, err := blockplan.Compute(int64(len(data)), cfg.NThreads, 0)
	if err != nil {
		return err
	}

	if plan.NumBlocks() == 1 && cfg.SingleThreaded {
		return u.putWholeBlob(ctx, cfg, data)
	}

	if err := u.uploadBlocks(ctx, cfg, plan, data); err != nil {
		return err
	}
	return u.commit(ctx, cfg, plan)
}

// putWholeBlob is the single-block fast path: one PUT with
// x-ms-blob-type: BlockBlob, skipping the block/commit protocol entirely.
func (u *Uploader) putWholeBlob(ctx context.Context, cfg Config, data []byte) error {
	opts := &azrest.Opts{
		Method: http.MethodPut,
		URL:    blobBaseURL(cfg.Account, cfg.Container, cfg.Blob),
		Headers: http.Header{
			"x-ms-blob-type": {"BlockBlob"},
			"Content-Type":   {cfg.ContentType},
		},
		Body:          func() (io.Reader, error) { return bytes.NewReader(data), nil },
		ContentLength: int64(len(data)),
	}
	outcome, verdict, err := u.Client.CallWithRetry(ctx, cfg.NRetries, opts, u.Auth, nil, u.Log)
	if err != nil {
		return xerrors.Wrap(err, "upload.putWholeBlob")
	}
	return verdictToError("upload.putWholeBlob", cfg, outcome, verdict)
}

// uploadBlocks spawns up to cfg.NThreads concurrent block PUTs, gated by
// a tokenDispenser, and waits for every worker to drain (per spec.md
// §4.5: "the aggregate outcome is the worst http/curl status observed
// across workers; any non-2xx outcome aborts the upload after all
// workers drain") before surfacing the first error observed.
func (u *Uploader) uploadBlocks(ctx context.Context, cfg Config, plan blockplan.Plan, data []byte) error {
	tokens := newTokenDispenser(cfg.NThreads)
	var g errgroup.Group
	for _, blk := range plan.Blocks {
		blk := blk
		tokens.Get()
		g.Go(func() error {
			defer tokens.Put()
			return u.uploadOneBlock(ctx, cfg, blk, data)
		})
	}
	return g.Wait()
}

func (u *Uploader) uploadOneBlock(ctx context.Context, cfg Config, blk blockplan.Block, data []byte) error {
	return u.PutBlock(ctx, cfg, blk, data[blk.Offset:blk.Offset+blk.Length])
}

// PutBlock uploads one already-planned block's bytes. Exported so
// internal/copypipeline can reuse the exact same PUT .../?comp=block
// request shape for its batched, interleaved uploads instead of
// duplicating it.
func (u *Uploader) PutBlock(ctx context.Context, cfg Config, blk blockplan.Block, body []byte) error {
	opts := &azrest.Opts{
		Method:  http.MethodPut,
		URL:     blockURL(cfg.Account, cfg.Container, cfg.Blob, blk.ID),
		Headers: http.Header{"Content-Type": {"application/octet-stream"}},
		Body: func() (io.Reader, error) {
			return bytes.NewReader(body), nil
		},
		ContentLength: int64(len(body)),
	}
	outcome, verdict, err := u.Client.CallWithRetry(ctx, cfg.NRetries, opts, u.Auth, nil, u.Log)
	if err != nil {
		return xerrors.Wrapf(err, "upload.block[%d]", blk.Index)
	}
	return verdictToError("upload.block", cfg, outcome, verdict)
}

// Commit exposes the COMMIT+RACE_RECOVER step so copypipeline can call it
// once at end-of-file after its own batched block uploads.
func (u *Uploader) Commit(ctx context.Context, cfg Config, plan blockplan.Plan) error {
	return u.commit(ctx, cfg, plan)
}

// commit PUTs the block-list document and handles RACE_RECOVER: a 400
// InvalidBlockList response is reconciled against the server's committed
// set before being treated as fatal.
func (u *Uploader) commit(ctx context.Context, cfg Config, plan blockplan.Plan) error {
	ids := plan.IDs()
	doc, err := xmlmodel.NewBlockList(ids).MarshalBody()
	if err != nil {
		return xerrors.Wrap(err, "upload.commit: marshal block list")
	}

	var errBody []byte
	opts := &azrest.Opts{
		Method:  http.MethodPut,
		URL:     blocklistURL(cfg.Account, cfg.Container, cfg.Blob),
		Headers: http.Header{"Content-Type": {"application/xml"}},
		Body:    func() (io.Reader, error) { return bytes.NewReader(doc), nil },
	}
	outcome, verdict, err := u.Client.CallWithRetryAndFailure(ctx, cfg.NRetries, opts, u.Auth, nil,
		func(resp *http.Response) error {
			errBody, _ = io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			return nil
		}, u.Log)
	if err != nil {
		return xerrors.Wrap(err, "upload.commit")
	}
	if verdict == retry.VerdictOK {
		return nil
	}

	if outcome.Status == http.StatusBadRequest && isInvalidBlockList(errBody) {
		return u.raceRecover(ctx, cfg, ids)
	}
	return verdictToError("upload.commit", cfg, outcome, verdict)
}

func isInvalidBlockList(body []byte) bool {
	var svcErr xmlmodel.ServiceError
	if xml.Unmarshal(body, &svcErr) != nil {
		return false
	}
	return svcErr.Code == "InvalidBlockList"
}

// raceRecover implements spec.md §4.5 RACE_RECOVER: query which blocks
// the service already committed and, if that set exactly matches the
// plan, treat the original 400 as an idempotently successful commit.
func (u *Uploader) raceRecover(ctx context.Context, cfg Config, plannedIDs []string) error {
	var listing xmlmodel.BlockListResponse
	opts := &azrest.Opts{
		Method: http.MethodGet,
		URL:    blocklistURL(cfg.Account, cfg.Container, cfg.Blob),
	}
	outcome, verdict, err := u.Client.CallWithRetry(ctx, cfg.NRetries, opts, u.Auth, func(resp *http.Response) error {
		return xml.NewDecoder(resp.Body).Decode(&listing)
	}, u.Log)
	if err != nil {
		return xerrors.Wrap(err, "upload.raceRecover: list blocks")
	}
	if verdict != retry.VerdictOK {
		return &xerrors.CommitRaceError{
			Context: xerrors.Context{Op: "upload.raceRecover", Container: cfg.Container, Blob: cfg.Blob, HTTPStatus: outcome.Status},
		}
	}

	committed := listing.CommittedNames()
	if !sameSet(committed, plannedIDs) {
		return &xerrors.CommitRaceError{
			Context: xerrors.Context{Op: "upload.raceRecover", Container: cfg.Container, Blob: cfg.Blob, HTTPStatus: http.StatusBadRequest},
		}
	}
	return nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// verdictToError translates a terminal Outcome/Verdict pair into the
// taxonomy of spec.md §7: a fatal classifier result is PermanentService,
// an exhausted-retry result is TransientService.
func verdictToError(op string, cfg Config, outcome retry.Outcome, verdict retry.Verdict) error {
	switch verdict {
	case retry.VerdictOK:
		return nil
	case retry.VerdictFatal:
		return &xerrors.PermanentServiceError{
			Context: xerrors.Context{Op: op, Container: cfg.Container, Blob: cfg.Blob, HTTPStatus: outcome.Status, TransportCode: int(outcome.Transport)},
		}
	default: // retry.VerdictRetry: the loop exhausted n_retries on a retryable outcome
		return &xerrors.TransientServiceError{
			Context: xerrors.Context{Op: op, Container: cfg.Container, Blob: cfg.Blob, HTTPStatus: outcome.Status, TransportCode: int(outcome.Transport)},
		}
	}
}
