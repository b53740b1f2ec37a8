package azrest

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/azstorex/azstorage/internal/logx"
	"github.com/azstorex/azstorage/internal/oauth"
	"github.com/azstorex/azstorage/internal/retry"
)

// Opts describes one logical request. Body is a factory rather than an
// io.Reader because retry.Loop may issue the same logical request more
// than once, and an io.Reader consumed by a failed attempt can't be
// replayed; ported from lib/rest.Opts's opts.Body + the teacher's
// observation (rest.go's Call) that a fresh body is needed per attempt
// when retrying uploads.
type Opts struct {
	Method        string
	URL           string
	Headers       http.Header
	Body          func() (io.Reader, error)
	ContentLength int64
}

func (o *Opts) newRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if o.Body != nil {
		b, err := o.Body()
		if err != nil {
			return nil, err
		}
		body = b
	}
	req, err := http.NewRequestWithContext(ctx, o.Method, o.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range o.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("x-ms-version", APIVersion)
	if o.ContentLength > 0 {
		req.ContentLength = o.ContentLength
	}
	return req, nil
}

// Auth bundles the OAuth2 session/refresher pair and retry knobs a
// container handle was opened with, so every azrest call can ensure a
// fresh bearer token before each attempt (spec.md §4.2: "refresh before
// any request whose token would otherwise be within the grace period").
type Auth struct {
	Session        *oauth.Session
	Refresher      *oauth.Refresher
	NRetries       int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

func (a *Auth) ensureFresh(ctx context.Context, log *logx.Logger) error {
	if a == nil || a.Session == nil || a.Refresher == nil {
		return nil
	}
	return a.Refresher.EnsureFresh(ctx, a.Session, a.NRetries, a.ConnectTimeout, a.ReadTimeout, log)
}

func (a *Auth) bearer() string {
	if a == nil || a.Session == nil {
		return ""
	}
	return a.Session.Bearer()
}

// Consume is invoked once per successful (2xx) attempt, with the response
// body not yet closed, so the caller can stream it into a pre-allocated
// download buffer, decode XML, or simply discard it. CallWithRetry closes
// the body afterward regardless of the error Consume returns.
type Consume func(resp *http.Response) error

// CallWithRetry issues opts through the retry classifier up to nRetries
// times, re-ensuring a fresh bearer token and rebuilding the request (so
// Body is re-read from the start) on every attempt. It returns the last
// Outcome observed; callers translate Outcome+verdict into the
// internal/xerrors taxonomy.
func (c *Client) CallWithRetry(ctx context.Context, nRetries int, opts *Opts, auth *Auth, consume Consume, log *logx.Logger) (retry.Outcome, retry.Verdict, error) {
	return c.CallWithRetryAndFailure(ctx, nRetries, opts, auth, consume, nil, log)
}

// CallWithRetryAndFailure is CallWithRetry plus onFailure, invoked on each
// non-2xx attempt with the response body not yet closed, so a caller that
// needs to inspect an error body (e.g. parsing InvalidBlockList out of a
// commit's 400 response) can do so before the body is drained and closed.
func (c *Client) CallWithRetryAndFailure(ctx context.Context, nRetries int, opts *Opts, auth *Auth, consume Consume, onFailure Consume, log *logx.Logger) (retry.Outcome, retry.Verdict, error) {
	return retry.Loop(ctx, nRetries, retry.RealSleeper, func(ctx context.Context, try int) (retry.Outcome, error) {
		if err := auth.ensureFresh(ctx, log); err != nil {
			return retry.Outcome{}, err
		}
		req, err := opts.newRequest(ctx)
		if err != nil {
			return retry.Outcome{}, err
		}
		if bearer := auth.bearer(); bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		resp, doErr := c.Do(req)
		if doErr != nil {
			return retry.ClassifyTransportError(doErr), nil
		}

		outcome := outcomeOf(resp)
		if outcome.Status >= 200 && outcome.Status < 300 {
			var consumeErr error
			if consume != nil {
				consumeErr = consume(resp)
			}
			resp.Body.Close()
			return outcome, consumeErr
		}
		if onFailure != nil {
			onFailure(resp)
		}
		drain(resp)
		return outcome, nil
	})
}

// outcomeOf turns a response's status and Retry-After header into an
// Outcome the classifier can act on.
func outcomeOf(resp *http.Response) retry.Outcome {
	o := retry.Outcome{Status: resp.StatusCode}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			o.HasRetryAfter = true
			o.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return o
}

// drain discards and closes a non-2xx response's body so the underlying
// connection can be reused by the pool instead of forcing a fresh dial
// on the next attempt.
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
}
