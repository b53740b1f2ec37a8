package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/azstorex/azstorage/internal/logx"
	"github.com/azstorex/azstorage/internal/retry"
	"github.com/azstorex/azstorage/internal/xerrors"
)

// tokenEndpointTemplate is the login.microsoft.com endpoint of spec.md §6.
const tokenEndpointTemplate = "https://login.microsoft.com/%s/oauth2/token"

// tokenEndpointTemplateOverride lets tests point the refresher at a local
// httptest server instead of the real Microsoft login endpoint.
var tokenEndpointTemplateOverride string

// Refresher drives the refresh protocol against a *Session. One Refresher
// may be shared by every worker of a container handle; its singleflight
// group is what coalesces concurrent refreshers per spec.md §4.2/§5 ("a
// worker that observes the same pre-refresh expiry waits for the in-flight
// refresh to complete").
type Refresher struct {
	Client *http.Client
	sf     singleflight.Group
}

// NewRefresher returns a Refresher using client for the token endpoint
// POST. If client is nil, http.DefaultClient is used.
func NewRefresher(client *http.Client) *Refresher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Refresher{Client: client}
}

// EnsureFresh implements spec.md §4.2 end to end: if the session is
// already outside the grace period it returns immediately; otherwise it
// performs (or waits for an in-flight) refresh, retried through the
// classifier up to nRetries times.
func (r *Refresher) EnsureFresh(ctx context.Context, s *Session, nRetries int, connectTimeout, readTimeout time.Duration, log *logx.Logger) error {
	now := time.Now()
	if !s.NeedsRefresh(now) {
		return nil
	}

	// Coalesce: every caller that observes near-expiry at roughly the same
	// time shares one singleflight.Do invocation, keyed by the session
	// identity since one Refresher may, in principle, serve several
	// sessions (though a container handle only ever uses one).
	_, err, _ := r.sf.Do(sessionKey(s), func() (interface{}, error) {
		return nil, r.refreshOnce(ctx, s, nRetries, connectTimeout, readTimeout, log)
	})
	return err
}

func sessionKey(s *Session) string {
	return s.Tenant + "|" + s.ClientID
}

func (r *Refresher) refreshOnce(ctx context.Context, s *Session, nRetries int, connectTimeout, readTimeout time.Duration, log *logx.Logger) error {
	// Re-check under the singleflight de-dup: the winner of the race to
	// call Do() still has to do real work, but a caller that arrived after
	// a refresh already landed should observe success without re-POSTing.
	if !s.NeedsRefresh(time.Now()) {
		return nil
	}

	kind, refreshToken, clientSecret, tenant, clientID, scope, resource := s.snapshot()

	var (
		body url.Values
	)
	switch {
	case kind == DeviceOrAuthCodeFlow && refreshToken != "":
		body = url.Values{
			"client_id":     {clientID},
			"refresh_token": {refreshToken},
			"grant_type":    {"refresh_token"},
			"scope":         {scope},
			"resource":      {resource},
		}
	case kind == ClientCredentials && clientSecret != "":
		body = url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {clientID},
			"client_secret": {clientSecret},
			"resource":      {resource},
		}
	case kind == ManagedIdentity && time.Now().Before(s.Expiry()):
		// A managed-identity session has nothing for this refresher to
		// POST; its current bearer is kept until the expiry lapses.
		return nil
	default:
		return &xerrors.AuthFailureError{
			Context: xerrors.Context{Op: "oauth.Refresh"},
			Cause:   &xerrors.ConfigurationError{Reason: "no refreshable credential: need a refresh token or a client secret"},
		}
	}

	endpoint := endpointFor(tenant)

	outcome, verdict, loopErr := retry.Loop(ctx, nRetries, retry.RealSleeper, func(ctx context.Context, try int) (retry.Outcome, error) {
		access, refreshed, expiresOn, o, err := r.postOnce(ctx, endpoint, body, connectTimeout, readTimeout)
		if err != nil {
			return o, err
		}
		if o.Status >= 200 && o.Status < 300 {
			s.applyRefreshed(access, refreshed, expiresOn)
		} else if log != nil {
			log.Warnf("token refresh attempt %d failed: http=%d", try, o.Status)
		}
		return o, nil
	})
	if loopErr != nil {
		return &xerrors.AuthFailureError{
			Context: xerrors.Context{Op: "oauth.Refresh", HTTPStatus: outcome.Status},
			Cause:   loopErr,
		}
	}
	if verdict != retry.VerdictOK {
		return &xerrors.AuthFailureError{
			Context: xerrors.Context{Op: "oauth.Refresh", HTTPStatus: outcome.Status, TransportCode: int(outcome.Transport)},
		}
	}
	return nil
}

func endpointFor(tenant string) string {
	if tokenEndpointTemplateOverride != "" {
		return tokenEndpointTemplateOverride
	}
	return sprintfEndpoint(tokenEndpointTemplate, tenant)
}

// sprintfEndpoint avoids pulling in fmt just for one %s substitution site
// used on a hot path; kept as a named helper so the substitution point is
// easy to find when the endpoint needs parameterizing further.
func sprintfEndpoint(template, tenant string) string {
	return strings.Replace(template, "%s", tenant, 1)
}

// tokenResponse is the JSON body of a successful token endpoint response,
// per spec.md §4.2. Only the fields this protocol uses are modeled; the
// rest of the payload (token_type, not_before, resource echoes, …) is
// ignored.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresOn    string `json:"expires_on"`
}

func (r *Refresher) postOnce(ctx context.Context, endpoint string, body url.Values, connectTimeout, readTimeout time.Duration) (access, refreshToken string, expiresOn time.Time, outcome retry.Outcome, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, connectTimeout+readTimeout)
	defer cancel()

	req, newErr := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, strings.NewReader(body.Encode()))
	if newErr != nil {
		return "", "", time.Time{}, retry.Outcome{}, newErr
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, doErr := r.Client.Do(req)
	if doErr != nil {
		return "", "", time.Time{}, retry.ClassifyTransportError(doErr), nil
	}
	defer resp.Body.Close()

	outcome = retry.Outcome{Status: resp.StatusCode}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, convErr := strconv.Atoi(ra); convErr == nil {
			outcome.HasRetryAfter = true
			outcome.RetryAfter = time.Duration(secs) * time.Second
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", time.Time{}, outcome, nil
	}

	var parsed tokenResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&parsed); decErr != nil {
		return "", "", time.Time{}, outcome, decErr
	}
	expirySeconds, _ := strconv.ParseInt(parsed.ExpiresOn, 10, 64)
	return parsed.AccessToken, parsed.RefreshToken, time.Unix(expirySeconds, 0), outcome, nil
}
