// Package oauth implements the OAuth2 refresh protocol (C2): refreshing
// a bearer token from either a refresh token or client credentials,
// serialized across worker threads, advancing a shared expiry. Grounded
// in lib/oauthutil/oauthutil.go (token JSON shape, golang.org/x/oauth2.Token
// reuse), backend/azureblob/azureblob.go's newServicePrincipalTokenRefresher
// (refresh-before-expiry pattern), and original_source/AzStorage.c's
// curl_refresh_tokens/curl_refresh_tokens_retry (the grace period and the
// two distinct POST bodies).
package oauth

import (
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// CredentialKind tags which of the three session variants a Session
// holds, per spec.md §9's "Polymorphism over session credential variants".
type CredentialKind int

const (
	// ClientCredentials sessions refresh via grant_type=client_credentials.
	ClientCredentials CredentialKind = iota
	// DeviceOrAuthCodeFlow sessions refresh via grant_type=refresh_token.
	DeviceOrAuthCodeFlow
	// ManagedIdentity sessions have no refresh path of their own; the
	// out-of-scope authentication library is responsible for supplying a
	// fresh bearer before the session's expiry, and Refresher.EnsureFresh
	// on such a session is a no-op success as long as expiry has not yet
	// lapsed (an AuthFailureError once it has).
	ManagedIdentity
)

// gracePeriod is the 10-minute window of spec.md §4.2 step 1.
const gracePeriod = 10 * time.Minute

// Session is the mutable, shared-across-workers credential holder from
// the data model: {bearer, refresh?, expiry, tenant, client_id,
// client_secret?, scope, resource}. The token buffer has no explicit
// capacity limit here (Go strings are not fixed-size), which is a
// strictly more permissive superset of the "≥16000 byte buffer" of the
// spec's data model.
type Session struct {
	mu sync.Mutex

	Kind CredentialKind

	Tenant       string
	ClientID     string
	ClientSecret string
	Scope        string
	Resource     string

	bearer       string
	refreshToken string
	expiry       time.Time

	// refreshing and lastErr are not set by this package: in-flight
	// refreshes are coalesced by Refresher's singleflight group instead.
	refreshing *sync.WaitGroup
	lastErr    error
}

// NewSession constructs a Session already holding a bearer token (as
// acquired by the out-of-scope authentication library) with the given
// expiry and optional refresh token / client secret.
func NewSession(kind CredentialKind, bearer string, expiry time.Time, tenant, clientID, scope, resource string) *Session {
	return &Session{
		Kind:     kind,
		Tenant:   tenant,
		ClientID: clientID,
		Scope:    scope,
		Resource: resource,
		bearer:   bearer,
		expiry:   expiry,
	}
}

// WithRefreshToken attaches a refresh token, selecting the
// DeviceOrAuthCodeFlow refresh branch.
func (s *Session) WithRefreshToken(refreshToken string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshToken = refreshToken
	s.Kind = DeviceOrAuthCodeFlow
	return s
}

// WithClientSecret attaches a client secret, selecting the
// ClientCredentials refresh branch.
func (s *Session) WithClientSecret(secret string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClientSecret = secret
	s.Kind = ClientCredentials
	return s
}

// Bearer returns the current bearer token. Safe to call concurrently with
// a refresh: refreshes always widen expiry and only ever replace bearer
// under the session mutex, so a reader never observes a torn value.
func (s *Session) Bearer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bearer
}

// Expiry returns the current token expiry.
func (s *Session) Expiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry
}

// NeedsRefresh reports whether now is within the 10-minute grace period of
// expiry, per spec.md §4.2 step 1.
func (s *Session) NeedsRefresh(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !now.Before(s.expiry.Add(-gracePeriod))
}

// snapshot returns the fields a refresher needs without holding the lock
// across the HTTP call.
func (s *Session) snapshot() (kind CredentialKind, refreshToken, clientSecret, tenant, clientID, scope, resource string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Kind, s.refreshToken, s.ClientSecret, s.Tenant, s.ClientID, s.Scope, s.Resource
}

// applyRefreshed writes back a successful refresh's results under the
// session mutex. Expiry only ever moves forward (monotone non-decreasing
// per the data model invariant); a refresh response that would move it
// backward is ignored defensively, though in practice the token endpoint
// never does this.
func (s *Session) applyRefreshed(bearer string, refreshToken string, expiry time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bearer = bearer
	if refreshToken != "" {
		s.refreshToken = refreshToken
	}
	if expiry.After(s.expiry) {
		s.expiry = expiry
	}
}

// Token renders the current bearer/expiry as an oauth2.Token, matching
// the value type the teacher's lib/oauthutil already standardizes on so
// callers that expect an *oauth2.Token (e.g. to feed an
// oauth2.StaticTokenSource elsewhere) can interoperate directly.
func (s *Session) Token() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &oauth2.Token{
		AccessToken:  s.bearer,
		RefreshToken: s.refreshToken,
		Expiry:       s.expiry,
		TokenType:    "Bearer",
	}
}
