package retry

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
)

// ClassifyTransportError maps a Go transport-layer error (from
// http.Client.Do or a lower-level dial/read/write) onto the numeric
// TransportCode space of codes.go, so the same Classify function serves
// both HTTP-status and transport-failure outcomes. This is the Go
// equivalent of the original's reliance on libcurl's own CURLcode: since
// net/http doesn't expose one canonical error taxonomy, this inspects the
// concrete error chain (net.DNSError, *net.OpError, tls errors, and the
// context deadline) in roughly the order a request actually fails.
func ClassifyTransportError(err error) Outcome {
	if err == nil {
		return Outcome{}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return Outcome{Transport: TransportDNSNoName}
		}
		return Outcome{Transport: TransportCouldNotResolveHost}
	}

	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return Outcome{Transport: TransportSSLConnectError}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case (opErr.Op == "read" || opErr.Op == "write") && opErr.Timeout():
			// The idle-progress deadline (azrest's timeoutConn) expired.
			return Outcome{Transport: TransportAbortedByCallback}
		case opErr.Op == "dial":
			return Outcome{Transport: TransportCouldNotConnect}
		case opErr.Op == "read":
			return Outcome{Transport: TransportRecvError}
		case opErr.Op == "write":
			return Outcome{Transport: TransportSendError}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Transport: TransportOperationTimedout}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Outcome{Transport: TransportOperationTimedout}
	}

	// Unrecognized transport failure: treat as a receive error, the most
	// common failure mode for "request started but didn't complete", and
	// let the classifier decide retryability from there (currently
	// retryable, matching the original's generic "EOF and generic I/O
	// errors encountered during streaming reads are retryable").
	return Outcome{Transport: TransportRecvError}
}
