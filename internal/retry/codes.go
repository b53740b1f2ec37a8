package retry

// TransportCode is a small numeric space modeled on libcurl's CURLcode,
// the same space the original C implementation (AzStorage.c) classified
// against. Representing transport failures this way keeps the classifier
// independent of Go's net/http error types, which vary across the
// standard library and wrap differently depending on transport stage.
type TransportCode int

// Transport codes that appear in spec.md's retryable set, named after
// their libcurl equivalents so the mapping in transport.go reads
// naturally against the wire protocol section of the spec.
const (
	TransportOK TransportCode = 0

	// TransportCouldNotResolveHost is CURLE_COULDNT_RESOLVE_HOST (6).
	TransportCouldNotResolveHost TransportCode = 6
	// TransportCouldNotConnect is CURLE_COULDNT_CONNECT (7).
	TransportCouldNotConnect TransportCode = 7
	// TransportOperationTimedout is CURLE_OPERATION_TIMEDOUT (28).
	TransportOperationTimedout TransportCode = 28
	// TransportSSLConnectError is CURLE_SSL_CONNECT_ERROR (35).
	TransportSSLConnectError TransportCode = 35
	// TransportAbortedByCallback is CURLE_ABORTED_BY_CALLBACK (42), raised by
	// the progress watchdog when it aborts a stalled request.
	TransportAbortedByCallback TransportCode = 42
	// TransportSendError is CURLE_SEND_ERROR (55).
	TransportSendError TransportCode = 55
	// TransportRecvError is CURLE_RECV_ERROR (56).
	TransportRecvError TransportCode = 56

	// TransportDNSNoName models getaddrinfo's EAI_NONAME: the name simply
	// does not exist. Unlike other DNS failures this is permanent.
	TransportDNSNoName TransportCode = -1
)

// retryableHTTP is the exact retryable HTTP status set from spec.md §4.1.
var retryableHTTP = map[int]bool{
	429: true,
	500: true,
	503: true,
}

// retryableTransport is the exact retryable transport code set from
// spec.md §4.1. TransportDNSNoName is deliberately absent: it is the one
// DNS failure classified fatal.
var retryableTransport = map[TransportCode]bool{
	TransportCouldNotResolveHost: true,
	TransportCouldNotConnect:     true,
	TransportOperationTimedout:   true,
	TransportSSLConnectError:     true,
	TransportAbortedByCallback:   true,
	TransportSendError:           true,
	TransportRecvError:           true,
}

// IsRetryableHTTPStatus reports whether status is in the retryable set.
func IsRetryableHTTPStatus(status int) bool {
	return retryableHTTP[status]
}

// IsRetryableTransportCode reports whether code is in the retryable set.
func IsRetryableTransportCode(code TransportCode) bool {
	return retryableTransport[code]
}
