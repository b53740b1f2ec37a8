package azrest

import (
	"net/http"
	"time"

	"github.com/azstorex/azstorage/internal/logx"
)

// Client is a connect/read-timeout-bound HTTP client shared by every
// worker of a container handle. One Client is built per handle at
// azstorage.Open time and reused across every request the handle issues,
// mirroring fshttp.NewClient's one-transport-per-config-set shape.
type Client struct {
	hc  *http.Client
	log *logx.Logger
}

// NewClient builds a Client whose dialed connections enforce
// connectTimeout on the TCP handshake/TLS negotiation and readTimeout as
// an idle-progress watchdog on every subsequent read or write.
// maxIdleConnsPerHost should track the handle's n_threads so the
// connection pool doesn't force serialization of parallel block
// transfers onto a handful of reused sockets.
func NewClient(connectTimeout, readTimeout time.Duration, maxIdleConnsPerHost int, log *logx.Logger) *Client {
	if maxIdleConnsPerHost < 1 {
		maxIdleConnsPerHost = 1
	}
	return &Client{
		hc: &http.Client{
			Transport: newTransport(connectTimeout, readTimeout, maxIdleConnsPerHost),
		},
		log: log,
	}
}

// Do sends req as-is over the shared connection pool and returns the raw
// response, with no retry or classification. CallWithRetryAndFailure
// issues each of its attempts through Do.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.log != nil {
		c.log.Debugf("%s %s", req.Method, req.URL.Path)
	}
	return c.hc.Do(req)
}
