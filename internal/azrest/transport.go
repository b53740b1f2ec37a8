// Package azrest is the authenticated HTTP request primitive every
// transfer-engine component (block planner callers aside) issues requests
// through: it owns the connect/read-timeout dialer, the bearer-token and
// x-ms-version header injection, and the glue between a single HTTP
// attempt and the retry classifier.
package azrest

import (
	"context"
	"net"
	"net/http"
	"time"
)

// APIVersion is the Azure Storage REST API version the wire format in
// internal/xmlmodel matches.
const APIVersion = "2021-08-06"

// timeoutConn nudges an idle deadline forward on every successful Read or
// Write, so read_timeout means "no progress for this long", not "the
// whole request must finish within this long". Ported from rclone's
// fshttp.timeoutConn.
type timeoutConn struct {
	net.Conn
	timeout time.Duration
}

func newTimeoutConn(conn net.Conn, timeout time.Duration) (*timeoutConn, error) {
	c := &timeoutConn{Conn: conn, timeout: timeout}
	if err := c.nudgeDeadline(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *timeoutConn) nudgeDeadline() error {
	if c.timeout == 0 {
		return nil
	}
	return c.Conn.SetDeadline(time.Now().Add(c.timeout))
}

func (c *timeoutConn) readOrWrite(f func([]byte) (int, error), b []byte) (int, error) {
	n, err := f(b)
	if n == 0 || err != nil {
		return n, err
	}
	if err := c.nudgeDeadline(); err != nil {
		return n, err
	}
	return n, nil
}

func (c *timeoutConn) Read(b []byte) (int, error)  { return c.readOrWrite(c.Conn.Read, b) }
func (c *timeoutConn) Write(b []byte) (int, error) { return c.readOrWrite(c.Conn.Write, b) }

// newDialer builds the dialer enforcing connect_timeout, per
// fshttp.NewDialer.
func newDialer(connectTimeout time.Duration) *net.Dialer {
	return &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}
}

// newTransport builds an *http.Transport whose dialed connections enforce
// readTimeout as an idle-progress watchdog rather than a hard request
// deadline, matching spec.md §4.1's read_timeout semantics for
// multi-gigabyte block transfers.
func newTransport(connectTimeout, readTimeout time.Duration, maxIdleConnsPerHost int) *http.Transport {
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   connectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       60 * time.Second,
		MaxIdleConnsPerHost:   maxIdleConnsPerHost,
		MaxIdleConns:          2 * maxIdleConnsPerHost,
	}
	dialer := newDialer(connectTimeout)
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return newTimeoutConn(conn, readTimeout)
	}
	return t
}
