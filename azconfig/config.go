// Package azconfig builds the per-container-handle configuration of
// spec.md §3's "Container Handle" data model: storage account, container
// name, prefix, session, worker/timeout/retry knobs, and verbosity.
// Modeled on rclone's fs.Option/configstruct pattern but flattened to
// plain functional options, since the config-file machinery those types
// back (fs.ConfigMap, config.FileGet) is out of this module's scope.
package azconfig

import (
	"runtime"
	"time"

	"github.com/azstorex/azstorage/internal/oauth"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 30 * time.Second
	defaultNRetries       = 10
)

// Config is the immutable-after-construction tuple backing a container
// handle: {storage_account, container_name, prefix, session, n_threads,
// connect_timeout_s, read_timeout_s, n_retries, verbosity}.
type Config struct {
	StorageAccount string
	ContainerName  string
	Prefix         string
	Session        *oauth.Session

	NThreads       int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	NRetries       int
	Verbosity      int
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithPrefix sets the virtual-directory prefix prepended to every blob
// name addressed through the resulting handle.
func WithPrefix(prefix string) Option {
	return func(c *Config) { c.Prefix = prefix }
}

// WithSession attaches the shared, refreshable credential.
func WithSession(s *oauth.Session) Option {
	return func(c *Config) { c.Session = s }
}

// WithNThreads overrides the default (host CPU count) worker pool size.
func WithNThreads(n int) Option {
	return func(c *Config) { c.NThreads = n }
}

// WithConnectTimeout overrides the default 10s connect_timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

// WithReadTimeout overrides the default 30s read_timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReadTimeout = d }
}

// WithNRetries overrides the default 10 n_retries.
func WithNRetries(n int) Option {
	return func(c *Config) { c.NRetries = n }
}

// WithVerbosity overrides the default 0 verbosity.
func WithVerbosity(v int) Option {
	return func(c *Config) { c.Verbosity = v }
}

// New builds a Config for storageAccount/containerName, applying opts over
// the spec.md §6 defaults, then applying the §4.8 environment constraint:
// platforms without multi-thread transport support force n_threads=1.
func New(storageAccount, containerName string, opts ...Option) *Config {
	c := &Config{
		StorageAccount: storageAccount,
		ContainerName:  containerName,
		NThreads:       runtime.NumCPU(),
		ConnectTimeout: defaultConnectTimeout,
		ReadTimeout:    defaultReadTimeout,
		NRetries:       defaultNRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !multiThreadTransportSupported() {
		c.NThreads = 1
	}
	if c.NThreads < 1 {
		c.NThreads = 1
	}
	splitContainerPrefix(c)
	return c
}

// multiThreadTransportSupported reports whether the host platform's
// transfer backend supports concurrent sockets, per spec.md §4.8's
// environment constraint. WebAssembly builds share a single-threaded
// event loop, so the parallel block/range worker pools collapse to their
// single-threaded fast paths there.
func multiThreadTransportSupported() bool {
	return runtime.GOOS != "js" && runtime.GOARCH != "wasm"
}

// splitContainerPrefix implements spec.md §3: "if container_name itself
// contains '/', the segment before the first '/' becomes the container
// and the remainder is appended to prefix."
func splitContainerPrefix(c *Config) {
	for i := 0; i < len(c.ContainerName); i++ {
		if c.ContainerName[i] == '/' {
			rest := c.ContainerName[i+1:]
			c.ContainerName = c.ContainerName[:i]
			if c.Prefix == "" {
				c.Prefix = rest
			} else {
				c.Prefix = c.Prefix + "/" + rest
			}
			return
		}
	}
}

// SingleThreaded reports whether this Config's n_threads collapses every
// transfer operation to its single-request fast path.
func (c *Config) SingleThreaded() bool { return c.NThreads <= 1 }

// Equal implements spec.md §3's handle-equality rule: "two handles
// compare equal iff (storage_account, container_name, prefix) match;
// other fields are behavioral."
func (c *Config) Equal(other *Config) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.StorageAccount == other.StorageAccount &&
		c.ContainerName == other.ContainerName &&
		c.Prefix == other.Prefix
}
