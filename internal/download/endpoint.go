package download

import (
	"fmt"
	"net/url"
)

// endpointOverrideHost lets tests point at an httptest server instead of
// the real *.blob.core.windows.net host.
var endpointOverrideHost string

// SetEndpointOverrideForTesting redirects every blob URL this package
// builds to host instead of the real Azure endpoint. Intended for use
// from _test.go files, including other packages' (e.g. copypipeline's)
// end-to-end tests that drive a Downloader against an httptest.Server.
func SetEndpointOverrideForTesting(host string) { endpointOverrideHost = host }

func blobBaseURL(account, container, blob string) string {
	host := fmt.Sprintf("https://%s.blob.core.windows.net", account)
	if endpointOverrideHost != "" {
		host = endpointOverrideHost
	}
	return fmt.Sprintf("%s/%s/%s", host, container, url.PathEscape(blob))
}
