// Package upload drives the parallel block-upload state machine of C5:
// PLAN -> UPLOAD_BLOCKS -> COMMIT -> DONE, with RACE_RECOVER on a losing
// commit. Grounded in backend/pikpak/multipart.go's errgroup-driven
// worker fan-out, adapted from S3 multipart semantics to Azure's
// block-blob PUT-block/PUT-blocklist protocol.
package upload

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
// end-to-end tests that drive an Uploader against an httptest.Server.
func SetEndpointOverrideForTesting(host string) { endpointOverrideHost = host }

func blobBaseURL(account, container, blob string) string {
	host := fmt.Sprintf("https://%s.blob.core.windows.net", account)
	if endpointOverrideHost != "" {
		host = endpointOverrideHost
	}
	return fmt.Sprintf("%s/%s/%s", host, container, url.PathEscape(blob))
}

func blockURL(account, container, blob, blockID string) string {
	return blobBaseURL(account, container, blob) + "?comp=block&blockid=" + url.QueryEscape(blockID)
}

func blocklistURL(account, container, blob string) string {
	return blobBaseURL(account, container, blob) + "?comp=blocklist"
}
