package source

import (
	"io"
	"net/http"

	log "github.com/quotapace/quotapace/internal/logging"
	"github.com/quotapace/quotapace/internal/quota"
	"github.com/quotapace/quotapace/internal/transport"
)

const maxErrorBody = 64 << 10

// classifyHTTPError maps a non-success upstream response onto the error
// taxonomy. The body is read (bounded) for the diagnostic and the probe
// name keeps log lines attributable. Every driver funnels errors through
// here so classification stays deterministic.
func classifyHTTPError(resp *http.Response, probe string) *quota.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	diag := quota.Truncate(string(body), 200)
	log.Debugf("%s: status %d, body: %s", probe, resp.StatusCode, quota.Truncate(diag, 120))

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return quota.Unauthorized(probe + " rejected the credential")
	case http.StatusForbidden:
		hint := resp.Header.Get("X-Accepted-Oauth-Scopes")
		if hint == "" {
			hint = "billing read access (Plan: read)"
		}
		return quota.Forbidden(probe+" denied", hint)
	case http.StatusNotFound:
		return quota.NotFound(probe + " target not found")
	case http.StatusTooManyRequests:
		return quota.RateLimited(transport.RetryAfter(resp))
	default:
		return quota.Transientf("%s: unexpected status %d: %s", probe, resp.StatusCode, diag)
	}
}
