package provider

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/awsl-project/gproxy/internal/domain"
)

// buildURL joins a configured base with an API path. A base that already
// ends in the path's version segment has the duplicate stripped, so both
// "https://host" and "https://host/v1" work with a "/v1/..." path. The
// same applies to /v1beta and /v1beta1.
func buildURL(base, fallback, path string) string {
	if base == "" {
		base = fallback
	}
	base = strings.TrimSuffix(base, "/")
	for _, version := range []string{"/v1beta1", "/v1beta", "/v1"} {
		if strings.HasSuffix(base, version) && strings.HasPrefix(path, version+"/") {
			path = strings.TrimPrefix(path, version)
			break
		}
	}
	return base + path
}

// withQuery appends url-encoded query values when present.
func withQuery(rawURL string, query url.Values) string {
	if len(query) == 0 {
		return rawURL
	}
	separator := "?"
	if strings.Contains(rawURL, "?") {
		separator = "&"
	}
	return rawURL + separator + query.Encode()
}

// jsonHeaders is the baseline outbound header set.
func jsonHeaders() http.Header {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")
	return headers
}

// bearer sets an Authorization bearer header.
func bearer(headers http.Header, token string) {
	headers.Set("Authorization", "Bearer "+token)
}

// streamQuery returns alt=sse for Gemini stream ops so upstreams that can
// emit either framing emit SSE reliably.
func streamQuery(op Operation) url.Values {
	query := url.Values{}
	for key, values := range op.Query {
		query[key] = values
	}
	if op.Kind == domain.OpGeminiGenerateStream {
		query.Set("alt", "sse")
	}
	return query
}

// apiKeyOf extracts the plain API key, erroring on variant mismatch.
func apiKeyOf(cred *domain.Credential, want domain.CredentialKind) (string, error) {
	if cred.Kind != want || cred.APIKey == nil {
		return "", domain.Internal("credential kind mismatch", nil)
	}
	return cred.APIKey.APIKey, nil
}
