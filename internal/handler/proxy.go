package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/gproxy/internal/classify"
	"github.com/awsl-project/gproxy/internal/executor"
)

// maxBodyBytes caps downstream request bodies.
const maxBodyBytes = 64 << 20

// ProxyHandler is the downstream entry point. The first path segment
// selects the provider; the remainder is classified into an operation.
type ProxyHandler struct {
	Executor *executor.Executor
	Auth     *KeyAuthenticator
}

func NewProxyHandler(exec *executor.Executor, auth *KeyAuthenticator) *ProxyHandler {
	return &ProxyHandler{Executor: exec, Auth: auth}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	providerName, rest := splitProvider(r.URL.Path)
	if providerName == "" {
		writeError(w, http.StatusNotFound, "missing provider path segment")
		return
	}

	userKey := h.Auth.Authenticate(r)
	if userKey == nil {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer r.Body.Close()

	req, classifyErr := classify.Classify(r.Method, rest, r.URL.Query(), r.Header, body)
	if classifyErr != nil {
		writeError(w, classifyErr.Status, classifyErr.Message)
		return
	}

	log.WithFields(log.Fields{
		"provider":  providerName,
		"operation": req.Kind.String(),
		"model":     req.Model,
		"stream":    req.Stream,
	}).Debug("request classified")

	meta := &executor.Meta{
		UserID:    userKey.UserID,
		UserKeyID: userKey.ID,
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		Headers:   flattenRequestHeaders(r.Header),
		Body:      body,
	}
	h.Executor.Execute(r.Context(), w, providerName, req, meta)
}

// splitProvider peels the provider segment off the front of the path.
func splitProvider(path string) (string, string) {
	trimmed := strings.TrimPrefix(path, "/")
	provider, rest, found := strings.Cut(trimmed, "/")
	if !found {
		return provider, "/"
	}
	return provider, "/" + rest
}

// sensitiveHeaders never reach the event log.
var sensitiveHeaders = map[string]struct{}{
	"Authorization":  {},
	"X-Api-Key":      {},
	"X-Goog-Api-Key": {},
	"X-Admin-Key":    {},
	"Cookie":         {},
}

func flattenRequestHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if _, sensitive := sensitiveHeaders[http.CanonicalHeaderKey(name)]; sensitive {
			out[name] = "***"
			continue
		}
		if len(values) > 0 {
			out[name] = values[0]
		}
	}
	return out
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "proxy_error",
		},
	})
}
