// Package claude holds the typed wire records for the Anthropic Messages
// API: requests, responses, streaming events and the anthropic-* headers.
package claude

import (
	"net/http"
	"strings"
)

// Known anthropic-version values. Unrecognized versions pass through as-is.
const (
	Version20230601 = "2023-06-01"
	Version20230101 = "2023-01-01"
)

// Known anthropic-beta tokens. The header also accepts arbitrary custom
// strings, so Beta is a plain string with these names for the known set.
const (
	BetaMessageBatches20240924   = "message-batches-2024-09-24"
	BetaPromptCaching20240731    = "prompt-caching-2024-07-31"
	BetaComputerUse20241022      = "computer-use-2024-10-22"
	BetaComputerUse20250124      = "computer-use-2025-01-24"
	BetaPDFs20240925             = "pdfs-2024-09-25"
	BetaTokenCounting20241101    = "token-counting-2024-11-01"
	BetaTokenEfficientTools      = "token-efficient-tools-2025-02-19"
	BetaOutput128k20250219       = "output-128k-2025-02-19"
	BetaFilesAPI20250414         = "files-api-2025-04-14"
	BetaInterleavedThinking      = "interleaved-thinking-2025-05-14"
	BetaCodeExecution20250522    = "code-execution-2025-05-22"
	BetaExtendedCacheTTL20250411 = "extended-cache-ttl-2025-04-11"
	BetaContext1M20250807        = "context-1m-2025-08-07"
	BetaOAuth20250416            = "oauth-2025-04-16"
)

// Headers is the parsed form of the anthropic-* request headers.
// Beta keeps the raw item list, duplicates and all.
type Headers struct {
	Version string   `json:"anthropic-version,omitempty"`
	Beta    []string `json:"anthropic-beta,omitempty"`
}

// ParseHeaders pulls the anthropic-* headers out of an HTTP header set.
// anthropic-beta accepts a single value or a comma-separated list; items
// are trimmed but otherwise preserved as-is, including duplicates.
func ParseHeaders(h http.Header) Headers {
	out := Headers{Version: h.Get("anthropic-version")}
	for _, value := range h.Values("anthropic-beta") {
		for _, item := range strings.Split(value, ",") {
			out.Beta = append(out.Beta, strings.TrimSpace(item))
		}
	}
	return out
}

// Apply writes the headers back onto an outbound request.
func (h Headers) Apply(dst http.Header) {
	version := h.Version
	if version == "" {
		version = Version20230601
	}
	dst.Set("anthropic-version", version)
	if len(h.Beta) > 0 {
		dst.Set("anthropic-beta", strings.Join(h.Beta, ","))
	}
}

// HasBeta reports whether a beta token is present.
func (h Headers) HasBeta(token string) bool {
	for _, item := range h.Beta {
		if item == token {
			return true
		}
	}
	return false
}

// Stop reasons.
const (
	StopEndTurn      = "end_turn"
	StopMaxTokens    = "max_tokens"
	StopStopSequence = "stop_sequence"
	StopToolUse      = "tool_use"
	StopPauseTurn    = "pause_turn"
	StopRefusal      = "refusal"
)
