package domain

import (
	"io"
	"net/http"
)

// UpstreamHTTPRequest is what an adapter hands the outbound client.
type UpstreamHTTPRequest struct {
	Method   string
	URL      string
	Headers  http.Header
	Body     []byte
	IsStream bool
}

// UpstreamHTTPResponse is the outbound client's answer. Exactly one of
// Body and Stream is set: Body for buffered responses, Stream for
// streaming ones. The dispatcher owns closing Stream.
type UpstreamHTTPResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
	Stream  io.ReadCloser
}

// Buffered reports whether the whole body is already in memory.
func (r *UpstreamHTTPResponse) Buffered() bool { return r.Stream == nil }

// UsageSummary carries the protocol-specific token counters recorded on
// upstream traffic events.
type UsageSummary struct {
	InputTokens      int64 `json:"input_tokens,omitempty"`
	OutputTokens     int64 `json:"output_tokens,omitempty"`
	CacheReadTokens  int64 `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int64 `json:"cache_write_tokens,omitempty"`
	ThoughtsTokens   int64 `json:"thoughts_tokens,omitempty"`
	TotalTokens      int64 `json:"total_tokens,omitempty"`
}
