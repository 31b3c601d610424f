package domain

import "time"

// DownstreamEvent records one client-facing request/response pair.
type DownstreamEvent struct {
	TraceID         string            `json:"trace_id,omitempty"`
	At              time.Time         `json:"at"`
	UserID          int64             `json:"user_id,omitempty"`
	UserKeyID       int64             `json:"user_key_id,omitempty"`
	RequestMethod   string            `json:"request_method"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	RequestPath     string            `json:"request_path"`
	RequestQuery    string            `json:"request_query,omitempty"`
	RequestBody     []byte            `json:"request_body,omitempty"`
	ResponseStatus  int               `json:"response_status,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    []byte            `json:"response_body,omitempty"`
}

// UpstreamEvent records one provider-facing attempt, with the
// protocol-specific token counters when the attempt produced usage.
type UpstreamEvent struct {
	TraceID         string             `json:"trace_id,omitempty"`
	At              time.Time          `json:"at"`
	UserID          int64              `json:"user_id,omitempty"`
	UserKeyID       int64              `json:"user_key_id,omitempty"`
	Provider        string             `json:"provider"`
	CredentialID    string             `json:"credential_id,omitempty"`
	Internal        bool               `json:"internal,omitempty"`
	AttemptNo       int                `json:"attempt_no"`
	Operation       string             `json:"operation"`
	Model           string             `json:"model,omitempty"`
	RequestMethod   string             `json:"request_method"`
	RequestHeaders  map[string]string  `json:"request_headers,omitempty"`
	RequestPath     string             `json:"request_path"`
	RequestQuery    string             `json:"request_query,omitempty"`
	RequestBody     []byte             `json:"request_body,omitempty"`
	ResponseStatus  int                `json:"response_status,omitempty"`
	ResponseHeaders map[string]string  `json:"response_headers,omitempty"`
	ResponseBody    []byte             `json:"response_body,omitempty"`
	Usage           *UsageSummary      `json:"usage,omitempty"`
	ErrorKind       string             `json:"error_kind,omitempty"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	TransportKind   TransportErrorKind `json:"transport_kind,omitempty"`
}

// OperationalEventKind tags credential availability transitions.
type OperationalEventKind string

var (
	EventUnavailableStart      OperationalEventKind = "unavailable_start"
	EventUnavailableEnd        OperationalEventKind = "unavailable_end"
	EventModelUnavailableStart OperationalEventKind = "model_unavailable_start"
	EventModelUnavailableEnd   OperationalEventKind = "model_unavailable_end"
)

// OperationalEvent records a credential entering or leaving a disallow.
type OperationalEvent struct {
	Kind         OperationalEventKind `json:"kind"`
	At           time.Time            `json:"at"`
	Provider     string               `json:"provider,omitempty"`
	CredentialID string               `json:"credential_id"`
	Model        string               `json:"model,omitempty"`
	Reason       string               `json:"reason,omitempty"`
	Until        time.Time            `json:"until,omitzero"`
}

// Event is the hub's sum type. Exactly one field is non-nil.
type Event struct {
	Downstream  *DownstreamEvent  `json:"downstream,omitempty"`
	Upstream    *UpstreamEvent    `json:"upstream,omitempty"`
	Operational *OperationalEvent `json:"operational,omitempty"`
}
