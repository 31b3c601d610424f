package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/gproxy/internal/classify"
	"github.com/awsl-project/gproxy/internal/converter"
	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/pool"
	"github.com/awsl-project/gproxy/internal/provider"
	"github.com/awsl-project/gproxy/internal/repository"
)

// fakeClient scripts upstream answers per call.
type fakeClient struct {
	requests  []*domain.UpstreamHTTPRequest
	responses []*domain.UpstreamHTTPResponse
}

func (f *fakeClient) Send(_ context.Context, req *domain.UpstreamHTTPRequest) (*domain.UpstreamHTTPResponse, *domain.TransportError) {
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return &domain.UpstreamHTTPResponse{Status: 500, Headers: http.Header{}}, nil
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next, nil
}

func jsonResponse(status int, body string) *domain.UpstreamHTTPResponse {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	return &domain.UpstreamHTTPResponse{Status: status, Headers: headers, Body: []byte(body)}
}

func testRuntimes(t *testing.T, kind domain.ProviderKind, cfg *domain.ProviderConfig, credentials ...repository.CredentialRow) *Runtimes {
	t.Helper()
	runtimes := NewRuntimes(nil)
	snapshot := &repository.Snapshot{
		Providers: []domain.Provider{{
			ID:      1,
			Name:    "p",
			Enabled: true,
			Config:  cfg,
		}},
		Credentials: credentials,
	}
	require.NoError(t, runtimes.Rebuild(snapshot))
	return runtimes
}

func credentialRow(id int64, kind domain.CredentialKind, key string) repository.CredentialRow {
	return repository.CredentialRow{
		ID:         id,
		ProviderID: 1,
		Enabled:    true,
		Weight:     1,
		Value:      domain.NewAPIKeyCredential(kind, key),
	}
}

func newTestExecutor(t *testing.T, client *fakeClient, runtimes *Runtimes) *Executor {
	t.Helper()
	env := &provider.Env{HTTP: client, Tokens: pool.NewTokenCache()}
	return New(runtimes, env, converter.NewRegistry(), nil, nil)
}

func classifyRequest(t *testing.T, method, path string, headers http.Header, body string) *classify.Request {
	t.Helper()
	if headers == nil {
		headers = http.Header{}
	}
	var raw []byte
	if body != "" {
		raw = []byte(body)
	}
	req, err := classify.Classify(method, path, nil, headers, raw)
	require.Nil(t, err)
	return req
}

const upstreamClaudeBody = `{"id":"m_1","type":"message","role":"assistant","content":[{"type":"text","text":"hello"}],"model":"claude-3-7-sonnet","stop_reason":"end_turn","usage":{"input_tokens":2,"output_tokens":1,"cache_read_input_tokens":0,"cache_creation_input_tokens":0}}`

// S1: a Claude request against the claude provider passes through
// byte-for-byte, with the request id header set.
func TestClaudePassthrough(t *testing.T) {
	client := &fakeClient{responses: []*domain.UpstreamHTTPResponse{jsonResponse(200, upstreamClaudeBody)}}
	runtimes := testRuntimes(t,
		domain.ProviderClaude,
		&domain.ProviderConfig{Kind: domain.ProviderClaude, Claude: &domain.BaseURLConfig{}},
		credentialRow(1, domain.CredentialClaude, "sk-1"),
	)
	exec := newTestExecutor(t, client, runtimes)

	req := classifyRequest(t, http.MethodPost, "/v1/messages", nil,
		`{"model":"claude-3-7-sonnet","max_tokens":16,"messages":[{"role":"user","content":"hi"}]}`)
	recorder := httptest.NewRecorder()
	exec.Execute(context.Background(), recorder, "p", req, &Meta{Method: http.MethodPost, Path: "/p/v1/messages"})

	assert.Equal(t, 200, recorder.Code)
	assert.Equal(t, upstreamClaudeBody, recorder.Body.String())
	assert.NotEmpty(t, recorder.Header().Get(RequestIDHeader))

	require.Len(t, client.requests, 1)
	assert.Equal(t, "https://api.anthropic.com/v1/messages", client.requests[0].URL)
	assert.Equal(t, "sk-1", client.requests[0].Headers.Get("x-api-key"))
}

// S2: the same Claude request against the openai provider is rewritten to
// the Responses shape upstream and the answer converted back into a
// Claude message.
func TestClaudeToOpenAITransform(t *testing.T) {
	upstreamResponse := `{
		"id":"resp_1","object":"response","created_at":1,"status":"completed","model":"gpt-4o",
		"output":[{"type":"message","id":"msg_x","status":"completed","role":"assistant",
			"content":[{"type":"output_text","text":"hello"}]}],
		"usage":{"input_tokens":9,"output_tokens":4,"total_tokens":13}
	}`
	client := &fakeClient{responses: []*domain.UpstreamHTTPResponse{jsonResponse(200, upstreamResponse)}}
	runtimes := testRuntimes(t,
		domain.ProviderOpenAI,
		&domain.ProviderConfig{Kind: domain.ProviderOpenAI, OpenAI: &domain.BaseURLConfig{}},
		credentialRow(1, domain.CredentialOpenAI, "sk-oa"),
	)
	exec := newTestExecutor(t, client, runtimes)

	req := classifyRequest(t, http.MethodPost, "/v1/messages", nil,
		`{"model":"gpt-4o","max_tokens":16,"messages":[{"role":"user","content":"hi"}]}`)
	recorder := httptest.NewRecorder()
	exec.Execute(context.Background(), recorder, "p", req, &Meta{Method: http.MethodPost, Path: "/p/v1/messages"})

	require.Equal(t, 200, recorder.Code)
	require.Len(t, client.requests, 1)
	assert.Equal(t, "https://api.openai.com/v1/responses", client.requests[0].URL)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(client.requests[0].Body, &sent))
	assert.Equal(t, "gpt-4o", sent["model"])
	assert.Contains(t, sent, "input")

	var downstream map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &downstream))
	assert.Equal(t, "message", downstream["type"])
	assert.Equal(t, "end_turn", downstream["stop_reason"])
	usage := downstream["usage"].(map[string]any)
	assert.EqualValues(t, 9, usage["input_tokens"])
	assert.EqualValues(t, 4, usage["output_tokens"])
}

// S3: a 429 with Retry-After cools the first credential down and the
// pool moves on to the second, which succeeds.
func TestRateLimitRetry(t *testing.T) {
	rateLimited := jsonResponse(429, `{"error":{"type":"rate_limit_error","message":"slow down"}}`)
	rateLimited.Headers.Set("Retry-After", "2")
	client := &fakeClient{responses: []*domain.UpstreamHTTPResponse{
		rateLimited,
		jsonResponse(200, upstreamClaudeBody),
	}}
	runtimes := testRuntimes(t,
		domain.ProviderClaude,
		&domain.ProviderConfig{Kind: domain.ProviderClaude, Claude: &domain.BaseURLConfig{}},
		credentialRow(1, domain.CredentialClaude, "sk-1"),
		credentialRow(2, domain.CredentialClaude, "sk-2"),
	)
	exec := newTestExecutor(t, client, runtimes)

	req := classifyRequest(t, http.MethodPost, "/v1/messages", nil,
		`{"model":"claude-3-7-sonnet","max_tokens":16,"messages":[{"role":"user","content":"hi"}]}`)
	recorder := httptest.NewRecorder()
	exec.Execute(context.Background(), recorder, "p", req, &Meta{Method: http.MethodPost, Path: "/p/v1/messages"})

	assert.Equal(t, 200, recorder.Code)
	assert.Equal(t, 2, len(client.requests))
	assert.NotEqual(t,
		client.requests[0].Headers.Get("x-api-key"),
		client.requests[1].Headers.Get("x-api-key"))

	runtime, ok := runtimes.Get("p")
	require.True(t, ok)
	snapshot := runtime.Pool.Snapshot()
	require.Len(t, snapshot.Disallow, 1)
	for key, entry := range snapshot.Disallow {
		assert.True(t, key.Scope.AllModels())
		assert.Equal(t, domain.LevelCooldown, entry.Level)
		assert.Equal(t, pool.ReasonRateLimit, entry.Reason)
	}
}

// An error without a credential mark halts retries and passes through
// verbatim.
func TestNonRetriableErrorPassesThrough(t *testing.T) {
	client := &fakeClient{responses: []*domain.UpstreamHTTPResponse{
		jsonResponse(400, `{"error":{"type":"invalid_request_error","message":"nope"}}`),
	}}
	runtimes := testRuntimes(t,
		domain.ProviderClaude,
		&domain.ProviderConfig{Kind: domain.ProviderClaude, Claude: &domain.BaseURLConfig{}},
		credentialRow(1, domain.CredentialClaude, "sk-1"),
		credentialRow(2, domain.CredentialClaude, "sk-2"),
	)
	exec := newTestExecutor(t, client, runtimes)

	req := classifyRequest(t, http.MethodPost, "/v1/messages", nil,
		`{"model":"m","max_tokens":1,"messages":[]}`)
	recorder := httptest.NewRecorder()
	exec.Execute(context.Background(), recorder, "p", req, &Meta{})

	assert.Equal(t, 400, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "invalid_request_error")
	assert.Len(t, client.requests, 1)
}

func TestUnknownProvider(t *testing.T) {
	exec := newTestExecutor(t, &fakeClient{}, NewRuntimes(nil))
	req := classifyRequest(t, http.MethodPost, "/v1/messages", nil,
		`{"model":"m","max_tokens":1,"messages":[]}`)
	recorder := httptest.NewRecorder()
	exec.Execute(context.Background(), recorder, "ghost", req, &Meta{})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

// Unsupported operations are refused before any upstream call.
func TestUnsupportedOperation(t *testing.T) {
	client := &fakeClient{}
	var ops [domain.OperationKindCount]domain.DispatchRule
	runtimes := testRuntimes(t,
		domain.ProviderCustom,
		&domain.ProviderConfig{Kind: domain.ProviderCustom, Custom: &domain.CustomProviderConfig{
			Proto:    domain.ProtoOpenAIChat,
			BaseURL:  "https://relay.example.com",
			Dispatch: domain.NewDispatchTable(ops),
		}},
		credentialRow(1, domain.CredentialCustom, "ck"),
	)
	exec := newTestExecutor(t, client, runtimes)

	req := classifyRequest(t, http.MethodPost, "/v1/messages", nil,
		`{"model":"m","max_tokens":1,"messages":[]}`)
	recorder := httptest.NewRecorder()
	exec.Execute(context.Background(), recorder, "p", req, &Meta{})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Empty(t, client.requests)
}
