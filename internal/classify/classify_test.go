package classify

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/gproxy/internal/domain"
)

func headersWith(pairs ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

const claudeBody = `{"model":"claude-3-7-sonnet","max_tokens":16,"messages":[{"role":"user","content":"hi"}]}`

func TestClassifyClaudeMessages(t *testing.T) {
	req, err := Classify(http.MethodPost, "/v1/messages", nil, headersWith("anthropic-version", "2023-06-01"), []byte(claudeBody))
	require.Nil(t, err)
	assert.Equal(t, domain.OpClaudeGenerate, req.Kind)
	assert.Equal(t, "claude-3-7-sonnet", req.Model)
	assert.False(t, req.Stream)
	assert.Equal(t, "2023-06-01", req.ClaudeHeaders.Version)
	require.NotNil(t, req.ClaudeGenerate)
	assert.Equal(t, 16, req.ClaudeGenerate.MaxTokens)
}

func TestClassifyClaudeMessagesStream(t *testing.T) {
	body := `{"model":"m","max_tokens":1,"messages":[],"stream":true}`
	req, err := Classify(http.MethodPost, "/v1/messages", nil, http.Header{}, []byte(body))
	require.Nil(t, err)
	assert.Equal(t, domain.OpClaudeGenerateStream, req.Kind)
	assert.True(t, req.Stream)
}

func TestClassifyMissingBody(t *testing.T) {
	_, err := Classify(http.MethodPost, "/v1/messages", nil, http.Header{}, nil)
	require.NotNil(t, err)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Contains(t, err.Message, "missing body for claude messages")
}

func TestClassifyMethodMismatch(t *testing.T) {
	_, err := Classify(http.MethodGet, "/v1/messages", nil, http.Header{}, nil)
	require.NotNil(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, err.Status)
}

func TestClassifyChatCompletions(t *testing.T) {
	body := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":true}`
	req, err := Classify(http.MethodPost, "/v1/chat/completions", nil, http.Header{}, []byte(body))
	require.Nil(t, err)
	assert.Equal(t, domain.OpOpenAIChatGenerateStream, req.Kind)
	assert.Equal(t, "gpt-4o", req.Model)
}

func TestClassifyResponsesInputTokens(t *testing.T) {
	body := `{"model":"gpt-4o","input":"hello"}`
	req, err := Classify(http.MethodPost, "/v1/responses/input_tokens", nil, http.Header{}, []byte(body))
	require.Nil(t, err)
	assert.Equal(t, domain.OpOpenAIInputTokens, req.Kind)
	assert.Equal(t, domain.ProtoOpenAI, req.Proto)
}

func TestClassifyGeminiActions(t *testing.T) {
	body := `{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`

	generate, err := Classify(http.MethodPost, "/v1beta/models/gemini-2.0-flash:generateContent", nil, http.Header{}, []byte(body))
	require.Nil(t, err)
	assert.Equal(t, domain.OpGeminiGenerate, generate.Kind)
	assert.Equal(t, "gemini-2.0-flash", generate.Model)

	stream, err := Classify(http.MethodPost, "/v1beta/models/gemini-2.0-flash:streamGenerateContent", nil, http.Header{}, []byte(body))
	require.Nil(t, err)
	assert.Equal(t, domain.OpGeminiGenerateStream, stream.Kind)
	assert.True(t, stream.Stream)

	count, err := Classify(http.MethodPost, "/v1beta/models/gemini-2.0-flash:countTokens", nil, http.Header{}, []byte(body))
	require.Nil(t, err)
	assert.Equal(t, domain.OpGeminiCountTokens, count.Kind)
}

// /v1/models disambiguation: anthropic-version selects Claude,
// x-goog-api-key or key= selects Gemini, anything else OpenAI.
func TestClassifyModelsDisambiguation(t *testing.T) {
	asGemini, err := Classify(http.MethodGet, "/v1/models", nil, headersWith("x-goog-api-key", "k"), nil)
	require.Nil(t, err)
	assert.Equal(t, domain.OpGeminiModelsList, asGemini.Kind)

	asClaude, err := Classify(http.MethodGet, "/v1/models", nil, headersWith("anthropic-version", "2023-06-01"), nil)
	require.Nil(t, err)
	assert.Equal(t, domain.OpClaudeModelsList, asClaude.Kind)

	asOpenAI, err := Classify(http.MethodGet, "/v1/models", nil, http.Header{}, nil)
	require.Nil(t, err)
	assert.Equal(t, domain.OpOpenAIModelsList, asOpenAI.Kind)

	byQuery, err := Classify(http.MethodGet, "/v1/models", url.Values{"key": {"k"}}, http.Header{}, nil)
	require.Nil(t, err)
	assert.Equal(t, domain.OpGeminiModelsList, byQuery.Kind)
}

func TestClassifyModelsGetDisambiguation(t *testing.T) {
	claudeGet, err := Classify(http.MethodGet, "/v1/models/claude-3-opus", nil, headersWith("anthropic-version", "2023-06-01"), nil)
	require.Nil(t, err)
	assert.Equal(t, domain.OpClaudeModelsGet, claudeGet.Kind)
	assert.Equal(t, "claude-3-opus", claudeGet.Model)

	openaiGet, err := Classify(http.MethodGet, "/v1/models/gpt-4o", nil, http.Header{}, nil)
	require.Nil(t, err)
	assert.Equal(t, domain.OpOpenAIModelsGet, openaiGet.Kind)
}

// A :action suffix under /v1/models is always Gemini, headers or not.
func TestClassifyModelsActionAlwaysGemini(t *testing.T) {
	body := `{"contents":[]}`
	req, err := Classify(http.MethodPost, "/v1/models/gemini-2.0-flash:generateContent", nil, http.Header{}, []byte(body))
	require.Nil(t, err)
	assert.Equal(t, domain.OpGeminiGenerate, req.Kind)
}

func TestClassifyOAuthAndUsage(t *testing.T) {
	start, err := Classify(http.MethodGet, "/oauth", url.Values{"provider": {"codex"}}, http.Header{}, nil)
	require.Nil(t, err)
	assert.Equal(t, domain.OpOAuthStart, start.Kind)

	callback, err := Classify(http.MethodGet, "/oauth/callback", url.Values{"code": {"c"}}, http.Header{}, nil)
	require.Nil(t, err)
	assert.Equal(t, domain.OpOAuthCallback, callback.Kind)

	usage, err := Classify(http.MethodGet, "/usage", nil, http.Header{}, nil)
	require.Nil(t, err)
	assert.Equal(t, domain.OpUsage, usage.Kind)
}

// Classification is pure: identical inputs give identical outputs.
func TestClassifyIsPure(t *testing.T) {
	headers := headersWith("anthropic-version", "2023-06-01", "anthropic-beta", "a, b,")
	first, err := Classify(http.MethodPost, "/v1/messages", nil, headers, []byte(claudeBody))
	require.Nil(t, err)
	second, err := Classify(http.MethodPost, "/v1/messages", nil, headers, []byte(claudeBody))
	require.Nil(t, err)
	assert.Equal(t, first.Kind, second.Kind)
	assert.Equal(t, first.Model, second.Model)
	assert.Equal(t, first.ClaudeHeaders, second.ClaudeHeaders)
	// Trailing comma yields an empty trailing item, preserved as-is.
	assert.Equal(t, []string{"a", "b", ""}, first.ClaudeHeaders.Beta)
}

func TestClassifyUnknownPath(t *testing.T) {
	_, err := Classify(http.MethodGet, "/v2/unknown", nil, http.Header{}, nil)
	require.NotNil(t, err)
	assert.Equal(t, http.StatusNotFound, err.Status)
}
