// Package classify maps a raw HTTP request onto a typed proxy operation.
// Classification is a pure function of (method, path, query, headers,
// body); repeated calls yield equal results.
package classify

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

// Request is the classified operation. Body keeps the raw bytes; the
// typed payload matching the operation's protocol is decoded alongside.
type Request struct {
	Kind   domain.OperationKind
	Proto  domain.Proto
	Model  string
	Stream bool
	Body   []byte
	Query  url.Values

	ClaudeHeaders claude.Headers

	// Exactly one of these is set for generate-family ops.
	ClaudeGenerate *claude.CreateMessageRequest
	ChatGenerate   *openai.ChatCompletionRequest
	RespGenerate   *openai.CreateResponseRequest
	GeminiGenerate *gemini.GenerateContentRequest

	ClaudeCount *claude.CountTokensRequest
	OpenAICount *openai.InputTokenCountRequest
	GeminiCount *gemini.CountTokensRequest
}

// Classify parses the route into a typed operation. Body decoding is
// strict on shape and lenient on unknown fields; failures surface as 400s
// with the decoder message.
func Classify(method, path string, query url.Values, headers http.Header, body []byte) (*Request, *domain.ProxyError) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, domain.NotFound("missing path")
	}

	switch {
	case equalSegments(segments, "oauth"):
		if err := ensureMethod(method, http.MethodGet, "oauth"); err != nil {
			return nil, err
		}
		return &Request{Kind: domain.OpOAuthStart, Query: query}, nil
	case equalSegments(segments, "oauth", "callback"):
		if err := ensureMethod(method, http.MethodGet, "oauth callback"); err != nil {
			return nil, err
		}
		return &Request{Kind: domain.OpOAuthCallback, Query: query}, nil
	case equalSegments(segments, "usage"):
		if err := ensureMethod(method, http.MethodGet, "usage"); err != nil {
			return nil, err
		}
		return &Request{Kind: domain.OpUsage, Query: query}, nil
	}

	switch segments[0] {
	case "v1":
		switch {
		case len(segments) >= 2 && segments[1] == "messages":
			return classifyClaude(method, segments, query, headers, body)
		case equalSegments(segments, "v1", "chat", "completions"):
			return classifyOpenAI(method, segments, query, body)
		case len(segments) >= 2 && segments[1] == "responses":
			return classifyOpenAI(method, segments, query, body)
		case len(segments) >= 2 && segments[1] == "models":
			return classifyModels(method, segments, query, headers, body)
		default:
			return classifyOpenAI(method, segments, query, body)
		}
	case "v1beta", "v1beta1":
		return classifyGemini(method, segments, query, body)
	}
	return nil, domain.NotFound("unknown path")
}

func classifyClaude(method string, segments []string, query url.Values, headers http.Header, body []byte) (*Request, *domain.ProxyError) {
	parsed := claude.ParseHeaders(headers)
	switch {
	case equalSegments(segments, "v1", "messages"):
		if err := ensureMethod(method, http.MethodPost, "claude messages"); err != nil {
			return nil, err
		}
		var request claude.CreateMessageRequest
		if err := parseJSON(body, &request, "claude messages"); err != nil {
			return nil, err
		}
		stream := request.IsStream()
		kind := domain.OpClaudeGenerate
		if stream {
			kind = domain.OpClaudeGenerateStream
		}
		return &Request{
			Kind:           kind,
			Proto:          domain.ProtoClaude,
			Model:          request.Model,
			Stream:         stream,
			Body:           body,
			Query:          query,
			ClaudeHeaders:  parsed,
			ClaudeGenerate: &request,
		}, nil
	case equalSegments(segments, "v1", "messages", "count_tokens"):
		if err := ensureMethod(method, http.MethodPost, "claude count tokens"); err != nil {
			return nil, err
		}
		var request claude.CountTokensRequest
		if err := parseJSON(body, &request, "claude count tokens"); err != nil {
			return nil, err
		}
		return &Request{
			Kind:          domain.OpClaudeCountTokens,
			Proto:         domain.ProtoClaude,
			Model:         request.Model,
			Body:          body,
			Query:         query,
			ClaudeHeaders: parsed,
			ClaudeCount:   &request,
		}, nil
	case equalSegments(segments, "v1", "models"):
		if err := ensureMethod(method, http.MethodGet, "claude models list"); err != nil {
			return nil, err
		}
		return &Request{
			Kind:          domain.OpClaudeModelsList,
			Proto:         domain.ProtoClaude,
			Query:         query,
			ClaudeHeaders: parsed,
		}, nil
	case len(segments) == 3 && segments[0] == "v1" && segments[1] == "models":
		if err := ensureMethod(method, http.MethodGet, "claude model get"); err != nil {
			return nil, err
		}
		return &Request{
			Kind:          domain.OpClaudeModelsGet,
			Proto:         domain.ProtoClaude,
			Model:         segments[2],
			Query:         query,
			ClaudeHeaders: parsed,
		}, nil
	}
	return nil, domain.NotFound("unknown claude path")
}

func classifyOpenAI(method string, segments []string, query url.Values, body []byte) (*Request, *domain.ProxyError) {
	switch {
	case equalSegments(segments, "v1", "chat", "completions"):
		if err := ensureMethod(method, http.MethodPost, "openai chat completions"); err != nil {
			return nil, err
		}
		var request openai.ChatCompletionRequest
		if err := parseJSON(body, &request, "openai chat"); err != nil {
			return nil, err
		}
		stream := request.IsStream()
		kind := domain.OpOpenAIChatGenerate
		if stream {
			kind = domain.OpOpenAIChatGenerateStream
		}
		return &Request{
			Kind:         kind,
			Proto:        domain.ProtoOpenAIChat,
			Model:        request.Model,
			Stream:       stream,
			Body:         body,
			Query:        query,
			ChatGenerate: &request,
		}, nil
	case equalSegments(segments, "v1", "responses"):
		if err := ensureMethod(method, http.MethodPost, "openai responses"); err != nil {
			return nil, err
		}
		var request openai.CreateResponseRequest
		if err := parseJSON(body, &request, "openai responses"); err != nil {
			return nil, err
		}
		stream := request.IsStream()
		kind := domain.OpOpenAIResponseGenerate
		if stream {
			kind = domain.OpOpenAIResponseGenerateStream
		}
		return &Request{
			Kind:         kind,
			Proto:        domain.ProtoOpenAIResponse,
			Model:        request.Model,
			Stream:       stream,
			Body:         body,
			Query:        query,
			RespGenerate: &request,
		}, nil
	case equalSegments(segments, "v1", "responses", "input_tokens"):
		if err := ensureMethod(method, http.MethodPost, "openai input tokens"); err != nil {
			return nil, err
		}
		var request openai.InputTokenCountRequest
		if err := parseJSON(body, &request, "openai input tokens"); err != nil {
			return nil, err
		}
		return &Request{
			Kind:        domain.OpOpenAIInputTokens,
			Proto:       domain.ProtoOpenAI,
			Model:       request.Model,
			Body:        body,
			Query:       query,
			OpenAICount: &request,
		}, nil
	case equalSegments(segments, "v1", "models"):
		if err := ensureMethod(method, http.MethodGet, "openai models list"); err != nil {
			return nil, err
		}
		return &Request{Kind: domain.OpOpenAIModelsList, Proto: domain.ProtoOpenAI, Query: query}, nil
	case len(segments) == 3 && segments[0] == "v1" && segments[1] == "models":
		if err := ensureMethod(method, http.MethodGet, "openai model get"); err != nil {
			return nil, err
		}
		return &Request{
			Kind:  domain.OpOpenAIModelsGet,
			Proto: domain.ProtoOpenAI,
			Model: segments[2],
			Query: query,
		}, nil
	}
	return nil, domain.NotFound("unknown openai path")
}

func classifyGemini(method string, segments []string, query url.Values, body []byte) (*Request, *domain.ProxyError) {
	if len(segments) < 2 || segments[1] != "models" {
		return nil, domain.NotFound("unknown gemini path")
	}
	if len(segments) == 2 {
		if err := ensureMethod(method, http.MethodGet, "gemini models list"); err != nil {
			return nil, err
		}
		return &Request{Kind: domain.OpGeminiModelsList, Proto: domain.ProtoGemini, Query: query}, nil
	}

	joined := strings.Join(segments[2:], "/")
	model, action := splitModelAction(joined)
	if action == "" {
		if err := ensureMethod(method, http.MethodGet, "gemini model get"); err != nil {
			return nil, err
		}
		return &Request{
			Kind:  domain.OpGeminiModelsGet,
			Proto: domain.ProtoGemini,
			Model: model,
			Query: query,
		}, nil
	}
	return classifyGeminiAction(method, model, action, query, body)
}

func classifyGeminiAction(method, model, action string, query url.Values, body []byte) (*Request, *domain.ProxyError) {
	if err := ensureMethod(method, http.MethodPost, "gemini action"); err != nil {
		return nil, err
	}
	switch action {
	case "generateContent", "streamGenerateContent":
		var request gemini.GenerateContentRequest
		if err := parseJSON(body, &request, "gemini generate"); err != nil {
			return nil, err
		}
		stream := action == "streamGenerateContent"
		kind := domain.OpGeminiGenerate
		if stream {
			kind = domain.OpGeminiGenerateStream
		}
		return &Request{
			Kind:           kind,
			Proto:          domain.ProtoGemini,
			Model:          model,
			Stream:         stream,
			Body:           body,
			Query:          query,
			GeminiGenerate: &request,
		}, nil
	case "countTokens":
		var request gemini.CountTokensRequest
		if err := parseJSON(body, &request, "gemini count tokens"); err != nil {
			return nil, err
		}
		return &Request{
			Kind:        domain.OpGeminiCountTokens,
			Proto:       domain.ProtoGemini,
			Model:       model,
			Body:        body,
			Query:       query,
			GeminiCount: &request,
		}, nil
	}
	return nil, domain.NotFound("unknown gemini action")
}

// classifyModels disambiguates /v1/models* across the three protocols:
// an anthropic-version header selects Claude, x-goog-api-key or a key=
// query selects Gemini, anything else OpenAI. A :action suffix is always
// a Gemini call.
func classifyModels(method string, segments []string, query url.Values, headers http.Header, body []byte) (*Request, *domain.ProxyError) {
	if len(segments) > 2 {
		joined := strings.Join(segments[2:], "/")
		if model, action := splitModelAction(joined); action != "" {
			return classifyGeminiAction(method, model, action, query, body)
		}
	}
	switch detectModelsProtocol(headers, query) {
	case domain.ProtoClaude:
		return classifyClaude(method, segments, query, headers, body)
	case domain.ProtoGemini:
		return classifyGemini(method, append([]string{"v1beta"}, segments[1:]...), query, body)
	default:
		return classifyOpenAI(method, segments, query, body)
	}
}

func detectModelsProtocol(headers http.Header, query url.Values) domain.Proto {
	if headers.Get("anthropic-version") != "" {
		return domain.ProtoClaude
	}
	if headers.Get("x-goog-api-key") != "" || query.Get("key") != "" {
		return domain.ProtoGemini
	}
	return domain.ProtoOpenAI
}

// splitModelAction separates "model:action" on the last colon.
func splitModelAction(joined string) (string, string) {
	if idx := strings.LastIndexByte(joined, ':'); idx >= 0 {
		return joined[:idx], joined[idx+1:]
	}
	return joined, ""
}

func splitPath(path string) []string {
	var segments []string
	for _, segment := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

func equalSegments(segments []string, want ...string) bool {
	if len(segments) != len(want) {
		return false
	}
	for i := range want {
		if segments[i] != want[i] {
			return false
		}
	}
	return true
}

func ensureMethod(method, expected, label string) *domain.ProxyError {
	if method != expected {
		return domain.MethodNotAllowed("invalid method for %s", label)
	}
	return nil
}

func parseJSON(body []byte, into any, label string) *domain.ProxyError {
	if len(body) == 0 {
		return domain.BadRequest("missing body for %s", label)
	}
	if err := json.Unmarshal(body, into); err != nil {
		return domain.BadRequest("invalid json: %v", err)
	}
	return nil
}
