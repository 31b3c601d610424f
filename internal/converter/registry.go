package converter

import (
	"fmt"
	"sync"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

// GenerateRequest is the protocol-tagged carrier for generate-family
// request bodies. Exactly the payload matching Proto is non-nil. Model is
// carried out of band because Gemini keeps it in the path.
type GenerateRequest struct {
	Proto  domain.Proto
	Model  string
	Stream bool

	Claude    *claude.CreateMessageRequest
	Chat      *openai.ChatCompletionRequest
	Responses *openai.CreateResponseRequest
	Gemini    *gemini.GenerateContentRequest
}

// GenerateResponse is the protocol-tagged carrier for non-stream answers.
type GenerateResponse struct {
	Proto domain.Proto

	Claude    *claude.MessageResponse
	Chat      *openai.ChatCompletionResponse
	Responses *openai.Response
	Gemini    *gemini.GenerateContentResponse
}

type requestTransform func(GenerateRequest) (GenerateRequest, error)
type responseTransform func(GenerateResponse) (GenerateResponse, error)
type streamFactory func() StreamTransformer

type pair struct {
	from, to domain.Proto
}

// Registry holds the conversion functions per ordered protocol pair.
type Registry struct {
	requests  map[pair]requestTransform
	responses map[pair]responseTransform
	streams   map[pair]streamFactory
}

var defaultRegistryOnce = sync.OnceValue(NewRegistry)

// defaultRegistry returns the shared built-in registry.
func defaultRegistry() *Registry { return defaultRegistryOnce() }

// NewRegistry builds a registry with all built-in conversions registered.
func NewRegistry() *Registry {
	r := &Registry{
		requests:  make(map[pair]requestTransform),
		responses: make(map[pair]responseTransform),
		streams:   make(map[pair]streamFactory),
	}
	r.registerBuiltins()
	return r
}

// Register wires one ordered pair. Nil entries leave the slot unchanged.
func (r *Registry) Register(from, to domain.Proto, req requestTransform, resp responseTransform, stream streamFactory) {
	key := pair{from, to}
	if req != nil {
		r.requests[key] = req
	}
	if resp != nil {
		r.responses[key] = resp
	}
	if stream != nil {
		r.streams[key] = stream
	}
}

// TransformGenerateRequest rewrites a generate request into the dst
// protocol and applies the destination's streaming-flag discipline.
// Identity pairs are no-ops apart from the flag adjustment.
func (r *Registry) TransformGenerateRequest(req GenerateRequest, dst domain.Proto, stream bool) (GenerateRequest, error) {
	req.Stream = stream
	if req.Proto != dst {
		transform, ok := r.requests[pair{req.Proto, dst}]
		if !ok {
			return GenerateRequest{}, fmt.Errorf("no request transform %s -> %s", req.Proto, dst)
		}
		converted, err := transform(req)
		if err != nil {
			return GenerateRequest{}, err
		}
		req = converted
		req.Stream = stream
	}
	normalizeStreamFlags(&req)
	return req, nil
}

// TransformGenerateResponse converts a non-stream response into dst.
func (r *Registry) TransformGenerateResponse(resp GenerateResponse, dst domain.Proto) (GenerateResponse, error) {
	if resp.Proto == dst {
		return resp, nil
	}
	transform, ok := r.responses[pair{resp.Proto, dst}]
	if !ok {
		return GenerateResponse{}, fmt.Errorf("no response transform %s -> %s", resp.Proto, dst)
	}
	return transform(resp)
}

// NewStreamTransformer builds the incremental translator for an ordered
// pair. Identity pairs get a passthrough.
func (r *Registry) NewStreamTransformer(from, to domain.Proto, model string) (StreamTransformer, error) {
	if from == to {
		return passthroughStream{}, nil
	}
	factory, ok := r.streams[pair{from, to}]
	if !ok {
		return nil, fmt.Errorf("no stream transform %s -> %s", from, to)
	}
	st := factory()
	if seeded, ok := st.(modelSeeded); ok {
		seeded.SetModel(model)
	}
	return st, nil
}

// normalizeStreamFlags applies the destination protocol's streaming
// conventions to the converted request.
func normalizeStreamFlags(req *GenerateRequest) {
	stream := req.Stream
	switch req.Proto {
	case domain.ProtoClaude:
		if req.Claude != nil {
			req.Claude.Stream = boolPtrOrNil(stream)
		}
	case domain.ProtoOpenAIChat:
		if req.Chat != nil {
			if stream {
				req.Chat.Stream = boolPtr(true)
				// Usage arrives in the final chunk only when asked for.
				if req.Chat.StreamOptions == nil {
					req.Chat.StreamOptions = &openai.StreamOptions{}
				}
				if req.Chat.StreamOptions.IncludeUsage == nil {
					req.Chat.StreamOptions.IncludeUsage = boolPtr(true)
				}
			} else {
				req.Chat.Stream = nil
				req.Chat.StreamOptions = nil
			}
		}
	case domain.ProtoOpenAIResponse:
		if req.Responses != nil {
			req.Responses.Stream = boolPtrOrNil(stream)
		}
	case domain.ProtoGemini:
		// Stream rides in the path (:generateContent vs
		// :streamGenerateContent); path and body are preserved and the
		// adapter attaches alt=sse on the stream op.
	}
}

func boolPtr(v bool) *bool { return &v }

func boolPtrOrNil(v bool) *bool {
	if !v {
		return nil
	}
	return &v
}
