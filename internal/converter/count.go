package converter

import (
	"fmt"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

// CountRequest is the protocol-tagged carrier for token-count requests.
type CountRequest struct {
	Proto domain.Proto
	Model string

	Claude *claude.CountTokensRequest
	OpenAI *openai.InputTokenCountRequest
	Gemini *gemini.CountTokensRequest
}

// ConvertCountRequest rewrites a count-tokens request into dst. The
// conversion reuses the generate-request rewrites by lifting the count
// body into a generate carrier and stripping the sampling side afterward.
func ConvertCountRequest(req CountRequest, dst domain.Proto) (CountRequest, error) {
	if req.Proto == dst {
		return req, nil
	}
	carrier, err := req.toGenerate()
	if err != nil {
		return CountRequest{}, err
	}
	generateDst := dst
	if generateDst == domain.ProtoOpenAI {
		generateDst = domain.ProtoOpenAIResponse
	}
	registry := defaultRegistry()
	converted, err := registry.TransformGenerateRequest(carrier, generateDst, false)
	if err != nil {
		return CountRequest{}, err
	}
	return countFromGenerate(converted)
}

func (r CountRequest) toGenerate() (GenerateRequest, error) {
	switch r.Proto {
	case domain.ProtoClaude:
		if r.Claude == nil {
			return GenerateRequest{}, fmt.Errorf("claude count payload missing")
		}
		return GenerateRequest{
			Proto: domain.ProtoClaude,
			Model: r.Model,
			Claude: &claude.CreateMessageRequest{
				Model:      r.Claude.Model,
				Messages:   r.Claude.Messages,
				System:     r.Claude.System,
				Tools:      r.Claude.Tools,
				ToolChoice: r.Claude.ToolChoice,
				Thinking:   r.Claude.Thinking,
				MaxTokens:  1,
			},
		}, nil
	case domain.ProtoOpenAI, domain.ProtoOpenAIResponse:
		if r.OpenAI == nil {
			return GenerateRequest{}, fmt.Errorf("openai count payload missing")
		}
		return GenerateRequest{
			Proto: domain.ProtoOpenAIResponse,
			Model: r.Model,
			Responses: &openai.CreateResponseRequest{
				Model:        r.OpenAI.Model,
				Input:        r.OpenAI.Input,
				Instructions: r.OpenAI.Instructions,
				Tools:        r.OpenAI.Tools,
				ToolChoice:   r.OpenAI.ToolChoice,
				Reasoning:    r.OpenAI.Reasoning,
			},
		}, nil
	case domain.ProtoGemini:
		if r.Gemini == nil {
			return GenerateRequest{}, fmt.Errorf("gemini count payload missing")
		}
		body := &gemini.GenerateContentRequest{Contents: r.Gemini.Contents}
		if r.Gemini.GenerateContentRequest != nil {
			inner := r.Gemini.GenerateContentRequest.GenerateContentRequest
			body = &inner
		}
		return GenerateRequest{Proto: domain.ProtoGemini, Model: r.Model, Gemini: body}, nil
	}
	return GenerateRequest{}, fmt.Errorf("no count conversion from %s", r.Proto)
}

func countFromGenerate(req GenerateRequest) (CountRequest, error) {
	switch req.Proto {
	case domain.ProtoClaude:
		return CountRequest{
			Proto: domain.ProtoClaude,
			Model: req.Model,
			Claude: &claude.CountTokensRequest{
				Model:      req.Claude.Model,
				Messages:   req.Claude.Messages,
				System:     req.Claude.System,
				Tools:      req.Claude.Tools,
				ToolChoice: req.Claude.ToolChoice,
				Thinking:   req.Claude.Thinking,
			},
		}, nil
	case domain.ProtoOpenAIResponse:
		return CountRequest{
			Proto: domain.ProtoOpenAI,
			Model: req.Model,
			OpenAI: &openai.InputTokenCountRequest{
				Model:        req.Responses.Model,
				Input:        req.Responses.Input,
				Instructions: req.Responses.Instructions,
				Tools:        req.Responses.Tools,
				ToolChoice:   req.Responses.ToolChoice,
				Reasoning:    req.Responses.Reasoning,
			},
		}, nil
	case domain.ProtoGemini:
		return CountRequest{
			Proto:  domain.ProtoGemini,
			Model:  req.Model,
			Gemini: &gemini.CountTokensRequest{Contents: req.Gemini.Contents},
		}, nil
	}
	return CountRequest{}, fmt.Errorf("no count conversion to %s", req.Proto)
}

// CountResult is the neutral token count.
type CountResult struct {
	InputTokens int
}

// ConvertCountResponse re-shapes a token count for the destination.
func ConvertCountResponse(result CountResult, dst domain.Proto) any {
	switch dst {
	case domain.ProtoClaude:
		return claude.CountTokensResponse{InputTokens: result.InputTokens}
	case domain.ProtoGemini:
		return gemini.CountTokensResponse{TotalTokens: result.InputTokens}
	default:
		return openai.InputTokenCountResponse{
			Object:      "response.input_tokens",
			InputTokens: result.InputTokens,
		}
	}
}
