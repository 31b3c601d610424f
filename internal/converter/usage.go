package converter

import (
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

// Usage is the neutral token-counter record the transforms move between
// protocols. The field correspondence is fixed:
//
//	claude input_tokens            <-> openai prompt_tokens     <-> gemini promptTokenCount
//	claude output_tokens           <-> openai completion_tokens <-> gemini candidatesTokenCount
//	claude cache_read_input_tokens <-> openai cached_tokens     <-> gemini cachedContentTokenCount
//	gemini thoughtsTokenCount       -> openai reasoning_tokens
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
	ThoughtsTokens   int
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

func UsageFromClaude(in *claude.Usage) Usage {
	if in == nil {
		return Usage{}
	}
	out := Usage{InputTokens: in.InputTokens, OutputTokens: in.OutputTokens}
	if in.CacheReadInputTokens != nil {
		out.CacheReadTokens = *in.CacheReadInputTokens
	}
	if in.CacheCreationInputTokens != nil {
		out.CacheWriteTokens = *in.CacheCreationInputTokens
	}
	return out
}

func (u Usage) ToClaude() claude.Usage {
	out := claude.Usage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
	cacheRead := u.CacheReadTokens
	cacheWrite := u.CacheWriteTokens
	out.CacheReadInputTokens = &cacheRead
	out.CacheCreationInputTokens = &cacheWrite
	return out
}

func UsageFromChat(in *openai.ChatUsage) Usage {
	if in == nil {
		return Usage{}
	}
	out := Usage{InputTokens: in.PromptTokens, OutputTokens: in.CompletionTokens}
	if in.PromptTokensDetails != nil {
		out.CacheReadTokens = in.PromptTokensDetails.CachedTokens
	}
	if in.CompletionTokensDetails != nil {
		out.ThoughtsTokens = in.CompletionTokensDetails.ReasoningTokens
	}
	return out
}

func (u Usage) ToChat() *openai.ChatUsage {
	out := &openai.ChatUsage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.InputTokens + u.OutputTokens,
	}
	if u.CacheReadTokens > 0 {
		out.PromptTokensDetails = &openai.PromptTokensDetails{CachedTokens: u.CacheReadTokens}
	}
	if u.ThoughtsTokens > 0 {
		out.CompletionTokensDetails = &openai.CompletionTokensDetails{ReasoningTokens: u.ThoughtsTokens}
	}
	return out
}

func UsageFromResponse(in *openai.ResponseUsage) Usage {
	if in == nil {
		return Usage{}
	}
	out := Usage{InputTokens: in.InputTokens, OutputTokens: in.OutputTokens}
	if in.InputTokensDetails != nil {
		out.CacheReadTokens = in.InputTokensDetails.CachedTokens
	}
	if in.OutputTokensDetails != nil {
		out.ThoughtsTokens = in.OutputTokensDetails.ReasoningTokens
	}
	return out
}

func (u Usage) ToResponse() *openai.ResponseUsage {
	out := &openai.ResponseUsage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.InputTokens + u.OutputTokens,
	}
	if u.CacheReadTokens > 0 {
		out.InputTokensDetails = &struct {
			CachedTokens int `json:"cached_tokens,omitempty"`
		}{CachedTokens: u.CacheReadTokens}
	}
	if u.ThoughtsTokens > 0 {
		out.OutputTokensDetails = &struct {
			ReasoningTokens int `json:"reasoning_tokens,omitempty"`
		}{ReasoningTokens: u.ThoughtsTokens}
	}
	return out
}

func UsageFromGemini(in *gemini.UsageMetadata) Usage {
	if in == nil {
		return Usage{}
	}
	return Usage{
		InputTokens:     in.PromptTokenCount,
		OutputTokens:    in.CandidatesTokenCount,
		CacheReadTokens: in.CachedContentTokenCount,
		ThoughtsTokens:  in.ThoughtsTokenCount,
	}
}

func (u Usage) ToGemini() *gemini.UsageMetadata {
	return &gemini.UsageMetadata{
		PromptTokenCount:        u.InputTokens,
		CandidatesTokenCount:    u.OutputTokens,
		TotalTokenCount:         u.InputTokens + u.OutputTokens,
		CachedContentTokenCount: u.CacheReadTokens,
		ThoughtsTokenCount:      u.ThoughtsTokens,
	}
}

// IsZero reports whether no counter is set.
func (u Usage) IsZero() bool {
	return u == Usage{}
}
