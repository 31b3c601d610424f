package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
)

// The documented usage field correspondence holds across all three
// dialects.
func TestUsageCorrespondence(t *testing.T) {
	cacheRead := 7
	cacheWrite := 2
	claudeUsage := claude.Usage{
		InputTokens:              100,
		OutputTokens:             40,
		CacheReadInputTokens:     &cacheRead,
		CacheCreationInputTokens: &cacheWrite,
	}

	neutral := UsageFromClaude(&claudeUsage)
	assert.Equal(t, 100, neutral.InputTokens)
	assert.Equal(t, 40, neutral.OutputTokens)
	assert.Equal(t, 7, neutral.CacheReadTokens)
	assert.Equal(t, 2, neutral.CacheWriteTokens)

	chat := neutral.ToChat()
	assert.Equal(t, 100, chat.PromptTokens)
	assert.Equal(t, 40, chat.CompletionTokens)
	assert.Equal(t, 140, chat.TotalTokens)
	require.NotNil(t, chat.PromptTokensDetails)
	assert.Equal(t, 7, chat.PromptTokensDetails.CachedTokens)

	geminiUsage := neutral.ToGemini()
	assert.Equal(t, 100, geminiUsage.PromptTokenCount)
	assert.Equal(t, 40, geminiUsage.CandidatesTokenCount)
	assert.Equal(t, 7, geminiUsage.CachedContentTokenCount)
}

// Gemini thoughts tokens surface as OpenAI reasoning tokens.
func TestThoughtsTokensMapToReasoning(t *testing.T) {
	neutral := UsageFromGemini(&gemini.UsageMetadata{
		PromptTokenCount:     10,
		CandidatesTokenCount: 5,
		ThoughtsTokenCount:   3,
	})
	chat := neutral.ToChat()
	require.NotNil(t, chat.CompletionTokensDetails)
	assert.Equal(t, 3, chat.CompletionTokensDetails.ReasoningTokens)

	resp := neutral.ToResponse()
	require.NotNil(t, resp.OutputTokensDetails)
	assert.Equal(t, 3, resp.OutputTokensDetails.ReasoningTokens)
}

// Finish-reason mapping is total and many-to-one as documented.
func TestFinishReasonMapping(t *testing.T) {
	for _, reason := range []string{
		gemini.FinishSafety, gemini.FinishRecitation, gemini.FinishBlocklist,
		gemini.FinishProhibitedContent, gemini.FinishSPII,
	} {
		neutral := FinishFromGemini(reason)
		assert.Equal(t, FinishContentFilter, neutral, reason)
		assert.Equal(t, claude.StopRefusal, FinishToClaude(neutral))
		assert.Equal(t, "content_filter", FinishToOpenAI(neutral))
	}

	assert.Equal(t, claude.StopMaxTokens, FinishToClaude(FinishFromGemini(gemini.FinishMaxTokens)))
	assert.Equal(t, "length", FinishToOpenAI(FinishFromGemini(gemini.FinishMaxTokens)))
	assert.Equal(t, gemini.FinishMaxTokens, FinishToGemini(FinishFromClaude(claude.StopMaxTokens)))

	// Unknown tokens fold to a defined value rather than failing.
	assert.Equal(t, FinishOther, FinishFromGemini("SOMETHING_NEW"))
	assert.Equal(t, FinishOther, FinishFromClaude("mystery"))
	assert.Equal(t, FinishOther, FinishFromOpenAI("mystery"))
}
