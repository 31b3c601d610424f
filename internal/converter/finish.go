// Package converter implements the N×N protocol transform matrix: request
// rewrites, non-stream response conversions, incremental stream
// transformers and stream-to-response folders across Claude, OpenAI Chat,
// OpenAI Responses and Gemini.
package converter

import (
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

// FinishReason is the neutral terminal reason shared by all protocols.
type FinishReason string

const (
	FinishEndTurn       FinishReason = "end_turn"
	FinishMaxTokens     FinishReason = "max_tokens"
	FinishToolUse       FinishReason = "tool_use"
	FinishStopSequence  FinishReason = "stop_sequence"
	FinishContentFilter FinishReason = "content_filter"
	FinishPauseTurn     FinishReason = "pause_turn"
	FinishOther         FinishReason = "other"
)

// FinishFromClaude maps a Claude stop_reason to the neutral reason.
func FinishFromClaude(reason string) FinishReason {
	switch reason {
	case claude.StopEndTurn:
		return FinishEndTurn
	case claude.StopMaxTokens:
		return FinishMaxTokens
	case claude.StopToolUse:
		return FinishToolUse
	case claude.StopStopSequence:
		return FinishStopSequence
	case claude.StopRefusal:
		return FinishContentFilter
	case claude.StopPauseTurn:
		return FinishPauseTurn
	case "":
		return ""
	default:
		return FinishOther
	}
}

// FinishToClaude maps the neutral reason to a Claude stop_reason.
func FinishToClaude(reason FinishReason) string {
	switch reason {
	case FinishEndTurn:
		return claude.StopEndTurn
	case FinishMaxTokens:
		return claude.StopMaxTokens
	case FinishToolUse:
		return claude.StopToolUse
	case FinishStopSequence:
		return claude.StopStopSequence
	case FinishContentFilter:
		return claude.StopRefusal
	case FinishPauseTurn:
		return claude.StopPauseTurn
	case "":
		return ""
	default:
		return claude.StopEndTurn
	}
}

// FinishFromOpenAI maps a chat finish_reason to the neutral reason.
func FinishFromOpenAI(reason string) FinishReason {
	switch reason {
	case openai.FinishStop:
		return FinishEndTurn
	case openai.FinishLength:
		return FinishMaxTokens
	case openai.FinishToolCalls, openai.FinishFunctionCall:
		return FinishToolUse
	case openai.FinishContentFilter:
		return FinishContentFilter
	case "":
		return ""
	default:
		return FinishOther
	}
}

// FinishToOpenAI maps the neutral reason to a chat finish_reason.
func FinishToOpenAI(reason FinishReason) string {
	switch reason {
	case FinishEndTurn, FinishPauseTurn, FinishOther:
		return openai.FinishStop
	case FinishMaxTokens:
		return openai.FinishLength
	case FinishToolUse:
		return openai.FinishToolCalls
	case FinishStopSequence:
		return openai.FinishStop
	case FinishContentFilter:
		return openai.FinishContentFilter
	default:
		return openai.FinishStop
	}
}

// FinishFromGemini maps a Gemini finishReason to the neutral reason. Every
// safety-class reason folds into content_filter.
func FinishFromGemini(reason string) FinishReason {
	switch reason {
	case gemini.FinishStop:
		return FinishEndTurn
	case gemini.FinishMaxTokens:
		return FinishMaxTokens
	case gemini.FinishSafety, gemini.FinishRecitation, gemini.FinishBlocklist,
		gemini.FinishProhibitedContent, gemini.FinishSPII:
		return FinishContentFilter
	case "":
		return ""
	default:
		return FinishOther
	}
}

// FinishToGemini maps the neutral reason to a Gemini finishReason.
func FinishToGemini(reason FinishReason) string {
	switch reason {
	case FinishEndTurn, FinishToolUse, FinishStopSequence:
		return gemini.FinishStop
	case FinishMaxTokens:
		return gemini.FinishMaxTokens
	case FinishContentFilter:
		return gemini.FinishSafety
	case FinishPauseTurn, FinishOther:
		return gemini.FinishOther
	default:
		return gemini.FinishStop
	}
}
