package gemini

import (
	"encoding/json"

	"github.com/awsl-project/gproxy/internal/protocol/jsonx"
)

// GenerateContentRequest is the :generateContent / :streamGenerateContent
// body. The model rides in the path, not the body.
type GenerateContentRequest struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	Tools             []Tool            `json:"tools,omitempty"`
	ToolConfig        *ToolConfig       `json:"toolConfig,omitempty"`
	SafetySettings    []SafetySetting   `json:"safetySettings,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	CachedContent     string            `json:"cachedContent,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (r *GenerateContentRequest) UnmarshalJSON(data []byte) error {
	type plain GenerateContentRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = GenerateContentRequest(p)
	r.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (r GenerateContentRequest) MarshalJSON() ([]byte, error) {
	type plain GenerateContentRequest
	return jsonx.MergeExtra(plain(r), r.Extra)
}

// Candidate is one generated alternative.
type Candidate struct {
	Content       *Content       `json:"content,omitempty"`
	FinishReason  string         `json:"finishReason,omitempty"`
	FinishMessage string         `json:"finishMessage,omitempty"`
	Index         *int           `json:"index,omitempty"`
	SafetyRatings []SafetyRating `json:"safetyRatings,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (c *Candidate) UnmarshalJSON(data []byte) error {
	type plain Candidate
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Candidate(p)
	c.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (c Candidate) MarshalJSON() ([]byte, error) {
	type plain Candidate
	return jsonx.MergeExtra(plain(c), c.Extra)
}

// UsageMetadata is the Gemini usage record.
type UsageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount,omitempty"`
	CandidatesTokenCount    int `json:"candidatesTokenCount,omitempty"`
	TotalTokenCount         int `json:"totalTokenCount,omitempty"`
	CachedContentTokenCount int `json:"cachedContentTokenCount,omitempty"`
	ThoughtsTokenCount      int `json:"thoughtsTokenCount,omitempty"`
	ToolUsePromptTokenCount int `json:"toolUsePromptTokenCount,omitempty"`
}

// PromptFeedback reports prompt-level blocking.
type PromptFeedback struct {
	BlockReason   string         `json:"blockReason,omitempty"`
	SafetyRatings []SafetyRating `json:"safetyRatings,omitempty"`
}

// GenerateContentResponse is both the non-stream answer and the shape of
// each streamed chunk.
type GenerateContentResponse struct {
	Candidates     []Candidate     `json:"candidates,omitempty"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *UsageMetadata  `json:"usageMetadata,omitempty"`
	ModelVersion   string          `json:"modelVersion,omitempty"`
	ResponseID     string          `json:"responseId,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (r *GenerateContentResponse) UnmarshalJSON(data []byte) error {
	type plain GenerateContentResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = GenerateContentResponse(p)
	r.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (r GenerateContentResponse) MarshalJSON() ([]byte, error) {
	type plain GenerateContentResponse
	return jsonx.MergeExtra(plain(r), r.Extra)
}

// ErrorResponse is the Google error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    int             `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Status  string          `json:"status,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}
