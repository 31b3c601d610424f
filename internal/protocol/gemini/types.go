// Package gemini holds the typed wire records for the Google
// GenerateContent API family (AIStudio and Vertex surfaces).
package gemini

import (
	"encoding/json"
	"strings"

	"github.com/awsl-project/gproxy/internal/protocol/jsonx"
)

// Finish reasons.
const (
	FinishStop              = "STOP"
	FinishMaxTokens         = "MAX_TOKENS"
	FinishSafety            = "SAFETY"
	FinishRecitation        = "RECITATION"
	FinishBlocklist         = "BLOCKLIST"
	FinishProhibitedContent = "PROHIBITED_CONTENT"
	FinishSPII              = "SPII"
	FinishMalformedFuncCall = "MALFORMED_FUNCTION_CALL"
	FinishOther             = "OTHER"
)

// NormalizeModel strips the "models/" prefix a Gemini model name may carry.
func NormalizeModel(name string) string {
	return strings.TrimPrefix(name, "models/")
}

// QualifyModel prepends "models/" when absent.
func QualifyModel(name string) string {
	if strings.HasPrefix(name, "models/") {
		return name
	}
	return "models/" + name
}

// Blob is inline base64 media.
type Blob struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// FileData references media by URI.
type FileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

// FunctionCall is a model-requested tool invocation.
type FunctionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// FunctionResponse is the caller-supplied tool result.
type FunctionResponse struct {
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Part is the content part union; at most one payload field is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	InlineData       *Blob             `json:"inlineData,omitempty"`
	FileData         *FileData         `json:"fileData,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	ThoughtSignature string            `json:"thoughtSignature,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (p *Part) UnmarshalJSON(data []byte) error {
	type plain Part
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Part(v)
	p.Extra = jsonx.ExtraFields(data, v)
	return nil
}

func (p Part) MarshalJSON() ([]byte, error) {
	type plain Part
	return jsonx.MergeExtra(plain(p), p.Extra)
}

// Content is one role-tagged turn.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// FunctionDeclaration describes one callable function.
type FunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
}

// Tool groups function declarations and built-in tool switches.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
	GoogleSearch         json.RawMessage       `json:"googleSearch,omitempty"`
	CodeExecution        json.RawMessage       `json:"codeExecution,omitempty"`
	URLContext           json.RawMessage       `json:"urlContext,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (t *Tool) UnmarshalJSON(data []byte) error {
	type plain Tool
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Tool(p)
	t.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (t Tool) MarshalJSON() ([]byte, error) {
	type plain Tool
	return jsonx.MergeExtra(plain(t), t.Extra)
}

// FunctionCallingConfig controls tool selection: AUTO, ANY, NONE.
type FunctionCallingConfig struct {
	Mode                 string   `json:"mode,omitempty"`
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

// ToolConfig wraps the function calling config.
type ToolConfig struct {
	FunctionCallingConfig *FunctionCallingConfig `json:"functionCallingConfig,omitempty"`
}

// ThinkingConfig controls the thinking channel.
type ThinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts,omitempty"`
	ThinkingBudget  *int `json:"thinkingBudget,omitempty"`
}

// GenerationConfig carries the sampling and output knobs.
type GenerationConfig struct {
	Temperature        *float64        `json:"temperature,omitempty"`
	TopP               *float64        `json:"topP,omitempty"`
	TopK               *int            `json:"topK,omitempty"`
	CandidateCount     *int            `json:"candidateCount,omitempty"`
	MaxOutputTokens    *int            `json:"maxOutputTokens,omitempty"`
	StopSequences      []string        `json:"stopSequences,omitempty"`
	PresencePenalty    *float64        `json:"presencePenalty,omitempty"`
	FrequencyPenalty   *float64        `json:"frequencyPenalty,omitempty"`
	Seed               *int64          `json:"seed,omitempty"`
	ResponseMimeType   string          `json:"responseMimeType,omitempty"`
	ResponseSchema     json.RawMessage `json:"responseSchema,omitempty"`
	ResponseJSONSchema json.RawMessage `json:"responseJsonSchema,omitempty"`
	ResponseModalities []string        `json:"responseModalities,omitempty"`
	ThinkingConfig     *ThinkingConfig `json:"thinkingConfig,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (g *GenerationConfig) UnmarshalJSON(data []byte) error {
	type plain GenerationConfig
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*g = GenerationConfig(p)
	g.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (g GenerationConfig) MarshalJSON() ([]byte, error) {
	type plain GenerationConfig
	return jsonx.MergeExtra(plain(g), g.Extra)
}

// SafetySetting is one category threshold.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// SafetyRating is one category verdict on a candidate.
type SafetyRating struct {
	Category    string  `json:"category"`
	Probability string  `json:"probability,omitempty"`
	Blocked     bool    `json:"blocked,omitempty"`
	Score       float64 `json:"probabilityScore,omitempty"`
}
