package domain

import "time"

// ProviderKind names the built-in adapters plus the user-defined one.
type ProviderKind string

var (
	ProviderOpenAI        ProviderKind = "openai"
	ProviderClaude        ProviderKind = "claude"
	ProviderAIStudio      ProviderKind = "aistudio"
	ProviderVertex        ProviderKind = "vertex"
	ProviderVertexExpress ProviderKind = "vertex_express"
	ProviderGeminiCLI     ProviderKind = "gemini_cli"
	ProviderClaudeCode    ProviderKind = "claude_code"
	ProviderCodex         ProviderKind = "codex"
	ProviderAntigravity   ProviderKind = "antigravity"
	ProviderNvidia        ProviderKind = "nvidia"
	ProviderDeepSeek      ProviderKind = "deepseek"
	ProviderCustom        ProviderKind = "custom"
)

// CountTokensMode says how a custom provider counts input tokens.
type CountTokensMode string

var (
	CountTokensUpstream   CountTokensMode = "upstream"
	CountTokensTokenizers CountTokensMode = "tokenizers"
	CountTokensTiktoken   CountTokensMode = "tiktoken"
)

// BaseURLConfig is the shared shape of the simple provider configs.
type BaseURLConfig struct {
	BaseURL string `json:"base_url,omitempty"`
}

// VertexConfig adds the location and token endpoints on top of the base URL.
type VertexConfig struct {
	BaseURL       string `json:"base_url,omitempty"`
	Location      string `json:"location,omitempty"`
	TokenURI      string `json:"token_uri,omitempty"`
	OAuthTokenURL string `json:"oauth_token_url,omitempty"`
}

// ClaudeCodeConfig carries the three Anthropic surfaces Claude Code talks to.
type ClaudeCodeConfig struct {
	BaseURL         string `json:"base_url,omitempty"`
	ClaudeAIBaseURL string `json:"claude_ai_base_url,omitempty"`
	PlatformBaseURL string `json:"platform_base_url,omitempty"`
}

// NvidiaConfig adds the HuggingFace tokenizer fetch knobs.
type NvidiaConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	HFToken string `json:"hf_token,omitempty"`
	HFURL   string `json:"hf_url,omitempty"`
	DataDir string `json:"data_dir,omitempty"`
}

// ModelEntry is one row of a static model table.
type ModelEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// CustomProviderConfig describes a user-defined upstream.
type CustomProviderConfig struct {
	Proto         Proto           `json:"proto"`
	BaseURL       string          `json:"base_url"`
	Dispatch      DispatchTable   `json:"dispatch"`
	ModelTable    []ModelEntry    `json:"model_table,omitempty"`
	CountTokens   CountTokensMode `json:"count_tokens,omitempty"`
	JSONParamMask []string        `json:"json_param_mask,omitempty"`
}

// ProviderConfig is the tagged union of per-provider settings. The Kind
// selects the adapter; exactly the matching variant field is consulted.
type ProviderConfig struct {
	Kind ProviderKind `json:"kind"`

	OpenAI        *BaseURLConfig        `json:"openai,omitempty"`
	Claude        *BaseURLConfig        `json:"claude,omitempty"`
	AIStudio      *BaseURLConfig        `json:"aistudio,omitempty"`
	Vertex        *VertexConfig         `json:"vertex,omitempty"`
	VertexExpress *BaseURLConfig        `json:"vertex_express,omitempty"`
	GeminiCLI     *BaseURLConfig        `json:"gemini_cli,omitempty"`
	ClaudeCode    *ClaudeCodeConfig     `json:"claude_code,omitempty"`
	Codex         *BaseURLConfig        `json:"codex,omitempty"`
	Antigravity   *BaseURLConfig        `json:"antigravity,omitempty"`
	Nvidia        *NvidiaConfig         `json:"nvidia,omitempty"`
	DeepSeek      *BaseURLConfig        `json:"deepseek,omitempty"`
	Custom        *CustomProviderConfig `json:"custom,omitempty"`
}

// Provider is one configured upstream with its credential group name.
type Provider struct {
	ID        int64
	CreatedAt time.Time
	UpdatedAt time.Time

	// Name is the downstream path segment selecting this provider.
	Name    string
	Enabled bool
	Config  *ProviderConfig
}

// GlobalConfig is the admin-mutable process configuration.
type GlobalConfig struct {
	BindHost             string `json:"bind_host,omitempty"`
	BindPort             int    `json:"bind_port,omitempty"`
	OutboundProxy        string `json:"outbound_proxy,omitempty"`
	EventRedactSensitive bool   `json:"event_redact_sensitive,omitempty"`
}
