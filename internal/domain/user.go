package domain

import "time"

// User owns downstream API keys.
type User struct {
	ID        int64
	CreatedAt time.Time
	UpdatedAt time.Time

	Name    string
	Enabled bool
}

// UserKey is one downstream API key, stored only as a hash.
type UserKey struct {
	ID        int64
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID  int64
	Name    string
	KeyHash string
	Enabled bool
}

// UsageFilter selects rows for token aggregation.
type UsageFilter struct {
	Provider string
	Model    string
	UserID   int64
	Since    time.Time
	Until    time.Time
}

// UsageAggregate is the summed token counters for a filter.
type UsageAggregate struct {
	Requests         int64 `json:"requests"`
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens"`
	CacheWriteTokens int64 `json:"cache_write_tokens"`
}
