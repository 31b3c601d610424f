package sqlite

import (
	"encoding/json"
	"time"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/repository"
)

// providerModel is the gorm row for a provider.
type providerModel struct {
	ID        int64 `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name    string `gorm:"uniqueIndex;size:128"`
	Enabled bool
	Config  string `gorm:"type:text"` // ProviderConfig JSON
}

func (providerModel) TableName() string { return "providers" }

func (m *providerModel) toDomain() (domain.Provider, error) {
	out := domain.Provider{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Name:      m.Name,
		Enabled:   m.Enabled,
	}
	if m.Config != "" {
		cfg := &domain.ProviderConfig{}
		if err := json.Unmarshal([]byte(m.Config), cfg); err != nil {
			return out, err
		}
		out.Config = cfg
	}
	return out, nil
}

// credentialModel is the gorm row for a credential.
type credentialModel struct {
	ID        int64 `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ProviderID int64 `gorm:"index"`
	Enabled    bool
	Weight     uint32
	Value      string `gorm:"type:text"` // Credential JSON
}

func (credentialModel) TableName() string { return "credentials" }

func (m *credentialModel) toRow() (repository.CredentialRow, error) {
	row := repository.CredentialRow{
		ID:         m.ID,
		ProviderID: m.ProviderID,
		Enabled:    m.Enabled,
		Weight:     m.Weight,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(m.Value), &row.Value); err != nil {
		return row, err
	}
	return row, nil
}

// disallowModel is the gorm row for a disallow record.
type disallowModel struct {
	ID        int64 `gorm:"primaryKey"`
	UpdatedAt time.Time

	Provider     string `gorm:"index:idx_disallow_key,unique;size:128"`
	CredentialID string `gorm:"index:idx_disallow_key,unique;size:64"`
	Model        string `gorm:"index:idx_disallow_key,unique;size:256"`
	Level        string `gorm:"size:16"`
	Until        *time.Time
	Reason       string `gorm:"size:256"`
}

func (disallowModel) TableName() string { return "disallow" }

// userModel is the gorm row for a user.
type userModel struct {
	ID        int64 `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name    string `gorm:"size:128"`
	Enabled bool
}

func (userModel) TableName() string { return "users" }

// userKeyModel is the gorm row for a downstream API key (hash only).
type userKeyModel struct {
	ID        int64 `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID  int64  `gorm:"index"`
	Name    string `gorm:"size:128"`
	KeyHash string `gorm:"uniqueIndex;size:64"`
	Enabled bool
}

func (userKeyModel) TableName() string { return "user_keys" }

// settingModel holds the global config as one keyed JSON blob.
type settingModel struct {
	Key       string `gorm:"primaryKey;size:64"`
	UpdatedAt time.Time
	Value     string `gorm:"type:text"`
}

func (settingModel) TableName() string { return "settings" }

// eventModel is the append-only event log. The digest makes appends
// idempotent on retry.
type eventModel struct {
	ID        int64 `gorm:"primaryKey"`
	CreatedAt time.Time

	Kind    string `gorm:"size:16;index"`
	Digest  string `gorm:"uniqueIndex;size:64"`
	TraceID string `gorm:"size:64;index"`
	Payload string `gorm:"type:text"`

	// Denormalized columns for usage aggregation.
	Provider         string `gorm:"size:128;index"`
	Model            string `gorm:"size:256;index"`
	UserID           int64  `gorm:"index"`
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
}

func (eventModel) TableName() string { return "events" }
