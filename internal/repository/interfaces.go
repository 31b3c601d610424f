// Package repository defines the persistence contract the proxy core
// consumes. The core tolerates transient storage errors: event appends
// are logged and retried, everything else surfaces to the admin caller.
package repository

import (
	"time"

	"github.com/awsl-project/gproxy/internal/domain"
)

// CredentialRow is a stored credential with its provider binding.
type CredentialRow struct {
	ID         int64
	ProviderID int64
	Enabled    bool
	Weight     uint32
	Value      domain.Credential
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DisallowRow is a persisted disallow record.
type DisallowRow struct {
	ID           int64
	Provider     string
	CredentialID string
	Model        string
	Level        domain.DisallowLevel
	Until        time.Time
	Reason       string
	UpdatedAt    time.Time
}

// Snapshot is everything the runtime needs to rebuild its state.
type Snapshot struct {
	Providers    []domain.Provider
	Credentials  []CredentialRow
	Disallow     []DisallowRow
	Users        []domain.User
	UserKeys     []domain.UserKey
	GlobalConfig *domain.GlobalConfig
}

// Store is the full persistence surface.
type Store interface {
	Sync() error

	LoadGlobalConfig() (*domain.GlobalConfig, error)
	UpsertGlobalConfig(cfg *domain.GlobalConfig) error

	LoadSnapshot() (*Snapshot, error)

	UpsertProvider(name string, cfg *domain.ProviderConfig, enabled bool) (int64, error)
	DeleteProvider(id int64) error
	ListProviders() ([]domain.Provider, error)

	InsertCredential(providerID int64, weight uint32, value domain.Credential) (int64, error)
	UpdateCredential(id int64, weight uint32, value domain.Credential) error
	DeleteCredential(id int64) error
	SetCredentialEnabled(id int64, enabled bool) error
	ListCredentials(providerID int64) ([]CredentialRow, error)

	CreateUser(user *domain.User) error
	UpdateUser(user *domain.User) error
	DeleteUser(id int64) error
	ListUsers() ([]domain.User, error)

	CreateUserKey(key *domain.UserKey) error
	DeleteUserKey(id int64) error
	ListUserKeys() ([]domain.UserKey, error)
	FindUserKeyByHash(hash string) (*domain.UserKey, error)

	UpsertDisallow(record domain.DisallowRecord) error
	DeleteDisallow(provider, credentialID, model string) error

	AppendEvent(event domain.Event) error
	AggregateUsageTokens(filter domain.UsageFilter) (*domain.UsageAggregate, error)
}
