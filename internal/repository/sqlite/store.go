package sqlite

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/repository"
)

const globalConfigKey = "global_config"

func (s *Store) LoadGlobalConfig() (*domain.GlobalConfig, error) {
	var row settingModel
	err := s.db.First(&row, "key = ?", globalConfigKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.GlobalConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	cfg := &domain.GlobalConfig{}
	if err := json.Unmarshal([]byte(row.Value), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Store) UpsertGlobalConfig(cfg *domain.GlobalConfig) error {
	value, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	row := settingModel{Key: globalConfigKey, Value: string(value), UpdatedAt: time.Now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

func (s *Store) LoadSnapshot() (*repository.Snapshot, error) {
	snapshot := &repository.Snapshot{}

	providers, err := s.ListProviders()
	if err != nil {
		return nil, err
	}
	snapshot.Providers = providers

	credentials, err := s.ListCredentials(0)
	if err != nil {
		return nil, err
	}
	snapshot.Credentials = credentials

	var disallowRows []disallowModel
	if err := s.db.Find(&disallowRows).Error; err != nil {
		return nil, err
	}
	for _, row := range disallowRows {
		out := repository.DisallowRow{
			ID:           row.ID,
			Provider:     row.Provider,
			CredentialID: row.CredentialID,
			Model:        row.Model,
			Level:        domain.DisallowLevel(row.Level),
			Reason:       row.Reason,
			UpdatedAt:    row.UpdatedAt,
		}
		if row.Until != nil {
			out.Until = *row.Until
		}
		snapshot.Disallow = append(snapshot.Disallow, out)
	}

	users, err := s.ListUsers()
	if err != nil {
		return nil, err
	}
	snapshot.Users = users

	keys, err := s.ListUserKeys()
	if err != nil {
		return nil, err
	}
	snapshot.UserKeys = keys

	cfg, err := s.LoadGlobalConfig()
	if err != nil {
		return nil, err
	}
	snapshot.GlobalConfig = cfg
	return snapshot, nil
}

func (s *Store) UpsertProvider(name string, cfg *domain.ProviderConfig, enabled bool) (int64, error) {
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return 0, err
	}
	var existing providerModel
	err = s.db.First(&existing, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row := providerModel{Name: name, Enabled: enabled, Config: string(encoded)}
		if err := s.db.Create(&row).Error; err != nil {
			return 0, err
		}
		return row.ID, nil
	}
	if err != nil {
		return 0, err
	}
	existing.Enabled = enabled
	existing.Config = string(encoded)
	if err := s.db.Save(&existing).Error; err != nil {
		return 0, err
	}
	return existing.ID, nil
}

func (s *Store) DeleteProvider(id int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&credentialModel{}, "provider_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&providerModel{}, id).Error
	})
}

func (s *Store) ListProviders() ([]domain.Provider, error) {
	var rows []providerModel
	if err := s.db.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Provider, 0, len(rows))
	for i := range rows {
		provider, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, provider)
	}
	return out, nil
}

func (s *Store) InsertCredential(providerID int64, weight uint32, value domain.Credential) (int64, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}
	row := credentialModel{ProviderID: providerID, Enabled: true, Weight: weight, Value: string(encoded)}
	if err := s.db.Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *Store) UpdateCredential(id int64, weight uint32, value domain.Credential) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Model(&credentialModel{}).Where("id = ?", id).
		Updates(map[string]any{"weight": weight, "value": string(encoded)}).Error
}

func (s *Store) DeleteCredential(id int64) error {
	return s.db.Delete(&credentialModel{}, id).Error
}

func (s *Store) SetCredentialEnabled(id int64, enabled bool) error {
	return s.db.Model(&credentialModel{}).Where("id = ?", id).Update("enabled", enabled).Error
}

func (s *Store) ListCredentials(providerID int64) ([]repository.CredentialRow, error) {
	query := s.db.Order("id")
	if providerID > 0 {
		query = query.Where("provider_id = ?", providerID)
	}
	var rows []credentialModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]repository.CredentialRow, 0, len(rows))
	for i := range rows {
		row, err := rows[i].toRow()
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Store) CreateUser(user *domain.User) error {
	row := userModel{Name: user.Name, Enabled: user.Enabled}
	if err := s.db.Create(&row).Error; err != nil {
		return err
	}
	user.ID = row.ID
	return nil
}

func (s *Store) UpdateUser(user *domain.User) error {
	return s.db.Model(&userModel{}).Where("id = ?", user.ID).
		Updates(map[string]any{"name": user.Name, "enabled": user.Enabled}).Error
}

func (s *Store) DeleteUser(id int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&userKeyModel{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&userModel{}, id).Error
	})
}

func (s *Store) ListUsers() ([]domain.User, error) {
	var rows []userModel
	if err := s.db.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.User{
			ID:        row.ID,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
			Name:      row.Name,
			Enabled:   row.Enabled,
		})
	}
	return out, nil
}

func (s *Store) CreateUserKey(key *domain.UserKey) error {
	row := userKeyModel{UserID: key.UserID, Name: key.Name, KeyHash: key.KeyHash, Enabled: key.Enabled}
	if err := s.db.Create(&row).Error; err != nil {
		return err
	}
	key.ID = row.ID
	return nil
}

func (s *Store) DeleteUserKey(id int64) error {
	return s.db.Delete(&userKeyModel{}, id).Error
}

func (s *Store) ListUserKeys() ([]domain.UserKey, error) {
	var rows []userKeyModel
	if err := s.db.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.UserKey, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.UserKey{
			ID:        row.ID,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
			UserID:    row.UserID,
			Name:      row.Name,
			KeyHash:   row.KeyHash,
			Enabled:   row.Enabled,
		})
	}
	return out, nil
}

func (s *Store) FindUserKeyByHash(hash string) (*domain.UserKey, error) {
	var row userKeyModel
	err := s.db.First(&row, "key_hash = ? AND enabled = ?", hash, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.UserKey{
		ID:      row.ID,
		UserID:  row.UserID,
		Name:    row.Name,
		KeyHash: row.KeyHash,
		Enabled: row.Enabled,
	}, nil
}

func (s *Store) UpsertDisallow(record domain.DisallowRecord) error {
	row := disallowModel{
		Provider:     record.Provider,
		CredentialID: record.CredentialID,
		Model:        record.Scope.Model,
		Level:        string(record.Level),
		Reason:       record.Reason,
		UpdatedAt:    record.UpdatedAt,
	}
	if !record.Until.IsZero() {
		until := record.Until
		row.Until = &until
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "credential_id"}, {Name: "model"}},
		DoUpdates: clause.AssignmentColumns([]string{"level", "until", "reason", "updated_at"}),
	}).Create(&row).Error
}

func (s *Store) DeleteDisallow(provider, credentialID, model string) error {
	return s.db.Delete(&disallowModel{},
		"provider = ? AND credential_id = ? AND model = ?", provider, credentialID, model).Error
}

func (s *Store) AppendEvent(event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(payload)
	row := eventModel{
		Digest:  hex.EncodeToString(digest[:]),
		Payload: string(payload),
	}
	switch {
	case event.Downstream != nil:
		row.Kind = "downstream"
		row.TraceID = event.Downstream.TraceID
		row.UserID = event.Downstream.UserID
	case event.Upstream != nil:
		row.Kind = "upstream"
		row.TraceID = event.Upstream.TraceID
		row.Provider = event.Upstream.Provider
		row.Model = event.Upstream.Model
		row.UserID = event.Upstream.UserID
		if usage := event.Upstream.Usage; usage != nil {
			row.InputTokens = usage.InputTokens
			row.OutputTokens = usage.OutputTokens
			row.CacheReadTokens = usage.CacheReadTokens
			row.CacheWriteTokens = usage.CacheWriteTokens
		}
	case event.Operational != nil:
		row.Kind = "operational"
	}
	// The digest's unique index makes retried appends idempotent.
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (s *Store) AggregateUsageTokens(filter domain.UsageFilter) (*domain.UsageAggregate, error) {
	query := s.db.Model(&eventModel{}).Where("kind = ?", "upstream")
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Model != "" {
		query = query.Where("model = ?", filter.Model)
	}
	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at < ?", filter.Until)
	}
	var out domain.UsageAggregate
	err := query.Select(
		"COUNT(*) AS requests",
		"COALESCE(SUM(input_tokens),0) AS input_tokens",
		"COALESCE(SUM(output_tokens),0) AS output_tokens",
		"COALESCE(SUM(cache_read_tokens),0) AS cache_read_tokens",
		"COALESCE(SUM(cache_write_tokens),0) AS cache_write_tokens",
	).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}
