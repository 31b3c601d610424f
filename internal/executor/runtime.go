package executor

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/pool"
	"github.com/awsl-project/gproxy/internal/provider"
	"github.com/awsl-project/gproxy/internal/repository"
)

// Runtime is one provider's live state: its config, adapter and pool.
type Runtime struct {
	Provider domain.Provider
	Adapter  provider.Adapter
	Pool     *pool.Pool
}

// Runtimes is the name-keyed runtime map behind an atomic pointer,
// rebuilt wholesale on admin mutations.
type Runtimes struct {
	byName atomic.Pointer[map[string]*Runtime]
	sink   pool.StateSink
}

func NewRuntimes(sink pool.StateSink) *Runtimes {
	r := &Runtimes{sink: sink}
	empty := map[string]*Runtime{}
	r.byName.Store(&empty)
	return r
}

// Get resolves a provider runtime by its downstream name.
func (r *Runtimes) Get(name string) (*Runtime, bool) {
	m := *r.byName.Load()
	runtime, ok := m[name]
	return runtime, ok
}

// Names lists the configured provider names.
func (r *Runtimes) Names() []string {
	m := *r.byName.Load()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return names
}

// Rebuild replaces the whole map from a storage snapshot. Cross references
// are by numeric id; a temporary id->name map rehydrates the grouping so
// no object graph contains cycles. Pools for surviving providers keep
// their identity so in-flight selections stay consistent.
func (r *Runtimes) Rebuild(snapshot *repository.Snapshot) error {
	old := *r.byName.Load()
	next := make(map[string]*Runtime, len(snapshot.Providers))

	idToName := make(map[int64]string, len(snapshot.Providers))
	for _, p := range snapshot.Providers {
		idToName[p.ID] = p.Name
	}

	credentialsByProvider := map[string][]domain.CredentialEntry{}
	for _, row := range snapshot.Credentials {
		name, ok := idToName[row.ProviderID]
		if !ok {
			continue
		}
		credentialsByProvider[name] = append(credentialsByProvider[name], domain.CredentialEntry{
			ID:      strconv.FormatInt(row.ID, 10),
			Enabled: row.Enabled,
			Weight:  row.Weight,
			Value:   row.Value,
		})
	}

	disallowByProvider := map[string]map[domain.DisallowKey]domain.DisallowEntry{}
	now := time.Now()
	for _, row := range snapshot.Disallow {
		entry := domain.DisallowEntry{
			Level:     row.Level,
			Until:     row.Until,
			Reason:    row.Reason,
			UpdatedAt: row.UpdatedAt,
		}
		if !entry.Active(now) {
			continue
		}
		if disallowByProvider[row.Provider] == nil {
			disallowByProvider[row.Provider] = map[domain.DisallowKey]domain.DisallowEntry{}
		}
		key := domain.DisallowKey{
			CredentialID: row.CredentialID,
			Scope:        domain.DisallowScope{Model: row.Model},
		}
		disallowByProvider[row.Provider][key] = entry
	}

	for _, p := range snapshot.Providers {
		if !p.Enabled {
			continue
		}
		if p.Config == nil {
			log.WithField("provider", p.Name).Warn("provider without config skipped")
			continue
		}
		adapter, ok := provider.Get(p.Config.Kind)
		if !ok {
			return fmt.Errorf("unknown provider kind %q", p.Config.Kind)
		}
		poolSnapshot := &pool.Snapshot{
			Credentials: credentialsByProvider[p.Name],
			Disallow:    disallowByProvider[p.Name],
		}
		if poolSnapshot.Disallow == nil {
			poolSnapshot.Disallow = map[domain.DisallowKey]domain.DisallowEntry{}
		}
		if existing, ok := old[p.Name]; ok {
			existing.Pool.ReplaceSnapshot(poolSnapshot)
			next[p.Name] = &Runtime{Provider: p, Adapter: adapter, Pool: existing.Pool}
			continue
		}
		next[p.Name] = &Runtime{
			Provider: p,
			Adapter:  adapter,
			Pool:     pool.New(p.Name, poolSnapshot, r.sink),
		}
	}

	for name, runtime := range old {
		if _, kept := next[name]; !kept {
			runtime.Pool.Close()
		}
	}
	r.byName.Store(&next)
	log.WithField("providers", len(next)).Info("provider runtimes rebuilt")
	return nil
}

// ReplaceCredential swaps one entry's value in a provider's pool (OAuth
// refresh results) without touching the disallow map.
func (r *Runtimes) ReplaceCredential(providerName, credentialID string, value domain.Credential) {
	runtime, ok := r.Get(providerName)
	if !ok {
		return
	}
	current := runtime.Pool.Snapshot()
	next := &pool.Snapshot{
		Credentials: make([]domain.CredentialEntry, len(current.Credentials)),
		Disallow:    current.Disallow,
	}
	copy(next.Credentials, current.Credentials)
	for i := range next.Credentials {
		if next.Credentials[i].ID == credentialID {
			next.Credentials[i].Value = value
		}
	}
	runtime.Pool.ReplaceSnapshot(next)
}
