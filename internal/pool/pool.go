// Package pool implements per-provider credential selection: weighted
// random pick over an immutable snapshot, disallow marks with cooldown /
// transient / dead levels, and timed recovery.
package pool

import (
	"context"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/gproxy/internal/domain"
)

// Snapshot is the immutable (credentials, disallow) pair readers see.
// Writers never mutate a published snapshot; they build a new one and swap
// the pointer.
type Snapshot struct {
	Credentials []domain.CredentialEntry
	Disallow    map[domain.DisallowKey]domain.DisallowEntry
}

// EmptySnapshot is the zero pool state.
func EmptySnapshot() *Snapshot {
	return &Snapshot{Disallow: map[domain.DisallowKey]domain.DisallowEntry{}}
}

// StateSink receives durable pool-state mutations and operational events.
type StateSink interface {
	UpsertDisallow(record domain.DisallowRecord)
	Operational(event domain.OperationalEvent)
}

// Attempt runs one upstream try against a credential. A nil
// AttemptFailure.Mark stops the selection loop; a non-nil mark records the
// disallow and moves on to the next candidate.
type Attempt func(ctx context.Context, entry domain.CredentialEntry) (*domain.UpstreamHTTPResponse, *domain.AttemptFailure)

// Pool is the per-provider credential pool.
type Pool struct {
	provider string
	snapshot atomic.Pointer[Snapshot]
	sink     StateSink
	recovery *recoveryQueue

	// writeMu serializes writers; readers stay lock-free on the pointer.
	writeMu sync.Mutex

	// randMu guards the seedable source used by the weighted picker.
	randMu sync.Mutex
	rand   *rand.Rand
}

// New builds a pool for one provider name.
func New(provider string, snapshot *Snapshot, sink StateSink) *Pool {
	if snapshot == nil {
		snapshot = EmptySnapshot()
	}
	p := &Pool{
		provider: provider,
		sink:     sink,
		rand:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	p.snapshot.Store(snapshot)
	p.recovery = newRecoveryQueue(p)
	p.recovery.reseed(snapshot)
	return p
}

// SetRandSource replaces the picker's randomness; tests seed this.
func (p *Pool) SetRandSource(source rand.Source) {
	p.randMu.Lock()
	defer p.randMu.Unlock()
	p.rand = rand.New(source)
}

// Provider returns the owning provider name.
func (p *Pool) Provider() string { return p.provider }

// Snapshot returns the current published snapshot.
func (p *Pool) Snapshot() *Snapshot { return p.snapshot.Load() }

// ReplaceSnapshot swaps in a rebuilt snapshot (admin mutations).
func (p *Pool) ReplaceSnapshot(snapshot *Snapshot) {
	if snapshot == nil {
		snapshot = EmptySnapshot()
	}
	p.writeMu.Lock()
	p.snapshot.Store(snapshot)
	p.writeMu.Unlock()
	p.recovery.reseed(snapshot)
}

// Execute runs the selection loop: filter enabled non-disallowed entries
// for the scope hint, weighted-pick one, run the attempt, and on a marked
// failure record the mark and try the next candidate. A failure without a
// mark is returned to the caller verbatim.
func (p *Pool) Execute(ctx context.Context, scope domain.DisallowScope, attempt Attempt) (*domain.UpstreamHTTPResponse, *domain.UpstreamPassthroughError) {
	snapshot := p.snapshot.Load()
	now := time.Now()

	var candidates []domain.CredentialEntry
	for _, entry := range snapshot.Credentials {
		if !entry.Enabled {
			continue
		}
		if p.isDisallowed(snapshot, entry.ID, scope, now) {
			continue
		}
		candidates = append(candidates, entry)
	}

	var lastError *domain.UpstreamPassthroughError
	for len(candidates) > 0 {
		index := p.pickWeighted(candidates)
		entry := candidates[index]
		candidates = append(candidates[:index], candidates[index+1:]...)

		response, failure := attempt(ctx, entry)
		if failure == nil {
			return response, nil
		}
		if failure.Mark == nil {
			return nil, failure.Passthrough
		}
		p.ApplyMark(entry.ID, *failure.Mark)
		lastError = failure.Passthrough
	}

	if lastError != nil {
		return nil, lastError
	}
	return nil, domain.ServiceUnavailable("no credential available")
}

// ExecuteForID pins the attempt to one credential; no retry loop.
func (p *Pool) ExecuteForID(ctx context.Context, id string, scope domain.DisallowScope, attempt Attempt) (*domain.UpstreamHTTPResponse, *domain.UpstreamPassthroughError) {
	snapshot := p.snapshot.Load()
	now := time.Now()

	var found *domain.CredentialEntry
	for i := range snapshot.Credentials {
		if snapshot.Credentials[i].ID == id {
			found = &snapshot.Credentials[i]
			break
		}
	}
	if found == nil {
		return nil, domain.PassthroughFromStatus(http.StatusNotFound, "credential not found")
	}
	if !found.Enabled {
		return nil, domain.PassthroughFromStatus(http.StatusForbidden, "credential disabled")
	}
	if p.isDisallowed(snapshot, id, scope, now) {
		return nil, domain.PassthroughFromStatus(http.StatusForbidden, "credential disallowed")
	}

	response, failure := attempt(ctx, *found)
	if failure == nil {
		return response, nil
	}
	if failure.Mark != nil {
		p.ApplyMark(id, *failure.Mark)
	}
	return nil, failure.Passthrough
}

// ApplyMark publishes a new snapshot carrying the mark. Active entries are
// copied, expired ones pruned, and the new key inserted; the most recent
// mark per key wins. Concurrent writers compose because the write lock
// forces each to start from the latest snapshot.
func (p *Pool) ApplyMark(credentialID string, mark domain.DisallowMark) {
	now := time.Now()
	entry := domain.DisallowEntry{
		Level:     mark.Level,
		Reason:    mark.Reason,
		UpdatedAt: now,
	}
	if mark.Level != domain.LevelDead {
		entry.Until = now.Add(mark.Duration)
	}
	key := domain.DisallowKey{CredentialID: credentialID, Scope: mark.Scope}

	p.writeMu.Lock()
	current := p.snapshot.Load()
	next := &Snapshot{
		Credentials: current.Credentials,
		Disallow:    make(map[domain.DisallowKey]domain.DisallowEntry, len(current.Disallow)+1),
	}
	for existingKey, existingEntry := range current.Disallow {
		if existingEntry.Active(now) {
			next.Disallow[existingKey] = existingEntry
		}
	}
	next.Disallow[key] = entry
	p.snapshot.Store(next)
	p.writeMu.Unlock()

	log.WithFields(log.Fields{
		"provider":   p.provider,
		"credential": credentialID,
		"level":      mark.Level,
		"scope":      mark.Scope.Model,
		"reason":     mark.Reason,
	}).Info("credential disallowed")

	if entry.Level != domain.LevelDead {
		p.recovery.schedule(key, entry.Until)
	}
	if p.sink != nil {
		p.sink.UpsertDisallow(domain.DisallowRecord{
			Provider:     p.provider,
			CredentialID: credentialID,
			Scope:        mark.Scope,
			Level:        mark.Level,
			Until:        entry.Until,
			Reason:       mark.Reason,
			UpdatedAt:    now,
		})
		kind := domain.EventUnavailableStart
		if !mark.Scope.AllModels() {
			kind = domain.EventModelUnavailableStart
		}
		p.sink.Operational(domain.OperationalEvent{
			Kind:         kind,
			At:           now,
			Provider:     p.provider,
			CredentialID: credentialID,
			Model:        mark.Scope.Model,
			Reason:       mark.Reason,
			Until:        entry.Until,
		})
	}
}

// isDisallowed checks the all-models key first (always vetoes), then the
// model key when the scope hint names one.
func (p *Pool) isDisallowed(snapshot *Snapshot, credentialID string, scope domain.DisallowScope, now time.Time) bool {
	allKey := domain.DisallowKey{CredentialID: credentialID, Scope: domain.ScopeAllModels()}
	if entry, ok := snapshot.Disallow[allKey]; ok && entry.Active(now) {
		return true
	}
	if !scope.AllModels() {
		modelKey := domain.DisallowKey{CredentialID: credentialID, Scope: scope}
		if entry, ok := snapshot.Disallow[modelKey]; ok {
			return entry.Active(now)
		}
	}
	return false
}

// pickWeighted draws in [0, ΣW) and returns the entry whose prefix-weight
// interval contains the draw. All-zero weights degrade to uniform.
func (p *Pool) pickWeighted(candidates []domain.CredentialEntry) int {
	p.randMu.Lock()
	defer p.randMu.Unlock()

	var total uint64
	for _, entry := range candidates {
		total += uint64(entry.Weight)
	}
	if total == 0 {
		return p.rand.IntN(len(candidates))
	}
	roll := p.rand.Uint64N(total)
	for index, entry := range candidates {
		weight := uint64(entry.Weight)
		if roll < weight {
			return index
		}
		roll -= weight
	}
	return len(candidates) - 1
}

// removeExpired drops the key from the next snapshot if it is expired.
// Returns true when an entry was removed.
func (p *Pool) removeExpired(key domain.DisallowKey, now time.Time) bool {
	p.writeMu.Lock()
	current := p.snapshot.Load()
	entry, ok := current.Disallow[key]
	if !ok || entry.Active(now) {
		p.writeMu.Unlock()
		return false
	}
	next := &Snapshot{
		Credentials: current.Credentials,
		Disallow:    make(map[domain.DisallowKey]domain.DisallowEntry, len(current.Disallow)),
	}
	for existingKey, existingEntry := range current.Disallow {
		if existingKey == key {
			continue
		}
		if existingEntry.Active(now) {
			next.Disallow[existingKey] = existingEntry
		}
	}
	p.snapshot.Store(next)
	p.writeMu.Unlock()

	if p.sink != nil {
		kind := domain.EventUnavailableEnd
		if !key.Scope.AllModels() {
			kind = domain.EventModelUnavailableEnd
		}
		p.sink.Operational(domain.OperationalEvent{
			Kind:         kind,
			At:           now,
			Provider:     p.provider,
			CredentialID: key.CredentialID,
			Model:        key.Scope.Model,
		})
	}
	return true
}

// Close stops the recovery worker.
func (p *Pool) Close() {
	p.recovery.stop()
}
