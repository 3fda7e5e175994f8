package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dmitrijs2005/myid/internal/client/models"
	"github.com/dmitrijs2005/myid/internal/client/passkey"
	"github.com/dmitrijs2005/myid/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/myid/internal/common"
	"github.com/dmitrijs2005/myid/internal/logging"
)

// LockEvent describes one lock operation. Exactly one of Section and Field
// is set.
type LockEvent struct {
	Section string
	Field   string
}

// Covers reports whether the event locks key under schema.
func (e LockEvent) Covers(key string, schema models.Schema) bool {
	if e.Field != "" {
		return e.Field == key
	}
	sec, ok := schema.SectionOf(key)
	return ok && sec == e.Section
}

// LockSnapshot is a copy of both lock sets.
type LockSnapshot struct {
	Sections []string
	Fields   []string
}

// LockManager keeps the persisted sets of locked sections and fields.
// Locking is free; unlocking needs a passkey proof for the enrolled
// credential, obtained by the caller.
// The sets carry no cryptography and only matter while protection is on.
type LockManager struct {
	repo metadata.Repository
	log  logging.Logger

	mu       sync.RWMutex
	sections []string
	fields   []string
	subs     []func(LockEvent)
}

func NewLockManager(repo metadata.Repository, log logging.Logger) *LockManager {
	if log == nil {
		log = logging.Discard()
	}
	return &LockManager{repo: repo, log: log}
}

// Load reads both sets from the repository. Unreadable sets load empty.
func (m *LockManager) Load(ctx context.Context) error {
	sections, err := m.read(ctx, keySectionLocks)
	if err != nil {
		return err
	}
	fields, err := m.read(ctx, keyFieldLocks)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sections, m.fields = sections, fields
	m.mu.Unlock()
	return nil
}

func (m *LockManager) read(ctx context.Context, key string) ([]string, error) {
	raw, err := m.repo.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		m.log.Warn(ctx, "lock set unreadable", "key", key, "error", err)
		return nil, nil
	}
	return dedupe(ids), nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// OnLock registers fn to be called after every successful lock. The
// controller uses it to forget values it has already revealed.
func (m *LockManager) OnLock(fn func(LockEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

func (m *LockManager) LockSection(ctx context.Context, id string) error {
	return m.lock(ctx, LockEvent{Section: id})
}

func (m *LockManager) LockField(ctx context.Context, key string) error {
	return m.lock(ctx, LockEvent{Field: key})
}

func (m *LockManager) UnlockSection(ctx context.Context, id string, proof passkey.Proof) error {
	return m.unlock(ctx, LockEvent{Section: id}, proof)
}

func (m *LockManager) UnlockField(ctx context.Context, key string, proof passkey.Proof) error {
	return m.unlock(ctx, LockEvent{Field: key}, proof)
}

// target returns the persistence key and the set an event refers to.
func (m *LockManager) target(ev LockEvent) (string, *[]string) {
	if ev.Field != "" {
		return keyFieldLocks, &m.fields
	}
	return keySectionLocks, &m.sections
}

func (m *LockManager) lock(ctx context.Context, ev LockEvent) error {
	if ev.Section == "" && ev.Field == "" {
		return fmt.Errorf("%w: empty lock target", common.ErrorInvalidArgument)
	}

	m.mu.Lock()
	key, set := m.target(ev)
	id := ev.Section + ev.Field
	if slices.Contains(*set, id) {
		m.mu.Unlock()
		return nil
	}
	next := append(slices.Clone(*set), id)
	if err := m.persist(ctx, key, next); err != nil {
		m.mu.Unlock()
		return err
	}
	*set = next
	subs := slices.Clone(m.subs)
	m.mu.Unlock()

	m.log.Debug(ctx, "locked", "section", ev.Section, "field", ev.Field)
	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

func (m *LockManager) unlock(ctx context.Context, ev LockEvent, proof passkey.Proof) error {
	if !proof.Valid() {
		return common.ErrAuthenticationRequired
	}
	if ev.Section == "" && ev.Field == "" {
		return fmt.Errorf("%w: empty lock target", common.ErrorInvalidArgument)
	}

	ref, err := m.repo.Get(ctx, keyCredentialRef)
	if err != nil {
		return fmt.Errorf("failed to read credential reference: %w", err)
	}
	if len(ref) == 0 || proof.Ref() != passkey.Ref(ref) {
		return fmt.Errorf("%w: proof does not match the enrolled credential", common.ErrAuthenticationRequired)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key, set := m.target(ev)
	id := ev.Section + ev.Field
	i := slices.Index(*set, id)
	if i < 0 {
		return nil
	}
	next := slices.Delete(slices.Clone(*set), i, i+1)
	if err := m.persist(ctx, key, next); err != nil {
		return err
	}
	*set = next

	m.log.Debug(ctx, "unlocked", "section", ev.Section, "field", ev.Field)
	return nil
}

func (m *LockManager) persist(ctx context.Context, key string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := m.repo.Set(ctx, key, b); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// IsFieldLocked reports whether key is locked on its own or through the
// section schema assigns it to.
func (m *LockManager) IsFieldLocked(key string, schema models.Schema) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lockPredicate(schema, m.sections, m.fields)(key)
}

func (m *LockManager) IsSectionLocked(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.sections, id)
}

func (m *LockManager) LockedSections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.sections...)
}

func (m *LockManager) LockedFields() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.fields...)
}

func (m *LockManager) Snapshot() LockSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return LockSnapshot{
		Sections: append([]string{}, m.sections...),
		Fields:   append([]string{}, m.fields...),
	}
}

func (s LockSnapshot) Empty() bool {
	return len(s.Sections) == 0 && len(s.Fields) == 0
}

// Effective returns the sets to enforce: both are empty when the profile
// is not protected.
func (m *LockManager) Effective(protected bool) LockSnapshot {
	if !protected {
		return LockSnapshot{Sections: []string{}, Fields: []string{}}
	}
	return m.Snapshot()
}

// Clear empties both sets.
func (m *LockManager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, k := range lockKeys {
		if err := m.repo.Delete(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", k, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	m.sections, m.fields = nil, nil
	return nil
}
