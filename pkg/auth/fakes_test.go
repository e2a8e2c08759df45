package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type memActivationStore struct {
	mu     sync.Mutex
	byUser map[uuid.UUID]*domain.ActivationID
}

func newMemActivationStore() *memActivationStore {
	return &memActivationStore{byUser: make(map[uuid.UUID]*domain.ActivationID)}
}

func (m *memActivationStore) Upsert(ctx context.Context, a *domain.ActivationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byUser[a.UserID]; ok {
		a.ID = existing.ID
	}
	cp := *a
	m.byUser[a.UserID] = &cp
	return nil
}

func (m *memActivationStore) GetByValue(ctx context.Context, value string) (*domain.ActivationID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byUser {
		if a.Value == value {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrActivationIDNotFound
}

func (m *memActivationStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, a := range m.byUser {
		if a.ID == id {
			delete(m.byUser, userID)
		}
	}
	return nil
}

func (m *memActivationStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byUser)
}

type memMFAStore struct {
	mu     sync.Mutex
	byUser map[uuid.UUID]*domain.MFARecord
}

func newMemMFAStore() *memMFAStore {
	return &memMFAStore{byUser: make(map[uuid.UUID]*domain.MFARecord)}
}

func (m *memMFAStore) Create(ctx context.Context, rec *domain.MFARecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUser[rec.UserID]; ok {
		return domain.ErrMFAAlreadyEnabled
	}
	cp := *rec
	m.byUser[rec.UserID] = &cp
	return nil
}

func (m *memMFAStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.MFARecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byUser[userID]
	if !ok {
		return nil, domain.ErrMFARecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memMFAStore) UpdateLastConsumedToken(ctx context.Context, id uuid.UUID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.byUser {
		if rec.ID == id {
			if rec.LastConsumedToken != nil && *rec.LastConsumedToken == token {
				return domain.ErrMFATokenConsumed
			}
			rec.LastConsumedToken = &token
			return nil
		}
	}
	return domain.ErrMFATokenConsumed
}

func (m *memMFAStore) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byUser, userID)
	return nil
}

// staleMFAStore serves a fixed snapshot of the record, as seen by a request
// that read it before a concurrent request consumed the same code.
type staleMFAStore struct {
	*memMFAStore
	snapshot *domain.MFARecord
}

func (m *staleMFAStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.MFARecord, error) {
	cp := *m.snapshot
	return &cp, nil
}
