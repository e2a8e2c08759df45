package account

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

type memUsers struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*domain.User
	activations *memActivations
}

func (m *memUsers) CreateWithActivation(ctx context.Context, user *domain.User, a *domain.ActivationID) error {
	m.mu.Lock()
	for _, u := range m.users {
		if u.Email == user.Email {
			m.mu.Unlock()
			return domain.NewError(domain.KindAlreadyExists, "email")
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	m.mu.Unlock()
	return m.activations.Upsert(ctx, a)
}

func (m *memUsers) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (m *memUsers) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

type memActivations struct {
	mu     sync.Mutex
	byUser map[uuid.UUID]*domain.ActivationID
}

func (m *memActivations) Upsert(ctx context.Context, a *domain.ActivationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byUser[a.UserID]; ok {
		a.ID = existing.ID
	}
	cp := *a
	m.byUser[a.UserID] = &cp
	return nil
}

func (m *memActivations) GetByValue(ctx context.Context, value string) (*domain.ActivationID, error) {
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

func (m *memActivations) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, a := range m.byUser {
		if a.ID == id {
			delete(m.byUser, userID)
		}
	}
	return nil
}

func (m *memActivations) forUser(userID uuid.UUID) *domain.ActivationID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byUser[userID]
}

type memMFA struct {
	mu     sync.Mutex
	byUser map[uuid.UUID]*domain.MFARecord
}

func (m *memMFA) Create(ctx context.Context, rec *domain.MFARecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUser[rec.UserID]; ok {
		return domain.ErrMFAAlreadyEnabled
	}
	cp := *rec
	m.byUser[rec.UserID] = &cp
	return nil
}

func (m *memMFA) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.MFARecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byUser[userID]
	if !ok {
		return nil, domain.ErrMFARecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memMFA) UpdateLastConsumedToken(ctx context.Context, id uuid.UUID, token string) error {
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

func (m *memMFA) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byUser, userID)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, event domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) kinds() []domain.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]domain.EventKind, len(n.events))
	for i, e := range n.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (n *recordingNotifier) last() domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return domain.Event{}
	}
	return n.events[len(n.events)-1]
}

var errNotifierDown = errors.New("notifier down")
