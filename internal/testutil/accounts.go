package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/utils"
)

// MemUsers is an in-memory account store.
type MemUsers struct {
	mu     sync.Mutex
	users  map[uint64]model.User
	prefs  map[uint64][]uint64
	nextID uint64
}

func NewMemUsers() *MemUsers {
	return &MemUsers{users: map[uint64]model.User{}, prefs: map[uint64][]uint64{}}
}

func (m *MemUsers) Create(_ context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return 0, model.ErrEmailExists
		}
	}
	m.nextID++
	now := time.Now().UTC()
	m.users[m.nextID] = model.User{ID: m.nextID, Email: email, PasswordHash: hash, Role: role, CreatedAt: now, UpdatedAt: now}
	return m.nextID, nil
}

func (m *MemUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (m *MemUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (m *MemUsers) SetPreferredCategories(_ context.Context, userID uint64, ids []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return model.ErrUserNotFound
	}
	m.prefs[userID] = append([]uint64{}, ids...)
	return nil
}

func (m *MemUsers) PreferredCategories(_ context.Context, userID uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return nil, model.ErrUserNotFound
	}
	out := append([]uint64{}, m.prefs[userID]...)
	return out, nil
}

type memToken struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

// MemTokens is an in-memory refresh token store.
type MemTokens struct {
	mu     sync.Mutex
	tokens map[string]*memToken
}


func NewMemTokens() *MemTokens { return &MemTokens{tokens: map[string]*memToken{}} }

func (m *MemTokens) StoreRefresh(_ context.Context, userID uint64, hash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[hash] = &memToken{userID: userID, exp: exp}
	return nil
}

func (m *MemTokens) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok || t.revoked || time.Now().After(t.exp) {
		return 0, model.ErrInvalidRefresh
	}
	return t.userID, nil
}

func (m *MemTokens) RevokeByHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok || t.revoked || time.Now().After(t.exp) {
		return model.ErrInvalidRefresh
	}
	t.revoked = true
	return nil
}

func (m *MemTokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.userID == userID {
			t.revoked = true
		}
	}
	return nil
}

// Active counts the live tokens of userID.
func (m *MemTokens) Active(userID uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.userID == userID && !t.revoked {
			n++
		}
	}
	return n
}
