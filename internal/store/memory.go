package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/authcore/internal/apperr"
)

// MemDB keeps everything in process memory. Not recommended for production.
type MemDB struct {
	mu            sync.RWMutex
	users         map[string]*User
	emails        map[string]string // email -> user id
	verifications map[string]*VerificationLink
	resets        map[string]*ResetLink
	todos         map[string]*Todo
}

func NewMemoryDB() *MemDB {
	return &MemDB{
		users:         map[string]*User{},
		emails:        map[string]string{},
		verifications: map[string]*VerificationLink{},
		resets:        map[string]*ResetLink{},
		todos:         map[string]*Todo{},
	}
}

func (m *MemDB) Ping(context.Context) error { return nil }
func (m *MemDB) Close() error               { return nil }

func (m *MemDB) insertUserLocked(u *User) error {
	if _, ok := m.emails[u.Email]; ok {
		return apperr.ErrAlreadyExists
	}
	if _, ok := m.users[u.ID]; ok {
		return apperr.ErrAlreadyExists
	}
	cp := *u
	m.users[u.ID] = &cp
	m.emails[u.Email] = u.ID
	return nil
}

func (m *MemDB) InsertUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertUserLocked(u)
}

func (m *MemDB) RegisterUser(_ context.Context, u *User, v *VerificationLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insertUserLocked(u); err != nil {
		return err
	}
	cp := *v
	m.verifications[v.ID] = &cp
	return nil
}

func (m *MemDB) FindUserByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemDB) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	id, ok := m.emails[email]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return m.FindUserByID(ctx, id)
}

func (m *MemDB) UpdateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.users[u.ID]
	if !ok {
		return apperr.ErrNotFound
	}
	if cur.Email != u.Email {
		if _, taken := m.emails[u.Email]; taken {
			return apperr.ErrAlreadyExists
		}
		delete(m.emails, cur.Email)
		m.emails[u.Email] = u.ID
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemDB) ConfirmExternalLogin(_ context.Context, id, avatarURL string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperr.ErrNotFound
	}
	u.EmailVerified = true
	if u.AvatarURL == "" {
		u.AvatarURL = avatarURL
	}
	u.UpdatedAt = at
	return nil
}

func (m *MemDB) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperr.ErrNotFound
	}
	delete(m.users, id)
	delete(m.emails, u.Email)
	for k, v := range m.verifications {
		if v.UserID == id {
			delete(m.verifications, k)
		}
	}
	for k, r := range m.resets {
		if r.UserID == id {
			delete(m.resets, k)
		}
	}
	for k, t := range m.todos {
		if t.OwnerID == id {
			delete(m.todos, k)
		}
	}
	return nil
}

func (m *MemDB) ListUsers(context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemDB) InsertVerification(_ context.Context, v *VerificationLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[v.UserID]; !ok {
		return apperr.ErrNotFound
	}
	for _, cur := range m.verifications {
		if cur.UserID == v.UserID {
			return apperr.ErrAlreadyExists
		}
	}
	cp := *v
	m.verifications[v.ID] = &cp
	return nil
}

func (m *MemDB) FindVerificationByID(_ context.Context, id string) (*VerificationLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.verifications[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *MemDB) FindVerificationByUser(_ context.Context, userID string) (*VerificationLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.verifications {
		if v.UserID == userID {
			cp := *v
			return &cp, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (m *MemDB) DeleteVerificationByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.verifications {
		if v.UserID == userID {
			delete(m.verifications, k)
		}
	}
	return nil
}

func (m *MemDB) ConfirmVerification(_ context.Context, v *VerificationLink, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.verifications[v.ID]; !ok {
		return apperr.ErrNotFound
	}
	u, ok := m.users[v.UserID]
	if !ok {
		return apperr.ErrNotFound
	}
	u.EmailVerified = true
	u.UpdatedAt = at
	delete(m.verifications, v.ID)
	return nil
}

func (m *MemDB) InsertReset(_ context.Context, r *ResetLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[r.UserID]; !ok {
		return apperr.ErrNotFound
	}
	for _, cur := range m.resets {
		if cur.UserID == r.UserID {
			return apperr.ErrAlreadyExists
		}
	}
	cp := *r
	m.resets[r.ID] = &cp
	return nil
}

func (m *MemDB) FindResetByID(_ context.Context, id string) (*ResetLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resets[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemDB) FindResetByUser(_ context.Context, userID string) (*ResetLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.resets {
		if r.UserID == userID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (m *MemDB) DeleteResetByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.resets {
		if r.UserID == userID {
			delete(m.resets, k)
		}
	}
	return nil
}

func (m *MemDB) CompleteReset(_ context.Context, r *ResetLink, passwordHash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resets[r.ID]; !ok {
		return apperr.ErrNotFound
	}
	u, ok := m.users[r.UserID]
	if !ok {
		return apperr.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = at
	delete(m.resets, r.ID)
	return nil
}

func (m *MemDB) PurgeExpiredLinks(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, v := range m.verifications {
		if v.Expired(now) {
			delete(m.verifications, k)
			n++
		}
	}
	for k, r := range m.resets {
		if r.Expired(now) {
			delete(m.resets, k)
			n++
		}
	}
	return n, nil
}

func (m *MemDB) InsertTodo(_ context.Context, t *Todo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[t.OwnerID]; !ok {
		return apperr.ErrNotFound
	}
	cp := *t
	m.todos[t.ID] = &cp
	return nil
}

func (m *MemDB) FindTodo(_ context.Context, id string) (*Todo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.todos[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemDB) ListTodos(_ context.Context, ownerID string) ([]*Todo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Todo{}
	for _, t := range m.todos {
		if ownerID != "" && t.OwnerID != ownerID {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemDB) UpdateTodo(_ context.Context, t *Todo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.todos[t.ID]; !ok {
		return apperr.ErrNotFound
	}
	cp := *t
	m.todos[t.ID] = &cp
	return nil
}

func (m *MemDB) DeleteTodo(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.todos[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.todos, id)
	return nil
}
