package repo

import (
	"context"
	"sync"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/user/entity"
)

// MemoryUserRepo keeps user records in process memory. It is used when no
// Redis address is configured and in tests.
type MemoryUserRepo struct {
	mu    sync.RWMutex
	users map[string]entity.User
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[string]entity.User)}
}

func (r *MemoryUserRepo) Get(_ context.Context, email string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *MemoryUserRepo) Insert(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.Email]; ok {
		return ErrExists
	}
	r.users[u.Email] = *u
	return nil
}

func (r *MemoryUserRepo) SetPasswordHash(_ context.Context, email, hash string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	u.PasswordHash = hash
	r.users[email] = u
	return &u, nil
}

func (r *MemoryUserRepo) BumpTokenVersion(_ context.Context, email string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return 0, ErrNotFound
	}
	u.TokenVersion++
	r.users[email] = u
	return u.TokenVersion, nil
}
