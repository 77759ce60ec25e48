package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/user/entity"
)

var (
	ErrNotFound = errors.New("user record not found")
	ErrExists   = errors.New("user record already exists")
)

// maxTxRetries bounds optimistic-lock retries in update.
const maxTxRetries = 5

// Key returns the key-value key for a user record.
func Key(email string) string { return "user:" + email }

// UserRepo provides data access for user records kept as JSON values in Redis.
type UserRepo struct {
	rdb *redis.Client
}

func NewUserRepo(rdb *redis.Client) *UserRepo { return &UserRepo{rdb: rdb} }

// Get returns the user stored under email or ErrNotFound.
func (r *UserRepo) Get(ctx context.Context, email string) (*entity.User, error) {
	raw, err := r.rdb.Get(ctx, Key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var u entity.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// Insert stores u only if no record exists for its email (SETNX). Returns
// ErrExists when the key is taken, so concurrent registrations cannot clobber
// each other.
func (r *UserRepo) Insert(ctx context.Context, u *entity.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, Key(u.Email), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

// SetPasswordHash replaces only the password hash and returns the record as
// stored afterwards. Other fields, tokenVersion included, are read inside the
// same WATCH so a concurrent revoke is never rolled back.
func (r *UserRepo) SetPasswordHash(ctx context.Context, email, hash string) (*entity.User, error) {
	u, err := r.update(ctx, email, func(u *entity.User) { u.PasswordHash = hash })
	if err != nil {
		return nil, fmt.Errorf("redis set password: %w", err)
	}
	return u, nil
}

// BumpTokenVersion increments tokenVersion under WATCH and returns the new value.
func (r *UserRepo) BumpTokenVersion(ctx context.Context, email string) (int64, error) {
	u, err := r.update(ctx, email, func(u *entity.User) { u.TokenVersion++ })
	if err != nil {
		return 0, fmt.Errorf("redis bump version: %w", err)
	}
	return u.TokenVersion, nil
}

// update applies fn to the stored record as an optimistic read-modify-write.
func (r *UserRepo) update(ctx context.Context, email string, fn func(*entity.User)) (*entity.User, error) {
	key := Key(email)
	var out entity.User
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		var u entity.User
		if err := json.Unmarshal(raw, &u); err != nil {
			return fmt.Errorf("decode user: %w", err)
		}
		fn(&u)
		data, err := json.Marshal(&u)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			out = u
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return &out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, redis.TxFailedErr
}
