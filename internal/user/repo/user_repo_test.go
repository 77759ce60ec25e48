package repo

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/user/entity"
)

func sampleUser() *entity.User {
	return &entity.User{Email: "a@x.com", PasswordHash: "hash", Created: 1700000000000, TokenVersion: 0}
}

func TestUserRepo_Get_Found(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	repo := NewUserRepo(rdb)

	data, err := json.Marshal(sampleUser())
	require.NoError(t, err)
	mock.ExpectGet("user:a@x.com").SetVal(string(data))

	got, err := repo.Get(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, sampleUser(), got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Get_NotFound(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	repo := NewUserRepo(rdb)

	mock.ExpectGet("user:ghost@x.com").RedisNil()

	_, err := repo.Get(context.Background(), "ghost@x.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepo_Get_RedisError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	repo := NewUserRepo(rdb)

	mock.ExpectGet("user:a@x.com").SetErr(errors.New("connection refused"))

	_, err := repo.Get(context.Background(), "a@x.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "redis get")
}

func TestUserRepo_Get_CorruptValue(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	repo := NewUserRepo(rdb)

	mock.ExpectGet("user:a@x.com").SetVal("{not json")

	_, err := repo.Get(context.Background(), "a@x.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode user")
}

func TestUserRepo_Insert(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	repo := NewUserRepo(rdb)

	u := sampleUser()
	data, err := json.Marshal(u)
	require.NoError(t, err)
	mock.ExpectSetNX("user:a@x.com", data, 0).SetVal(true)

	require.NoError(t, repo.Insert(context.Background(), u))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Insert_Exists(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	repo := NewUserRepo(rdb)

	u := sampleUser()
	data, err := json.Marshal(u)
	require.NoError(t, err)
	mock.ExpectSetNX("user:a@x.com", data, 0).SetVal(false)

	err = repo.Insert(context.Background(), u)
	require.ErrorIs(t, err, ErrExists)
}

func TestMemoryUserRepo_SetPasswordHash(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()

	_, err := repo.SetPasswordHash(ctx, "a@x.com", "new")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Insert(ctx, sampleUser()))
	_, err = repo.BumpTokenVersion(ctx, "a@x.com")
	require.NoError(t, err)

	got, err := repo.SetPasswordHash(ctx, "a@x.com", "new")
	require.NoError(t, err)
	assert.Equal(t, "new", got.PasswordHash)
	assert.Equal(t, int64(1), got.TokenVersion)

	stored, err := repo.Get(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.TokenVersion)
}

func TestMemoryUserRepo_InsertIfAbsent(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, sampleUser()))
	require.ErrorIs(t, repo.Insert(ctx, sampleUser()), ErrExists)

	got, err := repo.Get(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "hash", got.PasswordHash)
}

func TestMemoryUserRepo_ConcurrentInsertSingleWinner(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Insert(ctx, sampleUser()); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryUserRepo_BumpTokenVersion(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()

	_, err := repo.BumpTokenVersion(ctx, "a@x.com")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Insert(ctx, sampleUser()))
	v, err := repo.BumpTokenVersion(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	got, err := repo.Get(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.TokenVersion)
}

func TestMemoryUserRepo_GetReturnsCopy(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, sampleUser()))

	got, err := repo.Get(ctx, "a@x.com")
	require.NoError(t, err)
	got.TokenVersion = 99

	again, err := repo.Get(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.TokenVersion)
}
