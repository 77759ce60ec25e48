package user

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-dream-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-dream-go/internal/user/repo"
)

func TestIsActive_Boundary(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	period := TrialPeriod.Milliseconds()

	assert.True(t, IsActive(created, time.UnixMilli(created)))
	assert.True(t, IsActive(created, time.UnixMilli(created+period-1)))
	assert.True(t, IsActive(created, time.UnixMilli(created+period)), "exactly 14 days is still active")
	assert.False(t, IsActive(created, time.UnixMilli(created+period+1)))
}

func TestTrialDaysLeft(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	at := func(d time.Duration) time.Time { return time.UnixMilli(created).Add(d) }

	assert.Equal(t, 14, TrialDaysLeft(created, at(0)))
	assert.Equal(t, 14, TrialDaysLeft(created, at(time.Second)))
	assert.Equal(t, 13, TrialDaysLeft(created, at(24*time.Hour)))
	assert.Equal(t, 1, TrialDaysLeft(created, at(TrialPeriod-time.Millisecond)))
	assert.Equal(t, 0, TrialDaysLeft(created, at(TrialPeriod)))
	assert.Equal(t, 0, TrialDaysLeft(created, at(30*24*time.Hour)))
}

func TestTrialGate(t *testing.T) {
	store := userrepo.NewMemoryUserRepo()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Insert(ctx, &entity.User{Email: "fresh@x.com", Created: now.UnixMilli()}))
	require.NoError(t, store.Insert(ctx, &entity.User{Email: "old@x.com", Created: now.Add(-15 * 24 * time.Hour).UnixMilli()}))

	gate := NewTrialGate(store, zap.NewNop().Sugar())
	h := gate.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(email string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/dreams", nil)
		if email != "" {
			r = r.WithContext(token.WithUser(r.Context(), email))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, serve("fresh@x.com").Code)

	rec := serve("old@x.com")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"trial_expired"`)

	assert.Equal(t, http.StatusUnauthorized, serve("").Code)
	assert.Equal(t, http.StatusUnauthorized, serve("ghost@x.com").Code)
}
