package user

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/apierr"
	"github.com/ovaphlow/pitchfork/service-dream-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-dream-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-dream-go/internal/user/repo"
)

// TrialPeriod is how long after registration dream and completion endpoints stay reachable.
const TrialPeriod = 14 * 24 * time.Hour

const day = int64(24 * time.Hour / time.Millisecond)

// IsActive reports whether now is within TrialPeriod of created (epoch ms).
// Exactly created+14d still counts as active.
func IsActive(created int64, now time.Time) bool {
	return now.UnixMilli()-created <= TrialPeriod.Milliseconds()
}

// TrialEndsAt returns the trial end in epoch milliseconds.
func TrialEndsAt(created int64) int64 {
	return created + TrialPeriod.Milliseconds()
}

// TrialDaysLeft rounds the remaining trial up to whole days, never below zero.
func TrialDaysLeft(created int64, now time.Time) int {
	remaining := TrialEndsAt(created) - now.UnixMilli()
	if remaining <= 0 {
		return 0
	}
	return int((remaining + day - 1) / day)
}

// UserReader is the read side of the credential store.
type UserReader interface {
	Get(ctx context.Context, email string) (*entity.User, error)
}

// TrialGate rejects authenticated callers whose trial has elapsed. It must be
// mounted inside token.Resolver.Require.
type TrialGate struct {
	users  UserReader
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewTrialGate(users UserReader, logger *zap.SugaredLogger) *TrialGate {
	return &TrialGate{users: users, logger: logger, now: time.Now}
}

func (g *TrialGate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, ok := token.UserFromContext(r.Context())
		if !ok {
			apierr.Write(w, g.logger, apierr.ErrUnauthorized)
			return
		}
		u, err := g.users.Get(r.Context(), email)
		if err != nil {
			if errors.Is(err, userrepo.ErrNotFound) {
				apierr.Write(w, g.logger, apierr.ErrUnauthorized)
				return
			}
			apierr.Write(w, g.logger, fmt.Errorf("load user: %w", err))
			return
		}
		if !IsActive(u.Created, g.now()) {
			apierr.Write(w, g.logger, apierr.ErrTrialExpired)
			return
		}
		next.ServeHTTP(w, r)
	})
}
