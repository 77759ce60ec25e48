package user

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-dream-go/internal/user/repo"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher hashes with bcrypt and still accepts legacy hex SHA-256 digests.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), b.cost())
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	if isLegacyDigest(hash) {
		return ConstantTimeCompare(hash, LegacyDigest(pw))
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

func (b BcryptHasher) NeedsRehash(hash string) bool {
	if isLegacyDigest(hash) {
		return true
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return cost != b.cost()
}

// LegacyDigest is the hex SHA-256 digest older records were stored with.
func LegacyDigest(pw string) string {
	sum := sha256.Sum256([]byte(pw))
	return hex.EncodeToString(sum[:])
}

func isLegacyDigest(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

// Store is the credential store the service depends on.
type Store interface {
	Get(ctx context.Context, email string) (*entity.User, error)
	Insert(ctx context.Context, u *entity.User) error
	SetPasswordHash(ctx context.Context, email, hash string) (*entity.User, error)
	BumpTokenVersion(ctx context.Context, email string) (int64, error)
}

// TokenIssuer signs a token for the given subject and token version.
type TokenIssuer interface {
	Issue(email string, tokenVersion int64) (string, error)
}

// UserService orchestrates registration, login and session revocation.
type UserService struct {
	store  Store
	hasher PasswordHasher
	tokens TokenIssuer
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewUserService(store Store, hasher PasswordHasher, tokens TokenIssuer, logger *zap.SugaredLogger) *UserService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &UserService{store: store, hasher: hasher, tokens: tokens, logger: logger, now: time.Now}
}

var (
	ErrMissingFields  = errors.New("email and password are required")
	ErrUserExists     = errors.New("user already exists")
	ErrUserNotFound   = errors.New("user not found")
	ErrBadCredentials = errors.New("invalid credentials")
	ErrTrialExpired   = errors.New("trial expired")
)

// NormalizeEmail trims and lower-cases an email so it can be used as the key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user. The store insert is conditional, so a concurrent
// registration for the same email yields ErrUserExists rather than an overwrite.
func (s *UserService) Register(ctx context.Context, email, password string) error {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return ErrMissingFields
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u := &entity.User{
		Email:        email,
		PasswordHash: hash,
		Created:      s.now().UnixMilli(),
		TokenVersion: 0,
	}
	if err := s.store.Insert(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrExists) {
			return ErrUserExists
		}
		return err
	}
	return nil
}

// Login authenticates by email and password and returns a signed token.
// An elapsed trial is reported as ErrTrialExpired, not as bad credentials.
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return "", ErrMissingFields
	}
	u, err := s.get(ctx, email)
	if err != nil {
		return "", err
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return "", ErrBadCredentials
	}
	if !IsActive(u.Created, s.now()) {
		return "", ErrTrialExpired
	}

	if s.hasher.NeedsRehash(u.PasswordHash) {
		u = s.rehash(ctx, u, password)
	}

	return s.tokens.Issue(u.Email, u.TokenVersion)
}

// rehash upgrades the stored hash. Failure keeps the login working with the
// old hash. The returned record carries the current tokenVersion.
func (s *UserService) rehash(ctx context.Context, u *entity.User, password string) *entity.User {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warnw("password rehash failed", "email", u.Email, "error", err)
		return u
	}
	updated, err := s.store.SetPasswordHash(ctx, u.Email, newHash)
	if err != nil {
		s.logger.Warnw("store rehashed password failed", "email", u.Email, "error", err)
		return u
	}
	return updated
}

// Profile is the /me view of a user.
type Profile struct {
	Email         string `json:"email"`
	Created       int64  `json:"created"`
	TrialEndsAt   int64  `json:"trialEndsAt"`
	TrialDaysLeft int    `json:"trialDaysLeft"`
}

// Me returns the profile of the authenticated user.
func (s *UserService) Me(ctx context.Context, email string) (*Profile, error) {
	u, err := s.get(ctx, email)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Email:         u.Email,
		Created:       u.Created,
		TrialEndsAt:   TrialEndsAt(u.Created),
		TrialDaysLeft: TrialDaysLeft(u.Created, s.now()),
	}, nil
}

// RevokeSessions bumps the user's token version so every previously issued
// token stops resolving. Returns the new version.
func (s *UserService) RevokeSessions(ctx context.Context, email string) (int64, error) {
	v, err := s.store.BumpTokenVersion(ctx, email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return v, nil
}

func (s *UserService) get(ctx context.Context, email string) (*entity.User, error) {
	u, err := s.store.Get(ctx, email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// ConstantTimeCompare helper (exposed if later we store API keys etc.)
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
