package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

const (
	// refreshTokenLen is the number of random bytes in a refresh token.
	refreshTokenLen = 64

	// Default token lifetimes
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// SessionConfig holds session configuration.
type SessionConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	JWTSecret       []byte
	Issuer          string
}

// UserStore is the subset of user persistence the session service reads.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}

// RefreshTokenStore persists refresh tokens by hash.
type RefreshTokenStore interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
}

// SessionService issues and validates credentials.
type SessionService struct {
	config SessionConfig
	users  UserStore
	tokens RefreshTokenStore
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionService creates a new session service.
func NewSessionService(config SessionConfig, users UserStore, tokens RefreshTokenStore, logger *slog.Logger) *SessionService {
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		config: config,
		users:  users,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// AccessTokenTTL returns the access token TTL.
func (s *SessionService) AccessTokenTTL() time.Duration {
	return s.config.AccessTokenTTL
}

// AccessTokenClaims represents the claims in an access token.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Email    string      `json:"email"`
	Role     domain.Role `json:"role"`
	TenantID *uuid.UUID  `json:"tenant_id"`
}

// Login authenticates an active user by email and password and issues a
// token pair. Unknown emails and wrong passwords are indistinguishable.
func (s *SessionService) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			VerifyPassword(password, dummyHash())
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !VerifyPassword(password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	if NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	now := s.now()
	refreshToken, err := GenerateToken(refreshTokenLen)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Create(ctx, &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.RefreshTokenTTL),
	}); err != nil {
		return nil, err
	}

	return s.issue(user, refreshToken, now)
}

// Refresh issues a new access token for a live refresh token. The refresh
// token itself is returned unchanged.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, domain.ErrRefreshTokenInvalid
	}

	token, err := s.tokens.GetByTokenHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, domain.ErrRefreshTokenNotFound) {
			return nil, domain.ErrRefreshTokenInvalid
		}
		return nil, err
	}

	now := s.now()
	if token.IsExpired(now) {
		if err := s.tokens.DeleteByID(ctx, token.ID); err != nil {
			s.logger.Warn("failed to delete expired refresh token", "token_id", token.ID, "error", err)
		}
		return nil, domain.ErrRefreshTokenExpired
	}

	user, err := s.users.GetByID(ctx, token.UserID, true)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrPrincipalInactive
		}
		return nil, err
	}
	if user.IsDeleted() {
		return nil, domain.ErrPrincipalInactive
	}

	return s.issue(user, refreshToken, now)
}

// Logout deletes the refresh token. Unknown tokens are not an error.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.tokens.DeleteByTokenHash(ctx, HashToken(refreshToken))
}

// ValidateAccessToken validates an access token and returns the principal it carries.
func (s *SessionService) ValidateAccessToken(tokenString string) (*domain.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.config.JWTSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil || !claims.Role.Valid() {
		return nil, domain.ErrInvalidToken
	}

	return &domain.Principal{
		ID:       id,
		Email:    claims.Email,
		Role:     claims.Role,
		TenantID: claims.TenantID,
	}, nil
}

func (s *SessionService) issue(user *domain.User, refreshToken string, now time.Time) (*domain.TokenPair, error) {
	expiry := now.Add(s.config.AccessTokenTTL)
	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			Issuer:    s.config.Issuer,
			ID:        uuid.NewString(),
		},
		Email:    user.Email,
		Role:     user.Role,
		TenantID: user.TenantID,
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.JWTSecret)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.config.AccessTokenTTL.Seconds()),
		ExpiresAt:    expiry,
		User:         user,
	}, nil
}

// upgradeHash replaces a legacy hash after a successful login. Failure only
// delays the upgrade to the next login.
func (s *SessionService) upgradeHash(ctx context.Context, user *domain.User, password string) {
	hash, err := HashPassword(password)
	if err != nil {
		s.logger.Warn("failed to rehash password", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Warn("failed to store upgraded password hash", "user_id", user.ID, "error", err)
	}
}
