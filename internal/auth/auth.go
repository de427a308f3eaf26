package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/ZanzyTHEbar/team-pulse/internal/types"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Role is carried in every token and decides which routes a caller may use
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// HashCost matches the cost the seeded admin has always been hashed with
const HashCost = 12

const DefaultTokenTTL = 24 * time.Hour

// Claims is the JWT payload
type Claims struct {
	UID      int64  `json:"uid"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// AdminStore is the storage the auth service needs
type AdminStore interface {
	GetAdminByUsername(ctx context.Context, username string) (*types.AdminUser, error)
	UpsertAdmin(ctx context.Context, username, passwordHash string) (*types.AdminUser, error)
}

// Options configures a Service
type Options struct {
	Secret         string
	TokenTTL       time.Duration
	ViewerPassword string
}

// Service issues and verifies tokens
type Service struct {
	store          AdminStore
	secret         []byte
	ttl            time.Duration
	viewerPassword string
	now            func() time.Time
}

// LoginResult is returned by a successful admin login
type LoginResult struct {
	Token string           `json:"token"`
	User  *types.AdminUser `json:"user"`
}

func NewService(store AdminStore, opts Options) *Service {
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{
		store:          store,
		secret:         []byte(opts.Secret),
		ttl:            ttl,
		viewerPassword: opts.ViewerPassword,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// TokenTTL returns the lifetime of issued tokens
func (s *Service) TokenTTL() time.Duration {
	return s.ttl
}

// Login verifies admin credentials and issues an admin token
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.NewValidationError("username and password are required")
	}

	user, err := s.store.GetAdminByUsername(ctx, username)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewUnauthorizedError("invalid credentials")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.NewUnauthorizedError("invalid credentials")
	}

	token, err := s.Sign(user.ID, user.Username, RoleAdmin)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: user}, nil
}

// ViewerAccess checks the shared viewer password and issues a viewer token
func (s *Service) ViewerAccess(password string) (string, error) {
	if s.viewerPassword == "" || password == "" ||
		subtle.ConstantTimeCompare([]byte(password), []byte(s.viewerPassword)) != 1 {
		return "", errors.NewUnauthorizedError("invalid viewer password")
	}
	return s.Sign(0, "viewer", RoleViewer)
}

// Sign issues an HS256 token for the given identity
func (s *Service) Sign(uid int64, username string, role Role) (string, error) {
	now := s.now()
	claims := Claims{
		UID:      uid,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns its claims
func (s *Service) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, errors.NewUnauthorizedError("invalid or expired token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.NewUnauthorizedError("invalid or expired token")
	}
	return claims, nil
}

// HashPassword hashes a password at HashCost
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.NewValidationError("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// SeedAdmin creates or resets an admin account
func SeedAdmin(ctx context.Context, store AdminStore, username, password string) (*types.AdminUser, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.NewValidationError("admin username must not be empty")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return store.UpsertAdmin(ctx, username, hash)
}
