package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/healthfirst/portal/internal/platform/notification"
)

const (
	RolePatient  = "patient"
	RoleProvider = "provider"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountExists      = errors.New("account already exists")
	ErrTokenRevoked       = errors.New("token has been revoked")
)

// User is the public profile attached to a token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

type IdentityConfig struct {
	Issuer     string
	SigningKey []byte
	TokenTTL   time.Duration

	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int

	// ResetURL is the page a password reset link points to.
	ResetURL string

	Revocations *RevocationList
}

type account struct {
	user User
	hash []byte
}

// Identity is the portal's account directory. Accounts live in memory: the
// demo users plus every registration completed since start.
type Identity struct {
	cfg    IdentityConfig
	mailer *notification.Mailer
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	accounts map[string]account // lower-cased email -> account
}

func NewIdentity(cfg IdentityConfig, mailer *notification.Mailer, logger zerolog.Logger) *Identity {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Identity{
		cfg:      cfg,
		mailer:   mailer,
		logger:   logger.With().Str("component", "identity").Logger(),
		now:      time.Now,
		accounts: make(map[string]account),
	}
}

// DemoAccounts are the sign-in credentials available out of the box.
var DemoAccounts = []struct {
	User     User
	Password string
}{
	{User{ID: "1", Email: "patient@healthfirst.com", Name: "John Smith", Role: RolePatient}, "password123"},
	{User{ID: "2", Email: "provider@healthfirst.com", Name: "John Doe", Role: RoleProvider}, "Password1!"},
}

// SeedDemoAccounts registers DemoAccounts.
func (i *Identity) SeedDemoAccounts() error {
	for _, d := range DemoAccounts {
		hash, err := i.HashPassword(d.Password)
		if err != nil {
			return err
		}
		if err := i.AddAccount(d.User, hash); err != nil {
			return err
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword hashes p with the configured bcrypt cost.
func (i *Identity) HashPassword(p string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(p), i.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// AddAccount makes u able to sign in with the password behind hash.
func (i *Identity) AddAccount(u User, hash []byte) error {
	key := normalizeEmail(u.Email)
	if key == "" {
		return fmt.Errorf("account has no email")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.accounts[key]; ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, key)
	}
	u.Email = key
	i.accounts[key] = account{user: u, hash: hash}
	return nil
}

// Login checks the credentials and issues a token.
func (i *Identity) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	i.mu.RLock()
	acct, ok := i.accounts[normalizeEmail(email)]
	i.mu.RUnlock()
	if !ok {
		i.logger.Info().Msg("login for unknown account")
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		i.logger.Info().Str("user_id", acct.user.ID).Msg("login with wrong password")
		return nil, ErrInvalidCredentials
	}

	token, exp, err := i.IssueToken(acct.user)
	if err != nil {
		return nil, err
	}
	i.logger.Info().Str("user_id", acct.user.ID).Str("role", acct.user.Role).Msg("login")
	return &LoginResult{User: acct.user, Token: token, TokenType: "Bearer", ExpiresAt: exp}, nil
}

// IssueToken signs an HS256 token for u.
func (i *Identity) IssueToken(u User) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.cfg.TokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: u.Email,
		Name:  u.Name,
		Roles: []string{u.Role},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ParseToken verifies token and returns its claims. Signed-out tokens are
// rejected with ErrTokenRevoked.
func (i *Identity) ParseToken(token string) (*Claims, error) {
	claims, err := parseToken(i.JWTConfig(), token)
	if err != nil {
		return nil, err
	}
	if i.cfg.Revocations != nil && i.cfg.Revocations.Revoked(claims.ID) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Logout revokes the token behind claims until it expires.
func (i *Identity) Logout(claims *Claims) {
	if i.cfg.Revocations == nil || claims.ID == "" {
		return
	}
	exp := i.now().Add(i.cfg.TokenTTL)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	i.cfg.Revocations.Revoke(claims.ID, exp)
	i.logger.Info().Str("user_id", claims.Subject).Msg("logout")
}

// IsTokenValid reports whether token was issued here and has not expired.
func (i *Identity) IsTokenValid(token string) bool {
	_, err := i.ParseToken(token)
	return err == nil
}

// JWTConfig returns the middleware settings matching the issued tokens.
func (i *Identity) JWTConfig() JWTConfig {
	return JWTConfig{Issuer: i.cfg.Issuer, SigningKey: i.cfg.SigningKey, Revocations: i.cfg.Revocations}
}

// ForgotPassword mails a reset link. Unknown addresses are accepted
// silently.
func (i *Identity) ForgotPassword(ctx context.Context, email string) error {
	key := normalizeEmail(email)
	i.mu.RLock()
	acct, ok := i.accounts[key]
	i.mu.RUnlock()
	if !ok {
		i.logger.Info().Msg("password reset for unknown account")
		return nil
	}

	link := i.cfg.ResetURL + "?token=" + uuid.NewString()
	if _, err := i.mailer.SendTemplate(ctx, "password-reset", map[string]string{"reset_link": link}, key); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	i.logger.Info().Str("user_id", acct.user.ID).Msg("password reset sent")
	return nil
}
