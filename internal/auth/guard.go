// Package auth resolves the caller behind a session token and checks roles.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"bottega/internal/core"
	"bottega/internal/store"
)

const (
	DefaultTTL          = 7 * 24 * time.Hour
	DefaultRefreshAfter = 24 * time.Hour
	issuer              = "bottega"
)

// Claims is the token payload. Role is informational; the guard always
// re-reads the user so a demoted or deleted account loses access at once.
type Claims struct {
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	Role     core.Role `json:"role"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret       string
	TTL          time.Duration
	RefreshAfter time.Duration
}

type Guard struct {
	store        store.Store
	secret       []byte
	ttl          time.Duration
	refreshAfter time.Duration
	now          func() time.Time
}

func NewGuard(s store.Store, cfg Config) (*Guard, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("token secret must be at least 16 characters")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RefreshAfter <= 0 || cfg.RefreshAfter > cfg.TTL {
		cfg.RefreshAfter = DefaultRefreshAfter
	}
	return &Guard{
		store:        s,
		secret:       []byte(cfg.Secret),
		ttl:          cfg.TTL,
		refreshAfter: cfg.RefreshAfter,
		now:          time.Now,
	}, nil
}

// TTL is how long an issued token stays valid.
func (g *Guard) TTL() time.Duration { return g.ttl }

// Issue signs a token for u.
func (g *Guard) Issue(u core.User) (string, time.Time, error) {
	now := g.now()
	expires := now.Add(g.ttl)
	claims := Claims{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (g *Guard) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return g.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ResolveIdentity returns the user the token was issued to, or false when
// the token is missing, invalid, expired or names a user that no longer
// exists.
func (g *Guard) ResolveIdentity(ctx context.Context, token string) (core.User, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return core.User{}, false
	}
	claims, err := g.parse(token)
	if err != nil {
		slog.DebugContext(ctx, "Rejected session token", "error", err)
		return core.User{}, false
	}

	var u core.User
	err = g.store.View(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, claims.UserID)
		return err
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "Identity lookup failed", "user_id", claims.UserID, "error", err)
		}
		return core.User{}, false
	}
	return u, true
}

// Authorize resolves the token and checks the role. With no roles any
// authenticated user passes.
func (g *Guard) Authorize(ctx context.Context, token string, roles ...core.Role) (core.User, error) {
	u, ok := g.ResolveIdentity(ctx, token)
	if !ok {
		return core.User{}, core.Unauthenticated("authentication required")
	}
	if err := RequireRole(u, roles...); err != nil {
		return core.User{}, err
	}
	return u, nil
}

// RequireRole fails with Forbidden when roles is non-empty and u holds none
// of them.
func RequireRole(u core.User, roles ...core.Role) error {
	if len(roles) == 0 || u.Role.In(roles...) {
		return nil
	}
	return core.Forbidden("role %s may not perform this action", u.Role)
}

// Refresh reissues a still-valid token once it is older than the refresh
// age, extending the session. It returns false when no new token is needed.
func (g *Guard) Refresh(token string) (string, time.Time, bool) {
	claims, err := g.parse(token)
	if err != nil || claims.IssuedAt == nil {
		return "", time.Time{}, false
	}
	if g.now().Sub(claims.IssuedAt.Time) < g.refreshAfter {
		return "", time.Time{}, false
	}
	signed, expires, err := g.Issue(core.User{ID: claims.UserID, Username: claims.Username, Role: claims.Role})
	if err != nil {
		return "", time.Time{}, false
	}
	return signed, expires, true
}

// Session is the outcome of a successful login.
type Session struct {
	User      core.User
	Token     string
	ExpiresAt time.Time
}

// Login checks credentials and issues a token.
func (g *Guard) Login(ctx context.Context, username, password string) (Session, error) {
	invalid := core.Unauthenticated("invalid username or password")
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, invalid
	}

	var u core.User
	var found bool
	err := g.store.View(ctx, func(tx store.Tx) error {
		var err error
		u, found, err = store.First(tx.FindUsers(ctx, store.Filter{Username: username}))
		return err
	})
	if err != nil {
		return Session{}, core.StoreFailure("find user", err)
	}
	if !found {
		// keep timing close to the found path
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return Session{}, invalid
	}
	if !CheckPassword(u.PasswordHash, password) {
		return Session{}, invalid
	}

	token, expires, err := g.Issue(u)
	if err != nil {
		return Session{}, err
	}
	slog.InfoContext(ctx, "User logged in", "user_id", u.ID, "role", u.Role)
	return Session{User: u, Token: token, ExpiresAt: expires}, nil
}
