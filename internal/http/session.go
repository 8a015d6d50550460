package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"bottega/internal/core"
	"bottega/internal/log"
)

const (
	sessionCookie = "auth_token"
	// refreshHeader carries a reissued token for clients that do not keep
	// cookies.
	refreshHeader = "X-Auth-Token"
)

type identityKey struct{}

func withIdentity(ctx context.Context, u core.User) context.Context {
	return context.WithValue(ctx, identityKey{}, u)
}

// identityFrom returns the caller resolved by authenticate. Handlers
// outside the authenticated group see the zero user, which every ledger
// operation rejects.
func identityFrom(ctx context.Context) core.User {
	u, _ := ctx.Value(identityKey{}).(core.User)
	return u
}

// sessionToken reads the bearer header first, then the refresh header a
// cookieless client echoes back, then the session cookie.
func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if token := strings.TrimSpace(r.Header.Get(refreshHeader)); token != "" {
		return token
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// authenticate resolves the caller and slides the session forward when
// the token is old enough to be reissued.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		u, ok := s.guard.ResolveIdentity(r.Context(), token)
		if !ok {
			s.writeError(w, r, core.Unauthenticated("authentication required"))
			return
		}
		if fresh, expires, ok := s.guard.Refresh(token); ok {
			s.setSession(w, fresh, expires)
			w.Header().Set(refreshHeader, fresh)
		}

		ctx := withIdentity(r.Context(), u)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, u.ID, log.FieldRole, string(u.Role)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) setSession(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(expires.Sub(s.now()).Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
