package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/NordCoder/Flatwatch/internal/auth"
)

const operatorSubject = "operator"

type ctxKey int

const subjectKey ctxKey = 1

func SubjectFromCtx(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey).(string)
	return s, ok
}

// Auth exchanges the operator password for short-lived access tokens.
type Auth struct {
	PasswordHash string
	Issuer       *auth.Issuer
}

func (a *Auth) SignIn(password string) (string, time.Time, error) {
	if err := auth.CheckPassword(a.PasswordHash, password); err != nil {
		return "", time.Time{}, err
	}
	return a.Issuer.Issue(operatorSubject)
}

// Middleware rejects requests without a valid bearer token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := a.Issuer.Parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
