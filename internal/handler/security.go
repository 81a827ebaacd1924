package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/artisan-checkout/internal/domain/auth"
)

// Security authenticates requests by their bearer session token.
type Security struct {
	tokens *auth.Tokens
}

// NewSecurity creates a Security validating tokens with t.
func NewSecurity(t *auth.Tokens) *Security {
	return &Security{tokens: t}
}

// Require rejects requests without a valid bearer token with 401. Accepted
// requests carry the auth.Session in their context and a user_id log field.
func (s *Security) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearer(r)
		if !ok {
			writeError(w, r, auth.ErrUnauthenticated)
			return
		}
		sess, err := s.tokens.Parse(raw)
		if err != nil {
			zctx.From(r.Context()).Debug("Rejected session token", zap.Error(err))
			writeError(w, r, auth.ErrUnauthenticated)
			return
		}

		ctx := auth.WithSession(r.Context(), sess)
		ctx = zctx.With(ctx, zap.String("user_id", sess.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
