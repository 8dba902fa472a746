package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/foodmarket/internal/domain/auth"
	"github.com/xenking/foodmarket/pkg/httpmiddleware"
)

// Authenticate rejects requests without a valid bearer token and stores the
// verified identity in the request context.
func Authenticate(v auth.Verifier) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w)
				return
			}
			id, err := v.Verify(r.Context(), token)
			if err != nil {
				zctx.From(r.Context()).Debug("Token rejected", zap.Error(err))
				unauthorized(w)
				return
			}

			ctx := auth.WithIdentity(r.Context(), id)
			ctx = zctx.With(ctx, zap.String("user_id", id.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectKey buckets rate limits by authenticated subject, falling back to
// the client address.
func SubjectKey(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok {
		return "user:" + id.Subject
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="foodmarket"`)
	httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthenticated")
}

// identity returns the caller set by Authenticate.
func identity(r *http.Request) *auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}
