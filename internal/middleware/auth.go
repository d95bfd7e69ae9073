package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/services/jwttoken"
)

type SubjectKey struct{}

const TokenCookieName = "token"

// Auth accepts the token from the Authorization header (Bearer or Token
// scheme) or from the token cookie.
func Auth(secretKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
			accessToken := tokenFromRequest(req)
			if accessToken == "" {
				resp.WriteHeader(http.StatusUnauthorized)
				return
			}

			subject, err := jwttoken.Parse(secretKey, accessToken)
			if err != nil {
				resp.WriteHeader(http.StatusUnauthorized)
				return
			}

			req = req.WithContext(context.WithValue(req.Context(), SubjectKey{}, subject))

			next.ServeHTTP(resp, req)
		})
	}
}

func tokenFromRequest(req *http.Request) string {
	if header := req.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && (strings.EqualFold(scheme, "Bearer") || strings.EqualFold(scheme, "Token")) {
			return strings.TrimSpace(token)
		}

		return ""
	}

	tokenCookie, err := req.Cookie(TokenCookieName)
	if err != nil {
		return ""
	}

	return tokenCookie.Value
}

// RequireRole lets through only subjects with one of roles. It must run
// after Auth.
func RequireRole(roles ...entities.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
			subject, ok := SubjectFromContext(req.Context())
			if !ok {
				resp.WriteHeader(http.StatusUnauthorized)
				return
			}

			if !slices.Contains(roles, subject.Role) {
				resp.WriteHeader(http.StatusForbidden)
				return
			}

			next.ServeHTTP(resp, req)
		})
	}
}

func SubjectFromContext(ctx context.Context) (jwttoken.Subject, bool) {
	subject, ok := ctx.Value(SubjectKey{}).(jwttoken.Subject)
	return subject, ok
}
