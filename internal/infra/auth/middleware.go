package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/aegis-guard/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — интерфейс проверки токена, за которым прячется
// конкретная криптография. Консоли достаточно клеймов.
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

type ctxKey string

const (
	ctxUserID ctxKey = "user_id"
	ctxScopes ctxKey = "user_scopes"
)

// UserID достает идентификатор оператора из контекста запроса.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxUserID).(string)
	return id
}

// Scopes достает права оператора из контекста запроса.
func Scopes(ctx context.Context) map[string]bool {
	scopes, _ := ctx.Value(ctxScopes).(map[string]bool)
	return scopes
}

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), ctxScopes, claims.Scopes)
			ctx = context.WithValue(ctx, ctxUserID, claims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope пропускает запрос только при наличии нужного права
// (или admin). Вешается поверх NewMiddleware на отдельные маршруты.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scopes := Scopes(r.Context())
			if !scopes["admin"] && !scopes[scope] {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
