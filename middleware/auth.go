package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vitalog/points-engine/utils"
)

// Gin context keys set by AuthRequired for downstream handlers.
const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
)

// AuthRequired gates user-facing endpoints on a valid product JWT and
// exposes the token identity through the context keys above.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, code, msg := bearerToken(ctx)
		if code != 0 {
			utils.Error(ctx, http.StatusUnauthorized, code, msg)
			ctx.Abort()
			return
		}

		claims, err := utils.ParseToken(token)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextUsernameKey, claims.Username)
		ctx.Next()
	}
}

// bearerToken extracts the token from the Authorization header. A zero code
// means the header was well formed.
func bearerToken(ctx *gin.Context) (token string, code int, msg string) {
	header := ctx.GetHeader("Authorization")
	if header == "" {
		return "", 40101, "authorization header missing"
	}

	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", 40102, "authorization header is not a bearer token"
	}

	token = strings.TrimSpace(rest)
	if token == "" {
		return "", 40103, "empty bearer token"
	}
	return token, 0, ""
}
