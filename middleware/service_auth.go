package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vitalog/points-engine/config"
	"github.com/vitalog/points-engine/utils"
)

// ServiceTokenHeader carries the shared token feature modules use to call
// internal endpoints.
const ServiceTokenHeader = "X-Service-Token"

// ServiceAuthRequired guards module-to-module endpoints such as awarding.
// End users never hold a service token; their surface is the JWT one.
func ServiceAuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := strings.TrimSpace(ctx.GetHeader(ServiceTokenHeader))
		if token == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40110, "service token missing")
			ctx.Abort()
			return
		}

		if !validServiceToken(token) {
			utils.Error(ctx, http.StatusUnauthorized, 40111, "invalid service token")
			ctx.Abort()
			return
		}

		ctx.Next()
	}
}

func validServiceToken(token string) bool {
	for _, t := range config.Get().ServiceTokens {
		if t != "" && t == token {
			return true
		}
	}
	return false
}
