package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yourorg/coinscope/internal/utils"
	"go.uber.org/zap"
)

// SessionIDKey is the gin context key holding the authenticated session ID
const SessionIDKey = "sessionID"

// TokenValidator resolves a session token to its session ID
type TokenValidator interface {
	Validate(tokenString string) (string, error)
}

// SessionAuth requires a session token issued for the session named by the
// :id route parameter. Browsers cannot set headers on websocket upgrades, so
// a token query parameter is accepted as well.
func SessionAuth(tokens TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			utils.AbortWithError(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		sessionID, err := tokens.Validate(tokenString)
		if err != nil {
			logger.Debug("token validation failed", zap.Error(err))
			utils.AbortWithError(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		if sessionID != c.Param("id") {
			logger.Debug("token issued for another session",
				zap.String("tokenSession", sessionID),
				zap.String("routeSession", c.Param("id")))
			utils.AbortWithError(c, http.StatusForbidden, "Token does not match session")
			return
		}

		c.Set(SessionIDKey, sessionID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		token := c.Query("token")
		return token, token != ""
	}

	headerParts := strings.Split(authHeader, " ")
	if len(headerParts) != 2 || headerParts[0] != "Bearer" || headerParts[1] == "" {
		return "", false
	}
	return headerParts[1], true
}
