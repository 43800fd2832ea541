package middleware

import (
	"net/http"
	"strings"

	"lazla/internal/pkg/jwt"
	"lazla/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	CtxAccountID     = "account_id"
	CtxPrincipalType = "principal_type"
	CtxRole          = "role"
)

// AccessVerifier is the part of the token service the middleware needs.
type AccessVerifier interface {
	VerifyAccess(token string) (*jwt.Claims, error)
}

// JWTAuth accepts a bearer access token for the given principal type and
// stores the account id, type and role in the gin context.
func JWTAuth(verifier AccessVerifier, principal jwt.PrincipalType) gin.HandlerFunc {
	return jwtAuth(verifier, principal, false)
}

// JWTAuthWS is JWTAuth that also reads ?access_token= for websocket upgrades,
// where browsers cannot set headers.
func JWTAuthWS(verifier AccessVerifier, principal jwt.PrincipalType) gin.HandlerFunc {
	return jwtAuth(verifier, principal, true)
}

func jwtAuth(verifier AccessVerifier, principal jwt.PrincipalType, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, code, msg := bearerToken(c, allowQuery)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, code, msg)
			c.Abort()
			return
		}

		claims, err := verifier.VerifyAccess(token)
		if err != nil || claims.Type != principal {
			response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(CtxAccountID, claims.AccountID)
		c.Set(CtxPrincipalType, string(claims.Type))
		c.Set(CtxRole, claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context, allowQuery bool) (token, code, msg string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if allowQuery {
			if q := strings.TrimSpace(c.Query("access_token")); q != "" {
				return q, "", ""
			}
		}
		return "", "AUTH_HEADER_MISSING", "authorization header is required"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", "INVALID_AUTH_FORMAT", "authorization header must be 'Bearer <token>'"
	}
	return strings.TrimSpace(parts[1]), "", ""
}

// AccountID returns the authenticated account id, or 0.
func AccountID(c *gin.Context) int64 {
	return c.GetInt64(CtxAccountID)
}
