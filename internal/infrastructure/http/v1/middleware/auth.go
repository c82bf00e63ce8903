package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"tablequery/internal/core/apperror"
	appctx "tablequery/internal/core/context"
)

// JWTValidator interface for token validation.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.Caller, error)
}

// Auth middleware validates bearer tokens and populates the caller context.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		caller, err := validator.ValidateToken(parts[1])
		if err != nil {
			_ = c.Error(apperror.NewUnauthorized("invalid token").WithCause(err))
			c.Abort()
			return
		}

		ctx := appctx.WithCaller(c.Request.Context(), caller)
		c.Request = c.Request.WithContext(ctx)
		c.Set("subject", caller.Subject)

		c.Next()
	}
}

// RequireTable rejects callers whose token does not grant the :table path parameter.
// Requests without a caller pass through: the server runs unauthenticated when
// no token validator is configured.
func RequireTable() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := appctx.GetCaller(c.Request.Context())
		if caller == nil {
			c.Next()
			return
		}

		table := c.Param("table")
		if !caller.CanQuery(table) {
			_ = c.Error(
				apperror.NewForbidden("table access denied").
					WithDetail("table", table).
					WithDetail("subject", caller.Subject),
			)
			c.Abort()
			return
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
