package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"eventpass/internal/auth"
	"eventpass/internal/dto"
)

func LoggingMiddleware() gin.HandlerFunc {
	return func(c *ginext.Context) {
		start := time.Now()
		c.Next()

		ev := zlog.Logger.Info()
		if c.Writer.Status() >= 500 {
			ev = zlog.Logger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
}

// RequireAuth rejects requests without a live bearer token and stores the
// caller in the request context.
func RequireAuth(a Authenticator) gin.HandlerFunc {
	return func(c *ginext.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		p, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrMissingToken):
				dto.UnauthorizedError(c, "Authorization token is required")
			case errors.Is(err, auth.ErrTokenExpired):
				dto.UnauthorizedError(c, "Token has expired")
			case errors.Is(err, auth.ErrTokenRevoked), errors.Is(err, auth.ErrInvalidToken):
				dto.UnauthorizedError(c, "Invalid token")
			default:
				zlog.Logger.Error().Err(err).Msg("failed to authenticate request")
				dto.InternalServerError(c)
			}
			return
		}
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *ginext.Context) {
		p, ok := auth.PrincipalFrom(c.Request.Context())
		if !ok {
			dto.UnauthorizedError(c, "Authorization token is required")
			return
		}
		if !p.IsAdmin() {
			dto.ForbiddenError(c)
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
