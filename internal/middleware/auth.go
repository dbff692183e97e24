package middleware

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/gamefusion/promptlog/internal/config"
	"github.com/gamefusion/promptlog/internal/response"
)

// RequireBearerToken accepts a request only when its Authorization header is
// exactly "Bearer <token>". Anything else is answered with 401 before the
// handler runs.
func RequireBearerToken(token string, logger zerolog.Logger) echo.MiddlewareFunc {
	expected := []byte("Bearer " + token)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := []byte(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" || subtle.ConstantTimeCompare(got, expected) != 1 {
				logger.Warn().
					Str("path", c.Request().URL.Path).
					Str("remote_ip", c.RealIP()).
					Bool("header_present", len(got) > 0).
					Msg("rejected bearer token")
				return response.Unauthorized(c)
			}
			return next(c)
		}
	}
}

// RequireBasicAuth checks HTTP basic credentials against the configured user
// and bcrypt hash. With no user configured every request is rejected.
func RequireBasicAuth(cfg config.AuthConfig) echo.MiddlewareFunc {
	user := []byte(cfg.BasicUser)
	hash := []byte(cfg.BasicPasswordHash)
	return echomw.BasicAuthWithConfig(echomw.BasicAuthConfig{
		Realm: "promptlog",
		Validator: func(u, p string, c echo.Context) (bool, error) {
			if len(user) == 0 {
				return false, nil
			}
			if subtle.ConstantTimeCompare([]byte(u), user) != 1 {
				return false, nil
			}
			return bcrypt.CompareHashAndPassword(hash, []byte(p)) == nil, nil
		},
	})
}
