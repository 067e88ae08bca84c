package echo

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	vauth "go.velum.dev/vauth"
)

// tokenContextKey is the echo context key carrying the validated access token.
const tokenContextKey = "access_token"

// BearerAuth returns middleware that validates the Authorization bearer token
// against the token service and stores the resulting token and user identity
// on the request context. Protected resource endpoints, including
// extension-contributed ones, mount it per route group.
func BearerAuth(tokens *vauth.TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing_token"})
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_token"})
			}

			token, err := tokens.ValidateAccessToken(c.Request().Context(), parts[1])
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_token"})
			}

			c.Set(tokenContextKey, token)
			c.Set("user_id", token.UserID)
			return next(c)
		}
	}
}
