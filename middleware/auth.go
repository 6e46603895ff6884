package middleware

import (
	"strings"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"github.com/labstack/echo/v4"
)

const principalKey = "principal"

// TokenValidator checks a bearer token issued for role.
type TokenValidator interface {
	ValidateJWT(role utils.Role, token string) (*utils.Principal, error)
}

// RequireRole rejects requests that do not carry a valid bearer token for
// role, and attaches the caller to the context otherwise.
func RequireRole(tokens TokenValidator, role utils.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return utils.NewUnauthorizedError("Missing authorization header")
			}

			tokenParts := strings.SplitN(authHeader, " ", 2)
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" || tokenParts[1] == "" {
				return utils.NewUnauthorizedError("Invalid authorization header format")
			}

			principal, err := tokens.ValidateJWT(role, tokenParts[1])
			if err != nil {
				return utils.NewUnauthorizedError("Invalid or expired token")
			}

			c.Set(principalKey, principal)
			return next(c)
		}
	}
}

// PrincipalFrom returns the caller set by RequireRole.
func PrincipalFrom(c echo.Context) (*utils.Principal, bool) {
	p, ok := c.Get(principalKey).(*utils.Principal)
	return p, ok && p != nil
}

// SetPrincipal attaches p to c. Handler tests use it to skip token checks.
func SetPrincipal(c echo.Context, p *utils.Principal) {
	c.Set(principalKey, p)
}
