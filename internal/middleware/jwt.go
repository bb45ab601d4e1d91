package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
)

// identityKey is the echo context key holding the resolved model.Identity.
const identityKey = "identity"

// JWTAuth returns an Echo middleware that validates an HS256 bearer token and
// stores the caller's model.Identity in the context. Tokens without a subject
// or with a missing or unknown role claim are rejected with 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			id, msg := parseIdentity(raw, secret)
			if msg != "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg})
			}
			c.Set(identityKey, id)
			return next(c)
		}
	}
}

// OptionalJWT resolves an identity when a bearer token is present and lets
// anonymous requests through. A token that is present but invalid is still
// rejected so clients notice expired sessions.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return next(c)
			}
			id, msg := parseIdentity(raw, secret)
			if msg != "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg})
			}
			c.Set(identityKey, id)
			return next(c)
		}
	}
}

// IdentityFrom returns the identity stored by JWTAuth or OptionalJWT. The
// zero Identity is returned for anonymous requests.
func IdentityFrom(c echo.Context) model.Identity {
	id, _ := c.Get(identityKey).(model.Identity)
	return id
}

func bearer(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}

// parseIdentity verifies raw and maps its claims onto a model.Identity. A
// non-empty message means the token must be refused.
func parseIdentity(raw, secret string) (model.Identity, string) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return model.Identity{}, "invalid token"
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return model.Identity{}, "invalid claims"
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return model.Identity{}, "missing subject"
	}
	roleClaim, _ := claims["role"].(string)
	role, ok := model.ParseRole(roleClaim)
	if !ok {
		return model.Identity{}, "missing or unknown role"
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return model.Identity{UserID: sub, Role: role, Email: email, Name: name}, ""
}
