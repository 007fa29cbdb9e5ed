package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
    "github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the token's subject into the request context as the opaque
// user identifier this service keys queue entries by.  Issuing tokens is
// the identity collaborator's job; this service only verifies the
// signature and extracts the subject.  Handlers on protected routes read
// the identity via `c.Get("user_id")`.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        // The returned handler is invoked for each incoming HTTP request.
        return func(c echo.Context) error {
            // A valid Authorization header starts with "Bearer " followed
            // by the JWT.  Anything else is rejected outright.
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            // Parse with the HS256 signing method and our shared secret.
            // Tokens signed with any other algorithm are rejected.
            tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
                if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
                    return nil, echo.ErrUnauthorized
                }
                return []byte(secret), nil
            })
            if err != nil || !tok.Valid {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }

            claims, ok := tok.Claims.(jwt.MapClaims)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
            }

            // The subject claim is the caller's opaque identifier.  A
            // token without one is useless to the admission flow.
            sub, _ := claims["sub"].(string)
            if sub == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token missing subject"})
            }
            c.Set("user_id", sub)
            return next(c)
        }
    }
}
