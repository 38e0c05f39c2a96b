package middleware

import (
	"fmt"
	"strings"

	"voiceout_server/pkg/apperr"
	"voiceout_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTAuth validates the bearer token and puts the tent ID into request
// locals. Tokens are HS256 signed with the shared secret.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		var tokenString string
		if authHeader := c.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
		if tokenString == "" {
			return apperr.Unauthorized("missing authorization")
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unsupported signing method: %v", token.Header["alg"])
			}
			if secret == "" {
				return nil, fmt.Errorf("JWT secret not configured")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			logger.WithError(err).Warn("JWT validation failed")
			return apperr.InvalidToken("invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return apperr.InvalidToken("invalid token claims")
		}

		tentID, err := tentIDFromClaims(claims)
		if err != nil {
			return apperr.InvalidToken(err.Error())
		}

		c.Locals("tent_id", tentID)
		c.Locals("claims", claims)
		return c.Next()
	}
}

func tentIDFromClaims(claims jwt.MapClaims) (uuid.UUID, error) {
	for _, key := range []string{"tent_id", "sub"} {
		raw, ok := claims[key].(string)
		if !ok || raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, fmt.Errorf("malformed %s claim", key)
		}
		return id, nil
	}
	return uuid.Nil, fmt.Errorf("missing tent identity claim")
}
