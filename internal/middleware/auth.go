package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/amorii/internal/config"
	"github.com/example/amorii/internal/models"
	"github.com/example/amorii/internal/utils"
)

const userContextKey = "currentUser"

// ExtractToken reads a token from the "token" header, falling back to
// "Authorization: Bearer <token>".
func ExtractToken(c *fiber.Ctx) string {
	if token := strings.TrimSpace(c.Get("token")); token != "" {
		return token
	}

	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// AuthMiddleware validates session tokens and loads the authenticated user into context.
// Only active users who finished registration get through.
func AuthMiddleware(cfg *config.Config, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := ExtractToken(c)
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing token")
		}

		userID, err := utils.ParseToken(cfg.JWTSecret, token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "user does not exist")
			}
			return err
		}

		if !user.Complete {
			return fiber.NewError(fiber.StatusForbidden, "registration is not complete")
		}
		if !user.Active {
			return fiber.NewError(fiber.StatusForbidden, "account is disabled")
		}

		c.Locals(userContextKey, &user)
		return c.Next()
	}
}

// GetCurrentUser returns the user attached by AuthMiddleware.
func GetCurrentUser(c *fiber.Ctx) (*models.User, bool) {
	user, ok := c.Locals(userContextKey).(*models.User)
	return user, ok && user != nil
}
