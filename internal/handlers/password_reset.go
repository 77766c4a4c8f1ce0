package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/amorii/internal/config"
	"github.com/example/amorii/internal/middleware"
	"github.com/example/amorii/internal/models"
	"github.com/example/amorii/internal/utils"
)

// PasswordResetHandler manages forgot-password endpoints.
type PasswordResetHandler struct {
	db  *gorm.DB
	cfg *config.Config
	sms SMSSender
}

// NewPasswordResetHandler constructs a PasswordResetHandler.
func NewPasswordResetHandler(db *gorm.DB, cfg *config.Config, sms SMSSender) *PasswordResetHandler {
	return &PasswordResetHandler{db: db, cfg: cfg, sms: sms}
}

type forgotPasswordRequest struct {
	Phone string `json:"phone" validate:"required"`
}

// ForgotPassword stores a reset code, sends it by SMS and returns a reset
// token scoped to the phone number.
func (h *PasswordResetHandler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return validationRes(c, errs)
	}

	phone, err := utils.NormalizePhone(req.Phone, h.cfg.PhoneRegion)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("phone %s is not valid", req.Phone))
	}

	db := h.db.WithContext(c.UserContext())

	user, err := h.findResettableUser(db, phone)
	if err != nil {
		return err
	}

	code, err := utils.GenerateResetCode()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate code")
	}

	user.SetResetCode(code, time.Now().Add(h.cfg.ResetTokenTTL))
	if err := db.Save(user).Error; err != nil {
		return err
	}

	resetToken, err := utils.GenerateResetToken(h.cfg.JWTSecret, user.Phone, h.cfg.ResetTokenTTL)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	dispatchSMS(h.sms, user.Phone, fmt.Sprintf("Your Amorii password reset code is %s", code))

	return okRes(c, fiber.Map{
		"user":       user.Sanitize(),
		"resetToken": resetToken,
	})
}

type newPasswordRequest struct {
	ResetPassword string `json:"resetPassword" validate:"required"`
	NewPassword   string `json:"newPassword" validate:"required,min=6,bcryptmax"`
}

// NewPassword sets a new password when the reset code matches and returns a
// fresh session token. A wrong code is consumed.
func (h *PasswordResetHandler) NewPassword(c *fiber.Ctx) error {
	var req newPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return validationRes(c, errs)
	}

	token := middleware.ExtractToken(c)
	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "please send reset token")
	}
	phone, err := utils.ParseResetToken(h.cfg.JWTSecret, token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}

	db := h.db.WithContext(c.UserContext())

	user, err := h.findResettableUser(db, phone)
	if err != nil {
		return err
	}

	if !user.ResetCodeMatches(req.ResetPassword, time.Now()) {
		user.ClearResetCode()
		if err := db.Save(user).Error; err != nil {
			return err
		}
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("the reset code %s is not correct", req.ResetPassword))
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}
	user.Password = hash
	user.ClearResetCode()
	if err := db.Save(user).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to update password")
	}

	sessionToken, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return okRes(c, fiber.Map{"token": sessionToken})
}

func (h *PasswordResetHandler) findResettableUser(db *gorm.DB, phone string) (*models.User, error) {
	var user models.User
	err := db.Where("phone = ? AND complete = ? AND active = ?", phone, true, true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("phone %s is not registered", phone))
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
