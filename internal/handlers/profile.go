package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/amorii/internal/config"
	"github.com/example/amorii/internal/middleware"
	"github.com/example/amorii/internal/models"
	"github.com/example/amorii/internal/utils"
)

// ProfileHandler manages the authenticated user's own account.
type ProfileHandler struct {
	db  *gorm.DB
	cfg *config.Config
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(db *gorm.DB, cfg *config.Config) *ProfileHandler {
	return &ProfileHandler{db: db, cfg: cfg}
}

// GetProfile returns the authenticated user.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return okRes(c, user.Sanitize())
}

type editUserRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewName     string `json:"newName" validate:"required,max=120"`
	NewPassword string `json:"newPassword" validate:"required,min=6,bcryptmax"`
	NewPhone    string `json:"newPhone" validate:"required"`
}

// EditUser overwrites name, password and phone after checking the old password.
func (h *ProfileHandler) EditUser(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req editUserRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return validationRes(c, errs)
	}

	if !utils.CheckPassword(user.Password, req.OldPassword) {
		return fiber.NewError(fiber.StatusUnauthorized, "password invalid")
	}

	phone, err := utils.NormalizePhone(req.NewPhone, h.cfg.PhoneRegion)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("phone %s is not valid", req.NewPhone))
	}

	db := h.db.WithContext(c.UserContext())

	if phone != user.Phone {
		var taken int64
		if err := db.Model(&models.User{}).Where("phone = ? AND id <> ?", phone, user.ID).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("phone %s already exists", req.NewPhone))
		}
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	user.Name = req.NewName
	user.Password = hash
	user.Phone = phone
	if err := db.Save(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("phone %s already exists", req.NewPhone))
		}
		return err
	}

	return okRes(c, user.Sanitize())
}
