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

// AuthHandler bundles dependencies for registration and login endpoints.
type AuthHandler struct {
	db  *gorm.DB
	cfg *config.Config
	sms SMSSender
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, sms SMSSender) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg, sms: sms}
}

type registerRequest struct {
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required,min=6,bcryptmax"`
	Name     string `json:"name" validate:"required,max=120"`
}

// Register creates an incomplete account and sends an OTP to the phone.
// Registering an incomplete phone again only issues a fresh OTP; the stored
// name and password are kept.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
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

	var user models.User
	err = db.Where("phone = ?", phone).First(&user).Error
	isNew := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !isNew {
		return err
	}
	if !isNew && user.Complete {
		return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("phone %s already exists", req.Phone))
	}

	code, err := utils.GenerateOTP()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate verification code")
	}
	user.SetOTP(code, time.Now().Add(h.cfg.OTPTTL))

	if isNew {
		passwordHash, hashErr := utils.HashPassword(req.Password)
		if hashErr != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
		}
		user.Phone = phone
		user.Name = req.Name
		user.Password = passwordHash
		user.Active = true
		user.Complete = false
		err = db.Create(&user).Error
	} else {
		err = db.Save(&user).Error
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("phone %s already exists", req.Phone))
	}
	if err != nil {
		return err
	}

	dispatchSMS(h.sms, user.Phone, fmt.Sprintf("Your Amorii verification code is %s", code))

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	data := fiber.Map{
		"user":  user.Sanitize(),
		"token": token,
	}
	if isNew {
		return createdRes(c, data)
	}
	return okRes(c, data)
}

type checkOTPRequest struct {
	OTP string `json:"otp" validate:"required,numeric,len=6"`
}

// CheckOTP completes registration when the submitted code matches.
// A wrong code is consumed, so the user has to register again for a new one.
func (h *AuthHandler) CheckOTP(c *fiber.Ctx) error {
	var req checkOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return validationRes(c, errs)
	}

	token := middleware.ExtractToken(c)
	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing token")
	}
	userID, err := utils.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}

	db := h.db.WithContext(c.UserContext())

	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "user does not exist")
		}
		return err
	}
	if user.Complete {
		return fiber.NewError(fiber.StatusConflict, "user already complete")
	}

	if !user.OTPMatches(req.OTP, time.Now()) {
		user.ClearOTP()
		if err := db.Save(&user).Error; err != nil {
			return err
		}
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("the OTP %s is not correct", req.OTP))
	}

	user.Complete = true
	user.ClearOTP()
	if err := db.Save(&user).Error; err != nil {
		return err
	}

	return okRes(c, fiber.Map{"user": user.Sanitize()})
}

type loginRequest struct {
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges phone and password for a session token.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
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

	var user models.User
	if err := h.db.WithContext(c.UserContext()).Where("phone = ?", phone).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		return err
	}

	if !user.Complete {
		return fiber.NewError(fiber.StatusForbidden, "registration is not complete")
	}
	if !user.Active {
		return fiber.NewError(fiber.StatusForbidden, "account is disabled")
	}

	if !utils.CheckPassword(user.Password, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return okRes(c, fiber.Map{"token": token})
}
