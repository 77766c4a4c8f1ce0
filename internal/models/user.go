package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a shop customer identified by phone number.
type User struct {
	BaseModel
	Phone          string     `gorm:"uniqueIndex;not null" json:"phone"`
	Name           string     `json:"name"`
	Password       string     `gorm:"not null" json:"-"`
	Active         bool       `gorm:"not null" json:"active"`
	Complete       bool       `gorm:"not null" json:"complete"`
	OTP            *string    `gorm:"column:otp" json:"-"`
	OTPExpiresAt   *time.Time `gorm:"column:otp_expires_at" json:"-"`
	ResetPassword  *string    `gorm:"column:reset_password" json:"-"`
	ResetExpiresAt *time.Time `gorm:"column:reset_expires_at" json:"-"`
	Invoices       []Invoice  `json:"-"`
}

// UserResponse is the only user shape written to API responses.
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	Complete  bool      `json:"complete"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sanitize strips credentials and one-time codes from the user.
func (u *User) Sanitize() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Phone:     u.Phone,
		Name:      u.Name,
		Active:    u.Active,
		Complete:  u.Complete,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// SetOTP stores a one-time code valid until expiresAt.
func (u *User) SetOTP(code string, expiresAt time.Time) {
	u.OTP = &code
	u.OTPExpiresAt = &expiresAt
}

// ClearOTP consumes the pending one-time code.
func (u *User) ClearOTP() {
	u.OTP = nil
	u.OTPExpiresAt = nil
}

// OTPMatches reports whether code equals the stored, unexpired one-time code.
func (u *User) OTPMatches(code string, now time.Time) bool {
	return codeMatches(u.OTP, u.OTPExpiresAt, code, now)
}

// SetResetCode stores a password-reset code valid until expiresAt.
func (u *User) SetResetCode(code string, expiresAt time.Time) {
	u.ResetPassword = &code
	u.ResetExpiresAt = &expiresAt
}

// ClearResetCode consumes the pending reset code.
func (u *User) ClearResetCode() {
	u.ResetPassword = nil
	u.ResetExpiresAt = nil
}

// ResetCodeMatches reports whether code equals the stored, unexpired reset code.
func (u *User) ResetCodeMatches(code string, now time.Time) bool {
	return codeMatches(u.ResetPassword, u.ResetExpiresAt, code, now)
}

func codeMatches(stored *string, expiresAt *time.Time, code string, now time.Time) bool {
	if stored == nil || *stored == "" || code == "" {
		return false
	}
	if expiresAt != nil && now.After(*expiresAt) {
		return false
	}
	return *stored == code
}
