package models

import "time"

type Role string

const (
	RoleGuest Role = "guest"
	RoleAdmin Role = "admin"
)

// User mirrors a Firebase Auth account. ID is the Firebase UID.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ContactSettings is the public contact block shown on the site and used as
// the reply-to for guest emails.
type ContactSettings struct {
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// OTPPurpose says which contact field a pending code will change.
type OTPPurpose string

const (
	OTPContactEmail OTPPurpose = "contact_email"
	OTPContactPhone OTPPurpose = "contact_phone"
)

// PendingOTP is an unconfirmed contact change awaiting its code.
type PendingOTP struct {
	AdminID   string     `json:"adminId"`
	Purpose   OTPPurpose `json:"purpose"`
	NewValue  string     `json:"newValue"`
	CodeHash  string     `json:"-"`
	Attempts  int        `json:"attempts"`
	SentAt    time.Time  `json:"sentAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}
