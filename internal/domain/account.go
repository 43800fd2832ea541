package domain

import "time"

type StaffRole string

const (
	StaffRoleAdmin  StaffRole = "admin"
	StaffRoleDriver StaffRole = "driver"
)

func (r StaffRole) Valid() bool {
	return r == StaffRoleAdmin || r == StaffRoleDriver
}

// Account is the row shape shared by customers and staff. Email is stored
// lowercased, RefreshTokenHash is a peppered digest and never a raw token.
type Account struct {
	ID               int64      `gorm:"primaryKey" json:"id"`
	Username         string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Email            string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	HashedPassword   string     `gorm:"type:varchar(255);not null" json:"-"`
	RefreshTokenHash *string    `gorm:"type:varchar(128)" json:"-"`
	EmailVerified    bool       `gorm:"not null;default:false" json:"email_verified"`
	OTPHash          *string    `gorm:"column:otp_hash;type:varchar(128)" json:"-"`
	OTPExpiresAt     *time.Time `gorm:"column:otp_expires_at" json:"-"`
	Role             string     `gorm:"type:varchar(20);not null;default:''" json:"role,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Customer and Staff give the shared row its own table, and with it its own
// index names.
type Customer struct {
	Account
}

func (Customer) TableName() string { return TableCustomers }

type Staff struct {
	Account
}

func (Staff) TableName() string { return TableStaff }

const (
	TableCustomers = "customers"
	TableStaff     = "staff"
)

// PublicAccount is what /me and login responses expose.
type PublicAccount struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Role:      a.Role,
		CreatedAt: a.CreatedAt,
	}
}
