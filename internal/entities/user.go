package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleOwner   Role = "OWNER"
	RoleManager Role = "MANAGER"
	RoleDriver  Role = "DRIVER"
)

func (r Role) IsShopStaff() bool {
	return r == RoleOwner || r == RoleManager
}

type User struct {
	ID           int64  `db:"id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Role         Role   `db:"role"`
	ShopID       int64  `db:"shop_id"`
}

type Shop struct {
	ID                 int64           `db:"id"`
	Name               string          `db:"name"`
	AllowPrepayment    bool            `db:"allow_prepayment"`
	DefaultDeliveryFee decimal.Decimal `db:"default_delivery_fee"`
}

type Warehouse struct {
	ID      int64  `db:"id"`
	ShopID  int64  `db:"shop_id"`
	Code    string `db:"code"`
	Name    string `db:"name"`
	Address string `db:"address"`
}

type Device struct {
	ID             int64     `db:"id"`
	UserID         int64     `db:"user_id"`
	RegistrationID string    `db:"registration_id"`
	Active         bool      `db:"active"`
	CreatedAt      time.Time `db:"created_at"`
}
