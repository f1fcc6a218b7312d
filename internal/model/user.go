package model

import "time"

// User roles. Admin users may inspect and transition any reservation;
// customers only ever see their own.
const (
	RoleAdmin    = "ADMIN"
	RoleCustomer = "CUSTOMER"
)

// User mirrors the users table. GatewayCustomerID stores the external
// payment gateway's customer identifier once one has been created for
// this user; it is empty until the first checkout.
type User struct {
	ID                uint64    `json:"id"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	Role              string    `json:"role"`
	GatewayCustomerID string    `json:"-"`
	IsActive          bool      `json:"isActive"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
