package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Profile mirrors an identity-provider subject locally.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:pr"`

	ID        string    `bun:"id,pk" json:"id"`
	Email     string    `bun:"email,notnull" json:"email"`
	FullName  string    `bun:"full_name" json:"full_name"`
	Role      Role      `bun:"role,notnull" json:"role"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Email  string
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
