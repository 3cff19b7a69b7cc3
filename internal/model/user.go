package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin         Role = "admin"
	RoleCompany       Role = "company"
	RoleCorrespondent Role = "correspondent"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCompany, RoleCorrespondent:
		return true
	default:
		return false
	}
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
	UserStatusPending  UserStatus = "pending"
)

type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Role      Role
	Status    UserStatus
	CreatedAt time.Time
}

// Principal is the authenticated actor of a call. ProfileID points at the
// Company or Correspondent owned by the user and is nil for admins.
type Principal struct {
	UserID    uuid.UUID
	Role      Role
	ProfileID *uuid.UUID
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func (p Principal) IsCompany() bool {
	return p.Role == RoleCompany
}

func (p Principal) IsCorrespondent() bool {
	return p.Role == RoleCorrespondent
}

// Owns reports whether the principal's profile is id.
func (p Principal) Owns(id uuid.UUID) bool {
	return p.ProfileID != nil && *p.ProfileID == id
}
