package models

import "time"

// UserRole enumerates the closed role set recognised by the authorization
// policy. Anything outside this list is denied by default.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleLecturer  UserRole = "LECTURER"
	RoleHOD       UserRole = "HOD"
	RoleAA        UserRole = "AA"
	RolePrincipal UserRole = "PRINCIPAL"
	RoleStudent   UserRole = "STUDENT"
)

// KnownRole reports whether the role is part of the closed enumeration.
func KnownRole(role UserRole) bool {
	switch role {
	case RoleAdmin, RoleLecturer, RoleHOD, RoleAA, RolePrincipal, RoleStudent:
		return true
	default:
		return false
	}
}

// User represents an application user stored in the users table. A user may
// hold several roles via the user_roles join table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	Roles []UserRole `db:"-" json:"roles"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
