// Package domain contains core concepts of the messaging system.
// No runtime, network, or UI logic should be added here.
package domain

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

type TeamID string

// Profile is the read-only view of a user exposed by the directory.
type Profile struct {
	ID       string
	FullName string
	Email    string
	Role     Role
}

func (p Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}
