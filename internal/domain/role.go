package domain

import "time"

// Capability orders what an actor may do. Higher levels include every
// permission of the lower ones.
type Capability int

const (
	CapabilityUser Capability = iota
	CapabilityTechnician
	CapabilityAdmin
)

// AtLeast reports whether the capability meets the given minimum.
func (c Capability) AtLeast(min Capability) bool {
	return c >= min
}

func (c Capability) String() string {
	switch c {
	case CapabilityAdmin:
		return "admin"
	case CapabilityTechnician:
		return "technician"
	default:
		return "user"
	}
}

// Role is a grantable staff role.
type Role string

const (
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
)

// Valid reports whether the role is a known grantable value.
func (r Role) Valid() bool {
	return r == RoleTechnician || r == RoleAdmin
}

// Capability maps the role onto the capability ladder.
func (r Role) Capability() Capability {
	switch r {
	case RoleAdmin:
		return CapabilityAdmin
	case RoleTechnician:
		return CapabilityTechnician
	default:
		return CapabilityUser
	}
}

// RoleGrant is a stored role assignment for one actor.
type RoleGrant struct {
	ActorID   int64
	Role      Role
	GrantedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Actor is a messenger user the bot has seen at least once. The
// directory backs @username resolution for role and assign commands.
type Actor struct {
	ID       int64
	Username string
	LastSeen time.Time
}
