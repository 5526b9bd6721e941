package model

// Role is the role claim carried by an authenticated caller.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
)

// Actor identifies the caller of a core operation.  It is supplied by the
// identity middleware, which has already verified the token.
type Actor struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
