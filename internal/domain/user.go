package domain

// Role is issued by the external identity provider together with the user id.
// The core trusts the pair and performs no authentication of its own.
type Role string

const (
	RoleSeeker    Role = "seeker"
	RoleResponder Role = "responder"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSeeker, RoleResponder, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// Moderates reports whether the role carries moderation privileges.
func (r Role) Moderates() bool {
	return r == RoleModerator || r == RoleAdmin
}

// User is the identity-provider projection consumed by the core.
type User struct {
	Id   UserId `json:"id"`
	Role Role   `json:"role"`
}
