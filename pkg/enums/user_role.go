package enums

import "fmt"

// UserRole is the caller role carried in the access token.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleUser,
	UserRoleAdmin,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is known.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseUserRole validates the raw value.
func ParseUserRole(raw string) (UserRole, error) {
	candidate := UserRole(raw)
	if !candidate.IsValid() {
		return "", fmt.Errorf("unknown user role %q", raw)
	}
	return candidate, nil
}
