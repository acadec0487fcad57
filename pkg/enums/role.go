package enums

import "slices"

// Role is the platform-level role attached to every user.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleCompany    Role = "COMPANY"
	RoleAccountant Role = "ACCOUNTANT"
	RoleBroker     Role = "BROKER"
)

var validRoles = []Role{
	RoleAdmin,
	RoleCompany,
	RoleAccountant,
	RoleBroker,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	return slices.Contains(validRoles, r)
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	return parse(value, validRoles, "role")
}
