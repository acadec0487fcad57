package access

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
)

// Relationship describes how a principal relates to a target company.
type Relationship string

const (
	RelationshipNone   Relationship = "NONE"
	RelationshipOwner  Relationship = "OWNER"
	RelationshipLinked Relationship = "LINKED"
)

// Capability is ordered: a higher capability includes every lower one.
type Capability int

const (
	CapNone Capability = iota
	CapRead
	CapReadWrite
	CapAll
)

func (c Capability) String() string {
	switch c {
	case CapRead:
		return "read"
	case CapReadWrite:
		return "read_write"
	case CapAll:
		return "all"
	default:
		return "none"
	}
}

// Allows reports whether c satisfies need.
func (c Capability) Allows(need Capability) bool {
	return need > CapNone && c >= need
}

// ResolveAccess is the single decision table for company-scoped resources.
func ResolveAccess(role enums.Role, rel Relationship) Capability {
	switch role {
	case enums.RoleAdmin:
		return CapAll
	case enums.RoleCompany:
		if rel == RelationshipOwner {
			return CapReadWrite
		}
	case enums.RoleAccountant:
		if rel == RelationshipLinked {
			return CapReadWrite
		}
	}
	return CapNone
}

// Principal is the authenticated caller.
type Principal struct {
	UserID    uuid.UUID
	Email     string
	Role      enums.Role
	CompanyID *uuid.UUID
	BrokerID  *uuid.UUID
}

// IsZero reports whether no caller was authenticated.
func (p Principal) IsZero() bool {
	return p.UserID == uuid.Nil || !p.Role.IsValid()
}

func (p Principal) IsAdmin() bool {
	return p.Role == enums.RoleAdmin
}

// OwnsCompany reports whether p is a company user belonging to companyID.
func (p Principal) OwnsCompany(companyID uuid.UUID) bool {
	return p.Role == enums.RoleCompany && p.CompanyID != nil && *p.CompanyID == companyID
}
