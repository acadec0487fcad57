package access

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
)

type linkChecker interface {
	LinkExists(ctx context.Context, accountantID, companyID uuid.UUID) (bool, error)
}

// Gate guards every company-scoped read and write.
type Gate struct {
	links linkChecker
}

func NewGate(links linkChecker) (*Gate, error) {
	if links == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "link checker required")
	}
	return &Gate{links: links}, nil
}

// Relationship derives how p relates to companyID.
func (g *Gate) Relationship(ctx context.Context, p Principal, companyID uuid.UUID) (Relationship, error) {
	switch p.Role {
	case enums.RoleCompany:
		if p.OwnsCompany(companyID) {
			return RelationshipOwner, nil
		}
	case enums.RoleAccountant:
		linked, err := g.links.LinkExists(ctx, p.UserID, companyID)
		if err != nil {
			return RelationshipNone, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check accountant link")
		}
		if linked {
			return RelationshipLinked, nil
		}
	}
	return RelationshipNone, nil
}

// Capability resolves p's capability over companyID.
func (g *Gate) Capability(ctx context.Context, p Principal, companyID uuid.UUID) (Capability, error) {
	if p.IsZero() {
		return CapNone, nil
	}
	if p.IsAdmin() {
		return ResolveAccess(p.Role, RelationshipNone), nil
	}
	rel, err := g.Relationship(ctx, p, companyID)
	if err != nil {
		return CapNone, err
	}
	return ResolveAccess(p.Role, rel), nil
}

// HasAccess reports whether p may at least read companyID's resources.
func (g *Gate) HasAccess(ctx context.Context, p Principal, companyID uuid.UUID) (bool, error) {
	capability, err := g.Capability(ctx, p, companyID)
	if err != nil {
		return false, err
	}
	return capability.Allows(CapRead), nil
}

// Require returns Unauthorized for anonymous callers and Forbidden when the
// resolved capability is below need.
func (g *Gate) Require(ctx context.Context, p Principal, companyID uuid.UUID, need Capability) error {
	if p.IsZero() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	capability, err := g.Capability(ctx, p, companyID)
	if err != nil {
		return err
	}
	if !capability.Allows(need) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "access to company denied")
	}
	return nil
}
