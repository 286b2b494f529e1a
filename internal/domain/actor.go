package domain

import "github.com/google/uuid"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

// Actor is the identity resolved by the auth collaborator. The zero value is anonymous.
type Actor struct {
	UserID *uuid.UUID
	Role   Role
}

func (a Actor) Authenticated() bool { return a.UserID != nil }

func (a Actor) IsStaff() bool { return a.Authenticated() && a.Role == RoleStaff }

// CanAccess reports whether the actor may act on the order. Guest orders are
// addressable by anyone holding the order id.
func (a Actor) CanAccess(o *Order) error {
	switch {
	case a.IsStaff(), o.IsGuest():
		return nil
	case !a.Authenticated():
		return ErrUnauthenticated
	case o.OwnedBy(*a.UserID):
		return nil
	default:
		return ErrForbidden
	}
}
