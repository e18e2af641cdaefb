// Package access answers "may this caller touch this child" for the
// services that read and write care data. A child is reachable as its
// parent, through the caller's family membership, or through an
// unexpired guest grant.
package access

import (
	"context"
	"errors"
	"time"

	"nestling/api"
	"nestling/store"
)

var ErrDenied = errors.New("no access to this child")

// Grant is the caller's effective relationship to a child.
type Grant struct {
	Relation    string
	AccessLevel api.AccessLevel
	FamilyID    string
}

// CanDelete reports whether the grant allows destructive edits.
// actions_only guests can log events but not remove them.
func (g Grant) CanDelete() bool {
	return g.AccessLevel == api.AccessFull
}

// Check resolves the caller's grant for childID at the given instant,
// or ErrDenied.
func Check(ctx context.Context, st store.Store, ident api.Identity, childID string, now time.Time) (Grant, error) {
	child, err := st.GetChild(ctx, childID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Grant{}, err
	}
	if child != nil && child.ParentID == ident.UserID {
		return Grant{Relation: api.RelationParent, AccessLevel: api.AccessFull}, nil
	}

	u, err := st.GetUser(ctx, ident.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return Grant{}, ErrDenied
	}
	if err != nil {
		return Grant{}, err
	}

	if u.FamilyID != "" {
		family, err := st.GetFamily(ctx, u.FamilyID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return Grant{}, err
		}
		if family != nil && family.BabyID == childID {
			if m, ok := family.Members[ident.UserID]; ok {
				if m.ExpiresAt == nil || now.Before(*m.ExpiresAt) {
					relation := api.RelationParent
					if m.Role == api.RoleGuest {
						relation = api.RelationGuest
					}
					return Grant{Relation: relation, AccessLevel: m.AccessLevel, FamilyID: family.ID}, nil
				}
			}
		}
	}

	for familyID, grant := range u.GuestAccess {
		if grant.ChildID != childID {
			continue
		}
		if grant.ExpiresAt != nil && now.After(*grant.ExpiresAt) {
			continue
		}
		return Grant{Relation: api.RelationGuest, AccessLevel: grant.AccessLevel, FamilyID: familyID}, nil
	}

	return Grant{}, ErrDenied
}
