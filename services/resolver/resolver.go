package resolver

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"nestling/api"
	"nestling/store"
)

// Service rebuilds the flat child list the app switches between. The
// list is a projection of owned children, the caller's family
// membership, and any unexpired guest grants; it is never persisted.
type Service interface {
	// Resolve returns the caller's reachable children: directly owned
	// children first, then the family child, then guest-access children.
	// Guest grants whose expiry has passed are dropped. The first entry
	// is the client's default active selection.
	Resolve(ctx context.Context, ident api.Identity) ([]api.ActiveChild, error)
}

type service struct {
	store store.Store
	now   func() time.Time
}

var _ Service = (*service)(nil)

func NewService(st store.Store) Service {
	return &service{
		store: st,
		now:   time.Now,
	}
}

func (s *service) Resolve(ctx context.Context, ident api.Identity) ([]api.ActiveChild, error) {
	out := make([]api.ActiveChild, 0)
	seen := map[string]bool{}

	owned, err := s.store.ListChildrenByParent(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}
	for _, c := range owned {
		out = append(out, api.ActiveChild{
			ChildID:     c.ID,
			Name:        c.Name,
			PhotoURL:    c.PhotoURL,
			Role:        api.RelationParent,
			AccessLevel: api.AccessFull,
		})
		seen[c.ID] = true
	}

	u, err := s.store.GetUser(ctx, ident.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	if u.FamilyID != "" {
		entry, err := s.familyChild(ctx, u.FamilyID, ident.UserID)
		if err != nil {
			return nil, err
		}
		if entry != nil && !seen[entry.ChildID] {
			out = append(out, *entry)
			seen[entry.ChildID] = true
		}
	}

	now := s.now()
	familyIDs := make([]string, 0, len(u.GuestAccess))
	for id := range u.GuestAccess {
		familyIDs = append(familyIDs, id)
	}
	sort.Strings(familyIDs)
	for _, familyID := range familyIDs {
		grant := u.GuestAccess[familyID]
		if grant.ExpiresAt != nil && now.After(*grant.ExpiresAt) {
			continue
		}
		if seen[grant.ChildID] {
			continue
		}
		entry := api.ActiveChild{
			ChildID:     grant.ChildID,
			Role:        api.RelationGuest,
			AccessLevel: grant.AccessLevel,
			FamilyID:    familyID,
		}
		if child, err := s.store.GetChild(ctx, grant.ChildID); err == nil {
			entry.Name = child.Name
			entry.PhotoURL = child.PhotoURL
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		out = append(out, entry)
		seen[grant.ChildID] = true
	}

	return out, nil
}

// familyChild projects the child of the caller's family membership, or
// nil when the family link is stale.
func (s *service) familyChild(ctx context.Context, familyID, userID string) (*api.ActiveChild, error) {
	family, err := s.store.GetFamily(ctx, familyID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn().Str("familyId", familyID).Str("userId", userID).Msg("user points at missing family")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	member, ok := family.Members[userID]
	if !ok || family.BabyID == "" {
		return nil, nil
	}
	if member.ExpiresAt != nil && s.now().After(*member.ExpiresAt) {
		return nil, nil
	}

	relation := api.RelationParent
	if member.Role == api.RoleGuest {
		relation = api.RelationGuest
	}
	entry := &api.ActiveChild{
		ChildID:     family.BabyID,
		Name:        family.BabyName,
		Role:        relation,
		AccessLevel: member.AccessLevel,
		FamilyID:    family.ID,
	}
	if child, err := s.store.GetChild(ctx, family.BabyID); err == nil {
		entry.Name = child.Name
		entry.PhotoURL = child.PhotoURL
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return entry, nil
}
