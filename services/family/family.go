package family

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"nestling/api"
	"nestling/generator"
	"nestling/store"
)

var (
	ErrNotAuthorized  = errors.New("not authorized")
	ErrAlreadyMember  = errors.New("already a member of this family")
	ErrSelfRemoval    = errors.New("cannot remove yourself")
	ErrSelfRoleChange = errors.New("cannot change your own role")
	ErrInvalidRole    = errors.New("invalid role")
	ErrNoFamily       = errors.New("no family")
)

// Service owns the family membership state machine: creation, joining by
// invite code, leaving with admin handoff, and admin-only member
// mutations.
type Service interface {
	// Create starts a family for the caller's child with the caller as
	// sole admin. Idempotent: if the caller already has a family it is
	// returned unchanged.
	Create(ctx context.Context, ident api.Identity, childID, childName string) (*api.Family, error)

	// Join adds the caller to the family matching code with the given
	// role (member when empty). A caller already in a different family
	// leaves it first.
	Join(ctx context.Context, ident api.Identity, code string, role api.Role) (*api.Family, error)

	// Leave removes the caller from their family. If the caller was the
	// only admin the role is handed to a surviving member; an emptied
	// family stays behind adminless.
	Leave(ctx context.Context, ident api.Identity) error

	// RemoveMember deletes a member and strips their family link.
	// Admin-only; self-removal is blocked.
	RemoveMember(ctx context.Context, ident api.Identity, memberID string) error

	// UpdateMemberRole changes a member's role. Admin-only. Granting
	// admin demotes the caller in the same call so the family keeps a
	// single admin.
	UpdateMemberRole(ctx context.Context, ident api.Identity, memberID string, role api.Role) error

	// RegenerateInviteCode replaces the family's persistent invite code.
	// Admin-only.
	RegenerateInviteCode(ctx context.Context, ident api.Identity) (string, error)

	// GetForUser returns the caller's family, or ErrNoFamily.
	GetForUser(ctx context.Context, ident api.Identity) (*api.Family, error)
}

type service struct {
	store   store.Store
	newCode func() string
	now     func() time.Time
}

var _ Service = (*service)(nil)

func NewService(st store.Store) Service {
	return &service{
		store:   st,
		newCode: generator.InviteCode,
		now:     time.Now,
	}
}

// ensureUser backfills a user document from the verified identity. The
// mobile client normally writes one at signup, but nothing downstream
// should depend on that having happened.
func (s *service) ensureUser(ctx context.Context, ident api.Identity) (*api.User, error) {
	u, err := s.store.GetUser(ctx, ident.UserID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	u = &api.User{
		ID:          ident.UserID,
		DisplayName: ident.DisplayName,
		Email:       ident.Email,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user doc: %w", err)
	}
	return u, nil
}

func (s *service) Create(ctx context.Context, ident api.Identity, childID, childName string) (*api.Family, error) {
	u, err := s.ensureUser(ctx, ident)
	if err != nil {
		return nil, err
	}
	if u.FamilyID != "" {
		existing, err := s.store.GetFamily(ctx, u.FamilyID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		// Stale link to a deleted family; fall through and create fresh.
		log.Warn().Str("familyId", u.FamilyID).Str("userId", u.ID).Msg("user points at missing family")
	}

	now := s.now()
	family := &api.Family{
		CreatedBy:  ident.UserID,
		BabyID:     childID,
		BabyName:   childName,
		InviteCode: s.newCode(),
		Members:    map[string]api.FamilyMember{},
		CreatedAt:  now,
	}
	if err := s.store.CreateFamily(ctx, family); err != nil {
		return nil, fmt.Errorf("failed to create family: %w", err)
	}

	admin := api.FamilyMember{
		Role:        api.RoleAdmin,
		Name:        ident.DisplayName,
		Email:       ident.Email,
		JoinedAt:    now,
		AccessLevel: api.AccessFull,
	}
	if err := s.store.JoinFamily(ctx, family.ID, ident.UserID, admin, ""); err != nil {
		return nil, fmt.Errorf("failed to add creator to family: %w", err)
	}
	family.Members[ident.UserID] = admin
	return family, nil
}

func (s *service) Join(ctx context.Context, ident api.Identity, code string, role api.Role) (*api.Family, error) {
	// Joining never grants admin; that only happens through Create or an
	// explicit handoff. Guests come in through the invite service.
	switch role {
	case "":
		role = api.RoleMember
	case api.RoleMember, api.RoleViewer:
	default:
		return nil, ErrInvalidRole
	}
	family, err := s.store.GetFamilyByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	u, err := s.ensureUser(ctx, ident)
	if err != nil {
		return nil, err
	}
	if u.FamilyID == family.ID || family.HasMember(ident.UserID) {
		return nil, ErrAlreadyMember
	}

	member := api.FamilyMember{
		Role:        role,
		Name:        ident.DisplayName,
		Email:       ident.Email,
		JoinedAt:    s.now(),
		AccessLevel: api.AccessFull,
	}

	// A caller in a different family leaves it silently. When they were
	// its sole admin the handoff there needs its own commit, so the join
	// is two transactions instead of one; otherwise removal rides along
	// with the join.
	leaveID := u.FamilyID
	if leaveID != "" {
		prev, err := s.store.GetFamily(ctx, leaveID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if err == nil {
			if promote := s.successor(prev, ident.UserID); promote != "" {
				if err := s.store.LeaveFamily(ctx, leaveID, ident.UserID, promote); err != nil {
					return nil, fmt.Errorf("failed to leave previous family: %w", err)
				}
				leaveID = ""
			}
		} else {
			leaveID = ""
		}
	}

	if err := s.store.JoinFamily(ctx, family.ID, ident.UserID, member, leaveID); err != nil {
		return nil, fmt.Errorf("failed to join family: %w", err)
	}
	family.Members[ident.UserID] = member
	return family, nil
}

// successor picks who inherits admin when userID departs, or "" when no
// handoff is needed. Non-guest members are preferred; ties break on the
// lowest user ID so repeated runs agree.
func (s *service) successor(family *api.Family, userID string) string {
	m, ok := family.Members[userID]
	if !ok || m.Role != api.RoleAdmin {
		return ""
	}
	ids := make([]string, 0, len(family.Members))
	for id := range family.Members {
		if id != userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if family.Members[id].Role != api.RoleGuest {
			return id
		}
	}
	if len(ids) > 0 {
		return ids[0]
	}
	return ""
}

func (s *service) Leave(ctx context.Context, ident api.Identity) error {
	u, err := s.store.GetUser(ctx, ident.UserID)
	if err != nil {
		return err
	}
	if u.FamilyID == "" {
		return ErrNoFamily
	}
	family, err := s.store.GetFamily(ctx, u.FamilyID)
	if err != nil {
		return err
	}
	if !family.HasMember(ident.UserID) {
		return store.ErrNotFound
	}
	promote := s.successor(family, ident.UserID)
	return s.store.LeaveFamily(ctx, family.ID, ident.UserID, promote)
}

// adminFamily loads the caller's family and checks they hold the admin
// role.
func (s *service) adminFamily(ctx context.Context, ident api.Identity) (*api.Family, error) {
	u, err := s.store.GetUser(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}
	if u.FamilyID == "" {
		return nil, ErrNoFamily
	}
	family, err := s.store.GetFamily(ctx, u.FamilyID)
	if err != nil {
		return nil, err
	}
	if family.Members[ident.UserID].Role != api.RoleAdmin {
		return nil, ErrNotAuthorized
	}
	return family, nil
}

func (s *service) RemoveMember(ctx context.Context, ident api.Identity, memberID string) error {
	if memberID == ident.UserID {
		return ErrSelfRemoval
	}
	family, err := s.adminFamily(ctx, ident)
	if err != nil {
		return err
	}
	if !family.HasMember(memberID) {
		return store.ErrNotFound
	}
	return s.store.RemoveMember(ctx, family.ID, memberID)
}

func (s *service) UpdateMemberRole(ctx context.Context, ident api.Identity, memberID string, role api.Role) error {
	if memberID == ident.UserID {
		return ErrSelfRoleChange
	}
	family, err := s.adminFamily(ctx, ident)
	if err != nil {
		return err
	}
	if !family.HasMember(memberID) {
		return store.ErrNotFound
	}
	if role == api.RoleAdmin {
		// Admin handoff: demote the caller so only one admin remains.
		if err := s.store.SetMemberRole(ctx, family.ID, ident.UserID, api.RoleMember); err != nil {
			return fmt.Errorf("failed to demote current admin: %w", err)
		}
	}
	return s.store.SetMemberRole(ctx, family.ID, memberID, role)
}

func (s *service) RegenerateInviteCode(ctx context.Context, ident api.Identity) (string, error) {
	family, err := s.adminFamily(ctx, ident)
	if err != nil {
		return "", err
	}
	code := s.newCode()
	if err := s.store.SetInviteCode(ctx, family.ID, code); err != nil {
		return "", fmt.Errorf("failed to update invite code: %w", err)
	}
	return code, nil
}

func (s *service) GetForUser(ctx context.Context, ident api.Identity) (*api.Family, error) {
	u, err := s.store.GetUser(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}
	if u.FamilyID == "" {
		return nil, ErrNoFamily
	}
	return s.store.GetFamily(ctx, u.FamilyID)
}
