package invite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"nestling/api"
	"nestling/generator"
	"nestling/services/notification"
	"nestling/store"
)

var (
	ErrNotAuthorized = errors.New("not authorized")
	ErrExpired       = errors.New("invite expired")
	ErrAlreadyUsed   = errors.New("invite already used")
	ErrSelfInvite    = errors.New("cannot join your own invite")
	ErrAlreadyMember = errors.New("already a member of this family")
	ErrChildMismatch = errors.New("child does not belong to this family")
	// ErrCodeSpaceExhausted is returned when code generation keeps
	// colliding with existing invites.
	ErrCodeSpaceExhausted = errors.New("could not generate a unique invite code")
)

const (
	// DefaultExpiry is applied when the caller doesn't pick a window.
	DefaultExpiry = 24 * time.Hour

	// one draw plus five retries on collision
	codeAttempts = 6
)

// Service issues and redeems time-limited guest invites. Guest invites
// live in their own collection, separate from the family's persistent
// invite code, and are single-use.
type Service interface {
	// CreateGuestInvite issues a code for childID scoped to familyID.
	// The caller must be an admin or member of the family; guests and
	// viewers cannot invite.
	CreateGuestInvite(ctx context.Context, ident api.Identity, childID, familyID string, expiresIn time.Duration, babysitter bool) (*api.GuestInvite, error)

	// JoinAsGuest redeems a code: the caller becomes a guest member with
	// actions_only access, the grant is recorded on their user document,
	// and the invite is marked used, all in one commit.
	JoinAsGuest(ctx context.Context, ident api.Identity, code string) (*api.Family, error)

	// RevokeGuestAccess removes a guest from the family and deletes
	// their grant. revokedBy must be the family's admin.
	RevokeGuestAccess(ctx context.Context, revokedBy api.Identity, userID, familyID string) error
}

type service struct {
	store    store.Store
	notifier notification.Service
	newCode  func() string
	now      func() time.Time
}

var _ Service = (*service)(nil)

func NewService(st store.Store, notifier notification.Service) Service {
	return &service{
		store:    st,
		notifier: notifier,
		newCode:  generator.InviteCode,
		now:      time.Now,
	}
}

func (s *service) CreateGuestInvite(ctx context.Context, ident api.Identity, childID, familyID string, expiresIn time.Duration, babysitter bool) (*api.GuestInvite, error) {
	family, err := s.store.GetFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	switch family.Members[ident.UserID].Role {
	case api.RoleAdmin, api.RoleMember:
	default:
		return nil, ErrNotAuthorized
	}
	// An invite can only grant access to the family's own child.
	if childID != family.BabyID {
		return nil, ErrChildMismatch
	}
	if expiresIn <= 0 {
		expiresIn = DefaultExpiry
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	inv := &api.GuestInvite{
		Code:       code,
		FamilyID:   familyID,
		ChildID:    childID,
		CreatedBy:  ident.UserID,
		Type:       "guest",
		CreatedAt:  now,
		ExpiresAt:  now.Add(expiresIn),
		Babysitter: babysitter,
	}
	if err := s.store.CreateInvite(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to persist invite: %w", err)
	}
	return inv, nil
}

// uniqueCode draws codes until one misses the invites collection. The
// check-then-create pair is not atomic, so two concurrent callers can
// still collide; the loser's join will fail validation later.
func (s *service) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code := s.newCode()
		_, err := s.store.GetInvite(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", ErrCodeSpaceExhausted
}

func (s *service) JoinAsGuest(ctx context.Context, ident api.Identity, code string) (*api.Family, error) {
	inv, err := s.store.GetInvite(ctx, code)
	if err != nil {
		return nil, err
	}
	if inv.Used {
		return nil, ErrAlreadyUsed
	}
	if s.now().After(inv.ExpiresAt) {
		return nil, ErrExpired
	}
	if inv.CreatedBy == ident.UserID {
		return nil, ErrSelfInvite
	}
	family, err := s.store.GetFamily(ctx, inv.FamilyID)
	if err != nil {
		return nil, err
	}
	if family.HasMember(ident.UserID) {
		return nil, ErrAlreadyMember
	}
	if _, err := s.store.GetUser(ctx, ident.UserID); errors.Is(err, store.ErrNotFound) {
		u := &api.User{
			ID:          ident.UserID,
			DisplayName: ident.DisplayName,
			Email:       ident.Email,
			CreatedAt:   s.now(),
		}
		if err := s.store.CreateUser(ctx, u); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	expiry := inv.ExpiresAt
	member := api.FamilyMember{
		Role:         api.RoleGuest,
		Name:         ident.DisplayName,
		Email:        ident.Email,
		JoinedAt:     s.now(),
		AccessLevel:  api.AccessActionsOnly,
		ExpiresAt:    &expiry,
		InvitedBy:    inv.CreatedBy,
		IsBabysitter: inv.Babysitter,
	}
	grant := api.GuestAccess{
		Role:        api.RoleGuest,
		ChildID:     inv.ChildID,
		AccessLevel: api.AccessActionsOnly,
		JoinedAt:    s.now(),
		ExpiresAt:   &expiry,
	}
	if err := s.store.JoinAsGuest(ctx, code, inv.FamilyID, ident.UserID, member, grant); err != nil {
		return nil, fmt.Errorf("failed to join as guest: %w", err)
	}

	if admin := family.Admin(); admin != "" && s.notifier != nil {
		err := s.notifier.Notify(ctx, admin, api.NotificationGuestJoined,
			"Guest joined",
			fmt.Sprintf("%s now has guest access to %s", ident.DisplayName, family.BabyName),
			map[string]string{"familyId": family.ID, "guestId": ident.UserID})
		if err != nil {
			log.Warn().Err(err).Str("familyId", family.ID).Msg("failed to notify admin of guest join")
		}
	}

	family.Members[ident.UserID] = member
	return family, nil
}

func (s *service) RevokeGuestAccess(ctx context.Context, revokedBy api.Identity, userID, familyID string) error {
	family, err := s.store.GetFamily(ctx, familyID)
	if err != nil {
		return err
	}
	if family.Members[revokedBy.UserID].Role != api.RoleAdmin {
		return ErrNotAuthorized
	}
	if !family.HasMember(userID) {
		return store.ErrNotFound
	}
	return s.store.RevokeGuest(ctx, familyID, userID)
}
