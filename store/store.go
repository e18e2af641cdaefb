// Package store defines the persistence boundary for nestling. Services
// receive a Store instead of a raw client so the family state machine can
// be exercised deterministically in tests against the in-memory
// implementation under store/memstore.
package store

import (
	"context"
	"errors"
	"time"

	"nestling/api"
)

// ErrNotFound is returned when a document does not exist. Callers branch
// with errors.Is rather than matching message text.
var ErrNotFound = errors.New("not found")

type FamilyStore interface {
	GetFamily(ctx context.Context, id string) (*api.Family, error)
	// GetFamilyByCode looks a family up by its persistent invite code.
	GetFamilyByCode(ctx context.Context, code string) (*api.Family, error)
	// ListFamilies returns every family. Used by the expiry sweep.
	ListFamilies(ctx context.Context) ([]api.Family, error)
	// CreateFamily persists a new family and assigns its ID.
	CreateFamily(ctx context.Context, family *api.Family) error
	SetInviteCode(ctx context.Context, familyID, code string) error
	SetMember(ctx context.Context, familyID, userID string, member api.FamilyMember) error
	SetMemberRole(ctx context.Context, familyID, userID string, role api.Role) error
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*api.User, error)
	CreateUser(ctx context.Context, user *api.User) error
	SetPushToken(ctx context.Context, userID, token string) error
}

type InviteStore interface {
	GetInvite(ctx context.Context, code string) (*api.GuestInvite, error)
	CreateInvite(ctx context.Context, invite *api.GuestInvite) error
}

type ChildStore interface {
	GetChild(ctx context.Context, id string) (*api.Child, error)
	CreateChild(ctx context.Context, child *api.Child) error
	UpdateChild(ctx context.Context, child *api.Child) error
	SetChildPhotoURL(ctx context.Context, childID, url string) error
	ListChildrenByParent(ctx context.Context, parentID string) ([]api.Child, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *api.Notification) error
	GetNotification(ctx context.Context, id string) (*api.Notification, error)
	ListNotifications(ctx context.Context, userID string) ([]api.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

type EventStore interface {
	CreateEvent(ctx context.Context, event *api.TrackEvent) error
	GetEvent(ctx context.Context, id string) (*api.TrackEvent, error)
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, childID string, from, to time.Time) ([]api.TrackEvent, error)
	CreateTimer(ctx context.Context, timer *api.TimerSession) error
	GetTimer(ctx context.Context, id string) (*api.TimerSession, error)
	EndTimer(ctx context.Context, id string, at time.Time) error
	ActiveTimers(ctx context.Context, childID string) ([]api.TimerSession, error)
}

// MembershipStore holds the multi-document mutations of the sharing state
// machine. Each call commits atomically; the partial states the sequential
// client writes could leave behind are not reachable through this
// interface.
type MembershipStore interface {
	// JoinFamily adds member to familyID and points the user document at
	// it. When leaveFamilyID is non-empty the user's entry there is
	// removed in the same commit.
	JoinFamily(ctx context.Context, familyID, userID string, member api.FamilyMember, leaveFamilyID string) error
	// LeaveFamily removes the member and clears the user's family link.
	// When promoteID is non-empty that member becomes admin in the same
	// commit.
	LeaveFamily(ctx context.Context, familyID, userID, promoteID string) error
	// RemoveMember removes the member and clears the target user's family
	// link.
	RemoveMember(ctx context.Context, familyID, userID string) error
	// JoinAsGuest adds the guest member, records the grant on the user
	// document, and marks the invite used.
	JoinAsGuest(ctx context.Context, code, familyID, userID string, member api.FamilyMember, grant api.GuestAccess) error
	// RevokeGuest removes the guest member and the user's grant.
	RevokeGuest(ctx context.Context, familyID, userID string) error
}

// Store is everything the services need from persistence.
type Store interface {
	FamilyStore
	UserStore
	InviteStore
	ChildStore
	NotificationStore
	EventStore
	MembershipStore
}
