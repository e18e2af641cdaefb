package api

import "time"

// Role is a member's role within a family.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
	RoleGuest  Role = "guest"
)

// AccessLevel controls what a member can do with a child's data.
// Full members see and edit everything; actions_only members can log
// events but not browse history or settings.
type AccessLevel string

const (
	AccessFull        AccessLevel = "full"
	AccessActionsOnly AccessLevel = "actions_only"
)

// Identity is the authenticated caller, extracted from a verified ID token.
// Services take it explicitly instead of reading ambient auth state.
type Identity struct {
	UserID      string
	DisplayName string
	Email       string
}

// Family maps a child to the set of accounts that can see it.
// Members is keyed by user ID. Exactly one member holds RoleAdmin;
// if the sole admin leaves, the role moves to a surviving member.
type Family struct {
	ID         string                  `json:"id" firestore:"id"`
	CreatedBy  string                  `json:"createdBy" firestore:"createdBy"`
	BabyID     string                  `json:"babyId" firestore:"babyId"`
	BabyName   string                  `json:"babyName" firestore:"babyName"`
	InviteCode string                  `json:"inviteCode" firestore:"inviteCode"`
	Members    map[string]FamilyMember `json:"members" firestore:"members"`
	CreatedAt  time.Time               `json:"createdAt" firestore:"createdAt"`
}

// Admin returns the user ID of the family's admin, or "" if the family
// has been left adminless.
func (f *Family) Admin() string {
	for id, m := range f.Members {
		if m.Role == RoleAdmin {
			return id
		}
	}
	return ""
}

// HasMember reports whether userID is present in the member map.
func (f *Family) HasMember(userID string) bool {
	_, ok := f.Members[userID]
	return ok
}

type FamilyMember struct {
	Role         Role        `json:"role" firestore:"role" structs:"role"`
	Name         string      `json:"name" firestore:"name" structs:"name"`
	Email        string      `json:"email" firestore:"email" structs:"email"`
	JoinedAt     time.Time   `json:"joinedAt" firestore:"joinedAt" structs:"joinedAt,omitnested"`
	AccessLevel  AccessLevel `json:"accessLevel" firestore:"accessLevel" structs:"accessLevel"`
	ExpiresAt    *time.Time  `json:"expiresAt,omitempty" firestore:"expiresAt,omitempty" structs:"expiresAt,omitempty,omitnested"`
	InvitedBy    string      `json:"invitedBy,omitempty" firestore:"invitedBy,omitempty" structs:"invitedBy,omitempty"`
	IsBabysitter bool        `json:"isBabysitter,omitempty" firestore:"isBabysitter,omitempty" structs:"isBabysitter,omitempty"`
}

// GuestInvite is a single-use, time-limited code kept separate from the
// family's persistent invite code.
type GuestInvite struct {
	Code       string     `json:"code" firestore:"code"`
	FamilyID   string     `json:"familyId" firestore:"familyId"`
	ChildID    string     `json:"childId" firestore:"childId"`
	CreatedBy  string     `json:"createdBy" firestore:"createdBy"`
	Type       string     `json:"type" firestore:"type"`
	CreatedAt  time.Time  `json:"createdAt" firestore:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt" firestore:"expiresAt"`
	Babysitter bool       `json:"babysitter,omitempty" firestore:"babysitter,omitempty"`
	Used       bool       `json:"used" firestore:"used"`
	UsedBy     string     `json:"usedBy,omitempty" firestore:"usedBy,omitempty"`
	UsedAt     *time.Time `json:"usedAt,omitempty" firestore:"usedAt,omitempty"`
}

// GuestAccess is the per-family grant recorded on the guest's own user
// document so their client can resolve the shared child.
type GuestAccess struct {
	Role        Role        `json:"role" firestore:"role" structs:"role"`
	ChildID     string      `json:"childId" firestore:"childId" structs:"childId"`
	AccessLevel AccessLevel `json:"accessLevel" firestore:"accessLevel" structs:"accessLevel"`
	JoinedAt    time.Time   `json:"joinedAt" firestore:"joinedAt" structs:"joinedAt,omitnested"`
	ExpiresAt   *time.Time  `json:"expiresAt,omitempty" firestore:"expiresAt,omitempty" structs:"expiresAt,omitempty,omitnested"`
}

type User struct {
	ID          string                 `json:"id" firestore:"id"`
	DisplayName string                 `json:"displayName" firestore:"displayName"`
	Email       string                 `json:"email" firestore:"email"`
	FamilyID    string                 `json:"familyId,omitempty" firestore:"familyId,omitempty"`
	PushToken   string                 `json:"pushToken,omitempty" firestore:"pushToken,omitempty"`
	GuestAccess map[string]GuestAccess `json:"guestAccess,omitempty" firestore:"guestAccess,omitempty"`
	CreatedAt   time.Time              `json:"createdAt" firestore:"createdAt"`
}

type Child struct {
	ID        string     `json:"id" firestore:"id"`
	ParentID  string     `json:"parentId" firestore:"parentId"`
	Name      string     `json:"name" firestore:"name"`
	BirthDate *time.Time `json:"birthDate,omitempty" firestore:"birthDate,omitempty"`
	PhotoURL  string     `json:"photoUrl,omitempty" firestore:"photoUrl,omitempty"`
	CreatedAt time.Time  `json:"createdAt" firestore:"createdAt"`
}

// ActiveChild is the client-side aggregate the app switches between.
// It is rebuilt from family and guest-access data on demand and never
// persisted.
type ActiveChild struct {
	ChildID     string      `json:"childId"`
	Name        string      `json:"name"`
	PhotoURL    string      `json:"photoUrl,omitempty"`
	Role        string      `json:"role"`
	AccessLevel AccessLevel `json:"accessLevel"`
	FamilyID    string      `json:"familyId,omitempty"`
}

// Relationship values for ActiveChild.Role.
const (
	RelationParent = "parent"
	RelationGuest  = "guest"
)

// NotificationKind tags notification documents for client rendering.
type NotificationKind string

const (
	NotificationGuestExpired NotificationKind = "guest_expired"
	NotificationRatingPrompt NotificationKind = "rating_prompt"
	NotificationGuestJoined  NotificationKind = "guest_joined"
)

type Notification struct {
	ID        string            `json:"id" firestore:"id"`
	UserID    string            `json:"userId" firestore:"userId"`
	Kind      NotificationKind  `json:"kind" firestore:"kind"`
	Title     string            `json:"title" firestore:"title"`
	Body      string            `json:"body" firestore:"body"`
	Data      map[string]string `json:"data,omitempty" firestore:"data,omitempty"`
	Read      bool              `json:"read" firestore:"read"`
	CreatedAt time.Time         `json:"createdAt" firestore:"createdAt"`
}

// EventKind is the kind of tracked care event.
type EventKind string

const (
	EventFeeding       EventKind = "feeding"
	EventSleep         EventKind = "sleep"
	EventDiaper        EventKind = "diaper"
	EventPumping       EventKind = "pumping"
	EventBreastfeeding EventKind = "breastfeeding"
)

// TrackEvent is one logged care event for a child. Duration-style events
// (sleep, pumping, breastfeeding) carry an EndedAt; point events don't.
type TrackEvent struct {
	ID         string     `json:"id" firestore:"id"`
	ChildID    string     `json:"childId" firestore:"childId"`
	Kind       EventKind  `json:"kind" firestore:"kind"`
	RecordedBy string     `json:"recordedBy" firestore:"recordedBy"`
	StartedAt  time.Time  `json:"startedAt" firestore:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty" firestore:"endedAt,omitempty"`
	Amount     *float64   `json:"amount,omitempty" firestore:"amount,omitempty"`
	Unit       string     `json:"unit,omitempty" firestore:"unit,omitempty"`
	Notes      string     `json:"notes,omitempty" firestore:"notes,omitempty"`
	CreatedAt  time.Time  `json:"createdAt" firestore:"createdAt"`
}

// TimerSession is a running timer the live-status widget reads. Stopping
// a timer produces the corresponding TrackEvent.
type TimerSession struct {
	ID        string     `json:"id" firestore:"id"`
	ChildID   string     `json:"childId" firestore:"childId"`
	Kind      EventKind  `json:"kind" firestore:"kind"`
	StartedBy string     `json:"startedBy" firestore:"startedBy"`
	StartedAt time.Time  `json:"startedAt" firestore:"startedAt"`
	EndedAt   *time.Time `json:"endedAt" firestore:"endedAt"`
}
