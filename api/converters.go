package api

import "time"

// Request bodies for the HTTP layer. Domain types double as responses,
// so only inbound shapes live here.

type CreateFamilyRequest struct {
	ChildID   string `json:"childId" binding:"required"`
	ChildName string `json:"childName" binding:"required"`
}

type JoinFamilyRequest struct {
	Code string `json:"code" binding:"required"`
	// Role defaults to member when omitted.
	Role Role `json:"role,omitempty"`
}

type UpdateMemberRoleRequest struct {
	Role Role `json:"role" binding:"required"`
}

type CreateGuestInviteRequest struct {
	ChildID  string `json:"childId" binding:"required"`
	FamilyID string `json:"familyId" binding:"required"`
	// ExpiresInHours defaults to 24 when omitted.
	ExpiresInHours int  `json:"expiresInHours,omitempty"`
	Babysitter     bool `json:"babysitter,omitempty"`
}

func (r CreateGuestInviteRequest) Expiry() time.Duration {
	return time.Duration(r.ExpiresInHours) * time.Hour
}

type RedeemInviteRequest struct {
	Code string `json:"code" binding:"required"`
}

type CreateChildRequest struct {
	Name      string     `json:"name" binding:"required"`
	BirthDate *time.Time `json:"birthDate,omitempty"`
}

type UpdateChildRequest struct {
	Name      string     `json:"name,omitempty"`
	BirthDate *time.Time `json:"birthDate,omitempty"`
}

type RecordEventRequest struct {
	ChildID   string     `json:"childId" binding:"required"`
	Kind      EventKind  `json:"kind" binding:"required"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Amount    *float64   `json:"amount,omitempty"`
	Unit      string     `json:"unit,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// Event converts the request into the domain shape. The recording
// service fills in identity and timestamps.
func (r RecordEventRequest) Event() TrackEvent {
	e := TrackEvent{
		ChildID: r.ChildID,
		Kind:    r.Kind,
		EndedAt: r.EndedAt,
		Amount:  r.Amount,
		Unit:    r.Unit,
		Notes:   r.Notes,
	}
	if r.StartedAt != nil {
		e.StartedAt = *r.StartedAt
	}
	return e
}

type StartTimerRequest struct {
	ChildID string    `json:"childId" binding:"required"`
	Kind    EventKind `json:"kind" binding:"required"`
}

type PushTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type InviteCodeResponse struct {
	Code string `json:"code"`
}

type PhotoResponse struct {
	URL string `json:"url"`
}
