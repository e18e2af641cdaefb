// Package memstore is an in-memory store.Store used by service tests.
// It mirrors the Firestore implementation's semantics closely enough for
// the sharing state machine: map-keyed members, code-keyed invites, and
// atomic multi-document mutations under one lock.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"nestling/api"
	"nestling/store"
)

type Store struct {
	mu            sync.Mutex
	families      map[string]api.Family
	users         map[string]api.User
	invites       map[string]api.GuestInvite
	children      map[string]api.Child
	notifications map[string]api.Notification
	events        map[string]api.TrackEvent
	timers        map[string]api.TimerSession
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		families:      make(map[string]api.Family),
		users:         make(map[string]api.User),
		invites:       make(map[string]api.GuestInvite),
		children:      make(map[string]api.Child),
		notifications: make(map[string]api.Notification),
		events:        make(map[string]api.TrackEvent),
		timers:        make(map[string]api.TimerSession),
	}
}

func cloneFamily(f api.Family) api.Family {
	members := make(map[string]api.FamilyMember, len(f.Members))
	for id, m := range f.Members {
		members[id] = m
	}
	f.Members = members
	return f
}

func cloneUser(u api.User) api.User {
	if u.GuestAccess != nil {
		grants := make(map[string]api.GuestAccess, len(u.GuestAccess))
		for id, g := range u.GuestAccess {
			grants[id] = g
		}
		u.GuestAccess = grants
	}
	return u
}

func (s *Store) GetFamily(_ context.Context, id string) (*api.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.families[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	f = cloneFamily(f)
	return &f, nil
}

func (s *Store) GetFamilyByCode(_ context.Context, code string) (*api.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.families {
		if f.InviteCode == code {
			f = cloneFamily(f)
			return &f, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListFamilies(_ context.Context) ([]api.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Family, 0, len(s.families))
	for _, f := range s.families {
		out = append(out, cloneFamily(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateFamily(_ context.Context, family *api.Family) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if family.ID == "" {
		family.ID = uuid.NewString()
	}
	s.families[family.ID] = cloneFamily(*family)
	return nil
}

func (s *Store) SetInviteCode(_ context.Context, familyID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.families[familyID]
	if !ok {
		return store.ErrNotFound
	}
	f.InviteCode = code
	s.families[familyID] = f
	return nil
}

func (s *Store) SetMember(_ context.Context, familyID, userID string, member api.FamilyMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMemberLocked(familyID, userID, member)
}

func (s *Store) setMemberLocked(familyID, userID string, member api.FamilyMember) error {
	f, ok := s.families[familyID]
	if !ok {
		return store.ErrNotFound
	}
	f = cloneFamily(f)
	f.Members[userID] = member
	s.families[familyID] = f
	return nil
}

func (s *Store) deleteMemberLocked(familyID, userID string) error {
	f, ok := s.families[familyID]
	if !ok {
		return store.ErrNotFound
	}
	f = cloneFamily(f)
	delete(f.Members, userID)
	s.families[familyID] = f
	return nil
}

func (s *Store) SetMemberRole(_ context.Context, familyID, userID string, role api.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.families[familyID]
	if !ok {
		return store.ErrNotFound
	}
	m, ok := f.Members[userID]
	if !ok {
		return store.ErrNotFound
	}
	m.Role = role
	return s.setMemberLocked(familyID, userID, m)
}

func (s *Store) GetUser(_ context.Context, id string) (*api.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	u = cloneUser(u)
	return &u, nil
}

func (s *Store) CreateUser(_ context.Context, user *api.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = cloneUser(*user)
	return nil
}

func (s *Store) SetPushToken(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.PushToken = token
	s.users[userID] = u
	return nil
}

func (s *Store) GetInvite(_ context.Context, code string) (*api.GuestInvite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

func (s *Store) CreateInvite(_ context.Context, invite *api.GuestInvite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invites[invite.Code] = *invite
	return nil
}

func (s *Store) GetChild(_ context.Context, id string) (*api.Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.children[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateChild(_ context.Context, child *api.Child) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if child.ID == "" {
		child.ID = uuid.NewString()
	}
	s.children[child.ID] = *child
	return nil
}

func (s *Store) UpdateChild(_ context.Context, child *api.Child) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.children[child.ID]; !ok {
		return store.ErrNotFound
	}
	s.children[child.ID] = *child
	return nil
}

func (s *Store) SetChildPhotoURL(_ context.Context, childID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.children[childID]
	if !ok {
		return store.ErrNotFound
	}
	c.PhotoURL = url
	s.children[childID] = c
	return nil
}

func (s *Store) ListChildrenByParent(_ context.Context, parentID string) ([]api.Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Child, 0)
	for _, c := range s.children {
		if c.ParentID == parentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateNotification(_ context.Context, n *api.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	s.notifications[n.ID] = *n
	return nil
}

func (s *Store) GetNotification(_ context.Context, id string) (*api.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &n, nil
}

func (s *Store) ListNotifications(_ context.Context, userID string) ([]api.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Notification, 0)
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return store.ErrNotFound
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}

func (s *Store) CreateEvent(_ context.Context, event *api.TrackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	s.events[event.ID] = *event
	return nil
}

func (s *Store) GetEvent(_ context.Context, id string) (*api.TrackEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (s *Store) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *Store) ListEvents(_ context.Context, childID string, from, to time.Time) ([]api.TrackEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.TrackEvent, 0)
	for _, e := range s.events {
		if e.ChildID != childID {
			continue
		}
		if !from.IsZero() && e.StartedAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.StartedAt.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *Store) CreateTimer(_ context.Context, timer *api.TimerSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer.ID == "" {
		timer.ID = uuid.NewString()
	}
	s.timers[timer.ID] = *timer
	return nil
}

func (s *Store) GetTimer(_ context.Context, id string) (*api.TimerSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *Store) EndTimer(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return store.ErrNotFound
	}
	t.EndedAt = &at
	s.timers[id] = t
	return nil
}

func (s *Store) ActiveTimers(_ context.Context, childID string) ([]api.TimerSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.TimerSession, 0)
	for _, t := range s.timers {
		if t.ChildID == childID && t.EndedAt == nil {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *Store) JoinFamily(_ context.Context, familyID, userID string, member api.FamilyMember, leaveFamilyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	if leaveFamilyID != "" {
		if err := s.deleteMemberLocked(leaveFamilyID, userID); err != nil {
			return err
		}
	}
	if err := s.setMemberLocked(familyID, userID, member); err != nil {
		return err
	}
	u.FamilyID = familyID
	s.users[userID] = u
	return nil
}

func (s *Store) LeaveFamily(_ context.Context, familyID, userID, promoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteMemberLocked(familyID, userID); err != nil {
		return err
	}
	if promoteID != "" {
		f := s.families[familyID]
		m, ok := f.Members[promoteID]
		if !ok {
			return store.ErrNotFound
		}
		m.Role = api.RoleAdmin
		if err := s.setMemberLocked(familyID, promoteID, m); err != nil {
			return err
		}
	}
	if u, ok := s.users[userID]; ok {
		u.FamilyID = ""
		s.users[userID] = u
	}
	return nil
}

func (s *Store) RemoveMember(_ context.Context, familyID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteMemberLocked(familyID, userID); err != nil {
		return err
	}
	if u, ok := s.users[userID]; ok {
		u.FamilyID = ""
		s.users[userID] = u
	}
	return nil
}

func (s *Store) JoinAsGuest(_ context.Context, code, familyID, userID string, member api.FamilyMember, grant api.GuestAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[code]
	if !ok {
		return store.ErrNotFound
	}
	if err := s.setMemberLocked(familyID, userID, member); err != nil {
		return err
	}
	u, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u = cloneUser(u)
	if u.GuestAccess == nil {
		u.GuestAccess = make(map[string]api.GuestAccess)
	}
	u.GuestAccess[familyID] = grant
	s.users[userID] = u

	now := time.Now()
	inv.Used = true
	inv.UsedBy = userID
	inv.UsedAt = &now
	s.invites[code] = inv
	return nil
}

func (s *Store) RevokeGuest(_ context.Context, familyID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteMemberLocked(familyID, userID); err != nil {
		return err
	}
	if u, ok := s.users[userID]; ok {
		u = cloneUser(u)
		delete(u.GuestAccess, familyID)
		s.users[userID] = u
	}
	return nil
}
