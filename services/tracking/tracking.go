package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nestling/api"
	"nestling/services/access"
	"nestling/store"
)

var (
	ErrNotAuthorized = errors.New("not authorized")
	ErrInvalidKind   = errors.New("invalid event kind")
	ErrTimerRunning  = errors.New("a timer of this kind is already running")
	ErrTimerStopped  = errors.New("timer already stopped")
)

// Service is the care log: feeding, sleep, diaper, pumping and
// breastfeeding events, plus the running timers the live-status widget
// reads. Anyone with a grant for the child can record; deleting needs
// full access.
type Service interface {
	Record(ctx context.Context, ident api.Identity, event api.TrackEvent) (*api.TrackEvent, error)
	Delete(ctx context.Context, ident api.Identity, eventID string) error
	List(ctx context.Context, ident api.Identity, childID string, from, to time.Time) ([]api.TrackEvent, error)

	// StartTimer opens a running session for a duration-style kind.
	// Only one timer per kind per child may run at a time.
	StartTimer(ctx context.Context, ident api.Identity, childID string, kind api.EventKind) (*api.TimerSession, error)
	// StopTimer closes the session and records the resulting event.
	StopTimer(ctx context.Context, ident api.Identity, timerID string) (*api.TrackEvent, error)
	ActiveTimers(ctx context.Context, ident api.Identity, childID string) ([]api.TimerSession, error)
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

func validKind(kind api.EventKind) bool {
	switch kind {
	case api.EventFeeding, api.EventSleep, api.EventDiaper, api.EventPumping, api.EventBreastfeeding:
		return true
	}
	return false
}

func timerKind(kind api.EventKind) bool {
	switch kind {
	case api.EventSleep, api.EventPumping, api.EventBreastfeeding:
		return true
	}
	return false
}

func (s *service) authorize(ctx context.Context, ident api.Identity, childID string) (access.Grant, error) {
	grant, err := access.Check(ctx, s.store, ident, childID, s.now())
	if errors.Is(err, access.ErrDenied) {
		return access.Grant{}, ErrNotAuthorized
	}
	return grant, err
}

func (s *service) Record(ctx context.Context, ident api.Identity, event api.TrackEvent) (*api.TrackEvent, error) {
	if !validKind(event.Kind) {
		return nil, ErrInvalidKind
	}
	if _, err := s.authorize(ctx, ident, event.ChildID); err != nil {
		return nil, err
	}
	now := s.now()
	event.ID = ""
	event.RecordedBy = ident.UserID
	event.CreatedAt = now
	if event.StartedAt.IsZero() {
		event.StartedAt = now
	}
	if err := s.store.CreateEvent(ctx, &event); err != nil {
		return nil, fmt.Errorf("failed to record event: %w", err)
	}
	return &event, nil
}

func (s *service) Delete(ctx context.Context, ident api.Identity, eventID string) error {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	grant, err := s.authorize(ctx, ident, event.ChildID)
	if err != nil {
		return err
	}
	if !grant.CanDelete() {
		return ErrNotAuthorized
	}
	return s.store.DeleteEvent(ctx, eventID)
}

func (s *service) List(ctx context.Context, ident api.Identity, childID string, from, to time.Time) ([]api.TrackEvent, error) {
	if _, err := s.authorize(ctx, ident, childID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, childID, from, to)
}

func (s *service) StartTimer(ctx context.Context, ident api.Identity, childID string, kind api.EventKind) (*api.TimerSession, error) {
	if !timerKind(kind) {
		return nil, ErrInvalidKind
	}
	if _, err := s.authorize(ctx, ident, childID); err != nil {
		return nil, err
	}
	running, err := s.store.ActiveTimers(ctx, childID)
	if err != nil {
		return nil, err
	}
	for _, t := range running {
		if t.Kind == kind {
			return nil, ErrTimerRunning
		}
	}
	timer := &api.TimerSession{
		ChildID:   childID,
		Kind:      kind,
		StartedBy: ident.UserID,
		StartedAt: s.now(),
	}
	if err := s.store.CreateTimer(ctx, timer); err != nil {
		return nil, fmt.Errorf("failed to start timer: %w", err)
	}
	return timer, nil
}

func (s *service) StopTimer(ctx context.Context, ident api.Identity, timerID string) (*api.TrackEvent, error) {
	timer, err := s.store.GetTimer(ctx, timerID)
	if err != nil {
		return nil, err
	}
	if timer.EndedAt != nil {
		return nil, ErrTimerStopped
	}
	if _, err := s.authorize(ctx, ident, timer.ChildID); err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.store.EndTimer(ctx, timerID, now); err != nil {
		return nil, fmt.Errorf("failed to stop timer: %w", err)
	}
	event := &api.TrackEvent{
		ChildID:    timer.ChildID,
		Kind:       timer.Kind,
		RecordedBy: ident.UserID,
		StartedAt:  timer.StartedAt,
		EndedAt:    &now,
		CreatedAt:  now,
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record timed event: %w", err)
	}
	return event, nil
}

func (s *service) ActiveTimers(ctx context.Context, ident api.Identity, childID string) ([]api.TimerSession, error) {
	if _, err := s.authorize(ctx, ident, childID); err != nil {
		return nil, err
	}
	return s.store.ActiveTimers(ctx, childID)
}
