package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"nestling/api"
	"nestling/store"
)

var ErrNotAuthorized = errors.New("not authorized")

// Service writes notification documents and pushes them to the owner's
// device. Push delivery is best effort: the document is the record, the
// push is a nudge.
type Service interface {
	Notify(ctx context.Context, userID string, kind api.NotificationKind, title, body string, data map[string]string) error
	List(ctx context.Context, ident api.Identity) ([]api.Notification, error)
	MarkRead(ctx context.Context, ident api.Identity, id string) error
}

type service struct {
	store  store.Store
	pusher Pusher
	newID  func() string
	now    func() time.Time
}

var _ Service = (*service)(nil)

func NewService(st store.Store, pusher Pusher) Service {
	return &service{
		store:  st,
		pusher: pusher,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

func (s *service) Notify(ctx context.Context, userID string, kind api.NotificationKind, title, body string, data map[string]string) error {
	n := &api.Notification{
		ID:        s.newID(),
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		Data:      data,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return err
	}

	if s.pusher == nil {
		return nil
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil || u.PushToken == "" {
		return nil
	}
	if err := s.pusher.Push(ctx, u.PushToken, title, body, data); err != nil {
		log.Warn().Err(err).Str("userId", userID).Str("kind", string(kind)).Msg("push delivery failed")
	}
	return nil
}

func (s *service) List(ctx context.Context, ident api.Identity) ([]api.Notification, error) {
	return s.store.ListNotifications(ctx, ident.UserID)
}

func (s *service) MarkRead(ctx context.Context, ident api.Identity, id string) error {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != ident.UserID {
		return ErrNotAuthorized
	}
	return s.store.MarkNotificationRead(ctx, id)
}
