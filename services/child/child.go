package child

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"nestling/api"
	"nestling/services/access"
	"nestling/store"
)

var ErrNotAuthorized = errors.New("not authorized")

// Uploader stores a photo object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, objectName string, r io.Reader, contentType string) (string, error)
}

// Service manages child profiles. Reads are open to anyone with a grant
// for the child; profile writes require full access.
type Service interface {
	Create(ctx context.Context, ident api.Identity, name string, birthDate *time.Time) (*api.Child, error)
	Get(ctx context.Context, ident api.Identity, childID string) (*api.Child, error)
	// List returns the children the caller directly owns.
	List(ctx context.Context, ident api.Identity) ([]api.Child, error)
	Update(ctx context.Context, ident api.Identity, childID, name string, birthDate *time.Time) (*api.Child, error)
	// SetPhoto uploads the picked image and records its URL on the
	// child document.
	SetPhoto(ctx context.Context, ident api.Identity, childID string, r io.Reader, contentType string) (string, error)
}

type service struct {
	store    store.Store
	uploader Uploader
	now      func() time.Time
}

var _ Service = (*service)(nil)

func NewService(st store.Store, uploader Uploader) Service {
	return &service{
		store:    st,
		uploader: uploader,
		now:      time.Now,
	}
}

func (s *service) Create(ctx context.Context, ident api.Identity, name string, birthDate *time.Time) (*api.Child, error) {
	if name == "" {
		return nil, fmt.Errorf("child name is required")
	}
	c := &api.Child{
		ParentID:  ident.UserID,
		Name:      name,
		BirthDate: birthDate,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateChild(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create child: %w", err)
	}
	return c, nil
}

func (s *service) Get(ctx context.Context, ident api.Identity, childID string) (*api.Child, error) {
	if _, err := access.Check(ctx, s.store, ident, childID, s.now()); err != nil {
		if errors.Is(err, access.ErrDenied) {
			return nil, ErrNotAuthorized
		}
		return nil, err
	}
	return s.store.GetChild(ctx, childID)
}

func (s *service) List(ctx context.Context, ident api.Identity) ([]api.Child, error) {
	return s.store.ListChildrenByParent(ctx, ident.UserID)
}

func (s *service) Update(ctx context.Context, ident api.Identity, childID, name string, birthDate *time.Time) (*api.Child, error) {
	if _, err := s.fullGrant(ctx, ident, childID); err != nil {
		return nil, err
	}
	c, err := s.store.GetChild(ctx, childID)
	if err != nil {
		return nil, err
	}
	if name != "" {
		c.Name = name
	}
	if birthDate != nil {
		c.BirthDate = birthDate
	}
	if err := s.store.UpdateChild(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update child: %w", err)
	}
	return c, nil
}

func (s *service) SetPhoto(ctx context.Context, ident api.Identity, childID string, r io.Reader, contentType string) (string, error) {
	if s.uploader == nil {
		return "", fmt.Errorf("photo storage not configured")
	}
	if _, err := s.fullGrant(ctx, ident, childID); err != nil {
		return "", err
	}
	object := fmt.Sprintf("children/%s/photo", childID)
	url, err := s.uploader.Upload(ctx, object, r, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to upload photo: %w", err)
	}
	if err := s.store.SetChildPhotoURL(ctx, childID, url); err != nil {
		return "", fmt.Errorf("failed to record photo url: %w", err)
	}
	return url, nil
}

func (s *service) fullGrant(ctx context.Context, ident api.Identity, childID string) (access.Grant, error) {
	grant, err := access.Check(ctx, s.store, ident, childID, s.now())
	if err != nil {
		if errors.Is(err, access.ErrDenied) {
			return access.Grant{}, ErrNotAuthorized
		}
		return access.Grant{}, err
	}
	if grant.AccessLevel != api.AccessFull {
		return access.Grant{}, ErrNotAuthorized
	}
	return grant, nil
}
