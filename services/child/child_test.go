package child

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestling/api"
	"nestling/store/memstore"
	"nestling/utils"
)

var (
	testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	parent   = api.Identity{UserID: "parent", DisplayName: "Parent"}
	sitter   = api.Identity{UserID: "sitter", DisplayName: "Sitter"}
	stranger = api.Identity{UserID: "stranger"}
)

type fakeUploader struct {
	objects map[string]string
}

func (f *fakeUploader) Upload(_ context.Context, objectName string, r io.Reader, _ string) (string, error) {
	if f.objects == nil {
		f.objects = make(map[string]string)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.objects[objectName] = string(data)
	return "https://storage.example.com/" + objectName, nil
}

func setup(t *testing.T) (*memstore.Store, *fakeUploader, *service) {
	t.Helper()
	ctx := context.Background()
	ms := memstore.New()
	require.NoError(t, ms.CreateUser(ctx, &api.User{ID: parent.UserID}))
	require.NoError(t, ms.CreateUser(ctx, &api.User{ID: stranger.UserID}))
	uploader := &fakeUploader{}
	svc := &service{store: ms, uploader: uploader, now: func() time.Time { return testTime }}
	return ms, uploader, svc
}

func seedChild(t *testing.T, ms *memstore.Store) *api.Child {
	t.Helper()
	ctx := context.Background()
	c := &api.Child{ID: "child-1", ParentID: parent.UserID, Name: "Luna", CreatedAt: testTime}
	require.NoError(t, ms.CreateChild(ctx, c))
	require.NoError(t, ms.CreateUser(ctx, &api.User{
		ID: sitter.UserID,
		GuestAccess: map[string]api.GuestAccess{
			"fam-1": {
				Role: api.RoleGuest, ChildID: c.ID,
				AccessLevel: api.AccessActionsOnly,
				ExpiresAt:   utils.ToPointer(testTime.Add(time.Hour)),
			},
		},
	}))
	return c
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	_, _, svc := setup(t)

	birth := testTime.AddDate(0, -3, 0)
	c, err := svc.Create(ctx, parent, "Luna", &birth)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, parent.UserID, c.ParentID)
	assert.Equal(t, testTime, c.CreatedAt)

	_, err = svc.Create(ctx, parent, "", nil)
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	ms, _, svc := setup(t)
	c := seedChild(t, ms)

	t.Run("parent", func(t *testing.T) {
		got, err := svc.Get(ctx, parent, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Luna", got.Name)
	})

	t.Run("guest can read", func(t *testing.T) {
		_, err := svc.Get(ctx, sitter, c.ID)
		require.NoError(t, err)
	})

	t.Run("stranger cannot", func(t *testing.T) {
		_, err := svc.Get(ctx, stranger, c.ID)
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	ms, _, svc := setup(t)
	seedChild(t, ms)
	require.NoError(t, ms.CreateChild(ctx, &api.Child{
		ID: "child-2", ParentID: parent.UserID, Name: "Milo", CreatedAt: testTime.Add(time.Minute),
	}))

	children, err := svc.List(ctx, parent)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "Luna", children[0].Name)

	none, err := svc.List(ctx, stranger)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	ms, _, svc := setup(t)
	c := seedChild(t, ms)

	t.Run("parent renames", func(t *testing.T) {
		got, err := svc.Update(ctx, parent, c.ID, "Luna Mae", nil)
		require.NoError(t, err)
		assert.Equal(t, "Luna Mae", got.Name)
	})

	t.Run("actions_only guest cannot edit the profile", func(t *testing.T) {
		_, err := svc.Update(ctx, sitter, c.ID, "Nope", nil)
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})
}

func TestSetPhoto(t *testing.T) {
	ctx := context.Background()
	ms, uploader, svc := setup(t)
	c := seedChild(t, ms)

	url, err := svc.SetPhoto(ctx, parent, c.ID, strings.NewReader("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://storage.example.com/children/child-1/photo", url)
	assert.Equal(t, "jpeg-bytes", uploader.objects["children/child-1/photo"])

	got, err := ms.GetChild(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, url, got.PhotoURL)

	_, err = svc.SetPhoto(ctx, sitter, c.ID, strings.NewReader("x"), "image/jpeg")
	assert.ErrorIs(t, err, ErrNotAuthorized)
}
