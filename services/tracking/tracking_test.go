package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestling/api"
	"nestling/store"
	"nestling/store/memstore"
	"nestling/utils"
)

var (
	testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	parent   = api.Identity{UserID: "parent", DisplayName: "Parent"}
	sitter   = api.Identity{UserID: "sitter", DisplayName: "Sitter"}
	stranger = api.Identity{UserID: "stranger"}
)

func setup(t *testing.T) (*memstore.Store, *service) {
	t.Helper()
	ctx := context.Background()
	ms := memstore.New()
	require.NoError(t, ms.CreateChild(ctx, &api.Child{ID: "child-1", ParentID: parent.UserID, Name: "Luna"}))
	require.NoError(t, ms.CreateUser(ctx, &api.User{ID: parent.UserID}))
	require.NoError(t, ms.CreateUser(ctx, &api.User{
		ID: sitter.UserID,
		GuestAccess: map[string]api.GuestAccess{
			"fam-1": {
				Role: api.RoleGuest, ChildID: "child-1",
				AccessLevel: api.AccessActionsOnly,
				ExpiresAt:   utils.ToPointer(testTime.Add(time.Hour)),
			},
		},
	}))
	require.NoError(t, ms.CreateUser(ctx, &api.User{ID: stranger.UserID}))
	svc := &service{store: ms, now: func() time.Time { return testTime }}
	return ms, svc
}

func TestRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("parent records a feeding", func(t *testing.T) {
		_, svc := setup(t)
		amount := 120.0
		ev, err := svc.Record(ctx, parent, api.TrackEvent{
			ChildID: "child-1",
			Kind:    api.EventFeeding,
			Amount:  &amount,
			Unit:    "ml",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, parent.UserID, ev.RecordedBy)
		assert.Equal(t, testTime, ev.StartedAt)
	})

	t.Run("guest with actions_only can record", func(t *testing.T) {
		_, svc := setup(t)
		_, err := svc.Record(ctx, sitter, api.TrackEvent{ChildID: "child-1", Kind: api.EventDiaper})
		require.NoError(t, err)
	})

	t.Run("stranger cannot record", func(t *testing.T) {
		_, svc := setup(t)
		_, err := svc.Record(ctx, stranger, api.TrackEvent{ChildID: "child-1", Kind: api.EventDiaper})
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, svc := setup(t)
		_, err := svc.Record(ctx, parent, api.TrackEvent{ChildID: "child-1", Kind: "nap"})
		assert.ErrorIs(t, err, ErrInvalidKind)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("guest cannot delete", func(t *testing.T) {
		_, svc := setup(t)
		ev, err := svc.Record(ctx, sitter, api.TrackEvent{ChildID: "child-1", Kind: api.EventDiaper})
		require.NoError(t, err)
		assert.ErrorIs(t, svc.Delete(ctx, sitter, ev.ID), ErrNotAuthorized)
	})

	t.Run("parent can delete", func(t *testing.T) {
		ms, svc := setup(t)
		ev, err := svc.Record(ctx, sitter, api.TrackEvent{ChildID: "child-1", Kind: api.EventDiaper})
		require.NoError(t, err)
		require.NoError(t, svc.Delete(ctx, parent, ev.ID))
		_, err = ms.GetEvent(ctx, ev.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t)

	for i, kind := range []api.EventKind{api.EventFeeding, api.EventDiaper, api.EventFeeding} {
		_, err := svc.Record(ctx, parent, api.TrackEvent{
			ChildID:   "child-1",
			Kind:      kind,
			StartedAt: testTime.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	events, err := svc.List(ctx, parent, "child-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	// newest first
	assert.Equal(t, testTime.Add(2*time.Hour), events[0].StartedAt)

	windowed, err := svc.List(ctx, parent, "child-1", testTime.Add(30*time.Minute), testTime.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, api.EventDiaper, windowed[0].Kind)
}

func TestTimers(t *testing.T) {
	ctx := context.Background()

	t.Run("start stop produces an event", func(t *testing.T) {
		_, svc := setup(t)
		timer, err := svc.StartTimer(ctx, parent, "child-1", api.EventSleep)
		require.NoError(t, err)
		assert.Equal(t, testTime, timer.StartedAt)

		running, err := svc.ActiveTimers(ctx, parent, "child-1")
		require.NoError(t, err)
		require.Len(t, running, 1)

		svc.now = func() time.Time { return testTime.Add(40 * time.Minute) }
		ev, err := svc.StopTimer(ctx, parent, timer.ID)
		require.NoError(t, err)
		assert.Equal(t, api.EventSleep, ev.Kind)
		assert.Equal(t, testTime, ev.StartedAt)
		require.NotNil(t, ev.EndedAt)
		assert.Equal(t, testTime.Add(40*time.Minute), *ev.EndedAt)

		running, err = svc.ActiveTimers(ctx, parent, "child-1")
		require.NoError(t, err)
		assert.Empty(t, running)
	})

	t.Run("one running timer per kind", func(t *testing.T) {
		_, svc := setup(t)
		_, err := svc.StartTimer(ctx, parent, "child-1", api.EventSleep)
		require.NoError(t, err)
		_, err = svc.StartTimer(ctx, parent, "child-1", api.EventSleep)
		assert.ErrorIs(t, err, ErrTimerRunning)

		// a different kind may run alongside
		_, err = svc.StartTimer(ctx, parent, "child-1", api.EventPumping)
		require.NoError(t, err)
	})

	t.Run("point events cannot be timed", func(t *testing.T) {
		_, svc := setup(t)
		_, err := svc.StartTimer(ctx, parent, "child-1", api.EventDiaper)
		assert.ErrorIs(t, err, ErrInvalidKind)
	})

	t.Run("double stop", func(t *testing.T) {
		_, svc := setup(t)
		timer, err := svc.StartTimer(ctx, parent, "child-1", api.EventSleep)
		require.NoError(t, err)
		_, err = svc.StopTimer(ctx, parent, timer.ID)
		require.NoError(t, err)
		_, err = svc.StopTimer(ctx, parent, timer.ID)
		assert.ErrorIs(t, err, ErrTimerStopped)
	})
}
