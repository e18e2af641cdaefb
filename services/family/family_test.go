package family

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestling/api"
	"nestling/store"
	"nestling/store/memstore"
)

var (
	alice = api.Identity{UserID: "alice", DisplayName: "Alice", Email: "alice@example.com"}
	bob   = api.Identity{UserID: "bob", DisplayName: "Bob", Email: "bob@example.com"}
	carol = api.Identity{UserID: "carol", DisplayName: "Carol", Email: "carol@example.com"}
)

func fixedClock() func() time.Time {
	t := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func codeSequence(codes ...string) func() string {
	i := 0
	return func() string {
		code := codes[i%len(codes)]
		i++
		return code
	}
}

func newTestService(ms *memstore.Store, codes ...string) *service {
	if len(codes) == 0 {
		codes = []string{"123456"}
	}
	return &service{
		store:   ms,
		newCode: codeSequence(codes...),
		now:     fixedClock(),
	}
}

func adminCount(f *api.Family) int {
	n := 0
	for _, m := range f.Members {
		if m.Role == api.RoleAdmin {
			n++
		}
	}
	return n
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("creator becomes sole admin with full access", func(t *testing.T) {
		ms := memstore.New()
		svc := newTestService(ms)

		f, err := svc.Create(ctx, alice, "child-1", "Luna")
		require.NoError(t, err)
		require.Len(t, f.Members, 1)
		assert.Equal(t, "123456", f.InviteCode)
		assert.Equal(t, api.RoleAdmin, f.Members[alice.UserID].Role)
		assert.Equal(t, api.AccessFull, f.Members[alice.UserID].AccessLevel)

		u, err := ms.GetUser(ctx, alice.UserID)
		require.NoError(t, err)
		assert.Equal(t, f.ID, u.FamilyID)
	})

	t.Run("idempotent when caller already has a family", func(t *testing.T) {
		ms := memstore.New()
		svc := newTestService(ms, "123456", "654321")

		first, err := svc.Create(ctx, alice, "child-1", "Luna")
		require.NoError(t, err)
		second, err := svc.Create(ctx, alice, "child-2", "Milo")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "Luna", second.BabyName)
		assert.Equal(t, "123456", second.InviteCode)
	})
}

func TestJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("second user joins by code", func(t *testing.T) {
		ms := memstore.New()
		svc := newTestService(ms)

		created, err := svc.Create(ctx, alice, "child-1", "Luna")
		require.NoError(t, err)

		joined, err := svc.Join(ctx, bob, "123456", "")
		require.NoError(t, err)
		assert.Equal(t, created.ID, joined.ID)

		f, err := ms.GetFamily(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, f.Members, 2)
		assert.Equal(t, api.RoleAdmin, f.Members[alice.UserID].Role)
		assert.Equal(t, api.RoleMember, f.Members[bob.UserID].Role)
		assert.Equal(t, api.AccessFull, f.Members[bob.UserID].AccessLevel)
	})

	t.Run("unknown code", func(t *testing.T) {
		ms := memstore.New()
		svc := newTestService(ms)

		_, err := svc.Join(ctx, bob, "000000", "")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("rejoining own family", func(t *testing.T) {
		ms := memstore.New()
		svc := newTestService(ms)

		_, err := svc.Create(ctx, alice, "child-1", "Luna")
		require.NoError(t, err)
		_, err = svc.Join(ctx, bob, "123456", "")
		require.NoError(t, err)
		_, err = svc.Join(ctx, bob, "123456", "")
		assert.ErrorIs(t, err, ErrAlreadyMember)
	})

	t.Run("joining a new family leaves the old one", func(t *testing.T) {
		ms := memstore.New()
		svc := newTestService(ms, "111111", "222222")

		oldFam, err := svc.Create(ctx, alice, "child-1", "Luna")
		require.NoError(t, err)
		_, err = svc.Join(ctx, bob, "111111", "")
		require.NoError(t, err)
		newFam, err := svc.Create(ctx, carol, "child-2", "Milo")
		require.NoError(t, err)

		_, err = svc.Join(ctx, bob, "222222", "")
		require.NoError(t, err)

		old, err := ms.GetFamily(ctx, oldFam.ID)
		require.NoError(t, err)
		assert.False(t, old.HasMember(bob.UserID))

		got, err := ms.GetFamily(ctx, newFam.ID)
		require.NoError(t, err)
		assert.True(t, got.HasMember(bob.UserID))

		u, err := ms.GetUser(ctx, bob.UserID)
		require.NoError(t, err)
		assert.Equal(t, newFam.ID, u.FamilyID)
	})

	t.Run("admin role cannot be claimed on join", func(t *testing.T) {
		ms := memstore.New()
		svc := newTestService(ms)

		created, err := svc.Create(ctx, alice, "child-1", "Luna")
		require.NoError(t, err)

		_, err = svc.Join(ctx, bob, "123456", api.RoleAdmin)
		assert.ErrorIs(t, err, ErrInvalidRole)

		f, err := ms.GetFamily(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, f.HasMember(bob.UserID))
		assert.Equal(t, 1, adminCount(f))
	})

	t.Run("unknown roles are rejected", func(t *testing.T) {
		ms := memstore.New()
		svc := newTestService(ms)

		_, err := svc.Create(ctx, alice, "child-1", "Luna")
		require.NoError(t, err)

		_, err = svc.Join(ctx, bob, "123456", api.Role("superuser"))
		assert.ErrorIs(t, err, ErrInvalidRole)
		_, err = svc.Join(ctx, bob, "123456", api.RoleGuest)
		assert.ErrorIs(t, err, ErrInvalidRole)
	})

	t.Run("joining as viewer", func(t *testing.T) {
		ms := memstore.New()
		svc := newTestService(ms)

		created, err := svc.Create(ctx, alice, "child-1", "Luna")
		require.NoError(t, err)

		_, err = svc.Join(ctx, bob, "123456", api.RoleViewer)
		require.NoError(t, err)

		f, err := ms.GetFamily(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, api.RoleViewer, f.Members[bob.UserID].Role)
	})

	t.Run("sole admin switching families hands off the old one", func(t *testing.T) {
		ms := memstore.New()
		svc := newTestService(ms, "111111", "222222")

		oldFam, err := svc.Create(ctx, alice, "child-1", "Luna")
		require.NoError(t, err)
		_, err = svc.Join(ctx, bob, "111111", "")
		require.NoError(t, err)
		_, err = svc.Create(ctx, carol, "child-2", "Milo")
		require.NoError(t, err)

		_, err = svc.Join(ctx, alice, "222222", "")
		require.NoError(t, err)

		old, err := ms.GetFamily(ctx, oldFam.ID)
		require.NoError(t, err)
		assert.False(t, old.HasMember(alice.UserID))
		assert.Equal(t, api.RoleAdmin, old.Members[bob.UserID].Role)
		assert.Equal(t, 1, adminCount(old))
	})
}

func TestLeave(t *testing.T) {
	ctx := context.Background()

	t.Run("admin leaving hands role to a survivor", func(t *testing.T) {
		ms := memstore.New()
		svc := newTestService(ms)

		created, err := svc.Create(ctx, alice, "child-1", "Luna")
		require.NoError(t, err)
		_, err = svc.Join(ctx, bob, "123456", "")
		require.NoError(t, err)

		require.NoError(t, svc.Leave(ctx, alice))

		f, err := ms.GetFamily(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, f.HasMember(alice.UserID))
		assert.Equal(t, api.RoleAdmin, f.Members[bob.UserID].Role)
		assert.Equal(t, 1, adminCount(f))
	})

	t.Run("guests are passed over for admin handoff", func(t *testing.T) {
		ms := memstore.New()
		svc := newTestService(ms)

		created, err := svc.Create(ctx, alice, "child-1", "Luna")
		require.NoError(t, err)
		// "aa-guest" sorts before bob; the handoff should skip it anyway.
		require.NoError(t, ms.CreateUser(ctx, &api.User{ID: "aa-guest"}))
		require.NoError(t, ms.SetMember(ctx, created.ID, "aa-guest", api.FamilyMember{
			Role: api.RoleGuest, AccessLevel: api.AccessActionsOnly,
		}))
		_, err = svc.Join(ctx, bob, "123456", "")
		require.NoError(t, err)

		require.NoError(t, svc.Leave(ctx, alice))

		f, err := ms.GetFamily(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, api.RoleAdmin, f.Members[bob.UserID].Role)
		assert.Equal(t, api.RoleGuest, f.Members["aa-guest"].Role)
	})

	t.Run("last member leaving leaves the family adminless", func(t *testing.T) {
		ms := memstore.New()
		svc := newTestService(ms)

		created, err := svc.Create(ctx, alice, "child-1", "Luna")
		require.NoError(t, err)
		require.NoError(t, svc.Leave(ctx, alice))

		f, err := ms.GetFamily(ctx, created.ID)
		require.NoError(t, err)
		assert.Empty(t, f.Members)
		assert.Equal(t, "", f.Admin())
	})

	t.Run("without a family", func(t *testing.T) {
		ms := memstore.New()
		svc := newTestService(ms)
		require.NoError(t, ms.CreateUser(ctx, &api.User{ID: alice.UserID}))
		assert.ErrorIs(t, svc.Leave(ctx, alice), ErrNoFamily)
	})
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	svc := newTestService(ms)

	created, err := svc.Create(ctx, alice, "child-1", "Luna")
	require.NoError(t, err)
	_, err = svc.Join(ctx, bob, "123456", "")
	require.NoError(t, err)

	t.Run("non-admin is rejected", func(t *testing.T) {
		assert.ErrorIs(t, svc.RemoveMember(ctx, bob, alice.UserID), ErrNotAuthorized)
	})

	t.Run("self-removal is blocked", func(t *testing.T) {
		assert.ErrorIs(t, svc.RemoveMember(ctx, alice, alice.UserID), ErrSelfRemoval)
	})

	t.Run("admin removes a member", func(t *testing.T) {
		require.NoError(t, svc.RemoveMember(ctx, alice, bob.UserID))

		f, err := ms.GetFamily(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, f.HasMember(bob.UserID))

		u, err := ms.GetUser(ctx, bob.UserID)
		require.NoError(t, err)
		assert.Equal(t, "", u.FamilyID)
	})

	t.Run("unknown member", func(t *testing.T) {
		assert.ErrorIs(t, svc.RemoveMember(ctx, alice, "nobody"), store.ErrNotFound)
	})
}

func TestUpdateMemberRole(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	svc := newTestService(ms)

	created, err := svc.Create(ctx, alice, "child-1", "Luna")
	require.NoError(t, err)
	_, err = svc.Join(ctx, bob, "123456", "")
	require.NoError(t, err)

	t.Run("non-admin is rejected", func(t *testing.T) {
		assert.ErrorIs(t, svc.UpdateMemberRole(ctx, bob, alice.UserID, api.RoleViewer), ErrNotAuthorized)
	})

	t.Run("changing your own role is rejected", func(t *testing.T) {
		assert.ErrorIs(t, svc.UpdateMemberRole(ctx, alice, alice.UserID, api.RoleMember), ErrSelfRoleChange)
	})

	t.Run("demote to viewer", func(t *testing.T) {
		require.NoError(t, svc.UpdateMemberRole(ctx, alice, bob.UserID, api.RoleViewer))
		f, err := ms.GetFamily(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, api.RoleViewer, f.Members[bob.UserID].Role)
	})

	t.Run("granting admin keeps exactly one admin", func(t *testing.T) {
		require.NoError(t, svc.UpdateMemberRole(ctx, alice, bob.UserID, api.RoleAdmin))
		f, err := ms.GetFamily(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, api.RoleAdmin, f.Members[bob.UserID].Role)
		assert.Equal(t, api.RoleMember, f.Members[alice.UserID].Role)
		assert.Equal(t, 1, adminCount(f))
	})
}

func TestRegenerateInviteCode(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	svc := newTestService(ms, "123456", "987654")

	created, err := svc.Create(ctx, alice, "child-1", "Luna")
	require.NoError(t, err)
	_, err = svc.Join(ctx, bob, "123456", "")
	require.NoError(t, err)

	_, err = svc.RegenerateInviteCode(ctx, bob)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	code, err := svc.RegenerateInviteCode(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "987654", code)

	f, err := ms.GetFamily(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "987654", f.InviteCode)
}

// Exercises the single-admin invariant across a longer create/join/leave
// sequence.
func TestSingleAdminInvariant(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	svc := newTestService(ms)

	created, err := svc.Create(ctx, alice, "child-1", "Luna")
	require.NoError(t, err)
	_, err = svc.Join(ctx, bob, "123456", "")
	require.NoError(t, err)
	_, err = svc.Join(ctx, carol, "123456", "")
	require.NoError(t, err)

	check := func() {
		f, err := ms.GetFamily(ctx, created.ID)
		require.NoError(t, err)
		if len(f.Members) > 0 {
			assert.Equal(t, 1, adminCount(f))
		}
	}

	check()
	require.NoError(t, svc.Leave(ctx, alice))
	check()
	require.NoError(t, svc.Leave(ctx, bob))
	check()
	require.NoError(t, svc.Leave(ctx, carol))

	f, err := ms.GetFamily(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, f.Members)
}
