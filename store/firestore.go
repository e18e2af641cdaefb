package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/fatih/structs"
	"google.golang.org/api/iterator"

	"nestling/api"
	"nestling/utils"
)

const (
	familiesCollection      = "families"
	invitesCollection       = "invites"
	usersCollection         = "users"
	babiesCollection        = "babies"
	notificationsCollection = "notifications"
	eventsCollection        = "events"
	timersCollection        = "timers"
)

// Firestore implements Store on top of a Firestore client. Invite
// documents are keyed by their code, matching the invites/{code} layout
// the mobile client reads.
type Firestore struct {
	client *firestore.Client
}

var _ Store = (*Firestore)(nil)

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func notFound(snap *firestore.DocumentSnapshot, err error) error {
	if err == nil {
		return nil
	}
	if snap != nil && !snap.Exists() {
		return ErrNotFound
	}
	return err
}

func (s *Firestore) GetFamily(ctx context.Context, id string) (*api.Family, error) {
	snap, err := s.client.Collection(familiesCollection).Doc(id).Get(ctx)
	if err := notFound(snap, err); err != nil {
		return nil, err
	}
	family := api.Family{}
	if err := snap.DataTo(&family); err != nil {
		return nil, err
	}
	return &family, nil
}

func (s *Firestore) GetFamilyByCode(ctx context.Context, code string) (*api.Family, error) {
	iter := s.client.Collection(familiesCollection).
		Where("inviteCode", "==", code).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		family := api.Family{}
		if err := doc.DataTo(&family); err != nil {
			return nil, err
		}
		return &family, nil
	}
	return nil, ErrNotFound
}

func (s *Firestore) ListFamilies(ctx context.Context) ([]api.Family, error) {
	docs, err := s.client.Collection(familiesCollection).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return utils.GetAllToStructs[api.Family](docs)
}

func (s *Firestore) CreateFamily(ctx context.Context, family *api.Family) error {
	ref := s.client.Collection(familiesCollection).NewDoc()
	family.ID = ref.ID
	_, err := ref.Set(ctx, family)
	return err
}

func (s *Firestore) SetInviteCode(ctx context.Context, familyID, code string) error {
	_, err := s.client.Collection(familiesCollection).Doc(familyID).Set(ctx, map[string]any{
		"inviteCode": code,
	}, firestore.MergeAll)
	return err
}

func (s *Firestore) SetMember(ctx context.Context, familyID, userID string, member api.FamilyMember) error {
	_, err := s.client.Collection(familiesCollection).Doc(familyID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"members", userID}, Value: structs.Map(member)},
	})
	return err
}

func (s *Firestore) SetMemberRole(ctx context.Context, familyID, userID string, role api.Role) error {
	_, err := s.client.Collection(familiesCollection).Doc(familyID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"members", userID, "role"}, Value: string(role)},
	})
	return err
}

func (s *Firestore) GetUser(ctx context.Context, id string) (*api.User, error) {
	snap, err := s.client.Collection(usersCollection).Doc(id).Get(ctx)
	if err := notFound(snap, err); err != nil {
		return nil, err
	}
	user := api.User{}
	if err := snap.DataTo(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Firestore) CreateUser(ctx context.Context, user *api.User) error {
	if user.ID == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.client.Collection(usersCollection).Doc(user.ID).Set(ctx, user)
	return err
}

func (s *Firestore) SetPushToken(ctx context.Context, userID, token string) error {
	_, err := s.client.Collection(usersCollection).Doc(userID).Set(ctx, map[string]any{
		"pushToken": token,
	}, firestore.MergeAll)
	return err
}

func (s *Firestore) GetInvite(ctx context.Context, code string) (*api.GuestInvite, error) {
	snap, err := s.client.Collection(invitesCollection).Doc(code).Get(ctx)
	if err := notFound(snap, err); err != nil {
		return nil, err
	}
	invite := api.GuestInvite{}
	if err := snap.DataTo(&invite); err != nil {
		return nil, err
	}
	return &invite, nil
}

func (s *Firestore) CreateInvite(ctx context.Context, invite *api.GuestInvite) error {
	_, err := s.client.Collection(invitesCollection).Doc(invite.Code).Create(ctx, invite)
	return err
}

func (s *Firestore) GetChild(ctx context.Context, id string) (*api.Child, error) {
	snap, err := s.client.Collection(babiesCollection).Doc(id).Get(ctx)
	if err := notFound(snap, err); err != nil {
		return nil, err
	}
	child := api.Child{}
	if err := snap.DataTo(&child); err != nil {
		return nil, err
	}
	return &child, nil
}

func (s *Firestore) CreateChild(ctx context.Context, child *api.Child) error {
	ref := s.client.Collection(babiesCollection).NewDoc()
	child.ID = ref.ID
	_, err := ref.Set(ctx, child)
	return err
}

func (s *Firestore) UpdateChild(ctx context.Context, child *api.Child) error {
	_, err := s.client.Collection(babiesCollection).Doc(child.ID).Set(ctx, child)
	return err
}

func (s *Firestore) SetChildPhotoURL(ctx context.Context, childID, url string) error {
	_, err := s.client.Collection(babiesCollection).Doc(childID).Set(ctx, map[string]any{
		"photoUrl": url,
	}, firestore.MergeAll)
	return err
}

func (s *Firestore) ListChildrenByParent(ctx context.Context, parentID string) ([]api.Child, error) {
	docs, err := s.client.Collection(babiesCollection).
		Where("parentId", "==", parentID).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return utils.GetAllToStructs[api.Child](docs)
}

func (s *Firestore) CreateNotification(ctx context.Context, n *api.Notification) error {
	if n.ID == "" {
		n.ID = s.client.Collection(notificationsCollection).NewDoc().ID
	}
	_, err := s.client.Collection(notificationsCollection).Doc(n.ID).Set(ctx, n)
	return err
}

func (s *Firestore) GetNotification(ctx context.Context, id string) (*api.Notification, error) {
	snap, err := s.client.Collection(notificationsCollection).Doc(id).Get(ctx)
	if err := notFound(snap, err); err != nil {
		return nil, err
	}
	n := api.Notification{}
	if err := snap.DataTo(&n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Firestore) ListNotifications(ctx context.Context, userID string) ([]api.Notification, error) {
	docs, err := s.client.Collection(notificationsCollection).
		Where("userId", "==", userID).
		OrderBy("createdAt", firestore.Desc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return utils.GetAllToStructs[api.Notification](docs)
}

func (s *Firestore) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := s.client.Collection(notificationsCollection).Doc(id).Set(ctx, map[string]any{
		"read": true,
	}, firestore.MergeAll)
	return err
}

func (s *Firestore) CreateEvent(ctx context.Context, event *api.TrackEvent) error {
	ref := s.client.Collection(eventsCollection).NewDoc()
	event.ID = ref.ID
	_, err := ref.Set(ctx, event)
	return err
}

func (s *Firestore) GetEvent(ctx context.Context, id string) (*api.TrackEvent, error) {
	snap, err := s.client.Collection(eventsCollection).Doc(id).Get(ctx)
	if err := notFound(snap, err); err != nil {
		return nil, err
	}
	event := api.TrackEvent{}
	if err := snap.DataTo(&event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *Firestore) DeleteEvent(ctx context.Context, id string) error {
	_, err := s.client.Collection(eventsCollection).Doc(id).Delete(ctx)
	return err
}

func (s *Firestore) ListEvents(ctx context.Context, childID string, from, to time.Time) ([]api.TrackEvent, error) {
	q := s.client.Collection(eventsCollection).Where("childId", "==", childID)
	if !from.IsZero() {
		q = q.Where("startedAt", ">=", from)
	}
	if !to.IsZero() {
		q = q.Where("startedAt", "<=", to)
	}
	docs, err := q.OrderBy("startedAt", firestore.Desc).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return utils.GetAllToStructs[api.TrackEvent](docs)
}

func (s *Firestore) CreateTimer(ctx context.Context, timer *api.TimerSession) error {
	ref := s.client.Collection(timersCollection).NewDoc()
	timer.ID = ref.ID
	_, err := ref.Set(ctx, timer)
	return err
}

func (s *Firestore) GetTimer(ctx context.Context, id string) (*api.TimerSession, error) {
	snap, err := s.client.Collection(timersCollection).Doc(id).Get(ctx)
	if err := notFound(snap, err); err != nil {
		return nil, err
	}
	timer := api.TimerSession{}
	if err := snap.DataTo(&timer); err != nil {
		return nil, err
	}
	return &timer, nil
}

func (s *Firestore) EndTimer(ctx context.Context, id string, at time.Time) error {
	_, err := s.client.Collection(timersCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "endedAt", Value: at},
	})
	return err
}

// ActiveTimers relies on endedAt being written as an explicit null while
// a timer runs.
func (s *Firestore) ActiveTimers(ctx context.Context, childID string) ([]api.TimerSession, error) {
	docs, err := s.client.Collection(timersCollection).
		Where("childId", "==", childID).
		Where("endedAt", "==", nil).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return utils.GetAllToStructs[api.TimerSession](docs)
}

func (s *Firestore) familyRef(id string) *firestore.DocumentRef {
	return s.client.Collection(familiesCollection).Doc(id)
}

func (s *Firestore) userRef(id string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(id)
}

func (s *Firestore) JoinFamily(ctx context.Context, familyID, userID string, member api.FamilyMember, leaveFamilyID string) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if leaveFamilyID != "" {
			if err := tx.Update(s.familyRef(leaveFamilyID), []firestore.Update{
				{FieldPath: firestore.FieldPath{"members", userID}, Value: firestore.Delete},
			}); err != nil {
				return err
			}
		}
		if err := tx.Update(s.familyRef(familyID), []firestore.Update{
			{FieldPath: firestore.FieldPath{"members", userID}, Value: structs.Map(member)},
		}); err != nil {
			return err
		}
		return tx.Update(s.userRef(userID), []firestore.Update{
			{Path: "familyId", Value: familyID},
		})
	})
}

func (s *Firestore) LeaveFamily(ctx context.Context, familyID, userID, promoteID string) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		updates := []firestore.Update{
			{FieldPath: firestore.FieldPath{"members", userID}, Value: firestore.Delete},
		}
		if promoteID != "" {
			updates = append(updates, firestore.Update{
				FieldPath: firestore.FieldPath{"members", promoteID, "role"},
				Value:     string(api.RoleAdmin),
			})
		}
		if err := tx.Update(s.familyRef(familyID), updates); err != nil {
			return err
		}
		return tx.Update(s.userRef(userID), []firestore.Update{
			{Path: "familyId", Value: firestore.Delete},
		})
	})
}

func (s *Firestore) RemoveMember(ctx context.Context, familyID, userID string) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Update(s.familyRef(familyID), []firestore.Update{
			{FieldPath: firestore.FieldPath{"members", userID}, Value: firestore.Delete},
		}); err != nil {
			return err
		}
		return tx.Update(s.userRef(userID), []firestore.Update{
			{Path: "familyId", Value: firestore.Delete},
		})
	})
}

func (s *Firestore) JoinAsGuest(ctx context.Context, code, familyID, userID string, member api.FamilyMember, grant api.GuestAccess) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Update(s.familyRef(familyID), []firestore.Update{
			{FieldPath: firestore.FieldPath{"members", userID}, Value: structs.Map(member)},
		}); err != nil {
			return err
		}
		if err := tx.Update(s.userRef(userID), []firestore.Update{
			{FieldPath: firestore.FieldPath{"guestAccess", familyID}, Value: structs.Map(grant)},
		}); err != nil {
			return err
		}
		return tx.Update(s.client.Collection(invitesCollection).Doc(code), []firestore.Update{
			{Path: "used", Value: true},
			{Path: "usedBy", Value: userID},
			{Path: "usedAt", Value: time.Now()},
		})
	})
}

func (s *Firestore) RevokeGuest(ctx context.Context, familyID, userID string) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Update(s.familyRef(familyID), []firestore.Update{
			{FieldPath: firestore.FieldPath{"members", userID}, Value: firestore.Delete},
		}); err != nil {
			return err
		}
		return tx.Update(s.userRef(userID), []firestore.Update{
			{FieldPath: firestore.FieldPath{"guestAccess", familyID}, Value: firestore.Delete},
		})
	})
}
