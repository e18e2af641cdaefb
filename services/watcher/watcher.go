package watcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"nestling/api"
	"nestling/services/invite"
	"nestling/services/notification"
	"nestling/set"
	"nestling/store"
)

// DefaultInterval matches the 30-second poll the mobile client ran.
const DefaultInterval = 30 * time.Second

// Watcher sweeps families for guest grants whose expiry has passed and
// revokes them on behalf of each family's admin. A family without an
// admin is skipped, so expiry is only enforced where an admin exists.
// At most one expired guest is handled per family per cycle; the rest
// are picked up on later ticks.
type Watcher struct {
	store    store.Store
	invites  invite.Service
	notifier notification.Service
	interval time.Duration
	now      func() time.Time
	// processed dedupes notifications within this watcher's lifetime.
	// The revocation itself deletes the member entry, so a restarted
	// watcher cannot double-revoke either.
	processed *set.Set[string]
}

func New(st store.Store, invites invite.Service, notifier notification.Service) *Watcher {
	return &Watcher{
		store:     st,
		invites:   invites,
		notifier:  notifier,
		interval:  DefaultInterval,
		now:       time.Now,
		processed: set.New[string](),
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	log.Info().Dur("interval", w.interval).Msg("guest expiry watcher started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("guest expiry watcher stopped")
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}

// Sweep runs one poll cycle over every family.
func (w *Watcher) Sweep(ctx context.Context) error {
	families, err := w.store.ListFamilies(ctx)
	if err != nil {
		return fmt.Errorf("failed to list families: %w", err)
	}
	for i := range families {
		if _, err := w.Poll(ctx, &families[i]); err != nil {
			log.Warn().Err(err).Str("familyId", families[i].ID).Msg("failed processing expired guests")
		}
	}
	return nil
}

// Poll handles at most one expired guest in the family. It reports
// whether a revocation happened.
func (w *Watcher) Poll(ctx context.Context, family *api.Family) (bool, error) {
	adminID := family.Admin()
	if adminID == "" {
		return false, nil
	}
	now := w.now()

	ids := make([]string, 0, len(family.Members))
	for id := range family.Members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		m := family.Members[id]
		if m.Role != api.RoleGuest || m.ExpiresAt == nil || now.Before(*m.ExpiresAt) {
			continue
		}
		key := family.ID + "/" + id
		if w.processed.Contains(key) {
			continue
		}

		adminIdent := api.Identity{UserID: adminID}
		if err := w.invites.RevokeGuestAccess(ctx, adminIdent, id, family.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// another client got there first
				w.processed.Add(key)
				continue
			}
			return false, err
		}
		w.processed.Add(key)
		log.Info().Str("familyId", family.ID).Str("guestId", id).Msg("revoked expired guest access")

		if err := w.notifier.Notify(ctx, id, api.NotificationGuestExpired,
			"Access ended",
			fmt.Sprintf("Your guest access to %s has ended", family.BabyName),
			map[string]string{"familyId": family.ID}); err != nil {
			log.Warn().Err(err).Str("guestId", id).Msg("failed to notify expired guest")
		}

		if m.IsBabysitter {
			if err := w.notifier.Notify(ctx, adminID, api.NotificationRatingPrompt,
				"Rate your babysitter",
				fmt.Sprintf("How did %s do with %s?", m.Name, family.BabyName),
				map[string]string{"familyId": family.ID, "guestId": id, "guestName": m.Name}); err != nil {
				log.Warn().Err(err).Str("familyId", family.ID).Msg("failed to prompt for babysitter rating")
			}
		}

		// one guest per cycle
		return true, nil
	}
	return false, nil
}
