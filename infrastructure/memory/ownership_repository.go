package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/vitovidale/video-insight-service/domain"
)

type OwnershipRepository struct {
	mu        sync.Mutex
	guests    map[string]domain.GuestAccount
	libraries map[string][]string
}

func NewOwnershipRepository() *OwnershipRepository {
	return &OwnershipRepository{
		guests:    make(map[string]domain.GuestAccount),
		libraries: make(map[string][]string),
	}
}

func (r *OwnershipRepository) CreateGuest(_ context.Context, guest *domain.GuestAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.guests[guest.ID]; ok {
		return fmt.Errorf("guest %s already exists", guest.ID)
	}
	r.guests[guest.ID] = *guest
	return nil
}

func (r *OwnershipRepository) FindGuest(_ context.Context, guestID string) (*domain.GuestAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guests[guestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &g, nil
}

func (r *OwnershipRepository) TryReserve(_ context.Context, guestID string, now time.Time) (domain.QuotaInfo, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guests[guestID]
	if !ok {
		return domain.QuotaInfo{}, false, nil
	}
	if g.Converted() || !g.IsActive || g.Expired(now) || g.VideoCount >= g.MaxVideos {
		return g.Quota(), false, nil
	}
	g.VideoCount++
	r.guests[guestID] = g
	return g.Quota(), true, nil
}

func (r *OwnershipRepository) Release(_ context.Context, guestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guests[guestID]
	if !ok {
		return domain.ErrNotFound
	}
	if g.VideoCount > 0 {
		g.VideoCount--
	}
	r.guests[guestID] = g
	return nil
}

func (r *OwnershipRepository) AddVideo(_ context.Context, owner domain.Identity, videoID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.libraries[owner.ID], videoID) {
		return false, nil
	}
	r.libraries[owner.ID] = append(r.libraries[owner.ID], videoID)
	return true, nil
}

func (r *OwnershipRepository) AppendVideos(_ context.Context, owner domain.Identity, videoIDs []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for _, id := range videoIDs {
		if slices.Contains(r.libraries[owner.ID], id) {
			continue
		}
		r.libraries[owner.ID] = append(r.libraries[owner.ID], id)
		added++
	}
	return added, nil
}

func (r *OwnershipRepository) RemoveVideo(_ context.Context, owner domain.Identity, videoID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.libraries[owner.ID]
	i := slices.Index(ids, videoID)
	if i < 0 {
		return false, nil
	}
	r.libraries[owner.ID] = slices.Delete(slices.Clone(ids), i, i+1)
	return true, nil
}

func (r *OwnershipRepository) HasVideo(_ context.Context, owner domain.Identity, videoID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.libraries[owner.ID], videoID), nil
}

func (r *OwnershipRepository) ListVideoIDs(_ context.Context, owner domain.Identity) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.libraries[owner.ID]), nil
}

func (r *OwnershipRepository) MarkConverted(_ context.Context, guestID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guests[guestID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if g.Converted() {
		return false, nil
	}
	g.ConvertedTo = userID
	g.IsActive = false
	r.guests[guestID] = g
	return true, nil
}
