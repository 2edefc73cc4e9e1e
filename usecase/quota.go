package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/logger"
)

// QuotaLedger meters guest submissions. Registered identities are unlimited
// and every method is a no-op for them.
type QuotaLedger struct {
	owners domain.OwnershipRepository
	log    *logger.Logger
	now    func() time.Time
}

func NewQuotaLedger(owners domain.OwnershipRepository, log *logger.Logger) *QuotaLedger {
	return &QuotaLedger{owners: owners, log: log.With("service", "QuotaLedger"), now: time.Now}
}

// Remaining returns the guest's quota block, or nil for registered callers.
func (q *QuotaLedger) Remaining(ctx context.Context, id domain.Identity) (*domain.QuotaInfo, error) {
	if !id.IsGuest() {
		return nil, nil
	}
	guest, err := q.owners.FindGuest(ctx, id.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Wrap(domain.ErrUnauthenticated, "quota", "remaining", "unknown guest session", nil)
		}
		return nil, fmt.Errorf("load guest %s: %w", id.ID, err)
	}
	info := guest.Quota()
	return &info, nil
}

// TryReserve charges one submission to a guest. It returns the quota after
// the reservation, or a *domain.QuotaError naming why none was possible.
func (q *QuotaLedger) TryReserve(ctx context.Context, id domain.Identity) (*domain.QuotaInfo, error) {
	if !id.IsGuest() {
		return nil, nil
	}
	info, ok, err := q.owners.TryReserve(ctx, id.ID, q.now())
	if err != nil {
		return nil, fmt.Errorf("reserve quota for %s: %w", id.ID, err)
	}
	if ok {
		return &info, nil
	}
	guest, err := q.owners.FindGuest(ctx, id.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, domain.Wrap(domain.ErrUnauthenticated, "quota", "reserve", "unknown guest session", nil)
	case err != nil:
		return nil, fmt.Errorf("load guest %s: %w", id.ID, err)
	case guest.Converted():
		return nil, &domain.QuotaError{Reason: domain.ErrGuestConverted, Quota: guest.Quota()}
	case guest.Expired(q.now()) || !guest.IsActive:
		return nil, &domain.QuotaError{Reason: domain.ErrGuestExpired, Quota: guest.Quota()}
	default:
		return nil, &domain.QuotaError{Reason: domain.ErrQuotaExceeded, Quota: guest.Quota()}
	}
}

// Release refunds a reservation that did not produce a new library entry.
// Failures are logged; the caller's outcome does not change.
func (q *QuotaLedger) Release(ctx context.Context, id domain.Identity) {
	if !id.IsGuest() {
		return
	}
	if err := q.owners.Release(context.WithoutCancel(ctx), id.ID); err != nil {
		q.log.Warn("quota release failed", "guest_id", id.ID, "error", err)
	}
}
