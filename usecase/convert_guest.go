package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/logger"
)

type ConvertGuestOutput struct {
	GuestID           string
	UserID            string
	VideosTransferred int
	AlreadyConverted  bool
}

// ConvertGuestUseCase moves a guest library into a registered user's library.
// Every step is idempotent, so a conversion interrupted halfway can simply be
// invoked again.
type ConvertGuestUseCase struct {
	Owners domain.OwnershipRepository

	log *logger.Logger
}

func NewConvertGuestUseCase(owners domain.OwnershipRepository, log *logger.Logger) *ConvertGuestUseCase {
	return &ConvertGuestUseCase{Owners: owners, log: log.With("service", "ConvertGuestUseCase")}
}

func (uc *ConvertGuestUseCase) Execute(ctx context.Context, user domain.Identity, guestID string) (*ConvertGuestOutput, error) {
	if user.IsZero() || user.IsGuest() {
		return nil, domain.Wrap(domain.ErrUnauthenticated, "convert", "", "registered identity required", nil)
	}
	if !domain.ValidGuestID(guestID) {
		return nil, domain.Wrap(domain.ErrValidation, "convert", "", "malformed guest marker", nil)
	}

	guest, err := uc.Owners.FindGuest(ctx, guestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Wrap(domain.ErrNotFound, "convert", "", "guest session not found", nil)
		}
		return nil, fmt.Errorf("load guest %s: %w", guestID, err)
	}
	if guest.Converted() {
		return uc.alreadyConverted(guest), nil
	}

	ids, err := uc.Owners.ListVideoIDs(ctx, domain.GuestIdentity(guestID))
	if err != nil {
		return nil, fmt.Errorf("list guest videos: %w", err)
	}
	added, err := uc.Owners.AppendVideos(ctx, user, ids)
	if err != nil {
		return nil, fmt.Errorf("append guest videos to %s: %w", user.ID, err)
	}
	marked, err := uc.Owners.MarkConverted(ctx, guestID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("mark guest %s converted: %w", guestID, err)
	}
	if !marked {
		current, err := uc.Owners.FindGuest(ctx, guestID)
		if err != nil {
			return nil, fmt.Errorf("load guest %s: %w", guestID, err)
		}
		return uc.alreadyConverted(current), nil
	}

	// A submission that landed while the first copy ran is only in the guest
	// library; the guest is inert now, so one more pass catches it.
	late, err := uc.Owners.ListVideoIDs(ctx, domain.GuestIdentity(guestID))
	if err != nil {
		return nil, fmt.Errorf("list guest videos: %w", err)
	}
	more, err := uc.Owners.AppendVideos(ctx, user, late)
	if err != nil {
		return nil, fmt.Errorf("append guest videos to %s: %w", user.ID, err)
	}
	added += more
	ids = late

	uc.log.Info("guest converted",
		"guest_id", guestID,
		"user", user.ID,
		"videos", len(ids),
		"newly_added", added,
	)
	return &ConvertGuestOutput{
		GuestID:           guestID,
		UserID:            user.ID,
		VideosTransferred: len(ids),
	}, nil
}

func (uc *ConvertGuestUseCase) alreadyConverted(guest *domain.GuestAccount) *ConvertGuestOutput {
	return &ConvertGuestOutput{
		GuestID:          guest.ID,
		UserID:           guest.ConvertedTo,
		AlreadyConverted: true,
	}
}
