package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/logger"
)

type CreateGuestSessionUseCase struct {
	Owners    domain.OwnershipRepository
	MaxVideos int
	TTL       time.Duration

	log *logger.Logger
	now func() time.Time
}

func NewCreateGuestSessionUseCase(owners domain.OwnershipRepository, maxVideos int, ttl time.Duration, log *logger.Logger) *CreateGuestSessionUseCase {
	if maxVideos <= 0 {
		maxVideos = domain.DefaultGuestMaxVideos
	}
	if ttl <= 0 {
		ttl = domain.DefaultGuestSessionTTL
	}
	return &CreateGuestSessionUseCase{
		Owners:    owners,
		MaxVideos: maxVideos,
		TTL:       ttl,
		log:       log.With("service", "CreateGuestSessionUseCase"),
		now:       time.Now,
	}
}

func (uc *CreateGuestSessionUseCase) Execute(ctx context.Context) (*domain.GuestAccount, error) {
	now := uc.now().UTC()
	guest := &domain.GuestAccount{
		ID:        domain.NewGuestID(),
		MaxVideos: uc.MaxVideos,
		IsActive:  true,
		ExpiresAt: now.Add(uc.TTL),
		CreatedAt: now,
	}
	if err := uc.Owners.CreateGuest(ctx, guest); err != nil {
		return nil, fmt.Errorf("create guest session: %w", err)
	}
	uc.log.Info("guest session created", "guest_id", guest.ID, "expires_at", guest.ExpiresAt)
	return guest, nil
}
