package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/infrastructure/memory"
	"github.com/vitovidale/video-insight-service/logger"
)

func TestConvertGuestTransfersLibrary(t *testing.T) {
	h := newHarness(t)
	guest := h.newGuest(t)
	h.submitLink(t, guest, "https://youtu.be/first")
	h.submitLink(t, guest, "https://youtu.be/second")
	_, err := h.owners.AddVideo(context.Background(), user, "existing")
	require.NoError(t, err)

	uc := NewConvertGuestUseCase(h.owners, logger.NewNop())
	out, err := uc.Execute(context.Background(), user, guest.ID)
	require.NoError(t, err)
	assert.False(t, out.AlreadyConverted)
	assert.Equal(t, 2, out.VideosTransferred)

	assert.Equal(t, []string{"existing", "first", "second"}, h.library(t, user))
	g, err := h.owners.FindGuest(context.Background(), guest.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", g.ConvertedTo)
	assert.False(t, g.IsActive)

	second, err := uc.Execute(context.Background(), user, guest.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyConverted)
	assert.Equal(t, "user-1", second.UserID)
	assert.Equal(t, []string{"existing", "first", "second"}, h.library(t, user), "no duplicates on re-run")

	other, err := uc.Execute(context.Background(), domain.RegisteredIdentity("user-2"), guest.ID)
	require.NoError(t, err)
	assert.True(t, other.AlreadyConverted)
	assert.Empty(t, h.library(t, domain.RegisteredIdentity("user-2")))
}

func TestConvertGuestResumesAfterPartialFailure(t *testing.T) {
	h := newHarness(t)
	guest := h.newGuest(t)
	h.submitLink(t, guest, "https://youtu.be/first")
	// A previous run appended the videos but died before marking the guest.
	_, err := h.owners.AppendVideos(context.Background(), user, []string{"first"})
	require.NoError(t, err)

	out, err := NewConvertGuestUseCase(h.owners, logger.NewNop()).Execute(context.Background(), user, guest.ID)
	require.NoError(t, err)
	assert.False(t, out.AlreadyConverted)
	assert.Equal(t, []string{"first"}, h.library(t, user))
}

func TestConvertGuestErrors(t *testing.T) {
	h := newHarness(t)
	uc := NewConvertGuestUseCase(h.owners, logger.NewNop())
	guest := h.newGuest(t)

	_, err := uc.Execute(context.Background(), domain.RegisteredIdentity("user-1"), domain.NewGuestID())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = uc.Execute(context.Background(), domain.RegisteredIdentity("user-1"), "guest_bad")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = uc.Execute(context.Background(), guest, guest.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

// lateSubmission lands one more guest video between the first copy and the
// conversion mark.
type lateSubmission struct {
	*memory.OwnershipRepository
	guest   domain.Identity
	videoID string
}

func (r *lateSubmission) MarkConverted(ctx context.Context, guestID, userID string) (bool, error) {
	if _, err := r.AddVideo(ctx, r.guest, r.videoID); err != nil {
		return false, err
	}
	return r.OwnershipRepository.MarkConverted(ctx, guestID, userID)
}

func TestConvertGuestPicksUpLateSubmission(t *testing.T) {
	h := newHarness(t)
	guest := h.newGuest(t)
	h.submitLink(t, guest, "https://youtu.be/first")

	owners := &lateSubmission{OwnershipRepository: h.owners, guest: guest, videoID: "late"}
	out, err := NewConvertGuestUseCase(owners, logger.NewNop()).Execute(context.Background(), user, guest.ID)
	require.NoError(t, err)
	assert.False(t, out.AlreadyConverted)
	assert.Equal(t, 2, out.VideosTransferred)
	assert.Equal(t, []string{"first", "late"}, h.library(t, user))
}
