package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]VideoStatus]bool{
		{VideoStatusPending, VideoStatusProcessing}:         true,
		{VideoStatusProcessing, VideoStatusDone}:            true,
		{VideoStatusProcessing, VideoStatusRetrying}:        true,
		{VideoStatusProcessing, VideoStatusFailedPermanent}: true,
		{VideoStatusRetrying, VideoStatusProcessing}:        true,
		{VideoStatusRetrying, VideoStatusFailedPermanent}:   true,
		{VideoStatusFailed, VideoStatusPending}:             true,
		{VideoStatusFailedPermanent, VideoStatusPending}:    true,
	}
	for _, from := range AllVideoStatuses() {
		for _, to := range AllVideoStatuses() {
			want := allowed[[2]VideoStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestDoneIsTerminalForWorker(t *testing.T) {
	for _, to := range AllVideoStatuses() {
		assert.False(t, CanTransition(VideoStatusDone, to), "done must not move to %s", to)
	}
}

func TestSourcesFor(t *testing.T) {
	assert.ElementsMatch(t, []VideoStatus{VideoStatusPending, VideoStatusRetrying}, SourcesFor(VideoStatusProcessing))
	assert.ElementsMatch(t, []VideoStatus{VideoStatusFailed, VideoStatusFailedPermanent}, SourcesFor(VideoStatusPending))
}

func TestParseVideoStatus(t *testing.T) {
	status, err := ParseVideoStatus(" Failed_Permanent ")
	require.NoError(t, err)
	assert.Equal(t, VideoStatusFailedPermanent, status)

	_, err = ParseVideoStatus("ready")
	assert.Error(t, err)
}

func TestVideoReady(t *testing.T) {
	v := &Video{Status: VideoStatusDone, TranscriptRef: "t", InsightsRef: "i"}
	assert.True(t, v.Ready())
	v.InsightsRef = ""
	assert.False(t, v.Ready())
	assert.False(t, (*Video)(nil).Ready())
}

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ErrValidation, "submit", "parse link", "bad link", cause)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "validation error: submit: parse link: bad link: boom", err.Error())

	assert.ErrorIs(t, Wrap(nil, "", "", "", nil), ErrTransient)
}

func TestQuotaInfo(t *testing.T) {
	q := NewQuotaInfo(3, 3)
	assert.Equal(t, 0, q.Remaining)
	assert.True(t, q.LimitReached)

	q = NewQuotaInfo(1, 3)
	assert.Equal(t, 2, q.Remaining)
	assert.False(t, q.LimitReached)

	err := &QuotaError{Reason: ErrQuotaExceeded, Quota: NewQuotaInfo(3, 3)}
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestGuestIDs(t *testing.T) {
	id := NewGuestID()
	assert.True(t, ValidGuestID(id))
	assert.False(t, ValidGuestID("guest_nope"))
	assert.False(t, ValidGuestID("user-1"))
	assert.True(t, IdentityFromOwnerID(id).IsGuest())
	assert.False(t, IdentityFromOwnerID("user-1").IsGuest())
	assert.True(t, Identity{}.IsZero())
}
