package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitovidale/video-insight-service/domain"
)

func TestIdentityResolverResolve(t *testing.T) {
	resolver := NewIdentityResolver(stubVerifier{"good": "user-1"})
	guestID := domain.NewGuestID()

	tests := []struct {
		name    string
		auth    string
		guest   string
		want    domain.Identity
		wantErr error
	}{
		{name: "bearer", auth: "Bearer good", want: domain.RegisteredIdentity("user-1")},
		{name: "bearer wins over guest", auth: "bearer good", guest: guestID, want: domain.RegisteredIdentity("user-1")},
		{name: "guest only", guest: guestID, want: domain.GuestIdentity(guestID)},
		{name: "invalid bearer does not fall back", auth: "Bearer forged", guest: guestID, wantErr: domain.ErrUnauthenticated},
		{name: "wrong scheme", auth: "Basic Zm9v", wantErr: domain.ErrUnauthenticated},
		{name: "malformed guest", guest: "guest_123", wantErr: domain.ErrUnauthenticated},
		{name: "nothing", wantErr: domain.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.Resolve(tt.auth, tt.guest)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIdentityResolverConversionNeedsBoth(t *testing.T) {
	resolver := NewIdentityResolver(stubVerifier{"good": "user-1"})
	guestID := domain.NewGuestID()

	user, gid, err := resolver.ResolveConversion("Bearer good", guestID)
	require.NoError(t, err)
	assert.Equal(t, domain.RegisteredIdentity("user-1"), user)
	assert.Equal(t, guestID, gid)

	_, _, err = resolver.ResolveConversion("", guestID)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, _, err = resolver.ResolveConversion("Bearer good", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, _, err = resolver.ResolveConversion("Bearer forged", guestID)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}
