package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type IdentityKind string

const (
	IdentityRegistered IdentityKind = "registered"
	IdentityGuest      IdentityKind = "guest"
)

// GuestIDPrefix marks anonymous owner ids.
const GuestIDPrefix = "guest_"

const (
	DefaultGuestMaxVideos  = 3
	DefaultGuestSessionTTL = 7 * 24 * time.Hour
)

// Identity is the resolved caller: exactly one of registered or guest.
type Identity struct {
	Kind IdentityKind
	ID   string
}

func RegisteredIdentity(userID string) Identity {
	return Identity{Kind: IdentityRegistered, ID: userID}
}

func GuestIdentity(guestID string) Identity {
	return Identity{Kind: IdentityGuest, ID: guestID}
}

// IdentityFromOwnerID recovers the identity kind from a stored owner id.
func IdentityFromOwnerID(ownerID string) Identity {
	if strings.HasPrefix(ownerID, GuestIDPrefix) {
		return GuestIdentity(ownerID)
	}
	return RegisteredIdentity(ownerID)
}

func (i Identity) IsGuest() bool { return i.Kind == IdentityGuest }

func (i Identity) IsZero() bool { return i.Kind == "" || strings.TrimSpace(i.ID) == "" }

func (i Identity) String() string { return string(i.Kind) + ":" + i.ID }

// NewGuestID returns a fresh guest marker.
func NewGuestID() string {
	return GuestIDPrefix + uuid.NewString()
}

// ValidGuestID reports whether raw has the guest_<uuid> form.
func ValidGuestID(raw string) bool {
	rest, ok := strings.CutPrefix(raw, GuestIDPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
