package usecase

import (
	"strings"

	"github.com/vitovidale/video-insight-service/domain"
)

// IdentityResolver turns request credentials into a caller identity. A bearer
// credential always wins over the guest marker; a bearer credential that
// fails verification is rejected rather than falling back to the guest.
type IdentityResolver struct {
	Verifier domain.TokenVerifier
}

func NewIdentityResolver(verifier domain.TokenVerifier) *IdentityResolver {
	return &IdentityResolver{Verifier: verifier}
}

// Resolve inspects the Authorization header value and the guest marker.
func (r *IdentityResolver) Resolve(authorization, guestID string) (domain.Identity, error) {
	if token, present := bearerToken(authorization); present {
		return r.registered(token)
	}
	guestID = strings.TrimSpace(guestID)
	if guestID == "" {
		return domain.Identity{}, domain.Wrap(domain.ErrUnauthenticated, "identity", "", "no credential or guest marker", nil)
	}
	if !domain.ValidGuestID(guestID) {
		return domain.Identity{}, domain.Wrap(domain.ErrUnauthenticated, "identity", "", "malformed guest marker", nil)
	}
	return domain.GuestIdentity(guestID), nil
}

// ResolveConversion requires both a registered credential and a guest marker.
func (r *IdentityResolver) ResolveConversion(authorization, guestID string) (domain.Identity, string, error) {
	token, present := bearerToken(authorization)
	if !present {
		return domain.Identity{}, "", domain.Wrap(domain.ErrUnauthenticated, "identity", "conversion", "bearer credential required", nil)
	}
	user, err := r.registered(token)
	if err != nil {
		return domain.Identity{}, "", err
	}
	guestID = strings.TrimSpace(guestID)
	if guestID == "" {
		return domain.Identity{}, "", domain.Wrap(domain.ErrValidation, "identity", "conversion", "guest marker required", nil)
	}
	if !domain.ValidGuestID(guestID) {
		return domain.Identity{}, "", domain.Wrap(domain.ErrValidation, "identity", "conversion", "malformed guest marker", nil)
	}
	return user, guestID, nil
}

func (r *IdentityResolver) registered(token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, domain.Wrap(domain.ErrUnauthenticated, "identity", "verify token", "empty bearer token", nil)
	}
	if r.Verifier == nil {
		return domain.Identity{}, domain.Wrap(domain.ErrConfiguration, "identity", "verify token", "no token verifier configured", nil)
	}
	userID, err := r.Verifier.VerifyToken(token)
	if err != nil {
		return domain.Identity{}, domain.Wrap(domain.ErrUnauthenticated, "identity", "verify token", "invalid bearer token", err)
	}
	if strings.TrimSpace(userID) == "" {
		return domain.Identity{}, domain.Wrap(domain.ErrUnauthenticated, "identity", "verify token", "token has no subject", nil)
	}
	return domain.RegisteredIdentity(userID), nil
}

// bearerToken reports whether an Authorization value was supplied at all and
// returns the token following the Bearer scheme.
func bearerToken(authorization string) (string, bool) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(authorization, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(token), true
}
