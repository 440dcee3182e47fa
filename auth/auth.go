package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Role partitions principals for authorization decisions. The set is closed;
// anything outside it is rejected at the edges.
type Role string

const (
	RoleStandard        Role = "standard"
	RoleContributor     Role = "contributor"
	RoleLeadContributor Role = "lead-contributor"
	RoleAdministrator   Role = "administrator"
)

// ParseRole validates a role string against the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
	}
	return r, nil
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleStandard, RoleContributor, RoleLeadContributor, RoleAdministrator:
		return true
	}
	return false
}

// Principal models the persisted identity record. SecretDigest and the reset
// fields never leave the package boundary; View is the outward shape.
type Principal struct {
	ID              string
	Name            string
	Email           string
	Role            Role
	SecretDigest    string
	SecretChangedAt *time.Time
	ResetDigest     string
	ResetExpiresAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PrincipalView is the shape handed to transports and logs.
type PrincipalView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// View strips digests and reset state.
func (p Principal) View() PrincipalView {
	return PrincipalView{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Role:      p.Role,
		CreatedAt: p.CreatedAt,
	}
}

// SecretChangedAfter reports whether the secret changed at or after t. A
// token issued in the same instant the secret changed counts as stale.
func (p Principal) SecretChangedAfter(t time.Time) bool {
	if p.SecretChangedAt == nil {
		return false
	}
	return !p.SecretChangedAt.Before(t)
}

// PrincipalStore abstracts persistence so callers can map to any table
// schema.
type PrincipalStore interface {
	Create(ctx context.Context, p Principal) error
	FindByEmail(ctx context.Context, email string) (Principal, error)
	FindByID(ctx context.Context, id string) (Principal, error)
	UpdateSecret(ctx context.Context, id, digest string, changedAt time.Time) error
	SetReset(ctx context.Context, id, digest string, expiresAt time.Time) error
	ClearReset(ctx context.Context, id string) error

	// ConsumeReset atomically matches an unexpired reset digest, installs
	// the new secret digest, and clears the reset state in one step. Two
	// concurrent redemptions of the same token must not both succeed; the
	// loser gets ErrInvalidResetToken.
	ConsumeReset(ctx context.Context, digest, newDigest string, changedAt, now time.Time) (Principal, error)
}

// ResetNotifier delivers reset tokens out-of-band (email, SMS, webhook).
type ResetNotifier interface {
	SendResetToken(ctx context.Context, p Principal, rawToken, resetURL string) error
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
