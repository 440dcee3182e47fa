package auth

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultHashCost matches the work factor the platform has always used.
	DefaultHashCost = 12

	MinSecretLength = 8
	// MaxSecretLength caps input at what bcrypt actually consumes.
	MaxSecretLength = 72
)

// ValidateSecret checks a candidate secret against the length policy.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("%w: secret must be at least %d characters", ErrValidation, MinSecretLength)
	}
	if len(secret) > MaxSecretLength {
		return fmt.Errorf("%w: secret must be at most %d characters", ErrValidation, MaxSecretLength)
	}
	return nil
}

// SecretHasher produces and verifies bcrypt digests.
type SecretHasher struct {
	cost int
}

// SecretHasherOption configures SecretHasher.
type SecretHasherOption func(*SecretHasher)

// WithHashCost sets the bcrypt cost factor; out-of-range values are ignored.
func WithHashCost(cost int) SecretHasherOption {
	return func(h *SecretHasher) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			h.cost = cost
		}
	}
}

// NewSecretHasher creates a bcrypt-based secret hasher.
func NewSecretHasher(opts ...SecretHasherOption) *SecretHasher {
	h := &SecretHasher{cost: DefaultHashCost}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Hash generates a bcrypt digest for the given secret. The digest is
// self-describing; no separate salt or parameters need storing.
func (h *SecretHasher) Hash(secret []byte) (string, error) {
	digest, err := bcrypt.GenerateFromPassword(secret, h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: bcrypt hash failed: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether the secret matches the stored digest. Malformed
// digests verify as false rather than erroring; the caller cannot
// distinguish them from a wrong secret, which is the point.
func (h *SecretHasher) Verify(secret []byte, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), secret) == nil
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates an email address format.
func ValidateEmail(email string) bool {
	email = strings.TrimSpace(email)
	if len(email) == 0 || len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}
