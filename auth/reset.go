package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// DefaultResetTTL is the window within which a reset token can be redeemed.
const DefaultResetTTL = 10 * time.Minute

const resetTokenBytes = 32

// NewResetToken returns a fresh reset token and its storable digest. Only
// the digest is persisted; the raw value travels out-of-band to the
// principal and is never written anywhere server-side.
func NewResetToken() (raw, digest string, err error) {
	b := make([]byte, resetTokenBytes)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", "", fmt.Errorf("auth: generate reset token: %w", err)
	}
	raw = hex.EncodeToString(b)
	return raw, DigestResetToken(raw), nil
}

// DigestResetToken recomputes the stored digest from a presented raw token.
func DigestResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
