package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// secretChangedSkew backdates SecretChangedAt so a token minted in the same
// instant the secret changes still carries a later issue time.
const secretChangedSkew = 2 * time.Second

// Service orchestrates hashing, token issuance, persistence, and the reset
// flow.
type Service struct {
	store        PrincipalStore
	hasher       *SecretHasher
	codec        *TokenCodec
	notifier     ResetNotifier
	resetTTL     time.Duration
	resetURLBase string
	now          func() time.Time
}

// ServiceConfig wires dependencies for Service.
type ServiceConfig struct {
	Store        PrincipalStore
	Hasher       *SecretHasher
	Codec        *TokenCodec
	Notifier     ResetNotifier
	ResetTTL     time.Duration
	ResetURLBase string
	Now          func() time.Time
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("auth: service requires a principal store")
	}
	if cfg.Hasher == nil {
		return nil, errors.New("auth: service requires a secret hasher")
	}
	if cfg.Codec == nil {
		return nil, errors.New("auth: service requires a token codec")
	}
	svc := &Service{
		store:        cfg.Store,
		hasher:       cfg.Hasher,
		codec:        cfg.Codec,
		notifier:     cfg.Notifier,
		resetTTL:     cfg.ResetTTL,
		resetURLBase: strings.TrimRight(cfg.ResetURLBase, "/"),
		now:          cfg.Now,
	}
	if svc.resetTTL <= 0 {
		svc.resetTTL = DefaultResetTTL
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

// SignupInput carries the public registration fields. Role is not part of
// it: self-registration always yields a standard principal.
type SignupInput struct {
	Name          string
	Email         string
	Secret        []byte
	SecretConfirm []byte
}

// Signup validates input, persists a new standard principal, and returns it
// with a fresh token.
func (s *Service) Signup(ctx context.Context, in SignupInput) (Principal, string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Principal{}, "", fmt.Errorf("%w: name is required", ErrValidation)
	}
	email := NormalizeEmail(in.Email)
	if !ValidateEmail(email) {
		return Principal{}, "", fmt.Errorf("%w: malformed email", ErrValidation)
	}
	if err := ValidateSecret(in.Secret); err != nil {
		return Principal{}, "", err
	}
	if !bytes.Equal(in.Secret, in.SecretConfirm) {
		return Principal{}, "", fmt.Errorf("%w: secret confirmation does not match", ErrValidation)
	}

	digest, err := s.hasher.Hash(in.Secret)
	if err != nil {
		return Principal{}, "", err
	}
	now := s.now()
	p := Principal{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Role:         RoleStandard,
		SecretDigest: digest,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return Principal{}, "", err
	}
	token, err := s.codec.Issue(p.ID)
	if err != nil {
		return Principal{}, "", err
	}
	return p, token, nil
}

// Login verifies credentials and issues a token. Unknown email and wrong
// secret are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email string, secret []byte) (Principal, string, error) {
	email = NormalizeEmail(email)
	if email == "" || len(secret) == 0 {
		return Principal{}, "", fmt.Errorf("%w: email and secret are required", ErrValidation)
	}
	p, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, "", ErrInvalidCredentials
		}
		return Principal{}, "", err
	}
	if !s.hasher.Verify(secret, p.SecretDigest) {
		return Principal{}, "", ErrInvalidCredentials
	}
	token, err := s.codec.Issue(p.ID)
	if err != nil {
		return Principal{}, "", err
	}
	return p, token, nil
}

// Authenticate resolves a raw bearer token to a live principal. The token
// must verify, the principal must still exist, and the secret must not have
// changed since the token was issued.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (Principal, error) {
	claims, err := s.codec.Verify(rawToken)
	if err != nil {
		return Principal{}, ErrUnauthenticated
	}
	p, err := s.store.FindByID(ctx, claims.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}
	if p.SecretChangedAfter(claims.IssuedAt) {
		return Principal{}, ErrUnauthenticated
	}
	return p, nil
}

// ChangeSecret rotates an authenticated principal's secret. The current
// secret must verify first; the returned token replaces any the caller
// holds, which staleness checking has just invalidated.
func (s *Service) ChangeSecret(ctx context.Context, principalID string, current, next, confirm []byte) (Principal, string, error) {
	if principalID == "" {
		return Principal{}, "", fmt.Errorf("%w: empty principal id", ErrValidation)
	}
	p, err := s.store.FindByID(ctx, principalID)
	if err != nil {
		return Principal{}, "", err
	}
	if !s.hasher.Verify(current, p.SecretDigest) {
		return Principal{}, "", ErrInvalidCredentials
	}
	if err := ValidateSecret(next); err != nil {
		return Principal{}, "", err
	}
	if !bytes.Equal(next, confirm) {
		return Principal{}, "", fmt.Errorf("%w: secret confirmation does not match", ErrValidation)
	}
	digest, err := s.hasher.Hash(next)
	if err != nil {
		return Principal{}, "", err
	}
	changedAt := s.now().Add(-secretChangedSkew)
	if err := s.store.UpdateSecret(ctx, p.ID, digest, changedAt); err != nil {
		return Principal{}, "", err
	}
	p.SecretDigest = digest
	p.SecretChangedAt = &changedAt
	token, err := s.codec.Issue(p.ID)
	if err != nil {
		return Principal{}, "", err
	}
	return p, token, nil
}

// RequestReset generates a reset token, persists its digest with an expiry,
// and hands the raw token to the notifier. If delivery fails the persisted
// state is rolled back so the acknowledged-but-undeliverable window cannot
// leave a live token behind. Returns ErrNotFound for unknown emails; the
// transport layer decides whether to mask that.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if s.notifier == nil {
		return errors.New("auth: reset notifier missing")
	}
	p, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	raw, digest, err := NewResetToken()
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.resetTTL)
	if err := s.store.SetReset(ctx, p.ID, digest, expiresAt); err != nil {
		return err
	}
	if err := s.notifier.SendResetToken(ctx, p, raw, s.resetURL(raw)); err != nil {
		// Roll back even when the request context is already gone.
		if clearErr := s.store.ClearReset(context.WithoutCancel(ctx), p.ID); clearErr != nil {
			return fmt.Errorf("%w: %v (rollback failed: %v)", ErrDelivery, err, clearErr)
		}
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// RedeemReset exchanges a raw reset token for a new secret and a fresh
// session token. The store consumes the token atomically; a second
// redemption of the same token loses.
func (s *Service) RedeemReset(ctx context.Context, rawToken string, next, confirm []byte) (Principal, string, error) {
	if strings.TrimSpace(rawToken) == "" {
		return Principal{}, "", ErrInvalidResetToken
	}
	if err := ValidateSecret(next); err != nil {
		return Principal{}, "", err
	}
	if !bytes.Equal(next, confirm) {
		return Principal{}, "", fmt.Errorf("%w: secret confirmation does not match", ErrValidation)
	}
	digest, err := s.hasher.Hash(next)
	if err != nil {
		return Principal{}, "", err
	}
	now := s.now()
	p, err := s.store.ConsumeReset(ctx, DigestResetToken(rawToken), digest, now.Add(-secretChangedSkew), now)
	if err != nil {
		return Principal{}, "", err
	}
	token, err := s.codec.Issue(p.ID)
	if err != nil {
		return Principal{}, "", err
	}
	return p, token, nil
}

func (s *Service) resetURL(rawToken string) string {
	if s.resetURLBase == "" {
		return "/api/v1/auth/reset-password/" + rawToken
	}
	return s.resetURLBase + "/api/v1/auth/reset-password/" + rawToken
}
