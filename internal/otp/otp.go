// Package otp issues and checks the one-time codes that confirm a change to
// the site's contact details.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/storage"
)

var (
	ErrNoPending       = errors.New("no code was requested")
	ErrExpired         = errors.New("code has expired, request a new one")
	ErrTooManyAttempts = errors.New("too many wrong codes, request a new one")
	ErrWrongCode       = errors.New("wrong code")
)

const codeDigits = 6

// CooldownError is returned when a new code is asked for too soon.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("wait %d seconds before requesting another code", int(e.RetryAfter.Seconds()+0.5))
}

// Store is where pending codes live, one per admin.
type Store interface {
	GetPendingOTP(ctx context.Context, adminID string) (*models.PendingOTP, error)
	SavePendingOTP(ctx context.Context, otp *models.PendingOTP) error
	DeletePendingOTP(ctx context.Context, adminID string) error
	UseOTPAttempt(ctx context.Context, adminID string, limit int) (*models.PendingOTP, bool, error)
}

type Config struct {
	TTL         time.Duration
	MaxAttempts int
	Cooldown    time.Duration
}

// Codes manages pending codes.
type Codes struct {
	store Store
	cfg   Config
	cost  int
	now   func() time.Time
}

func New(store Store, cfg Config) *Codes {
	return &Codes{store: store, cfg: cfg, cost: bcrypt.DefaultCost, now: time.Now}
}

// generateCode returns a uniformly random zero-padded 6-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// Issue creates a code for adminID to confirm changing purpose to newValue.
// It replaces any earlier pending code once the cooldown has passed.
func (c *Codes) Issue(ctx context.Context, adminID string, purpose models.OTPPurpose, newValue string) (string, *models.PendingOTP, error) {
	now := c.now()
	prev, err := c.store.GetPendingOTP(ctx, adminID)
	switch {
	case err == nil:
		if wait := prev.SentAt.Add(c.cfg.Cooldown).Sub(now); wait > 0 {
			return "", nil, &CooldownError{RetryAfter: wait}
		}
	case !errors.Is(err, storage.ErrNotFound):
		return "", nil, fmt.Errorf("failed to load pending code: %w", err)
	}

	code, err := generateCode()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), c.cost)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash code: %w", err)
	}

	pending := &models.PendingOTP{
		AdminID:   adminID,
		Purpose:   purpose,
		NewValue:  newValue,
		CodeHash:  string(hash),
		SentAt:    now,
		ExpiresAt: now.Add(c.cfg.TTL),
	}
	if err := c.store.SavePendingOTP(ctx, pending); err != nil {
		return "", nil, fmt.Errorf("failed to save pending code: %w", err)
	}
	return code, pending, nil
}

// Verify checks code against adminID's pending code. On success the pending
// change is returned and removed. Every check uses one of MaxAttempts.
func (c *Codes) Verify(ctx context.Context, adminID, code string) (*models.PendingOTP, error) {
	pending, err := c.store.GetPendingOTP(ctx, adminID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoPending
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending code: %w", err)
	}

	if !c.now().Before(pending.ExpiresAt) {
		_ = c.store.DeletePendingOTP(ctx, adminID)
		return nil, ErrExpired
	}

	pending, counted, err := c.store.UseOTPAttempt(ctx, adminID, c.cfg.MaxAttempts)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoPending
	}
	if err != nil {
		return nil, fmt.Errorf("failed to count attempt: %w", err)
	}
	if !counted {
		return nil, ErrTooManyAttempts
	}

	if bcrypt.CompareHashAndPassword([]byte(pending.CodeHash), []byte(code)) != nil {
		if pending.Attempts >= c.cfg.MaxAttempts {
			return nil, ErrTooManyAttempts
		}
		return nil, ErrWrongCode
	}

	if err := c.store.DeletePendingOTP(ctx, adminID); err != nil {
		return nil, fmt.Errorf("failed to clear pending code: %w", err)
	}
	return pending, nil
}

// Discard drops adminID's pending code, e.g. when it could not be delivered.
func (c *Codes) Discard(ctx context.Context, adminID string) error {
	if err := c.store.DeletePendingOTP(ctx, adminID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to discard pending code: %w", err)
	}
	return nil
}
