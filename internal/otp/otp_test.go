package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/storage/memory"
)

func newTestCodes() (*Codes, *time.Time) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c := New(memory.New(), Config{TTL: 10 * time.Minute, MaxAttempts: 5, Cooldown: time.Minute})
	c.cost = bcrypt.MinCost
	c.now = func() time.Time { return now }
	return c, &now
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q has %d digits", code, len(code))
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("code %q is not numeric", code)
			}
		}
	}
}

func TestIssueAndVerify(t *testing.T) {
	c, _ := newTestCodes()
	ctx := context.Background()

	code, pending, err := c.Issue(ctx, "admin-1", models.OTPContactEmail, "new@casaolivo.example")
	if err != nil {
		t.Fatal(err)
	}
	if pending.CodeHash == code {
		t.Fatal("code stored in plain text")
	}

	got, err := c.Verify(ctx, "admin-1", code)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.Purpose != models.OTPContactEmail || got.NewValue != "new@casaolivo.example" {
		t.Errorf("pending = %+v", got)
	}
	if _, err := c.Verify(ctx, "admin-1", code); !errors.Is(err, ErrNoPending) {
		t.Errorf("reuse err = %v, want ErrNoPending", err)
	}
}

func TestCooldown(t *testing.T) {
	c, now := newTestCodes()
	ctx := context.Background()

	if _, _, err := c.Issue(ctx, "admin-1", models.OTPContactPhone, "+39 333 000"); err != nil {
		t.Fatal(err)
	}
	*now = now.Add(20 * time.Second)
	_, _, err := c.Issue(ctx, "admin-1", models.OTPContactPhone, "+39 333 000")
	var cd *CooldownError
	if !errors.As(err, &cd) || cd.RetryAfter != 40*time.Second {
		t.Fatalf("err = %v, want 40s cooldown", err)
	}

	*now = now.Add(time.Minute)
	if _, _, err := c.Issue(ctx, "admin-1", models.OTPContactPhone, "+39 333 111"); err != nil {
		t.Errorf("after cooldown: %v", err)
	}
}

func TestExpiry(t *testing.T) {
	c, now := newTestCodes()
	ctx := context.Background()
	code, _, err := c.Issue(ctx, "admin-1", models.OTPContactEmail, "a@b.example")
	if err != nil {
		t.Fatal(err)
	}
	*now = now.Add(10 * time.Minute)
	if _, err := c.Verify(ctx, "admin-1", code); !errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

func TestAttemptLimit(t *testing.T) {
	c, _ := newTestCodes()
	ctx := context.Background()
	code, _, err := c.Issue(ctx, "admin-1", models.OTPContactEmail, "a@b.example")
	if err != nil {
		t.Fatal(err)
	}
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 1; i <= 4; i++ {
		if _, err := c.Verify(ctx, "admin-1", wrong); !errors.Is(err, ErrWrongCode) {
			t.Fatalf("attempt %d err = %v, want ErrWrongCode", i, err)
		}
	}
	if _, err := c.Verify(ctx, "admin-1", wrong); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("fifth attempt err = %v, want ErrTooManyAttempts", err)
	}
	if _, err := c.Verify(ctx, "admin-1", code); !errors.Is(err, ErrTooManyAttempts) {
		t.Errorf("right code after lockout err = %v", err)
	}
}

func TestParallelWrongCodesShareTheLimit(t *testing.T) {
	c, _ := newTestCodes()
	ctx := context.Background()
	code, _, err := c.Issue(ctx, "admin-1", models.OTPContactEmail, "a@b.example")
	if err != nil {
		t.Fatal(err)
	}
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wrongErr int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Verify(ctx, "admin-1", wrong)
			if errors.Is(err, ErrWrongCode) {
				mu.Lock()
				wrongErr++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wrongErr != 4 {
		t.Errorf("%d guesses answered wrong code, want 4", wrongErr)
	}
	pending, err := c.store.GetPendingOTP(ctx, "admin-1")
	if err != nil {
		t.Fatal(err)
	}
	if pending.Attempts != 5 {
		t.Errorf("attempts = %d, want 5", pending.Attempts)
	}
}

func TestDiscardLiftsCooldown(t *testing.T) {
	c, _ := newTestCodes()
	ctx := context.Background()
	if _, _, err := c.Issue(ctx, "admin-1", models.OTPContactEmail, "a@b.example"); err != nil {
		t.Fatal(err)
	}
	if err := c.Discard(ctx, "admin-1"); err != nil {
		t.Fatal(err)
	}
	if err := c.Discard(ctx, "admin-1"); err != nil {
		t.Errorf("second discard: %v", err)
	}
	if _, _, err := c.Issue(ctx, "admin-1", models.OTPContactEmail, "a@b.example"); err != nil {
		t.Errorf("issue after discard: %v", err)
	}
}
