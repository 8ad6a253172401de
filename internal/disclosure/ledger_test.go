package disclosure

import (
	"context"
	"errors"
	"sync"
	"testing"

	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
)

func TestMemoryLedger_RevealConsumesOneCredit(t *testing.T) {
	l := NewMemoryLedger()
	if err := l.Grant(context.Background(), "caller", 3); err != nil {
		t.Fatalf("grant: %v", err)
	}

	out, err := l.Reveal(context.Background(), "caller", "s1", "p1")
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if !out.Consumed || out.Remaining != 2 || out.AlreadyRevealed {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestMemoryLedger_ReRevealSameSessionIsFree(t *testing.T) {
	l := NewMemoryLedger()
	_ = l.Grant(context.Background(), "caller", 1)

	if _, err := l.Reveal(context.Background(), "caller", "s1", "p1"); err != nil {
		t.Fatalf("first reveal: %v", err)
	}
	out, err := l.Reveal(context.Background(), "caller", "s1", "p1")
	if err != nil {
		t.Fatalf("second reveal: %v", err)
	}
	if out.Consumed || !out.AlreadyRevealed || out.Remaining != 0 {
		t.Fatalf("expected free re-reveal, got %+v", out)
	}
}

func TestMemoryLedger_ReRevealAcrossSessionsCharges(t *testing.T) {
	l := NewMemoryLedger()
	_ = l.Grant(context.Background(), "caller", 2)

	if _, err := l.Reveal(context.Background(), "caller", "s1", "p1"); err != nil {
		t.Fatalf("first reveal: %v", err)
	}
	out, err := l.Reveal(context.Background(), "caller", "s2", "p1")
	if err != nil {
		t.Fatalf("second reveal: %v", err)
	}
	if !out.Consumed || out.Remaining != 0 {
		t.Fatalf("expected a charged reveal in the new session, got %+v", out)
	}
}

func TestMemoryLedger_ZeroBalanceRefused(t *testing.T) {
	l := NewMemoryLedger()

	out, err := l.Reveal(context.Background(), "caller", "s1", "p1")
	if !errors.Is(err, pkgerrors.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if out.Consumed || out.Remaining != 0 {
		t.Fatalf("refused reveal must not consume, got %+v", out)
	}
	// The refused parcel stays unrevealed: funding later charges normally.
	_ = l.Grant(context.Background(), "caller", 1)
	out, err = l.Reveal(context.Background(), "caller", "s1", "p1")
	if err != nil || !out.Consumed {
		t.Fatalf("expected a charged reveal after funding, got %+v err=%v", out, err)
	}
}

func TestMemoryLedger_ConcurrentRevealsNeverOverdraw(t *testing.T) {
	l := NewMemoryLedger()
	_ = l.Grant(context.Background(), "caller", 1)

	var wg sync.WaitGroup
	results := make([]error, 2)
	parcels := []string{"p1", "p2"}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = l.Reveal(context.Background(), "caller", "s1", parcels[i])
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, pkgerrors.ErrInsufficientCredits) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one reveal to win the last credit, got %d", succeeded)
	}
	balance, _ := l.Balance(context.Background(), "caller")
	if balance != 0 {
		t.Fatalf("expected zero balance, got %d", balance)
	}
}

func TestMemoryLedger_GrantRejectsNonPositive(t *testing.T) {
	l := NewMemoryLedger()
	if err := l.Grant(context.Background(), "caller", 0); err == nil {
		t.Fatalf("expected error for zero grant")
	}
	if err := l.Grant(context.Background(), "caller", -5); err == nil {
		t.Fatalf("expected error for negative grant")
	}
}

func TestMemoryLedger_EmptySessionUsesDefaultKey(t *testing.T) {
	l := NewMemoryLedger()
	_ = l.Grant(context.Background(), "caller", 1)

	if _, err := l.Reveal(context.Background(), "caller", "", "p1"); err != nil {
		t.Fatalf("first reveal: %v", err)
	}
	out, err := l.Reveal(context.Background(), "caller", "", "p1")
	if err != nil || !out.AlreadyRevealed {
		t.Fatalf("expected idempotent re-reveal with empty session, got %+v err=%v", out, err)
	}
}
