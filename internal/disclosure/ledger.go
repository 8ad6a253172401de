package disclosure

import (
	"context"
	"fmt"
	"strings"
	"sync"

	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
)

// RevealOutcome reports what a reveal attempt did to the caller's balance.
type RevealOutcome struct {
	// Consumed is true when this attempt spent a credit.
	Consumed bool
	// Remaining is the balance after the attempt.
	Remaining int64
	// AlreadyRevealed is true when the parcel was revealed earlier in the
	// session, making this attempt free.
	AlreadyRevealed bool
}

// CreditLedger tracks per-caller reveal credits. The balance itself is
// funded by the external payment collaborator; implementations only perform
// the atomic reveal accounting. Reveal must be an atomic
// decrement-if-positive so concurrent reveals never overdraw: it returns
// pkg ErrInsufficientCredits (with the outcome filled in) on a zero balance.
type CreditLedger interface {
	Reveal(ctx context.Context, callerID, sessionID, parcelID string) (RevealOutcome, error)
	Balance(ctx context.Context, callerID string) (int64, error)
	Grant(ctx context.Context, callerID string, amount int64) error
	Close() error
}

// MemoryLedger is the single-process CreditLedger used in tests and
// dev deployments without a shared store. A single mutex serializes every
// reveal, which is the whole point: the decrement and the revealed-set
// insert happen under one lock.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	revealed map[string]map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]int64),
		revealed: make(map[string]map[string]struct{}),
	}
}

func (l *MemoryLedger) Reveal(_ context.Context, callerID, sessionID, parcelID string) (RevealOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := sessionKey(callerID, sessionID)
	if set, ok := l.revealed[key]; ok {
		if _, seen := set[parcelID]; seen {
			return RevealOutcome{AlreadyRevealed: true, Remaining: l.balances[callerID]}, nil
		}
	}

	balance := l.balances[callerID]
	if balance <= 0 {
		return RevealOutcome{Remaining: balance}, pkgerrors.ErrInsufficientCredits
	}

	balance--
	l.balances[callerID] = balance
	set, ok := l.revealed[key]
	if !ok {
		set = make(map[string]struct{})
		l.revealed[key] = set
	}
	set[parcelID] = struct{}{}
	return RevealOutcome{Consumed: true, Remaining: balance}, nil
}

func (l *MemoryLedger) Balance(_ context.Context, callerID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[callerID], nil
}

func (l *MemoryLedger) Grant(_ context.Context, callerID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[callerID] += amount
	return nil
}

func (l *MemoryLedger) Close() error { return nil }

func sessionKey(callerID, sessionID string) string {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = "default"
	}
	return callerID + ":" + sessionID
}
