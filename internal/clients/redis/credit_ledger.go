package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/plotwise/plotwise-backend/internal/disclosure"
	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
)

// revealScript performs the whole reveal decision server-side so concurrent
// reveals for one caller cannot overdraw the balance: re-reveal is free,
// otherwise decrement-if-positive and record the reveal, all in one atomic
// EVAL.
var revealScript = goredis.NewScript(`
local revealed = KEYS[1]
local balance = KEYS[2]
local parcel = ARGV[1]
if redis.call('SISMEMBER', revealed, parcel) == 1 then
  local bal = tonumber(redis.call('GET', balance) or '0')
  return {0, bal}
end
local bal = tonumber(redis.call('GET', balance) or '0')
if bal <= 0 then
  return {-1, bal}
end
bal = redis.call('DECR', balance)
redis.call('SADD', revealed, parcel)
return {1, bal}
`)

type creditLedger struct {
	log        *logger.Logger
	rdb        *goredis.Client
	keyPrefix  string
	sessionTTL time.Duration
}

// NewCreditLedger connects to REDIS_ADDR. The credit balance itself is
// written by the external payment collaborator; this ledger only performs
// atomic reveal accounting against it.
func NewCreditLedger(log *logger.Logger) (disclosure.CreditLedger, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	prefix := strings.TrimSpace(os.Getenv("REDIS_KEY_PREFIX"))
	if prefix == "" {
		prefix = "pw"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &creditLedger{
		log:        log.With("service", "RedisCreditLedger"),
		rdb:        rdb,
		keyPrefix:  prefix,
		sessionTTL: 24 * time.Hour,
	}, nil
}

func (l *creditLedger) Reveal(ctx context.Context, callerID, sessionID, parcelID string) (disclosure.RevealOutcome, error) {
	if l == nil || l.rdb == nil {
		return disclosure.RevealOutcome{}, fmt.Errorf("credit ledger not initialized")
	}
	revealedKey := l.revealedKey(callerID, sessionID)
	balanceKey := l.balanceKey(callerID)

	res, err := revealScript.Run(ctx, l.rdb, []string{revealedKey, balanceKey}, parcelID).Slice()
	if err != nil {
		return disclosure.RevealOutcome{}, fmt.Errorf("redis reveal: %w", err)
	}
	if len(res) != 2 {
		return disclosure.RevealOutcome{}, fmt.Errorf("redis reveal: unexpected reply %v", res)
	}
	state, _ := res[0].(int64)
	remaining, _ := res[1].(int64)

	switch state {
	case 1:
		// First reveal in this session; keep the revealed-set bounded.
		_ = l.rdb.Expire(ctx, revealedKey, l.sessionTTL).Err()
		return disclosure.RevealOutcome{Consumed: true, Remaining: remaining}, nil
	case 0:
		return disclosure.RevealOutcome{AlreadyRevealed: true, Remaining: remaining}, nil
	default:
		return disclosure.RevealOutcome{Remaining: remaining}, pkgerrors.ErrInsufficientCredits
	}
}

func (l *creditLedger) Balance(ctx context.Context, callerID string) (int64, error) {
	if l == nil || l.rdb == nil {
		return 0, fmt.Errorf("credit ledger not initialized")
	}
	val, err := l.rdb.Get(ctx, l.balanceKey(callerID)).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis balance: %w", err)
	}
	return val, nil
}

func (l *creditLedger) Grant(ctx context.Context, callerID string, amount int64) error {
	if l == nil || l.rdb == nil {
		return fmt.Errorf("credit ledger not initialized")
	}
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive")
	}
	return l.rdb.IncrBy(ctx, l.balanceKey(callerID), amount).Err()
}

func (l *creditLedger) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}

func (l *creditLedger) balanceKey(callerID string) string {
	return l.keyPrefix + ":credits:" + callerID
}

func (l *creditLedger) revealedKey(callerID, sessionID string) string {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = "default"
	}
	return l.keyPrefix + ":revealed:" + callerID + ":" + sessionID
}
