package app

import (
	"fmt"
	"strings"

	redisclient "github.com/plotwise/plotwise-backend/internal/clients/redis"
	"github.com/plotwise/plotwise-backend/internal/disclosure"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
)

var newRedisCreditLedger = redisclient.NewCreditLedger

// resolveCreditLedger picks the reveal-accounting backend. Redis is required
// whenever more than one instance serves a caller pool; the memory ledger is
// for local mode and tests.
func resolveCreditLedger(log *logger.Logger, cfg Config) (disclosure.CreditLedger, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.LedgerProvider))

	switch provider {
	case "redis":
		log.Info("Selecting credit ledger provider", "provider", provider)
		ledger, err := newRedisCreditLedger(log)
		if err != nil {
			return nil, fmt.Errorf("credit ledger bootstrap failed (provider=%q): %w", provider, err)
		}
		return ledger, nil
	case "memory":
		log.Info("Selecting credit ledger provider", "provider", provider)
		log.Warn("Memory credit ledger is per-process; reveals are not idempotent across instances")
		return disclosure.NewMemoryLedger(), nil
	default:
		return nil, fmt.Errorf("unsupported ledger provider %q (redis|memory)", provider)
	}
}
