package disclosure

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/plotwise/plotwise-backend/internal/domain"
	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
)

// PaymentPrompt is the structured handoff to the external payment
// collaborator, returned instead of partial data when a reveal fails on
// balance.
type PaymentPrompt struct {
	CallerID        string `json:"caller_id"`
	RequiredCredits int64  `json:"required_credits"`
	Balance         int64  `json:"balance"`
	Message         string `json:"message"`
}

// Policy rations result detail against the caller's credit balance. Counts
// and teasers are always free; full detail for one parcel costs one credit,
// idempotent within a session.
type Policy struct {
	log    *logger.Logger
	ledger CreditLedger
}

func NewPolicy(log *logger.Logger, ledger CreditLedger) (*Policy, error) {
	if log == nil {
		return nil, fmt.Errorf("disclosure: logger required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("disclosure: credit ledger required")
	}
	return &Policy{log: log.With("service", "DisclosurePolicy"), ledger: ledger}, nil
}

// Teaser builds the free reduced-detail view of a parcel. It carries the
// district-level location and a rounded area class, never the id or exact
// centroid.
func (p *Policy) Teaser(parcel *domain.Parcel, districtName, cityName string, highlights []string) domain.Teaser {
	return domain.Teaser{
		ApproxLocation: approxLocation(districtName, cityName),
		AreaClass:      AreaClass(parcel.AreaM2, parcel.SizeClass),
		Highlights:     highlights,
	}
}

// Reveal charges the caller one credit (free on re-reveal within the
// session) and assembles the full-detail view. On an exhausted balance it
// returns a PaymentPrompt alongside pkg ErrInsufficientCredits and no
// parcel data.
func (p *Policy) Reveal(ctx context.Context, callerID, sessionID string, parcel *domain.Parcel, explanation string, highlights []string) (*domain.Reveal, *PaymentPrompt, error) {
	if parcel == nil {
		return nil, nil, fmt.Errorf("disclosure: parcel required")
	}
	if strings.TrimSpace(callerID) == "" {
		return nil, nil, pkgerrors.ErrInvalidPreference
	}

	outcome, err := p.ledger.Reveal(ctx, callerID, sessionID, parcel.ID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInsufficientCredits) {
			p.log.Info("Reveal refused on balance",
				"caller_id", callerID,
				"balance", outcome.Remaining)
			return nil, &PaymentPrompt{
				CallerID:        callerID,
				RequiredCredits: 1,
				Balance:         outcome.Remaining,
				Message:         "Revealing a parcel costs 1 credit. Top up to continue.",
			}, pkgerrors.ErrInsufficientCredits
		}
		return nil, nil, err
	}

	p.log.Info("Parcel revealed",
		"caller_id", callerID,
		"consumed", outcome.Consumed,
		"already_revealed", outcome.AlreadyRevealed,
		"remaining", outcome.Remaining)

	return &domain.Reveal{
		Parcel:      parcel,
		Explanation: explanation,
		Highlights:  highlights,
	}, nil, nil
}

// Balance exposes the ledger balance for the response envelope.
func (p *Policy) Balance(ctx context.Context, callerID string) (int64, error) {
	return p.ledger.Balance(ctx, callerID)
}

// AreaClass renders the rounded, bucket-labelled area. Rounding widens with
// the magnitude so the teaser never pins down the exact parcel.
func AreaClass(areaM2 float64, size domain.SizeClass) string {
	step := 100.0
	switch {
	case areaM2 >= 10000:
		step = 1000
	case areaM2 >= 1000:
		step = 500
	}
	rounded := math.Round(areaM2/step) * step
	return fmt.Sprintf("%s, ~%.0f m²", size, rounded)
}

func approxLocation(districtName, cityName string) string {
	switch {
	case districtName != "" && cityName != "":
		return districtName + ", " + cityName
	case districtName != "":
		return districtName
	case cityName != "":
		return cityName
	default:
		return "unknown"
	}
}
