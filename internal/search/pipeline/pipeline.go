package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/plotwise/plotwise-backend/internal/disclosure"
	"github.com/plotwise/plotwise-backend/internal/domain"
	"github.com/plotwise/plotwise-backend/internal/observability"
	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
	"github.com/plotwise/plotwise-backend/internal/platform/vector"
	"github.com/plotwise/plotwise-backend/internal/repos"
	"github.com/plotwise/plotwise-backend/internal/search/explain"
	"github.com/plotwise/plotwise-backend/internal/search/fusion"
	"github.com/plotwise/plotwise-backend/internal/search/normalize"
	"github.com/plotwise/plotwise-backend/internal/snapshot"
)

const (
	DefaultBranchTimeout = 2 * time.Second
	DefaultTeaserLimit   = 3
	DefaultPageSize      = 20
)

// Response is the disclosure-shaped search result: the count and teasers are
// free, full detail stays behind the reveal endpoint.
type Response struct {
	TotalCount     int             `json:"total_count"`
	Teasers        []domain.Teaser `json:"teaser"`
	RankedIDsPage  []string        `json:"ranked_ids_page"`
	ScopeBreakdown map[string]int  `json:"scope_breakdown,omitempty"`
	Degraded       bool            `json:"degraded"`
	// SkippedBranches names the retrieval branches that did not contribute
	// to this response (skipped, timed out, or failed).
	SkippedBranches []string `json:"skipped_branches,omitempty"`
	Generation      string   `json:"generation"`
}

// Pipeline wires the retrieval stages together. It is stateless per request;
// every request grabs one snapshot pointer and works against that generation
// end to end.
type Pipeline struct {
	log        *logger.Logger
	normalizer *normalize.Normalizer
	snapshots  *snapshot.Provider
	policy     *disclosure.Policy
	parcels    repos.ParcelRepo
	tuning     fusion.Tuning

	branchTimeout time.Duration
	teaserLimit   int
	pageSize      int
}

func New(log *logger.Logger, normalizer *normalize.Normalizer, snapshots *snapshot.Provider, policy *disclosure.Policy, parcels repos.ParcelRepo, tuning fusion.Tuning, branchTimeout time.Duration, teaserLimit, pageSize int) (*Pipeline, error) {
	if log == nil {
		return nil, fmt.Errorf("pipeline: logger required")
	}
	if normalizer == nil || snapshots == nil || policy == nil || parcels == nil {
		return nil, fmt.Errorf("pipeline: all collaborators required")
	}
	if branchTimeout <= 0 {
		branchTimeout = DefaultBranchTimeout
	}
	if teaserLimit <= 0 {
		teaserLimit = DefaultTeaserLimit
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pipeline{
		log:           log.With("service", "RetrievalPipeline"),
		normalizer:    normalizer,
		snapshots:     snapshots,
		policy:        policy,
		parcels:       parcels,
		tuning:        tuning,
		branchTimeout: branchTimeout,
		teaserLimit:   teaserLimit,
		pageSize:      pageSize,
	}, nil
}

// branchRun is one retrieval branch's result slot, filled by its goroutine.
type branchRun struct {
	name    string
	ran     bool
	skipped bool
	err     error
}

func (b *branchRun) outcome() string {
	switch {
	case !b.ran:
		return "not_run"
	case b.skipped:
		return "skipped"
	case errors.Is(b.err, context.DeadlineExceeded):
		return "timeout"
	case b.err != nil:
		return "error"
	default:
		return "ok"
	}
}

// Search runs the full retrieval flow: normalize, fan out to the graph and
// vector branches concurrently, fuse, and shape the disclosure response.
// Branch failures degrade the response; only the total loss of every branch
// fails the request.
func (p *Pipeline) Search(ctx context.Context, raw domain.RawPreference) (*Response, error) {
	snap := p.snapshots.Current()
	if snap == nil {
		return nil, fmt.Errorf("%w: no snapshot generation loaded", pkgerrors.ErrRetrievalUnavailable)
	}

	q, err := p.normalizer.Normalize(ctx, raw, snap.Graph, snap.Proximity)
	if err != nil {
		return nil, err
	}

	var (
		graphRes  = branchRun{name: "graph", ran: true}
		semRes    = branchRun{name: "semantic"}
		structRes = branchRun{name: "structural"}

		matchIDs       []string
		matchTotal     int
		scopeBreakdown map[string]int
		semantic       []vector.Match
		structural     []vector.Match
	)

	g := new(errgroup.Group)

	g.Go(func() error {
		started := time.Now()
		branchCtx, cancel := context.WithTimeout(ctx, p.branchTimeout)
		defer cancel()
		res, err := snap.Graph.Match(branchCtx, q.Filters)
		graphRes.err = err
		if err == nil {
			matchIDs, matchTotal, scopeBreakdown = res.IDs, res.Total, res.ScopeBreakdown
		}
		observability.Current().ObserveBranch(graphRes.name, graphRes.outcome(), time.Since(started))
		return nil
	})

	if strings.TrimSpace(raw.FreeText) != "" {
		semRes.ran = true
		if q.HasSemanticBranch() && snap.Vectors != nil {
			g.Go(func() error {
				started := time.Now()
				branchCtx, cancel := context.WithTimeout(ctx, p.branchTimeout)
				defer cancel()
				semantic, semRes.err = snap.Vectors.QuerySemantic(branchCtx, q.TextVector, p.tuning.VectorTopK, nil)
				observability.Current().ObserveBranch(semRes.name, semRes.outcome(), time.Since(started))
				return nil
			})
		} else {
			// Embedding was unavailable or failed during normalization.
			semRes.skipped = true
			observability.Current().ObserveBranch(semRes.name, semRes.outcome(), 0)
		}
	}

	if q.HasStructuralBranch() {
		structRes.ran = true
		if snap.Vectors != nil {
			g.Go(func() error {
				started := time.Now()
				branchCtx, cancel := context.WithTimeout(ctx, p.branchTimeout)
				defer cancel()
				structural, structRes.err = snap.Vectors.QueryStructuralBySeed(branchCtx, q.SeedParcel, p.tuning.VectorTopK, nil)
				if errors.Is(structRes.err, pkgerrors.ErrNotFound) {
					// Seed parcel has no stored embedding in this generation.
					structRes.err = nil
					structRes.skipped = true
				}
				observability.Current().ObserveBranch(structRes.name, structRes.outcome(), time.Since(started))
				return nil
			})
		} else {
			structRes.skipped = true
			observability.Current().ObserveBranch(structRes.name, structRes.outcome(), 0)
		}
	}

	_ = g.Wait()

	ran, failed := 0, 0
	degraded := false
	var skippedBranches []string
	for _, b := range []*branchRun{&graphRes, &semRes, &structRes} {
		if !b.ran {
			continue
		}
		ran++
		if b.err != nil {
			failed++
			degraded = true
			skippedBranches = append(skippedBranches, b.name)
			p.log.Warn("Retrieval branch failed",
				"branch", b.name,
				"outcome", b.outcome(),
				"error", b.err)
		} else if b.skipped {
			degraded = true
			skippedBranches = append(skippedBranches, b.name)
		}
	}
	if failed > 0 && failed == ran {
		return nil, fmt.Errorf("%w: every retrieval branch failed", pkgerrors.ErrRetrievalUnavailable)
	}

	var ranked []domain.RankedResult
	if graphRes.err == nil {
		proximityScores := make(map[string]float64, len(matchIDs))
		for _, id := range matchIDs {
			proximityScores[id] = snap.Proximity.Composite(id, q.Weights)
		}
		ranked = fusion.Fuse(fusion.Inputs{
			GraphIDs:       matchIDs,
			ProximityScore: proximityScores,
			Semantic:       semantic,
			Structural:     structural,
			KConst:         p.tuning.KConst,
		})
	}
	observability.Current().ObserveFusionCandidates(len(ranked))

	resp := &Response{
		TotalCount:      matchTotal,
		ScopeBreakdown:  scopeBreakdown,
		Degraded:        degraded,
		SkippedBranches: skippedBranches,
		Generation:      snap.Generation,
	}
	resp.RankedIDsPage = make([]string, 0, p.pageSize)
	for _, r := range ranked {
		if len(resp.RankedIDsPage) == p.pageSize {
			break
		}
		resp.RankedIDsPage = append(resp.RankedIDsPage, r.ParcelID)
	}
	resp.Teasers = p.buildTeasers(ctx, snap, q, ranked)

	if degraded {
		observability.Current().IncDegraded()
	}
	return resp, nil
}

// buildTeasers assembles the free reduced-detail entries for the top ranked
// results. Teasers are best-effort: a store failure logs and yields none
// rather than failing the search.
func (p *Pipeline) buildTeasers(ctx context.Context, snap *snapshot.Snapshot, q *domain.PreferenceQuery, ranked []domain.RankedResult) []domain.Teaser {
	limit := p.teaserLimit
	if limit > len(ranked) {
		limit = len(ranked)
	}
	if limit == 0 {
		return []domain.Teaser{}
	}

	ids := make([]string, limit)
	for i := 0; i < limit; i++ {
		ids[i] = ranked[i].ParcelID
	}
	parcels, err := p.parcels.GetByIDs(ctx, nil, ids)
	if err != nil {
		p.log.Warn("Teaser parcel lookup failed; responding without teasers", "error", err)
		return []domain.Teaser{}
	}
	byID := make(map[string]*domain.Parcel, len(parcels))
	for _, parcel := range parcels {
		byID[parcel.ID] = parcel
	}

	teasers := make([]domain.Teaser, 0, limit)
	for i := 0; i < limit; i++ {
		parcel := byID[ranked[i].ParcelID]
		if parcel == nil {
			continue
		}
		highlights, _ := explain.Build(p.explainFacts(snap, q, parcel, ranked[i].Contributions))
		teasers = append(teasers, p.policy.Teaser(parcel,
			snap.LocationName(parcel.DistrictID),
			snap.LocationName(parcel.CityID),
			highlights))
	}
	return teasers
}

func (p *Pipeline) explainFacts(snap *snapshot.Snapshot, q *domain.PreferenceQuery, parcel *domain.Parcel, contributions []domain.Contribution) explain.Facts {
	weights := q.Weights
	if len(weights) == 0 {
		weights = p.tuning.DefaultWeights
	}

	poiScores := make(map[domain.POIType]float64, len(weights))
	for poiType := range weights {
		poiScores[poiType] = snap.Proximity.Score(parcel.ID, poiType)
	}

	facts := explain.Facts{
		Parcel:        parcel,
		Contributions: contributions,
		Weights:       weights,
		POIScores:     poiScores,
	}
	if q.SeedParcel != "" {
		for _, edge := range snap.Proximity.Adjacent(parcel.ID) {
			if edge.ParcelA == q.SeedParcel || edge.ParcelB == q.SeedParcel {
				facts.SharedBorderM = edge.SharedBorderM
				break
			}
		}
	}
	return facts
}

// Count is the count-only mode: same predicates, no ranking, no vector
// branches, no teaser assembly.
func (p *Pipeline) Count(ctx context.Context, raw domain.RawPreference) (int, map[string]int, error) {
	snap := p.snapshots.Current()
	if snap == nil {
		return 0, nil, fmt.Errorf("%w: no snapshot generation loaded", pkgerrors.ErrRetrievalUnavailable)
	}

	raw.FreeText = ""
	raw.SimilarToParcel = ""
	q, err := p.normalizer.Normalize(ctx, raw, snap.Graph, snap.Proximity)
	if err != nil {
		return 0, nil, err
	}

	branchCtx, cancel := context.WithTimeout(ctx, p.branchTimeout)
	defer cancel()
	total, breakdown, err := snap.Graph.Count(branchCtx, q.Filters)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", pkgerrors.ErrRetrievalUnavailable, err)
	}
	return total, breakdown, nil
}

// Reveal unlocks full detail for one ranked parcel, charging one credit. Any
// parcel id known to the store may be revealed, not only teaser entries. The
// reveal explanation is recomputed against the serving generation with the
// caller's (or default) weights, since ranked contributions are not retained
// across requests.
func (p *Pipeline) Reveal(ctx context.Context, callerID, sessionID, parcelID string) (*domain.Reveal, *disclosure.PaymentPrompt, error) {
	if strings.TrimSpace(parcelID) == "" {
		return nil, nil, fmt.Errorf("%w: parcel id is required", pkgerrors.ErrInvalidPreference)
	}

	parcel, err := p.parcels.GetByID(ctx, nil, parcelID)
	if err != nil {
		return nil, nil, err
	}

	snap := p.snapshots.Current()
	facts := explain.Facts{Parcel: parcel}
	if snap != nil && snap.Proximity != nil {
		weights := p.tuning.DefaultWeights
		poiScores := make(map[domain.POIType]float64, len(weights))
		for poiType := range weights {
			poiScores[poiType] = snap.Proximity.Score(parcel.ID, poiType)
		}
		facts.Weights = weights
		facts.POIScores = poiScores
		facts.Contributions = []domain.Contribution{
			{Source: domain.SourceProximity, Score: snap.Proximity.Composite(parcel.ID, weights)},
		}
	}
	highlights, explanation := explain.Build(facts)

	reveal, prompt, err := p.policy.Reveal(ctx, callerID, sessionID, parcel, explanation, highlights)
	switch {
	case errors.Is(err, pkgerrors.ErrInsufficientCredits):
		observability.Current().ObserveReveal("insufficient", promptBalance(prompt))
	case err != nil:
		observability.Current().ObserveReveal("error", -1)
	default:
		observability.Current().ObserveReveal("ok", -1)
	}
	return reveal, prompt, err
}

func promptBalance(prompt *disclosure.PaymentPrompt) int64 {
	if prompt == nil {
		return -1
	}
	return prompt.Balance
}
