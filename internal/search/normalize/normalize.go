package normalize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/plotwise/plotwise-backend/internal/domain"
	"github.com/plotwise/plotwise-backend/internal/observability"
	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
	"github.com/plotwise/plotwise-backend/internal/platform/openai"
	"github.com/plotwise/plotwise-backend/internal/search/graphfilter"
	"github.com/plotwise/plotwise-backend/internal/search/proximity"
)

// nearPOIMinWeight is the floor applied to a POI type's weight when the
// caller anchors on a named POI of that type.
const nearPOIMinWeight = 0.8

// Normalizer turns the agent's loose request into a canonical
// PreferenceQuery or rejects it. It never guesses: ambiguous locations and
// unknown enum values are the caller's problem to restate.
type Normalizer struct {
	log            *logger.Logger
	embedder       openai.Client
	defaultWeights map[domain.POIType]float64
}

// New builds the normalizer. embedder may be nil; free text then degrades to
// the remaining branches instead of failing the request.
func New(log *logger.Logger, embedder openai.Client, defaultWeights map[domain.POIType]float64) (*Normalizer, error) {
	if log == nil {
		return nil, fmt.Errorf("normalize: logger required")
	}
	if len(defaultWeights) == 0 {
		return nil, fmt.Errorf("normalize: default weights required")
	}
	return &Normalizer{
		log:            log.With("service", "PreferenceNormalizer"),
		embedder:       embedder,
		defaultWeights: defaultWeights,
	}, nil
}

// Normalize validates and canonicalizes a raw preference against the given
// generation's graph and proximity handles. Every rejection wraps
// ErrInvalidPreference with the offending field.
func (n *Normalizer) Normalize(ctx context.Context, raw domain.RawPreference, engine graphfilter.Engine, prox *proximity.Index) (*domain.PreferenceQuery, error) {
	if strings.TrimSpace(raw.CallerID) == "" {
		return nil, fmt.Errorf("%w: caller_id is required", pkgerrors.ErrInvalidPreference)
	}

	filters, err := n.normalizeFilters(ctx, raw, engine)
	if err != nil {
		return nil, err
	}

	weights, err := n.normalizeWeights(raw, prox)
	if err != nil {
		return nil, err
	}

	q := &domain.PreferenceQuery{
		Filters:    filters,
		Weights:    weights,
		SeedParcel: strings.TrimSpace(raw.SimilarToParcel),
		CallerID:   strings.TrimSpace(raw.CallerID),
		SessionID:  strings.TrimSpace(raw.SessionID),
	}

	if text := strings.TrimSpace(raw.FreeText); text != "" {
		q.TextVector = n.embedFreeText(ctx, text)
	}

	return q, nil
}

func (n *Normalizer) normalizeFilters(ctx context.Context, raw domain.RawPreference, engine graphfilter.Engine) (domain.Filters, error) {
	var f domain.Filters

	location := strings.TrimSpace(raw.Location)
	if location == "" {
		return f, fmt.Errorf("%w: location is required", pkgerrors.ErrInvalidPreference)
	}
	nodes, err := engine.ResolveLocation(ctx, location)
	if err != nil {
		return f, fmt.Errorf("resolve location: %w", err)
	}
	switch len(nodes) {
	case 1:
		f.Location = nodes[0]
	case 0:
		return f, fmt.Errorf("%w: unknown location %q", pkgerrors.ErrInvalidPreference, location)
	default:
		names := make([]string, len(nodes))
		for i, node := range nodes {
			names[i] = node.Name
		}
		return f, fmt.Errorf("%w: ambiguous location %q matches %s",
			pkgerrors.ErrInvalidPreference, location, strings.Join(names, ", "))
	}

	minArea, maxArea := raw.AreaM2[0], raw.AreaM2[1]
	if minArea < 0 || maxArea < 0 {
		return f, fmt.Errorf("%w: negative area bound", pkgerrors.ErrInvalidPreference)
	}
	if maxArea > 0 && maxArea < minArea {
		return f, fmt.Errorf("%w: inverted area range [%g, %g]", pkgerrors.ErrInvalidPreference, minArea, maxArea)
	}
	f.AreaMin, f.AreaMax = minArea, maxArea

	if v := strings.TrimSpace(raw.OwnershipType); v != "" {
		ownership, ok := matchEnum(v, domain.KnownOwnershipTypes())
		if !ok {
			return f, fmt.Errorf("%w: unknown ownership_type %q", pkgerrors.ErrInvalidPreference, v)
		}
		f.Ownership = &ownership
	}
	if v := strings.TrimSpace(raw.BuildStatus); v != "" {
		status, ok := matchEnum(v, domain.KnownBuildStatuses())
		if !ok {
			return f, fmt.Errorf("%w: unknown build_status %q", pkgerrors.ErrInvalidPreference, v)
		}
		f.BuildStatus = &status
	}
	if v := strings.TrimSpace(raw.SizeCategory); v != "" {
		size, ok := matchEnum(v, domain.KnownSizeClasses())
		if !ok {
			return f, fmt.Errorf("%w: unknown size_category %q", pkgerrors.ErrInvalidPreference, v)
		}
		f.SizeClass = &size
	}
	if raw.POGResidential != nil {
		f.ResidentialOnly = *raw.POGResidential
	}

	return f, nil
}

func (n *Normalizer) normalizeWeights(raw domain.RawPreference, prox *proximity.Index) (map[domain.POIType]float64, error) {
	weights := make(map[domain.POIType]float64, len(n.defaultWeights))

	if len(raw.ProximityWeights) == 0 {
		for poiType, w := range n.defaultWeights {
			weights[poiType] = w
		}
	} else {
		for key, w := range raw.ProximityWeights {
			poiType := domain.POIType(strings.ToLower(strings.TrimSpace(key)))
			if _, known := domain.POIThresholds[poiType]; !known {
				return nil, fmt.Errorf("%w: unknown proximity weight key %q", pkgerrors.ErrInvalidPreference, key)
			}
			if w < 0 || w > 1 {
				return nil, fmt.Errorf("%w: proximity weight %q=%g outside [0,1]", pkgerrors.ErrInvalidPreference, key, w)
			}
			weights[poiType] = w
		}
	}

	if anchor := strings.TrimSpace(raw.NearPOI); anchor != "" {
		if prox == nil {
			return nil, fmt.Errorf("%w: near_poi given but no proximity data is loaded", pkgerrors.ErrInvalidPreference)
		}
		poi, ok := prox.FindPOI(anchor)
		if !ok {
			return nil, fmt.Errorf("%w: no point of interest matches %q", pkgerrors.ErrInvalidPreference, anchor)
		}
		if weights[poi.Type] < nearPOIMinWeight {
			weights[poi.Type] = nearPOIMinWeight
		}
		n.log.Debug("near_poi anchor resolved", "anchor", anchor, "poi_id", poi.ID, "poi_type", string(poi.Type))
	}

	return weights, nil
}

// embedFreeText resolves the free text to its semantic vector. Provider
// failures degrade to a skipped semantic branch rather than failing the
// whole request; only the graph predicates are load-bearing.
func (n *Normalizer) embedFreeText(ctx context.Context, text string) []float32 {
	if n.embedder == nil {
		n.log.Warn("free_text given but no embedding provider is configured; semantic branch skipped")
		return nil
	}
	started := time.Now()
	vectors, err := n.embedder.Embed(ctx, []string{text})
	if err != nil {
		observability.Current().ObserveEmbed("error", time.Since(started))
		n.log.Warn("free text embedding failed; semantic branch skipped", "error", err)
		return nil
	}
	if len(vectors) != 1 || len(vectors[0]) != domain.SemanticDim {
		observability.Current().ObserveEmbed("bad_shape", time.Since(started))
		n.log.Warn("free text embedding has unexpected shape; semantic branch skipped",
			"vectors", len(vectors))
		return nil
	}
	observability.Current().ObserveEmbed("ok", time.Since(started))
	return vectors[0]
}

func matchEnum[T ~string](value string, known []T) (T, bool) {
	needle := T(strings.ToLower(strings.TrimSpace(value)))
	for _, k := range known {
		if k == needle {
			return k, true
		}
	}
	var zero T
	return zero, false
}
