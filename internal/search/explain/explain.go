package explain

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/plotwise/plotwise-backend/internal/domain"
)

const (
	// MaxHighlights bounds the highlight list per result.
	MaxHighlights = 4
	// MinSalienceRatio suppresses contributors scoring below this share of
	// the strongest contributor, so near-zero signals never surface.
	MinSalienceRatio = 0.1
	// MinSalienceAbsolute is the hard floor below which a contribution is
	// noise regardless of the others.
	MinSalienceAbsolute = 0.001
)

// Facts is everything Build may ground a highlight on. All fields are
// request-derived data; Build itself performs no I/O and is deterministic.
type Facts struct {
	Parcel        *domain.Parcel
	Contributions []domain.Contribution
	Weights       map[domain.POIType]float64
	// POIScores are the parcel's per-type proximity scores, used to phrase
	// approximate distances.
	POIScores map[domain.POIType]float64
	// SharedBorderM is set when the structural branch surfaced an adjacent
	// parcel; the neighbor id itself is never exposed.
	SharedBorderM float64
}

// Build derives up to MaxHighlights ordered highlight strings and a
// one-line explanation from the contribution breakdown, strongest signal
// first.
func Build(f Facts) ([]string, string) {
	salient := salientContributions(f.Contributions)

	highlights := make([]string, 0, MaxHighlights)
	for _, c := range salient {
		h := highlightFor(c.Source, f)
		if h == "" {
			continue
		}
		highlights = append(highlights, h)
		if len(highlights) == MaxHighlights {
			break
		}
	}

	if len(highlights) == 0 {
		// Only the graph gate matched; say so instead of inventing a signal.
		highlights = append(highlights, "matches every filter you set")
	}

	return highlights, summaryFor(salient, f)
}

// salientContributions filters and orders the scored contributors. The
// graph gate carries no score and is handled by the caller's fallback.
func salientContributions(contributions []domain.Contribution) []domain.Contribution {
	var maxScore float64
	for _, c := range contributions {
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}

	out := make([]domain.Contribution, 0, len(contributions))
	for _, c := range contributions {
		if c.Source == domain.SourceGraph {
			continue
		}
		if c.Score < MinSalienceAbsolute || c.Score < maxScore*MinSalienceRatio {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Source < out[j].Source
		}
		return out[i].Score > out[j].Score
	})
	return out
}

func highlightFor(source domain.SourceKind, f Facts) string {
	switch source {
	case domain.SourceProximity:
		return proximityHighlight(f)
	case domain.SourceSemantic:
		return "closely matches your description"
	case domain.SourceStructural:
		if f.SharedBorderM > 0 {
			return fmt.Sprintf("directly borders a similar parcel (%.0f m shared border)", f.SharedBorderM)
		}
		return "similar surroundings to the parcel you picked"
	default:
		return ""
	}
}

// proximityHighlight names the single best weighted POI type with its
// approximate distance recovered from the bounded score.
func proximityHighlight(f Facts) string {
	var bestType domain.POIType
	bestValue := -1.0
	for poiType, w := range f.Weights {
		if w <= 0 {
			continue
		}
		score := f.POIScores[poiType]
		if score <= 0 {
			continue
		}
		value := w * score
		if value > bestValue || (value == bestValue && poiType < bestType) {
			bestType = poiType
			bestValue = value
		}
	}
	if bestValue < 0 {
		return ""
	}

	threshold := domain.POIThresholds[bestType]
	distance := (1 - f.POIScores[bestType]) * threshold
	return fmt.Sprintf("about %.0f m from the nearest %s", math.Round(distance/10)*10, poiLabel(bestType))
}

func summaryFor(salient []domain.Contribution, f Facts) string {
	area := ""
	if f.Parcel != nil {
		area = fmt.Sprintf("%.0f m² parcel, ", f.Parcel.AreaM2)
	}
	if len(salient) == 0 {
		return area + "matched on your filters"
	}
	return area + "ranked mainly on " + sourceLabel(salient[0].Source)
}

func sourceLabel(s domain.SourceKind) string {
	switch s {
	case domain.SourceProximity:
		return "proximity to what you weighted"
	case domain.SourceSemantic:
		return "your text description"
	case domain.SourceStructural:
		return "similarity to the parcel you picked"
	default:
		return "your filters"
	}
}

func poiLabel(t domain.POIType) string {
	return strings.ReplaceAll(string(t), "_", " ")
}
