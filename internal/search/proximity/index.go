package proximity

import (
	"sort"
	"strings"

	"github.com/plotwise/plotwise-backend/internal/domain"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
)

// Index holds the precomputed spatial edges of one generation. It is
// immutable after construction; snapshot reloads build a fresh Index.
type Index struct {
	log       *logger.Logger
	edges     map[domain.POIType]map[string][]domain.ProximityEdge
	pois      map[string]domain.POI
	adjacency map[string][]domain.AdjacencyEdge
}

func NewIndex(log *logger.Logger, edges []domain.ProximityEdge, pois []domain.POI, adjacency []domain.AdjacencyEdge) *Index {
	ix := &Index{
		log:       log.With("service", "ProximityIndex"),
		edges:     make(map[domain.POIType]map[string][]domain.ProximityEdge),
		pois:      make(map[string]domain.POI, len(pois)),
		adjacency: make(map[string][]domain.AdjacencyEdge),
	}

	for _, p := range pois {
		ix.pois[p.ID] = p
	}

	dropped := 0
	for _, e := range edges {
		threshold, ok := domain.POIThresholds[e.POIType]
		if !ok || e.DistanceM < 0 || e.DistanceM > threshold {
			// The ETL contract says edges beyond the type threshold are never
			// materialized; anything else in the batch is corrupt.
			dropped++
			continue
		}
		byParcel := ix.edges[e.POIType]
		if byParcel == nil {
			byParcel = make(map[string][]domain.ProximityEdge)
			ix.edges[e.POIType] = byParcel
		}
		byParcel[e.ParcelID] = append(byParcel[e.ParcelID], e)
	}
	if dropped > 0 {
		ix.log.Warn("proximity batch contained out-of-threshold edges", "dropped", dropped)
	}

	for _, a := range adjacency {
		if a.ParcelA == a.ParcelB || a.SharedBorderM <= 0 {
			continue
		}
		edge := a
		if edge.ParcelA > edge.ParcelB {
			edge.ParcelA, edge.ParcelB = edge.ParcelB, edge.ParcelA
		}
		ix.adjacency[edge.ParcelA] = append(ix.adjacency[edge.ParcelA], edge)
		ix.adjacency[edge.ParcelB] = append(ix.adjacency[edge.ParcelB], edge)
	}

	return ix
}

// Edges returns the in-threshold edges of the given type for the id set,
// ordered by ascending parcel id then distance.
func (ix *Index) Edges(parcelIDs []string, poiType domain.POIType) []domain.ProximityEdge {
	byParcel := ix.edges[poiType]
	if byParcel == nil {
		return nil
	}
	out := make([]domain.ProximityEdge, 0, len(parcelIDs))
	for _, id := range parcelIDs {
		out = append(out, byParcel[id]...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ParcelID == out[j].ParcelID {
			return out[i].DistanceM < out[j].DistanceM
		}
		return out[i].ParcelID < out[j].ParcelID
	})
	return out
}

// Score converts the nearest edge of the given type into a bounded score:
// max(0, 1 - distance/threshold). A parcel without an edge scores 0, never
// a null, so downstream averaging cannot fail.
func (ix *Index) Score(parcelID string, poiType domain.POIType) float64 {
	threshold, ok := domain.POIThresholds[poiType]
	if !ok || threshold <= 0 {
		return 0
	}
	byParcel := ix.edges[poiType]
	if byParcel == nil {
		return 0
	}
	best := -1.0
	for _, e := range byParcel[parcelID] {
		s := 1 - e.DistanceM/threshold
		if s < 0 {
			s = 0
		}
		if s > best {
			best = s
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// Composite is the weighted average of per-type scores over the POI types
// with nonzero weight. No nonzero weights yields 0.
func (ix *Index) Composite(parcelID string, weights map[domain.POIType]float64) float64 {
	var sum, weightSum float64
	for poiType, w := range weights {
		if w <= 0 {
			continue
		}
		sum += w * ix.Score(parcelID, poiType)
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}

// FindPOI resolves a human-entered POI name: exact normalized match first,
// then substring containment, shortest name winning, ties by ascending id.
func (ix *Index) FindPOI(name string) (domain.POI, bool) {
	needle := normalizeName(name)
	if needle == "" {
		return domain.POI{}, false
	}

	var best domain.POI
	bestRank := -1
	for _, p := range ix.pois {
		candidate := normalizeName(p.Name)
		var rank int
		switch {
		case candidate == needle:
			rank = 2
		case strings.Contains(candidate, needle):
			rank = 1
		default:
			continue
		}
		if bestRank == -1 ||
			rank > bestRank ||
			(rank == bestRank && len(candidate) < len(normalizeName(best.Name))) ||
			(rank == bestRank && len(candidate) == len(normalizeName(best.Name)) && p.ID < best.ID) {
			best = p
			bestRank = rank
		}
	}
	return best, bestRank >= 0
}

// Adjacent returns the adjacency edges touching parcelID with their shared
// border lengths, ordered by descending border then ascending neighbor id.
func (ix *Index) Adjacent(parcelID string) []domain.AdjacencyEdge {
	edges := ix.adjacency[parcelID]
	out := make([]domain.AdjacencyEdge, len(edges))
	copy(out, edges)
	sort.Slice(out, func(i, j int) bool {
		if out[i].SharedBorderM == out[j].SharedBorderM {
			return otherParcel(out[i], parcelID) < otherParcel(out[j], parcelID)
		}
		return out[i].SharedBorderM > out[j].SharedBorderM
	})
	return out
}

func otherParcel(e domain.AdjacencyEdge, parcelID string) string {
	if e.ParcelA == parcelID {
		return e.ParcelB
	}
	return e.ParcelA
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
