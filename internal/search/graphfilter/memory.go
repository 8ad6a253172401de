package graphfilter

import (
	"context"
	"sort"
	"strings"

	"github.com/plotwise/plotwise-backend/internal/domain"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
)

// MemoryEngine evaluates the same predicates as the neo4j engine against an
// in-process generation snapshot. Used in local mode and tests.
type MemoryEngine struct {
	log       *logger.Logger
	parcels   []domain.Parcel
	zones     map[string]domain.ZoningZone
	locations []domain.LocationNode
	locByID   map[string]domain.LocationNode
}

func NewMemoryEngine(log *logger.Logger, parcels []domain.Parcel, zones []domain.ZoningZone, locations []domain.LocationNode) *MemoryEngine {
	e := &MemoryEngine{
		log:       log.With("service", "MemoryGraphEngine"),
		parcels:   parcels,
		zones:     make(map[string]domain.ZoningZone, len(zones)),
		locations: locations,
		locByID:   make(map[string]domain.LocationNode, len(locations)),
	}
	for _, z := range zones {
		e.zones[z.ID] = z
	}
	for _, l := range locations {
		e.locByID[l.ID] = l
	}
	return e
}

func (e *MemoryEngine) Match(_ context.Context, f domain.Filters) (MatchResult, error) {
	ids := make([]string, 0)
	for i := range e.parcels {
		if e.matches(&e.parcels[i], f, true) {
			ids = append(ids, e.parcels[i].ID)
		}
	}
	return MatchResult{
		IDs:            ids,
		Total:          len(ids),
		ScopeBreakdown: e.breakdown(f),
	}, nil
}

func (e *MemoryEngine) Count(_ context.Context, f domain.Filters) (int, map[string]int, error) {
	total := 0
	for i := range e.parcels {
		if e.matches(&e.parcels[i], f, true) {
			total++
		}
	}
	return total, e.breakdown(f), nil
}

func (e *MemoryEngine) ResolveLocation(_ context.Context, description string) ([]domain.LocationNode, error) {
	needle := strings.ToLower(strings.Join(strings.Fields(description), " "))
	if needle == "" {
		return nil, nil
	}

	var exact, partial []domain.LocationNode
	for _, l := range e.locations {
		name := strings.ToLower(strings.Join(strings.Fields(l.Name), " "))
		switch {
		case name == needle:
			exact = append(exact, l)
		case strings.Contains(name, needle):
			partial = append(partial, l)
		}
	}
	out := exact
	if len(out) == 0 {
		out = partial
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (e *MemoryEngine) ListLocations(_ context.Context) ([]domain.LocationNode, error) {
	out := make([]domain.LocationNode, len(e.locations))
	copy(out, e.locations)
	return out, nil
}

func (e *MemoryEngine) matches(p *domain.Parcel, f domain.Filters, includeLocation bool) bool {
	if includeLocation {
		switch f.Location.Kind {
		case domain.LocationDistrict:
			if p.DistrictID != f.Location.ID {
				return false
			}
		case domain.LocationCity:
			if p.CityID != f.Location.ID {
				return false
			}
		}
	}
	if f.AreaMin > 0 && p.AreaM2 < f.AreaMin {
		return false
	}
	if f.AreaMax > 0 && p.AreaM2 > f.AreaMax {
		return false
	}
	if f.Ownership != nil && p.Ownership != *f.Ownership {
		return false
	}
	if f.BuildStatus != nil && p.BuildStatus != *f.BuildStatus {
		return false
	}
	if f.SizeClass != nil && p.SizeClass != *f.SizeClass {
		return false
	}
	if f.ResidentialOnly {
		zone, ok := e.zones[p.ZoneID]
		if !ok || !zone.Residential {
			return false
		}
	}
	return true
}

// breakdown applies the non-location predicates at the next coarser level:
// per-district counts inside the city the scope belongs to.
func (e *MemoryEngine) breakdown(f domain.Filters) map[string]int {
	cityID := f.Location.ID
	if f.Location.Kind == domain.LocationDistrict {
		if parent, ok := e.locByID[f.Location.ParentID]; ok {
			cityID = parent.ID
		} else {
			cityID = f.Location.ParentID
		}
	}
	if cityID == "" {
		return map[string]int{}
	}

	out := make(map[string]int)
	for i := range e.parcels {
		p := &e.parcels[i]
		if p.CityID != cityID {
			continue
		}
		if !e.matches(p, f, false) {
			continue
		}
		name := p.DistrictID
		if loc, ok := e.locByID[p.DistrictID]; ok {
			name = loc.Name
		}
		out[name]++
	}
	return out
}
