package graphfilter

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/plotwise/plotwise-backend/internal/domain"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
	"github.com/plotwise/plotwise-backend/internal/platform/neo4jdb"
)

// Neo4jEngine runs predicate filtering as Cypher against the graph store.
// It is bound to one generation; snapshot reloads construct a new engine.
type Neo4jEngine struct {
	client     *neo4jdb.Client
	log        *logger.Logger
	generation string
}

func NewNeo4jEngine(client *neo4jdb.Client, log *logger.Logger, generation string) (*Neo4jEngine, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("graphfilter: neo4j client required")
	}
	generation = strings.TrimSpace(generation)
	if generation == "" {
		return nil, fmt.Errorf("graphfilter: generation required")
	}
	return &Neo4jEngine{
		client:     client,
		log:        log.With("service", "Neo4jGraphEngine", "generation", generation),
		generation: generation,
	}, nil
}

func (e *Neo4jEngine) Match(ctx context.Context, f domain.Filters) (MatchResult, error) {
	query, params := e.buildQuery(f, "RETURN p.id AS id ORDER BY p.id")

	session := e.client.ReadSession(ctx)
	defer session.Close(ctx)

	idsAny, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var ids []string
		for res.Next(ctx) {
			if v, ok := res.Record().Get("id"); ok {
				if id, ok := v.(string); ok {
					ids = append(ids, id)
				}
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return MatchResult{}, fmt.Errorf("graphfilter: match query: %w", err)
	}
	ids, _ := idsAny.([]string)

	breakdown, err := e.scopeBreakdown(ctx, f)
	if err != nil {
		// The breakdown is diagnostic; a failure there must not void a
		// successful match.
		e.log.Warn("scope breakdown query failed", "error", err)
		breakdown = map[string]int{}
	}

	return MatchResult{IDs: ids, Total: len(ids), ScopeBreakdown: breakdown}, nil
}

func (e *Neo4jEngine) Count(ctx context.Context, f domain.Filters) (int, map[string]int, error) {
	query, params := e.buildQuery(f, "RETURN count(p) AS total")

	session := e.client.ReadSession(ctx)
	defer session.Close(ctx)

	totalAny, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		if v, ok := rec.Get("total"); ok {
			if n, ok := v.(int64); ok {
				return int(n), nil
			}
		}
		return 0, nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("graphfilter: count query: %w", err)
	}
	total, _ := totalAny.(int)

	breakdown, err := e.scopeBreakdown(ctx, f)
	if err != nil {
		e.log.Warn("scope breakdown query failed", "error", err)
		breakdown = map[string]int{}
	}
	return total, breakdown, nil
}

func (e *Neo4jEngine) ResolveLocation(ctx context.Context, description string) ([]domain.LocationNode, error) {
	needle := strings.ToLower(strings.Join(strings.Fields(description), " "))
	if needle == "" {
		return nil, nil
	}

	session := e.client.ReadSession(ctx)
	defer session.Close(ctx)

	nodesAny, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (l)
WHERE (l:City OR l:District) AND toLower(l.name) CONTAINS $needle
OPTIONAL MATCH (l)-[:PART_OF]->(c:City)
RETURN l.id AS id, l.name AS name, labels(l) AS labels, c.id AS parent_id
ORDER BY l.id
`, map[string]any{"needle": needle})
		if err != nil {
			return nil, err
		}
		var nodes []domain.LocationNode
		for res.Next(ctx) {
			rec := res.Record()
			node := domain.LocationNode{Kind: domain.LocationCity}
			if v, ok := rec.Get("id"); ok {
				node.ID, _ = v.(string)
			}
			if v, ok := rec.Get("name"); ok {
				node.Name, _ = v.(string)
			}
			if v, ok := rec.Get("labels"); ok {
				if labels, ok := v.([]any); ok {
					for _, l := range labels {
						if l == "District" {
							node.Kind = domain.LocationDistrict
						}
					}
				}
			}
			if v, ok := rec.Get("parent_id"); ok {
				if parent, ok := v.(string); ok {
					node.ParentID = parent
				}
			}
			nodes = append(nodes, node)
		}
		return nodes, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graphfilter: resolve location: %w", err)
	}
	nodes, _ := nodesAny.([]domain.LocationNode)

	// Prefer exact name matches over containment, like the memory engine.
	var exact []domain.LocationNode
	for _, n := range nodes {
		if strings.ToLower(strings.Join(strings.Fields(n.Name), " ")) == needle {
			exact = append(exact, n)
		}
	}
	if len(exact) > 0 {
		return exact, nil
	}
	return nodes, nil
}

func (e *Neo4jEngine) ListLocations(ctx context.Context) ([]domain.LocationNode, error) {
	session := e.client.ReadSession(ctx)
	defer session.Close(ctx)

	nodesAny, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (l)
WHERE l:City OR l:District
OPTIONAL MATCH (l)-[:PART_OF]->(c:City)
RETURN l.id AS id, l.name AS name, labels(l) AS labels, c.id AS parent_id
ORDER BY l.id
`, map[string]any{})
		if err != nil {
			return nil, err
		}
		var nodes []domain.LocationNode
		for res.Next(ctx) {
			rec := res.Record()
			node := domain.LocationNode{Kind: domain.LocationCity}
			if v, ok := rec.Get("id"); ok {
				node.ID, _ = v.(string)
			}
			if v, ok := rec.Get("name"); ok {
				node.Name, _ = v.(string)
			}
			if v, ok := rec.Get("labels"); ok {
				if labels, ok := v.([]any); ok {
					for _, l := range labels {
						if l == "District" {
							node.Kind = domain.LocationDistrict
						}
					}
				}
			}
			if v, ok := rec.Get("parent_id"); ok {
				if parent, ok := v.(string); ok {
					node.ParentID = parent
				}
			}
			nodes = append(nodes, node)
		}
		return nodes, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graphfilter: list locations: %w", err)
	}
	nodes, _ := nodesAny.([]domain.LocationNode)
	return nodes, nil
}

// buildQuery assembles the predicate MATCH..WHERE for both modes; only the
// RETURN clause differs between Match and Count.
func (e *Neo4jEngine) buildQuery(f domain.Filters, returning string) (string, map[string]any) {
	var sb strings.Builder
	params := map[string]any{"generation": e.generation}

	sb.WriteString("MATCH (p:Parcel {generation: $generation})-[:LOCATED_IN]->(d:District)\n")
	switch f.Location.Kind {
	case domain.LocationCity:
		sb.WriteString("MATCH (d)-[:PART_OF]->(:City {id: $location_id})\n")
		params["location_id"] = f.Location.ID
	case domain.LocationDistrict:
		params["location_id"] = f.Location.ID
	}
	if f.ResidentialOnly {
		sb.WriteString("MATCH (p)-[:IN_ZONE]->(z:Zone)\n")
	}

	where := e.predicateClauses(f, params)
	if f.Location.Kind == domain.LocationDistrict {
		where = append([]string{"d.id = $location_id"}, where...)
	}
	if f.ResidentialOnly {
		where = append(where, "z.residential = true")
	}
	if len(where) > 0 {
		sb.WriteString("WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
		sb.WriteString("\n")
	}
	sb.WriteString(returning)
	return sb.String(), params
}

// predicateClauses covers the location-independent predicates, shared by
// the main query and the scope breakdown.
func (e *Neo4jEngine) predicateClauses(f domain.Filters, params map[string]any) []string {
	var where []string
	if f.AreaMin > 0 {
		where = append(where, "p.area_m2 >= $area_min")
		params["area_min"] = f.AreaMin
	}
	if f.AreaMax > 0 {
		where = append(where, "p.area_m2 <= $area_max")
		params["area_max"] = f.AreaMax
	}
	if f.Ownership != nil {
		where = append(where, "p.ownership = $ownership")
		params["ownership"] = string(*f.Ownership)
	}
	if f.BuildStatus != nil {
		where = append(where, "p.build_status = $build_status")
		params["build_status"] = string(*f.BuildStatus)
	}
	if f.SizeClass != nil {
		where = append(where, "p.size_class = $size_class")
		params["size_class"] = string(*f.SizeClass)
	}
	return where
}

func (e *Neo4jEngine) scopeBreakdown(ctx context.Context, f domain.Filters) (map[string]int, error) {
	cityID := f.Location.ID
	if f.Location.Kind == domain.LocationDistrict {
		cityID = f.Location.ParentID
	}
	if cityID == "" {
		return map[string]int{}, nil
	}

	var sb strings.Builder
	params := map[string]any{"generation": e.generation, "city_id": cityID}
	sb.WriteString("MATCH (p:Parcel {generation: $generation})-[:LOCATED_IN]->(d:District)-[:PART_OF]->(:City {id: $city_id})\n")
	if f.ResidentialOnly {
		sb.WriteString("MATCH (p)-[:IN_ZONE]->(z:Zone)\n")
	}
	where := e.predicateClauses(f, params)
	if f.ResidentialOnly {
		where = append(where, "z.residential = true")
	}
	if len(where) > 0 {
		sb.WriteString("WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
		sb.WriteString("\n")
	}
	sb.WriteString("RETURN d.name AS district, count(p) AS total")

	session := e.client.ReadSession(ctx)
	defer session.Close(ctx)

	outAny, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, sb.String(), params)
		if err != nil {
			return nil, err
		}
		out := make(map[string]int)
		for res.Next(ctx) {
			rec := res.Record()
			name := ""
			if v, ok := rec.Get("district"); ok {
				name, _ = v.(string)
			}
			if v, ok := rec.Get("total"); ok {
				if n, ok := v.(int64); ok && name != "" {
					out[name] = int(n)
				}
			}
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, err
	}
	out, _ := outAny.(map[string]int)
	return out, nil
}
