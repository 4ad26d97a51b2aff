package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/pathpilot/internal/logger"
	"github.com/yungbote/pathpilot/internal/platform/neo4jdb"
	"github.com/yungbote/pathpilot/internal/types"
)

// ConceptGraph is the read-only neo4j adapter behind engine.GraphView.
// Concepts and edges are published by the external knowledge pipeline;
// the planning core never writes here.
type ConceptGraph struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewConceptGraph(client *neo4jdb.Client, log *logger.Logger) *ConceptGraph {
	return &ConceptGraph{
		client: client,
		log:    log.With("client", "ConceptGraph"),
	}
}

const coldStartQuery = `
MATCH (c:Concept)
WHERE ($goal = '' OR c.key STARTS WITH $goal)
  AND NOT ( (:Concept)-[:PREREQUISITE]->(c) )
RETURN c.key AS key, c.name AS name,
       coalesce(c.difficulty, 1) AS difficulty,
       coalesce(c.estimated_minutes, 10) AS estimated_minutes,
       coalesce(c.centrality, 0.0) AS centrality
ORDER BY centrality DESC, key ASC
LIMIT $limit`

const frontierQuery = `
MATCH (c:Concept)
WHERE ($goal = '' OR c.key STARTS WITH $goal)
OPTIONAL MATCH (m:Concept)-[r:PREREQUISITE|NEXT|SIMILAR]->(c)
WHERE m.key IN $mastered
WITH c, count(r) AS inbound
WHERE inbound > 0 OR c.key IN $mastered
RETURN DISTINCT c.key AS key, c.name AS name,
       coalesce(c.difficulty, 1) AS difficulty,
       coalesce(c.estimated_minutes, 10) AS estimated_minutes,
       coalesce(c.centrality, 0.0) AS centrality
ORDER BY centrality DESC, key ASC
LIMIT $limit`

const edgesQuery = `
MATCH (a:Concept)-[r:PREREQUISITE|NEXT|SIMILAR]->(b:Concept)
WHERE a.key IN $keys OR b.key IN $keys
RETURN a.key AS from_key, b.key AS to_key, type(r) AS edge_type,
       coalesce(r.strength, 1.0) AS strength`

// GetCandidates returns the bounded candidate pool for a learner, edges
// attached. An empty mastery set takes the cold-start branch: root
// concepts ranked by centrality.
func (g *ConceptGraph) GetCandidates(ctx context.Context, mastery map[string]float64, goal string, limit int) ([]*types.Concept, error) {
	if g.client == nil || g.client.Driver == nil {
		return nil, fmt.Errorf("concept graph not initialized")
	}
	if limit <= 0 {
		limit = 100
	}

	session := g.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: g.client.Database,
	})
	defer session.Close(ctx)

	query := frontierQuery
	params := map[string]any{
		"goal":  goal,
		"limit": limit,
	}
	if len(mastery) == 0 {
		query = coldStartQuery
	} else {
		mastered := make([]string, 0, len(mastery))
		for k := range mastery {
			mastered = append(mastered, k)
		}
		params["mastered"] = mastered
	}

	res, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("candidate query: %w", err)
	}

	var concepts []*types.Concept
	keys := make([]string, 0, limit)
	for res.Next(ctx) {
		rec := res.Record()
		c := &types.Concept{
			Key:              stringValue(rec, "key"),
			Name:             stringValue(rec, "name"),
			Difficulty:       intValue(rec, "difficulty"),
			EstimatedMinutes: intValue(rec, "estimated_minutes"),
			Centrality:       floatValue(rec, "centrality"),
		}
		if c.Key == "" {
			continue
		}
		concepts = append(concepts, c)
		keys = append(keys, c.Key)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("candidate query: %w", err)
	}
	if len(concepts) == 0 {
		return concepts, nil
	}

	edges, err := g.edgesForKeys(ctx, session, keys)
	if err != nil {
		return nil, err
	}
	for _, c := range concepts {
		c.Edges = edges[c.Key]
	}
	return concepts, nil
}

// GetEdges returns typed relations touching the given concept keys,
// grouped by the edge's from-key.
func (g *ConceptGraph) GetEdges(ctx context.Context, conceptKeys []string) (map[string][]types.ConceptEdge, error) {
	if g.client == nil || g.client.Driver == nil {
		return nil, fmt.Errorf("concept graph not initialized")
	}
	session := g.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: g.client.Database,
	})
	defer session.Close(ctx)
	return g.edgesForKeys(ctx, session, conceptKeys)
}

func (g *ConceptGraph) edgesForKeys(ctx context.Context, session neo4j.SessionWithContext, keys []string) (map[string][]types.ConceptEdge, error) {
	out := map[string][]types.ConceptEdge{}
	if len(keys) == 0 {
		return out, nil
	}
	res, err := session.Run(ctx, edgesQuery, map[string]any{"keys": keys})
	if err != nil {
		return nil, fmt.Errorf("edges query: %w", err)
	}
	for res.Next(ctx) {
		rec := res.Record()
		e := types.ConceptEdge{
			FromKey:  stringValue(rec, "from_key"),
			ToKey:    stringValue(rec, "to_key"),
			Type:     types.EdgeType(stringValue(rec, "edge_type")),
			Strength: floatValue(rec, "strength"),
		}
		if e.FromKey == "" || e.ToKey == "" {
			continue
		}
		out[e.FromKey] = append(out[e.FromKey], e)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("edges query: %w", err)
	}
	return out, nil
}

func stringValue(rec *neo4j.Record, key string) string {
	raw, ok := rec.Get(key)
	if !ok || raw == nil {
		return ""
	}
	s, _ := raw.(string)
	return s
}

func intValue(rec *neo4j.Record, key string) int {
	raw, ok := rec.Get(key)
	if !ok || raw == nil {
		return 0
	}
	switch v := raw.(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func floatValue(rec *neo4j.Record, key string) float64 {
	raw, ok := rec.Get(key)
	if !ok || raw == nil {
		return 0
	}
	switch v := raw.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}
