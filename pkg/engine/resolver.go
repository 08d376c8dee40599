package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// EdgeKind is the reason one component must register before another.
type EdgeKind string

const (
	// EdgeDependency means To declares From as a dependency.
	EdgeDependency EdgeKind = "depends_on"

	// EdgeAutoLoad means To auto-loads From.
	EdgeAutoLoad EdgeKind = "auto_load"
)

// Edge is an ordering constraint: From registers strictly before To.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Resolution is a legal registration order for a component set.
type Resolution struct {
	// Order is the registration order.
	Order []string `json:"order"`

	// Levels groups components by their depth in the constraint graph.
	Levels [][]string `json:"levels"`

	// AutoLoaded maps each auto-loaded component to the component that loaded it.
	AutoLoaded map[string]string `json:"auto_loaded,omitempty"`

	// Edges are the ordering constraints between present components.
	Edges []Edge `json:"edges"`
}

// Resolver turns the set of components referenced by a configuration into a
// legal registration order.
type Resolver struct {
	registry *ComponentRegistry
	logger   zerolog.Logger
}

// NewResolver creates a resolver over the given registry.
func NewResolver(registry *ComponentRegistry, logger zerolog.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		logger:   logger.With().Str("component", "resolver").Logger(),
	}
}

// graph holds the working state of one resolution.
type graph struct {
	ids        []string
	present    map[string]bool
	rank       map[string]int
	schemas    map[string]*ComponentSchema
	autoLoaded map[string]string

	// adjacency maps a component to the components that must come after it
	adjacency map[string][]string

	// reverse maps a component to the components that must come before it
	reverse map[string][]string

	inDegree map[string]int
	edges    []Edge
}

// Resolve expands auto-loads, checks conflicts and dependencies, and orders
// the components. present lists the configured components in declaration
// order; disabled components are never auto-loaded.
func (r *Resolver) Resolve(present []string, disabled map[string]bool) (*Resolution, error) {
	g := &graph{
		present:    make(map[string]bool),
		rank:       make(map[string]int),
		schemas:    make(map[string]*ComponentSchema),
		autoLoaded: make(map[string]string),
		adjacency:  make(map[string][]string),
		reverse:    make(map[string][]string),
		inDegree:   make(map[string]int),
	}

	if err := r.expand(g, present, disabled); err != nil {
		return nil, err
	}

	if err := r.checkConflicts(g); err != nil {
		return nil, err
	}

	if err := r.checkDependencies(g); err != nil {
		return nil, err
	}

	g.buildEdges()

	order, levels, err := g.topoSort()
	if err != nil {
		return nil, err
	}

	r.logger.Debug().
		Strs("order", order).
		Int("auto_loaded", len(g.autoLoaded)).
		Msg("Components resolved")

	return &Resolution{
		Order:      order,
		Levels:     levels,
		AutoLoaded: g.autoLoaded,
		Edges:      g.edges,
	}, nil
}

// expand adds the configured components and, transitively, their auto-loads.
func (r *Resolver) expand(g *graph, present []string, disabled map[string]bool) error {
	var errs ErrorList

	add := func(id string) bool {
		schema, ok := r.registry.Schema(id)
		if !ok {
			return false
		}
		g.present[id] = true
		g.rank[id] = len(g.ids)
		g.schemas[id] = schema
		g.ids = append(g.ids, id)
		return true
	}

	for _, id := range present {
		if g.present[id] || disabled[id] {
			continue
		}
		if !add(id) {
			errs = append(errs, NewConfigError(KindUnknownComponent, id, "component is not registered"))
		}
	}
	if len(errs) > 0 {
		return errs
	}

	// g.ids grows while it is walked, which makes the expansion transitive.
	for i := 0; i < len(g.ids); i++ {
		id := g.ids[i]
		for _, auto := range g.schemas[id].AutoLoad() {
			if g.present[auto] {
				continue
			}
			if disabled[auto] {
				r.logger.Debug().
					Str("loader", id).
					Str("auto_load", auto).
					Msg("Skipping auto-load of disabled component")
				continue
			}
			if !add(auto) {
				errs = append(errs, NewConfigError(KindUnknownComponent, auto,
					fmt.Sprintf("auto-loaded by %s but not registered", id)).WithOther(id))
				continue
			}
			g.autoLoaded[auto] = id
		}
	}

	return errs.ErrOrNil()
}

// checkConflicts reports every present pair where either side declares a
// conflict with the other. The declaring side is named first.
func (r *Resolver) checkConflicts(g *graph) error {
	var errs ErrorList
	reported := make(map[[2]string]bool)

	for _, id := range g.ids {
		for _, other := range g.schemas[id].Conflicts() {
			if !g.present[other] {
				continue
			}
			key := [2]string{id, other}
			if other < id {
				key = [2]string{other, id}
			}
			if reported[key] {
				continue
			}
			reported[key] = true
			errs = append(errs, conflictingComponents(id, other))
		}
	}

	return errs.ErrOrNil()
}

// checkDependencies reports every dependency that is not present.
func (r *Resolver) checkDependencies(g *graph) error {
	var errs ErrorList
	for _, id := range g.ids {
		for _, dep := range g.schemas[id].Dependencies() {
			if !g.present[dep] {
				errs = append(errs, missingDependency(id, dep))
			}
		}
	}
	return errs.ErrOrNil()
}

// buildEdges adds one edge per ordered pair; a dependency that is also an
// auto-load is recorded as a dependency.
func (g *graph) buildEdges() {
	seen := make(map[[2]string]bool)
	addEdge := func(from, to string, kind EdgeKind) {
		key := [2]string{from, to}
		if seen[key] {
			return
		}
		seen[key] = true
		g.adjacency[from] = append(g.adjacency[from], to)
		g.reverse[to] = append(g.reverse[to], from)
		g.inDegree[to]++
		g.edges = append(g.edges, Edge{From: from, To: to, Kind: kind})
	}

	for _, id := range g.ids {
		for _, dep := range g.schemas[id].Dependencies() {
			addEdge(dep, id, EdgeDependency)
		}
		for _, auto := range g.schemas[id].AutoLoad() {
			if g.present[auto] {
				addEdge(auto, id, EdgeAutoLoad)
			}
		}
	}
}

// before reports whether a should be picked before b when both are ready:
// higher priority first, then earlier declaration.
func (g *graph) before(a, b string) bool {
	pa, pb := g.schemas[a].Priority, g.schemas[b].Priority
	if pa != pb {
		return pa > pb
	}
	return g.rank[a] < g.rank[b]
}

// topoSort runs Kahn's algorithm, always taking the best ready component, and
// falls back to cycle detection when components are left over.
func (g *graph) topoSort() ([]string, [][]string, error) {
	inDegree := make(map[string]int, len(g.inDegree))
	for id, d := range g.inDegree {
		inDegree[id] = d
	}

	level := make(map[string]int, len(g.ids))
	ready := make([]string, 0)
	for _, id := range g.ids {
		level[id] = 0
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(g.ids))
	for len(ready) > 0 {
		best := 0
		for i := 1; i < len(ready); i++ {
			if g.before(ready[i], ready[best]) {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, id)

		for _, dependent := range g.adjacency[id] {
			if level[id]+1 > level[dependent] {
				level[dependent] = level[id] + 1
			}
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(g.ids) {
		return nil, nil, dependencyCycle(g.findCycle(inDegree))
	}

	depth := 0
	for _, l := range level {
		if l+1 > depth {
			depth = l + 1
		}
	}
	levels := make([][]string, depth)
	for _, id := range order {
		levels[level[id]] = append(levels[level[id]], id)
	}
	for _, ids := range levels {
		sort.SliceStable(ids, func(i, j int) bool { return g.rank[ids[i]] < g.rank[ids[j]] })
	}

	return order, levels, nil
}

// findCycle walks prerequisite edges among the components Kahn could not
// order and returns the first cycle found, e.g. [a b a] for "a requires b
// requires a".
func (g *graph) findCycle(remaining map[string]int) []string {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var walk func(id string, path []string) []string
	walk = func(id string, path []string) []string {
		visited[id] = true
		recStack[id] = true
		path = append(path, id)

		for _, prereq := range g.reverse[id] {
			if remaining[prereq] == 0 {
				continue
			}
			if !visited[prereq] {
				if cycle := walk(prereq, path); cycle != nil {
					return cycle
				}
			} else if recStack[prereq] {
				for i, p := range path {
					if p == prereq {
						return append(append([]string(nil), path[i:]...), prereq)
					}
				}
			}
		}

		recStack[id] = false
		return nil
	}

	for _, id := range g.ids {
		if remaining[id] == 0 || visited[id] {
			continue
		}
		if cycle := walk(id, nil); cycle != nil {
			return cycle
		}
	}
	return nil
}

// ToDOT renders the resolution as a Graphviz digraph. Auto-loaded components
// are drawn dashed and auto-load edges dotted.
func (res *Resolution) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Components {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range res.Levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, id := range ids {
			style := "rounded"
			if _, ok := res.AutoLoaded[id]; ok {
				style = "rounded,dashed"
			}
			sb.WriteString(fmt.Sprintf("    %q [style=%q];\n", id, style))
		}
		sb.WriteString("  }\n\n")
	}

	for _, e := range res.Edges {
		style := "style=solid"
		if e.Kind == EdgeAutoLoad {
			style = "style=dotted"
		}
		sb.WriteString(fmt.Sprintf("  %q -> %q [%s];\n", e.From, e.To, style))
	}

	sb.WriteString("}\n")
	return sb.String()
}

// Position returns the index of id in the order, or -1.
func (res *Resolution) Position(id string) int {
	for i, v := range res.Order {
		if v == id {
			return i
		}
	}
	return -1
}
