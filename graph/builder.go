package graph

import (
	"errors"
	"sort"
	"sync"
)

// Builder assembles a graph definition: nodes, one outgoing edge per
// non-terminal node, and the entry node.
//
// Node and edge references may be added in any order; they are resolved by
// Compile, which reports every problem at once. A Builder is sealed after a
// successful Compile.
//
// Example:
//
//	b := NewBuilder[State](Merge)
//	_ = b.AddNode("categorize", categorize)
//	_ = b.AddNode("draft", draft)
//	_ = b.SetEntry("categorize")
//	_ = b.AddEdge("categorize", "draft")
//	_ = b.AddEdge("draft", END)
//	g, err := b.Compile()
type Builder[S any] struct {
	mu sync.Mutex

	reducer  Reducer[S]
	nodes    map[string]Node[S]
	order    []string
	edges    map[string]Edge[S]
	policies map[string]NodePolicy
	entry    string
	sealed   bool
}

// NewBuilder returns an empty Builder that merges node updates with reducer.
func NewBuilder[S any](reducer Reducer[S]) *Builder[S] {
	return &Builder[S]{
		reducer:  reducer,
		nodes:    make(map[string]Node[S]),
		edges:    make(map[string]Edge[S]),
		policies: make(map[string]NodePolicy),
	}
}

// AddNode registers a node under a unique name.
//
// Returns error if:
//   - nodeID is empty or END
//   - node is nil
//   - a node with this ID already exists
func (b *Builder[S]) AddNode(nodeID string, node Node[S]) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil", NodeID: nodeID}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return &DefinitionError{Kind: ErrSealed, NodeID: nodeID}
	}
	if nodeID == END {
		return &DefinitionError{Kind: ErrReservedName, NodeID: nodeID}
	}
	if _, exists := b.nodes[nodeID]; exists {
		return &DefinitionError{Kind: ErrDuplicateNode, NodeID: nodeID}
	}

	b.nodes[nodeID] = node
	b.order = append(b.order, nodeID)
	return nil
}

// AddEdge records the unconditional edge from -> to. to may be END.
//
// A node has exactly one outgoing edge definition; a second one fails with
// ErrDuplicateEdge. Unknown endpoints are reported by Compile.
func (b *Builder[S]) AddEdge(from, to string) error {
	if from == "" {
		return &EngineError{Message: "from node ID cannot be empty"}
	}
	if to == "" {
		return &EngineError{Message: "to node ID cannot be empty", NodeID: from}
	}
	return b.addEdge(Edge[S]{From: from, To: to})
}

// AddConditionalEdge records a conditional edge: after from runs, decider is
// called on the merged state and the run continues at routes[label].
//
// routes must list every label decider can return. Targets may be END.
func (b *Builder[S]) AddConditionalEdge(from string, decider Decider[S], routes map[Label]string) error {
	if from == "" {
		return &EngineError{Message: "from node ID cannot be empty"}
	}
	if decider == nil {
		return &EngineError{Message: "decider cannot be nil", NodeID: from}
	}
	if len(routes) == 0 {
		return &EngineError{Message: "conditional edge needs at least one route", NodeID: from}
	}

	copied := make(map[Label]string, len(routes))
	for label, to := range routes {
		if to == "" {
			return &EngineError{Message: "route " + string(label) + " has an empty target", NodeID: from}
		}
		copied[label] = to
	}
	return b.addEdge(Edge[S]{From: from, Decider: decider, Routes: copied})
}

func (b *Builder[S]) addEdge(edge Edge[S]) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return &DefinitionError{Kind: ErrSealed, NodeID: edge.From}
	}
	if _, exists := b.edges[edge.From]; exists {
		return &DefinitionError{Kind: ErrDuplicateEdge, NodeID: edge.From}
	}
	b.edges[edge.From] = edge
	return nil
}

// SetEntry sets the node a run starts at. The node may be registered later.
func (b *Builder[S]) SetEntry(nodeID string) error {
	if nodeID == "" {
		return &EngineError{Message: "entry node ID cannot be empty"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return &DefinitionError{Kind: ErrSealed, NodeID: nodeID}
	}
	b.entry = nodeID
	return nil
}

// SetPolicy attaches an execution policy to a node.
func (b *Builder[S]) SetPolicy(nodeID string, policy NodePolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return &DefinitionError{Kind: ErrSealed, NodeID: nodeID}
	}
	b.policies[nodeID] = policy
	return nil
}

// Compile validates the definition and returns an immutable Graph.
//
// Compile reports, joined into one error:
//   - ErrNoEntry when no entry node was set
//   - ErrUnknownNode for an entry, edge endpoint, or policy naming an
//     unregistered node
//   - ErrMissingEdge for a node without an outgoing edge
//   - ErrUnreachableNode for a node not reachable from the entry
func (b *Builder[S]) Compile() (*Graph[S], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return nil, &DefinitionError{Kind: ErrSealed}
	}

	var errs []error
	if b.reducer == nil {
		errs = append(errs, &EngineError{Message: "reducer is required", Code: "MISSING_REDUCER"})
	}

	entryOK := false
	switch _, known := b.nodes[b.entry]; {
	case b.entry == "":
		errs = append(errs, &DefinitionError{Kind: ErrNoEntry})
	case !known:
		errs = append(errs, &DefinitionError{Kind: ErrUnknownNode, NodeID: b.entry, Detail: "entry"})
	default:
		entryOK = true
	}

	for _, from := range b.edgeSources() {
		edge := b.edges[from]
		if _, known := b.nodes[from]; !known {
			errs = append(errs, &DefinitionError{Kind: ErrUnknownNode, NodeID: from, Detail: "edge source"})
		}
		for _, to := range edge.Targets() {
			if to == END {
				continue
			}
			if _, known := b.nodes[to]; !known {
				errs = append(errs, &DefinitionError{Kind: ErrUnknownNode, NodeID: to, Detail: "edge from " + from})
			}
		}
	}

	for nodeID := range b.policies {
		if _, known := b.nodes[nodeID]; !known {
			errs = append(errs, &DefinitionError{Kind: ErrUnknownNode, NodeID: nodeID, Detail: "policy"})
		}
	}

	for _, nodeID := range b.order {
		if _, ok := b.edges[nodeID]; !ok {
			errs = append(errs, &DefinitionError{Kind: ErrMissingEdge, NodeID: nodeID})
		}
	}

	if entryOK {
		reached := b.reachable()
		for _, nodeID := range b.order {
			if !reached[nodeID] {
				errs = append(errs, &DefinitionError{Kind: ErrUnreachableNode, NodeID: nodeID, Detail: "from entry " + b.entry})
			}
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	b.sealed = true
	g := &Graph[S]{
		reducer:  b.reducer,
		nodes:    make(map[string]Node[S], len(b.nodes)),
		order:    append([]string(nil), b.order...),
		edges:    make(map[string]Edge[S], len(b.edges)),
		policies: make(map[string]NodePolicy, len(b.policies)),
		entry:    b.entry,
	}
	for k, v := range b.nodes {
		g.nodes[k] = v
	}
	for k, v := range b.edges {
		g.edges[k] = v
	}
	for k, v := range b.policies {
		g.policies[k] = v
	}
	return g, nil
}

// edgeSources returns edge sources in node registration order, followed by
// sources that name no registered node.
func (b *Builder[S]) edgeSources() []string {
	out := make([]string, 0, len(b.edges))
	for _, nodeID := range b.order {
		if _, ok := b.edges[nodeID]; ok {
			out = append(out, nodeID)
		}
	}
	var unknown []string
	for from := range b.edges {
		if _, ok := b.nodes[from]; !ok {
			unknown = append(unknown, from)
		}
	}
	sort.Strings(unknown)
	return append(out, unknown...)
}

// reachable walks the edge table breadth-first from the entry.
func (b *Builder[S]) reachable() map[string]bool {
	seen := map[string]bool{b.entry: true}
	queue := []string{b.entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		edge, ok := b.edges[cur]
		if !ok {
			continue
		}
		for _, to := range edge.Targets() {
			if to == END || seen[to] {
				continue
			}
			seen[to] = true
			queue = append(queue, to)
		}
	}
	return seen
}

// Graph is a compiled, validated graph definition. It is immutable and safe
// for concurrent use by any number of runs.
type Graph[S any] struct {
	reducer  Reducer[S]
	nodes    map[string]Node[S]
	order    []string
	edges    map[string]Edge[S]
	policies map[string]NodePolicy
	entry    string
}

// Entry returns the entry node ID.
func (g *Graph[S]) Entry() string { return g.entry }

// Nodes returns node IDs in registration order.
func (g *Graph[S]) Nodes() []string { return append([]string(nil), g.order...) }

// Node returns the node registered under nodeID.
func (g *Graph[S]) Node(nodeID string) (Node[S], bool) {
	n, ok := g.nodes[nodeID]
	return n, ok
}

// Edge returns the outgoing edge of nodeID.
func (g *Graph[S]) Edge(nodeID string) (Edge[S], bool) {
	e, ok := g.edges[nodeID]
	return e, ok
}

// Policy returns the execution policy of nodeID, if one was set.
func (g *Graph[S]) Policy(nodeID string) (NodePolicy, bool) {
	p, ok := g.policies[nodeID]
	return p, ok
}

// Reducer returns the reducer that merges node updates.
func (g *Graph[S]) Reducer() Reducer[S] { return g.reducer }
