package graph

import (
	"fmt"
	"strings"
)

// Mermaid renders the graph as a Mermaid flowchart.
//
// The entry node is drawn as a circle and END as a stadium. Conditional edges
// carry their label; static edges are plain arrows. Nodes appear in
// registration order so the output is stable across calls.
func (g *Graph[S]) Mermaid() string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	endUsed := false
	for _, nodeID := range g.order {
		safeID := mermaidID(nodeID)
		opener, closer := "[", "]"
		if nodeID == g.entry {
			opener, closer = "((", "))"
		}
		label := nodeID
		if p, ok := g.policies[nodeID]; ok && p.Timeout > 0 {
			label = fmt.Sprintf("%s <br/> timeout %s", nodeID, p.Timeout)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)

		edge, ok := g.edges[nodeID]
		if !ok {
			continue
		}
		if !edge.Conditional() {
			endUsed = endUsed || edge.To == END
			fmt.Fprintf(&sb, "    %s --> %s\n", safeID, mermaidID(edge.To))
			continue
		}
		for _, l := range sortedLabels(edge.Routes) {
			to := edge.Routes[l]
			endUsed = endUsed || to == END
			safeLabel := strings.ReplaceAll(string(l), "\"", "'")
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, safeLabel, mermaidID(to))
		}
	}

	if endUsed {
		fmt.Fprintf(&sb, "    %s([\"END\"])\n", mermaidID(END))
	}
	return sb.String()
}

func mermaidID(id string) string {
	if id == END {
		return "END_"
	}
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}
