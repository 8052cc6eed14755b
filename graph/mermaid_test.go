package graph

import (
	"strings"
	"testing"
	"time"
)

func TestGraph_Mermaid(t *testing.T) {
	g := rewriteGraph(t, labelDecider("rewrite"))
	out := g.Mermaid()

	want := []string{
		"graph TD\n",
		`    categorize(("categorize"))`,
		"    categorize --> draft",
		`    draft -- "no_rewrite" --> no_rewrite`,
		`    draft -- "rewrite" --> analyze`,
		"    rewrite --> END_",
		`    END_(["END"])`,
	}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("Mermaid output missing %q\n%s", w, out)
		}
	}

	if out != g.Mermaid() {
		t.Error("Mermaid output is not stable")
	}
}

func TestGraph_MermaidPolicyAndSanitize(t *testing.T) {
	b := NewBuilder[State](Merge)
	_ = b.AddNode("rag.answer-step", setNode("x", 1))
	_ = b.SetEntry("rag.answer-step")
	_ = b.AddEdge("rag.answer-step", END)
	_ = b.SetPolicy("rag.answer-step", NodePolicy{Timeout: 5 * time.Second})
	out := mustCompile(t, b).Mermaid()

	if !strings.Contains(out, `rag_answer_step(("rag.answer-step <br/> timeout 5s"))`) {
		t.Errorf("unexpected node rendering:\n%s", out)
	}
}
