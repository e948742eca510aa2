package stagegraph

import (
	"fmt"
	"strings"
)

// Render generates a Mermaid flowchart of the graph. Each dependency layer
// becomes a subgraph so nodes that may run together are drawn together.
func Render(g *Graph) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	for i, layer := range g.layers {
		fmt.Fprintf(&b, "    subgraph layer%d [Layer %d]\n", i, i)
		for _, name := range layer {
			fmt.Fprintf(&b, "        %s[\"%s\"]\n", sanitizeID(name), name)
		}
		b.WriteString("    end\n")
	}

	for _, name := range g.order {
		for _, req := range g.index[name].Requires() {
			fmt.Fprintf(&b, "    %s --> %s\n", sanitizeID(req), sanitizeID(name))
		}
	}
	return b.String()
}

func sanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
