package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// Overlay marks nodes of a live conversation on the rendered graph.
type Overlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFromState highlights the node the top frame of state is parked on, when that frame
// belongs to programID.
func OverlayFromState(state *domain.State, programID string) *Overlay {
	if state == nil || len(state.Stack) == 0 {
		return nil
	}
	top := state.Stack[len(state.Stack)-1]
	if top.ProgramID != programID {
		return nil
	}
	return &Overlay{CurrentNode: top.NodeID}
}

// GenerateMermaid produces a Mermaid flowchart of a program.
// Shapes follow the node role:
//   - start: ((Circle))
//   - flow and api: [[Subroutine]]
//   - nodes waiting for input: [/Parallelogram/]
//   - everything else: [Rectangle]
//
// Labelled edges carry the event or condition that selects them. Commands are drawn as
// dotted edges from the start node.
func GenerateMermaid(program *domain.Program, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	ids := make([]string, 0, len(program.Nodes))
	for id := range program.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node := program.Nodes[id]
		safeID := sanitizeMermaidID(id)
		opener, closer := shape(node)
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, nodeLabel(node), closer)

		for _, e := range edges(node) {
			safeTo := sanitizeMermaidID(e.to)
			if e.label == "" {
				fmt.Fprintf(&sb, "    %s --> %s\n", safeID, safeTo)
				continue
			}
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, escape(e.label), safeTo)
		}
	}

	if program.StartID != "" {
		start := sanitizeMermaidID(program.StartID)
		for _, cmd := range program.Commands {
			switch cmd.Type {
			case domain.CommandJump:
				if cmd.Next != "" {
					fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", start, escape(eventLabel(cmd.Event)), sanitizeMermaidID(cmd.Next))
				}
			case domain.CommandPush:
				target := "program_" + sanitizeMermaidID(cmd.ProgramID)
				fmt.Fprintf(&sb, "    %s[[\"%s\"]]\n", target, escape(cmd.ProgramID))
				fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", start, escape(eventLabel(cmd.Event)), target)
			}
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps the labels readable on both themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if safeID == "" || seen[safeID] {
				continue
			}
			seen[safeID] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
		}
		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

type edge struct {
	to    string
	label string
}

func edges(n *domain.Node) []edge {
	var out []edge
	for _, in := range n.Interactions {
		if in.NextID != "" {
			label := in.Label
			if label == "" {
				label = eventLabel(in.Event)
			}
			out = append(out, edge{to: in.NextID, label: label})
		}
	}
	if n.If != nil {
		for _, b := range n.If.Branches {
			if b.NextID != "" {
				c := b.Condition
				out = append(out, edge{to: b.NextID, label: fmt.Sprintf("%s %s %v", c.Variable, c.Operator, c.Value)})
			}
		}
	}
	if n.API != nil {
		if n.API.SuccessID != "" {
			out = append(out, edge{to: n.API.SuccessID, label: "success"})
		}
		if n.API.FailID != "" {
			out = append(out, edge{to: n.API.FailID, label: "fail"})
		}
	}
	if n.NoMatch != nil && n.NoMatch.NodeID != "" {
		out = append(out, edge{to: n.NoMatch.NodeID, label: "no match"})
	}
	if n.Next != "" {
		out = append(out, edge{to: n.Next})
	}
	return out
}

func shape(n *domain.Node) (string, string) {
	switch {
	case n.Type == domain.NodeStart:
		return "((", "))"
	case n.Type == domain.NodeFlow, n.Type == domain.NodeAPI:
		return "[[", "]]"
	case n.Type == domain.NodeInteraction, n.Type == domain.NodeIntent, n.Type == domain.NodeCapture:
		return "[/", "/]"
	default:
		return "[", "]"
	}
}

func nodeLabel(n *domain.Node) string {
	switch {
	case n.Type == domain.NodeFlow && n.Flow != nil:
		return escape(fmt.Sprintf("%s <br/> flow: %s", n.ID, n.Flow.ProgramID))
	case n.Type == domain.NodeAPI && n.API != nil:
		return escape(fmt.Sprintf("%s <br/> %s", n.ID, n.API.Method))
	case n.Type == domain.NodeIntent:
		if name, ok := n.BoundIntent(); ok {
			return escape(fmt.Sprintf("%s <br/> intent: %s", n.ID, name))
		}
	}
	return escape(n.ID)
}

func eventLabel(e domain.Event) string {
	if e.Type == domain.RequestIntent && e.Intent != "" {
		return e.Intent
	}
	return string(e.Type)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
