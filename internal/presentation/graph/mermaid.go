package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/baton/pkg/domain"
)

// Overlay contains run state to visualize on the graph.
type Overlay struct {
	Done   []string
	Failed string
}

// GenerateMermaid produces a Mermaid flowchart of a stage graph.
// Stages are drawn as rectangles, entry stages as circles and artifacts as
// cylinders. Trigger hand-offs are solid edges; artifact reads and writes are
// dotted, since no stage ever calls another through them.
func GenerateMermaid(g *domain.StageGraph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	entry := entryStages(g)
	for _, s := range g.Stages {
		id := sanitizeMermaidID(s.Name)
		opener, closer := "[", "]"
		if entry[s.Name] {
			opener, closer = "((", "))"
		}
		label := s.Name
		if w := s.WorkName(); w != s.Name {
			label = fmt.Sprintf("%s <br/> %s", s.Name, w)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", id, opener, label, closer)
	}

	for _, a := range g.Artifacts {
		fmt.Fprintf(&sb, "    %s[(\"%s\")]\n", artifactID(a.Role, a.Kind), a.Bucket+"/"+a.Key)
	}

	for _, s := range g.Stages {
		id := sanitizeMermaidID(s.Name)
		for _, ref := range s.OutputRefs() {
			fmt.Fprintf(&sb, "    %s -. %s .-> %s\n", id, ref.Kind, artifactID(ref.Role, ref.Kind))
		}
		for _, ref := range s.InputRefs() {
			fmt.Fprintf(&sb, "    %s -.-> %s\n", artifactID(ref.Role, ref.Kind), id)
		}
		if s.Next != "" {
			fmt.Fprintf(&sb, "    %s --> %s\n", id, sanitizeMermaidID(s.Next))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef done fill:#e8f5e9,stroke:#1b5e20,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffebee,stroke:#b71c1c,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, name := range overlay.Done {
			id := sanitizeMermaidID(name)
			if id != "" && !seen[id] {
				seen[id] = true
				fmt.Fprintf(&sb, "    class %s done;\n", id)
			}
		}
		if overlay.Failed != "" {
			fmt.Fprintf(&sb, "    class %s failed;\n", sanitizeMermaidID(overlay.Failed))
		}
	}

	return sb.String()
}

// entryStages returns the stages no other stage triggers.
func entryStages(g *domain.StageGraph) map[string]bool {
	targets := make(map[string]bool)
	for _, s := range g.Stages {
		if s.Next != "" {
			targets[s.Next] = true
		}
	}
	entry := make(map[string]bool)
	for _, s := range g.Stages {
		if !targets[s.Name] {
			entry[s.Name] = true
		}
	}
	return entry
}

func artifactID(role, kind string) string {
	return "art_" + sanitizeMermaidID(role) + "__" + sanitizeMermaidID(kind)
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
