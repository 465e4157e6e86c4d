package matching

import (
	"strings"

	"github.com/kalambet/agentmesh/internal/storage"
)

// RenderProfile produces the text that is both embedded and shown to the
// evaluator. Blank fields are left out entirely.
func RenderProfile(name string, p storage.Profile) string {
	if strings.TrimSpace(name) == "" {
		name = "Unknown"
	}
	lines := []string{"Name: " + name}
	for _, f := range []struct{ label, value string }{
		{"Headline", p.Headline},
		{"Bio", p.Bio},
		{"Interests", p.Interests},
		{"Looking For", p.LookingFor},
	} {
		if v := strings.TrimSpace(f.value); v != "" {
			lines = append(lines, f.label+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}
