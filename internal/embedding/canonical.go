package embedding

import (
	"strings"

	"github.com/vitisalign/vitisalign-backend/internal/types"
)

// The canonical text block is the single representation fed to the
// embedding model for both the referential and the query side. Field
// order must stay identical on both sides; any asymmetry degrades
// retrieval quality without failing loudly.

// CanonicalConcept renders a reference concept as its canonical text
// block for embedding.
func CanonicalConcept(c types.ReferenceConcept) string {
	return strings.TrimSpace(strings.Join([]string{
		"TRAIT: " + strings.TrimSpace(c.Name),
		"DESCRIPTION: " + normalizeDescription(c.Description),
		"UNITS: " + joinTrimmed(c.Units),
		"METHODS: " + joinTrimmed(c.Methods),
		"ALIASES: " + joinTrimmed(c.Aliases),
	}, "\n"))
}

// CanonicalVariable renders a normalized variable with the same field
// layout, singular unit/method values instead of lists.
func CanonicalVariable(v types.NormalizedVariable) string {
	name := strings.TrimSpace(v.Trait)
	if name == "" {
		name = strings.TrimSpace(v.TraitID)
	}
	return strings.TrimSpace(strings.Join([]string{
		"TRAIT: " + name,
		"DESCRIPTION: " + normalizeDescription(v.Description),
		"UNITS: " + strings.TrimSpace(v.Unit),
		"METHODS: " + strings.TrimSpace(v.Method),
		"ALIASES: " + strings.TrimSpace(v.Aliases),
	}, "\n"))
}

// normalizeDescription rewrites "|"-separated historical variants as a
// "; "-joined sentence list, dropping empty segments.
func normalizeDescription(d string) string {
	d = strings.TrimSpace(d)
	if !strings.Contains(d, "|") {
		return d
	}
	parts := strings.Split(d, "|")
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "; ")
}

func joinTrimmed(values []string) string {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	return strings.Join(kept, ", ")
}
