package referential

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vitisalign/vitisalign-backend/internal/types"
)

// MergeKey selects the grouping key used to deduplicate raw ontology
// rows into concepts.
type MergeKey string

const (
	// MergeKeyName groups rows by case-folded plain-English name.
	MergeKeyName MergeKey = "name"
	// MergeKeyRefID groups rows by their declared ref_id.
	MergeKeyRefID MergeKey = "ref_id"
)

// ConflictAction decides what happens when rows under one key disagree
// on their unit sets.
type ConflictAction string

const (
	// ConflictFlag unions the values and records a warning in the report.
	ConflictFlag ConflictAction = "flag"
	// ConflictReject drops the conflicting row and records it as rejected.
	ConflictReject ConflictAction = "reject"
)

// MergePolicy is configurable rather than hard-coded: the source
// ontology's dedup heuristic has unresolved edge cases (same name,
// conflicting unit sets) and operators need to choose how those fall.
type MergePolicy struct {
	Key        MergeKey       `yaml:"key"`
	OnConflict ConflictAction `yaml:"on_conflict"`
}

func DefaultMergePolicy() MergePolicy {
	return MergePolicy{Key: MergeKeyName, OnConflict: ConflictFlag}
}

// LoadMergePolicy reads a policy from a yaml file, falling back to the
// default for unset fields.
func LoadMergePolicy(path string) (MergePolicy, error) {
	policy := DefaultMergePolicy()
	raw, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read merge policy %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return DefaultMergePolicy(), fmt.Errorf("invalid merge policy yaml in %s: %w", path, err)
	}
	if policy.Key == "" {
		policy.Key = MergeKeyName
	}
	if policy.OnConflict == "" {
		policy.OnConflict = ConflictFlag
	}
	if policy.Key != MergeKeyName && policy.Key != MergeKeyRefID {
		return DefaultMergePolicy(), fmt.Errorf("unsupported merge key %q", policy.Key)
	}
	if policy.OnConflict != ConflictFlag && policy.OnConflict != ConflictReject {
		return DefaultMergePolicy(), fmt.Errorf("unsupported conflict action %q", policy.OnConflict)
	}
	return policy, nil
}

func (p MergePolicy) keyOf(r RawRow) string {
	switch p.Key {
	case MergeKeyRefID:
		return strings.TrimSpace(r.RefID)
	default:
		return strings.ToLower(strings.TrimSpace(r.Name))
	}
}

// Merge deduplicates raw ontology rows into reference concepts. Units,
// methods and aliases accumulate in first-seen order; descriptions are
// joined with "|" so the canonicalizer can rewrite them later. Rows
// whose key is empty are rejected individually.
func Merge(rows []RawRow, policy MergePolicy) ([]types.ReferenceConcept, *LoadReport, error) {
	report := &LoadReport{}

	var order []string
	grouped := map[string]*types.ReferenceConcept{}
	seenUnits := map[string]map[string]bool{}

	for i, row := range rows {
		key := policy.keyOf(row)
		if key == "" {
			report.Rejected = append(report.Rejected, fmt.Sprintf("row %d: empty merge key (%s)", i, policy.Key))
			continue
		}

		c, ok := grouped[key]
		if !ok {
			order = append(order, key)
			c = &types.ReferenceConcept{
				RefID: strings.TrimSpace(row.RefID),
				Name:  strings.TrimSpace(row.Name),
			}
			grouped[key] = c
			seenUnits[key] = map[string]bool{}
		}

		unit := strings.TrimSpace(row.Unit)
		if unit != "" && len(seenUnits[key]) > 0 && !seenUnits[key][unit] {
			warning := fmt.Sprintf("key %q: row %d introduces unit %q alongside %v", key, i, unit, c.Units)
			if policy.OnConflict == ConflictReject {
				report.Rejected = append(report.Rejected, warning)
				continue
			}
			report.Warnings = append(report.Warnings, warning)
		}
		if unit != "" {
			seenUnits[key][unit] = true
		}

		c.Units = appendUnique(c.Units, row.Unit)
		c.Methods = appendUnique(c.Methods, row.Method)
		c.Aliases = appendUnique(c.Aliases, row.Alias)
		if d := strings.TrimSpace(row.Description); d != "" {
			if c.Description == "" {
				c.Description = d
			} else if !strings.Contains(c.Description, d) {
				c.Description = c.Description + "|" + d
			}
		}
		if c.RefID == "" {
			c.RefID = strings.TrimSpace(row.RefID)
		}
	}

	concepts := make([]types.ReferenceConcept, 0, len(order))
	for _, key := range order {
		concepts = append(concepts, *grouped[key])
	}
	report.Accepted = len(concepts)

	if len(concepts) == 0 {
		return nil, report, fmt.Errorf("ontology merge produced no concepts")
	}
	return concepts, report, nil
}
