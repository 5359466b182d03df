package referential

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/vitisalign/vitisalign-backend/internal/logger"
	"github.com/vitisalign/vitisalign-backend/internal/types"
)

// LoadReport records what happened to individual entries during a load:
// which rows were rejected and which merges were ambiguous. The load as
// a whole only fails on unreadable input or an empty result.
type LoadReport struct {
	Accepted int      `json:"accepted"`
	Rejected []string `json:"rejected,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Load reads a referential file of already-normalized concepts (a JSON
// array of reference concepts). Entries missing both ref_id and name are
// rejected individually and recorded in the report.
func Load(path string, log *logger.Logger) ([]types.ReferenceConcept, *LoadReport, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read referential file %s: %w", path, err)
	}

	var entries []types.ReferenceConcept
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, nil, fmt.Errorf("invalid referential JSON in %s: %w", path, err)
	}

	report := &LoadReport{}
	concepts := make([]types.ReferenceConcept, 0, len(entries))
	for i, e := range entries {
		if e.IndexID() == "" {
			report.Rejected = append(report.Rejected, fmt.Sprintf("entry %d: missing both ref_id and name", i))
			continue
		}
		if len(e.Units) == 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("entry %d (%s): no units declared", i, e.IndexID()))
		}
		concepts = append(concepts, e)
	}
	report.Accepted = len(concepts)

	if len(concepts) == 0 {
		return nil, report, fmt.Errorf("referential %s contains no usable concepts", path)
	}

	if log != nil {
		log.Info("Referential loaded",
			"path", path,
			"accepted", report.Accepted,
			"rejected", len(report.Rejected),
			"warnings", len(report.Warnings),
		)
		for _, r := range report.Rejected {
			log.Warn("Referential entry rejected", "reason", r)
		}
	}

	return concepts, report, nil
}

// RawRow is one row of an ontology dump before deduplication: a single
// observed variable variant with singular unit/method values.
type RawRow struct {
	RefID       string `json:"ref_id"`
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Method      string `json:"method"`
	Description string `json:"description"`
	Alias       string `json:"alias"`
}

// LoadRaw reads a raw ontology dump (a JSON array of rows) and merges it
// into concepts according to policy.
func LoadRaw(path string, policy MergePolicy, log *logger.Logger) ([]types.ReferenceConcept, *LoadReport, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read raw ontology file %s: %w", path, err)
	}

	var rows []RawRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, nil, fmt.Errorf("invalid raw ontology JSON in %s: %w", path, err)
	}

	concepts, report, err := Merge(rows, policy)
	if err != nil {
		return nil, report, err
	}

	if log != nil {
		log.Info("Raw ontology merged",
			"path", path,
			"rows", len(rows),
			"concepts", len(concepts),
			"rejected", len(report.Rejected),
			"warnings", len(report.Warnings),
		)
		for _, w := range report.Warnings {
			log.Warn("Ambiguous ontology merge", "detail", w)
		}
	}

	return concepts, report, nil
}

func appendUnique(list []string, v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
