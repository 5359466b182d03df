package referential

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadAcceptsValidConcepts(t *testing.T) {
	path := writeTempFile(t, "refs.json", `[
		{"ref_id": "ref_1", "name": "Alcohol content", "units": ["%v/v"], "aliases": ["ALC_C"]},
		{"ref_id": "ref_2", "name": "Potassium concentration", "units": ["mg/l", "g/100g"]}
	]`)

	concepts, report, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(concepts) != 2 {
		t.Fatalf("concepts: want=2 got=%d", len(concepts))
	}
	if report.Accepted != 2 || len(report.Rejected) != 0 {
		t.Fatalf("report: %+v", report)
	}
}

func TestLoadRejectsEntriesWithoutIdentity(t *testing.T) {
	path := writeTempFile(t, "refs.json", `[
		{"ref_id": "ref_1", "name": "Alcohol content", "units": ["%v/v"]},
		{"description": "orphan row"}
	]`)

	concepts, report, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(concepts) != 1 {
		t.Fatalf("concepts: want=1 got=%d", len(concepts))
	}
	if len(report.Rejected) != 1 || !strings.Contains(report.Rejected[0], "entry 1") {
		t.Fatalf("rejected: %v", report.Rejected)
	}
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "nope.json"), nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadFailsOnInvalidJSON(t *testing.T) {
	path := writeTempFile(t, "refs.json", `{not json`)
	if _, _, err := Load(path, nil); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestLoadFailsWhenNothingUsable(t *testing.T) {
	path := writeTempFile(t, "refs.json", `[{"description": "x"}]`)
	if _, _, err := Load(path, nil); err == nil {
		t.Fatalf("expected error when no concept survives validation")
	}
}

func TestMergeAccumulatesVariants(t *testing.T) {
	rows := []RawRow{
		{RefID: "ref_2", Name: "Potassium concentration", Unit: "mg/l", Method: "HPLC ion exchange", Description: "Potassium concentration of the berries (IC-HPLC, mg/l)", Alias: "BER_K_HPLC"},
		{Name: "Potassium Concentration", Unit: "mg/l", Method: "flame spec", Description: "Must Potassium concentration (flame spec.)", Alias: "MUST_K"},
	}

	concepts, report, err := Merge(rows, DefaultMergePolicy())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(concepts) != 1 {
		t.Fatalf("concepts: want=1 got=%d", len(concepts))
	}
	c := concepts[0]
	if c.RefID != "ref_2" {
		t.Fatalf("ref_id: want=ref_2 got=%s", c.RefID)
	}
	if len(c.Units) != 1 || c.Units[0] != "mg/l" {
		t.Fatalf("units: %v", c.Units)
	}
	if len(c.Methods) != 2 {
		t.Fatalf("methods: %v", c.Methods)
	}
	if len(c.Aliases) != 2 || c.Aliases[0] != "BER_K_HPLC" {
		t.Fatalf("aliases must keep first-seen order: %v", c.Aliases)
	}
	if !strings.Contains(c.Description, "|") {
		t.Fatalf("descriptions should be joined with |: %q", c.Description)
	}
	if len(report.Warnings) != 0 {
		t.Fatalf("same-unit merge should not warn: %v", report.Warnings)
	}
}

func TestMergeFlagsConflictingUnits(t *testing.T) {
	rows := []RawRow{
		{Name: "Sour rot", Unit: "S1_9", Method: "Visual rating"},
		{Name: "Sour rot", Unit: "%", Method: "%"},
	}

	concepts, report, err := Merge(rows, DefaultMergePolicy())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(concepts) != 1 {
		t.Fatalf("concepts: want=1 got=%d", len(concepts))
	}
	if len(concepts[0].Units) != 2 {
		t.Fatalf("conflicting units should union under flag policy: %v", concepts[0].Units)
	}
	if len(report.Warnings) != 1 {
		t.Fatalf("conflict must be flagged: %v", report.Warnings)
	}
}

func TestMergeRejectPolicyDropsConflictingRow(t *testing.T) {
	rows := []RawRow{
		{Name: "Sour rot", Unit: "S1_9"},
		{Name: "Sour rot", Unit: "%"},
	}

	concepts, report, err := Merge(rows, MergePolicy{Key: MergeKeyName, OnConflict: ConflictReject})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(concepts[0].Units) != 1 || concepts[0].Units[0] != "S1_9" {
		t.Fatalf("reject policy should keep only first unit set: %v", concepts[0].Units)
	}
	if len(report.Rejected) != 1 {
		t.Fatalf("dropped row must be recorded: %v", report.Rejected)
	}
}

func TestMergeByRefID(t *testing.T) {
	rows := []RawRow{
		{RefID: "ref_3", Name: "malic acid concentration", Unit: "g/l"},
		{RefID: "ref_3", Name: "Malic acid", Unit: "g/l"},
		{RefID: "ref_4", Name: "Sour rot", Unit: "S1_9"},
	}
	concepts, _, err := Merge(rows, MergePolicy{Key: MergeKeyRefID, OnConflict: ConflictFlag})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(concepts) != 2 {
		t.Fatalf("concepts: want=2 got=%d", len(concepts))
	}
}

func TestMergeRejectsRowsWithEmptyKey(t *testing.T) {
	rows := []RawRow{
		{Name: "Sour rot", Unit: "S1_9"},
		{Unit: "%"},
	}
	concepts, report, err := Merge(rows, DefaultMergePolicy())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(concepts) != 1 {
		t.Fatalf("concepts: want=1 got=%d", len(concepts))
	}
	if len(report.Rejected) != 1 {
		t.Fatalf("keyless row must be rejected: %v", report.Rejected)
	}
}

func TestLoadMergePolicyFromYAML(t *testing.T) {
	path := writeTempFile(t, "policy.yaml", "key: ref_id\non_conflict: reject\n")
	policy, err := LoadMergePolicy(path)
	if err != nil {
		t.Fatalf("LoadMergePolicy: %v", err)
	}
	if policy.Key != MergeKeyRefID || policy.OnConflict != ConflictReject {
		t.Fatalf("policy: %+v", policy)
	}
}

func TestLoadMergePolicyRejectsUnknownKey(t *testing.T) {
	path := writeTempFile(t, "policy.yaml", "key: colour\n")
	if _, err := LoadMergePolicy(path); err == nil {
		t.Fatalf("expected error for unsupported merge key")
	}
}
