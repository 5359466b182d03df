package embedding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/vitisalign/vitisalign-backend/internal/types"
)

// fakeEmbedder derives a deterministic vector from each input so tests
// can check ordering without a backend.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
	short bool
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("embedding backend unreachable")
	}
	if f.short {
		return [][]float32{{1, 0}}, nil
	}
	out := make([][]float32, len(inputs))
	for i, text := range inputs {
		out[i] = []float32{float32(len(text)), float32(strings.Count(text, "\n")), 1}
	}
	return out, nil
}

func testConcepts(n int) []types.ReferenceConcept {
	out := make([]types.ReferenceConcept, n)
	for i := range out {
		out[i] = types.ReferenceConcept{
			RefID: fmt.Sprintf("ref_%d", i+1),
			Name:  fmt.Sprintf("Concept number %d", i+1),
			Units: []string{"g/l"},
		}
	}
	return out
}

func TestBuildIndexAlignsIDsWithRows(t *testing.T) {
	emb := &fakeEmbedder{}
	idx, err := BuildIndex(context.Background(), emb, testConcepts(3))
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if len(idx.IDs) != len(idx.Vectors) {
		t.Fatalf("invariant: want len(ids)==len(vectors), got %d and %d", len(idx.IDs), len(idx.Vectors))
	}
	if idx.IDs[0] != "ref_1" || idx.IDs[2] != "ref_3" {
		t.Fatalf("id order: got=%v", idx.IDs)
	}
	if emb.calls != 1 {
		t.Fatalf("expected one batched embed call, got %d", emb.calls)
	}
}

func TestBuildIndexFallsBackToName(t *testing.T) {
	concepts := []types.ReferenceConcept{{Name: "Alcohol content", Units: []string{"%v/v"}}}
	idx, err := BuildIndex(context.Background(), &fakeEmbedder{}, concepts)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if idx.IDs[0] != "Alcohol content" {
		t.Fatalf("id fallback: want=%q got=%q", "Alcohol content", idx.IDs[0])
	}
}

func TestBuildIndexRejectsMissingIdentity(t *testing.T) {
	concepts := testConcepts(2)
	concepts[1].RefID = ""
	concepts[1].Name = "   "
	_, err := BuildIndex(context.Background(), &fakeEmbedder{}, concepts)
	if err == nil {
		t.Fatalf("expected error for concept without ref_id or name")
	}
	if !strings.Contains(err.Error(), "position 1") {
		t.Fatalf("error should identify offending entry, got=%v", err)
	}
}

func TestBuildIndexRejectsPartialBackendResult(t *testing.T) {
	_, err := BuildIndex(context.Background(), &fakeEmbedder{short: true}, testConcepts(3))
	if err == nil {
		t.Fatalf("expected error on vector count mismatch")
	}
}

func TestBuildIndexChunkedKeepsOrder(t *testing.T) {
	n := embedBatchSize*2 + 17
	emb := &fakeEmbedder{}
	concepts := testConcepts(n)
	idx, err := BuildIndex(context.Background(), emb, concepts)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if len(idx.Vectors) != n {
		t.Fatalf("rows: want=%d got=%d", n, len(idx.Vectors))
	}
	if emb.calls < 3 {
		t.Fatalf("expected chunked calls, got %d", emb.calls)
	}
	for i, c := range concepts {
		wantLen := float32(len(CanonicalConcept(c)))
		if idx.Vectors[i][0] != wantLen {
			t.Fatalf("row %d out of order: want first component %v got %v", i, wantLen, idx.Vectors[i][0])
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	idx, err := BuildIndex(context.Background(), &fakeEmbedder{}, testConcepts(4))
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if err := idx.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadIndex(dir)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if len(loaded.IDs) != len(idx.IDs) {
		t.Fatalf("ids length: want=%d got=%d", len(idx.IDs), len(loaded.IDs))
	}
	for i := range idx.IDs {
		if loaded.IDs[i] != idx.IDs[i] {
			t.Fatalf("id %d: want=%q got=%q", i, idx.IDs[i], loaded.IDs[i])
		}
		for j := range idx.Vectors[i] {
			if loaded.Vectors[i][j] != idx.Vectors[i][j] {
				t.Fatalf("vector[%d][%d]: want=%v got=%v", i, j, idx.Vectors[i][j], loaded.Vectors[i][j])
			}
		}
	}
}

func TestLoadIndexRejectsMisalignedSnapshot(t *testing.T) {
	dir := t.TempDir()
	idx, err := BuildIndex(context.Background(), &fakeEmbedder{}, testConcepts(3))
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if err := idx.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Drop one id to break positional alignment.
	if err := os.WriteFile(filepath.Join(dir, idsFilename), []byte(`["ref_1","ref_2"]`), 0o644); err != nil {
		t.Fatalf("tamper ids file: %v", err)
	}
	if _, err := LoadIndex(dir); err == nil {
		t.Fatalf("expected error for ids/vectors mismatch")
	}
}

func TestQueryVectorRejectsInvalidVariable(t *testing.T) {
	emb := &fakeEmbedder{}
	_, err := QueryVector(context.Background(), emb, types.NormalizedVariable{})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if emb.calls != 0 {
		t.Fatalf("invalid variable must be rejected before any network call, got %d calls", emb.calls)
	}
}

func TestQueryVectorEmbedsCanonicalText(t *testing.T) {
	v := types.NormalizedVariable{Trait: "Sour Rot", Unit: "S1_9"}
	vec, err := QueryVector(context.Background(), &fakeEmbedder{}, v)
	if err != nil {
		t.Fatalf("QueryVector: %v", err)
	}
	if want := float32(len(CanonicalVariable(v))); vec[0] != want {
		t.Fatalf("query embedded wrong text: want first component %v got %v", want, vec[0])
	}
}
