package embedding

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/vitisalign/vitisalign-backend/internal/pkg/ctxutil"
	"github.com/vitisalign/vitisalign-backend/internal/types"
)

// Embedder is the slice of the model client the index needs. The same
// embedder instance must serve both the build and query paths: vectors
// from different embedding models are not comparable.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

const (
	vectorsFilename = "ref_embeddings.bin"
	idsFilename     = "ref_ids.json"

	// Above this many concepts the build splits the embedding request
	// into chunks; each chunk is still one batched backend call.
	embedBatchSize = 128

	embedConcurrency = 4
)

// Index is the immutable embedding snapshot of the referential.
// Vectors[i] corresponds to IDs[i]; the alignment is positional, so row
// order is append order and must never be reordered.
type Index struct {
	IDs     []string
	Vectors [][]float32
}

// BuildIndex canonicalizes and embeds every concept. The whole build
// fails if any concept lacks an id, if the backend returns a partial
// result, or if any returned vector is empty.
func BuildIndex(ctx context.Context, embedder Embedder, concepts []types.ReferenceConcept) (*Index, error) {
	ctx = ctxutil.Default(ctx)
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if len(concepts) == 0 {
		return nil, fmt.Errorf("cannot build index from empty referential")
	}

	ids := make([]string, len(concepts))
	texts := make([]string, len(concepts))
	for i, c := range concepts {
		id := c.IndexID()
		if id == "" {
			return nil, fmt.Errorf("concept at position %d is missing both ref_id and name", i)
		}
		ids[i] = id
		texts[i] = CanonicalConcept(c)
	}

	vectors, err := embedAll(ctx, embedder, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(ids) {
		return nil, fmt.Errorf("embedding backend returned %d vectors for %d concepts", len(vectors), len(ids))
	}
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("embedding backend returned empty vector for %q", ids[i])
		}
	}

	return &Index{IDs: ids, Vectors: vectors}, nil
}

// embedAll issues a single batched call for small inputs and chunked
// batched calls above embedBatchSize, reassembled in chunk order.
func embedAll(ctx context.Context, embedder Embedder, texts []string) ([][]float32, error) {
	if len(texts) <= embedBatchSize {
		return embedder.Embed(ctx, texts)
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(texts); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed chunk [%d:%d]: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed chunk [%d:%d]: got %d vectors", start, end, len(vecs))
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// QueryVector canonicalizes and embeds a single variable.
func QueryVector(ctx context.Context, embedder Embedder, v types.NormalizedVariable) ([]float32, error) {
	ctx = ctxutil.Default(ctx)
	if err := v.Validate(); err != nil {
		return nil, err
	}
	vectors, err := embedder.Embed(ctx, []string{CanonicalVariable(v)})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embedding backend returned %d vectors for single query", len(vectors))
	}
	return vectors[0], nil
}

// Save writes the snapshot as two aligned artifacts: a little-endian
// float32 matrix and a parallel JSON id array.
func (idx *Index) Save(dir string) error {
	if len(idx.IDs) != len(idx.Vectors) {
		return fmt.Errorf("index invariant violated: %d ids, %d vectors", len(idx.IDs), len(idx.Vectors))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir %s: %w", dir, err)
	}

	dim := 0
	if len(idx.Vectors) > 0 {
		dim = len(idx.Vectors[0])
	}

	buf := make([]byte, 8+len(idx.Vectors)*dim*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(idx.Vectors)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(dim))
	off := 8
	for i, vec := range idx.Vectors {
		if len(vec) != dim {
			return fmt.Errorf("row %d has dimension %d, expected %d", i, len(vec), dim)
		}
		for _, f := range vec {
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(f))
			off += 4
		}
	}
	if err := os.WriteFile(filepath.Join(dir, vectorsFilename), buf, 0o644); err != nil {
		return fmt.Errorf("write vectors file: %w", err)
	}

	idsRaw, err := json.Marshal(idx.IDs)
	if err != nil {
		return fmt.Errorf("marshal ids: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, idsFilename), idsRaw, 0o644); err != nil {
		return fmt.Errorf("write ids file: %w", err)
	}
	return nil
}

// LoadIndex reads a saved snapshot and re-validates the row/id alignment
// invariant before returning it.
func LoadIndex(dir string) (*Index, error) {
	buf, err := os.ReadFile(filepath.Join(dir, vectorsFilename))
	if err != nil {
		return nil, fmt.Errorf("read vectors file: %w", err)
	}
	if len(buf) < 8 {
		return nil, fmt.Errorf("vectors file truncated: %d bytes", len(buf))
	}
	rows := int(binary.LittleEndian.Uint32(buf[0:4]))
	dim := int(binary.LittleEndian.Uint32(buf[4:8]))
	want := 8 + rows*dim*4
	if len(buf) != want {
		return nil, fmt.Errorf("vectors file size mismatch: header says %d bytes, file has %d", want, len(buf))
	}

	vectors := make([][]float32, rows)
	off := 8
	for i := 0; i < rows; i++ {
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
		}
		vectors[i] = vec
	}

	idsRaw, err := os.ReadFile(filepath.Join(dir, idsFilename))
	if err != nil {
		return nil, fmt.Errorf("read ids file: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(idsRaw, &ids); err != nil {
		return nil, fmt.Errorf("invalid ids file: %w", err)
	}

	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("snapshot mismatch: %d ids for %d vector rows; delete the snapshot and rebuild", len(ids), len(vectors))
	}
	return &Index{IDs: ids, Vectors: vectors}, nil
}
