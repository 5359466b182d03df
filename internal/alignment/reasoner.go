package alignment

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vitisalign/vitisalign-backend/internal/logger"
	"github.com/vitisalign/vitisalign-backend/internal/pkg/ctxutil"
	"github.com/vitisalign/vitisalign-backend/internal/types"
)

const systemRubric = `You are a strict data-alignment system.

TASK
- For a given normalized variable and reference concepts, evaluate the semantic and contextual match.
- Score is a float between 0 and 1 (0=no match, 1=perfect match)
- Composite score combining:
  - Semantic match (concept similarity)
  - Contextual match (unit, method, description)
- Output rules:
  - Maximum 3 items, highest score first
  - Each object MUST contain:
    - ref_id (string): the id of one of the offered reference concepts
    - score (float 0-1)
    - rationale (string explaining semantic & contextual reasoning)
- Never return a ref_id that is not in the offered reference concepts`

const maxResults = 3

// ReasonerErrorKind tags the failure modes of one reasoning attempt so
// retry logic and callers can branch on kind.
type ReasonerErrorKind string

const (
	// ReasonerErrorBackend covers transport and model-side failures.
	ReasonerErrorBackend ReasonerErrorKind = "backend"
	// ReasonerErrorParse covers structurally invalid model output.
	ReasonerErrorParse ReasonerErrorKind = "parse"
	// ReasonerErrorValidation covers well-formed output violating the
	// contract: foreign ref_id, out-of-range score, too many items.
	ReasonerErrorValidation ReasonerErrorKind = "validation"
)

type ReasonerError struct {
	Kind  ReasonerErrorKind
	Cause error
}

func (e *ReasonerError) Error() string {
	if e == nil {
		return "reasoner error"
	}
	return fmt.Sprintf("reasoner %s error: %v", e.Kind, e.Cause)
}

func (e *ReasonerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Generator is the slice of the model client the reasoner needs.
type Generator interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

// Reasoner submits a variable plus its retrieval candidates to the
// reasoning model and validates the structured response. Attempts are
// strictly sequential; a malformed response or a timeout burns one
// attempt and the call fails terminally once attempts are exhausted.
type Reasoner struct {
	log *logger.Logger
	gen Generator

	maxAttempts    int
	backoff        time.Duration
	attemptTimeout time.Duration
}

func NewReasoner(log *logger.Logger, gen Generator) (*Reasoner, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if gen == nil {
		return nil, fmt.Errorf("generator required")
	}
	return &Reasoner{
		log:            log.With("service", "AlignmentReasoner"),
		gen:            gen,
		maxAttempts:    3,
		backoff:        500 * time.Millisecond,
		attemptTimeout: 60 * time.Second,
	}, nil
}

func resultsSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"results"},
		"properties": map[string]any{
			"results": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"ref_id", "score", "rationale"},
					"properties": map[string]any{
						"ref_id":    map[string]any{"type": "string"},
						"score":     map[string]any{"type": "number", "minimum": 0, "maximum": 1},
						"rationale": map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

func buildPrompt(variable types.NormalizedVariable, candidates []types.ReferenceConcept) (string, error) {
	variableJSON, err := json.MarshalIndent(variable, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal variable: %w", err)
	}
	candidatesJSON, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidates: %w", err)
	}
	return fmt.Sprintf("Here is the variable to categorize:\n\n%s\n\nReference concepts:\n\n%s\n", variableJSON, candidatesJSON), nil
}

// Align ranks the offered candidates for one variable. The result list
// holds at most 3 entries, descending by score, and every ref_id is
// guaranteed to come from the offered candidate set. All-or-nothing: a
// terminal failure returns no partial results.
func (r *Reasoner) Align(ctx context.Context, variable types.NormalizedVariable, candidates []types.ReferenceConcept) ([]types.AlignmentResult, error) {
	ctx = ctxutil.Default(ctx)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidates offered to reasoner")
	}

	prompt, err := buildPrompt(variable, candidates)
	if err != nil {
		return nil, err
	}

	offered := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		offered[c.IndexID()] = true
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt > 1 {
			time.Sleep(r.backoff)
		}

		results, attemptErr := r.alignOnce(ctx, prompt, offered)
		if attemptErr == nil {
			return results, nil
		}
		lastErr = attemptErr

		r.log.Warn("Alignment attempt failed",
			"attempt", attempt,
			"max_attempts", r.maxAttempts,
			"dataset_id", variable.DatasetID,
			"trait_id", variable.TraitID,
			"error", attemptErr.Error(),
		)
	}

	return nil, fmt.Errorf("alignment failed after %d attempts: %w", r.maxAttempts, lastErr)
}

func (r *Reasoner) alignOnce(ctx context.Context, prompt string, offered map[string]bool) ([]types.AlignmentResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()

	obj, err := r.gen.GenerateJSON(attemptCtx, systemRubric, prompt, "alignment_results", resultsSchema())
	if err != nil {
		return nil, &ReasonerError{Kind: ReasonerErrorBackend, Cause: err}
	}

	rawResults, ok := obj["results"]
	if !ok {
		return nil, &ReasonerError{Kind: ReasonerErrorParse, Cause: fmt.Errorf("response missing results field")}
	}

	// Round-trip through json to decode the loosely typed payload.
	encoded, err := json.Marshal(rawResults)
	if err != nil {
		return nil, &ReasonerError{Kind: ReasonerErrorParse, Cause: err}
	}
	var results []types.AlignmentResult
	if err := json.Unmarshal(encoded, &results); err != nil {
		return nil, &ReasonerError{Kind: ReasonerErrorParse, Cause: fmt.Errorf("results field is not an alignment array: %w", err)}
	}

	if len(results) > maxResults {
		return nil, &ReasonerError{Kind: ReasonerErrorValidation, Cause: fmt.Errorf("model returned %d results, maximum is %d", len(results), maxResults)}
	}
	for i, res := range results {
		id := strings.TrimSpace(res.RefID)
		if !offered[id] {
			return nil, &ReasonerError{Kind: ReasonerErrorValidation, Cause: fmt.Errorf("result %d references %q, which was not among the offered candidates", i, res.RefID)}
		}
		if res.Score < 0 || res.Score > 1 {
			return nil, &ReasonerError{Kind: ReasonerErrorValidation, Cause: fmt.Errorf("result %d (%s) has score %v outside [0,1]", i, id, res.Score)}
		}
		results[i].RefID = id
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	return results, nil
}
