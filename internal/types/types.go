package types

import (
	"fmt"
	"strings"
)

// ReferenceConcept is one controlled-vocabulary entry of the trait
// referential. Concepts are loaded once at startup and never mutated.
type ReferenceConcept struct {
	RefID       string   `json:"ref_id"`
	Name        string   `json:"name"`
	Units       []string `json:"units"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases"`
}

// IndexID returns the stable id used for the embedding index row:
// ref_id when present, otherwise the concept name.
func (c ReferenceConcept) IndexID() string {
	if id := strings.TrimSpace(c.RefID); id != "" {
		return id
	}
	return strings.TrimSpace(c.Name)
}

// NormalizedVariable is an incoming trait description from some dataset,
// to be aligned against the referential.
type NormalizedVariable struct {
	DatasetID   string `json:"dataset_id"`
	TraitID     string `json:"trait_id"`
	Trait       string `json:"trait"`
	Method      string `json:"method"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
	Aliases     string `json:"aliases"`
}

// Validate rejects variables that cannot produce a meaningful embedding
// text, before any network call is made.
func (v NormalizedVariable) Validate() error {
	if strings.TrimSpace(v.Trait) == "" && strings.TrimSpace(v.TraitID) == "" {
		return fmt.Errorf("normalized variable requires a non-empty trait or trait_id")
	}
	return nil
}

// AlignmentCandidate is a retrieval-stage match: a referential id with
// its raw cosine similarity against the query variable.
type AlignmentCandidate struct {
	RefID           string  `json:"ref_id"`
	SimilarityScore float64 `json:"similarity_score"`
}

// AlignmentResult is a reasoning-stage match: a referential id with a
// composite confidence score in [0,1] and the model's rationale.
type AlignmentResult struct {
	RefID     string  `json:"ref_id"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}
