package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vitisalign/vitisalign-backend/internal/alignment"
	"github.com/vitisalign/vitisalign-backend/internal/logger"
	"github.com/vitisalign/vitisalign-backend/internal/types"
)

type AlignHandler struct {
	log      *logger.Logger
	pipeline *alignment.Pipeline
}

func NewAlignHandler(log *logger.Logger, pipeline *alignment.Pipeline) *AlignHandler {
	return &AlignHandler{
		log:      log.With("handler", "AlignHandler"),
		pipeline: pipeline,
	}
}

type alignRequest struct {
	Variable types.NormalizedVariable `json:"variable"`
	TopK     int                      `json:"top_k"`
}

// Align runs the full embed-rank-reason pipeline for one variable.
func (h *AlignHandler) Align(c *gin.Context) {
	var req alignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", fmt.Errorf("invalid align request: %w", err))
		return
	}
	if err := req.Variable.Validate(); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_variable", err)
		return
	}

	results, err := h.pipeline.AlignOne(c.Request.Context(), req.Variable, req.TopK)
	if err != nil {
		h.log.Error("Alignment failed",
			"dataset_id", req.Variable.DatasetID,
			"trait_id", req.Variable.TraitID,
			"error", err,
		)
		RespondError(c, http.StatusBadGateway, "alignment_failed", err)
		return
	}
	RespondOK(c, results)
}

// Candidates runs only the retrieval stage: ranked ids with raw cosine
// similarity, no reasoning call.
func (h *AlignHandler) Candidates(c *gin.Context) {
	var req alignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", fmt.Errorf("invalid candidates request: %w", err))
		return
	}
	if err := req.Variable.Validate(); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_variable", err)
		return
	}

	candidates, err := h.pipeline.Candidates(c.Request.Context(), req.Variable, req.TopK)
	if err != nil {
		h.log.Error("Candidate retrieval failed",
			"dataset_id", req.Variable.DatasetID,
			"trait_id", req.Variable.TraitID,
			"error", err,
		)
		RespondError(c, http.StatusBadGateway, "retrieval_failed", err)
		return
	}
	RespondOK(c, candidates)
}
