package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/vitisalign/vitisalign-backend/internal/referential"
)

type ReferentialHandler struct {
	store *referential.Store
}

func NewReferentialHandler(store *referential.Store) *ReferentialHandler {
	return &ReferentialHandler{store: store}
}

// GetReferential returns the read-only concept snapshot.
func (h *ReferentialHandler) GetReferential(c *gin.Context) {
	items := h.store.Concepts()
	RespondOK(c, gin.H{
		"count": len(items),
		"items": items,
	})
}
