package handlers

import (
	"github.com/gin-gonic/gin"

	"tablequery/internal/core/apperror"
	"tablequery/internal/metadata"
)

type MetadataHandler struct {
	*BaseHandler
	registry *metadata.Registry
}

func NewMetadataHandler(base *BaseHandler, registry *metadata.Registry) *MetadataHandler {
	return &MetadataHandler{
		BaseHandler: base,
		registry:    registry,
	}
}

// ListTables returns every registered table definition.
// GET /api/v1/tables
func (h *MetadataHandler) ListTables(c *gin.Context) {
	h.OK(c, h.registry.List())
}

// GetTable returns the definition of one table.
// GET /api/v1/tables/:table/schema
func (h *MetadataHandler) GetTable(c *gin.Context) {
	name := c.Param("table")
	def, ok := h.registry.Get(name)
	if !ok {
		h.Error(c, apperror.NewNotFound("table", name))
		return
	}
	h.OK(c, def)
}
