package handler

import (
	"net/http"

	"scrappos/internal/service"

	"github.com/gin-gonic/gin"
)

type MaterialesHandler struct{ svc service.MaterialService }

func NewMaterialesHandler(svc service.MaterialService) *MaterialesHandler {
	return &MaterialesHandler{svc: svc}
}

// Listar godoc
// @Summary  Catalogo de materiales activos
// @Tags     materiales
// @Produce  json
// @Security BearerAuth
// @Success  200 {array} dto.MaterialResponse
// @Router   /v1/materiales [get]
func (h *MaterialesHandler) Listar(c *gin.Context) {
	resp, err := h.svc.Listar(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
