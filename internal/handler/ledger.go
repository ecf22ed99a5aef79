package handler

import (
	"net/http"
	"strconv"

	"scrappos/internal/apierror"
	"scrappos/internal/dto"
	"scrappos/internal/service"

	"github.com/gin-gonic/gin"
)

type LedgerHandler struct{ svc service.LedgerService }

func NewLedgerHandler(svc service.LedgerService) *LedgerHandler { return &LedgerHandler{svc: svc} }

// Estado godoc
// @Summary  Estado del carrito del operador
// @Tags     ledger
// @Produce  json
// @Security BearerAuth
// @Success  200 {object} dto.LedgerResponse
// @Router   /v1/ledger [get]
func (h *LedgerHandler) Estado(c *gin.Context) {
	resp, err := h.svc.Estado(c.Request.Context(), operador(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SeleccionarCliente godoc
// @Summary  Selecciona o registra el cliente activo
// @Description Abre una orden para el cliente si no tiene una.
// @Tags     ledger
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    body body dto.SeleccionarClienteRequest true "Cliente"
// @Success  200 {object} dto.LedgerResponse
// @Failure  404 {object} apierror.APIError
// @Router   /v1/ledger/customer [post]
func (h *LedgerHandler) SeleccionarCliente(c *gin.Context) {
	var req dto.SeleccionarClienteRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.SeleccionarCliente(c.Request.Context(), operador(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LedgerHandler) DeseleccionarCliente(c *gin.Context) {
	resp, err := h.svc.DeseleccionarCliente(c.Request.Context(), operador(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CambiarModo godoc
// @Summary  Cambia entre compra y venta
// @Tags     ledger
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    body body dto.ModoRequest true "Modo"
// @Success  200 {object} dto.LedgerResponse
// @Router   /v1/ledger/mode [post]
func (h *LedgerHandler) CambiarModo(c *gin.Context) {
	var req dto.ModoRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CambiarModo(c.Request.Context(), operador(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// IniciarOrden godoc
// @Summary  Abre una orden para el cliente activo
// @Tags     ledger
// @Produce  json
// @Security BearerAuth
// @Success  201 {object} dto.OrdenResponse
// @Failure  409 {object} apierror.APIError
// @Router   /v1/ledger/orders [post]
func (h *LedgerHandler) IniciarOrden(c *gin.Context) {
	resp, err := h.svc.IniciarOrden(c.Request.Context(), operador(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// AgregarItem godoc
// @Summary  Agrega un item pesado a la orden activa
// @Tags     ledger
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    body body dto.AgregarItemRequest true "Item"
// @Success  201 {object} dto.OrdenResponse
// @Failure  409 {object} apierror.APIError
// @Failure  503 {object} apierror.APIError
// @Router   /v1/ledger/items [post]
func (h *LedgerHandler) AgregarItem(c *gin.Context) {
	var req dto.AgregarItemRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.AgregarItem(c.Request.Context(), operador(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// QuitarItem godoc
// @Summary  Quita un item de la orden activa
// @Tags     ledger
// @Produce  json
// @Security BearerAuth
// @Param    index path int true "Posicion del item"
// @Success  200 {object} dto.OrdenResponse
// @Router   /v1/ledger/items/{index} [delete]
func (h *LedgerHandler) QuitarItem(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode(apierror.CodeValidation, "Indice invalido"))
		return
	}
	resp, err := h.svc.QuitarItem(c.Request.Context(), operador(c), index)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Recargar discards the in-memory ledger and reloads it from the database.
func (h *LedgerHandler) Recargar(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.svc.Recargar(ctx, operador(c)); err != nil {
		respondError(c, err)
		return
	}
	resp, err := h.svc.Estado(ctx, operador(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
