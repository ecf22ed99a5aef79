package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"scrappos/internal/apierror"
	"scrappos/internal/dto"
	"scrappos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const webhookSecretHeader = "X-Webhook-Secret"

type CheckoutHandler struct {
	svc           service.CheckoutService
	webhookSecret string
}

// NewCheckoutHandler builds the handler. An empty webhookSecret accepts
// unauthenticated gateway notifications.
func NewCheckoutHandler(svc service.CheckoutService, webhookSecret string) *CheckoutHandler {
	return &CheckoutHandler{svc: svc, webhookSecret: webhookSecret}
}

// Checkout godoc
// @Summary      Cobra o paga una orden
// @Description  Efectivo completa la orden en el acto (200). Un pago externo queda pendiente (202) mientras se sondea la pasarela.
// @Tags         checkout
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CheckoutRequest true "Pago"
// @Success      200 {object} dto.CheckoutResponse
// @Success      202 {object} dto.CheckoutResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/checkout [post]
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	var req dto.CheckoutRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Checkout(c.Request.Context(), operador(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if resp.Estado != "completed" {
		status = http.StatusAccepted
	}
	c.JSON(status, resp)
}

// Estado godoc
// @Summary  Estado de una liquidacion externa
// @Tags     checkout
// @Produce  json
// @Security BearerAuth
// @Param    payment_id path string true "ID del pago"
// @Success  200 {object} dto.LiquidacionResponse
// @Failure  404 {object} apierror.APIError
// @Router   /v1/checkout/{payment_id} [get]
func (h *CheckoutHandler) Estado(c *gin.Context) {
	resp, err := h.svc.Estado(c.Request.Context(), c.Param("payment_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Cancelar godoc
// @Summary  Deja de esperar un pago externo
// @Description  El pago no se anula; la liquidacion queda indefinida y la revisa el cron.
// @Tags     checkout
// @Security BearerAuth
// @Param    payment_id path string true "ID del pago"
// @Success  204
// @Failure  404 {object} apierror.APIError
// @Router   /v1/checkout/{payment_id} [delete]
func (h *CheckoutHandler) Cancelar(c *gin.Context) {
	if err := h.svc.Cancelar(c.Request.Context(), c.Param("payment_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Webhook godoc
// @Summary  Notificacion asincronica de la pasarela de pagos
// @Tags     webhooks
// @Accept   json
// @Param    body body dto.WebhookPagoRequest true "Estado del pago"
// @Success  204
// @Failure  401 {object} apierror.APIError
// @Failure  404 {object} apierror.APIError
// @Router   /v1/webhooks/payment [post]
func (h *CheckoutHandler) Webhook(c *gin.Context) {
	if h.webhookSecret != "" {
		got := c.GetHeader(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			log.Warn().Str("ip", c.ClientIP()).Msg("webhook: invalid secret")
			c.JSON(http.StatusUnauthorized, apierror.WithCode(apierror.CodeUnauthorized, "Firma invalida"))
			return
		}
	}

	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode(apierror.CodeValidation, "Cuerpo ilegible"))
		return
	}
	var req dto.WebhookPagoRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode(apierror.CodeValidation, "JSON invalido: "+err.Error()))
		return
	}
	if !validateStruct(c, &req) {
		return
	}
	if err := h.svc.Webhook(c.Request.Context(), req, raw); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Imprimir godoc
// @Summary  Reimprime el ticket de una orden completada
// @Tags     ordenes
// @Produce  json
// @Security BearerAuth
// @Param    id path string true "ID de la orden"
// @Success  202 {object} dto.IntentResponse
// @Failure  409 {object} apierror.APIError
// @Router   /v1/orders/{id}/print [post]
func (h *CheckoutHandler) Imprimir(c *gin.Context) {
	id, ok := ordenID(c)
	if !ok {
		return
	}
	resp, err := h.svc.Imprimir(c.Request.Context(), operador(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// Guardar godoc
// @Summary  Guarda una orden completada
// @Description  Solo el primer intento escribe; los siguientes devuelven su resultado.
// @Tags     ordenes
// @Produce  json
// @Security BearerAuth
// @Param    id path string true "ID de la orden"
// @Success  200 {object} dto.IntentResponse
// @Router   /v1/orders/{id}/persist [post]
func (h *CheckoutHandler) Guardar(c *gin.Context) {
	id, ok := ordenID(c)
	if !ok {
		return
	}
	resp, err := h.svc.Guardar(c.Request.Context(), operador(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func ordenID(c *gin.Context) (string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode(apierror.CodeValidation, "ID invalido"))
		return "", false
	}
	return id.String(), true
}
