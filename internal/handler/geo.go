package handler

import (
	"net"
	"net/http"

	"scrappos/internal/apierror"
	"scrappos/internal/dto"
	"scrappos/internal/infra"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type GeoHandler struct{ client *infra.GeoIPClient }

func NewGeoHandler(client *infra.GeoIPClient) *GeoHandler { return &GeoHandler{client: client} }

// Lookup godoc
// @Summary  Region aproximada del visitante
// @Tags     geo
// @Produce  json
// @Param    ip query string false "IP a consultar (por defecto la del cliente)"
// @Success  200 {object} dto.GeoResponse
// @Failure  502 {object} apierror.APIError
// @Router   /v1/geo [get]
func (h *GeoHandler) Lookup(c *gin.Context) {
	ip := c.Query("ip")
	if ip == "" {
		ip = c.ClientIP()
	}
	if net.ParseIP(ip) == nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode(apierror.CodeValidation, "IP invalida"))
		return
	}
	info, err := h.client.Lookup(c.Request.Context(), ip)
	if err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("geo: lookup failed")
		c.JSON(http.StatusBadGateway, apierror.WithCode(apierror.CodeUpstream, "Servicio de geolocalizacion no disponible"))
		return
	}
	c.JSON(http.StatusOK, dto.GeoResponse{
		IP:          ip,
		Country:     info.Country,
		CountryCode: info.CountryCode,
		Region:      info.Region,
		City:        info.City,
	})
}
