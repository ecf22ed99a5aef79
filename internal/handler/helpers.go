package handler

import (
	"errors"
	"net/http"
	"reflect"

	"scrappos/internal/apierror"
	"scrappos/internal/checkout"
	"scrappos/internal/ledger"
	"scrappos/internal/middleware"
	"scrappos/internal/register"
	"scrappos/internal/service"
	"scrappos/internal/settlement"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode(apierror.CodeValidation, "JSON invalido: "+err.Error()))
		return false
	}
	return validateStruct(c, req)
}

func validateStruct(c *gin.Context, req interface{}) bool {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, apierror.WithCode(apierror.CodeValidation, err.Error()))
			return false
		}
		fields := make(map[string]string)
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// operador returns the authenticated operator. JWTAuth guarantees it is set.
func operador(c *gin.Context) string {
	return middleware.GetClaims(c).OperadorID()
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorTable maps domain errors to responses; the first match wins.
var errorTable = []errorMapping{
	{ledger.ErrNoActiveCustomer, http.StatusConflict, apierror.CodePrecondition},
	{ledger.ErrNoActiveOrder, http.StatusConflict, apierror.CodePrecondition},
	{ledger.ErrOrderTypeMismatch, http.StatusConflict, apierror.CodePrecondition},
	{ledger.ErrOrderCompleted, http.StatusConflict, apierror.CodePrecondition},
	{checkout.ErrEmptyOrder, http.StatusConflict, apierror.CodePrecondition},
	{ledger.ErrInvalidMode, http.StatusBadRequest, apierror.CodeValidation},
	{ledger.ErrIndexOutOfRange, http.StatusBadRequest, apierror.CodeValidation},
	{checkout.ErrUnknownMethod, http.StatusBadRequest, apierror.CodeValidation},
	{ledger.ErrOrderNotFound, http.StatusNotFound, apierror.CodeNotFound},
	{service.ErrMaterialNoEncontrado, http.StatusNotFound, apierror.CodeNotFound},
	{service.ErrClienteNoEncontrado, http.StatusNotFound, apierror.CodeNotFound},
	{service.ErrSesionNoEncontrada, http.StatusNotFound, apierror.CodeNotFound},
	{service.ErrLiquidacionNoEncontrada, http.StatusNotFound, apierror.CodeNotFound},
	{register.ErrNoActiveRegister, http.StatusConflict, apierror.CodeRegisterClosed},
	{register.ErrRegisterClosed, http.StatusConflict, apierror.CodeRegisterClosed},
	{service.ErrCajaYaAbierta, http.StatusConflict, apierror.CodeConflict},
	{service.ErrPagoDeOtraOrden, http.StatusConflict, apierror.CodeConflict},
	{checkout.ErrNotSettled, http.StatusConflict, apierror.CodeNotSettled},
	{service.ErrOrdenNoCompletada, http.StatusConflict, apierror.CodeNotSettled},
	{settlement.ErrTransientSettlement, http.StatusBadGateway, apierror.CodeUpstream},
}

// respondError writes the envelope for err. Persistence and unknown errors are
// logged and answered without their details.
func respondError(c *gin.Context, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			c.JSON(m.status, apierror.WithCode(m.code, err.Error()))
			return
		}
	}
	if errors.Is(err, service.ErrPersistence) {
		log.Error().Err(err).Str("request_id", c.GetString(middleware.RequestIDKey)).Msg("persistence failure")
		c.JSON(http.StatusServiceUnavailable, apierror.WithCode(apierror.CodeInternal, "No se pudo guardar, intente nuevamente"))
		return
	}
	_ = c.Error(err)
}
