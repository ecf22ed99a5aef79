package service

import "errors"

var (
	// ErrPersistence wraps any repository failure. In-memory ledger state may
	// already be ahead of the database; a reload reconciles it.
	ErrPersistence = errors.New("persistence failure")

	ErrMaterialNoEncontrado    = errors.New("material no encontrado")
	ErrClienteNoEncontrado     = errors.New("cliente no encontrado")
	ErrCajaYaAbierta           = errors.New("ya existe una caja abierta para este operador")
	ErrSesionNoEncontrada      = errors.New("sesión de caja no encontrada")
	ErrLiquidacionNoEncontrada = errors.New("liquidación no encontrada")
	ErrOrdenNoCompletada       = errors.New("la orden no está completada")
	ErrPagoDeOtraOrden         = errors.New("el payment_id pertenece a otra orden")
)
