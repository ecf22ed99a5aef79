// cmd/seedmaterials/main.go: carga el catalogo de materiales de demo.
// Uso: go run ./cmd/seedmaterials
package main

import (
	"context"

	"scrappos/internal/config"
	"scrappos/internal/infra"
	"scrappos/internal/model"
	"scrappos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// demo prices per kg: compra, venta
var catalogo = []struct {
	codigo, nombre string
	compra, venta  string
}{
	{"CU-1", "Cobre brillante", "30.00", "38.00"},
	{"CU-2", "Cobre de segunda", "24.50", "31.00"},
	{"AL-1", "Aluminio perfil", "9.80", "13.20"},
	{"AL-2", "Aluminio lata", "6.40", "9.00"},
	{"BR-1", "Bronce", "18.00", "23.50"},
	{"FE-1", "Hierro", "0.90", "1.40"},
	{"CT-1", "Carton", "0.35", "0.60"},
	{"PET-1", "PET cristal", "1.10", "1.75"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	if err := infra.RunMigrations(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	repo := repository.NewMaterialRepository(db)
	ctx := context.Background()
	for _, m := range catalogo {
		row := &model.Material{
			// stable ids so terminals keep their cached references across reseeds
			ID:           uuid.NewSHA1(uuid.NameSpaceOID, []byte("scrappos/material/"+m.codigo)),
			Codigo:       m.codigo,
			Nombre:       m.nombre,
			PrecioCompra: decimal.RequireFromString(m.compra),
			PrecioVenta:  decimal.RequireFromString(m.venta),
			UnidadMedida: "kg",
			Activo:       true,
		}
		if err := repo.Upsert(ctx, row); err != nil {
			log.Fatal().Err(err).Str("codigo", m.codigo).Msg("seed failed")
		}
		log.Info().Str("codigo", m.codigo).Str("nombre", m.nombre).Msg("material cargado")
	}
}
