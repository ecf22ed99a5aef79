package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"scrappos/internal/dto"
	"scrappos/internal/ledger"
	"scrappos/internal/model"
	"scrappos/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const materialCacheTTL = 4 * time.Hour

type MaterialService interface {
	// Obtener resolves the priced catalog entry used by the ledger.
	Obtener(ctx context.Context, id string) (ledger.Material, error)
	Listar(ctx context.Context) ([]dto.MaterialResponse, error)
}

type materialService struct {
	repo  repository.MaterialRepository
	rdb   *redis.Client // nil disables the cache
	group singleflight.Group
}

func NewMaterialService(repo repository.MaterialRepository, rdb *redis.Client) MaterialService {
	return &materialService{repo: repo, rdb: rdb}
}

func (s *materialService) Obtener(ctx context.Context, id string) (ledger.Material, error) {
	materialID, err := uuid.Parse(id)
	if err != nil {
		return ledger.Material{}, fmt.Errorf("%w: %s", ErrMaterialNoEncontrado, id)
	}
	cacheKey := "material:" + id

	// 1. Redis
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
			var m ledger.Material
			if jsonErr := json.Unmarshal(cached, &m); jsonErr == nil {
				return m, nil
			}
		}
	}

	// 2. DB; concurrent misses for the same id share one query
	v, err, _ := s.group.Do(id, func() (interface{}, error) {
		row, err := s.repo.FindByID(ctx, materialID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrMaterialNoEncontrado, id)
			}
			return nil, fmt.Errorf("%w: material %s: %v", ErrPersistence, id, err)
		}
		m := materialToLedger(row)

		// 3. Populate cache, best effort
		if s.rdb != nil {
			if b, jsonErr := json.Marshal(m); jsonErr == nil {
				if err := s.rdb.Set(context.WithoutCancel(ctx), cacheKey, b, materialCacheTTL).Err(); err != nil {
					log.Debug().Err(err).Str("material_id", id).Msg("material_service: cache set failed")
				}
			}
		}
		return m, nil
	})
	if err != nil {
		return ledger.Material{}, err
	}
	return v.(ledger.Material), nil
}

func (s *materialService) Listar(ctx context.Context) ([]dto.MaterialResponse, error) {
	rows, err := s.repo.ListActivos(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	out := make([]dto.MaterialResponse, 0, len(rows))
	for _, m := range rows {
		out = append(out, dto.MaterialResponse{
			ID:           m.ID.String(),
			Codigo:       m.Codigo,
			Nombre:       m.Nombre,
			PrecioCompra: m.PrecioCompra,
			PrecioVenta:  m.PrecioVenta,
			UnidadMedida: m.UnidadMedida,
		})
	}
	return out, nil
}

func materialToLedger(m *model.Material) ledger.Material {
	return ledger.Material{
		ID:            m.ID.String(),
		Name:          m.Nombre,
		PurchasePrice: m.PrecioCompra.InexactFloat64(),
		SalePrice:     m.PrecioVenta.InexactFloat64(),
	}
}
