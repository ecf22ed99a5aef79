package repository

import (
	"context"

	"scrappos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MaterialRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Material, error)
	ListActivos(ctx context.Context) ([]model.Material, error)
	// Upsert inserts or updates by Codigo.
	Upsert(ctx context.Context, m *model.Material) error
}

type materialRepo struct{ db *gorm.DB }

func NewMaterialRepository(db *gorm.DB) MaterialRepository { return &materialRepo{db: db} }

func (r *materialRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Material, error) {
	var m model.Material
	err := r.db.WithContext(ctx).Where("id = ? AND activo = true", id).First(&m).Error
	return &m, err
}

func (r *materialRepo) ListActivos(ctx context.Context) ([]model.Material, error) {
	var ms []model.Material
	err := r.db.WithContext(ctx).Where("activo = true").Order("nombre ASC").Find(&ms).Error
	return ms, err
}

func (r *materialRepo) Upsert(ctx context.Context, m *model.Material) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "codigo"}},
		DoUpdates: clause.AssignmentColumns([]string{"nombre", "precio_compra", "precio_venta", "unidad_medida", "activo", "updated_at"}),
	}).Create(m).Error
}
