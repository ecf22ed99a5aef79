package repository

import (
	"context"

	"scrappos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrdenRepository interface {
	CreateCliente(ctx context.Context, c *model.Cliente) error
	// FindCliente loads the customer with every order and its items.
	FindCliente(ctx context.Context, id uuid.UUID) (*model.Cliente, error)
	// ListClientesConOrdenesAbiertas returns the operator's customers that have
	// at least one open order, preloaded like FindCliente.
	ListClientesConOrdenesAbiertas(ctx context.Context, operadorID string) ([]model.Cliente, error)

	CreateOrden(ctx context.Context, o *model.Orden) error
	// UpdateOrden rewrites the order row and replaces its items atomically.
	UpdateOrden(ctx context.Context, o *model.Orden) error
	FindOrdenByID(ctx context.Context, id uuid.UUID) (*model.Orden, error)
	ListOrdenesByCliente(ctx context.Context, clienteID uuid.UUID) ([]model.Orden, error)
}

type ordenRepo struct{ db *gorm.DB }

func NewOrdenRepository(db *gorm.DB) OrdenRepository { return &ordenRepo{db: db} }

func (r *ordenRepo) CreateCliente(ctx context.Context, c *model.Cliente) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *ordenRepo) FindCliente(ctx context.Context, id uuid.UUID) (*model.Cliente, error) {
	var c model.Cliente
	err := r.db.WithContext(ctx).
		Preload("Ordenes", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Ordenes.Items", func(db *gorm.DB) *gorm.DB { return db.Order("posicion ASC") }).
		First(&c, id).Error
	return &c, err
}

func (r *ordenRepo) ListClientesConOrdenesAbiertas(ctx context.Context, operadorID string) ([]model.Cliente, error) {
	var cs []model.Cliente
	err := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.Model(&model.Orden{}).
			Select("cliente_id").
			Where("operador_id = ? AND estado = 'open'", operadorID)).
		Preload("Ordenes", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Ordenes.Items", func(db *gorm.DB) *gorm.DB { return db.Order("posicion ASC") }).
		Order("created_at ASC").
		Find(&cs).Error
	return cs, err
}

func (r *ordenRepo) CreateOrden(ctx context.Context, o *model.Orden) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *ordenRepo) UpdateOrden(ctx context.Context, o *model.Orden) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Save(o).Error; err != nil {
			return err
		}
		if err := tx.Where("orden_id = ?", o.ID).Delete(&model.OrdenItem{}).Error; err != nil {
			return err
		}
		if len(o.Items) == 0 {
			return nil
		}
		for i := range o.Items {
			o.Items[i].OrdenID = o.ID
		}
		return tx.Create(&o.Items).Error
	})
}

func (r *ordenRepo) FindOrdenByID(ctx context.Context, id uuid.UUID) (*model.Orden, error) {
	var o model.Orden
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("posicion ASC") }).
		First(&o, id).Error
	return &o, err
}

func (r *ordenRepo) ListOrdenesByCliente(ctx context.Context, clienteID uuid.UUID) ([]model.Orden, error) {
	var os []model.Orden
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("posicion ASC") }).
		Where("cliente_id = ?", clienteID).
		Order("created_at ASC").
		Find(&os).Error
	return os, err
}
