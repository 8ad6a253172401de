package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/plotwise/plotwise-backend/internal/domain"
	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
)

type ZoneRepo interface {
	Create(ctx context.Context, tx *gorm.DB, zones []*domain.ZoningZone) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*domain.ZoningZone, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*domain.ZoningZone, error)
}

type zoneRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewZoneRepo(db *gorm.DB, baseLog *logger.Logger) ZoneRepo {
	return &zoneRepo{db: db, log: baseLog.With("repo", "ZoneRepo")}
}

func (zr *zoneRepo) Create(ctx context.Context, tx *gorm.DB, zones []*domain.ZoningZone) error {
	transaction := tx
	if transaction == nil {
		transaction = zr.db
	}
	if len(zones) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&zones).Error
}

func (zr *zoneRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*domain.ZoningZone, error) {
	transaction := tx
	if transaction == nil {
		transaction = zr.db
	}

	var result domain.ZoningZone
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (zr *zoneRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*domain.ZoningZone, error) {
	transaction := tx
	if transaction == nil {
		transaction = zr.db
	}

	var results []*domain.ZoningZone
	if err := transaction.WithContext(ctx).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
