package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/plotwise/plotwise-backend/internal/domain"
	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
)

// ParcelRepo is the relational side of the parcel corpus: full cadastral
// detail for reveals and teaser assembly. Retrieval itself never touches it;
// only the disclosure path does.
type ParcelRepo interface {
	Create(ctx context.Context, tx *gorm.DB, parcels []*domain.Parcel) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*domain.Parcel, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*domain.Parcel, error)
	ListByGeneration(ctx context.Context, tx *gorm.DB, generation string) ([]*domain.Parcel, error)
	CountByGeneration(ctx context.Context, tx *gorm.DB, generation string) (int64, error)
}

type parcelRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewParcelRepo(db *gorm.DB, baseLog *logger.Logger) ParcelRepo {
	return &parcelRepo{db: db, log: baseLog.With("repo", "ParcelRepo")}
}

func (pr *parcelRepo) Create(ctx context.Context, tx *gorm.DB, parcels []*domain.Parcel) error {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	if len(parcels) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&parcels).Error
}

func (pr *parcelRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*domain.Parcel, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	var result domain.Parcel
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

func (pr *parcelRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*domain.Parcel, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	var results []*domain.Parcel
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (pr *parcelRepo) ListByGeneration(ctx context.Context, tx *gorm.DB, generation string) ([]*domain.Parcel, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	var results []*domain.Parcel
	if err := transaction.WithContext(ctx).
		Where("generation = ?", generation).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (pr *parcelRepo) CountByGeneration(ctx context.Context, tx *gorm.DB, generation string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&domain.Parcel{}).
		Where("generation = ?", generation).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
