package utils

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

/* DB fetching */

// fetch model by id inside db (a transaction or the global handle)
// (business_id is used in query's WHERE, may return RecordNotFound)
func FetchModel[T any](db *gorm.DB, ctx context.Context, businessId string, id int) (*T, error) {
	var result T
	err := db.WithContext(ctx).Where("business_id = ?", businessId).First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// same as FetchModel, but takes a row lock held until tx ends
// (SELECT ... FOR UPDATE; dialects without row locks ignore the clause)
func FetchModelForUpdate[T any](tx *gorm.DB, ctx context.Context, businessId string, id int) (*T, error) {
	return FetchModel[T](tx.Clauses(clause.Locking{Strength: "UPDATE"}), ctx, businessId, id)
}
