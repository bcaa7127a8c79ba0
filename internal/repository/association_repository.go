package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/sendables/internal/model"
)

type AssociationRepository interface {
	BulkCreate(ctx context.Context, assocs []model.RecipientSendableAssociation) error
	ForSendables(ctx context.Context, entityType string, sendableIDs []uint) ([]model.RecipientSendableAssociation, error)
	SendableIDsForRecipients(ctx context.Context, entityType string, recipientIDs []uint, scoped bool) ([]uint, error)
	DeleteForSendables(ctx context.Context, entityType string, sendableIDs []uint) error
}

type associationRepository struct{ db *gorm.DB }

// NewAssociationRepository wraps db, which may be a transaction handle.
func NewAssociationRepository(db *gorm.DB) AssociationRepository {
	return &associationRepository{db: db}
}

func (r *associationRepository) BulkCreate(ctx context.Context, assocs []model.RecipientSendableAssociation) error {
	if len(assocs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&assocs).Error
}

func (r *associationRepository) ForSendables(ctx context.Context, entityType string, sendableIDs []uint) ([]model.RecipientSendableAssociation, error) {
	if len(sendableIDs) == 0 {
		return nil, nil
	}
	var assocs []model.RecipientSendableAssociation
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND sendable_id IN ?", entityType, sendableIDs).
		Find(&assocs).Error
	return assocs, err
}

// SendableIDsForRecipients returns the distinct content ids delivered to the
// given recipients; unscoped it covers every association of the entity type.
func (r *associationRepository) SendableIDsForRecipients(ctx context.Context, entityType string, recipientIDs []uint, scoped bool) ([]uint, error) {
	query := r.db.WithContext(ctx).Model(&model.RecipientSendableAssociation{}).
		Where("entity_type = ?", entityType)
	if scoped {
		if len(recipientIDs) == 0 {
			return nil, nil
		}
		query = query.Where("recipient_id IN ?", recipientIDs)
	}
	var ids []uint
	err := query.Distinct().Pluck("sendable_id", &ids).Error
	return ids, err
}

func (r *associationRepository) DeleteForSendables(ctx context.Context, entityType string, sendableIDs []uint) error {
	if len(sendableIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("entity_type = ? AND sendable_id IN ?", entityType, sendableIDs).
		Delete(&model.RecipientSendableAssociation{}).Error
}
