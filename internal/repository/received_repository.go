package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/sendables/internal/model"
)

// ReceivedQuery scopes inbox listings. SendableIDs only applies when Scoped
// is set, so "no restriction" and "restricted to nothing" stay distinct.
type ReceivedQuery struct {
	EntityType  string
	RecipientID uint
	IsRead      *bool
	Scoped      bool
	SendableIDs []uint
}

type ReceivedRepository interface {
	BulkCreate(ctx context.Context, refs []model.ReceivedSendable) error
	Owned(ctx context.Context, entityType string, recipientID uint, ids []uint) ([]model.ReceivedSendable, error)
	OwnedOne(ctx context.Context, entityType string, recipientID, id uint) (*model.ReceivedSendable, error)
	List(ctx context.Context, q ReceivedQuery) ([]model.ReceivedSendable, error)
	SetRead(ctx context.Context, ids []uint, isRead bool) error
	Delete(ctx context.Context, ids []uint) error
	ReferencedSendableIDs(ctx context.Context, entityType string) ([]uint, error)
	UnreadCount(ctx context.Context, entityType string, recipientID uint) (int64, error)
}

type receivedRepository struct{ db *gorm.DB }

// NewReceivedRepository wraps db, which may be a transaction handle.
func NewReceivedRepository(db *gorm.DB) ReceivedRepository { return &receivedRepository{db: db} }

func (r *receivedRepository) BulkCreate(ctx context.Context, refs []model.ReceivedSendable) error {
	if len(refs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&refs).Error
}

func (r *receivedRepository) Owned(ctx context.Context, entityType string, recipientID uint, ids []uint) ([]model.ReceivedSendable, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var refs []model.ReceivedSendable
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND recipient_id = ? AND id IN ?", entityType, recipientID, ids).
		Find(&refs).Error
	return refs, err
}

func (r *receivedRepository) OwnedOne(ctx context.Context, entityType string, recipientID, id uint) (*model.ReceivedSendable, error) {
	var ref model.ReceivedSendable
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND recipient_id = ? AND id = ?", entityType, recipientID, id).
		First(&ref).Error
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *receivedRepository) List(ctx context.Context, q ReceivedQuery) ([]model.ReceivedSendable, error) {
	query := r.db.WithContext(ctx).
		Where("entity_type = ? AND recipient_id = ?", q.EntityType, q.RecipientID)
	if q.IsRead != nil {
		query = query.Where("is_read = ?", *q.IsRead)
	}
	if q.Scoped {
		if len(q.SendableIDs) == 0 {
			return nil, nil
		}
		query = query.Where("sendable_id IN ?", q.SendableIDs)
	}
	var refs []model.ReceivedSendable
	err := query.Find(&refs).Error
	return refs, err
}

func (r *receivedRepository) SetRead(ctx context.Context, ids []uint, isRead bool) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.ReceivedSendable{}).
		Where("id IN ?", ids).
		Update("is_read", isRead).Error
}

func (r *receivedRepository) Delete(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Delete(&model.ReceivedSendable{}, ids).Error
}

// ReferencedSendableIDs returns the distinct content ids any inbox copy of
// the entity type still points at, system-wide.
func (r *receivedRepository) ReferencedSendableIDs(ctx context.Context, entityType string) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&model.ReceivedSendable{}).
		Where("entity_type = ?", entityType).
		Distinct().
		Pluck("sendable_id", &ids).Error
	return ids, err
}

func (r *receivedRepository) UnreadCount(ctx context.Context, entityType string, recipientID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ReceivedSendable{}).
		Where("entity_type = ? AND recipient_id = ? AND is_read = ?", entityType, recipientID, false).
		Count(&count).Error
	return count, err
}
