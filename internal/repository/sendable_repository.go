package repository

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/sendables/internal/filter"
	"github.com/d60-Lab/sendables/internal/model"
	"github.com/d60-Lab/sendables/pkg/logger"
)

// SendableRepository accesses content records. The concrete table is only
// known through the entity catalog, so reads go through the neutral
// SendableRow shape.
type SendableRepository interface {
	Create(ctx context.Context, s model.Sendable) error
	Find(ctx context.Context, table string, hasSender bool, ids []uint) ([]model.SendableRow, error)
	OwnedBySender(ctx context.Context, table string, senderID uint, ids []uint, excludeRemoved bool) ([]model.SendableRow, error)
	FilteredIDs(ctx context.Context, table string, pred *filter.Predicate, senderID *uint, excludeRemoved bool) ([]uint, error)
	RemovedIn(ctx context.Context, table string, ids []uint) ([]uint, error)
	MarkRemoved(ctx context.Context, table string, ids []uint) error
	Delete(ctx context.Context, table string, ids []uint) error
}

type sendableRepository struct{ db *gorm.DB }

// NewSendableRepository wraps db, which may be a transaction handle.
func NewSendableRepository(db *gorm.DB) SendableRepository { return &sendableRepository{db: db} }

func selectColumns(hasSender bool) []string {
	cols := []string{"id", "content", "is_removed", "sent_on"}
	if hasSender {
		cols = append(cols, "sender_id")
	}
	return cols
}

func (r *sendableRepository) Create(ctx context.Context, s model.Sendable) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sendableRepository) Find(ctx context.Context, table string, hasSender bool, ids []uint) ([]model.SendableRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []model.SendableRow
	err := r.db.WithContext(ctx).Table(table).
		Select(selectColumns(hasSender)).
		Where("id IN ?", ids).
		Scan(&rows).Error
	return rows, err
}

func (r *sendableRepository) OwnedBySender(ctx context.Context, table string, senderID uint, ids []uint, excludeRemoved bool) ([]model.SendableRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := r.db.WithContext(ctx).Table(table).
		Select(selectColumns(true)).
		Where("id IN ? AND sender_id = ?", ids, senderID)
	if excludeRemoved {
		q = q.Where("is_removed = ?", false)
	}
	var rows []model.SendableRow
	err := q.Scan(&rows).Error
	return rows, err
}

// FilteredIDs applies a compiled filter to the content table and returns the
// matching ids. A predicate incompatible with the concrete schema yields an
// empty result, never an error.
func (r *sendableRepository) FilteredIDs(ctx context.Context, table string, pred *filter.Predicate, senderID *uint, excludeRemoved bool) ([]uint, error) {
	if pred != nil && pred.Poisoned() {
		return nil, nil
	}
	q := r.db.WithContext(ctx).Table(table)
	if senderID != nil {
		q = q.Where("sender_id = ?", *senderID)
	}
	if excludeRemoved {
		q = q.Where("is_removed = ?", false)
	}
	if pred != nil {
		q = pred.Scope(q)
	}
	var ids []uint
	if err := q.Pluck("id", &ids).Error; err != nil {
		logger.Debug("sendable filter degraded to empty result", zap.String("table", table), zap.Error(err))
		return nil, nil
	}
	return ids, nil
}

func (r *sendableRepository) RemovedIn(ctx context.Context, table string, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []uint
	err := r.db.WithContext(ctx).Table(table).
		Where("id IN ? AND is_removed = ?", ids, true).
		Pluck("id", &out).Error
	return out, err
}

func (r *sendableRepository) MarkRemoved(ctx context.Context, table string, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Table(table).
		Where("id IN ?", ids).
		Update("is_removed", true).Error
}

func (r *sendableRepository) Delete(ctx context.Context, table string, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Table(table).
		Where("id IN ?", ids).
		Delete(&model.SendableRow{}).Error
}
