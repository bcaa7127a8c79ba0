package repository

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/sendables/internal/filter"
	"github.com/d60-Lab/sendables/internal/model"
	"github.com/d60-Lab/sendables/pkg/logger"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByIDs(ctx context.Context, ids []uint) ([]model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindMap(ctx context.Context, ids []uint) (map[uint]model.User, error)
	FilteredIDs(ctx context.Context, pred *filter.Predicate) ([]uint, error)
}

type userRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []model.User
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindMap(ctx context.Context, ids []uint) (map[uint]model.User, error) {
	users, err := r.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uint]model.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// FilteredIDs applies a compiled recipient filter to the users table. Schema
// mismatches degrade to an empty result, matching the sendable side.
func (r *userRepository) FilteredIDs(ctx context.Context, pred *filter.Predicate) ([]uint, error) {
	if pred != nil && pred.Poisoned() {
		return nil, nil
	}
	q := r.db.WithContext(ctx).Model(&model.User{})
	if pred != nil {
		q = pred.Scope(q)
	}
	var ids []uint
	if err := q.Pluck("id", &ids).Error; err != nil {
		logger.Debug("recipient filter degraded to empty result", zap.Error(err))
		return nil, nil
	}
	return ids, nil
}
