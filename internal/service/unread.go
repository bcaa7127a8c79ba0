package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/sendables/internal/repository"
	"github.com/d60-Lab/sendables/pkg/logger"
)

// UnreadCache caches per-recipient unread counts in redis. A nil cache is a
// valid no-op, so the service runs without redis.
type UnreadCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewUnreadCache(rdb *redis.Client, ttl time.Duration) *UnreadCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &UnreadCache{rdb: rdb, ttl: ttl}
}

func unreadKey(entityType string, recipientID uint) string {
	return fmt.Sprintf("unread:%s:%d", entityType, recipientID)
}

// Count returns the unread count, preferring the cache and falling back to
// the database.
func (c *UnreadCache) Count(ctx context.Context, db *gorm.DB, entityType string, recipientID uint) (int64, error) {
	if c != nil && c.rdb != nil {
		if raw, err := c.rdb.Get(ctx, unreadKey(entityType, recipientID)).Result(); err == nil {
			if count, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return count, nil
			}
		}
	}

	count, err := repository.NewReceivedRepository(db).UnreadCount(ctx, entityType, recipientID)
	if err != nil {
		return 0, err
	}
	if c != nil && c.rdb != nil {
		if err := c.rdb.Set(ctx, unreadKey(entityType, recipientID), count, c.ttl).Err(); err != nil {
			logger.Warn("unread cache set failed", zap.Error(err))
		}
	}
	return count, nil
}

// Invalidate drops the cached count after any mutation touching inbox state.
func (c *UnreadCache) Invalidate(ctx context.Context, entityType string, recipientID uint) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, unreadKey(entityType, recipientID)).Err(); err != nil {
		logger.Warn("unread cache invalidate failed", zap.Error(err))
	}
}
