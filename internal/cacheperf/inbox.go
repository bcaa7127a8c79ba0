package cacheperf

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// InboxSnapshot contains the minimal per-item info an inbox page needs.
type InboxSnapshot struct {
	RefID   uint      `json:"ref_id"`
	Content string    `json:"content"`
	IsRead  bool      `json:"is_read"`
	SentOn  time.Time `json:"sent_on"`
}

// InboxService demonstrates different caching strategies for inbox page reads.
type InboxService struct {
	db      *gorm.DB
	cache   *redis.Client
	entity  string
	table   string
	ttl     time.Duration
	dbDelay time.Duration

	pageQueries atomic.Int64
	indexLoads  atomic.Int64
	itemLoads   atomic.Int64
}

// NewInboxService builds a demo service using the provided DB + Redis client.
// dbDelay simulates the round-trip cost of hitting the primary store.
func NewInboxService(db *gorm.DB, cache *redis.Client, entity, table string, ttl, dbDelay time.Duration) *InboxService {
	return &InboxService{db: db, cache: cache, entity: entity, table: table, ttl: ttl, dbDelay: dbDelay}
}

func (s *InboxService) FetchInboxNoCache(ctx context.Context, recipientID uint, page, size int) ([]InboxSnapshot, error) {
	return s.queryInbox(ctx, recipientID, page, size)
}

func (s *InboxService) FetchInboxNaiveCache(ctx context.Context, recipientID uint, page, size int) ([]InboxSnapshot, error) {
	key := fmt.Sprintf("inbox:%s:%d:%d:%d", s.entity, recipientID, page, size)
	if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
		var out []InboxSnapshot
		if uErr := json.Unmarshal(data, &out); uErr == nil {
			return out, nil
		}
	}

	rows, err := s.queryInbox(ctx, recipientID, page, size)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(rows); err == nil {
		_ = s.cache.Set(ctx, key, payload, s.ttl).Err()
	}
	return rows, nil
}

func (s *InboxService) FetchInboxOptimized(ctx context.Context, recipientID uint, page, size int) ([]InboxSnapshot, error) {
	key := fmt.Sprintf("inbox:index:%s:%d", s.entity, recipientID)

	start := (page - 1) * size
	end := start + size - 1

	// Try to get ref ids directly from a Redis List range
	exists, _ := s.cache.Exists(ctx, key).Result()
	var ids []string
	if exists > 0 {
		ids, _ = s.cache.LRange(ctx, key, int64(start), int64(end)).Result()
	}

	// If cache miss, load all ref ids and cache them
	if len(ids) == 0 {
		allIDs, err := s.loadRefIDsAndCache(ctx, recipientID)
		if err != nil {
			return nil, err
		}
		if start >= len(allIDs) {
			return []InboxSnapshot{}, nil
		}
		endIdx := start + size
		if endIdx > len(allIDs) {
			endIdx = len(allIDs)
		}
		ids = allIDs[start:endIdx]
	}

	return s.loadItems(ctx, ids)
}

func (s *InboxService) loadRefIDsAndCache(ctx context.Context, recipientID uint) ([]string, error) {
	time.Sleep(s.dbDelay)
	s.indexLoads.Add(1)

	var ids []string
	if err := s.db.WithContext(ctx).
		Table("received_sendables").
		Select("id").
		Where("entity_type = ? AND recipient_id = ?", s.entity, recipientID).
		Order("created_at DESC").
		Scan(&ids).Error; err != nil {
		return nil, err
	}

	key := fmt.Sprintf("inbox:index:%s:%d", s.entity, recipientID)
	if len(ids) > 0 {
		pipe := s.cache.Pipeline()
		pipe.Del(ctx, key)
		pipe.RPush(ctx, key, interfaceSlice(ids)...)
		pipe.Expire(ctx, key, s.ttl)
		pipe.Exec(ctx)
	}
	return ids, nil
}

func (s *InboxService) queryInbox(ctx context.Context, recipientID uint, page, size int) ([]InboxSnapshot, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	time.Sleep(s.dbDelay)
	s.pageQueries.Add(1)

	var rows []InboxSnapshot
	err := s.db.WithContext(ctx).
		Table("received_sendables").
		Select("received_sendables.id AS ref_id",
			s.table+".content",
			"received_sendables.is_read",
			s.table+".sent_on").
		Joins(fmt.Sprintf("JOIN %s ON received_sendables.sendable_id = %s.id", s.table, s.table)).
		Where("received_sendables.entity_type = ? AND received_sendables.recipient_id = ?", s.entity, recipientID).
		Order("received_sendables.created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *InboxService) loadItems(ctx context.Context, ids []string) ([]InboxSnapshot, error) {
	if len(ids) == 0 {
		return []InboxSnapshot{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fmt.Sprintf("inboxitem:%s:%s", s.entity, id)
	}

	cached := make(map[string]InboxSnapshot, len(ids))
	if vals, err := s.cache.MGet(ctx, keys...).Result(); err == nil {
		for i, v := range vals {
			if v == nil {
				continue
			}
			if str, ok := v.(string); ok {
				var snap InboxSnapshot
				if uErr := json.Unmarshal([]byte(str), &snap); uErr == nil {
					cached[ids[i]] = snap
				}
			}
		}
	}

	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := cached[id]; !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		s.itemLoads.Add(1)
		time.Sleep(s.dbDelay)

		var rows []InboxSnapshot
		if err := s.db.WithContext(ctx).
			Table("received_sendables").
			Select("received_sendables.id AS ref_id",
				s.table+".content",
				"received_sendables.is_read",
				s.table+".sent_on").
			Joins(fmt.Sprintf("JOIN %s ON received_sendables.sendable_id = %s.id", s.table, s.table)).
			Where("received_sendables.id IN ?", missing).
			Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, snap := range rows {
			id := fmt.Sprintf("%d", snap.RefID)
			cached[id] = snap
			if payload, err := json.Marshal(snap); err == nil {
				_ = s.cache.Set(ctx, fmt.Sprintf("inboxitem:%s:%s", s.entity, id), payload, s.ttl).Err()
			}
		}
	}

	result := make([]InboxSnapshot, 0, len(ids))
	for _, id := range ids {
		if snap, ok := cached[id]; ok {
			result = append(result, snap)
		}
	}
	return result, nil
}

func interfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}

// ResetCounters clears recorded db call counters.
func (s *InboxService) ResetCounters() {
	s.pageQueries.Store(0)
	s.indexLoads.Store(0)
	s.itemLoads.Store(0)
}

// Counters reports how many underlying DB loads were executed.
func (s *InboxService) Counters() InboxDBCounters {
	return InboxDBCounters{
		PageQueries: s.pageQueries.Load(),
		IndexLoads:  s.indexLoads.Load(),
		ItemLoads:   s.itemLoads.Load(),
	}
}

// InboxDBCounters summarises DB hits during a run.
type InboxDBCounters struct {
	PageQueries int64
	IndexLoads  int64
	ItemLoads   int64
}
