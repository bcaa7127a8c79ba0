package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestUnreadCountWithoutRedis(t *testing.T) {
	db := setupServiceDB(t)
	cfg := entityConfig(t, testRegistry(t, nil), "message")
	sender := seedUser(t, db, "sender")
	alice := seedUser(t, db, "alice")

	sendMessage(t, db, cfg, sender.ID, "one", alice.ID)
	sendMessage(t, db, cfg, sender.ID, "two", alice.ID)

	count, err := NewListService(db, noCache()).UnreadCount(context.Background(), cfg, alice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestUnreadCountCachesAndInvalidates(t *testing.T) {
	db := setupServiceDB(t)
	cfg := entityConfig(t, testRegistry(t, nil), "message")
	sender := seedUser(t, db, "sender")
	alice := seedUser(t, db, "alice")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewUnreadCache(rdb, time.Minute)
	ctx := context.Background()

	send := NewSendService(db, cache)
	_, err := send.Send(ctx, cfg, sender.ID, map[string]any{"content": "one"}, []uint{alice.ID})
	require.NoError(t, err)

	list := NewListService(db, cache)
	count, err := list.UnreadCount(ctx, cfg, alice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	require.True(t, mr.Exists(unreadKey(cfg.Name, alice.ID)))

	// a stale cached value is served until the next mutation invalidates it
	require.NoError(t, mr.Set(unreadKey(cfg.Name, alice.ID), "41"))
	count, err = list.UnreadCount(ctx, cfg, alice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(41), count)

	refs := inboxRefs(t, db, "message", alice.ID)
	require.NoError(t, NewMarkService(db, cache).SetRead(ctx, cfg, alice.ID, []uint{refs[0].ID}, true))
	require.False(t, mr.Exists(unreadKey(cfg.Name, alice.ID)))

	count, err = list.UnreadCount(ctx, cfg, alice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}

func TestSendInvalidatesRecipientUnreadCache(t *testing.T) {
	db := setupServiceDB(t)
	cfg := entityConfig(t, testRegistry(t, nil), "message")
	sender := seedUser(t, db, "sender")
	alice := seedUser(t, db, "alice")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewUnreadCache(rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, mr.Set(unreadKey(cfg.Name, alice.ID), "0"))
	_, err := NewSendService(db, cache).Send(ctx, cfg, sender.ID,
		map[string]any{"content": "hi"}, []uint{alice.ID})
	require.NoError(t, err)
	require.False(t, mr.Exists(unreadKey(cfg.Name, alice.ID)))
}
