package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/sendables/internal/model"
)

func setSentOn(t *testing.T, db *gorm.DB, msgID uint, ts time.Time) {
	t.Helper()
	require.NoError(t, db.Table("messages").Where("id = ?", msgID).Update("sent_on", ts).Error)
}

func receivedContents(items []model.ReceivedItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Sendable.Content
	}
	return out
}

func sentContents(items []model.SentItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Sendable.Content
	}
	return out
}

func TestListReceivedOrdersUnreadBeforeRead(t *testing.T) {
	db := setupServiceDB(t)
	cfg := entityConfig(t, testRegistry(t, nil), "message")
	sender := seedUser(t, db, "sender")
	alice := seedUser(t, db, "alice")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := sendMessage(t, db, cfg, sender.ID, "one", alice.ID)
	setSentOn(t, db, first, base)
	second := sendMessage(t, db, cfg, sender.ID, "two", alice.ID)
	setSentOn(t, db, second, base.Add(time.Hour))
	third := sendMessage(t, db, cfg, sender.ID, "three", alice.ID)
	setSentOn(t, db, third, base.Add(2*time.Hour))

	refs := inboxRefs(t, db, "message", alice.ID)
	require.NoError(t, NewMarkService(db, noCache()).
		SetRead(context.Background(), cfg, alice.ID, []uint{refs[2].ID}, true))

	items, err := NewListService(db, noCache()).
		ListReceived(context.Background(), cfg, alice.ID, nil, nil, Page{})
	require.NoError(t, err)
	require.Equal(t, []string{"two", "one", "three"}, receivedContents(items))
	require.Equal(t, "sender", items[0].Sender.Username)
}

func TestListReceivedByReadState(t *testing.T) {
	db := setupServiceDB(t)
	cfg := entityConfig(t, testRegistry(t, nil), "message")
	sender := seedUser(t, db, "sender")
	alice := seedUser(t, db, "alice")

	sendMessage(t, db, cfg, sender.ID, "unread one", alice.ID)
	sendMessage(t, db, cfg, sender.ID, "read one", alice.ID)
	refs := inboxRefs(t, db, "message", alice.ID)
	require.NoError(t, NewMarkService(db, noCache()).
		SetRead(context.Background(), cfg, alice.ID, []uint{refs[1].ID}, true))

	list := NewListService(db, noCache())
	read, unread := true, false

	items, err := list.ListReceived(context.Background(), cfg, alice.ID, &read, nil, Page{})
	require.NoError(t, err)
	require.Equal(t, []string{"read one"}, receivedContents(items))

	items, err = list.ListReceived(context.Background(), cfg, alice.ID, &unread, nil, Page{})
	require.NoError(t, err)
	require.Equal(t, []string{"unread one"}, receivedContents(items))
}

func TestListReceivedContentFilter(t *testing.T) {
	db := setupServiceDB(t)
	cfg := entityConfig(t, testRegistry(t, nil), "message")
	sender := seedUser(t, db, "sender")
	alice := seedUser(t, db, "alice")

	sendMessage(t, db, cfg, sender.ID, "Alpha report", alice.ID)
	sendMessage(t, db, cfg, sender.ID, "beta", alice.ID)
	sendMessage(t, db, cfg, sender.ID, "second ALPHA", alice.ID)

	items, err := NewListService(db, noCache()).ListReceived(context.Background(), cfg, alice.ID, nil,
		map[string][]string{"content": {"alpha"}}, Page{})
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestListReceivedDatetimeRangeFilter(t *testing.T) {
	db := setupServiceDB(t)
	cfg := entityConfig(t, testRegistry(t, nil), "message")
	sender := seedUser(t, db, "sender")
	alice := seedUser(t, db, "alice")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	early := sendMessage(t, db, cfg, sender.ID, "early", alice.ID)
	setSentOn(t, db, early, base)
	late := sendMessage(t, db, cfg, sender.ID, "late", alice.ID)
	setSentOn(t, db, late, base.Add(time.Hour))

	cutoff := strconv.FormatInt(base.Unix(), 10)
	items, err := NewListService(db, noCache()).ListReceived(context.Background(), cfg, alice.ID, nil,
		map[string][]string{"sent_on__gt": {cutoff}}, Page{})
	require.NoError(t, err)
	require.Equal(t, []string{"late"}, receivedContents(items))
}

func TestListReceivedPoisonedLookupYieldsEmpty(t *testing.T) {
	db := setupServiceDB(t)
	cfg := entityConfig(t, testRegistry(t, nil), "message")
	sender := seedUser(t, db, "sender")
	alice := seedUser(t, db, "alice")

	sendMessage(t, db, cfg, sender.ID, "hi", alice.ID)

	items, err := NewListService(db, noCache()).ListReceived(context.Background(), cfg, alice.ID, nil,
		map[string][]string{"sent_on__bogus": {"1714564800"}}, Page{})
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestListReceivedPagination(t *testing.T) {
	db := setupServiceDB(t)
	cfg := entityConfig(t, testRegistry(t, nil), "message")
	sender := seedUser(t, db, "sender")
	alice := seedUser(t, db, "alice")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, content := range []string{"a", "b", "c", "d", "e"} {
		id := sendMessage(t, db, cfg, sender.ID, content, alice.ID)
		setSentOn(t, db, id, base.Add(time.Duration(i)*time.Minute))
	}

	list := NewListService(db, noCache())
	items, err := list.ListReceived(context.Background(), cfg, alice.ID, nil, nil, Page{Number: 2, Size: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, receivedContents(items))

	items, err = list.ListReceived(context.Background(), cfg, alice.ID, nil, nil, Page{Number: 9, Size: 2})
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestDetailReceivedOwnership(t *testing.T) {
	db := setupServiceDB(t)
	cfg := entityConfig(t, testRegistry(t, nil), "message")
	sender := seedUser(t, db, "sender")
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	sendMessage(t, db, cfg, sender.ID, "hi", alice.ID)
	ref := inboxRefs(t, db, "message", alice.ID)[0]

	list := NewListService(db, noCache())
	item, err := list.DetailReceived(context.Background(), cfg, alice.ID, ref.ID)
	require.NoError(t, err)
	require.Equal(t, "hi", item.Sendable.Content)

	_, err = list.DetailReceived(context.Background(), cfg, bob.ID, ref.ID)
	var notFoundErr *NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestListSentGroupsRecipients(t *testing.T) {
	db := setupServiceDB(t)
	cfg := entityConfig(t, testRegistry(t, nil), "message")
	sender := seedUser(t, db, "sender")
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	both := sendMessage(t, db, cfg, sender.ID, "to both", alice.ID, bob.ID)
	setSentOn(t, db, both, base)
	one := sendMessage(t, db, cfg, sender.ID, "to alice", alice.ID)
	setSentOn(t, db, one, base.Add(time.Hour))

	items, err := NewListService(db, noCache()).
		ListSent(context.Background(), cfg, sender.ID, nil, Page{})
	require.NoError(t, err)
	require.Equal(t, []string{"to alice", "to both"}, sentContents(items))
	require.Len(t, items[0].Recipients, 1)
	require.Len(t, items[1].Recipients, 2)
}

func TestListSentRecipientFilterKeepsFullRecipientList(t *testing.T) {
	db := setupServiceDB(t)
	cfg := entityConfig(t, testRegistry(t, nil), "message")
	sender := seedUser(t, db, "sender")
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	sendMessage(t, db, cfg, sender.ID, "to both", alice.ID, bob.ID)
	sendMessage(t, db, cfg, sender.ID, "to bob", bob.ID)

	items, err := NewListService(db, noCache()).ListSent(context.Background(), cfg, sender.ID,
		map[string][]string{"recipient_username": {"alice"}}, Page{})
	require.NoError(t, err)
	require.Equal(t, []string{"to both"}, sentContents(items))
	// the recipient filter selects content, it does not trim the grouping
	require.Len(t, items[0].Recipients, 2)
}

func TestListSentExcludesRetractedContent(t *testing.T) {
	db := setupServiceDB(t)
	cfg := entityConfig(t, testRegistry(t, nil), "message")
	sender := seedUser(t, db, "sender")
	alice := seedUser(t, db, "alice")

	sendMessage(t, db, cfg, sender.ID, "keep", alice.ID)
	gone := sendMessage(t, db, cfg, sender.ID, "gone", alice.ID)
	require.NoError(t, NewRetractService(db, noCache()).
		DeleteSent(context.Background(), cfg, sender.ID, []uint{gone}))

	items, err := NewListService(db, noCache()).
		ListSent(context.Background(), cfg, sender.ID, nil, Page{})
	require.NoError(t, err)
	require.Equal(t, []string{"keep"}, sentContents(items))
}

func TestListSentOnSenderlessEntity(t *testing.T) {
	db := setupServiceDB(t)
	cfg := entityConfig(t, testRegistry(t, nil), "notice")
	admin := seedUser(t, db, "admin")

	_, err := NewListService(db, noCache()).ListSent(context.Background(), cfg, admin.ID, nil, Page{})
	var notFoundErr *NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestDetailSentOwnership(t *testing.T) {
	db := setupServiceDB(t)
	cfg := entityConfig(t, testRegistry(t, nil), "message")
	sender := seedUser(t, db, "sender")
	other := seedUser(t, db, "other")
	alice := seedUser(t, db, "alice")

	msgID := sendMessage(t, db, cfg, sender.ID, "hi", alice.ID)

	list := NewListService(db, noCache())
	item, err := list.DetailSent(context.Background(), cfg, sender.ID, msgID)
	require.NoError(t, err)
	require.Equal(t, "hi", item.Sendable.Content)
	require.Len(t, item.Recipients, 1)

	_, err = list.DetailSent(context.Background(), cfg, other.ID, msgID)
	var notFoundErr *NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}
