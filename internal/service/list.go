package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/d60-Lab/sendables/internal/filter"
	"github.com/d60-Lab/sendables/internal/model"
	"github.com/d60-Lab/sendables/internal/registry"
	"github.com/d60-Lab/sendables/internal/repository"
)

// ListService retrieves received and sent collections. Results are
// materialized and sorted in memory before pagination: the polymorphic
// content reference cannot be expressed as an indexed query ordering, so
// this is a deliberate bounded-size materialization.
type ListService struct {
	db        *gorm.DB
	sendables repository.SendableRepository
	received  repository.ReceivedRepository
	assocs    repository.AssociationRepository
	users     repository.UserRepository
	unread    *UnreadCache
}

func NewListService(db *gorm.DB, unread *UnreadCache) *ListService {
	return &ListService{
		db:        db,
		sendables: repository.NewSendableRepository(db),
		received:  repository.NewReceivedRepository(db),
		assocs:    repository.NewAssociationRepository(db),
		users:     repository.NewUserRepository(db),
		unread:    unread,
	}
}

// Page selects one page of an in-memory listing. Zero values fall back to
// the entity's configured page size; a zero size there disables paging.
type Page struct {
	Number int
	Size   int
}

const recipientParamPrefix = "recipient_"

// splitParams partitions query parameters: keys with the "recipient_" prefix
// filter recipients (prefix stripped), the rest filter sendables.
func splitParams(params map[string][]string) (sendableParams, recipientParams map[string][]string) {
	sendableParams = make(map[string][]string)
	recipientParams = make(map[string][]string)
	for key, values := range params {
		if strings.HasPrefix(key, recipientParamPrefix) {
			recipientParams[key[len(recipientParamPrefix):]] = values
		} else {
			sendableParams[key] = values
		}
	}
	return sendableParams, recipientParams
}

// ListReceived returns the recipient's inbox copies, optionally restricted by
// read state and by sendable filters, sorted by the entity's received
// ordering.
func (s *ListService) ListReceived(ctx context.Context, cfg *registry.Config, recipientID uint, isRead *bool, params map[string][]string, page Page) ([]model.ReceivedItem, error) {
	sendableParams, _ := splitParams(params)
	pred := filter.Compile(sendableParams, cfg.FilterSendables)

	query := repository.ReceivedQuery{
		EntityType:  cfg.Name,
		RecipientID: recipientID,
		IsRead:      isRead,
	}
	if pred.Restrictive() {
		ids, err := s.sendables.FilteredIDs(ctx, cfg.Table, pred, nil, false)
		if err != nil {
			return nil, err
		}
		query.Scoped = true
		query.SendableIDs = ids
	}

	refs, err := s.received.List(ctx, query)
	if err != nil {
		return nil, err
	}
	items, err := s.joinReceived(ctx, cfg, refs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return cfg.SortReceivedLess(&items[i], &items[j])
	})
	return paginate(items, page, cfg.PageSize), nil
}

// DetailReceived returns one inbox copy owned by the recipient.
func (s *ListService) DetailReceived(ctx context.Context, cfg *registry.Config, recipientID, id uint) (*model.ReceivedItem, error) {
	ref, err := s.received.OwnedOne(ctx, cfg.Name, recipientID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{}
		}
		return nil, err
	}
	items, err := s.joinReceived(ctx, cfg, []model.ReceivedSendable{*ref})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &NotFoundError{}
	}
	return &items[0], nil
}

// ListSent returns the sender's content records grouped with their
// recipients. Sendable filters and recipient filters intersect: a content
// record qualifies when it passes the sendable filters and was delivered to
// at least one recipient passing the recipient filters; its recipient list
// still includes every recipient.
func (s *ListService) ListSent(ctx context.Context, cfg *registry.Config, senderID uint, params map[string][]string, page Page) ([]model.SentItem, error) {
	if !cfg.HasSender {
		return nil, &NotFoundError{}
	}
	sendableParams, recipientParams := splitParams(params)

	sendPred := filter.Compile(sendableParams, cfg.FilterSendables)
	ownIDs, err := s.sendables.FilteredIDs(ctx, cfg.Table, sendPred, &senderID, true)
	if err != nil {
		return nil, err
	}

	recipientPred := filter.Compile(recipientParams, cfg.FilterRecipients)
	var deliveredIDs []uint
	if recipientPred.Restrictive() {
		userIDs, err := s.users.FilteredIDs(ctx, recipientPred)
		if err != nil {
			return nil, err
		}
		deliveredIDs, err = s.assocs.SendableIDsForRecipients(ctx, cfg.Name, userIDs, true)
		if err != nil {
			return nil, err
		}
	} else {
		deliveredIDs, err = s.assocs.SendableIDsForRecipients(ctx, cfg.Name, nil, false)
		if err != nil {
			return nil, err
		}
	}

	eligible := intersect(ownIDs, deliveredIDs)
	items, err := s.groupSent(ctx, cfg, eligible)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return cfg.SortSentLess(&items[i], &items[j])
	})
	return paginate(items, page, cfg.PageSize), nil
}

// DetailSent returns one of the sender's content records with its
// recipients.
func (s *ListService) DetailSent(ctx context.Context, cfg *registry.Config, senderID, id uint) (*model.SentItem, error) {
	if !cfg.HasSender {
		return nil, &NotFoundError{}
	}
	rows, err := s.sendables.OwnedBySender(ctx, cfg.Table, senderID, []uint{id}, true)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{}
	}
	items, err := s.groupSent(ctx, cfg, []uint{rows[0].ID})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &NotFoundError{}
	}
	return &items[0], nil
}

// UnreadCount returns the recipient's unread copy count.
func (s *ListService) UnreadCount(ctx context.Context, cfg *registry.Config, recipientID uint) (int64, error) {
	return s.unread.Count(ctx, s.db, cfg.Name, recipientID)
}

func (s *ListService) joinReceived(ctx context.Context, cfg *registry.Config, refs []model.ReceivedSendable) ([]model.ReceivedItem, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	contentIDs := make([]uint, len(refs))
	for i, ref := range refs {
		contentIDs[i] = ref.SendableID
	}
	rows, err := s.sendables.Find(ctx, cfg.Table, cfg.HasSender, contentIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]model.SendableRow, len(rows))
	var senderIDs []uint
	for _, row := range rows {
		byID[row.ID] = row
		if row.SenderID != nil {
			senderIDs = append(senderIDs, *row.SenderID)
		}
	}
	senders, err := s.users.FindMap(ctx, senderIDs)
	if err != nil {
		return nil, err
	}

	items := make([]model.ReceivedItem, 0, len(refs))
	for _, ref := range refs {
		row, ok := byID[ref.SendableID]
		if !ok {
			continue
		}
		item := model.ReceivedItem{Ref: ref, Sendable: row}
		if row.SenderID != nil {
			if sender, ok := senders[*row.SenderID]; ok {
				p := sender.Participant()
				item.Sender = &p
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// groupSent fetches every delivery association of the given content records
// and groups them under their content, recipients in delivery order.
func (s *ListService) groupSent(ctx context.Context, cfg *registry.Config, sendableIDs []uint) ([]model.SentItem, error) {
	if len(sendableIDs) == 0 {
		return nil, nil
	}
	assocs, err := s.assocs.ForSendables(ctx, cfg.Name, sendableIDs)
	if err != nil {
		return nil, err
	}
	if len(assocs) == 0 {
		return nil, nil
	}

	rows, err := s.sendables.Find(ctx, cfg.Table, cfg.HasSender, sendableIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]model.SendableRow, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	recipientIDs := make([]uint, len(assocs))
	for i, assoc := range assocs {
		recipientIDs[i] = assoc.RecipientID
	}
	recipients, err := s.users.FindMap(ctx, recipientIDs)
	if err != nil {
		return nil, err
	}

	index := make(map[uint]int)
	var items []model.SentItem
	for _, assoc := range assocs {
		row, ok := byID[assoc.SendableID]
		if !ok {
			continue
		}
		pos, ok := index[assoc.SendableID]
		if !ok {
			pos = len(items)
			index[assoc.SendableID] = pos
			items = append(items, model.SentItem{Sendable: row})
		}
		if user, ok := recipients[assoc.RecipientID]; ok {
			items[pos].Recipients = append(items[pos].Recipients, user.Participant())
		}
	}
	return items, nil
}

func intersect(a, b []uint) []uint {
	set := make(map[uint]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	var out []uint
	for _, id := range a {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func paginate[T any](items []T, page Page, defaultSize int) []T {
	size := page.Size
	if size <= 0 {
		size = defaultSize
	}
	if size <= 0 {
		return items
	}
	number := page.Number
	if number < 1 {
		number = 1
	}
	start := (number - 1) * size
	if start >= len(items) {
		return nil
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
