package service

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/sendables/internal/registry"
	"github.com/d60-Lab/sendables/internal/repository"
	"github.com/d60-Lab/sendables/pkg/logger"
)

// RetractService removes delivered content from inboxes (recipient side) or
// outboxes (sender side), reclaiming orphaned content records exactly when
// no inbox copy references them anymore and their sender already marked them
// removed.
type RetractService struct {
	db     *gorm.DB
	unread *UnreadCache
}

func NewRetractService(db *gorm.DB, unread *UnreadCache) *RetractService {
	return &RetractService{db: db, unread: unread}
}

// DeleteReceived deletes the recipient's selected inbox copies. With hanging
// deletion enabled, content records left without any inbox copy anywhere in
// the system and already flagged removed are deleted together with their
// delivery associations.
func (s *RetractService) DeleteReceived(ctx context.Context, cfg *registry.Config, recipientID uint, ids []uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		received := repository.NewReceivedRepository(tx)

		refs, err := validReceived(ctx, received, cfg, recipientID, ids)
		if err != nil {
			return err
		}

		refIDs := make([]uint, len(refs))
		touched := make(map[uint]struct{}, len(refs))
		for i, ref := range refs {
			refIDs[i] = ref.ID
			touched[ref.SendableID] = struct{}{}
		}
		if err := received.Delete(ctx, refIDs); err != nil {
			return err
		}
		if !cfg.DeleteHanging {
			return nil
		}

		// Orphan check runs against every remaining inbox copy of this
		// entity type, not just the request's, so content still visible to
		// other recipients survives.
		referenced, err := received.ReferencedSendableIDs(ctx, cfg.Name)
		if err != nil {
			return err
		}
		for _, id := range referenced {
			delete(touched, id)
		}
		if len(touched) == 0 {
			return nil
		}
		orphans := make([]uint, 0, len(touched))
		for id := range touched {
			orphans = append(orphans, id)
		}

		sendables := repository.NewSendableRepository(tx)
		reclaim, err := sendables.RemovedIn(ctx, cfg.Table, orphans)
		if err != nil {
			return err
		}
		if len(reclaim) == 0 {
			return nil
		}
		if err := repository.NewAssociationRepository(tx).DeleteForSendables(ctx, cfg.Name, reclaim); err != nil {
			return err
		}
		if err := sendables.Delete(ctx, cfg.Table, reclaim); err != nil {
			return err
		}
		logger.Debug("reclaimed hanging sendables",
			zap.String("entity", cfg.Name), zap.Int("count", len(reclaim)))
		return nil
	})
	if err != nil {
		return err
	}
	s.unread.Invalidate(ctx, cfg.Name, recipientID)
	return nil
}

// DeleteSent retracts the sender's selected content records. With hanging
// deletion enabled, their delivery associations are dropped, content still
// held in some inbox is flagged removed, and unreferenced content is deleted
// outright. Disabled, every selected record is only flagged removed.
func (s *RetractService) DeleteSent(ctx context.Context, cfg *registry.Config, senderID uint, ids []uint) error {
	if !cfg.HasSender {
		return &NotFoundError{}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sendables := repository.NewSendableRepository(tx)

		rows, err := validSent(ctx, sendables, cfg, senderID, ids)
		if err != nil {
			return err
		}
		selected := make([]uint, len(rows))
		for i, row := range rows {
			selected[i] = row.ID
		}

		if !cfg.DeleteHanging {
			return sendables.MarkRemoved(ctx, cfg.Table, selected)
		}

		if err := repository.NewAssociationRepository(tx).DeleteForSendables(ctx, cfg.Name, selected); err != nil {
			return err
		}

		referenced, err := repository.NewReceivedRepository(tx).ReferencedSendableIDs(ctx, cfg.Name)
		if err != nil {
			return err
		}
		held := make(map[uint]struct{}, len(referenced))
		for _, id := range referenced {
			held[id] = struct{}{}
		}

		var mark, remove []uint
		for _, id := range selected {
			if _, ok := held[id]; ok {
				mark = append(mark, id)
			} else {
				remove = append(remove, id)
			}
		}
		if err := sendables.MarkRemoved(ctx, cfg.Table, mark); err != nil {
			return err
		}
		return sendables.Delete(ctx, cfg.Table, remove)
	})
}
