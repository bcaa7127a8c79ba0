package service

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/sendables/internal/registry"
	"github.com/d60-Lab/sendables/internal/repository"
)

// MarkService flips the read flag on a recipient's own inbox copies.
type MarkService struct {
	db     *gorm.DB
	unread *UnreadCache
}

func NewMarkService(db *gorm.DB, unread *UnreadCache) *MarkService {
	return &MarkService{db: db, unread: unread}
}

// SetRead validates the selection against the recipient's ownership, then
// updates the read flag on every resolved copy.
func (s *MarkService) SetRead(ctx context.Context, cfg *registry.Config, recipientID uint, ids []uint, isRead bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		received := repository.NewReceivedRepository(tx)
		refs, err := validReceived(ctx, received, cfg, recipientID, ids)
		if err != nil {
			return err
		}
		resolved := make([]uint, len(refs))
		for i, ref := range refs {
			resolved[i] = ref.ID
		}
		return received.SetRead(ctx, resolved, isRead)
	})
	if err != nil {
		return err
	}
	s.unread.Invalidate(ctx, cfg.Name, recipientID)
	return nil
}
