package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/sendables/internal/model"
	"github.com/d60-Lab/sendables/internal/registry"
	"github.com/d60-Lab/sendables/internal/repository"
	"github.com/d60-Lab/sendables/pkg/logger"
)

// SendService is the only write path creating content records.
type SendService struct {
	db     *gorm.DB
	users  repository.UserRepository
	unread *UnreadCache
}

func NewSendService(db *gorm.DB, unread *UnreadCache) *SendService {
	return &SendService{db: db, users: repository.NewUserRepository(db), unread: unread}
}

// SendResult echoes the accepted fields and recipient keys of a delivery.
type SendResult struct {
	Fields       map[string]any
	RecipientIDs []uint
}

// Send validates the recipient set, then atomically creates one content
// record, one inbox copy and one delivery association per recipient. After
// the transaction commits, the entity's after-send hooks run in order; a
// hook failure propagates to the caller.
func (s *SendService) Send(ctx context.Context, cfg *registry.Config, requesterID uint, fields map[string]any, recipientIDs []uint) (*SendResult, error) {
	recipients, err := validRecipients(ctx, s.users, cfg, requesterID, recipientIDs)
	if err != nil {
		return nil, err
	}

	content := cfg.NewSendable()
	if err := cfg.ApplyFields(content, fields); err != nil {
		var fieldErr *registry.FieldError
		if errors.As(err, &fieldErr) {
			return nil, &ValidationError{Field: fieldErr.Field, Message: fieldErr.Message}
		}
		return nil, err
	}
	core := content.Core()
	core.SentOn = time.Now().UTC()
	if cfg.HasSender {
		if aware, ok := content.(model.SenderAware); ok {
			aware.SetSender(requesterID)
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewSendableRepository(tx).Create(ctx, content); err != nil {
			return err
		}

		refs := make([]model.ReceivedSendable, len(recipients))
		assocs := make([]model.RecipientSendableAssociation, len(recipients))
		for i, user := range recipients {
			refs[i] = model.ReceivedSendable{
				RecipientID: user.ID,
				EntityType:  cfg.Name,
				SendableID:  content.SendableID(),
			}
			assocs[i] = model.RecipientSendableAssociation{
				RecipientID: user.ID,
				EntityType:  cfg.Name,
				SendableID:  content.SendableID(),
			}
		}
		if err := repository.NewReceivedRepository(tx).BulkCreate(ctx, refs); err != nil {
			return err
		}
		return repository.NewAssociationRepository(tx).BulkCreate(ctx, assocs)
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("sendable delivered",
		zap.String("entity", cfg.Name),
		zap.Uint("sendable_id", content.SendableID()),
		zap.Int("recipients", len(recipients)))

	for _, hook := range cfg.AfterSend {
		if err := hook(ctx, requesterID, fields, recipients); err != nil {
			return nil, err
		}
	}

	ids := make([]uint, len(recipients))
	for i, user := range recipients {
		ids[i] = user.ID
		s.unread.Invalidate(ctx, cfg.Name, user.ID)
	}
	return &SendResult{Fields: fields, RecipientIDs: ids}, nil
}
