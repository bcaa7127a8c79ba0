package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/d60-Lab/sendables/internal/model"
	"github.com/d60-Lab/sendables/internal/registry"
	"github.com/d60-Lab/sendables/internal/repository"
)

// checkSelection enforces the configured selection mode over an ownership
// query's outcome. Strict mode fails naming every requested key that did not
// resolve; both modes fail when nothing resolved.
func checkSelection(mode registry.Mode, requested, resolved []uint, field, entityName string) error {
	if mode == registry.Strict {
		if missing := missingKeys(requested, resolved); len(missing) > 0 {
			return &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("Invalid %ss: %s.", entityName, joinKeys(missing)),
			}
		}
	}
	if len(resolved) == 0 {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("No valid %ss.", entityName),
		}
	}
	return nil
}

// missingKeys returns requested keys absent from resolved, deduplicated and
// sorted ascending.
func missingKeys(requested, resolved []uint) []uint {
	have := make(map[uint]struct{}, len(resolved))
	for _, id := range resolved {
		have[id] = struct{}{}
	}
	seen := make(map[uint]struct{}, len(requested))
	var missing []uint
	for _, id := range requested {
		if _, ok := have[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

func joinKeys(keys []uint) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = strconv.FormatUint(uint64(k), 10)
	}
	return strings.Join(parts, ", ")
}

// validRecipients resolves requested recipient keys to user records,
// excluding the requester unless the entity allows self-send.
func validRecipients(ctx context.Context, users repository.UserRepository, cfg *registry.Config, requesterID uint, requested []uint) ([]model.User, error) {
	found, err := users.FindByIDs(ctx, requested)
	if err != nil {
		return nil, err
	}
	if !cfg.AllowSendToSelf(requesterID) {
		kept := found[:0]
		for _, u := range found {
			if u.ID != requesterID {
				kept = append(kept, u)
			}
		}
		found = kept
	}
	resolved := make([]uint, len(found))
	for i, u := range found {
		resolved[i] = u.ID
	}
	if err := checkSelection(cfg.RecipientSelection, requested, resolved, cfg.RecipientsField(), "recipient"); err != nil {
		return nil, err
	}
	return found, nil
}

// validReceived resolves requested inbox reference keys owned by the
// requesting recipient.
func validReceived(ctx context.Context, received repository.ReceivedRepository, cfg *registry.Config, recipientID uint, requested []uint) ([]model.ReceivedSendable, error) {
	refs, err := received.Owned(ctx, cfg.Name, recipientID, requested)
	if err != nil {
		return nil, err
	}
	resolved := make([]uint, len(refs))
	for i, ref := range refs {
		resolved[i] = ref.ID
	}
	if err := checkSelection(cfg.ItemSelection, requested, resolved, cfg.ItemsField(), cfg.Name); err != nil {
		return nil, err
	}
	return refs, nil
}

// validSent resolves requested content keys owned by the requesting sender,
// implicitly excluding content already marked removed.
func validSent(ctx context.Context, sendables repository.SendableRepository, cfg *registry.Config, senderID uint, requested []uint) ([]model.SendableRow, error) {
	rows, err := sendables.OwnedBySender(ctx, cfg.Table, senderID, requested, true)
	if err != nil {
		return nil, err
	}
	resolved := make([]uint, len(rows))
	for i, row := range rows {
		resolved[i] = row.ID
	}
	if err := checkSelection(cfg.ItemSelection, requested, resolved, cfg.ItemsField(), cfg.Name); err != nil {
		return nil, err
	}
	return rows, nil
}
