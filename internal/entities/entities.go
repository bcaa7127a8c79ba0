// Package entities declares the built-in sendable entity types. Applications
// embedding the subsystem register their own the same way.
package entities

import (
	"github.com/d60-Lab/sendables/internal/filter"
	"github.com/d60-Lab/sendables/internal/model"
	"github.com/d60-Lab/sendables/internal/registry"
)

// RegisterBuiltin declares the message and notice entity types.
func RegisterBuiltin(reg *registry.Registry) error {
	if err := RegisterMessage(reg); err != nil {
		return err
	}
	return RegisterNotice(reg)
}

// RegisterMessage declares the "message" entity type: text content with a
// sender, filterable by content, send time and sender id.
func RegisterMessage(reg *registry.Registry) error {
	_, err := reg.Register("message", registry.Options{
		NewSendable: func() model.Sendable { return &model.Message{} },
		Table:       model.Message{}.TableName(),
		HasSender:   true,
		FilterSendables: filter.Fields{
			"content":   {Column: "content", Kind: filter.Contains},
			"sent_on":   {Column: "sent_on", Kind: filter.Datetime},
			"sender_id": {Column: "sender_id", Kind: filter.Equals},
		},
		FilterRecipients: filter.Fields{
			"id":       {Column: "id", Kind: filter.Equals},
			"username": {Column: "username", Kind: filter.Equals},
		},
	})
	return err
}

// RegisterNotice declares the "notice" entity type: senderless text content,
// sendable by admins only.
func RegisterNotice(reg *registry.Registry) error {
	_, err := reg.Register("notice", registry.Options{
		NewSendable: func() model.Sendable { return &model.Notice{} },
		Table:       model.Notice{}.TableName(),
		Permissions: map[registry.Action]registry.Requirement{
			registry.ActionSend: registry.Admin,
		},
		FilterSendables: filter.Fields{
			"content": {Column: "content", Kind: filter.Contains},
			"sent_on": {Column: "sent_on", Kind: filter.Datetime},
		},
		FilterRecipients: filter.Fields{
			"id":       {Column: "id", Kind: filter.Equals},
			"username": {Column: "username", Kind: filter.Equals},
		},
	})
	return err
}
