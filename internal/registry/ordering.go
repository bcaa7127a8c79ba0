package registry

import "github.com/d60-Lab/sendables/internal/model"

// DefaultReceivedLess orders inbox listings: unread before read, then newest
// content first.
func DefaultReceivedLess(a, b *model.ReceivedItem) bool {
	if a.Ref.IsRead != b.Ref.IsRead {
		return !a.Ref.IsRead
	}
	return a.Sendable.SentOn.After(b.Sendable.SentOn)
}

// DefaultSentLess orders sent listings by newest content first.
func DefaultSentLess(a, b *model.SentItem) bool {
	return a.Sendable.SentOn.After(b.Sendable.SentOn)
}
