package model

// ReceivedItem is one received listing entry: the inbox reference joined with
// its content record and, when the schema has one, the sender.
type ReceivedItem struct {
	Ref      ReceivedSendable
	Sendable SendableRow
	Sender   *Participant
}

// SentItem is one sent listing entry: a content record with every recipient
// it was delivered to.
type SentItem struct {
	Sendable   SendableRow
	Recipients []Participant
}
