package model

import "time"

// SendableCore holds the columns every sendable content table shares.
type SendableCore struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Content string `gorm:"type:text;not null" json:"content"`
	// Hidden from its sender's outbox, but kept alive while inbox copies
	// still point at it.
	IsRemoved bool      `gorm:"not null;default:false" json:"-"`
	SentOn    time.Time `gorm:"index;not null" json:"sent_on"`
}

// Sendable is implemented by every concrete content model via SendableCore
// embedding.
type Sendable interface {
	SendableID() uint
	Core() *SendableCore
}

// SenderAware is implemented by content models that carry a sender reference.
type SenderAware interface {
	SetSender(id uint)
	Sender() *uint
}

func (c *SendableCore) SendableID() uint    { return c.ID }
func (c *SendableCore) Core() *SendableCore { return c }

// Message 私信类型（带发送者）
type Message struct {
	SendableCore
	SenderID *uint `gorm:"index:idx_message_sender"`
}

func (Message) TableName() string { return "messages" }

func (m *Message) SetSender(id uint) { m.SenderID = &id }
func (m *Message) Sender() *uint     { return m.SenderID }

// Notice 公告类型（无发送者）
type Notice struct {
	SendableCore
}

func (Notice) TableName() string { return "notices" }

// SendableRow is the neutral shape content rows are scanned into when the
// concrete model type is only known through the entity catalog. SenderID is
// left nil for senderless schemas.
type SendableRow struct {
	ID        uint
	Content   string
	IsRemoved bool
	SentOn    time.Time
	SenderID  *uint
}
