package model

import "time"

// RecipientSendableAssociation 投递关联（某条内容发给了谁），与收件箱状态无关
type RecipientSendableAssociation struct {
	ID          uint   `gorm:"primaryKey"`
	RecipientID uint   `gorm:"index:idx_assoc_recipient;not null"`
	EntityType  string `gorm:"type:varchar(64);index:idx_assoc_ref;not null"`
	SendableID  uint   `gorm:"index:idx_assoc_ref;not null"`
	CreatedAt   time.Time
}

func (RecipientSendableAssociation) TableName() string { return "recipient_sendable_associations" }
