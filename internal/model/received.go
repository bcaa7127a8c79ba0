package model

import "time"

// ReceivedSendable 收件箱条目（接收者自己的"副本"）
type ReceivedSendable struct {
	ID          uint   `gorm:"primaryKey"`
	RecipientID uint   `gorm:"index:idx_received_recipient;not null"`
	EntityType  string `gorm:"type:varchar(64);index:idx_received_ref;not null"`
	SendableID  uint   `gorm:"index:idx_received_ref;not null"`
	// 仅接收者本人可改
	IsRead    bool `gorm:"not null;default:false"`
	CreatedAt time.Time
}

func (ReceivedSendable) TableName() string { return "received_sendables" }
