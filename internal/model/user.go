package model

import "time"

// User 用户账号
type User struct {
	ID       uint   `gorm:"primaryKey"`
	Username string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Email    string `gorm:"type:varchar(128)"`
	Password string `gorm:"type:varchar(128);not null"`
	IsAdmin  bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string { return "users" }

// Participant is the recipient/sender shape exposed in list and detail
// payloads.
type Participant struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

func (u *User) Participant() Participant {
	return Participant{ID: u.ID, Username: u.Username}
}
