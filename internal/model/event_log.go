package model

import "time"

// EventLog 是广播事件的审计落库记录，由 Kafka 消费者异步写入。
// 只做下游审计/追溯用，客户端从不读取，也不用于断线补发。
type EventLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// EventID 来自 outbox，uniqueIndex 保证重复消息幂等落库。
	EventID   string    `gorm:"size:64;uniqueIndex;not null" json:"event_id"`
	Type      string    `gorm:"size:32;not null;index" json:"type"`
	Payload   string    `gorm:"type:text" json:"payload"`
	EmittedAt time.Time `gorm:"not null" json:"emitted_at"`
}

func (EventLog) TableName() string { return "event_logs" }
