package queue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"stockguard/internal/config"
	"stockguard/internal/model"

	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"
)

// Consumer 消费 Kafka 事件并写入 event_logs 审计表。
type Consumer struct {
	r  *kafka.Reader
	db *gorm.DB
}

func NewConsumer(brokers []string, topic, groupID string, db *gorm.DB) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		db: db,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	logg := config.GetLogger()
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}

		var msg EventMessage
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			logg.WithError(err).Warn("audit consumer unmarshal failed")
			continue
		}
		if err := msg.Validate(); err != nil {
			logg.WithError(err).Warn("audit consumer dropped invalid message")
			continue
		}

		if err := c.persist(msg); err != nil {
			logg.WithField("event_id", msg.EventID).WithError(err).Warn("audit consumer db create failed")
		}
	}
}

// persist 把事件落入 event_logs。event_id 带唯一索引，
// 重复消费（Kafka at-least-once）触发的 UNIQUE 冲突视为已落库。
func (c *Consumer) persist(msg EventMessage) error {
	rec := &model.EventLog{
		EventID:   msg.EventID,
		Type:      msg.Type,
		Payload:   msg.Payload,
		EmittedAt: time.Unix(msg.EmittedAt, 0),
	}
	if err := c.db.Create(rec).Error; err != nil {
		if errorsLikeUnique(err) {
			return nil
		}
		return err
	}
	return nil
}

func errorsLikeUnique(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique")
}
