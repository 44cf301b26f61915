package queue

import "fmt"

// EventMessage 是写入 Kafka 的库存事件审计消息。
// Payload 保存广播时的完整信封 JSON，落库后可原样追溯。
type EventMessage struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	Payload   string `json:"payload"`
	EmittedAt int64  `json:"emitted_at"`
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (m EventMessage) Validate() error {
	if m.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if m.Type == "" {
		return fmt.Errorf("type is required")
	}
	if m.Payload == "" {
		return fmt.Errorf("payload is required")
	}
	if m.EmittedAt <= 0 {
		return fmt.Errorf("emitted_at must be > 0")
	}
	return nil
}
