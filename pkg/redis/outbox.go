package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// AppendEvent 将一条已广播的事件追加到 Redis Stream outbox。
// 字段扁平化写入，Relay 端解析后转发 Kafka；event_id 贯穿整条审计链路做幂等标识。
func AppendEvent(ctx context.Context, rdb *rd.Client, stream, eventID, typ string, payload []byte) error {
	return rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"event_id":   eventID,
			"type":       typ,
			"payload":    string(payload),
			"emitted_at": time.Now().Unix(),
		},
	}).Err()
}
