package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"stockguard/internal/config"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// 单个客户端发送队列长度；写满视为慢消费者，直接踢下线。
	sendQueueSize = 64
	writeWait     = 10 * time.Second
)

// Client 是一条已注册的 WebSocket 连接。
// 每个客户端独占一个发送队列和一个写协程，保证单连接内事件 FIFO。
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub 维护当前在线的客户端集合，把每条信封按广播顺序推给所有连接。
// 不做历史回放：断线期间错过的事件不补发。
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}

	interval time.Duration
}

// New 创建 Hub。interval 为状态心跳广播间隔。
func New(interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Hub{
		clients:  make(map[*Client]struct{}),
		interval: interval,
	}
}

// Register 注册新连接并启动其写协程。不回放历史事件。
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := &Client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	go c.writeLoop(h)

	config.GetLogger().WithFields(logrus.Fields{
		"client_id": c.id,
		"connected": n,
	}).Info("websocket client connected")
	return c
}

// Unregister 将连接移出集合并关闭其发送队列。重复调用是空操作。
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		config.GetLogger().WithFields(logrus.Fields{
			"client_id": c.id,
			"connected": n,
		}).Info("websocket client disconnected")
	}
}

// Broadcast 把信封序列化后推给所有在线客户端。
// 队列写入是非阻塞的：写不进去说明消费者已卡死，按隐式断线处理。
// 单个客户端失败不影响其他客户端，更不影响已提交的数据库写入。
func (h *Hub) Broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		config.GetLogger().WithError(err).Error("broadcast marshal failed")
		return
	}

	var dropped []*Client
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			dropped = append(dropped, c)
		}
	}
	for _, c := range dropped {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	for _, c := range dropped {
		config.GetLogger().WithField("client_id", c.id).Warn("slow websocket client dropped")
	}
}

// ClientCount 返回当前在线连接数。
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run 按固定间隔广播状态心跳，直到 ctx 取消。
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Broadcast(NewStatus(h.ClientCount()))
		}
	}
}

// writeLoop 顺序消费发送队列写入连接；写失败即注销自身并丢弃残留消息。
func (c *Client) writeLoop(h *Hub) {
	defer c.conn.Close()
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			config.GetLogger().WithField("client_id", c.id).WithError(err).Warn("websocket write failed")
			h.Unregister(c)
			for range c.send {
			}
			return
		}
	}
}
