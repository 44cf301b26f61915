package router

import (
	"context"
	"encoding/json"
	"net/http"

	"stockguard/internal/config"
	"stockguard/internal/hub"
	"stockguard/internal/middleware"
	rediskey "stockguard/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 跨域校验交给 CORS 中间件与部署层，这里放行。
		return true
	},
}

// emitter 把一次成功写库对应的信封同时送往两条链路：
// 1. Hub 广播给所有在线客户端（状态同步的唯一事实来源）
// 2. Redis Stream outbox（尽力而为，供 Relay 转 Kafka 做审计）
// 两条链路的失败都只记日志，绝不回滚已提交的写入。
type emitter struct {
	hub    *hub.Hub
	rdb    *rd.Client
	stream string
	audit  bool
}

func (e *emitter) emit(ctx context.Context, typ string, env any) {
	e.hub.Broadcast(env)

	if !e.audit || e.rdb == nil {
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		config.GetLogger().WithError(err).Error("event outbox marshal failed")
		return
	}
	if err := rediskey.AppendEvent(ctx, e.rdb, e.stream, uuid.New().String(), typ, payload); err != nil {
		config.GetLogger().WithField("type", typ).WithError(err).Warn("event outbox append failed")
	}
}

// Setup 注册全部 HTTP 路由。rdb 允许为 nil（无 Redis 部署：跳过限流与审计）。
func Setup(r *gin.Engine, db *gorm.DB, h *hub.Hub, rdb *rd.Client, cfg config.AppConfig) {
	em := &emitter{hub: h, rdb: rdb, stream: cfg.EventStream, audit: cfg.EventRelayEnabled}

	limit := func(c *gin.Context) { c.Next() }
	if rdb != nil {
		limit = middleware.RedisRateLimit(rdb, cfg.MutateRateLimit, cfg.MutateRateWindow)
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	// Products
	r.GET("/products/", listProducts(db))
	r.GET("/products/:id", getProduct(db))
	r.POST("/products/", limit, createProduct(db, em))
	r.PUT("/products/:id", limit, updateProduct(db, em))
	r.DELETE("/products/:id", limit, deleteProduct(db, em))

	// Categories
	r.GET("/categories/", listCategories(db))
	r.GET("/categories/:id", getCategory(db))
	r.POST("/categories/", limit, createCategory(db, em))
	r.PUT("/categories/:id", limit, updateCategory(db, em))
	r.DELETE("/categories/:id", limit, deleteCategory(db, em))

	// 实时事件通道
	r.GET("/ws", serveWS(h))
}

// serveWS 升级连接并注册到 Hub。客户端只收不发，读循环仅用于感知断线。
func serveWS(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			config.GetLogger().WithError(err).Error("websocket upgrade failed")
			return
		}
		client := h.Register(conn)
		defer h.Unregister(client)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
