// Package reconciler 实现客户端侧的状态协调器：
// 维护商品/分类的本地缓存，通过 WebSocket 事件流与服务端收敛一致。
// 挂载时用 REST 拉一次全量做缓存预热，之后只有事件能改缓存——
// 写操作的 REST 响应从不直接更新本地状态，所有客户端（包括发起方）
// 都沿同一条事件路径做同样的变换。
package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"stockguard/internal/hub"
	"stockguard/internal/model"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ConnState 是连接生命周期状态机的状态。
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateOpen
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "disconnected"
	}
}

// Config 是协调器的运行参数；零值字段使用默认值。
type Config struct {
	// BaseURL 是 REST 服务来源（缓存预热用），如 http://localhost:8080
	BaseURL string
	// WSURL 是事件通道地址，如 ws://localhost:8080/ws
	WSURL string

	// ReconnectDelay 固定重连间隔（不做指数退避，无限重试）
	ReconnectDelay time.Duration
	// AlertWindow 预警展示窗口，超时自动清除
	AlertWindow time.Duration

	// OnApply 每应用一条信封后回调（可选，watch 终端展示用）
	OnApply func(eventType string)

	Logger *logrus.Logger
}

// Reconciler 持有本地缓存与连接状态机。
type Reconciler struct {
	cfg    Config
	logger *logrus.Logger

	dialer *websocket.Dialer
	httpc  *http.Client

	mu         sync.Mutex
	products   []model.Product
	categories []model.Category
	status     *hub.StatusEnvelope
	alert      *hub.AlertEnvelope
	alertSeq   uint64
	alertTimer *time.Timer

	state atomic.Int32
}

// New 创建协调器，未设置的配置项落默认值。
func New(cfg Config) *Reconciler {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.AlertWindow <= 0 {
		cfg.AlertWindow = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Reconciler{
		cfg:    cfg,
		logger: cfg.Logger,
		dialer: websocket.DefaultDialer,
		httpc:  &http.Client{Timeout: 5 * time.Second},
	}
}

// State 返回当前连接状态。
func (r *Reconciler) State() ConnState {
	return ConnState(r.state.Load())
}

func (r *Reconciler) setState(s ConnState) {
	r.state.Store(int32(s))
}

// Run 阻塞运行连接生命周期，直到 ctx 取消：
// disconnected → connecting → open → disconnected →（固定退避后）connecting → …
// 退出时停掉未触发的预警定时器，不留悬挂资源。
func (r *Reconciler) Run(ctx context.Context) {
	defer func() {
		r.setState(StateDisconnected)
		r.mu.Lock()
		if r.alertTimer != nil {
			r.alertTimer.Stop()
		}
		r.mu.Unlock()
	}()

	r.prime(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		r.setState(StateConnecting)
		conn, resp, err := r.dialer.DialContext(ctx, r.cfg.WSURL, nil)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
			}
			r.setState(StateDisconnected)
			r.logger.WithField("url", r.cfg.WSURL).WithError(err).Warn("websocket dial failed")
			if !r.waitReconnect(ctx) {
				return
			}
			continue
		}

		r.setState(StateOpen)
		r.logger.WithField("url", r.cfg.WSURL).Info("websocket connected")
		r.readLoop(ctx, conn)
		conn.Close()

		// 读循环只会因一个错误退出一次，close/error 合并为单次断线转移。
		r.setState(StateDisconnected)
		if ctx.Err() != nil {
			return
		}
		r.logger.Info("websocket disconnected, scheduling reconnect")
		if !r.waitReconnect(ctx) {
			return
		}
	}
}

// waitReconnect 等待固定退避时长；teardown 先到则返回 false 并丢弃定时器。
func (r *Reconciler) waitReconnect(ctx context.Context) bool {
	t := time.NewTimer(r.cfg.ReconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// readLoop 逐条读取并应用信封，任何读错误都按断线处理。
func (r *Reconciler) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		r.Apply(raw)
	}
}

// prime 挂载时拉一次全量列表预热缓存。失败只记日志：
// 缓存保持为空，等事件流慢慢补上（可接受的陈旧窗口）。
func (r *Reconciler) prime(ctx context.Context) {
	var products []model.Product
	if err := r.fetchList(ctx, "/products/", &products); err != nil {
		r.logger.WithError(err).Warn("prime products failed")
	} else {
		r.mu.Lock()
		r.products = products
		r.mu.Unlock()
	}

	var categories []model.Category
	if err := r.fetchList(ctx, "/categories/", &categories); err != nil {
		r.logger.WithError(err).Warn("prime categories failed")
	} else {
		r.mu.Lock()
		r.categories = categories
		r.mu.Unlock()
	}
}

func (r *Reconciler) fetchList(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}

	var body struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	if body.Code != 0 {
		return fmt.Errorf("GET %s: server code %d", path, body.Code)
	}
	return json.Unmarshal(body.Data, out)
}
