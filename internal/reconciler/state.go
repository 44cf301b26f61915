package reconciler

import (
	"encoding/json"
	"time"

	"stockguard/internal/hub"
	"stockguard/internal/model"
)

// Snapshot 是本地缓存的一份只读拷贝。
type Snapshot struct {
	Products   []model.Product
	Categories []model.Category
	Status     *hub.StatusEnvelope
	Alert      *hub.AlertEnvelope
}

// Apply 将一条入站信封确定性地应用到本地缓存。
// 事件流是唯一事实来源：同一事件序列在任意客户端上收敛到同一状态。
// 未知 type 与无法解析的消息直接忽略（向前兼容，绝不让坏消息打挂客户端）。
func (r *Reconciler) Apply(raw []byte) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		r.logger.WithError(err).Debug("dropped unparseable envelope")
		return
	}

	switch probe.Type {
	case hub.TypeStatus:
		var env hub.StatusEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return
		}
		r.mu.Lock()
		r.status = &env
		r.mu.Unlock()

	case hub.TypeAlert:
		var env hub.AlertEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return
		}
		r.setAlert(&env)

	case hub.TypeProductCreated:
		var env hub.ProductEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return
		}
		r.mu.Lock()
		// 不做去重：同 ID 重复创建属于服务端要防的 bug，客户端不掩盖。
		r.products = append(r.products, env.Product)
		r.mu.Unlock()

	case hub.TypeProductUpdated:
		var env hub.ProductEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return
		}
		r.mu.Lock()
		for i := range r.products {
			if r.products[i].ID == env.Product.ID {
				r.products[i] = env.Product
				break
			}
		}
		// 找不到 ID 是空操作：可能是断线期间错过了 created。
		r.mu.Unlock()

	case hub.TypeProductDeleted:
		var env hub.ProductDeletedEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return
		}
		r.mu.Lock()
		out := r.products[:0]
		for _, p := range r.products {
			if p.ID != env.ProductID {
				out = append(out, p)
			}
		}
		r.products = out
		r.mu.Unlock()

	case hub.TypeCategoryCreated:
		var env hub.CategoryEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return
		}
		r.mu.Lock()
		r.categories = append(r.categories, env.Category)
		r.mu.Unlock()

	case hub.TypeCategoryUpdated:
		var env hub.CategoryEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return
		}
		r.mu.Lock()
		for i := range r.categories {
			if r.categories[i].ID == env.Category.ID {
				r.categories[i] = env.Category
				break
			}
		}
		r.mu.Unlock()

	case hub.TypeCategoryDeleted:
		var env hub.CategoryDeletedEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return
		}
		r.mu.Lock()
		out := r.categories[:0]
		for _, ct := range r.categories {
			if ct.ID != env.CategoryID {
				out = append(out, ct)
			}
		}
		r.categories = out
		// 镜像服务端 detach：清空受影响商品的分类引用。
		for i := range r.products {
			if r.products[i].CategoryID != nil && *r.products[i].CategoryID == env.CategoryID {
				r.products[i].CategoryID = nil
				r.products[i].Category = nil
			}
		}
		r.mu.Unlock()

	default:
		return
	}

	if r.cfg.OnApply != nil {
		r.cfg.OnApply(probe.Type)
	}
}

// setAlert 替换当前预警并调度自动清除。
// 清除回调带上序号：只有自己仍是最新预警时才生效，后来的预警天然压过前面的。
func (r *Reconciler) setAlert(env *hub.AlertEnvelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.alert = env
	r.alertSeq++
	seq := r.alertSeq
	if r.alertTimer != nil {
		r.alertTimer.Stop()
	}
	r.alertTimer = time.AfterFunc(r.cfg.AlertWindow, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.alertSeq == seq {
			r.alert = nil
		}
	})
}

// Snapshot 返回本地缓存的拷贝，调用方可随意读写。
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Products:   append([]model.Product(nil), r.products...),
		Categories: append([]model.Category(nil), r.categories...),
	}
	if r.status != nil {
		st := *r.status
		s.Status = &st
	}
	if r.alert != nil {
		al := *r.alert
		s.Alert = &al
	}
	return s
}
