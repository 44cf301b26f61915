package hub

import (
	"fmt"
	"time"

	"stockguard/internal/model"
)

// 事件信封类型判别值。客户端靠 type 字段分发，未知类型直接忽略。
const (
	TypeStatus          = "status"
	TypeAlert           = "alert"
	TypeProductCreated  = "product_created"
	TypeProductUpdated  = "product_updated"
	TypeProductDeleted  = "product_deleted"
	TypeCategoryCreated = "category_created"
	TypeCategoryUpdated = "category_updated"
	TypeCategoryDeleted = "category_deleted"
)

// StatusLabel 是心跳信封里的固定状态标签。
const StatusLabel = "Online"

// StatusEnvelope 服务器状态心跳，定时广播，不落库。
type StatusEnvelope struct {
	Type             string `json:"type"`
	Timestamp        string `json:"timestamp"`
	Status           string `json:"status"`
	ConnectedClients int    `json:"connected_clients"`
}

// AlertEnvelope 低库存预警。product 字段是商品名（非对象），与 product_* 信封不同。
type AlertEnvelope struct {
	Type    string `json:"type"`
	Product string `json:"product"`
	Message string `json:"message"`
}

// ProductEnvelope 承载 product_created / product_updated 的完整商品对象。
type ProductEnvelope struct {
	Type    string        `json:"type"`
	Product model.Product `json:"product"`
}

// ProductDeletedEnvelope 删除事件只带 id，本地多余字段由客户端自行清理。
type ProductDeletedEnvelope struct {
	Type      string `json:"type"`
	ProductID uint   `json:"product_id"`
}

// CategoryEnvelope 承载 category_created / category_updated 的完整分类对象。
type CategoryEnvelope struct {
	Type     string         `json:"type"`
	Category model.Category `json:"category"`
}

// CategoryDeletedEnvelope 分类删除事件；客户端需同步清空受影响商品的分类引用。
type CategoryDeletedEnvelope struct {
	Type       string `json:"type"`
	CategoryID uint   `json:"category_id"`
}

// NewStatus 构造当前时刻的状态心跳。
func NewStatus(connected int) StatusEnvelope {
	return StatusEnvelope{
		Type:             TypeStatus,
		Timestamp:        time.Now().Format(time.RFC3339),
		Status:           StatusLabel,
		ConnectedClients: connected,
	}
}

// NewLowStockAlert 构造低库存预警信封。
func NewLowStockAlert(p model.Product) AlertEnvelope {
	return AlertEnvelope{
		Type:    TypeAlert,
		Product: p.Name,
		Message: fmt.Sprintf("低库存预警：%s（当前数量 %d，阈值 %d）", p.Name, p.Quantity, p.LowStockThreshold),
	}
}

// NewProductEvent 构造商品创建/更新信封。typ 必须是 TypeProductCreated 或 TypeProductUpdated。
func NewProductEvent(typ string, p model.Product) ProductEnvelope {
	return ProductEnvelope{Type: typ, Product: p}
}

// NewProductDeleted 构造商品删除信封。
func NewProductDeleted(id uint) ProductDeletedEnvelope {
	return ProductDeletedEnvelope{Type: TypeProductDeleted, ProductID: id}
}

// NewCategoryEvent 构造分类创建/更新信封。
func NewCategoryEvent(typ string, ct model.Category) CategoryEnvelope {
	return CategoryEnvelope{Type: typ, Category: ct}
}

// NewCategoryDeleted 构造分类删除信封。
func NewCategoryDeleted(id uint) CategoryDeletedEnvelope {
	return CategoryDeletedEnvelope{Type: TypeCategoryDeleted, CategoryID: id}
}
