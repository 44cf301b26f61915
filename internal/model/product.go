package model

import (
	"time"

	"gorm.io/gorm"
)

// Product 库存商品：名称、价格、在库数量与低库存阈值。
type Product struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name        string  `gorm:"size:128;not null" json:"name"`
	Description string  `gorm:"size:512" json:"description,omitempty"`
	Price       float64 `gorm:"not null;default:0" json:"price"`
	Quantity    int     `gorm:"not null;default:0" json:"quantity"`
	// Quantity 低于该阈值时，写操作会额外广播一条 alert。
	LowStockThreshold int `gorm:"not null;default:5" json:"low_stock_threshold"`

	// 分类为可选外键；分类被删除时该引用置空（detach，不级联删除商品）。
	CategoryID *uint     `gorm:"index" json:"category_id,omitempty"`
	Category   *Category `json:"category,omitempty"`
}

func (Product) TableName() string { return "products" }
