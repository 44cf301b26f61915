package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"stockguard/internal/hub"
	"stockguard/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// listProducts 查询商品列表，支持 skip/limit 分页，默认最多 100 条。
func listProducts(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		if skip < 0 {
			skip = 0
		}
		if limit <= 0 || limit > 100 {
			limit = 100
		}

		var list []model.Product
		if err := db.Preload("Category").Offset(skip).Limit(limit).Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

// getProduct 按 ID 查询单个商品。
func getProduct(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var p model.Product
		if err := db.Preload("Category").First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "商品不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
	}
}

// createProduct 创建商品。
// 提交成功后：先广播 product_created，数量低于阈值时再补一条 alert（顺序不可颠倒）。
func createProduct(db *gorm.DB, em *emitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name              string  `json:"name" binding:"required"`
			Description       string  `json:"description"`
			Price             float64 `json:"price" binding:"min=0"`
			Quantity          int     `json:"quantity" binding:"min=0"`
			LowStockThreshold *int    `json:"low_stock_threshold" binding:"omitempty,min=0"`
			CategoryID        *uint   `json:"category_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		threshold := 5
		if req.LowStockThreshold != nil {
			threshold = *req.LowStockThreshold
		}
		if req.CategoryID != nil && !categoryExists(c, db, *req.CategoryID) {
			return
		}

		p := &model.Product{
			Name:              req.Name,
			Description:       req.Description,
			Price:             req.Price,
			Quantity:          req.Quantity,
			LowStockThreshold: threshold,
			CategoryID:        req.CategoryID,
		}
		if err := db.Create(p).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if err := db.Preload("Category").First(p, p.ID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}

		em.emit(c.Request.Context(), hub.TypeProductCreated, hub.NewProductEvent(hub.TypeProductCreated, *p))
		if p.Quantity < p.LowStockThreshold {
			em.emit(c.Request.Context(), hub.TypeAlert, hub.NewLowStockAlert(*p))
		}

		c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
	}
}

// updateProduct 部分更新：缺省字段保持原值。
func updateProduct(db *gorm.DB, em *emitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req struct {
			Name              *string  `json:"name" binding:"omitempty,min=1"`
			Description       *string  `json:"description"`
			Price             *float64 `json:"price" binding:"omitempty,min=0"`
			Quantity          *int     `json:"quantity" binding:"omitempty,min=0"`
			LowStockThreshold *int     `json:"low_stock_threshold" binding:"omitempty,min=0"`
			// RawMessage 区分"没传"和"显式 null"：null 表示解除分类关联。
			CategoryID json.RawMessage `json:"category_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		var p model.Product
		if err := db.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "商品不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}

		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if req.Price != nil {
			p.Price = *req.Price
		}
		if req.Quantity != nil {
			p.Quantity = *req.Quantity
		}
		if req.LowStockThreshold != nil {
			p.LowStockThreshold = *req.LowStockThreshold
		}
		if len(req.CategoryID) > 0 {
			if string(req.CategoryID) == "null" {
				p.CategoryID = nil
				p.Category = nil
			} else {
				var cid uint
				if err := json.Unmarshal(req.CategoryID, &cid); err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "category_id 无效"})
					return
				}
				if !categoryExists(c, db, cid) {
					return
				}
				p.CategoryID = &cid
			}
		}

		if err := db.Save(&p).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if err := db.Preload("Category").First(&p, p.ID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}

		em.emit(c.Request.Context(), hub.TypeProductUpdated, hub.NewProductEvent(hub.TypeProductUpdated, p))
		if p.Quantity < p.LowStockThreshold {
			em.emit(c.Request.Context(), hub.TypeAlert, hub.NewLowStockAlert(p))
		}

		c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
	}
}

// deleteProduct 删除商品并广播 product_deleted。
func deleteProduct(db *gorm.DB, em *emitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var p model.Product
		if err := db.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "商品不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if err := db.Delete(&p).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}

		em.emit(c.Request.Context(), hub.TypeProductDeleted, hub.NewProductDeleted(p.ID))

		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"deleted": p.ID}})
	}
}

// parseID 解析路径里的数字 ID，非法时直接写 400 响应。
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "ID 无效"})
		return 0, false
	}
	return uint(id), true
}

// categoryExists 校验分类外键；不存在或查询失败时写好响应并返回 false。
func categoryExists(c *gin.Context, db *gorm.DB, id uint) bool {
	var ct model.Category
	if err := db.First(&ct, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "分类不存在"})
			return false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
		return false
	}
	return true
}
