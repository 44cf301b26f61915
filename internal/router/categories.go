package router

import (
	"errors"
	"net/http"

	"stockguard/internal/hub"
	"stockguard/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// listCategories 查询全部分类。
func listCategories(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var list []model.Category
		if err := db.Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

// getCategory 按 ID 查询单个分类。
func getCategory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var ct model.Category
		if err := db.First(&ct, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "分类不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": ct})
	}
}

// createCategory 创建分类并广播 category_created。
func createCategory(db *gorm.DB, em *emitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name        string `json:"name" binding:"required"`
			Description string `json:"description"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		ct := &model.Category{Name: req.Name, Description: req.Description}
		if err := db.Create(ct).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}

		em.emit(c.Request.Context(), hub.TypeCategoryCreated, hub.NewCategoryEvent(hub.TypeCategoryCreated, *ct))

		c.JSON(http.StatusOK, gin.H{"code": 0, "data": ct})
	}
}

// updateCategory 部分更新分类。
func updateCategory(db *gorm.DB, em *emitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req struct {
			Name        *string `json:"name" binding:"omitempty,min=1"`
			Description *string `json:"description"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		var ct model.Category
		if err := db.First(&ct, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "分类不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}

		if req.Name != nil {
			ct.Name = *req.Name
		}
		if req.Description != nil {
			ct.Description = *req.Description
		}

		if err := db.Save(&ct).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}

		em.emit(c.Request.Context(), hub.TypeCategoryUpdated, hub.NewCategoryEvent(hub.TypeCategoryUpdated, ct))

		c.JSON(http.StatusOK, gin.H{"code": 0, "data": ct})
	}
}

// deleteCategory 删除分类：先把引用它的商品 category_id 置空（detach），
// 再删分类，最后广播 category_deleted。客户端收到后做同样的级联清理。
func deleteCategory(db *gorm.DB, em *emitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var ct model.Category
		if err := db.First(&ct, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "分类不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&model.Product{}).
				Where("category_id = ?", ct.ID).
				Update("category_id", nil).Error; err != nil {
				return err
			}
			return tx.Delete(&ct).Error
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}

		em.emit(c.Request.Context(), hub.TypeCategoryDeleted, hub.NewCategoryDeleted(ct.ID))

		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"deleted": ct.ID}})
	}
}
