package router

import (
	"errors"
	"net/http"

	"coffee_pos/internal/localstore"
	"coffee_pos/internal/model"
	possync "coffee_pos/internal/sync"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// terminalHandlers 聚合收银终端进程的本地依赖。
// 终端只写本地缓存，远端账本由 Sweeper 异步对账。
type terminalHandlers struct {
	store      *localstore.Store
	sweeper    *possync.Sweeper
	businessID string
}

// SetupTerminal 装配终端本地 API。
func SetupTerminal(store *localstore.Store, sweeper *possync.Sweeper, businessID string) *gin.Engine {
	h := &terminalHandlers{store: store, sweeper: sweeper, businessID: businessID}

	r := gin.Default()
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := r.Group("/api/local")
	{
		api.POST("/orders", h.createOrder)
		api.GET("/orders", h.listOrders)
		api.GET("/orders/:id", h.getOrder)
		api.PATCH("/orders/:id/status", h.updateStatus)

		api.GET("/sync/status", h.syncStatus)
		api.POST("/sync/run", h.runSync)
	}

	return r
}

type localOrderRequest struct {
	OrderID       string `json:"order_id"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	IsPaid        bool   `json:"is_paid"`
	PaymentMethod string `json:"payment_method"`
	Items         []struct {
		MenuItemID  uint               `json:"menu_item_id"`
		Name        string             `json:"name"`
		Quantity    int                `json:"quantity"`
		Price       int64              `json:"price"`
		Modifiers   model.ModifierList `json:"modifiers"`
		Notes       string             `json:"notes"`
		CourseStage int                `json:"course_stage"`
	} `json:"items" binding:"required"`
}

// createOrder 乐观写入本地缓存：立即返回、立即可见，同步交给 Sweeper。
func (h *terminalHandlers) createOrder(c *gin.Context) {
	var req localOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid payload: " + err.Error()})
		return
	}
	if len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "order has no items"})
		return
	}

	items := make([]localstore.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, localstore.Item{
			MenuItemID:  it.MenuItemID,
			Name:        it.Name,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Modifiers:   it.Modifiers,
			Notes:       it.Notes,
			CourseStage: it.CourseStage,
		})
	}

	order, err := h.store.CreateOrder(c.Request.Context(), localstore.Order{
		ID:            req.OrderID,
		BusinessID:    h.businessID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		IsPaid:        req.IsPaid,
		PaymentMethod: req.PaymentMethod,
	}, items)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "create failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": order})
}

func (h *terminalHandlers) listOrders(c *gin.Context) {
	orders, err := h.store.Orders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": orders})
}

func (h *terminalHandlers) getOrder(c *gin.Context) {
	items, err := h.store.Items(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": items})
}

func (h *terminalHandlers) updateStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "status is required"})
		return
	}

	order, err := h.store.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		var invalid model.ErrInvalidTransition
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "order not found"})
		case errors.As(err, &invalid):
			c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": invalid.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "update failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": order})
}

// syncStatus 给收银界面的同步角标用：待同步多少笔、卡住多少笔。
func (h *terminalHandlers) syncStatus(c *gin.Context) {
	pending, err := h.store.Pending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": gin.H{
		"pending": len(pending),
		"orders":  pending,
	}})
}

// runSync 手动触发一轮回放（收银员点"立即同步"按钮）。
// 正在跑的一轮不会被打断，单飞逻辑在 Sweeper 内部。
func (h *terminalHandlers) runSync(c *gin.Context) {
	synced := h.sweeper.SweepOnce(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": gin.H{"synced": synced}})
}
