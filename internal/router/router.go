package router

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"coffee_pos/internal/config"
	"coffee_pos/internal/events"
	"coffee_pos/internal/kds"
	"coffee_pos/internal/ledger"
	"coffee_pos/internal/metrics"
	"coffee_pos/internal/middleware"
	"coffee_pos/internal/model"
	rediskey "coffee_pos/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

// handlers 聚合账本服务端的 HTTP 依赖。
type handlers struct {
	ledger *ledger.Ledger
	rdb    *rd.Client
	hub    *kds.Hub
	cfg    config.AppConfig
}

// Setup 装配账本服务端路由。
func Setup(l *ledger.Ledger, rdb *rd.Client, hub *kds.Hub, cfg config.AppConfig) *gin.Engine {
	h := &handlers{ledger: l, rdb: rdb, hub: hub, cfg: cfg}

	r := gin.Default()
	r.Use(middleware.SessionBusiness())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := r.Group("/api")
	{
		// 提交是唯一的订单写入口，单独挂限流
		api.POST("/orders/commit",
			middleware.RedisRateLimit(rdb, cfg.CommitRateLimit, cfg.CommitRateWindow),
			h.commitOrder)

		api.GET("/kds/orders", h.kdsOrders)
		api.GET("/orders/:id", h.getOrder)
		api.PATCH("/orders/:id/status", h.updateOrderStatus)
		api.PATCH("/orders/:id/items/:item_id/status", h.updateItemStatus)
		api.PATCH("/orders/:id/customer", h.updateCustomer)

		api.GET("/loyalty/:phone", h.loyaltyBalance)
		api.POST("/loyalty/:phone/redeem", h.loyaltyRedeem)
		api.POST("/loyalty/:phone/adjust", h.loyaltyAdjust)

		api.GET("/inventory", h.listInventory)
		api.GET("/inventory/stock/:id", h.stockMirror)
		api.POST("/inventory/preload/:id", h.preloadStock)
	}

	if hub != nil {
		r.GET("/ws/kds", hub.HandleWS)
	}

	return r
}

// commitRequest 是提交接口的线上载荷。edit_mode 区分新建与编辑两个变体。
type commitRequest struct {
	OrderID    string `json:"order_id"`
	BusinessID string `json:"business_id"`

	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`

	Items         []ledger.OrderLine `json:"items"`
	IsPaid        bool               `json:"is_paid"`
	PaymentMethod string             `json:"payment_method"`
	FinalTotal    *int64             `json:"final_total"`
	LoyaltyPoints int                `json:"loyalty_points"`
	QuickOrder    bool               `json:"quick_order"`

	EditMode      bool  `json:"edit_mode"`
	Refund        bool  `json:"refund"`
	PreviousTotal int64 `json:"previous_total"`
}

func (h *handlers) commitOrder(c *gin.Context) {
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid payload: " + err.Error()})
		return
	}
	session := middleware.SessionBusinessID(c)

	var (
		res ledger.CommitResult
		err error
	)
	if req.EditMode {
		res, err = h.ledger.CommitEdit(c.Request.Context(), ledger.EditOrder{
			OrderID:           req.OrderID,
			BusinessID:        req.BusinessID,
			SessionBusinessID: session,
			Items:             req.Items,
			IsPaid:            req.IsPaid,
			PaymentMethod:     req.PaymentMethod,
			FinalTotal:        req.FinalTotal,
			Refund:            req.Refund,
			PreviousTotal:     req.PreviousTotal,
		}, h.cfg.DefaultBusinessID)
	} else {
		res, err = h.ledger.CommitCreate(c.Request.Context(), ledger.CreateOrder{
			OrderID:           req.OrderID,
			BusinessID:        req.BusinessID,
			SessionBusinessID: session,
			CustomerName:      req.CustomerName,
			CustomerPhone:     req.CustomerPhone,
			Items:             req.Items,
			IsPaid:            req.IsPaid,
			PaymentMethod:     req.PaymentMethod,
			FinalTotal:        req.FinalTotal,
			LoyaltyPoints:     req.LoyaltyPoints,
			QuickOrder:        req.QuickOrder,
		}, h.cfg.DefaultBusinessID)
	}

	switch {
	case err == nil:
		if req.EditMode {
			metrics.CommitsTotal.WithLabelValues("edited").Inc()
		} else {
			metrics.CommitsTotal.WithLabelValues("created").Inc()
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": res})

	case errors.Is(err, ledger.ErrDuplicateOrder):
		// 409 是回放终端的对账信号：订单早就提交成功了
		metrics.CommitsTotal.WithLabelValues("duplicate").Inc()
		metrics.DuplicateConflictsTotal.Inc()
		c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "order already exists"})

	case errors.Is(err, ledger.ErrBusinessUnresolved):
		metrics.CommitsTotal.WithLabelValues("error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "business id unresolved"})

	case errors.Is(err, ledger.ErrEmptyOrder):
		metrics.CommitsTotal.WithLabelValues("error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "order has no items"})

	case errors.Is(err, ledger.ErrOrderNotFound):
		metrics.CommitsTotal.WithLabelValues("error").Inc()
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "order not found"})

	case errors.Is(err, ledger.ErrOrderTerminal):
		metrics.CommitsTotal.WithLabelValues("error").Inc()
		c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "order is in a terminal status"})

	default:
		metrics.CommitsTotal.WithLabelValues("error").Inc()
		log.Printf("router: commit order=%s: %v", req.OrderID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "commit failed"})
	}
}

// requestBusinessID：读路径的租户取 query 参数，缺省回落到会话与配置默认值。
func (h *handlers) requestBusinessID(c *gin.Context) string {
	if id := c.Query("business_id"); id != "" {
		return id
	}
	if id := middleware.SessionBusinessID(c); id != "" {
		return id
	}
	return h.cfg.DefaultBusinessID
}

func (h *handlers) kdsOrders(c *gin.Context) {
	businessID := h.requestBusinessID(c)
	if businessID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "business id unresolved"})
		return
	}

	orders, err := h.ledger.KDSOrders(c.Request.Context(), businessID, c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": orders})
}

func (h *handlers) getOrder(c *gin.Context) {
	businessID := h.requestBusinessID(c)
	order, err := h.ledger.GetOrder(c.Request.Context(), businessID, c.Param("id"))
	if err != nil {
		if errors.Is(err, ledger.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": order})
}

func (h *handlers) updateOrderStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "status is required"})
		return
	}

	order, err := h.ledger.UpdateOrderStatus(c.Request.Context(), h.requestBusinessID(c), c.Param("id"), req.Status)
	if err != nil {
		h.writeStatusError(c, err)
		return
	}
	if h.hub != nil {
		h.hub.Broadcast(orderEventOf(order))
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": order})
}

// orderEventOf 把状态变更折叠成推送事件，KDS 屏收到后局部刷新。
func orderEventOf(o model.Order) events.OrderEvent {
	return events.OrderEvent{
		OrderID:     o.ID,
		BusinessID:  o.BusinessID,
		OrderNumber: o.OrderNumber,
		Status:      o.OrderStatus,
		TotalAmount: o.TotalAmount,
	}
}

func (h *handlers) updateItemStatus(c *gin.Context) {
	itemID, err := strconv.ParseUint(c.Param("item_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid item id"})
		return
	}

	var req struct {
		Status         string `json:"status"`
		EarlyDelivered *bool  `json:"early_delivered"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid payload"})
		return
	}

	item, err := h.ledger.UpdateItemStatus(c.Request.Context(),
		h.requestBusinessID(c), c.Param("id"), uint(itemID), req.Status, req.EarlyDelivered)
	if err != nil {
		h.writeStatusError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": item})
}

func (h *handlers) updateCustomer(c *gin.Context) {
	var req struct {
		CustomerName  string `json:"customer_name"`
		CustomerPhone string `json:"customer_phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid payload"})
		return
	}

	err := h.ledger.UpdateCustomer(c.Request.Context(),
		h.requestBusinessID(c), c.Param("id"), req.CustomerName, req.CustomerPhone)
	if err != nil {
		if errors.Is(err, ledger.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok"})
}

func (h *handlers) writeStatusError(c *gin.Context, err error) {
	var invalid model.ErrInvalidTransition
	switch {
	case errors.Is(err, ledger.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "order not found"})
	case errors.As(err, &invalid):
		c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": invalid.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "update failed"})
	}
}

func (h *handlers) loyaltyBalance(c *gin.Context) {
	card, err := h.ledger.Balance(c.Request.Context(), h.requestBusinessID(c), c.Param("phone"))
	if err != nil {
		if errors.Is(err, ledger.ErrCardNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "loyalty card not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": card})
}

func (h *handlers) loyaltyRedeem(c *gin.Context) {
	var req struct {
		Points int `json:"points" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "points is required"})
		return
	}

	card, err := h.ledger.Redeem(c.Request.Context(), h.requestBusinessID(c), c.Param("phone"), req.Points)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": card})
	case errors.Is(err, ledger.ErrCardNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "loyalty card not found"})
	case errors.Is(err, ledger.ErrInsufficientPoints):
		c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "insufficient loyalty points"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
	}
}

func (h *handlers) loyaltyAdjust(c *gin.Context) {
	var req struct {
		Delta int `json:"delta"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid payload"})
		return
	}

	card, err := h.ledger.Adjust(c.Request.Context(), h.requestBusinessID(c), c.Param("phone"), req.Delta)
	if err != nil {
		if errors.Is(err, ledger.ErrCardNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "loyalty card not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "adjust failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": card})
}

func (h *handlers) listInventory(c *gin.Context) {
	businessID := h.requestBusinessID(c)
	if businessID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "business id unresolved"})
		return
	}

	items, err := h.ledger.Inventory(c.Request.Context(), businessID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": items})
}

// stockMirror 先读 Redis 镜像，未预热时回源数据库。KDS 面板轮询走这里。
func (h *handlers) stockMirror(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid inventory item id"})
		return
	}
	businessID := h.requestBusinessID(c)

	stock, found, err := rediskey.GetStock(c.Request.Context(), h.rdb, businessID, uint(id))
	if err == nil && found {
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": gin.H{
			"inventory_item_id": id, "current_stock": stock, "source": "cache",
		}})
		return
	}

	item, dbErr := h.ledger.InventoryItemByID(c.Request.Context(), businessID, uint(id))
	if dbErr != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "inventory item not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": gin.H{
		"inventory_item_id": id, "current_stock": item.CurrentStock, "source": "db",
	}})
}

// preloadStock 把数据库权威库存刷进 Redis 镜像，带管理员令牌保护。
func (h *handlers) preloadStock(c *gin.Context) {
	if c.GetHeader("X-Admin-Token") != h.cfg.PreloadAdminToken {
		c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "unauthorized"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid inventory item id"})
		return
	}
	businessID := h.requestBusinessID(c)

	item, err := h.ledger.InventoryItemByID(c.Request.Context(), businessID, uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "inventory item not found"})
		return
	}

	if err := rediskey.PreloadStock(c.Request.Context(), h.rdb, businessID, uint(id), item.CurrentStock, h.cfg.StockCacheTTL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "preload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": gin.H{
		"inventory_item_id": id, "current_stock": item.CurrentStock,
	}})
}
