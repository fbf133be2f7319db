package ledger

import (
	"context"
	"fmt"
	"log"

	"coffee_pos/internal/events"
	"coffee_pos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderLine 是提交载荷里的一行：目录引用 + 冻结价格 + 配料。
type OrderLine struct {
	MenuItemID uint               `json:"menu_item_id"`
	Name       string             `json:"name"`
	Quantity   int                `json:"quantity"`
	Price      int64              `json:"price"` // 下单时刻的单价，单位分
	Modifiers  model.ModifierList `json:"modifiers"`
	Notes      string             `json:"notes"`
	CourseStage int               `json:"course_stage"`
	ItemStatus string             `json:"item_status"` // 留空默认 in_progress
}

// CreateOrder 与 EditOrder 是提交操作的两个变体。
// 拆成两个结构体而不是一堆可选字段，编辑专用参数（previous_total、refund）
// 就不可能被误带进新建请求里。
type CreateOrder struct {
	// OrderID 由终端生成（uuid）；留空时服务端生成。
	// 回放重试同一逻辑订单时靠它挡重。
	OrderID string

	BusinessID        string // 显式租户参数
	SessionBusinessID string // 会话解析出的租户

	CustomerName  string
	CustomerPhone string

	Items         []OrderLine
	IsPaid        bool
	PaymentMethod string

	// FinalTotal 为客户端已应用折扣后的最终总额；nil 时按行求和。
	FinalTotal *int64

	// LoyaltyPoints > 0 时直接采用；否则按可计分行数量推导。
	LoyaltyPoints int

	// QuickOrder 且无客户名时，用门店流水号合成展示名（"#12"）。
	QuickOrder bool
}

type EditOrder struct {
	OrderID string

	BusinessID        string
	SessionBusinessID string

	Items         []OrderLine
	IsPaid        bool
	PaymentMethod string
	FinalTotal    *int64

	// Refund 时 refund_amount = PreviousTotal - 新总额（钳制在 [0, PreviousTotal]）。
	// PreviousTotal 由调用方提供而不是现场重算，避免与客户端视图漂移。
	Refund        bool
	PreviousTotal int64
}

// CommitResult 是提交操作的出参。
type CommitResult struct {
	OrderID            string `json:"order_id"`
	OrderNumber        int    `json:"order_number"`
	LoyaltyPointsAdded int    `json:"loyalty_points_added"`
}

// CommitCreate 新建一笔订单：插订单与订单行、计积分、扣库存，一个事务内完成。
// 任何一步失败整体回滚，账本上不会留下半笔订单。
func (l *Ledger) CommitCreate(ctx context.Context, req CreateOrder, defaultBusinessID string) (CommitResult, error) {
	businessID, err := resolveBusinessID(req.BusinessID, req.SessionBusinessID, defaultBusinessID)
	if err != nil {
		return CommitResult{}, err
	}
	if len(req.Items) == 0 {
		return CommitResult{}, ErrEmptyOrder
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = uuid.New().String()
	}

	total := orderTotal(req.FinalTotal, req.Items)

	var (
		orderNumber int
		awarded     int
		deducted    []deduction
	)

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := nextOrderNumber(tx, businessID)
		if err != nil {
			return fmt.Errorf("allocate order number: %w", err)
		}
		orderNumber = number

		name := req.CustomerName
		if req.QuickOrder && name == "" {
			name = fmt.Sprintf("#%d", number)
		}

		order := model.Order{
			ID:            orderID,
			BusinessID:    businessID,
			OrderNumber:   number,
			CustomerName:  name,
			CustomerPhone: req.CustomerPhone,
			OrderStatus:   model.StatusInProgress,
			IsPaid:        req.IsPaid,
			PaymentMethod: req.PaymentMethod,
			TotalAmount:   total,
		}
		if err := tx.Create(&order).Error; err != nil {
			if errorsLikeUnique(err) {
				return ErrDuplicateOrder
			}
			return fmt.Errorf("insert order: %w", err)
		}

		points := req.LoyaltyPoints
		if points <= 0 {
			points = eligiblePointCount(req.Items)
		}
		if req.CustomerPhone != "" && points > 0 {
			awarded, err = accrueLoyalty(tx, businessID, req.CustomerPhone, orderID, points)
			if err != nil {
				return fmt.Errorf("accrue loyalty: %w", err)
			}
		}

		if err := insertItems(tx, businessID, orderID, req.Items); err != nil {
			return err
		}

		deducted, err = deductInventory(tx, businessID, req.Items, l.subs)
		if err != nil {
			return fmt.Errorf("deduct inventory: %w", err)
		}
		return nil
	})
	if err != nil {
		return CommitResult{}, err
	}

	l.afterCreate(ctx, businessID, orderID, orderNumber, total, deducted)

	return CommitResult{OrderID: orderID, OrderNumber: orderNumber, LoyaltyPointsAdded: awarded}, nil
}

// CommitEdit 更新既有订单的总额与支付/退款标记，并替换订单行。
// 绝不重跑库存扣减和积分累计。
func (l *Ledger) CommitEdit(ctx context.Context, req EditOrder, defaultBusinessID string) (CommitResult, error) {
	businessID, err := resolveBusinessID(req.BusinessID, req.SessionBusinessID, defaultBusinessID)
	if err != nil {
		return CommitResult{}, err
	}
	if req.OrderID == "" {
		return CommitResult{}, ErrOrderNotFound
	}

	total := orderTotal(req.FinalTotal, req.Items)

	var orderNumber int
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		if err := tx.Where("id = ? AND business_id = ?", req.OrderID, businessID).First(&order).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrOrderNotFound
			}
			return err
		}
		if model.IsTerminalStatus(order.OrderStatus) {
			return ErrOrderTerminal
		}
		orderNumber = order.OrderNumber

		var refund int64
		if req.Refund {
			refund = req.PreviousTotal - total
			if refund < 0 {
				refund = 0
			}
			if refund > req.PreviousTotal {
				refund = req.PreviousTotal
			}
		}

		if err := tx.Model(&order).Updates(map[string]interface{}{
			"total_amount":   total,
			"is_paid":        req.IsPaid,
			"payment_method": req.PaymentMethod,
			"is_refund":      req.Refund,
			"refund_amount":  refund,
		}).Error; err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		// 原始实现把整单行集重新下发，这里在同一事务里替换非取消行，
		// 保证总额与行集的对账不依赖客户端清理。
		if len(req.Items) > 0 {
			if err := tx.Where("order_id = ? AND item_status <> ?", req.OrderID, model.StatusCancelled).
				Delete(&model.OrderItem{}).Error; err != nil {
				return fmt.Errorf("clear items: %w", err)
			}
			if err := insertItems(tx, businessID, req.OrderID, req.Items); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return CommitResult{}, err
	}

	return CommitResult{OrderID: req.OrderID, OrderNumber: orderNumber}, nil
}

// orderTotal：显式最终总额优先，否则按 冻结单价 × 数量 求和。
func orderTotal(finalTotal *int64, items []OrderLine) int64 {
	if finalTotal != nil {
		return *finalTotal
	}
	var sum int64
	for _, line := range items {
		sum += line.Price * int64(line.Quantity)
	}
	return sum
}

// eligiblePointCount 推导积分：价格为正的非取消行，按数量计一分。
func eligiblePointCount(items []OrderLine) int {
	count := 0
	for _, line := range items {
		if line.ItemStatus == model.StatusCancelled {
			continue
		}
		if line.Price > 0 {
			count += line.Quantity
		}
	}
	return count
}

func insertItems(tx *gorm.DB, businessID, orderID string, items []OrderLine) error {
	for _, line := range items {
		status := line.ItemStatus
		if status == "" {
			status = model.StatusInProgress
		}
		stage := line.CourseStage
		if stage <= 0 {
			stage = 1
		}
		item := model.OrderItem{
			OrderID:     orderID,
			BusinessID:  businessID,
			MenuItemID:  line.MenuItemID,
			Name:        line.Name,
			Quantity:    line.Quantity,
			Price:       line.Price,
			Modifiers:   line.Modifiers,
			ItemStatus:  status,
			CourseStage: stage,
			Notes:       line.Notes,
		}
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// afterCreate 执行事务外的尽力而为副作用：库存镜像同步与订单事件发布。
// 两者失败都只记日志，不影响已落库的提交。
func (l *Ledger) afterCreate(ctx context.Context, businessID, orderID string, orderNumber int, total int64, deducted []deduction) {
	if l.mirror != nil {
		for _, d := range deducted {
			if err := l.mirror.Deduct(ctx, businessID, d.InventoryItemID, d.Quantity); err != nil {
				log.Printf("ledger: stock mirror deduct item=%d: %v", d.InventoryItemID, err)
			}
		}
	}
	if l.outbox != nil {
		ev := events.OrderEvent{
			OrderID:     orderID,
			BusinessID:  businessID,
			OrderNumber: orderNumber,
			Status:      model.StatusInProgress,
			TotalAmount: total,
		}
		if err := l.outbox.Publish(ctx, ev); err != nil {
			log.Printf("ledger: publish order event order=%s: %v", orderID, err)
		}
	}
}
