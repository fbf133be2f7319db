package events

import "fmt"

// OrderEvent 是订单成功落账后发布的事件。
// 下游消费者（KDS 推送、短信网关等）只依赖这个契约，不回写账本。
type OrderEvent struct {
	OrderID     string `json:"order_id"`
	BusinessID  string `json:"business_id"`
	OrderNumber int    `json:"order_number"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"total_amount"` // 分
}

// Validate 做最小字段校验，防止下游处理脏消息。
func (e OrderEvent) Validate() error {
	if e.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if e.BusinessID == "" {
		return fmt.Errorf("business_id is required")
	}
	if e.OrderNumber <= 0 {
		return fmt.Errorf("order_number must be > 0")
	}
	if e.Status == "" {
		return fmt.Errorf("status is required")
	}
	if e.TotalAmount < 0 {
		return fmt.Errorf("total_amount must be >= 0")
	}
	return nil
}
