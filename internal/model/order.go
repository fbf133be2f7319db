package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Order 是共享账本中的一笔订单。
// ID 由终端生成（uuid），同一逻辑订单重试提交时靠主键唯一约束挡重。
type Order struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	BusinessID  string `gorm:"size:36;not null;index" json:"business_id"`
	OrderNumber int    `gorm:"not null;index" json:"order_number"` // 租户内自增的门店流水号

	CustomerName  string `gorm:"size:128" json:"customer_name"`
	CustomerPhone string `gorm:"size:32;index" json:"customer_phone"`

	OrderStatus   string `gorm:"size:16;not null" json:"order_status"`
	IsPaid        bool   `gorm:"not null;default:false" json:"is_paid"`
	PaymentMethod string `gorm:"size:16" json:"payment_method"`
	TotalAmount   int64  `gorm:"not null" json:"total_amount"` // 单位：分
	IsRefund      bool   `gorm:"not null;default:false" json:"is_refund"`
	RefundAmount  int64  `gorm:"not null;default:0" json:"refund_amount"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

func (Order) TableName() string { return "orders" }

// OrderItem 是订单行，价格在下单时刻冻结，不随菜单后续改价变化。
type OrderItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OrderID    string `gorm:"size:36;not null;index" json:"order_id"`
	BusinessID string `gorm:"size:36;not null;index" json:"business_id"`
	MenuItemID uint   `gorm:"not null;index" json:"menu_item_id"`

	Name      string       `gorm:"size:128" json:"name"`
	Quantity  int          `gorm:"not null;default:1" json:"quantity"`
	Price     int64        `gorm:"not null" json:"price"` // 冻结单价，单位分
	Modifiers ModifierList `gorm:"type:text" json:"modifiers"`

	ItemStatus     string `gorm:"size:16;not null" json:"item_status"`
	EarlyDelivered bool   `gorm:"not null;default:false" json:"early_delivered"`
	CourseStage    int    `gorm:"not null;default:1" json:"course_stage"` // 仅用于 KDS 展示分组
	Notes          string `gorm:"size:255" json:"notes"`
}

func (OrderItem) TableName() string { return "order_items" }

// Subtotal 返回该行金额（单价 + 配料差价）× 数量。
func (i OrderItem) Subtotal() int64 {
	unit := i.Price
	for _, m := range i.Modifiers {
		unit += m.Price
	}
	return unit * int64(i.Quantity)
}

// Modifier 是一条菜单定义的配料/做法修改，带自身差价。
type Modifier struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// ModifierList 以 JSON 文本落库，避免为配料单开关联表。
type ModifierList []Modifier

// Value 序列化为 JSON 字符串供存储。
func (l ModifierList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 从数据库值反序列化。
func (l *ModifierList) Scan(value interface{}) error {
	if value == nil {
		*l = ModifierList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.New("unsupported type for ModifierList")
	}
}

// OrderCounter 维护每个租户的门店流水号。
// 在提交事务内用 UPDATE ... next_number + 1 的方式取号，避免并发撞号。
type OrderCounter struct {
	BusinessID string `gorm:"primaryKey;size:36"`
	NextNumber int    `gorm:"not null;default:0"`
}

func (OrderCounter) TableName() string { return "order_counters" }
