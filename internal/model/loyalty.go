package model

import "time"

// LoyaltyCard 以 (business_id, customer_phone) 唯一。
// 首次消费时懒创建，采用 insert-if-absent，重复创建是 no-op 而不是错误。
type LoyaltyCard struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	BusinessID    string `gorm:"size:36;not null;uniqueIndex:idx_card_business_phone" json:"business_id"`
	CustomerPhone string `gorm:"size:32;not null;uniqueIndex:idx_card_business_phone" json:"customer_phone"`

	PointsBalance        int `gorm:"not null;default:0" json:"points_balance"`
	TotalRewardsRedeemed int `gorm:"not null;default:0" json:"total_rewards_redeemed"`
}

func (LoyaltyCard) TableName() string { return "loyalty_cards" }

// 积分流水类型。
const (
	LoyaltyPurchase   = "purchase"
	LoyaltyRedemption = "redemption"
	LoyaltyAdjustment = "adjustment"
)

// LoyaltyTransaction 记录一次积分变动。
// (order_id, transaction_type) 的唯一索引是重试提交的幂等锚点：
// 同一订单至多产生一条 purchase 流水。OrderID 为 NULL 的人工调整不受约束
// （SQLite 将 NULL 视为互不相等）。
type LoyaltyTransaction struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	CardID     uint    `gorm:"not null;index" json:"card_id"`
	BusinessID string  `gorm:"size:36;not null;index" json:"business_id"`
	OrderID    *string `gorm:"size:36;uniqueIndex:idx_loyalty_order_type" json:"order_id"`

	TransactionType string `gorm:"size:16;not null;uniqueIndex:idx_loyalty_order_type" json:"transaction_type"`
	Points          int    `gorm:"not null" json:"points"` // 有符号增量
}

func (LoyaltyTransaction) TableName() string { return "loyalty_transactions" }
