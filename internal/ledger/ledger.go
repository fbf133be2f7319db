package ledger

import (
	"context"
	"errors"
	"strings"

	"coffee_pos/internal/events"
	"coffee_pos/internal/model"

	"gorm.io/gorm"
)

// 提交路径的哨兵错误。
var (
	// ErrDuplicateOrder：订单 id 已存在于账本。对回放中的终端而言这证明
	// 上一次未确认的提交其实已成功，应当视为成功而不是失败。
	ErrDuplicateOrder = errors.New("order already exists")

	// ErrBusinessUnresolved：显式参数、会话、配置默认值都没能给出租户。
	// 宁可失败也不能把订单挂到错误的租户上。
	ErrBusinessUnresolved = errors.New("business id unresolved")

	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderTerminal：终态订单只读，编辑请求被拒绝。
	ErrOrderTerminal = errors.New("order is in a terminal status")

	ErrEmptyOrder = errors.New("order has no items")
)

// Outbox 在提交成功后接收订单事件。发布失败不回滚提交。
type Outbox interface {
	Publish(ctx context.Context, ev events.OrderEvent) error
}

// StockMirror 把账本内的库存扣减同步到缓存镜像（尽力而为）。
type StockMirror interface {
	Deduct(ctx context.Context, businessID string, inventoryItemID uint, quantity float64) error
}

// Ledger 是共享账本的唯一订单写入口。
// 所有副作用（积分、库存）都在同一个数据库事务内完成。
type Ledger struct {
	db     *gorm.DB
	subs   SubstituteRules
	outbox Outbox
	mirror StockMirror
}

// Option 配置可选协作方。
type Option func(*Ledger)

// WithOutbox 挂接订单事件 outbox。
func WithOutbox(o Outbox) Option {
	return func(l *Ledger) { l.outbox = o }
}

// WithStockMirror 挂接库存镜像。
func WithStockMirror(m StockMirror) Option {
	return func(l *Ledger) { l.mirror = m }
}

// WithSubstituteRules 挂接配料替代扣减规则。
func WithSubstituteRules(rules SubstituteRules) Option {
	return func(l *Ledger) { l.subs = rules }
}

func New(db *gorm.DB, opts ...Option) *Ledger {
	l := &Ledger{db: db}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AutoMigrate 建齐账本侧全部表。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Order{},
		&model.OrderItem{},
		&model.OrderCounter{},
		&model.LoyaltyCard{},
		&model.LoyaltyTransaction{},
		&model.MenuItem{},
		&model.InventoryItem{},
		&model.Recipe{},
		&model.RecipeIngredient{},
	)
}

// resolveBusinessID 按 显式参数 → 会话租户 → 配置默认值 的顺序解析。
// defaultID 来自启动时注入的配置；三者皆空是硬错误。
func resolveBusinessID(explicit, session, defaultID string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if session != "" {
		return session, nil
	}
	if defaultID != "" {
		return defaultID, nil
	}
	return "", ErrBusinessUnresolved
}

// errorsLikeUnique：SQLite/驱动层的唯一约束冲突没有统一错误类型，按文本识别。
func errorsLikeUnique(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique")
}

// nextOrderNumber 在事务内为租户取下一个门店流水号。
// 先原子自增，首次遇到该租户再补计数行；并发初始化撞唯一键时退回自增路径。
func nextOrderNumber(tx *gorm.DB, businessID string) (int, error) {
	res := tx.Model(&model.OrderCounter{}).
		Where("business_id = ?", businessID).
		UpdateColumn("next_number", gorm.Expr("next_number + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		err := tx.Create(&model.OrderCounter{BusinessID: businessID, NextNumber: 1}).Error
		if err != nil {
			if !errorsLikeUnique(err) {
				return 0, err
			}
			if err := tx.Model(&model.OrderCounter{}).
				Where("business_id = ?", businessID).
				UpdateColumn("next_number", gorm.Expr("next_number + 1")).Error; err != nil {
				return 0, err
			}
		}
	}

	var c model.OrderCounter
	if err := tx.Where("business_id = ?", businessID).First(&c).Error; err != nil {
		return 0, err
	}
	return c.NextNumber, nil
}
