package localstore

import (
	"context"
	"fmt"
	"time"

	"coffee_pos/internal/model"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Order 是终端本地缓存里的订单。
// 写入后立刻对本地 UI 可见（乐观写入），pending_sync 标记它尚未确认落入远端账本。
// sync_attempts/last_sync_error 支撑回放的可观测与失败升级。
type Order struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	BusinessID    string `gorm:"size:36;not null;index" json:"business_id"`
	CustomerName  string `gorm:"size:128" json:"customer_name"`
	CustomerPhone string `gorm:"size:32" json:"customer_phone"`

	OrderStatus   string `gorm:"size:16;not null" json:"order_status"`
	IsPaid        bool   `gorm:"not null;default:true" json:"is_paid"`
	PaymentMethod string `gorm:"size:16" json:"payment_method"`
	TotalAmount   int64  `gorm:"not null" json:"total_amount"`

	PendingSync   bool   `gorm:"not null;default:true;index" json:"pending_sync"`
	SyncAttempts  int    `gorm:"not null;default:0" json:"sync_attempts"`
	LastSyncError string `gorm:"size:255" json:"last_sync_error"`

	// RemoteNumber 是同步成功后远端分配的门店流水号。
	RemoteNumber int `gorm:"not null;default:0" json:"remote_number"`
}

func (Order) TableName() string { return "local_orders" }

// Item 是本地缓存里的订单行，字段与账本订单行对齐。
type Item struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OrderID    string `gorm:"size:36;not null;index" json:"order_id"`
	MenuItemID uint   `gorm:"not null" json:"menu_item_id"`

	Name      string             `gorm:"size:128" json:"name"`
	Quantity  int                `gorm:"not null;default:1" json:"quantity"`
	Price     int64              `gorm:"not null" json:"price"`
	Modifiers model.ModifierList `gorm:"type:text" json:"modifiers"`

	ItemStatus  string `gorm:"size:16;not null" json:"item_status"`
	CourseStage int    `gorm:"not null;default:1" json:"course_stage"`
	Notes       string `gorm:"size:255" json:"notes"`
}

func (Item) TableName() string { return "local_order_items" }

// Store 是单写者的终端缓存，底下是终端私有的 SQLite 文件。
type Store struct {
	db *gorm.DB
}

// Open 打开（必要时建表）本地缓存。
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if err := db.AutoMigrate(&Order{}, &Item{}); err != nil {
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB 供测试注入已打开的数据库。
func NewWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Order{}, &Item{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// CreateOrder 在本地落一笔新订单：立刻可见、标记待同步。
// id 留空时生成 uuid——这个 id 之后会原样提交到账本，是挡重的锚点。
func (s *Store) CreateOrder(ctx context.Context, order Order, items []Item) (Order, error) {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.OrderStatus == "" {
		order.OrderStatus = model.StatusInProgress
	}
	if order.TotalAmount == 0 {
		for _, it := range items {
			order.TotalAmount += it.Price * int64(it.Quantity)
		}
	}
	order.PendingSync = true
	order.SyncAttempts = 0
	order.LastSyncError = ""

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = order.ID
			if items[i].ItemStatus == "" {
				items[i].ItemStatus = model.StatusInProgress
			}
			if items[i].CourseStage <= 0 {
				items[i].CourseStage = 1
			}
			if err := tx.Create(&items[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// Orders 给本地 UI 的反应式读取（新单在前）。
func (s *Store) Orders(ctx context.Context) ([]Order, error) {
	var out []Order
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

// Items 返回某本地订单的行。
func (s *Store) Items(ctx context.Context, orderID string) ([]Item, error) {
	var out []Item
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("course_stage, id").
		Find(&out).Error
	return out, err
}

// Pending 返回待同步队列（隐式 SyncQueue：pending_sync = true 的订单集合）。
func (s *Store) Pending(ctx context.Context) ([]Order, error) {
	var out []Order
	err := s.db.WithContext(ctx).
		Where("pending_sync = ?", true).
		Order("created_at").
		Find(&out).Error
	return out, err
}

// MarkSynced 清除待同步标记并记录远端流水号。队列生命周期到此结束。
func (s *Store) MarkSynced(ctx context.Context, orderID string, remoteNumber int) error {
	return s.db.WithContext(ctx).Model(&Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"pending_sync":    false,
			"last_sync_error": "",
			"remote_number":   remoteNumber,
		}).Error
}

// RecordFailure 累加失败计数并留下错误文本，返回累加后的次数。
func (s *Store) RecordFailure(ctx context.Context, orderID, msg string) (int, error) {
	if len(msg) > 255 {
		msg = msg[:255]
	}
	err := s.db.WithContext(ctx).Model(&Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"sync_attempts":   gorm.Expr("sync_attempts + 1"),
			"last_sync_error": msg,
		}).Error
	if err != nil {
		return 0, err
	}
	var o Order
	if err := s.db.WithContext(ctx).Select("sync_attempts").Where("id = ?", orderID).First(&o).Error; err != nil {
		return 0, err
	}
	return o.SyncAttempts, nil
}

// CountStuck 统计连续失败达到阈值仍未同步的订单数，供运维告警。
func (s *Store) CountStuck(ctx context.Context, alertAfter int) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Order{}).
		Where("pending_sync = ? AND sync_attempts >= ?", true, alertAfter).
		Count(&n).Error
	return n, err
}

// UpdateStatus 本地状态迁移，走同一套状态机。
func (s *Store) UpdateStatus(ctx context.Context, orderID, to string) (Order, error) {
	var order Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", orderID).First(&order).Error; err != nil {
			return err
		}
		next, err := model.Transition(order.OrderStatus, to)
		if err != nil {
			return err
		}
		if err := tx.Model(&order).Update("order_status", next).Error; err != nil {
			return err
		}
		order.OrderStatus = next
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}
