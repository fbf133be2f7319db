package ledger

import (
	"context"
	"errors"
	"fmt"

	"coffee_pos/internal/model"

	"gorm.io/gorm"
)

// KDSOrders 是厨房显示屏的只读投影：按租户（可选按状态）过滤，
// 订单行按 course_stage 排序供分轮上餐展示。纯读路径，不参与写入。
func (l *Ledger) KDSOrders(ctx context.Context, businessID, status string) ([]model.Order, error) {
	q := l.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("course_stage, id")
		}).
		Order("order_number")
	if status != "" {
		if !model.ValidStatus(status) {
			return nil, fmt.Errorf("unknown order status %q", status)
		}
		q = q.Where("order_status = ?", status)
	}

	var orders []model.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrder 读取单笔订单（含订单行）。
func (l *Ledger) GetOrder(ctx context.Context, businessID, orderID string) (model.Order, error) {
	var order model.Order
	err := l.db.WithContext(ctx).
		Where("id = ? AND business_id = ?", orderID, businessID).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("course_stage, id")
		}).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Order{}, ErrOrderNotFound
		}
		return model.Order{}, err
	}
	return order, nil
}

// UpdateOrderStatus 做状态机校验后迁移订单状态。
func (l *Ledger) UpdateOrderStatus(ctx context.Context, businessID, orderID, to string) (model.Order, error) {
	var order model.Order
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND business_id = ?", orderID, businessID).
			First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
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
		return model.Order{}, err
	}
	return order, nil
}

// UpdateItemStatus 迁移单行状态；earlyDelivered 非空时同时更新提前上餐标记。
// 行状态独立于订单状态演进，行可以在整单仍 in_progress 时提前送出。
func (l *Ledger) UpdateItemStatus(ctx context.Context, businessID, orderID string, itemID uint, to string, earlyDelivered *bool) (model.OrderItem, error) {
	var item model.OrderItem
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND order_id = ? AND business_id = ?", itemID, orderID, businessID).
			First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		updates := map[string]interface{}{}
		if to != "" {
			next, err := model.Transition(item.ItemStatus, to)
			if err != nil {
				return err
			}
			updates["item_status"] = next
			item.ItemStatus = next
		}
		if earlyDelivered != nil {
			updates["early_delivered"] = *earlyDelivered
			item.EarlyDelivered = *earlyDelivered
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&model.OrderItem{}).Where("id = ?", item.ID).Updates(updates).Error
	})
	if err != nil {
		return model.OrderItem{}, err
	}
	return item, nil
}

// UpdateCustomer 回填终端侧的客户字段（同步成功后的第 4 步）。
func (l *Ledger) UpdateCustomer(ctx context.Context, businessID, orderID, name, phone string) error {
	updates := map[string]interface{}{}
	if name != "" {
		updates["customer_name"] = name
	}
	if phone != "" {
		updates["customer_phone"] = phone
	}
	if len(updates) == 0 {
		return nil
	}
	res := l.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND business_id = ?", orderID, businessID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// Inventory 列出租户库存（含低库存提示位）。
func (l *Ledger) Inventory(ctx context.Context, businessID string) ([]model.InventoryItem, error) {
	var items []model.InventoryItem
	err := l.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("id").
		Find(&items).Error
	return items, err
}

// InventoryItemByID 读取单行库存，供预热镜像使用。
func (l *Ledger) InventoryItemByID(ctx context.Context, businessID string, id uint) (model.InventoryItem, error) {
	var item model.InventoryItem
	err := l.db.WithContext(ctx).
		Where("id = ? AND business_id = ?", id, businessID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.InventoryItem{}, gorm.ErrRecordNotFound
		}
		return model.InventoryItem{}, err
	}
	return item, nil
}
