package ledger

import (
	"errors"
	"fmt"

	"coffee_pos/internal/model"

	"gorm.io/gorm"
)

// deduction 记录一次已执行的库存扣减，用于事务提交后同步镜像。
type deduction struct {
	InventoryItemID uint
	Quantity        float64
}

// deductInventory 对新建订单的每个非取消行解析配方并扣减库存。
// 扣减必须是单条服务端算术 UPDATE：多终端同时卖出同一原料的最后一份时，
// 读改写回路会丢更新，`current_stock = current_stock - ?` 不会。
// 没有配方的菜单项静默跳过；库存没有下限，负值即超卖信号。
func deductInventory(tx *gorm.DB, businessID string, items []OrderLine, subs SubstituteRules) ([]deduction, error) {
	totals := map[uint]float64{}

	for _, line := range items {
		if line.Quantity <= 0 || line.ItemStatus == model.StatusCancelled {
			continue
		}

		var recipe model.Recipe
		err := tx.Where("menu_item_id = ? AND business_id = ?", line.MenuItemID, businessID).
			First(&recipe).Error
		switch {
		case err == nil:
			var ingredients []model.RecipeIngredient
			if err := tx.Where("recipe_id = ?", recipe.ID).Find(&ingredients).Error; err != nil {
				return nil, fmt.Errorf("load recipe %d: %w", recipe.ID, err)
			}
			for _, ing := range ingredients {
				qty := ing.QuantityUsed * float64(line.Quantity)
				if err := applyDeduct(tx, businessID, ing.InventoryItemID, qty); err != nil {
					return nil, err
				}
				totals[ing.InventoryItemID] += qty
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// 配方缺失不是错误，销售照常完成。
		default:
			return nil, fmt.Errorf("resolve recipe for menu item %d: %w", line.MenuItemID, err)
		}

		// 替代配料走独立的扣减路径：从规则指定的库存行扣，
		// 而不是基础配方的那一行（例：燕麦奶扣植物奶库存，不扣鲜奶）。
		for _, mod := range line.Modifiers {
			rule, ok := subs[mod.ID]
			if !ok || !rule.Active() {
				continue
			}
			qty := rule.StockDeduction() * float64(line.Quantity)
			if err := applyDeduct(tx, businessID, rule.InventoryItemID, qty); err != nil {
				return nil, err
			}
			totals[rule.InventoryItemID] += qty
		}
	}

	out := make([]deduction, 0, len(totals))
	for id, qty := range totals {
		out = append(out, deduction{InventoryItemID: id, Quantity: qty})
	}
	return out, nil
}

// applyDeduct 原子扣减一行库存。库存行不存在时静默跳过（数据缺失不阻断销售）。
func applyDeduct(tx *gorm.DB, businessID string, inventoryItemID uint, quantity float64) error {
	if quantity == 0 {
		return nil
	}
	res := tx.Model(&model.InventoryItem{}).
		Where("id = ? AND business_id = ?", inventoryItemID, businessID).
		UpdateColumn("current_stock", gorm.Expr("current_stock - ?", quantity))
	if res.Error != nil {
		return fmt.Errorf("deduct inventory item %d: %w", inventoryItemID, res.Error)
	}
	return nil
}
