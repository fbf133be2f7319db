package ledger

import (
	"context"
	"testing"

	"coffee_pos/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// seedRecipe 建一份 菜单项 → 配方 → 原料 的链，返回库存行 id。
func seedRecipe(t *testing.T, db *gorm.DB, businessID string, menuItemID uint, perUnit, stock float64) uint {
	t.Helper()
	inv := model.InventoryItem{BusinessID: businessID, Name: "milk", Unit: "L", CurrentStock: stock}
	require.NoError(t, db.Create(&inv).Error)

	recipe := model.Recipe{BusinessID: businessID, MenuItemID: menuItemID}
	require.NoError(t, db.Create(&recipe).Error)
	require.NoError(t, db.Create(&model.RecipeIngredient{
		RecipeID:        recipe.ID,
		InventoryItemID: inv.ID,
		QuantityUsed:    perUnit,
	}).Error)
	return inv.ID
}

func stockOf(t *testing.T, db *gorm.DB, id uint) float64 {
	t.Helper()
	var item model.InventoryItem
	require.NoError(t, db.First(&item, "id = ?", id).Error)
	return item.CurrentStock
}

func TestCommitCreateDeductsRecipeStock(t *testing.T) {
	l, db := newTestLedger(t)
	invID := seedRecipe(t, db, testBusiness, 1, 0.2, 10)

	// 3 杯 × 0.2L/杯 = 0.6L
	_, err := l.CommitCreate(context.Background(), CreateOrder{
		BusinessID: testBusiness,
		Items:      []OrderLine{lineOf(1, "latte", 3, 1400)},
	}, "")
	require.NoError(t, err)
	assert.InDelta(t, 9.4, stockOf(t, db, invID), 1e-9)
}

func TestCommitCreateMissingRecipeSkipsDeduction(t *testing.T) {
	l, db := newTestLedger(t)

	// 没有配方的菜单项照常卖，不报错、不扣库存
	_, err := l.CommitCreate(context.Background(), CreateOrder{
		BusinessID: testBusiness,
		Items:      []OrderLine{lineOf(99, "mystery special", 1, 2000)},
	}, "")
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&model.InventoryItem{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCommitCreateCancelledLineNotDeducted(t *testing.T) {
	l, db := newTestLedger(t)
	invID := seedRecipe(t, db, testBusiness, 1, 0.2, 10)

	_, err := l.CommitCreate(context.Background(), CreateOrder{
		BusinessID: testBusiness,
		Items: []OrderLine{
			{MenuItemID: 1, Name: "latte", Quantity: 2, Price: 1400, ItemStatus: model.StatusCancelled},
		},
	}, "")
	require.NoError(t, err)
	assert.InDelta(t, 10, stockOf(t, db, invID), 1e-9)
}

func TestCommitCreateOversellGoesNegative(t *testing.T) {
	l, db := newTestLedger(t)
	invID := seedRecipe(t, db, testBusiness, 1, 0.2, 0.1)

	// 库存没有下限：卖出成功，负库存是补货信号
	_, err := l.CommitCreate(context.Background(), CreateOrder{
		BusinessID: testBusiness,
		Items:      []OrderLine{lineOf(1, "latte", 1, 1400)},
	}, "")
	require.NoError(t, err)
	assert.InDelta(t, -0.1, stockOf(t, db, invID), 1e-9)
}

func TestSubstituteModifierDeduction(t *testing.T) {
	subStock := model.InventoryItem{BusinessID: testBusiness, Name: "soy milk", Unit: "L", CurrentStock: 5}

	rules := SubstituteRules{}
	l, db := newTestLedger(t)
	require.NoError(t, db.Create(&subStock).Error)
	rules["mod-soy-milk"] = SubstituteRule{
		ModifierID:      "mod-soy-milk",
		InventoryItemID: subStock.ID,
		Quantity:        200,
		MinQuantity:     5,
		UnitFactor:      1000,
	}
	l.subs = rules

	baseInv := seedRecipe(t, db, testBusiness, 1, 0.2, 10)

	// 替代配料从规则自己的库存行扣：200/1000 × 2 杯 = 0.4L 豆奶，
	// 基础配方的 0.2 × 2 = 0.4L 鲜奶照扣
	_, err := l.CommitCreate(context.Background(), CreateOrder{
		BusinessID: testBusiness,
		Items: []OrderLine{{
			MenuItemID: 1, Name: "latte", Quantity: 2, Price: 1400,
			Modifiers: model.ModifierList{{ID: "mod-soy-milk", Name: "soy milk", Price: 200}},
		}},
	}, "")
	require.NoError(t, err)

	assert.InDelta(t, 4.6, stockOf(t, db, subStock.ID), 1e-9)
	assert.InDelta(t, 9.6, stockOf(t, db, baseInv), 1e-9)
}

func TestSubstituteRuleBelowThresholdInactive(t *testing.T) {
	// 用量不超过阈值视为装饰性配料，不触发扣减
	rule := SubstituteRule{ModifierID: "m", InventoryItemID: 1, Quantity: 5, MinQuantity: 5, UnitFactor: 1000}
	assert.False(t, rule.Active())

	rule.Quantity = 200
	assert.True(t, rule.Active())
	assert.InDelta(t, 0.2, rule.StockDeduction(), 1e-9)
}

func TestDuplicateOrderDoesNotDoubleDeduct(t *testing.T) {
	l, db := newTestLedger(t)
	invID := seedRecipe(t, db, testBusiness, 1, 0.2, 10)

	req := CreateOrder{
		OrderID:    "22222222-2222-2222-2222-222222222222",
		BusinessID: testBusiness,
		Items:      []OrderLine{lineOf(1, "latte", 1, 1400)},
	}
	_, err := l.CommitCreate(context.Background(), req, "")
	require.NoError(t, err)
	_, err = l.CommitCreate(context.Background(), req, "")
	require.ErrorIs(t, err, ErrDuplicateOrder)

	// 重复提交整体回滚，库存只扣一次
	assert.InDelta(t, 9.8, stockOf(t, db, invID), 1e-9)
}
