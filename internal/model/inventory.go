package model

import "time"

// MenuItem 是目录协作方的只读投影：提交时只消费 id/价格，不在这里维护菜单。
type MenuItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	BusinessID  string `gorm:"size:36;not null;index" json:"business_id"`
	Name        string `gorm:"size:128;not null" json:"name"`
	Price       int64  `gorm:"not null" json:"price"` // 单位分
	IsAvailable bool   `gorm:"not null;default:true" json:"is_available"`
}

func (MenuItem) TableName() string { return "menu_items" }

// InventoryItem 是租户级库存行。
// LowStockThreshold 仅作提示，库存允许为负：负值代表超卖信号而非拒绝售卖。
type InventoryItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	BusinessID        string  `gorm:"size:36;not null;index" json:"business_id"`
	Name              string  `gorm:"size:128;not null" json:"name"`
	CurrentStock      float64 `gorm:"not null;default:0" json:"current_stock"`
	Unit              string  `gorm:"size:16" json:"unit"` // kg / L / pc ...
	LowStockThreshold float64 `gorm:"not null;default:0" json:"low_stock_threshold"`
}

func (InventoryItem) TableName() string { return "inventory_items" }

// LowStock 是否低于提示阈值。
func (i InventoryItem) LowStock() bool {
	return i.LowStockThreshold > 0 && i.CurrentStock < i.LowStockThreshold
}

// Recipe 把一个菜单项映射到配方；没有配方的菜单项在扣减时被静默跳过。
type Recipe struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	BusinessID string `gorm:"size:36;not null;index" json:"business_id"`
	MenuItemID uint   `gorm:"not null;uniqueIndex" json:"menu_item_id"`
	Name       string `gorm:"size:128" json:"name"`

	Ingredients []RecipeIngredient `gorm:"foreignKey:RecipeID" json:"ingredients,omitempty"`
}

func (Recipe) TableName() string { return "recipes" }

// RecipeIngredient：售出一单位菜单项消耗 QuantityUsed 个库存单位。
type RecipeIngredient struct {
	ID uint `gorm:"primarykey" json:"id"`

	RecipeID        uint    `gorm:"not null;index" json:"recipe_id"`
	InventoryItemID uint    `gorm:"not null;index" json:"inventory_item_id"`
	QuantityUsed    float64 `gorm:"not null" json:"quantity_used"`
}

func (RecipeIngredient) TableName() string { return "recipe_ingredients" }
