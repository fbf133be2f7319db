package ledger

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SubstituteRule 描述一条配料驱动的替代扣减。
// 观察到的常量（200ml / 阈值 5 / 换算 1000）只是示例配置，
// 比例按 modifier 配置而不是写死在代码里。
type SubstituteRule struct {
	ModifierID      string  `yaml:"modifier_id"`
	InventoryItemID uint    `yaml:"inventory_item_id"`
	Quantity        float64 `yaml:"quantity"`     // 该配料声明的用量（如 200 ml）
	MinQuantity     float64 `yaml:"min_quantity"` // 不超过阈值视为装饰性配料，不扣库存
	UnitFactor      float64 `yaml:"unit_factor"`  // 声明单位对库存单位的换算（1000 ml/L）
}

// Active 判断该规则是否触发实际扣减。
func (r SubstituteRule) Active() bool {
	return r.Quantity > r.MinQuantity && r.UnitFactor > 0
}

// StockDeduction 返回售出一单位菜单项时从替代库存行扣减的量。
func (r SubstituteRule) StockDeduction() float64 {
	return r.Quantity / r.UnitFactor
}

// SubstituteRules 按 modifier id 索引。
type SubstituteRules map[string]SubstituteRule

// LoadSubstituteRules 从 yaml 文件加载规则。path 为空返回空规则集。
func LoadSubstituteRules(path string) (SubstituteRules, error) {
	if path == "" {
		return SubstituteRules{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read substitute rules: %w", err)
	}

	var doc struct {
		Substitutes []SubstituteRule `yaml:"substitutes"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse substitute rules: %w", err)
	}

	rules := make(SubstituteRules, len(doc.Substitutes))
	for i, r := range doc.Substitutes {
		if r.ModifierID == "" {
			return nil, fmt.Errorf("substitute rule %d: modifier_id is required", i)
		}
		if r.InventoryItemID == 0 {
			return nil, fmt.Errorf("substitute rule %q: inventory_item_id is required", r.ModifierID)
		}
		if r.UnitFactor <= 0 {
			return nil, fmt.Errorf("substitute rule %q: unit_factor must be > 0", r.ModifierID)
		}
		rules[r.ModifierID] = r
	}
	return rules, nil
}
