package ledger

import (
	"context"
	"errors"
	"fmt"

	"coffee_pos/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrCardNotFound       = errors.New("loyalty card not found")
	ErrInsufficientPoints = errors.New("insufficient loyalty points")
)

// accrueLoyalty 在提交事务内累计积分：
// 1. insert-if-absent 开卡（ON CONFLICT DO NOTHING，绝不覆盖已有余额）
// 2. 幂等检查：该订单已有 purchase 流水则 no-op
// 3. 原子加余额 + 插入一条 purchase 流水
// 返回实际入账的积分数；幂等短路时返回 0。
func accrueLoyalty(tx *gorm.DB, businessID, phone, orderID string, points int) (int, error) {
	card := model.LoyaltyCard{
		BusinessID:    businessID,
		CustomerPhone: phone,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "business_id"}, {Name: "customer_phone"}},
		DoNothing: true,
	}).Create(&card).Error; err != nil {
		return 0, fmt.Errorf("provision loyalty card: %w", err)
	}
	// DoNothing 命中已有行时不回填 ID，重新读一次拿到现役卡。
	if err := tx.Where("business_id = ? AND customer_phone = ?", businessID, phone).
		First(&card).Error; err != nil {
		return 0, fmt.Errorf("load loyalty card: %w", err)
	}

	var existing int64
	if err := tx.Model(&model.LoyaltyTransaction{}).
		Where("order_id = ? AND transaction_type = ?", orderID, model.LoyaltyPurchase).
		Count(&existing).Error; err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}

	if err := tx.Model(&model.LoyaltyCard{}).
		Where("id = ?", card.ID).
		UpdateColumn("points_balance", gorm.Expr("points_balance + ?", points)).Error; err != nil {
		return 0, fmt.Errorf("credit points: %w", err)
	}

	// 幂等检查和这条插入在同一事务里，(order_id, type) 唯一索引只是兜底。
	ltx := model.LoyaltyTransaction{
		CardID:          card.ID,
		BusinessID:      businessID,
		OrderID:         &orderID,
		TransactionType: model.LoyaltyPurchase,
		Points:          points,
	}
	if err := tx.Create(&ltx).Error; err != nil {
		return 0, fmt.Errorf("record purchase transaction: %w", err)
	}
	return points, nil
}

// Balance 查询某手机号在租户下的卡。
func (l *Ledger) Balance(ctx context.Context, businessID, phone string) (model.LoyaltyCard, error) {
	var card model.LoyaltyCard
	err := l.db.WithContext(ctx).
		Where("business_id = ? AND customer_phone = ?", businessID, phone).
		First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.LoyaltyCard{}, ErrCardNotFound
		}
		return model.LoyaltyCard{}, err
	}
	return card, nil
}

// Redeem 扣减积分兑换奖励：余额不足拒绝，成功则累加已兑换计数并留流水。
func (l *Ledger) Redeem(ctx context.Context, businessID, phone string, points int) (model.LoyaltyCard, error) {
	if points <= 0 {
		return model.LoyaltyCard{}, fmt.Errorf("redeem points must be > 0")
	}

	var card model.LoyaltyCard
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("business_id = ? AND customer_phone = ?", businessID, phone).
			First(&card).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCardNotFound
			}
			return err
		}
		if card.PointsBalance < points {
			return ErrInsufficientPoints
		}

		if err := tx.Model(&model.LoyaltyCard{}).
			Where("id = ? AND points_balance >= ?", card.ID, points).
			UpdateColumns(map[string]interface{}{
				"points_balance":         gorm.Expr("points_balance - ?", points),
				"total_rewards_redeemed": gorm.Expr("total_rewards_redeemed + 1"),
			}).Error; err != nil {
			return err
		}

		ltx := model.LoyaltyTransaction{
			CardID:          card.ID,
			BusinessID:      businessID,
			TransactionType: model.LoyaltyRedemption,
			Points:          -points,
		}
		if err := tx.Create(&ltx).Error; err != nil {
			return err
		}

		return tx.Where("id = ?", card.ID).First(&card).Error
	})
	if err != nil {
		return model.LoyaltyCard{}, err
	}
	return card, nil
}

// Adjust 人工调整积分（正负皆可），OrderID 为空。
func (l *Ledger) Adjust(ctx context.Context, businessID, phone string, delta int) (model.LoyaltyCard, error) {
	if delta == 0 {
		return l.Balance(ctx, businessID, phone)
	}

	var card model.LoyaltyCard
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("business_id = ? AND customer_phone = ?", businessID, phone).
			First(&card).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCardNotFound
			}
			return err
		}

		if err := tx.Model(&model.LoyaltyCard{}).
			Where("id = ?", card.ID).
			UpdateColumn("points_balance", gorm.Expr("points_balance + ?", delta)).Error; err != nil {
			return err
		}

		ltx := model.LoyaltyTransaction{
			CardID:          card.ID,
			BusinessID:      businessID,
			TransactionType: model.LoyaltyAdjustment,
			Points:          delta,
		}
		if err := tx.Create(&ltx).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", card.ID).First(&card).Error
	})
	if err != nil {
		return model.LoyaltyCard{}, err
	}
	return card, nil
}
