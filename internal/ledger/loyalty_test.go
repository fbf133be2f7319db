package ledger

import (
	"context"
	"testing"

	"coffee_pos/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPhone = "0521234567"

func TestLoyaltyAccrualAcrossOrders(t *testing.T) {
	l, db := newTestLedger(t)
	ctx := context.Background()

	// 两笔不同订单累计到同一张卡
	_, err := l.CommitCreate(ctx, CreateOrder{
		BusinessID:    testBusiness,
		CustomerPhone: testPhone,
		Items:         []OrderLine{lineOf(1, "latte", 2, 1400)},
	}, "")
	require.NoError(t, err)
	_, err = l.CommitCreate(ctx, CreateOrder{
		BusinessID:    testBusiness,
		CustomerPhone: testPhone,
		Items:         []OrderLine{lineOf(2, "espresso", 1, 1200)},
	}, "")
	require.NoError(t, err)

	card, err := l.Balance(ctx, testBusiness, testPhone)
	require.NoError(t, err)
	assert.Equal(t, 3, card.PointsBalance)

	var cards int64
	require.NoError(t, db.Model(&model.LoyaltyCard{}).Count(&cards).Error)
	assert.Equal(t, int64(1), cards)
}

func TestLoyaltyCardsScopedPerBusiness(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// 同一手机号在两家店是两张独立的卡
	_, err := l.CommitCreate(ctx, CreateOrder{
		BusinessID:    "biz-a",
		CustomerPhone: testPhone,
		Items:         []OrderLine{lineOf(1, "latte", 2, 1400)},
	}, "")
	require.NoError(t, err)
	_, err = l.CommitCreate(ctx, CreateOrder{
		BusinessID:    "biz-b",
		CustomerPhone: testPhone,
		Items:         []OrderLine{lineOf(1, "latte", 5, 1400)},
	}, "")
	require.NoError(t, err)

	cardA, err := l.Balance(ctx, "biz-a", testPhone)
	require.NoError(t, err)
	cardB, err := l.Balance(ctx, "biz-b", testPhone)
	require.NoError(t, err)
	assert.Equal(t, 2, cardA.PointsBalance)
	assert.Equal(t, 5, cardB.PointsBalance)
}

func TestLoyaltyZeroPriceLinesEarnNothing(t *testing.T) {
	l, db := newTestLedger(t)

	// 免费续杯（价格 0）不产生积分，也不开卡
	res, err := l.CommitCreate(context.Background(), CreateOrder{
		BusinessID:    testBusiness,
		CustomerPhone: testPhone,
		Items:         []OrderLine{lineOf(1, "refill", 2, 0)},
	}, "")
	require.NoError(t, err)
	assert.Zero(t, res.LoyaltyPointsAdded)

	var cards int64
	require.NoError(t, db.Model(&model.LoyaltyCard{}).Count(&cards).Error)
	assert.Zero(t, cards)
}

func TestRedeem(t *testing.T) {
	l, db := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CommitCreate(ctx, CreateOrder{
		BusinessID:    testBusiness,
		CustomerPhone: testPhone,
		Items:         []OrderLine{lineOf(1, "latte", 10, 1400)},
	}, "")
	require.NoError(t, err)

	card, err := l.Redeem(ctx, testBusiness, testPhone, 8)
	require.NoError(t, err)
	assert.Equal(t, 2, card.PointsBalance)
	assert.Equal(t, 1, card.TotalRewardsRedeemed)

	// 兑换流水是负积分
	var ltx model.LoyaltyTransaction
	require.NoError(t, db.First(&ltx, "transaction_type = ?", model.LoyaltyRedemption).Error)
	assert.Equal(t, -8, ltx.Points)

	// 余额不足拒绝
	_, err = l.Redeem(ctx, testBusiness, testPhone, 100)
	require.ErrorIs(t, err, ErrInsufficientPoints)

	// 无卡拒绝
	_, err = l.Redeem(ctx, testBusiness, "0520000000", 1)
	require.ErrorIs(t, err, ErrCardNotFound)
}

func TestAdjust(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CommitCreate(ctx, CreateOrder{
		BusinessID:    testBusiness,
		CustomerPhone: testPhone,
		Items:         []OrderLine{lineOf(1, "latte", 3, 1400)},
	}, "")
	require.NoError(t, err)

	card, err := l.Adjust(ctx, testBusiness, testPhone, -2)
	require.NoError(t, err)
	assert.Equal(t, 1, card.PointsBalance)

	card, err = l.Adjust(ctx, testBusiness, testPhone, 10)
	require.NoError(t, err)
	assert.Equal(t, 11, card.PointsBalance)

	// delta 为 0 是读操作
	card, err = l.Adjust(ctx, testBusiness, testPhone, 0)
	require.NoError(t, err)
	assert.Equal(t, 11, card.PointsBalance)
}

func TestAccrueLoyaltyIdempotentPerOrder(t *testing.T) {
	_, db := newTestLedger(t)
	orderID := "99999999-9999-9999-9999-999999999999"

	// 同一订单第二次累计必须短路：不加分、不产生第二条流水
	awarded, err := accrueLoyalty(db, testBusiness, testPhone, orderID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, awarded)

	awarded, err = accrueLoyalty(db, testBusiness, testPhone, orderID, 3)
	require.NoError(t, err)
	assert.Zero(t, awarded)

	card := model.LoyaltyCard{}
	require.NoError(t, db.First(&card, "business_id = ? AND customer_phone = ?", testBusiness, testPhone).Error)
	assert.Equal(t, 3, card.PointsBalance)

	var txCount int64
	require.NoError(t, db.Model(&model.LoyaltyTransaction{}).
		Where("order_id = ?", orderID).Count(&txCount).Error)
	assert.Equal(t, int64(1), txCount)
}

func TestBalanceNotFound(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.Balance(context.Background(), testBusiness, "0529999999")
	require.ErrorIs(t, err, ErrCardNotFound)
}
