package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaDecrStockMirror：镜像扣减允许为负。
// 账本数据库才是权威库存，负值表示超卖信号而不是拒绝售卖，
// 所以这里不像秒杀场景那样先判断余量再扣。
const luaDecrStockMirror = `
local key = KEYS[1]
local decr = tonumber(ARGV[1])
if redis.call('EXISTS', key) == 0 then
  return nil
end
return redis.call('INCRBYFLOAT', key, -decr)
`

// PreloadStock 将数据库库存预热到 Redis 镜像，供 KDS 面板低成本轮询。
func PreloadStock(ctx context.Context, rdb *rd.Client, businessID string, inventoryItemID uint, stock float64, ttl time.Duration) error {
	return rdb.Set(ctx, StockKey(businessID, inventoryItemID), stock, ttl).Err()
}

// GetStock 读取镜像库存。found=false 表示尚未预热。
func GetStock(ctx context.Context, rdb *rd.Client, businessID string, inventoryItemID uint) (float64, bool, error) {
	v, err := rdb.Get(ctx, StockKey(businessID, inventoryItemID)).Float64()
	if err != nil {
		if err == rd.Nil {
			return 0, false, nil
		}
		return 0, false, err
	}
	return v, true, nil
}

// MirrorDeduct 在镜像上同步一次扣减。键不存在时直接跳过（未预热不算错误）。
func MirrorDeduct(ctx context.Context, rdb *rd.Client, businessID string, inventoryItemID uint, quantity float64) error {
	err := rdb.Eval(ctx, luaDecrStockMirror, []string{StockKey(businessID, inventoryItemID)}, quantity).Err()
	if err == rd.Nil {
		return nil
	}
	return err
}

// Mirror 是给账本注入的镜像扣减实现。
type Mirror struct {
	rdb *rd.Client
}

func NewMirror(rdb *rd.Client) *Mirror {
	return &Mirror{rdb: rdb}
}

func (m *Mirror) Deduct(ctx context.Context, businessID string, inventoryItemID uint, quantity float64) error {
	return MirrorDeduct(ctx, m.rdb, businessID, inventoryItemID, quantity)
}
