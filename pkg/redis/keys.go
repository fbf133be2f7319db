package redis

import "fmt"

// StockKey 统一约定某租户下库存项的实时库存键名。
func StockKey(businessID string, inventoryItemID uint) string {
	return fmt.Sprintf("pos:stock:%s:%d", businessID, inventoryItemID)
}

// OrderEventStream 是已提交订单事件的 outbox stream 键名。
const OrderEventStream = "pos:order_events"

// CommitRateLimitKey 按租户限流订单提交接口。
func CommitRateLimitKey(businessID string) string {
	return fmt.Sprintf("rate_limit:pos:commit:%s", businessID)
}

// CommitRateLimitIPKey 无法识别租户时按来源 IP 降级限流。
func CommitRateLimitIPKey(ip string) string {
	return fmt.Sprintf("rate_limit:pos:commit:ip:%s", ip)
}
