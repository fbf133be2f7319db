package events

import (
	"context"
	"strconv"

	rd "github.com/redis/go-redis/v9"
)

// StreamOutbox 把订单事件先写进 Redis Stream，由 Relay 异步转 Kafka。
// 提交事务本身不直接碰 Kafka，网络抖动不会拖慢收银。
type StreamOutbox struct {
	rdb    *rd.Client
	stream string
}

func NewStreamOutbox(rdb *rd.Client, stream string) *StreamOutbox {
	return &StreamOutbox{rdb: rdb, stream: stream}
}

// Publish 入流一条订单事件。
func (o *StreamOutbox) Publish(ctx context.Context, ev OrderEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		Values: map[string]interface{}{
			"order_id":     ev.OrderID,
			"business_id":  ev.BusinessID,
			"order_number": strconv.Itoa(ev.OrderNumber),
			"status":       ev.Status,
			"total_amount": strconv.FormatInt(ev.TotalAmount, 10),
		},
	}).Err()
}
