package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"
)

// Broadcaster 接收已提交订单事件并推给在线的厨房显示屏。
type Broadcaster interface {
	Broadcast(ev OrderEvent)
}

// Consumer 消费 Kafka 订单事件并转发给 KDS 推送层。
// 订单本体早已在提交事务内落库，这里只做通知，天然可重放。
type Consumer struct {
	r  *kafka.Reader
	bc Broadcaster
}

func NewConsumer(brokers []string, topic, groupID string, bc Broadcaster) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		bc: bc,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}

		var ev OrderEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			log.Printf("consumer unmarshal: %v", err)
			continue
		}
		if err := ev.Validate(); err != nil {
			log.Printf("consumer drop invalid event: %v", err)
			continue
		}

		c.bc.Broadcast(ev)
	}
}
