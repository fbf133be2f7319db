package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"coffee_pos/internal/config"
	"coffee_pos/internal/events"
	"coffee_pos/internal/kds"
	"coffee_pos/internal/ledger"
	"coffee_pos/internal/metrics"
	"coffee_pos/internal/router"
	possredis "coffee_pos/pkg/redis"

	rd "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// 1. 连接 SQLite 账本，自动建表
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := ledger.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	// 2. Redis：库存镜像 + 事件 outbox + 限流
	rdb := rd.NewClient(&rd.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	// 3. 配料替代扣减规则（可选）
	subs, err := ledger.LoadSubstituteRules(cfg.SubstituteRulesPath)
	if err != nil {
		log.Fatalf("substitute rules: %v", err)
	}

	led := ledger.New(db,
		ledger.WithOutbox(events.NewStreamOutbox(rdb, cfg.OrderEventStream)),
		ledger.WithStockMirror(possredis.NewMirror(rdb)),
		ledger.WithSubstituteRules(subs),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. 事件链路：outbox → Relay → Kafka → Consumer → KDS 推送
	producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	relay := events.NewRelay(rdb, producer, cfg.OrderEventStream, cfg.OrderEventGroup, cfg.OrderEventConsumer)
	go relay.Run(ctx)

	hub := kds.NewHub()
	consumer := events.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, hub)
	defer consumer.Close()
	go consumer.Run(ctx)

	go metrics.Serve(cfg.MetricsAddr)

	// 5. HTTP 服务
	r := router.Setup(led, rdb, hub, cfg)
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}
	go func() {
		log.Printf("ledger: listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("ledger: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
