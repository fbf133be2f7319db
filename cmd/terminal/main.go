package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"coffee_pos/internal/config"
	"coffee_pos/internal/localstore"
	"coffee_pos/internal/metrics"
	"coffee_pos/internal/router"
	possync "coffee_pos/internal/sync"
)

func main() {
	cfg, err := config.LoadTerminal()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// 1. 终端私有的本地缓存（SQLite 文件）
	store, err := localstore.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("local store: %v", err)
	}

	// 2. 回放链路：本地 pending 订单 → 账本提交接口
	client := possync.NewClient(cfg.LedgerBaseURL, cfg.BusinessID)
	sweeper := possync.New(store, client, client, cfg.SweepInterval, cfg.SweepAlertAfter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweeper.Run(ctx)
	go metrics.Serve(cfg.MetricsAddr)

	// 3. 本地 HTTP API（收银界面直连）
	r := router.SetupTerminal(store, sweeper, cfg.BusinessID)
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}
	go func() {
		log.Printf("terminal: listening on %s (business=%s)", cfg.HTTPAddr, cfg.BusinessID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("terminal: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
