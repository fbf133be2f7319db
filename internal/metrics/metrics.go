package metrics

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 账本服务端指标。
var (
	CommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_commits_total",
		Help: "Order commit attempts by outcome.",
	}, []string{"result"}) // created / edited / duplicate / error

	DuplicateConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_duplicate_conflicts_total",
		Help: "Create commits rejected because the order id already exists.",
	})
)

// 终端回放指标。
var (
	SweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sweep_runs_total",
		Help: "Sweeper passes executed.",
	})

	SweepSyncedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sweep_synced_total",
		Help: "Local orders reconciled into the ledger.",
	})

	SweepDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sweep_duplicate_total",
		Help: "Orders reconciled via duplicate-key-as-success.",
	})

	SweepFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sweep_failed_total",
		Help: "Per-order sync failures left pending for retry.",
	})

	SweepStuckOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_sweep_stuck_orders",
		Help: "Pending orders whose consecutive failures reached the alert threshold.",
	})
)

// Serve 起一个独立端口的 /metrics 服务（阻塞运行，调用方放进 goroutine）。
func Serve(addr string) {
	router := gin.New()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	log.Printf("metrics: listening on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("metrics server error: %v", err)
	}
}
