package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 聚合账本服务端运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr    string
	MetricsAddr string
	DBPath      string

	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（提交成功后原子入流，Relay 异步转 Kafka）
	OrderEventStream   string
	OrderEventGroup    string
	OrderEventConsumer string

	// 提交接口限流与库存镜像策略
	CommitRateLimit  int
	CommitRateWindow time.Duration
	StockCacheTTL    time.Duration

	// 库存预热接口的简单管理员令牌
	PreloadAdminToken string

	// DefaultBusinessID 是单租户部署的显式逃生舱。
	// 留空时，租户解析失败是硬错误，绝不静默挂到默认租户上。
	DefaultBusinessID string

	// 配料替代扣减规则文件（yaml），留空则不启用替代扣减。
	SubstituteRulesPath string
}

// TerminalConfig 是收银终端进程的配置。
type TerminalConfig struct {
	HTTPAddr string
	DBPath   string

	// 终端归属的租户，由登录会话下发；终端进程必须显式携带。
	BusinessID string

	// 远端账本地址与回放节奏
	LedgerBaseURL   string
	SweepInterval   time.Duration
	SweepAlertAfter int // 连续失败多少次后升级告警

	MetricsAddr string
}

// Load 读取并校验服务端配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:         getEnv("METRICS_ADDR", ":9090"),
		DBPath:              getEnv("DB_PATH", "pos_ledger.db"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:             0,
		KafkaBrokers:        splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "pos-order-events"),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", "pos-kds-consumer"),
		OrderEventStream:    getEnv("ORDER_EVENT_STREAM", "pos:order_events"),
		OrderEventGroup:     getEnv("ORDER_EVENT_GROUP", "pos-relay-group"),
		OrderEventConsumer:  getEnv("ORDER_EVENT_CONSUMER", "pos-relay-1"),
		CommitRateLimit:     200,
		CommitRateWindow:    time.Second,
		StockCacheTTL:       24 * time.Hour,
		PreloadAdminToken:   getEnv("PRELOAD_ADMIN_TOKEN", "dev-admin-token"),
		DefaultBusinessID:   getEnv("DEFAULT_BUSINESS_ID", ""),
		SubstituteRulesPath: getEnv("SUBSTITUTE_RULES_PATH", ""),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	rateLimit, err := getEnvInt("COMMIT_RATE_LIMIT", cfg.CommitRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid COMMIT_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("COMMIT_RATE_LIMIT must be > 0")
	}
	cfg.CommitRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("COMMIT_RATE_WINDOW_SEC", int(cfg.CommitRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid COMMIT_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("COMMIT_RATE_WINDOW_SEC must be > 0")
	}
	cfg.CommitRateWindow = time.Duration(rateWindowSec) * time.Second

	stockTTLHour, err := getEnvInt("STOCK_CACHE_TTL_HOUR", int(cfg.StockCacheTTL.Hours()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid STOCK_CACHE_TTL_HOUR: %w", err)
	}
	if stockTTLHour <= 0 {
		return AppConfig{}, fmt.Errorf("STOCK_CACHE_TTL_HOUR must be > 0")
	}
	cfg.StockCacheTTL = time.Duration(stockTTLHour) * time.Hour

	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.KafkaGroupID == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
	}
	if cfg.OrderEventStream == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_STREAM must not be empty")
	}
	if cfg.OrderEventGroup == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_GROUP must not be empty")
	}
	if cfg.OrderEventConsumer == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_CONSUMER must not be empty")
	}

	return cfg, nil
}

// LoadTerminal 读取并校验终端配置。
func LoadTerminal() (TerminalConfig, error) {
	cfg := TerminalConfig{
		HTTPAddr:        getEnv("TERMINAL_HTTP_ADDR", ":8081"),
		DBPath:          getEnv("TERMINAL_DB_PATH", "pos_terminal.db"),
		BusinessID:      getEnv("TERMINAL_BUSINESS_ID", ""),
		LedgerBaseURL:   getEnv("LEDGER_BASE_URL", "http://localhost:8080"),
		SweepInterval:   10 * time.Second,
		SweepAlertAfter: 6,
		MetricsAddr:     getEnv("TERMINAL_METRICS_ADDR", ":9091"),
	}

	if cfg.BusinessID == "" {
		return TerminalConfig{}, fmt.Errorf("TERMINAL_BUSINESS_ID must not be empty")
	}

	sweepSec, err := getEnvInt("SWEEP_INTERVAL_SEC", int(cfg.SweepInterval.Seconds()))
	if err != nil {
		return TerminalConfig{}, fmt.Errorf("invalid SWEEP_INTERVAL_SEC: %w", err)
	}
	if sweepSec <= 0 {
		return TerminalConfig{}, fmt.Errorf("SWEEP_INTERVAL_SEC must be > 0")
	}
	cfg.SweepInterval = time.Duration(sweepSec) * time.Second

	alertAfter, err := getEnvInt("SWEEP_ALERT_AFTER", cfg.SweepAlertAfter)
	if err != nil {
		return TerminalConfig{}, fmt.Errorf("invalid SWEEP_ALERT_AFTER: %w", err)
	}
	if alertAfter <= 0 {
		return TerminalConfig{}, fmt.Errorf("SWEEP_ALERT_AFTER must be > 0")
	}
	cfg.SweepAlertAfter = alertAfter

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
