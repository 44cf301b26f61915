package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	// CORS 允许的前端来源（逗号分隔）
	AllowOrigins []string

	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（写接口入流，Relay 异步转 Kafka 做事件审计）
	EventStream   string
	EventGroup    string
	EventConsumer string

	// 状态心跳广播间隔
	StatusInterval time.Duration

	// 写接口限流
	MutateRateLimit  int
	MutateRateWindow time.Duration

	// 事件审计链路开关（无 Redis/Kafka 的单机部署可关闭）
	EventRelayEnabled bool
}

// Load 读取并校验配置，缺失时使用默认值。
// 先尝试加载 .env（本地开发），再读环境变量。
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DBPath:            getEnv("DB_PATH", "stockguard.db"),
		AllowOrigins:      splitCSV(getEnv("ALLOW_ORIGINS", "http://localhost:3000")),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           0,
		KafkaBrokers:      splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "stockguard-events"),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "stockguard-audit-consumer"),
		EventStream:       getEnv("EVENT_STREAM", "stockguard:event_outbox"),
		EventGroup:        getEnv("EVENT_GROUP", "stockguard-relay-group"),
		EventConsumer:     getEnv("EVENT_CONSUMER", "stockguard-relay-1"),
		StatusInterval:    5 * time.Second,
		MutateRateLimit:   100,
		MutateRateWindow:  time.Second,
		EventRelayEnabled: true,
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	statusSec, err := getEnvInt("STATUS_INTERVAL_SEC", int(cfg.StatusInterval.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid STATUS_INTERVAL_SEC: %w", err)
	}
	if statusSec <= 0 {
		return AppConfig{}, fmt.Errorf("STATUS_INTERVAL_SEC must be > 0")
	}
	cfg.StatusInterval = time.Duration(statusSec) * time.Second

	rateLimit, err := getEnvInt("MUTATE_RATE_LIMIT", cfg.MutateRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid MUTATE_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("MUTATE_RATE_LIMIT must be > 0")
	}
	cfg.MutateRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("MUTATE_RATE_WINDOW_SEC", int(cfg.MutateRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid MUTATE_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("MUTATE_RATE_WINDOW_SEC must be > 0")
	}
	cfg.MutateRateWindow = time.Duration(rateWindowSec) * time.Second

	relayEnabled, err := getEnvBool("EVENT_RELAY_ENABLED", cfg.EventRelayEnabled)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid EVENT_RELAY_ENABLED: %w", err)
	}
	cfg.EventRelayEnabled = relayEnabled

	if len(cfg.AllowOrigins) == 0 {
		return AppConfig{}, fmt.Errorf("ALLOW_ORIGINS must not be empty")
	}
	if cfg.EventRelayEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
		}
		if cfg.KafkaTopic == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
		}
		if cfg.KafkaGroupID == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
		}
		if cfg.EventStream == "" {
			return AppConfig{}, fmt.Errorf("EVENT_STREAM must not be empty")
		}
		if cfg.EventGroup == "" {
			return AppConfig{}, fmt.Errorf("EVENT_GROUP must not be empty")
		}
		if cfg.EventConsumer == "" {
			return AppConfig{}, fmt.Errorf("EVENT_CONSUMER must not be empty")
		}
	}

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

// getEnvBool 读取布尔环境变量，若为空则返回默认值。
func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
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
