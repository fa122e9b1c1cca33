package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"routinely"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"routinely"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"rtn"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// Telegram 投递配置
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	MessengerMock    bool   `env:"MESSENGER_MOCK" envDefault:"false"` // 开发环境下可用 mock 投递

	// 投递限流配置
	DeliveryRatePerSec  int           `env:"DELIVERY_RATE_PER_SEC" envDefault:"25"`
	DeliveryMaxInFlight int           `env:"DELIVERY_MAX_IN_FLIGHT" envDefault:"8"`
	DeliveryMaxRetries  int           `env:"DELIVERY_MAX_RETRIES" envDefault:"4"`
	DeliveryRetryBase   time.Duration `env:"DELIVERY_RETRY_BASE" envDefault:"500ms"`
	DeliveryTimeout     time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"10s"`

	// 提醒调度配置
	HorizonDays         int           `env:"REMINDER_HORIZON_DAYS" envDefault:"30"`
	GenerationInterval  time.Duration `env:"GENERATION_INTERVAL" envDefault:"6h"` // 滚动生成周期
	EscalationLevel1    time.Duration `env:"ESCALATION_LEVEL1_OFFSET" envDefault:"15m"` // 自首次发送起算
	EscalationLevel2    time.Duration `env:"ESCALATION_LEVEL2_OFFSET" envDefault:"45m"`
	AutoSkipOffset      time.Duration `env:"AUTO_SKIP_OFFSET" envDefault:"60m"`
	DefaultMaxPostpones int           `env:"DEFAULT_MAX_POSTPONES" envDefault:"2"`
	DefaultPostponeMins int           `env:"DEFAULT_POSTPONE_MINUTES" envDefault:"15"`
	DefaultQuietStart   string        `env:"DEFAULT_QUIET_START" envDefault:"23:00"`
	DefaultQuietEnd     string        `env:"DEFAULT_QUIET_END" envDefault:"08:00"`
	DailyReminderCap    int           `env:"DAILY_REMINDER_CAP" envDefault:"60"` // 单用户每日触达上限

	// Worker 配置
	DeliverPrefetch  int `env:"DELIVER_PREFETCH" envDefault:"10"`
	EscalatePrefetch int `env:"ESCALATE_PREFETCH" envDefault:"10"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// OpenTelemetry 指标配置
	MetricsEnabled  bool   `env:"METRICS_ENABLED" envDefault:"false"`
	MetricsEndpoint string `env:"METRICS_ENDPOINT" envDefault:"localhost:4317"`

	// 速率限制配置, 配置在中间件内
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"100"` // 每秒请求数
}

func init() {

	if err := godotenv.Load(); err != nil {

		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}

	validateConfig()
}

func validateConfig() {
	// 升级间隔必须严格递增，否则自动跳过会先于二级提醒触发
	if Cfg.EscalationLevel1 <= 0 ||
		Cfg.EscalationLevel2 <= Cfg.EscalationLevel1 ||
		Cfg.AutoSkipOffset <= Cfg.EscalationLevel2 {
		log.Fatal("escalation offsets must be strictly increasing: level1 < level2 < auto-skip")
	}

	if Cfg.HorizonDays < 1 {
		log.Fatal("REMINDER_HORIZON_DAYS must be at least 1")
	}

	if Cfg.DeliveryRatePerSec <= 0 {
		log.Fatal("DELIVERY_RATE_PER_SEC must be positive")
	}

	if Cfg.DefaultMaxPostpones < 0 {
		log.Fatal("DEFAULT_MAX_POSTPONES must not be negative")
	}

	if Cfg.TelegramBotToken == "" && !Cfg.MessengerMock {
		log.Printf("WARN: TELEGRAM_BOT_TOKEN is not set, delivery will not work unless MESSENGER_MOCK=true")
	}
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
