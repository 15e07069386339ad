package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ServicePort      string
	MetricsPort      string
	GRPCPort         string
	LogLevel         string
	PostgreSQLConfig PostgreSQLConfig
	RedisConfig      RedisConfig
	JWTSecret        string
	MidtransConfig   MidtransConfig
	KafkaConfig      KafkaConfig
	BackendConfig    BackendConfig
	CheckoutConfig   CheckoutConfig
	SMTPConfig       SMTPConfig
	TracingConfig    TracingConfig
}

type PostgreSQLConfig struct {
	DBHost       string
	DBPort       string
	DBUsername   string
	DBPassword   string
	DBName       string
	MaxOpenConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	TTL      time.Duration
}

type MidtransConfig struct {
	ServerKey   string
	Environment string
}

type KafkaConfig struct {
	BrokerAddress string
	BrokerTopic   string
	LedgerTopic   string
	GroupID       string
}

type BackendConfig struct {
	PointsServiceHost string
	CouponServiceHost string
	OrderServiceHost  string
	// ServiceToken authenticates calls made without a buyer token, such as
	// verification triggered by a gateway notification.
	ServiceToken      string
	Timeout           time.Duration
}

type CheckoutConfig struct {
	PointUnit      int64
	DraftTTL       time.Duration
	SweepInterval  time.Duration
	CleanupTimeout time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

type TracingConfig struct {
	CollectorHost string
}

func CreateNewConfig() *Config {
	godotenv.Load(".env")

	conf := Config{
		ServicePort: os.Getenv("SERVICE_PORT"),
		MetricsPort: os.Getenv("METRICS_PORT"),
		GRPCPort:    os.Getenv("GRPC_PORT"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		PostgreSQLConfig: PostgreSQLConfig{
			DBHost:       os.Getenv("DB_HOST"),
			DBName:       os.Getenv("DB_NAME"),
			DBPort:       os.Getenv("DB_PORT"),
			DBUsername:   os.Getenv("DB_USERNAME"),
			DBPassword:   os.Getenv("DB_PASSWORD"),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 25),
		},
		RedisConfig: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			TTL:      getDuration("REDIS_BALANCE_TTL", time.Minute),
		},
		KafkaConfig: KafkaConfig{
			BrokerAddress: os.Getenv("BROKER_ADDRESS"),
			BrokerTopic:   os.Getenv("BROKER_TOPIC"),
			LedgerTopic:   os.Getenv("LEDGER_TOPIC"),
			GroupID:       os.Getenv("KAFKA_GROUP_ID"),
		},
		JWTSecret: os.Getenv("JWT_SECRET"),
		MidtransConfig: MidtransConfig{
			ServerKey:   os.Getenv("MIDTRANS_SERVER_KEY"),
			Environment: os.Getenv("MIDTRANS_ENVIRONMENT"),
		},
		BackendConfig: BackendConfig{
			PointsServiceHost: os.Getenv("POINTS_SERVICE_HOST"),
			CouponServiceHost: os.Getenv("COUPON_SERVICE_HOST"),
			OrderServiceHost:  os.Getenv("ORDER_SERVICE_HOST"),
			ServiceToken:      os.Getenv("ORDER_SERVICE_TOKEN"),
			Timeout:           getDuration("HTTP_CLIENT_TIMEOUT", 10*time.Second),
		},
		CheckoutConfig: CheckoutConfig{
			PointUnit:      int64(getInt("POINT_UNIT", 10)),
			DraftTTL:       getDuration("DRAFT_TTL", 30*time.Minute),
			SweepInterval:  getDuration("SWEEP_INTERVAL", time.Minute),
			CleanupTimeout: getDuration("CLEANUP_TIMEOUT", 5*time.Second),
		},
		SMTPConfig: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			Sender:   os.Getenv("SMTP_SENDER"),
		},
		TracingConfig: TracingConfig{
			CollectorHost: os.Getenv("COLLECTOR_HOST"),
		},
	}

	return &conf
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Err(err).Str("component", "CreateNewConfig").Str("key", key).Msg("using default")
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Err(err).Str("component", "CreateNewConfig").Str("key", key).Msg("using default")
		return fallback
	}

	return v
}
