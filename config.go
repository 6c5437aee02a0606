package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port          string
	LogLevel      LogLevel
	LogPIIMasking bool
	GatewaysFile  string
	RandomSeed    uint64

	PaymentLatencyMin time.Duration
	PaymentLatencyMax time.Duration
	RefundLatencyMin  time.Duration
	RefundLatencyMax  time.Duration

	MaxBodyBytes    int64
	ShutdownTimeout time.Duration

	Redis RedisConfig
	MySQL MySQLConfig
}

// RedisConfig enables the result cache when Addr is set
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	ResultTTL time.Duration
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// MySQLConfig enables the transaction event log when Host is set
type MySQLConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

func (c MySQLConfig) Enabled() bool { return c.Host != "" }

func (c MySQLConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, c.Port)
	cfg.DBName = c.Database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3000")
	v.SetDefault("LOG_LEVEL", string(LogLevelInfo))
	v.SetDefault("LOG_PII_MASKING", true)
	v.SetDefault("GATEWAYS_FILE", "")
	v.SetDefault("RANDOM_SEED", 0)
	v.SetDefault("PAYMENT_LATENCY_MIN", 100*time.Millisecond)
	v.SetDefault("PAYMENT_LATENCY_MAX", 500*time.Millisecond)
	v.SetDefault("REFUND_LATENCY_MIN", 100*time.Millisecond)
	v.SetDefault("REFUND_LATENCY_MAX", 300*time.Millisecond)
	v.SetDefault("MAX_BODY_BYTES", 10*1024)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RESULT_TTL", 24*time.Hour)
	v.SetDefault("MYSQL_HOST", "")
	v.SetDefault("MYSQL_PORT", "3306")
	v.SetDefault("MYSQL_USER", "")
	v.SetDefault("MYSQL_PASSWORD", "")
	v.SetDefault("MYSQL_DATABASE", "")
}

// LoadConfig reads .env (if present), the environment and the optional YAML
// file named by CONFIG_FILE. Environment variables win over the file.
func LoadConfig() (Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	setConfigDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	return configFromViper(v)
}

func configFromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:              v.GetString("PORT"),
		LogLevel:          ParseLogLevel(v.GetString("LOG_LEVEL")),
		LogPIIMasking:     v.GetBool("LOG_PII_MASKING"),
		GatewaysFile:      v.GetString("GATEWAYS_FILE"),
		RandomSeed:        v.GetUint64("RANDOM_SEED"),
		PaymentLatencyMin: v.GetDuration("PAYMENT_LATENCY_MIN"),
		PaymentLatencyMax: v.GetDuration("PAYMENT_LATENCY_MAX"),
		RefundLatencyMin:  v.GetDuration("REFUND_LATENCY_MIN"),
		RefundLatencyMax:  v.GetDuration("REFUND_LATENCY_MAX"),
		MaxBodyBytes:      v.GetInt64("MAX_BODY_BYTES"),
		ShutdownTimeout:   v.GetDuration("SHUTDOWN_TIMEOUT"),
		Redis: RedisConfig{
			Addr:      v.GetString("REDIS_ADDR"),
			Password:  v.GetString("REDIS_PASSWORD"),
			DB:        v.GetInt("REDIS_DB"),
			ResultTTL: v.GetDuration("RESULT_TTL"),
		},
		MySQL: MySQLConfig{
			Host:     v.GetString("MYSQL_HOST"),
			Port:     v.GetString("MYSQL_PORT"),
			User:     v.GetString("MYSQL_USER"),
			Password: v.GetString("MYSQL_PASSWORD"),
			Database: v.GetString("MYSQL_DATABASE"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.PaymentLatencyMin < 0 || c.PaymentLatencyMax < c.PaymentLatencyMin {
		return fmt.Errorf("invalid payment latency range %s..%s", c.PaymentLatencyMin, c.PaymentLatencyMax)
	}
	if c.RefundLatencyMin < 0 || c.RefundLatencyMax < c.RefundLatencyMin {
		return fmt.Errorf("invalid refund latency range %s..%s", c.RefundLatencyMin, c.RefundLatencyMax)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}
