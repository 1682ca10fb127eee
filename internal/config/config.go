package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/thereayou/marketchat/internal/logging"
)

// WebSocketConfig тайминги сокета
type WebSocketConfig struct {
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	SendQueueSize    int           `mapstructure:"send_queue_size"`
}

// ReconnectConfig необязательное переподключение, по умолчанию выключено
type ReconnectConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	PublicURL       string `mapstructure:"public_url"`
}

// ClientConfig всё, что нужно клиенту мессенджера
type ClientConfig struct {
	APIBaseURL        string          `mapstructure:"api_base_url"`
	SocketURL         string          `mapstructure:"socket_url"`
	Token             string          `mapstructure:"token"`
	UserID            string          `mapstructure:"user_id"`
	PollInterval      time.Duration   `mapstructure:"poll_interval"`
	RequestTimeout    time.Duration   `mapstructure:"request_timeout"`
	MaxAttachmentSize int64           `mapstructure:"max_attachment_size"`
	WebSocket         WebSocketConfig `mapstructure:"websocket"`
	Reconnect         ReconnectConfig `mapstructure:"reconnect"`
	S3                S3Config        `mapstructure:"s3"`
	Log               logging.Config  `mapstructure:"log"`
}

// ServerConfig справочный сервер протокола
type ServerConfig struct {
	Port            string          `mapstructure:"port"`
	DatabaseURL     string          `mapstructure:"database_url"`
	RedisURL        string          `mapstructure:"redis_url"`
	JWTSecret       string          `mapstructure:"jwt_secret"`
	TokenTTL        time.Duration   `mapstructure:"token_ttl"`
	HistoryPageSize int             `mapstructure:"history_page_size"`
	WebSocket       WebSocketConfig `mapstructure:"websocket"`
	Log             logging.Config  `mapstructure:"log"`
}

func loadEnvFiles() {
	if err := godotenv.Load(".env.local"); err != nil {
		_ = godotenv.Load()
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func setWebSocketDefaults(v *viper.Viper) {
	v.SetDefault("websocket.ping_period", "54s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.handshake_timeout", "10s")
	v.SetDefault("websocket.max_message_size", 512*1024)
	v.SetDefault("websocket.send_queue_size", 256)
}

// LoadClient читает конфиг клиента из .env, config.yaml и переменных окружения
func LoadClient() (*ClientConfig, error) {
	loadEnvFiles()

	v := newViper()
	v.SetDefault("api_base_url", "http://localhost:8080")
	v.SetDefault("socket_url", "ws://localhost:8080")
	v.SetDefault("poll_interval", "10s")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("max_attachment_size", 15<<20)
	setWebSocketDefaults(v)
	v.SetDefault("reconnect.enabled", false)
	v.SetDefault("reconnect.max_attempts", 5)
	v.SetDefault("reconnect.base_delay", "1s")
	v.SetDefault("reconnect.max_delay", "30s")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service", "marketchat-client")

	v.BindEnv("api_base_url", "CHAT_API_URL")
	v.BindEnv("socket_url", "CHAT_SOCKET_URL")
	v.BindEnv("token", "CHAT_TOKEN")
	v.BindEnv("user_id", "CHAT_USER_ID")
	v.BindEnv("s3.endpoint", "S3_ENDPOINT")
	v.BindEnv("s3.bucket", "S3_BUCKET")
	v.BindEnv("s3.access_key_id", "S3_ACCESS_KEY_ID")
	v.BindEnv("s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("s3.public_url", "S3_PUBLIC_URL")
	v.BindEnv("log.level", "LOG_LEVEL")

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.APIBaseURL = strings.TrimSuffix(cfg.APIBaseURL, "/")
	cfg.SocketURL = strings.TrimSuffix(cfg.SocketURL, "/")

	return &cfg, nil
}

// LoadServer читает конфиг справочного сервера
func LoadServer() (*ServerConfig, error) {
	loadEnvFiles()

	v := newViper()
	v.SetDefault("port", "8080")
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("history_page_size", 30)
	setWebSocketDefaults(v)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service", "marketchat-server")

	v.BindEnv("port", "PORT")
	v.BindEnv("database_url", "DATABASE_URL")
	v.BindEnv("redis_url", "REDIS_URL")
	v.BindEnv("jwt_secret", "JWT_SECRET")
	v.BindEnv("log.level", "LOG_LEVEL")

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}

	return &cfg, nil
}
