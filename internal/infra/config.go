package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config - корневая структура конфигурации всех сервисов модерации.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Console    ServerConfig     `mapstructure:"console"`
	Catalog    ServerConfig     `mapstructure:"catalog"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	GRPC       GRPCConfig       `mapstructure:"grpc"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Bus        BusConfig        `mapstructure:"bus"`
	Journal    JournalConfig    `mapstructure:"journal"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig описывает подключение к PostgreSQL (леджер, каталог, журнал).
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig описывает подключение к Redis (Streams шины и Pub/Sub поиска).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT операторов.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для Console API
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"` // health-check воркера
}

// ClassifierConfig - внешняя модель и защита вызовов к ней.
type ClassifierConfig struct {
	Provider       string        `mapstructure:"provider"` // genai, mock
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	Temperature    float32       `mapstructure:"temperature"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RefusalMarkers []string      `mapstructure:"refusal_markers"`

	RateLimit float64 `mapstructure:"rate_limit"` // запросов в секунду
	RateBurst int     `mapstructure:"rate_burst"`

	// Настройки Circuit Breaker для внешней модели
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBFailures    uint32        `mapstructure:"cb_failures"`
}

// ModerationConfig - параметры алгоритма модерации.
type ModerationConfig struct {
	MaxSegmentLength    int     `mapstructure:"max_segment_length"`
	BoundaryWindow      int     `mapstructure:"boundary_window"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	CatalogReasonLimit  int     `mapstructure:"catalog_reason_limit"`
	MergedReasonLimit   int     `mapstructure:"merged_reason_limit"`
}

// BusConfig - Redis Streams: группы потребителей, повторы, DLQ.
type BusConfig struct {
	Group           string        `mapstructure:"group"`
	MaxDeliveries   int64         `mapstructure:"max_deliveries"`
	ClaimAfter      time.Duration `mapstructure:"claim_after"`
	Block           time.Duration `mapstructure:"block"`
	Batch           int64         `mapstructure:"batch"`
	StreamMaxLen    int64         `mapstructure:"stream_max_len"`
	PublishAttempts uint          `mapstructure:"publish_attempts"`
}

type JournalConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, *viper.Viper, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: MODERATION_CONFIDENCE_THRESHOLD=0.85 перекроет moderation.confidence_threshold
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(replacer())

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет - работаем на ENV и дефолтах
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s), иначе читаем файл
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	if cfg.Moderation.ConfidenceThreshold <= 0 || cfg.Moderation.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("moderation.confidence_threshold must be in (0, 1], got %v", cfg.Moderation.ConfidenceThreshold)
	}
	if cfg.Moderation.MaxSegmentLength <= 0 {
		return nil, fmt.Errorf("moderation.max_segment_length must be positive")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("console.port", 8000)
	v.SetDefault("console.read_timeout", 5*time.Second)
	v.SetDefault("console.write_timeout", 10*time.Second)
	v.SetDefault("catalog.port", 8010)
	v.SetDefault("catalog.read_timeout", 5*time.Second)
	v.SetDefault("catalog.write_timeout", 10*time.Second)

	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("grpc.addr", ":50052")

	v.SetDefault("classifier.provider", "genai")
	v.SetDefault("classifier.model", "gemini-2.5-flash")
	v.SetDefault("classifier.timeout", 60*time.Second)
	v.SetDefault("classifier.rate_limit", 5.0)
	v.SetDefault("classifier.rate_burst", 5)
	v.SetDefault("classifier.cb_max_requests", 3)
	v.SetDefault("classifier.cb_interval", 60*time.Second)
	v.SetDefault("classifier.cb_timeout", 30*time.Second)
	v.SetDefault("classifier.cb_failures", 5)

	v.SetDefault("moderation.max_segment_length", 5000)
	v.SetDefault("moderation.boundary_window", 200)
	v.SetDefault("moderation.confidence_threshold", 0.8)
	v.SetDefault("moderation.catalog_reason_limit", 500)
	v.SetDefault("moderation.merged_reason_limit", 500)

	v.SetDefault("bus.group", "moderation")
	v.SetDefault("bus.max_deliveries", 5)
	v.SetDefault("bus.claim_after", 30*time.Second)
	v.SetDefault("bus.block", 5*time.Second)
	v.SetDefault("bus.batch", 10)
	v.SetDefault("bus.stream_max_len", 100000)
	v.SetDefault("bus.publish_attempts", 3)

	v.SetDefault("journal.buffer_size", 1000)
	v.SetDefault("journal.batch_size", 100)
	v.SetDefault("journal.flush_interval", 1*time.Second)
}

// WatchLogLevel перечитывает logger.level при изменении файла конфига без рестарта.
func WatchLogLevel(v *viper.Viper, level zap.AtomicLevel, logger *zap.Logger) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := zap.ParseAtomicLevel(v.GetString("logger.level"))
		if err != nil {
			logger.Warn("invalid logger.level in reloaded config", zap.Error(err))
			return
		}
		if next.Level() != level.Level() {
			level.SetLevel(next.Level())
			logger.Info("log level changed", zap.String("file", e.Name), zap.Stringer("level", next.Level()))
		}
	})
	v.WatchConfig()
}

func replacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

// loadKeyResource - ключ из ENV (PEM) или из файла по пути из конфига
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
