package app

import (
	"time"

	"github.com/vladislavdragonenkov/foodies/internal/messaging/kafka"
)

// OrderStoreDriver выбирает backend локального хранилища заказов.
type OrderStoreDriver string

const (
	OrderStoreSQLite OrderStoreDriver = "sqlite"
	OrderStoreMemory OrderStoreDriver = "memory"
)

// CacheDriver выбирает backend поколений кеша ресурсов.
type CacheDriver string

const (
	CacheDriverMemory CacheDriver = "memory"
	CacheDriverRedis  CacheDriver = "redis"
)

// StorageDriver выбирает хранилище принятых заказов order-api.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// ClientConfig описывает запуск offline-client.
type ClientConfig struct {
	// ListenAddr задаёт адрес локального прокси для страницы.
	ListenAddr string
	// OriginURL — origin статических ресурсов; он же цель проверки связности.
	OriginURL string
	// RemoteURL указывает на POST /api/orders.
	RemoteURL string
	DataDir   string

	OrderStore   OrderStoreDriver
	CacheDriver  CacheDriver
	RedisAddr    string
	ManifestPath string

	ProbeInterval time.Duration
	HTTPTimeout   time.Duration
}

// DefaultClientConfig возвращает настройки клиента по умолчанию.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ListenAddr:    ":8080",
		OriginURL:     "http://localhost:8081",
		RemoteURL:     "http://localhost:8081/api/orders",
		DataDir:       "./data",
		OrderStore:    OrderStoreSQLite,
		CacheDriver:   CacheDriverMemory,
		RedisAddr:     "localhost:6379",
		ProbeInterval: 5 * time.Second,
		HTTPTimeout:   10 * time.Second,
	}
}

// ServerConfig описывает запуск order-api.
type ServerConfig struct {
	APIAddr     string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers — список через запятую; пусто — события не публикуются.
	KafkaBrokers string
	KafkaTopic   string

	// StaticDir указывает каталог ресурсов, которые order-api отдаёт как origin.
	StaticDir string

	// OrderRetention — срок хранения принятых заказов; 0 отключает очистку.
	OrderRetention    time.Duration
	RetentionInterval time.Duration
}

// DefaultServerConfig возвращает настройки order-api по умолчанию.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		APIAddr:             ":8081",
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		KafkaTopic:          kafka.TopicOrderEvents,
		StaticDir:           "./web",
		OrderRetention:      7 * 24 * time.Hour,
		RetentionInterval:   10 * time.Minute,
	}
}
