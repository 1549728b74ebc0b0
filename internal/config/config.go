package config

import (
	"fmt"
	"os"
	"time"
)

// PostgresConfig содержит строку подключения, таблицу назначения и режим записи
// Обязательны: ConnectionString, Table
// Длины 0 означают значения по умолчанию (char/varchar 50, bit 8)
type PostgresConfig struct {
	ConnectionString     string `yaml:"ConnectionString"`
	Schema               string `yaml:"Schema"`
	Table                string `yaml:"Table"`
	UseCopy              bool   `yaml:"UseCopy"`
	NeedAutoCreateTable  bool   `yaml:"NeedAutoCreateTable"`
	NeedAutoCreateSchema bool   `yaml:"NeedAutoCreateSchema"`
	CharLength           int    `yaml:"CharLength"`
	VarcharLength        int    `yaml:"VarcharLength"`
	BitLength            int    `yaml:"BitLength"`
}

// ColumnConfig - декларативное описание одной колонки
// Writer: rendered_message, message_template, level, timestamp, exception,
// properties, log_event, single_property, identity
type ColumnConfig struct {
	Name         string `yaml:"Name"`
	Writer       string `yaml:"Writer"`
	Type         string `yaml:"Type,omitempty"`
	Order        *int   `yaml:"Order,omitempty"`
	RenderAsText bool   `yaml:"RenderAsText,omitempty"`
	Property     string `yaml:"Property,omitempty"`
	WriteMethod  string `yaml:"WriteMethod,omitempty"`
	Format       string `yaml:"Format,omitempty"`
}

// BatchConfig - параметры пакетного режима
type BatchConfig struct {
	SizeLimit     int `yaml:"SizeLimit"`
	QueueLimit    int `yaml:"QueueLimit"`
	PeriodSeconds int `yaml:"PeriodSeconds"`
}

// Period - интервал отправки пачек
func (b BatchConfig) Period() time.Duration {
	return time.Duration(b.PeriodSeconds) * time.Second
}

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Host     string `yaml:"Host"`
	Port     int    `yaml:"Port"`
	DB       int    `yaml:"DB"`
	Password string `yaml:"Password"`
	Key      string `yaml:"Key"`
}

// Addr - host:port для клиента
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoggingConfig содержит настройки логирования и интеграции с Sentry
type LoggingConfig struct {
	Level        string `yaml:"Level"`        // минимальный уровень консоли (debug, info, warn, error)
	LogFile      string `yaml:"LogFile"`      // путь к файлу логов
	SentryDSN    string `yaml:"SentryDSN"`    // DSN для Sentry
	EnableSentry bool   `yaml:"EnableSentry"` // включить отправку ошибок в Sentry
}

// MetricsConfig - адрес HTTP-сервера /metrics; пусто - метрики не публикуются
type MetricsConfig struct {
	Address string `yaml:"Address"`
}

// Config описывает основные настройки сервиса
// LogDirectoryMap и FilePattern обязательны
// Columns пуст - используется набор колонок по умолчанию
// Audit включает синхронную запись каждого события вместо пачек
type Config struct {
	Postgres PostgresConfig `yaml:"Postgres"`
	Columns  []ColumnConfig `yaml:"Columns"`
	Batch    BatchConfig    `yaml:"Batch"`
	Audit    bool           `yaml:"Audit"`

	LogDirectoryMap map[string]string `yaml:"LogDirectoryMap"`
	FilePattern     string            `yaml:"FilePattern"`
	RescanInterval  int               `yaml:"RescanInterval"` // секунды

	ProcessedStorage string        `yaml:"ProcessedStorage"` // "file" или "redis"
	ProcessedFile    string        `yaml:"ProcessedFile"`
	Redis            RedisConfig   `yaml:"Redis"`
	Logging          LoggingConfig `yaml:"Logging"`
	Metrics          MetricsConfig `yaml:"Metrics"`
}

// Значения по умолчанию
const (
	DefaultRescanInterval = 60
	DefaultProcessedFile  = "processed_files.json"
	DefaultRedisKey       = "pglogpump:offsets"

	StorageFile  = "file"
	StorageRedis = "redis"
)

// LoadConfig читает и парсит конфиг из YAML-файла по указанному пути.
// Шаги:
// 1. Чтение сырого файла
// 2. Очистка данных: удаление BOM, замена табуляций
// 3. Парсинг YAML через viper, переменные окружения PGLOGPUMP_* перекрывают файл
// 4. Валидация обязательных полей
func LoadConfig(path string) (*Config, error) {
	// 1. Чтение
	raw, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// 2. Очистка
	sanitized := sanitize(raw)

	// 3. Парсинг
	cfg, err := parseYAML(sanitized)
	if err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// 4. Валидация
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// readFile читает все байты из файла по пути
func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
