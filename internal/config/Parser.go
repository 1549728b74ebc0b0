package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix - префикс переменных окружения: PGLOGPUMP_POSTGRES_CONNECTIONSTRING и т.п.
const EnvPrefix = "PGLOGPUMP"

// sanitize удаляет BOM и табуляции
func sanitize(data []byte) []byte {
	// Удаляем UTF-8 BOM
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	// Заменяем табы на два пробела
	data = bytes.ReplaceAll(data, []byte("\t"), []byte("  "))
	return data
}

// newViper задаёт значения по умолчанию. Из окружения Unmarshal видит только ключи, известные viper,
// поэтому default есть у каждого скалярного поля Config.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("Postgres.ConnectionString", "")
	v.SetDefault("Postgres.Schema", "")
	v.SetDefault("Postgres.Table", "")
	v.SetDefault("Postgres.UseCopy", false)
	v.SetDefault("Postgres.NeedAutoCreateTable", false)
	v.SetDefault("Postgres.NeedAutoCreateSchema", false)
	v.SetDefault("Postgres.CharLength", 0)
	v.SetDefault("Postgres.VarcharLength", 0)
	v.SetDefault("Postgres.BitLength", 0)
	v.SetDefault("Batch.SizeLimit", 50)
	v.SetDefault("Batch.QueueLimit", 100000)
	v.SetDefault("Batch.PeriodSeconds", 5)
	v.SetDefault("Audit", false)
	v.SetDefault("FilePattern", "")
	v.SetDefault("RescanInterval", DefaultRescanInterval)
	v.SetDefault("ProcessedStorage", StorageFile)
	v.SetDefault("ProcessedFile", DefaultProcessedFile)
	v.SetDefault("Redis.Host", "localhost")
	v.SetDefault("Redis.Port", 6379)
	v.SetDefault("Redis.DB", 0)
	v.SetDefault("Redis.Key", DefaultRedisKey)
	v.SetDefault("Redis.Password", "")
	v.SetDefault("Logging.Level", "debug")
	v.SetDefault("Logging.LogFile", "")
	v.SetDefault("Logging.SentryDSN", "")
	v.SetDefault("Logging.EnableSentry", false)
	v.SetDefault("Metrics.Address", "")
	return v
}

// parseYAML парсит YAML-данные в структуру Config
func parseYAML(data []byte) (*Config, error) {
	v := newViper()
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные поля конфигурации
func (c *Config) Validate() error {
	if c.Postgres.ConnectionString == "" {
		return fmt.Errorf("Postgres.ConnectionString must not be empty")
	}
	if strings.Trim(c.Postgres.Table, `" `) == "" {
		return fmt.Errorf("Postgres.Table must not be empty")
	}
	if c.Postgres.CharLength < 0 || c.Postgres.VarcharLength < 0 || c.Postgres.BitLength < 0 {
		return fmt.Errorf("Postgres type lengths must not be negative")
	}
	if len(c.LogDirectoryMap) == 0 {
		return fmt.Errorf("LogDirectoryMap must not be empty")
	}
	if c.FilePattern == "" {
		return fmt.Errorf("FilePattern must not be empty")
	}
	if c.Batch.SizeLimit <= 0 {
		return fmt.Errorf("Batch.SizeLimit must be positive")
	}
	if c.Batch.QueueLimit < c.Batch.SizeLimit {
		return fmt.Errorf("Batch.QueueLimit must be at least Batch.SizeLimit")
	}
	if c.Batch.PeriodSeconds <= 0 {
		return fmt.Errorf("Batch.PeriodSeconds must be positive")
	}
	if c.RescanInterval <= 0 {
		return fmt.Errorf("RescanInterval must be positive")
	}
	switch c.ProcessedStorage {
	case StorageFile:
		if c.ProcessedFile == "" {
			return fmt.Errorf("ProcessedFile must not be empty")
		}
	case StorageRedis:
		if c.Redis.Host == "" || c.Redis.Port <= 0 {
			return fmt.Errorf("Redis.Host and Redis.Port must be set")
		}
	default:
		return fmt.Errorf("ProcessedStorage must be %q or %q, got %q", StorageFile, StorageRedis, c.ProcessedStorage)
	}
	if _, err := BuildRegistry(c.Columns); err != nil {
		return fmt.Errorf("Columns: %w", err)
	}
	return nil
}
