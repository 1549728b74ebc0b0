package storage

import (
	"fmt"

	"PgLogPump/internal/config"
)

// ProcessedStore - смещения прочитанных файлов логов: путь → байтовый offset.
// Watcher загружает их при старте и продолжает tail с сохранённого места.
type ProcessedStore interface {
	Load() (map[string]int64, error)
	Save(data map[string]int64) error
}

// NewProcessedStore выбирает хранилище по ProcessedStorage из конфига
func NewProcessedStore(cfg *config.Config) (ProcessedStore, error) {
	switch cfg.ProcessedStorage {
	case config.StorageRedis:
		return NewRedisStore(&cfg.Redis)
	case config.StorageFile, "":
		return NewFileStore(cfg.ProcessedFile), nil
	}
	return nil, fmt.Errorf("неизвестное хранилище смещений %q", cfg.ProcessedStorage)
}
