package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"PgLogPump/internal/config"
)

// sentryFlushTimeout - сколько ждём доставки события в Sentry
const sentryFlushTimeout = 2 * time.Second

// InitZap инициализирует zap-логгер:
// - в консоль выводятся сообщения от cfg.Level (по умолчанию Debug+);
// - в файл - только ошибки (Error+);
// - при EnableSentry отправляет Error+ в Sentry.
func InitZap(cfg *config.LoggingConfig) (*zap.Logger, error) {
	consoleLevel := zapcore.DebugLevel
	if cfg.Level != "" {
		if err := consoleLevel.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("неизвестный уровень логирования %q: %w", cfg.Level, err)
		}
	}
	fileLevel := zapcore.ErrorLevel

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stdout), consoleLevel),
	}

	// файловое ядро - только если указан путь
	if cfg.LogFile != "" {
		fileWS, err := openLogFile(cfg.LogFile)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), fileWS, fileLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(fileLevel))

	if cfg.EnableSentry && cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			// без Sentry сервис работает, ошибка только в журнал
			logger.Warn("Sentry init failed", zap.Error(err))
		} else {
			logger = logger.WithOptions(zap.Hooks(sentryHook))
		}
	}
	return logger, nil
}

// openLogFile создаёт директорию и открывает файл на дозапись
func openLogFile(path string) (zapcore.WriteSyncer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть лог-файл %s: %w", path, err)
	}
	return zapcore.AddSync(f), nil
}

// sentryHook отправляет Error+ в Sentry с именем логгера и местом вызова
func sentryHook(entry zapcore.Entry) error {
	if entry.Level < zapcore.ErrorLevel {
		return nil
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentryLevel(entry.Level))
		scope.SetTag("logger", entry.LoggerName)
		if entry.Caller.Defined {
			scope.SetTag("caller", entry.Caller.TrimmedPath())
		}
		sentry.CaptureMessage(entry.Message)
	})
	sentry.Flush(sentryFlushTimeout)
	return nil
}

func sentryLevel(l zapcore.Level) sentry.Level {
	switch l {
	case zapcore.ErrorLevel:
		return sentry.LevelError
	case zapcore.WarnLevel:
		return sentry.LevelWarning
	case zapcore.InfoLevel:
		return sentry.LevelInfo
	case zapcore.DebugLevel:
		return sentry.LevelDebug
	}
	return sentry.LevelFatal
}
