package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"PgLogPump/internal/config"
	"PgLogPump/internal/logger"
	"PgLogPump/internal/metrics"
	"PgLogPump/internal/models"
	"PgLogPump/internal/pgsink"
	"PgLogPump/internal/storage"
	"PgLogPump/internal/watcher"
)

var configPath string

// errQueueFull - очередь пакетного режима переполнена, событие отброшено
var errQueueFull = errors.New("batch queue is full")

func main() {
	rootCmd := &cobra.Command{
		Use:   "pglogpump",
		Short: "PgLogPump - structured log shipper to PostgreSQL",
		Long:  "Tails CLEF (JSON lines) log files and writes events into a PostgreSQL table in batches or in audit mode",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	rootCmd.AddCommand(runCmd(), ddlCmd(), columnsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newSink собирает pgsink.Options из конфига
func newSink(cfg *config.Config, lg *zap.Logger, m *metrics.Metrics) (*pgsink.Sink, error) {
	reg, err := config.BuildRegistry(cfg.Columns)
	if err != nil {
		return nil, err
	}
	return pgsink.New(pgsink.Options{
		ConnectionString:     cfg.Postgres.ConnectionString,
		Schema:               cfg.Postgres.Schema,
		Table:                cfg.Postgres.Table,
		Columns:              reg,
		TypeMapping:          cfg.Postgres.TypeMapping(),
		UseCopy:              cfg.Postgres.UseCopy,
		NeedAutoCreateTable:  cfg.Postgres.NeedAutoCreateTable,
		NeedAutoCreateSchema: cfg.Postgres.NeedAutoCreateSchema,
		BatchSizeLimit:       cfg.Batch.SizeLimit,
		QueueLimit:           cfg.Batch.QueueLimit,
		Period:               cfg.Batch.Period(),
		OnCreateSchema: func(_ context.Context, schema string) {
			lg.Info("Схема готова", zap.String("schema", schema))
		},
		OnCreateTable: func(_ context.Context, schema, table string) {
			lg.Info("Таблица готова", zap.String("schema", schema), zap.String("table", table))
		},
		Logger:  lg,
		Metrics: m,
	})
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the log pump",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			rootLogger, err := logger.InitZap(&cfg.Logging)
			if err != nil {
				return err
			}
			lg := rootLogger.Named("main")
			defer func() { _ = rootLogger.Sync() }()
			lg.Info("Сервис PgLogPump стартует…", zap.String("config", configPath), zap.Bool("audit", cfg.Audit))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, rootLogger)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, rootLogger *zap.Logger) error {
	lg := rootLogger.Named("main")
	m := metrics.New("pglogpump")

	sink, err := newSink(cfg, rootLogger.Named("sink"), m)
	if err != nil {
		return fmt.Errorf("sink: %w", err)
	}

	store, err := storage.NewProcessedStore(cfg)
	if err != nil {
		return fmt.Errorf("processed store: %w", err)
	}

	var emitter watcher.Emitter
	if cfg.Audit {
		emitter = watcher.EmitterFunc(sink.EmitSynchronously)
	} else {
		emitter = watcher.EmitterFunc(func(_ context.Context, ev models.LogEvent) error {
			if !sink.Emit(ev) {
				return errQueueFull
			}
			return nil
		})
	}

	w, err := watcher.New(watcher.Config{
		Dirs:           cfg.LogDirectoryMap,
		FilePattern:    cfg.FilePattern,
		RescanInterval: time.Duration(cfg.RescanInterval) * time.Second,
		Logger:         rootLogger.Named("watcher"),
		Store:          store,
		Emitter:        emitter,
	})
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}

	var srv *http.Server
	if cfg.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv = &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			lg.Info("Метрики доступны", zap.String("addr", cfg.Metrics.Address))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("Ошибка HTTP-сервера метрик", zap.Error(err))
			}
		}()
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	sinkCtx, cancelSink := context.WithCancel(context.Background())
	defer cancelSink()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); sink.Run(sinkCtx) }()
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if err := w.Start(watchCtx); err != nil {
			lg.Error("Watcher завершился с ошибкой", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("Получен сигнал остановки, начинаем завершение работы")

	// сначала перестаём читать файлы, затем sink дописывает очередь
	cancelWatch()
	<-watchDone
	cancelSink()
	wg.Wait()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	lg.Info("Сервис завершил работу", zap.Int("pending", sink.Pending()))
	return nil
}

func ddlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ddl",
		Short: "Print the SQL statements the sink would execute",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			sink, err := newSink(cfg, zap.NewNop(), nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.Postgres.Schema != "" {
				fmt.Fprintln(out, pgsink.CreateSchemaSQL(cfg.Postgres.Schema))
			}
			table, err := sink.CreateTableSQL()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, table+";")
			fmt.Fprintln(out, sink.InsertSQL())
			fmt.Fprintln(out, sink.CopySQL())
			return nil
		},
	}
}

func columnsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "columns",
		Short: "Print the effective column mapping as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			reg, err := config.BuildRegistry(cfg.Columns)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(map[string]any{"Columns": config.DescribeRegistry(reg)})
		},
	}
}
