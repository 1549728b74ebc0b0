// Package pgsink пишет структурированные события лога в таблицу PostgreSQL.
//
// Sink работает в двух режимах. В пакетном режиме Emit ставит событие в очередь,
// а Run периодически отправляет пачки через EmitBatch. В режиме аудита
// EmitSynchronously пишет одно событие сразу и возвращает ошибку вызывающему.
// Перед первой записью sink при необходимости создаёт схему и таблицу.
// Соединение открывается на каждую отправку и закрывается после неё.
package pgsink

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"PgLogPump/internal/batch"
	"PgLogPump/internal/columns"
	"PgLogPump/internal/metrics"
	"PgLogPump/internal/models"
)

var (
	// ErrNoTable - не задано имя таблицы
	ErrNoTable = errors.New("table name is required")
	// ErrProvisioning помечает ошибки создания схемы/таблицы; такие пачки остаются в очереди
	ErrProvisioning = errors.New("provisioning failed")
	// ErrConnect помечает ошибки открытия соединения; ни одна строка не записана
	ErrConnect = errors.New("connect failed")

	errEncode = errors.New("encode row")
)

// Режимы записи
const (
	ModeCopy   = "copy"
	ModeInsert = "insert"
)

// Options - конфигурация sink. Не меняется после New.
type Options struct {
	ConnectionString string
	Schema           string
	Table            string

	// Columns - реестр колонок; nil - шесть колонок по умолчанию
	Columns     *columns.Registry
	TypeMapping columns.TypeMapping

	// UseCopy - бинарный COPY вместо построчных INSERT в пакетном режиме
	UseCopy              bool
	NeedAutoCreateTable  bool
	NeedAutoCreateSchema bool

	BatchSizeLimit int
	QueueLimit     int
	Period         time.Duration

	FormatProvider columns.FormatProvider

	OnCreateSchema func(ctx context.Context, schema string)
	OnCreateTable  func(ctx context.Context, schema, table string)
	// OnFailure вызывается при неудачной отправке в пакетном режиме
	OnFailure func(err error)

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Connector - для тестов; по умолчанию pgx.ConnectConfig по ConnectionString
	Connector Connector
}

// Sink - диспетчер записи. Записи сериализуются мьютексом: в каждый момент
// идёт не больше одной отправки, и состояние провижининга меняет только она.
type Sink struct {
	opts        Options
	registry    *columns.Registry
	insertCols  []columns.Column
	params      []string
	insertSQL   string
	provisioner Provisioner
	connect     Connector
	logger      *zap.Logger
	metrics     *metrics.Metrics
	batcher     *batch.Batcher

	mu            sync.Mutex
	schemaEnsured bool
	tableEnsured  bool
}

// New проверяет конфигурацию и создаёт sink. Ошибки конфигурации
// (пустая таблица, неверная строка подключения, неизвестный тип колонки) возвращаются сразу.
func New(opts Options) (*Sink, error) {
	opts.Table = columns.NormalizeName(opts.Table)
	opts.Schema = columns.NormalizeName(opts.Schema)
	if opts.Table == "" {
		return nil, ErrNoTable
	}
	if opts.Columns == nil {
		opts.Columns = columns.DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	connect := opts.Connector
	if connect == nil {
		cfg, err := pgx.ParseConfig(opts.ConnectionString)
		if err != nil {
			return nil, errors.Wrap(err, "parse connection string")
		}
		connect = PgxConnector(cfg)
	}

	s := &Sink{
		opts:        opts,
		registry:    opts.Columns,
		insertCols:  opts.Columns.InsertColumns(),
		provisioner: Provisioner{Mapping: opts.TypeMapping},
		connect:     connect,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		// без автосоздания структуры считаются уже существующими
		schemaEnsured: !opts.NeedAutoCreateSchema || opts.Schema == "",
		tableEnsured:  !opts.NeedAutoCreateTable,
	}
	if len(s.insertCols) == 0 {
		return nil, errors.New("no insertable columns")
	}
	s.params = parameterNames(s.insertCols)
	s.insertSQL = InsertSQL(opts.Schema, opts.Table, s.insertCols, s.params)

	// неизвестный тип колонки должен всплыть здесь, а не посреди пачки
	if opts.NeedAutoCreateTable {
		if _, err := CreateTableSQL(opts.Schema, opts.Table, s.registry, opts.TypeMapping); err != nil {
			return nil, err
		}
	}

	s.batcher = batch.New(batch.Config{
		SizeLimit:  opts.BatchSizeLimit,
		QueueLimit: opts.QueueLimit,
		Period:     opts.Period,
		Flush:      s.EmitBatch,
		Retain:     IsRetryable,
		OnError:    s.reportFailure,
		Logger:     opts.Logger.Named("batcher"),
		Metrics:    opts.Metrics,
	})
	return s, nil
}

// IsRetryable - ошибка случилась до передачи строк, пачку можно отправить повторно
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProvisioning) || errors.Is(err, ErrConnect)
}

// Emit ставит событие в очередь пакетного режима и сразу возвращается
func (s *Sink) Emit(ev models.LogEvent) bool {
	return s.batcher.Enqueue(ev)
}

// Run обслуживает очередь до отмены контекста и отправляет остаток при остановке
func (s *Sink) Run(ctx context.Context) {
	s.batcher.Run(ctx)
}

// Pending - число событий в очереди
func (s *Sink) Pending() int {
	return s.batcher.Len()
}

// EmitBatch записывает пачку выбранным способом (COPY или INSERT). Ошибка возвращается вызывающему.
func (s *Sink) EmitBatch(ctx context.Context, events []models.LogEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.write(ctx, events, s.opts.UseCopy)
}

// EmitSynchronously - режим аудита: одно событие, всегда INSERT, ошибка уходит вызывающему
func (s *Sink) EmitSynchronously(ctx context.Context, ev models.LogEvent) error {
	return s.write(ctx, []models.LogEvent{ev}, false)
}

// write - общий путь обоих режимов:
// соединение → схема → таблица → строки → закрытие соединения
func (s *Sink) write(ctx context.Context, events []models.LogEvent, useCopy bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := ModeInsert
	if useCopy {
		mode = ModeCopy
	}
	defer s.metrics.ObserveFlush(mode, time.Now())

	conn, err := s.connect(ctx)
	if err != nil {
		s.metrics.FlushFailed(metrics.StageConnect)
		return errors.Mark(errors.Wrap(err, "connect"), ErrConnect)
	}
	defer func() {
		if cerr := conn.Close(context.Background()); cerr != nil {
			s.logger.Warn("Ошибка закрытия соединения", zap.Error(cerr))
		}
	}()

	if err := s.provision(ctx, conn); err != nil {
		return err
	}

	var written int
	if useCopy {
		written, err = s.copyRows(ctx, conn, events)
	} else {
		written, err = s.insertRows(ctx, conn, events)
	}
	s.metrics.RowsWritten(mode, written)
	if err != nil {
		stage := metrics.StageTransmit
		if errors.Is(err, errEncode) {
			stage = metrics.StageEncode
		}
		s.metrics.FlushFailed(stage)
		return err
	}
	s.logger.Debug("События записаны", zap.String("mode", mode), zap.Int("count", written))
	return nil
}

// provision выполняет DDL не больше одного раза за жизнь sink
func (s *Sink) provision(ctx context.Context, conn Conn) error {
	if !s.schemaEnsured {
		if err := s.provisioner.EnsureSchema(ctx, conn, s.opts.Schema); err != nil {
			s.metrics.FlushFailed(metrics.StageSchema)
			return errors.Mark(err, ErrProvisioning)
		}
		s.schemaEnsured = true
		s.logger.Info("Схема создана или уже существовала", zap.String("schema", s.opts.Schema))
		if s.opts.OnCreateSchema != nil {
			s.safeCall("OnCreateSchema", func() { s.opts.OnCreateSchema(ctx, s.opts.Schema) })
		}
	}
	if !s.tableEnsured {
		if err := s.provisioner.EnsureTable(ctx, conn, s.opts.Schema, s.opts.Table, s.registry); err != nil {
			s.metrics.FlushFailed(metrics.StageTable)
			return errors.Mark(err, ErrProvisioning)
		}
		s.tableEnsured = true
		s.logger.Info("Таблица создана или уже существовала", zap.String("table", QualifiedTableName(s.opts.Schema, s.opts.Table)))
		if s.opts.OnCreateTable != nil {
			s.safeCall("OnCreateTable", func() { s.opts.OnCreateTable(ctx, s.opts.Schema, s.opts.Table) })
		}
	}
	return nil
}

// copyRows - один поток COPY на всю пачку; любая ошибка отменяет пачку целиком
func (s *Sink) copyRows(ctx context.Context, conn Conn, events []models.LogEvent) (int, error) {
	names := make([]string, len(s.insertCols))
	for i, c := range s.insertCols {
		names[i] = c.Name
	}
	n, err := conn.CopyFrom(ctx, tableIdentifier(s.opts.Schema, s.opts.Table), names, copySource(events, s.insertCols, s.opts.FormatProvider))
	if err != nil {
		return 0, errors.Wrap(err, "copy")
	}
	return int(n), nil
}

// insertRows выполняет INSERT для каждой строки отдельно. На первой ошибке останавливается;
// строки до неё уже зафиксированы.
func (s *Sink) insertRows(ctx context.Context, conn Conn, events []models.LogEvent) (int, error) {
	for i := range events {
		args, err := EncodeNamedArgs(&events[i], s.insertCols, s.params, s.opts.FormatProvider)
		if err != nil {
			return i, errors.Mark(errors.Wrapf(err, "event %d", i+1), errEncode)
		}
		if _, err := conn.Exec(ctx, s.insertSQL, args); err != nil {
			return i, errors.Wrapf(err, "insert event %d", i+1)
		}
	}
	return len(events), nil
}

// reportFailure - сбой пакетной отправки: в журнал и в OnFailure, если задан
func (s *Sink) reportFailure(err error, count int) {
	s.logger.Error("Не удалось записать пачку событий",
		zap.Int("count", count), zap.Bool("retry", IsRetryable(err)), zap.Error(err))
	if s.opts.OnFailure != nil {
		s.safeCall("OnFailure", func() { s.opts.OnFailure(err) })
	}
}

// safeCall не даёт панике в пользовательском callback замаскировать исходную ошибку
func (s *Sink) safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Паника в callback", zap.String("callback", name), zap.Any("panic", r))
		}
	}()
	fn()
}

// InsertSQL - текст INSERT, которым пишет sink
func (s *Sink) InsertSQL() string { return s.insertSQL }

// CopySQL - текст эквивалентной команды COPY
func (s *Sink) CopySQL() string { return CopySQL(s.opts.Schema, s.opts.Table, s.insertCols) }

// CreateTableSQL - DDL таблицы с типами этого sink
func (s *Sink) CreateTableSQL() (string, error) {
	return CreateTableSQL(s.opts.Schema, s.opts.Table, s.registry, s.opts.TypeMapping)
}
