package columns

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrDuplicateColumn - два имени после снятия кавычек совпали ("Col" и Col)
	ErrDuplicateColumn = errors.New("duplicate column name")
	// ErrEmptyColumnName - имя колонки пустое после снятия кавычек
	ErrEmptyColumnName = errors.New("empty column name")
)

// Column - колонка таблицы назначения и её writer
type Column struct {
	Name   string
	Writer Writer
}

// Registry - упорядоченный неизменяемый набор колонок.
// Имена хранятся без кавычек; кавычки ставятся только при генерации SQL.
type Registry struct {
	columns []Column
}

// Имена колонок набора по умолчанию
const (
	ColumnMessage         = "message"
	ColumnMessageTemplate = "message_template"
	ColumnLevel           = "level"
	ColumnRaiseDate       = "raise_date"
	ColumnException       = "exception"
	ColumnProperties      = "properties"
)

// DefaultColumns - шесть колонок, которые ставятся, если вызывающий не задал своих
func DefaultColumns() []Column {
	return []Column{
		{Name: ColumnMessage, Writer: RenderedMessage()},
		{Name: ColumnMessageTemplate, Writer: MessageTemplate()},
		{Name: ColumnLevel, Writer: Level(false)},
		{Name: ColumnRaiseDate, Writer: Timestamp()},
		{Name: ColumnException, Writer: Exception()},
		{Name: ColumnProperties, Writer: LogEvent()},
	}
}

// DefaultRegistry возвращает реестр с колонками по умолчанию
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(DefaultColumns()...)
	return r
}

// NewRegistry строит реестр из колонок вызывающего. Входной срез не изменяется.
// Без колонок возвращается набор по умолчанию. Дубликаты после нормализации имён отвергаются.
func NewRegistry(cols ...Column) (*Registry, error) {
	if len(cols) == 0 {
		cols = DefaultColumns()
	}

	seen := make(map[string]struct{}, len(cols))
	normalized := make([]Column, 0, len(cols))
	for _, c := range cols {
		name := NormalizeName(c.Name)
		if name == "" {
			return nil, errors.Wrapf(ErrEmptyColumnName, "%q", c.Name)
		}
		if _, dup := seen[name]; dup {
			return nil, errors.Wrapf(ErrDuplicateColumn, "%q", name)
		}
		seen[name] = struct{}{}
		normalized = append(normalized, Column{Name: name, Writer: c.Writer})
	}

	return &Registry{columns: orderColumns(normalized)}, nil
}

// NormalizeName убирает двойные кавычки: "Level" и Level - одна и та же колонка
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), `"`, "")
}

// orderColumns сортирует по Order, только если порядок задан у всех колонок.
// Частично заданный порядок игнорируется целиком.
func orderColumns(cols []Column) []Column {
	for _, c := range cols {
		if !c.Writer.HasOrder {
			return cols
		}
	}
	sort.SliceStable(cols, func(i, j int) bool {
		return cols[i].Writer.Order < cols[j].Writer.Order
	})
	return cols
}

// Columns - все колонки в порядке вывода (для CREATE TABLE)
func (r *Registry) Columns() []Column {
	out := make([]Column, len(r.columns))
	copy(out, r.columns)
	return out
}

// InsertColumns - колонки без skip-on-insert (для INSERT и COPY)
func (r *Registry) InsertColumns() []Column {
	out := make([]Column, 0, len(r.columns))
	for _, c := range r.columns {
		if !c.Writer.SkipOnInsert() {
			out = append(out, c)
		}
	}
	return out
}

// Len - число колонок
func (r *Registry) Len() int { return len(r.columns) }
