package columns

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"PgLogPump/internal/models"
	"PgLogPump/internal/parser"
)

// FormatProvider - см. parser.FormatProvider
type FormatProvider = parser.FormatProvider

// Kind - вид column writer. Набор закрыт; для нестандартных колонок есть KindCustom.
type Kind int

const (
	KindRenderedMessage Kind = iota + 1
	KindMessageTemplate
	KindLevel
	KindTimestamp
	KindException
	KindProperties
	KindLogEvent
	KindSingleProperty
	KindIdentity
	KindCustom
)

var kindNames = map[Kind]string{
	KindRenderedMessage: "rendered_message",
	KindMessageTemplate: "message_template",
	KindLevel:           "level",
	KindTimestamp:       "timestamp",
	KindException:       "exception",
	KindProperties:      "properties",
	KindLogEvent:        "log_event",
	KindSingleProperty:  "single_property",
	KindIdentity:        "identity",
	KindCustom:          "custom",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind переводит имя вида из конфигурации. custom из конфигурации не создаётся.
func ParseKind(name string) (Kind, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == key && k != KindCustom {
			return k, nil
		}
	}
	return 0, errors.Newf("unknown column writer %q", name)
}

// WriteMethod - как single_property превращает значение свойства в значение колонки
type WriteMethod int

const (
	WriteToString WriteMethod = iota
	WriteRaw
	WriteJSON
)

func (m WriteMethod) String() string {
	switch m {
	case WriteRaw:
		return "raw"
	case WriteJSON:
		return "json"
	}
	return "tostring"
}

func ParseWriteMethod(name string) (WriteMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "tostring", "to_string", "to-string", "string":
		return WriteToString, nil
	case "raw":
		return WriteRaw, nil
	case "json":
		return WriteJSON, nil
	}
	return WriteToString, errors.Newf("unknown write method %q", name)
}

// ValueFunc - пользовательское извлечение значения для KindCustom
type ValueFunc func(ev *models.LogEvent, fp FormatProvider) (any, error)

// identityDefinition - колонка целиком описывается самим writer-ом, а не через TypeMapping
const identityDefinition = "bigserial primary key"

// Writer знает, как достать одно значение колонки из события и какой у колонки SQL-тип.
// Создаётся при конфигурации sink и дальше не меняется.
type Writer struct {
	Kind     Kind
	Type     ColumnType
	Order    int
	HasOrder bool

	RenderAsText bool        // level: имя уровня вместо номера
	PropertyName string      // single_property
	WriteMethod  WriteMethod // single_property
	Format       string      // single_property, to-string

	Func ValueFunc // custom
}

func RenderedMessage() Writer { return Writer{Kind: KindRenderedMessage, Type: TypeText} }
func MessageTemplate() Writer { return Writer{Kind: KindMessageTemplate, Type: TypeText} }
func Timestamp() Writer       { return Writer{Kind: KindTimestamp, Type: TypeTimestampTz} }
func Exception() Writer       { return Writer{Kind: KindException, Type: TypeText} }
func Properties() Writer      { return Writer{Kind: KindProperties, Type: TypeJSONB} }
func LogEvent() Writer        { return Writer{Kind: KindLogEvent, Type: TypeJSONB} }
func Identity() Writer        { return Writer{Kind: KindIdentity, Type: TypeBigint} }

// Level пишет номер уровня (integer) или, при renderAsText, его имя (text)
func Level(renderAsText bool) Writer {
	w := Writer{Kind: KindLevel, Type: TypeInteger, RenderAsText: renderAsText}
	if renderAsText {
		w.Type = TypeText
	}
	return w
}

// SingleProperty пишет одно именованное свойство события
func SingleProperty(name string, t ColumnType, method WriteMethod, format string) Writer {
	if t == TypeUnset {
		t = TypeText
	}
	return Writer{Kind: KindSingleProperty, Type: t, PropertyName: name, WriteMethod: method, Format: format}
}

// Custom - колонка с произвольной логикой извлечения
func Custom(t ColumnType, fn ValueFunc) Writer {
	return Writer{Kind: KindCustom, Type: t, Func: fn}
}

// WithOrder задаёт явный порядок колонки
func (w Writer) WithOrder(order int) Writer {
	w.Order = order
	w.HasOrder = true
	return w
}

// WithType переопределяет SQL-тип колонки
func (w Writer) WithType(t ColumnType) Writer {
	w.Type = t
	return w
}

// SkipOnInsert - значение колонки генерирует сама БД, в INSERT/COPY она не участвует
func (w Writer) SkipOnInsert() bool {
	return w.Kind == KindIdentity
}

// ColumnDefinition - то, что пишется после имени колонки в CREATE TABLE
func (w Writer) ColumnDefinition(m TypeMapping) (string, error) {
	if w.Kind == KindIdentity {
		return identityDefinition, nil
	}
	return m.SQLType(w.Type)
}

// Value извлекает значение колонки из события. nil означает SQL NULL.
// Для identity вызов - ошибка программиста, поэтому паника, а не error.
func (w Writer) Value(ev *models.LogEvent, fp FormatProvider) (any, error) {
	switch w.Kind {
	case KindRenderedMessage:
		return parser.Render(ev.MessageTemplate, ev.Properties, fp), nil
	case KindMessageTemplate:
		return ev.MessageTemplate, nil
	case KindLevel:
		if w.RenderAsText {
			return ev.Level.String(), nil
		}
		return int(ev.Level), nil
	case KindTimestamp:
		return ev.Timestamp, nil
	case KindException:
		if ev.Exception == nil {
			return nil, nil
		}
		return models.ExceptionText(ev.Exception), nil
	case KindProperties:
		return PropertiesJSON(ev), nil
	case KindLogEvent:
		return EventJSON(ev, fp), nil
	case KindSingleProperty:
		return w.propertyValue(ev, fp)
	case KindIdentity:
		panic(errors.AssertionFailedf("identity column value is generated by the database and must never be read from an event"))
	case KindCustom:
		if w.Func == nil {
			return nil, errors.New("custom column writer has no value function")
		}
		return w.Func(ev, fp)
	}
	return nil, errors.Newf("unknown column writer kind %d", int(w.Kind))
}

func (w Writer) propertyValue(ev *models.LogEvent, fp FormatProvider) (any, error) {
	pv, ok := ev.Property(w.PropertyName)
	if !ok {
		return nil, nil
	}
	switch w.WriteMethod {
	case WriteRaw:
		if s, ok := pv.(models.ScalarValue); ok {
			return coerce(w.Type, rawScalar(s.Value))
		}
		return PropertyJSON(pv), nil
	case WriteJSON:
		return PropertyJSON(pv), nil
	}
	return parser.FormatValue(pv, w.Format, fp), nil
}

// rawScalar снимает обёртку со скаляра; именованные целые типы (перечисления) - в их целое значение
func rawScalar(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().PkgPath() == "" {
		return v
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	}
	return v
}

// coerce приводит сырое значение к виду, который бинарный COPY примет для колонки данного типа
func coerce(t ColumnType, v any) (any, error) {
	if t != TypeUUID {
		return v, nil
	}
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, errors.Wrapf(err, "parse uuid %q", s)
	}
	return id, nil
}
