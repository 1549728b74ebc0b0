package columns

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ColumnType - SQL-тип колонки. Нулевое значение не задаёт тип и не проходит SQLType.
type ColumnType int

const (
	TypeUnset ColumnType = iota
	TypeBigint
	TypeBit
	TypeBoolean
	TypeBytea
	TypeChar
	TypeCidr
	TypeDate
	TypeDouble
	TypeInet
	TypeInteger
	TypeInterval
	TypeJSON
	TypeJSONB
	TypeMacAddr
	TypeMoney
	TypeNumeric
	TypeReal
	TypeSmallint
	TypeText
	TypeTime
	TypeTimeTz
	TypeTimestamp
	TypeTimestampTz
	TypeUUID
	TypeVarbit
	TypeVarchar
	TypeXML
)

// ErrUnknownColumnType - тип колонки не сопоставлен ни одному SQL-типу
var ErrUnknownColumnType = errors.New("unknown column type")

var typeNames = map[ColumnType]string{
	TypeBigint:      "bigint",
	TypeBit:         "bit",
	TypeBoolean:     "boolean",
	TypeBytea:       "bytea",
	TypeChar:        "char",
	TypeCidr:        "cidr",
	TypeDate:        "date",
	TypeDouble:      "double",
	TypeInet:        "inet",
	TypeInteger:     "integer",
	TypeInterval:    "interval",
	TypeJSON:        "json",
	TypeJSONB:       "jsonb",
	TypeMacAddr:     "macaddr",
	TypeMoney:       "money",
	TypeNumeric:     "numeric",
	TypeReal:        "real",
	TypeSmallint:    "smallint",
	TypeText:        "text",
	TypeTime:        "time",
	TypeTimeTz:      "timetz",
	TypeTimestamp:   "timestamp",
	TypeTimestampTz: "timestamptz",
	TypeUUID:        "uuid",
	TypeVarbit:      "varbit",
	TypeVarchar:     "varchar",
	TypeXML:         "xml",
}

// дополнительные имена для декларативной конфигурации
var typeAliases = map[string]ColumnType{
	"bool":                     TypeBoolean,
	"int":                      TypeInteger,
	"int4":                     TypeInteger,
	"int8":                     TypeBigint,
	"int2":                     TypeSmallint,
	"double precision":         TypeDouble,
	"float8":                   TypeDouble,
	"float4":                   TypeReal,
	"character":                TypeChar,
	"character varying":        TypeVarchar,
	"bit varying":              TypeVarbit,
	"timestamp with time zone": TypeTimestampTz,
	"time with time zone":      TypeTimeTz,
}

func (t ColumnType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "ColumnType(" + strconv.Itoa(int(t)) + ")"
}

// ParseColumnType переводит имя типа из конфигурации в ColumnType
func ParseColumnType(name string) (ColumnType, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for t, n := range typeNames {
		if n == key {
			return t, nil
		}
	}
	if t, ok := typeAliases[key]; ok {
		return t, nil
	}
	return TypeUnset, errors.Wrapf(ErrUnknownColumnType, "%q", name)
}

// Длины по умолчанию для типов фиксированной ширины
const (
	DefaultCharLength    = 50
	DefaultVarcharLength = 50
	DefaultBitLength     = 8
)

// TypeMapping переводит ColumnType в строку SQL-типа.
// Длины принадлежат конкретному sink, поэтому разные sink могут иметь разные значения.
type TypeMapping struct {
	CharLength    int
	VarcharLength int
	BitLength     int
}

// DefaultTypeMapping - char/varchar(50), bit(8)
var DefaultTypeMapping = TypeMapping{
	CharLength:    DefaultCharLength,
	VarcharLength: DefaultVarcharLength,
	BitLength:     DefaultBitLength,
}

// SQLType возвращает SQL-тип колонки. Нераспознанный тип - ошибка конфигурации.
func (m TypeMapping) SQLType(t ColumnType) (string, error) {
	switch t {
	case TypeChar:
		return "character(" + strconv.Itoa(orDefault(m.CharLength, DefaultCharLength)) + ")", nil
	case TypeVarchar:
		return "character varying(" + strconv.Itoa(orDefault(m.VarcharLength, DefaultVarcharLength)) + ")", nil
	case TypeBit:
		return "bit(" + strconv.Itoa(orDefault(m.BitLength, DefaultBitLength)) + ")", nil
	case TypeVarbit:
		return "bit varying(" + strconv.Itoa(orDefault(m.BitLength, DefaultBitLength)) + ")", nil
	case TypeDouble:
		return "double precision", nil
	case TypeTimeTz:
		return "time with time zone", nil
	case TypeTimestampTz:
		return "timestamp with time zone", nil
	case TypeUnset:
		return "", errors.Wrap(ErrUnknownColumnType, "column type is not set")
	}
	if name, ok := typeNames[t]; ok {
		return name, nil
	}
	return "", errors.Wrapf(ErrUnknownColumnType, "%d", int(t))
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
