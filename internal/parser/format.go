package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"PgLogPump/internal/models"
)

// FormatProvider позволяет переопределить текстовое представление скаляров
// (локаль, собственные форматы дат и чисел). ok=false - форматирование по умолчанию.
type FormatProvider interface {
	FormatScalar(value any, format string) (text string, ok bool)
}

// LiteralFormat - подсказка формата, при которой строки выводятся без кавычек
const LiteralFormat = "l"

// FormatValue возвращает текстовое представление значения свойства.
// Строки берутся в кавычки, если формат не "l"; последовательности - [a, b];
// структуры - Tag { A: 1 }; словари - [("k": v)].
func FormatValue(value models.PropertyValue, format string, fp FormatProvider) string {
	var sb strings.Builder
	writeValue(&sb, value, format, fp)
	return sb.String()
}

func writeValue(sb *strings.Builder, value models.PropertyValue, format string, fp FormatProvider) {
	switch v := value.(type) {
	case models.ScalarValue:
		sb.WriteString(FormatScalar(v.Value, format, fp))
	case models.SequenceValue:
		sb.WriteByte('[')
		for i, el := range v.Elements {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, el, format, fp)
		}
		sb.WriteByte(']')
	case models.StructureValue:
		if v.TypeTag != "" {
			sb.WriteString(v.TypeTag)
			sb.WriteByte(' ')
		}
		sb.WriteString("{ ")
		for i, p := range v.Properties {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.Name)
			sb.WriteString(": ")
			writeValue(sb, p.Value, format, fp)
		}
		sb.WriteString(" }")
	case models.DictionaryValue:
		sb.WriteByte('[')
		for i, e := range v.Elements {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('(')
			sb.WriteString(FormatScalar(e.Key.Value, format, fp))
			sb.WriteString(": ")
			writeValue(sb, e.Value, format, fp)
			sb.WriteByte(')')
		}
		sb.WriteByte(']')
	case nil:
		sb.WriteString("null")
	default:
		fmt.Fprint(sb, v)
	}
}

// FormatScalar форматирует одно скалярное значение
func FormatScalar(value any, format string, fp FormatProvider) string {
	if fp != nil {
		if text, ok := fp.FormatScalar(value, format); ok {
			return text
		}
	}
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		if format == LiteralFormat {
			return v
		}
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	case time.Time:
		if format != "" {
			return v.Format(format)
		}
		return v.Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if format == "" {
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	case float32:
		if format == "" {
			return strconv.FormatFloat(float64(v), 'f', -1, 32)
		}
	}
	if strings.HasPrefix(format, "%") {
		return fmt.Sprintf(format, value)
	}
	return fmt.Sprint(value)
}
