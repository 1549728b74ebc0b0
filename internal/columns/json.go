package columns

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"PgLogPump/internal/models"
	"PgLogPump/internal/parser"
)

// emptyJSONObject - ровно два символа; событие без свойств пишется именно так
const emptyJSONObject = "{}"

// PropertiesJSON сериализует только свойства события в JSON-объект
func PropertiesJSON(ev *models.LogEvent) string {
	if len(ev.Properties) == 0 {
		return emptyJSONObject
	}
	var sb strings.Builder
	writeProperties(&sb, ev)
	return sb.String()
}

// PropertyJSON сериализует одно значение свойства
func PropertyJSON(value models.PropertyValue) string {
	var sb strings.Builder
	writeJSONValue(&sb, value)
	return sb.String()
}

// EventJSON сериализует событие целиком:
// {"Timestamp":…,"Level":…,"MessageTemplate":…,"RenderedMessage":…,"Exception":…,"Properties":{…}}
func EventJSON(ev *models.LogEvent, fp parser.FormatProvider) string {
	var sb strings.Builder
	sb.WriteString(`{"Timestamp":`)
	writeJSONString(&sb, ev.Timestamp.Format(time.RFC3339Nano))
	sb.WriteString(`,"Level":`)
	writeJSONString(&sb, ev.Level.String())
	sb.WriteString(`,"MessageTemplate":`)
	writeJSONString(&sb, ev.MessageTemplate)
	sb.WriteString(`,"RenderedMessage":`)
	writeJSONString(&sb, parser.Render(ev.MessageTemplate, ev.Properties, fp))
	if ev.Exception != nil {
		sb.WriteString(`,"Exception":`)
		writeJSONString(&sb, models.ExceptionText(ev.Exception))
	}
	if len(ev.Properties) > 0 {
		sb.WriteString(`,"Properties":`)
		writeProperties(&sb, ev)
	}
	sb.WriteByte('}')
	return sb.String()
}

func writeProperties(sb *strings.Builder, ev *models.LogEvent) {
	sb.WriteByte('{')
	for i, name := range ev.PropertyNames() {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeJSONString(sb, name)
		sb.WriteByte(':')
		writeJSONValue(sb, ev.Properties[name])
	}
	sb.WriteByte('}')
}

func writeJSONValue(sb *strings.Builder, value models.PropertyValue) {
	switch v := value.(type) {
	case models.ScalarValue:
		writeJSONScalar(sb, v.Value)
	case models.SequenceValue:
		sb.WriteByte('[')
		for i, el := range v.Elements {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSONValue(sb, el)
		}
		sb.WriteByte(']')
	case models.StructureValue:
		sb.WriteByte('{')
		first := true
		if v.TypeTag != "" {
			sb.WriteString(`"_typeTag":`)
			writeJSONString(sb, v.TypeTag)
			first = false
		}
		for _, p := range v.Properties {
			if !first {
				sb.WriteByte(',')
			}
			first = false
			writeJSONString(sb, p.Name)
			sb.WriteByte(':')
			writeJSONValue(sb, p.Value)
		}
		sb.WriteByte('}')
	case models.DictionaryValue:
		sb.WriteByte('{')
		for i, e := range v.Elements {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSONString(sb, parser.FormatScalar(e.Key.Value, parser.LiteralFormat, nil))
			sb.WriteByte(':')
			writeJSONValue(sb, e.Value)
		}
		sb.WriteByte('}')
	default:
		sb.WriteString("null")
	}
}

func writeJSONScalar(sb *strings.Builder, value any) {
	switch v := value.(type) {
	case nil:
		sb.WriteString("null")
	case string:
		writeJSONString(sb, v)
	case bool:
		sb.WriteString(strconv.FormatBool(v))
	case int:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int8:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int16:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int32:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int64:
		sb.WriteString(strconv.FormatInt(v, 10))
	case uint:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint8:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint16:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint32:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint64:
		sb.WriteString(strconv.FormatUint(v, 10))
	case float32:
		writeJSONFloat(sb, float64(v), 32)
	case float64:
		writeJSONFloat(sb, v, 64)
	case time.Time:
		writeJSONString(sb, v.Format(time.RFC3339Nano))
	case error:
		writeJSONString(sb, v.Error())
	case fmt.Stringer:
		// перечисления и идентификаторы пишем их текстовым именем
		writeJSONString(sb, v.String())
	default:
		b, err := json.Marshal(v)
		if err != nil {
			writeJSONString(sb, fmt.Sprint(v))
			return
		}
		sb.Write(b)
	}
}

func writeJSONFloat(sb *strings.Builder, f float64, bits int) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		writeJSONString(sb, strconv.FormatFloat(f, 'g', -1, bits))
		return
	}
	sb.WriteString(strconv.FormatFloat(f, 'g', -1, bits))
}

const hexDigits = "0123456789abcdef"

// writeJSONString экранирует строку по правилам JSON, не трогая <, > и &
func writeJSONString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				sb.WriteByte('\\')
				sb.WriteByte(c)
			case c == '\n':
				sb.WriteString(`\n`)
			case c == '\r':
				sb.WriteString(`\r`)
			case c == '\t':
				sb.WriteString(`\t`)
			case c < 0x20:
				sb.WriteString(`\u00`)
				sb.WriteByte(hexDigits[c>>4])
				sb.WriteByte(hexDigits[c&0xF])
			default:
				sb.WriteByte(c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			sb.WriteString(`\ufffd`)
		} else {
			sb.WriteString(s[i : i+size])
		}
		i += size
	}
	sb.WriteByte('"')
}
