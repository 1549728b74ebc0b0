package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"PgLogPump/internal/models"
)

// Служебные поля компактного JSON-формата (CLEF)
const (
	clefTimestamp = "@t"
	clefLevel     = "@l"
	clefTemplate  = "@mt"
	clefMessage   = "@m"
	clefException = "@x"
	clefEventID   = "@i"
	clefRenders   = "@r"
	typeTagKey    = "$type"
)

// ParseLine разбирает одну строку JSON-лога в LogEvent.
// Обязательно только поле @t; все поля без @ становятся свойствами события.
func ParseLine(line []byte) (models.LogEvent, error) {
	line = bytes.TrimSpace(bytes.TrimPrefix(line, []byte{0xEF, 0xBB, 0xBF}))
	if len(line) == 0 {
		return models.LogEvent{}, fmt.Errorf("empty line")
	}

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return models.LogEvent{}, fmt.Errorf("decode json: %w", err)
	}

	ev := models.LogEvent{Level: models.LevelInformation}

	ts, ok := raw[clefTimestamp].(string)
	if !ok {
		return models.LogEvent{}, fmt.Errorf("missing %s", clefTimestamp)
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return models.LogEvent{}, fmt.Errorf("parse %s: %w", clefTimestamp, err)
	}
	ev.Timestamp = t

	if l, ok := raw[clefLevel].(string); ok {
		lvl, known := models.ParseLevel(l)
		if !known {
			return models.LogEvent{}, fmt.Errorf("unknown level %q", l)
		}
		ev.Level = lvl
	}

	if mt, ok := raw[clefTemplate].(string); ok {
		ev.MessageTemplate = mt
	} else if m, ok := raw[clefMessage].(string); ok {
		ev.MessageTemplate = EscapeTemplate(m)
	}

	if x, ok := raw[clefException].(string); ok && x != "" {
		ev.Exception = &models.TextException{Text: x}
	}

	for key, value := range raw {
		switch key {
		case clefTimestamp, clefLevel, clefTemplate, clefMessage, clefException, clefEventID, clefRenders:
			continue
		}
		name := key
		if strings.HasPrefix(name, "@@") {
			name = name[1:]
		} else if strings.HasPrefix(name, "@") {
			continue
		}
		if ev.Properties == nil {
			ev.Properties = make(map[string]models.PropertyValue, len(raw))
		}
		ev.Properties[name] = toPropertyValue(value)
	}
	return ev, nil
}

// toPropertyValue превращает значение из encoding/json в дерево PropertyValue
func toPropertyValue(v any) models.PropertyValue {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return models.ScalarValue{Value: n}
		}
		f, err := x.Float64()
		if err != nil {
			return models.ScalarValue{Value: x.String()}
		}
		return models.ScalarValue{Value: f}
	case []any:
		seq := models.SequenceValue{Elements: make([]models.PropertyValue, 0, len(x))}
		for _, el := range x {
			seq.Elements = append(seq.Elements, toPropertyValue(el))
		}
		return seq
	case map[string]any:
		st := models.StructureValue{}
		if tag, ok := x[typeTagKey].(string); ok {
			st.TypeTag = tag
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			if k != typeTagKey {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			st.Properties = append(st.Properties, models.Property{Name: k, Value: toPropertyValue(x[k])})
		}
		return st
	default:
		return models.ScalarValue{Value: x}
	}
}
