package config

import (
	"fmt"

	"PgLogPump/internal/columns"
)

// TypeMapping - длины типов фиксированной ширины для этого sink
func (p PostgresConfig) TypeMapping() columns.TypeMapping {
	return columns.TypeMapping{
		CharLength:    p.CharLength,
		VarcharLength: p.VarcharLength,
		BitLength:     p.BitLength,
	}
}

// BuildRegistry переводит декларативный список колонок в реестр.
// Пустой список - шесть колонок по умолчанию.
func BuildRegistry(cols []ColumnConfig) (*columns.Registry, error) {
	out := make([]columns.Column, 0, len(cols))
	for i, c := range cols {
		w, err := buildWriter(c)
		if err != nil {
			return nil, fmt.Errorf("column #%d %q: %w", i+1, c.Name, err)
		}
		out = append(out, columns.Column{Name: c.Name, Writer: w})
	}
	return columns.NewRegistry(out...)
}

func buildWriter(c ColumnConfig) (columns.Writer, error) {
	kind, err := columns.ParseKind(c.Writer)
	if err != nil {
		return columns.Writer{}, err
	}

	var w columns.Writer
	switch kind {
	case columns.KindRenderedMessage:
		w = columns.RenderedMessage()
	case columns.KindMessageTemplate:
		w = columns.MessageTemplate()
	case columns.KindLevel:
		w = columns.Level(c.RenderAsText)
	case columns.KindTimestamp:
		w = columns.Timestamp()
	case columns.KindException:
		w = columns.Exception()
	case columns.KindProperties:
		w = columns.Properties()
	case columns.KindLogEvent:
		w = columns.LogEvent()
	case columns.KindIdentity:
		w = columns.Identity()
	case columns.KindSingleProperty:
		if c.Property == "" {
			return columns.Writer{}, fmt.Errorf("single_property requires Property")
		}
		method, err := columns.ParseWriteMethod(c.WriteMethod)
		if err != nil {
			return columns.Writer{}, err
		}
		w = columns.SingleProperty(c.Property, columns.TypeUnset, method, c.Format)
	}

	if c.Type != "" {
		t, err := columns.ParseColumnType(c.Type)
		if err != nil {
			return columns.Writer{}, err
		}
		w = w.WithType(t)
	}
	if c.Order != nil {
		w = w.WithOrder(*c.Order)
	}
	return w, nil
}

// DescribeRegistry - обратное преобразование, для вывода действующего маппинга
func DescribeRegistry(reg *columns.Registry) []ColumnConfig {
	cols := reg.Columns()
	out := make([]ColumnConfig, 0, len(cols))
	for _, c := range cols {
		w := c.Writer
		cc := ColumnConfig{
			Name:         c.Name,
			Writer:       w.Kind.String(),
			Type:         w.Type.String(),
			RenderAsText: w.RenderAsText,
		}
		if w.HasOrder {
			order := w.Order
			cc.Order = &order
		}
		if w.Kind == columns.KindSingleProperty {
			cc.Property = w.PropertyName
			cc.WriteMethod = w.WriteMethod.String()
			cc.Format = w.Format
		}
		out = append(out, cc)
	}
	return out
}
