package pgsink

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"PgLogPump/internal/columns"
)

// QuoteIdentifier ставит двойные кавычки вокруг имени. Кавычки внутри имени уже сняты
// нормализацией, поэтому "Level" и Level дают одинаковый SQL.
func QuoteIdentifier(name string) string {
	return `"` + columns.NormalizeName(name) + `"`
}

// QualifiedTableName - "schema"."table" или "table", если схема не задана
func QualifiedTableName(schema, table string) string {
	if columns.NormalizeName(schema) == "" {
		return QuoteIdentifier(table)
	}
	return QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
}

// tableIdentifier - то же имя для pgx.CopyFrom
func tableIdentifier(schema, table string) pgx.Identifier {
	if s := columns.NormalizeName(schema); s != "" {
		return pgx.Identifier{s, columns.NormalizeName(table)}
	}
	return pgx.Identifier{columns.NormalizeName(table)}
}

// CreateSchemaSQL - CREATE SCHEMA IF NOT EXISTS "schema";
func CreateSchemaSQL(schema string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + QuoteIdentifier(schema) + ";"
}

// CreateTableSQL строит CREATE TABLE по всем колонкам реестра, включая skip-on-insert.
// Нераспознанный тип колонки возвращает ошибку до того, как будет записана хоть одна строка.
func CreateTableSQL(schema, table string, reg *columns.Registry, m columns.TypeMapping) (string, error) {
	cols := reg.Columns()
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		def, err := c.Writer.ColumnDefinition(m)
		if err != nil {
			return "", errors.Wrapf(err, "column %q", c.Name)
		}
		defs = append(defs, QuoteIdentifier(c.Name)+" "+def)
	}

	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS ")
	sb.WriteString(QualifiedTableName(schema, table))
	sb.WriteString(" (\n")
	sb.WriteString(strings.Join(defs, ",\n"))
	sb.WriteString("\n)")
	return sb.String(), nil
}

// InsertSQL - INSERT INTO "s"."t" ("a", "b") VALUES (@a, @b);
// cols - уже отфильтрованные колонки, params - имена параметров в том же порядке.
func InsertSQL(schema, table string, cols []columns.Column, params []string) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(QualifiedTableName(schema, table))
	sb.WriteString(" (")
	sb.WriteString(columnList(cols))
	sb.WriteString(") VALUES (")
	for i, p := range params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('@')
		sb.WriteString(p)
	}
	sb.WriteString(");")
	return sb.String()
}

// CopySQL - COPY "s"."t"("a", "b") FROM STDIN BINARY;
// Сам pgx.CopyFrom собирает эквивалентную команду; текст нужен для журнала и команды ddl.
func CopySQL(schema, table string, cols []columns.Column) string {
	return "COPY " + QualifiedTableName(schema, table) + "(" + columnList(cols) + ") FROM STDIN BINARY;"
}

func columnList(cols []columns.Column) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = QuoteIdentifier(c.Name)
	}
	return strings.Join(quoted, ", ")
}

// ParameterName - имя параметра для колонки: без кавычек, всё вне ASCII [A-Za-z0-9_] → "_".
// Лексер именованных аргументов pgx понимает только ASCII, "@сообщение" он не подставит.
func ParameterName(column string) string {
	name := columns.NormalizeName(column)
	var sb strings.Builder
	for _, r := range name {
		if isParamRune(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func isParamRune(r rune) bool {
	return r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}

func isParamLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// parameterNames выдаёт уникальные имена параметров; совпавшие после замены символов получают суффикс
func parameterNames(cols []columns.Column) []string {
	used := make(map[string]bool, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		p := ParameterName(c.Name)
		if p == "" || !isParamLetter(p[0]) {
			p = "p_" + p
		}
		base := p
		for n := 2; used[p]; n++ {
			p = base + "_" + strconv.Itoa(n)
		}
		used[p] = true
		params[i] = p
	}
	return params
}
