package pgsink

import (
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"PgLogPump/internal/columns"
	"PgLogPump/internal/models"
)

// EncodeRow вызывает writer каждой колонки по порядку. Колонки skip-on-insert сюда
// попадать не должны: их writer паникует.
func EncodeRow(ev *models.LogEvent, cols []columns.Column, fp columns.FormatProvider) ([]any, error) {
	row := make([]any, len(cols))
	for i, c := range cols {
		v, err := c.Writer.Value(ev, fp)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", c.Name)
		}
		row[i] = v
	}
	return row, nil
}

// EncodeNamedArgs - параметры одного INSERT
func EncodeNamedArgs(ev *models.LogEvent, cols []columns.Column, params []string, fp columns.FormatProvider) (pgx.NamedArgs, error) {
	row, err := EncodeRow(ev, cols, fp)
	if err != nil {
		return nil, err
	}
	args := make(pgx.NamedArgs, len(params))
	for i, p := range params {
		args[p] = row[i]
	}
	return args, nil
}

// EncodeInsertArgs - наборы параметров для построчной вставки пачки
func EncodeInsertArgs(events []models.LogEvent, cols []columns.Column, fp columns.FormatProvider) ([]pgx.NamedArgs, error) {
	params := parameterNames(cols)
	out := make([]pgx.NamedArgs, 0, len(events))
	for i := range events {
		args, err := EncodeNamedArgs(&events[i], cols, params, fp)
		if err != nil {
			return nil, errors.Wrapf(err, "event %d", i+1)
		}
		out = append(out, args)
	}
	return out, nil
}

// EncodeCopyRows - строки для бинарного COPY, значения в порядке колонок
func EncodeCopyRows(events []models.LogEvent, cols []columns.Column, fp columns.FormatProvider) ([][]any, error) {
	rows := make([][]any, 0, len(events))
	for i := range events {
		row, err := EncodeRow(&events[i], cols, fp)
		if err != nil {
			return nil, errors.Wrapf(err, "event %d", i+1)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// copySource кодирует строки лениво, по мере того как pgx отправляет их в поток COPY
func copySource(events []models.LogEvent, cols []columns.Column, fp columns.FormatProvider) pgx.CopyFromSource {
	return pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
		row, err := EncodeRow(&events[i], cols, fp)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "event %d", i+1), errEncode)
		}
		return row, nil
	})
}
