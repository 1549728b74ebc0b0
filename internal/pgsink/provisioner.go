package pgsink

import (
	"context"

	"github.com/cockroachdb/errors"

	"PgLogPump/internal/columns"
)

// Provisioner создаёт схему и таблицу. Идемпотентность обеспечивает IF NOT EXISTS
// в самой БД, поэтому два sink на одну таблицу друг другу не мешают.
type Provisioner struct {
	Mapping columns.TypeMapping
}

// EnsureSchema - CREATE SCHEMA IF NOT EXISTS
func (p Provisioner) EnsureSchema(ctx context.Context, conn Execer, schema string) error {
	if _, err := conn.Exec(ctx, CreateSchemaSQL(schema)); err != nil {
		return errors.Wrapf(err, "create schema %s", QuoteIdentifier(schema))
	}
	return nil
}

// EnsureTable - CREATE TABLE IF NOT EXISTS по всем колонкам реестра
func (p Provisioner) EnsureTable(ctx context.Context, conn Execer, schema, table string, reg *columns.Registry) error {
	stmt, err := CreateTableSQL(schema, table, reg, p.Mapping)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, stmt); err != nil {
		return errors.Wrapf(err, "create table %s", QualifiedTableName(schema, table))
	}
	return nil
}
