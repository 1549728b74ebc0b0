package pgsink

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer выполняет одиночную команду
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Conn - то, что sink использует от соединения. *pgx.Conn ему удовлетворяет.
type Conn interface {
	Execer
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close(ctx context.Context) error
}

// Connector открывает новое соединение на каждый flush
type Connector func(ctx context.Context) (Conn, error)

// PgxConnector открывает *pgx.Conn по заранее разобранной конфигурации
func PgxConnector(cfg *pgx.ConnConfig) Connector {
	return func(ctx context.Context) (Conn, error) {
		conn, err := pgx.ConnectConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}
