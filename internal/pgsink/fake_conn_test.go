package pgsink

import (
	"context"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeConn записывает все команды и строки, которые ему передали
type fakeConn struct {
	db *fakeDB
}

// fakeDB - общее состояние всех соединений одного теста
type fakeDB struct {
	mu sync.Mutex

	stmts    []string
	inserted []pgx.NamedArgs
	copied   [][]any
	copyCols []string
	copyInto pgx.Identifier

	connects int
	closes   int
	dials    int // все попытки, включая неудачные

	connectErr error
	// failOn - ошибка для команд, содержащих подстроку
	failOn    map[string]error
	failOnRow int // номер INSERT (с 1), на котором вернуть insertErr
	insertErr error
	inserts   int
}

func newFakeDB() *fakeDB {
	return &fakeDB{failOn: map[string]error{}}
}

func (db *fakeDB) connector() Connector {
	return func(ctx context.Context) (Conn, error) {
		db.mu.Lock()
		defer db.mu.Unlock()
		db.dials++
		if db.connectErr != nil {
			return nil, db.connectErr
		}
		db.connects++
		return &fakeConn{db: db}, nil
	}
}

func (c *fakeConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db := c.db
	db.mu.Lock()
	defer db.mu.Unlock()
	db.stmts = append(db.stmts, sql)
	for sub, err := range db.failOn {
		if strings.Contains(sql, sub) {
			return pgconn.CommandTag{}, err
		}
	}
	if strings.HasPrefix(sql, "INSERT") {
		db.inserts++
		if db.insertErr != nil && db.inserts == db.failOnRow {
			return pgconn.CommandTag{}, db.insertErr
		}
		if len(args) == 1 {
			if named, ok := args[0].(pgx.NamedArgs); ok {
				db.inserted = append(db.inserted, named)
			}
		}
	}
	return pgconn.NewCommandTag("OK"), nil
}

// CopyFrom ведёт себя как настоящий COPY: строки видны только если поток дочитан без ошибок
func (c *fakeConn) CopyFrom(_ context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	var rows [][]any
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return 0, err
		}
		rows = append(rows, vals)
	}
	if err := src.Err(); err != nil {
		return 0, err
	}

	db := c.db
	db.mu.Lock()
	defer db.mu.Unlock()
	db.stmts = append(db.stmts, "COPY")
	db.copyInto = table
	db.copyCols = cols
	db.copied = append(db.copied, rows...)
	return int64(len(rows)), nil
}

func (c *fakeConn) Close(context.Context) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.closes++
	return nil
}

func (db *fakeDB) statements() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, len(db.stmts))
	copy(out, db.stmts)
	return out
}
