// Package testutil provides a database/sql stub that understands the few
// statements the postgres rules store issues.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

var stubSeq atomic.Int64

// StubConn records statements and keeps table rows in memory.
type StubConn struct {
	mu     sync.Mutex
	Execs  []string
	Tables map[string][]map[string]any

	FailPing   bool
	FailExec   string
	FailCommit bool

	pending map[string][]map[string]any
}

// NewStubDB registers a fresh stub driver and opens a *sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *StubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *StubConn) Close() error { return nil }

func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return errors.New("ping failed")
	}
	return nil
}

// BeginTx stages writes until Commit.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = make(map[string][]map[string]any, len(c.Tables))
	for table, rows := range c.Tables {
		c.pending[table] = slices.Clone(rows)
	}
	return &stubTx{conn: c}, nil
}

// ExecContext handles CREATE TABLE, DELETE FROM and INSERT INTO.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec != "" && strings.Contains(strings.ToUpper(query), strings.ToUpper(c.FailExec)) {
		return nil, fmt.Errorf("exec failed: %s", c.FailExec)
	}
	tables := c.tables()
	fields := strings.Fields(query)
	switch {
	case hasPrefix(query, "CREATE TABLE"):
		return driver.RowsAffected(0), nil
	case hasPrefix(query, "DELETE FROM"):
		table := strings.ToLower(fields[2])
		n := len(tables[table])
		tables[table] = nil
		return driver.RowsAffected(n), nil
	case hasPrefix(query, "INSERT INTO"):
		table, cols, err := parseInsert(query)
		if err != nil {
			return nil, err
		}
		if len(cols) != len(args) {
			return nil, fmt.Errorf("insert %s: %d columns, %d args", table, len(cols), len(args))
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = args[i].Value
		}
		tables[table] = slices.DeleteFunc(tables[table], func(r map[string]any) bool {
			return r[cols[0]] == row[cols[0]]
		})
		tables[table] = append(tables[table], row)
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unsupported statement: %s", query)
}

// QueryContext handles "SELECT a, b FROM table".
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lower := strings.ToLower(query)
	from := strings.Index(lower, " from ")
	if !hasPrefix(query, "SELECT") || from < 0 {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	cols := splitColumns(query[len("select "):from])
	table := strings.Fields(lower[from+len(" from "):])[0]
	rows := &stubRows{cols: cols}
	for _, r := range c.tables()[table] {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = r[col]
		}
		rows.rows = append(rows.rows, vals)
	}
	return rows, nil
}

func (c *StubConn) tables() map[string][]map[string]any {
	if c.pending != nil {
		return c.pending
	}
	return c.Tables
}

type stubTx struct{ conn *StubConn }

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.FailCommit {
		t.conn.pending = nil
		return errors.New("commit failed")
	}
	t.conn.Tables = t.conn.pending
	t.conn.pending = nil
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.pending = nil
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func hasPrefix(query, keyword string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), keyword)
}

func parseInsert(query string) (string, []string, error) {
	rest := strings.TrimSpace(query[strings.Index(strings.ToUpper(query), "INTO ")+len("INTO "):])
	open, closing := strings.Index(rest, "("), strings.Index(rest, ")")
	if open < 0 || closing <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	return strings.ToLower(strings.TrimSpace(rest[:open])), splitColumns(rest[open+1 : closing]), nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(p)))
	}
	return out
}
