// Package datasource opens the auxiliary SQL connections used by dynamic job
// parameters, stored-procedure jobs and the ADR account sync. Connections are
// named in configuration and opened lazily, once per name.
package datasource

import (
	"context"
	"database/sql"
	"regexp"
	"sync"
	"time"

	"automation-scheduler/config"
	"automation-scheduler/pkg/errors"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// driverNames maps configured drivers to registered database/sql drivers.
var driverNames = map[string]Dialect{
	"pgx":      DialectPostgres,
	"postgres": DialectPostgres,
	"mysql":    DialectMySQL,
}

var routineName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Conn is an opened auxiliary connection.
type Conn struct {
	DB      *sql.DB
	Dialect Dialect
}

// Registry resolves a configured connection name to an open Conn.
type Registry interface {
	Get(ctx context.Context, name string) (*Conn, error)
	Close() error
}

type registry struct {
	cfg   map[string]config.DataSource
	mu    sync.Mutex
	conns map[string]*Conn
}

func NewRegistry(cfg map[string]config.DataSource) Registry {
	return &registry{cfg: cfg, conns: make(map[string]*Conn)}
}

func (r *registry) Get(ctx context.Context, name string) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[name]; ok {
		return c, nil
	}

	dsCfg, ok := r.cfg[name]
	if !ok {
		return nil, errors.Mark(errors.Newf("datasource %q is not configured", name), errors.ErrScheduleConfiguration)
	}
	dialect, ok := driverNames[dsCfg.Driver]
	if !ok {
		return nil, errors.Mark(errors.Newf("datasource %q uses unsupported driver %q", name, dsCfg.Driver), errors.ErrScheduleConfiguration)
	}
	driver := dsCfg.Driver
	if dialect == DialectPostgres {
		driver = "pgx"
	}

	db, err := sql.Open(driver, dsCfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "open datasource %q", name)
	}
	if dsCfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(dsCfg.MaxOpenConns)
	}
	if dsCfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(dsCfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping datasource %q", name)
	}

	c := &Conn{DB: db, Dialect: dialect}
	r.conns[name] = c
	return c, nil
}

func (r *registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, c := range r.conns {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "close datasource %q", name)
		}
		delete(r.conns, name)
	}
	return firstErr
}

// NewStaticRegistry serves pre-opened connections. Used by tests and by
// callers that already own a *sql.DB.
func NewStaticRegistry(conns map[string]*Conn) Registry {
	return &staticRegistry{conns: conns}
}

type staticRegistry struct {
	conns map[string]*Conn
}

func (s *staticRegistry) Get(_ context.Context, name string) (*Conn, error) {
	c, ok := s.conns[name]
	if !ok {
		return nil, errors.Mark(errors.Newf("datasource %q is not configured", name), errors.ErrScheduleConfiguration)
	}
	return c, nil
}

func (s *staticRegistry) Close() error { return nil }

// ValidateRoutineName accepts only a bare or schema-qualified routine name.
// Free-form SQL is never executed from configuration.
func ValidateRoutineName(name string) error {
	if !routineName.MatchString(name) {
		return errors.Newf("%q is not a routine name", name)
	}
	return nil
}

// Placeholder returns the positional bind marker for the i-th (1-based) argument.
func (d Dialect) Placeholder(i int) string {
	if d == DialectPostgres {
		return "$" + itoa(i)
	}
	return "?"
}

// ScalarCall builds a statement that returns the scalar result of routine.
func (d Dialect) ScalarCall(routine string, argc int) string {
	if d == DialectMySQL {
		return "CALL " + routine + "(" + d.args(argc) + ")"
	}
	return "SELECT " + routine + "(" + d.args(argc) + ")"
}

// RowsCall builds a statement that returns the result set of routine.
func (d Dialect) RowsCall(routine string, argc int) string {
	if d == DialectMySQL {
		return "CALL " + routine + "(" + d.args(argc) + ")"
	}
	return "SELECT * FROM " + routine + "(" + d.args(argc) + ")"
}

// ProcedureCall builds a statement that invokes routine for its side effects.
func (d Dialect) ProcedureCall(routine string, argc int) string {
	return "CALL " + routine + "(" + d.args(argc) + ")"
}

func (d Dialect) args(argc int) string {
	out := ""
	for i := 1; i <= argc; i++ {
		if i > 1 {
			out += ", "
		}
		out += d.Placeholder(i)
	}
	return out
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}
