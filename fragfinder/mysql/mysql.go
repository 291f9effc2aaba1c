package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/morikuni/failure"
	"github.com/sters/fragfinder/fragfinder"
	"github.com/sters/fragfinder/fragfinder/config"
)

const (
	ErrConnect  failure.StringCode = "ConnectError"
	ErrQuery    failure.StringCode = "QueryError"
	ErrOptimize failure.StringCode = "OptimizeError"
)

// SystemSchemas are skipped unless the adapter is told otherwise.
var SystemSchemas = []string{"information_schema", "performance_schema", "sys", "mysql"}

var _ fragfinder.Adapter = (*Adapter)(nil)

type Adapter struct {
	client *sqlx.DB
	addr   string

	// freshStats is set once Version saw a MySQL 8 server, whose
	// information_schema.tables numbers are cached for
	// information_schema_stats_expiry seconds unless the session turns it off.
	freshStats bool

	IncludeSystem bool
}

// Open connects to the server described by cfg and verifies the connection.
// On error no connection is left open.
func Open(ctx context.Context, cfg *config.Config) (*Adapter, error) {
	db, err := sqlx.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, failure.Translate(err, ErrConnect, connectMessage(cfg.Addr()))
	}

	// See "Important settings" section.
	db.SetConnMaxLifetime(time.Minute * 3)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	return Connect(ctx, db, cfg.Addr())
}

// Connect verifies db and wraps it. When the server cannot be reached the
// handle is closed and no adapter is returned.
func Connect(ctx context.Context, db *sqlx.DB, addr string) (*Adapter, error) {
	a := New(db, addr)
	if err := a.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, failure.Wrap(err)
	}

	return a, nil
}

// New wraps an already opened handle.
func New(db *sqlx.DB, addr string) *Adapter {
	return &Adapter{
		client: db,
		addr:   addr,
	}
}

func (m *Adapter) Ping(ctx context.Context) error {
	if err := m.client.PingContext(ctx); err != nil {
		return failure.Translate(err, ErrConnect, connectMessage(m.addr))
	}

	return nil
}

func (m *Adapter) Close() error {
	return failure.Wrap(m.client.Close())
}

// SetMaxOpenConns sizes the pool for the number of concurrent optimizations.
func (m *Adapter) SetMaxOpenConns(n int) {
	if n < 1 {
		n = 1
	}
	m.client.SetMaxOpenConns(n + 1)
	m.client.SetMaxIdleConns(n + 1)
}

func (m *Adapter) Version(ctx context.Context) (string, error) {
	const query = `SELECT VERSION()`

	var version string
	if err := m.client.GetContext(ctx, &version, query); err != nil {
		return "", failure.Translate(err, ErrQuery, failure.Context{"query": query})
	}
	m.freshStats = CachesTableStats(version)

	return version, nil
}

// CachesTableStats reports whether the server is MySQL 8.0 or later. MariaDB
// reads table statistics directly and has no information_schema_stats_expiry.
func CachesTableStats(version string) bool {
	if strings.Contains(strings.ToLower(version), "mariadb") {
		return false
	}

	major, err := strconv.Atoi(strings.SplitN(version, ".", 2)[0])
	if err != nil {
		return false
	}

	return major >= 8
}

const statsExpiryQuery = `SET SESSION information_schema_stats_expiry = 0`

// statsConn returns a connection on which information_schema.tables reports
// current numbers.
func (m *Adapter) statsConn(ctx context.Context) (*sqlx.Conn, error) {
	conn, err := m.client.Connx(ctx)
	if err != nil {
		return nil, failure.Translate(err, ErrQuery)
	}
	if !m.freshStats {
		return conn, nil
	}

	if _, err := conn.ExecContext(ctx, statsExpiryQuery); err != nil {
		_ = conn.Close()
		return nil, failure.Translate(err, ErrQuery, failure.Context{"query": statsExpiryQuery})
	}

	return conn, nil
}

func (m *Adapter) Databases(ctx context.Context) ([]*fragfinder.Database, error) {
	const query = `
select
schema_name

from
information_schema.schemata

order by
schema_name`

	var names []string
	if err := m.client.SelectContext(ctx, &names, query); err != nil {
		return nil, failure.Translate(err, ErrQuery)
	}

	dbs := []*fragfinder.Database{}
	for _, name := range names {
		if !m.IncludeSystem && isSystemSchema(name) {
			continue
		}
		dbs = append(dbs, &fragfinder.Database{Name: name})
	}

	return dbs, nil
}

type tableRow struct {
	DBName      string         `db:"table_schema"`
	Name        string         `db:"table_name"`
	Engine      sql.NullString `db:"engine"`
	Rows        sql.NullInt64  `db:"table_rows"`
	DataLength  sql.NullInt64  `db:"data_length"`
	IndexLength sql.NullInt64  `db:"index_length"`
	DataFree    sql.NullInt64  `db:"data_free"`
}

func (r *tableRow) toTable() *fragfinder.Table {
	t := &fragfinder.Table{
		Name:        r.Name,
		DBName:      r.DBName,
		Engine:      r.Engine.String,
		DataLength:  r.DataLength.Int64,
		IndexLength: r.IndexLength.Int64,
		DataFree:    r.DataFree.Int64,
	}
	if r.Rows.Int64 > 0 {
		t.Rows = uint64(r.Rows.Int64)
	}

	return t
}

// Column labels of information_schema are upper case on MySQL 8, hence the
// aliases.
const tableStatusQuery = `
select
table_schema as table_schema,
table_name as table_name,
engine as engine,
table_rows as table_rows,
data_length as data_length,
index_length as index_length,
data_free as data_free

from
information_schema.tables

where
table_type = 'BASE TABLE'
and table_schema = ?`

func (m *Adapter) TableStatus(ctx context.Context, schema string) ([]*fragfinder.Table, error) {
	query := tableStatusQuery + `

order by
table_name`

	conn, err := m.statsConn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	var rows []tableRow
	if err := conn.SelectContext(ctx, &rows, query, schema); err != nil {
		return nil, failure.Translate(err, ErrQuery, failure.Context{"schema": schema})
	}

	tables := make([]*fragfinder.Table, 0, len(rows))
	for i := range rows {
		tables = append(tables, rows[i].toTable())
	}

	return tables, nil
}

func (m *Adapter) Table(ctx context.Context, schema, name string) (*fragfinder.Table, error) {
	query := tableStatusQuery + `
and table_name = ?`

	conn, err := m.statsConn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	var row tableRow
	if err := conn.GetContext(ctx, &row, query, schema, name); err != nil {
		return nil, failure.Translate(err, ErrQuery, failure.Context{"schema": schema, "table": name})
	}

	return row.toTable(), nil
}

type messageRow struct {
	Table string         `db:"Table"`
	Op    string         `db:"Op"`
	Type  string         `db:"Msg_type"`
	Text  sql.NullString `db:"Msg_text"`
}

func (m *Adapter) Optimize(ctx context.Context, t *fragfinder.Table, opts fragfinder.OptimizeOptions) (*fragfinder.OptimizeResult, error) {
	query := OptimizeStatement(t, opts)

	var rows []messageRow
	if err := m.client.SelectContext(ctx, &rows, query); err != nil {
		return nil, failure.Translate(err, ErrOptimize, failure.Context{"table": t.String()})
	}

	res := &fragfinder.OptimizeResult{Table: t}
	for _, r := range rows {
		res.Messages = append(res.Messages, fragfinder.Message{
			Table: r.Table,
			Op:    r.Op,
			Type:  r.Type,
			Text:  r.Text.String,
		})
	}

	return res, nil
}

func OptimizeStatement(t *fragfinder.Table, opts fragfinder.OptimizeOptions) string {
	stmt := "OPTIMIZE TABLE "
	if opts.NoWriteToBinlog {
		stmt = "OPTIMIZE NO_WRITE_TO_BINLOG TABLE "
	}

	return stmt + QuoteIdentifier(t.DBName) + "." + QuoteIdentifier(t.Name)
}

func QuoteIdentifier(s string) string {
	return fmt.Sprintf("`%s`", strings.ReplaceAll(s, "`", "``"))
}

func connectMessage(addr string) failure.Wrapper {
	return failure.Messagef("Can't connect to MySQL server on '%s'", addr)
}

func isSystemSchema(name string) bool {
	for _, s := range SystemSchemas {
		if strings.EqualFold(s, name) {
			return true
		}
	}

	return false
}
