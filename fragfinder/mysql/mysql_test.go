package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	drv "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sters/fragfinder/fragfinder"
)

var tableColumns = []string{"table_schema", "table_name", "engine", "table_rows", "data_length", "index_length", "data_free"}

func newMock(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return New(sqlx.NewDb(db, "mysql"), "localhost:3306"), mock
}

func TestVersion(t *testing.T) {
	a, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT VERSION()")).
		WillReturnRows(sqlmock.NewRows([]string{"VERSION()"}).AddRow("8.0.34-log"))

	v, err := a.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "8.0.34-log", v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersion_serverError(t *testing.T) {
	a, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT VERSION()")).
		WillReturnError(&drv.MySQLError{Number: 1045, Message: "Access denied for user 'x'@'localhost'"})

	_, err := a.Version(context.Background())
	require.Error(t, err)

	code, msg := Describe(err)
	assert.Equal(t, 1045, code)
	assert.Equal(t, "Access denied for user 'x'@'localhost'", msg)
}

func TestConnect(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		mock.ExpectPing()
		mock.ExpectClose()

		a, err := Connect(context.Background(), sqlx.NewDb(db, "mysql"), "localhost:3306")
		require.NoError(t, err)
		require.NoError(t, a.Close())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refused", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		mock.ExpectPing().WillReturnError(errors.New("dial tcp 127.0.0.1:3306: connect: connection refused"))
		mock.ExpectClose()

		a, err := Connect(context.Background(), sqlx.NewDb(db, "mysql"), "localhost:3306")
		require.Error(t, err)
		assert.Nil(t, a)
		assert.NoError(t, mock.ExpectationsWereMet())

		assert.Equal(t,
			"Error 2003: Can't connect to MySQL server on 'localhost:3306' (dial tcp 127.0.0.1:3306: connect: connection refused)",
			ErrorLine(err),
		)
	})
}

func TestDatabases(t *testing.T) {
	tests := []struct {
		name          string
		includeSystem bool
		want          []string
	}{
		{name: "user schemas only", want: []string{"app", "shop"}},
		{name: "with system schemas", includeSystem: true, want: []string{"app", "information_schema", "mysql", "performance_schema", "shop", "sys"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, mock := newMock(t)
			a.IncludeSystem = tc.includeSystem
			mock.ExpectQuery("information_schema.schemata").
				WillReturnRows(sqlmock.NewRows([]string{"SCHEMA_NAME"}).
					AddRow("app").
					AddRow("information_schema").
					AddRow("mysql").
					AddRow("performance_schema").
					AddRow("shop").
					AddRow("sys"))

			dbs, err := a.Databases(context.Background())
			require.NoError(t, err)

			names := []string{}
			for _, db := range dbs {
				names = append(names, db.Name)
			}
			assert.Equal(t, tc.want, names)
		})
	}
}

func TestTableStatus(t *testing.T) {
	a, mock := newMock(t)
	mock.ExpectQuery("information_schema.tables").
		WithArgs("app").
		WillReturnRows(sqlmock.NewRows(tableColumns).
			AddRow("app", "orders", "InnoDB", 1200, 16384*100, 16384*20, 4<<20).
			AddRow("app", "legacy", "MyISAM", 10, 2048, 1024, 512).
			AddRow("app", "broken", nil, nil, nil, nil, nil))

	tables, err := a.TableStatus(context.Background(), "app")
	require.NoError(t, err)
	require.Len(t, tables, 3)

	assert.Equal(t, &fragfinder.Table{
		Name:        "orders",
		DBName:      "app",
		Engine:      "InnoDB",
		Rows:        1200,
		DataLength:  16384 * 100,
		IndexLength: 16384 * 20,
		DataFree:    4 << 20,
	}, tables[0])
	assert.Equal(t, &fragfinder.Table{Name: "broken", DBName: "app"}, tables[2])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTable(t *testing.T) {
	a, mock := newMock(t)
	mock.ExpectQuery("information_schema.tables").
		WithArgs("app", "orders").
		WillReturnRows(sqlmock.NewRows(tableColumns).
			AddRow("app", "orders", "InnoDB", 1200, 1000, 100, 50))

	tbl, err := a.Table(context.Background(), "app", "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(50), tbl.DataFree)
	assert.Equal(t, int64(1100), tbl.Size())
}

func TestTable_notFound(t *testing.T) {
	a, mock := newMock(t)
	mock.ExpectQuery("information_schema.tables").
		WithArgs("app", "gone").
		WillReturnRows(sqlmock.NewRows(tableColumns))

	_, err := a.Table(context.Background(), "app", "gone")
	require.Error(t, err)

	code, _ := Describe(err)
	assert.Equal(t, CRUnknownError, code)
}

func TestOptimize(t *testing.T) {
	tbl := &fragfinder.Table{DBName: "app", Name: "orders", Engine: "InnoDB"}
	messageColumns := []string{"Table", "Op", "Msg_type", "Msg_text"}

	t.Run("innodb recreate", func(t *testing.T) {
		a, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("OPTIMIZE TABLE `app`.`orders`")).
			WillReturnRows(sqlmock.NewRows(messageColumns).
				AddRow("app.orders", "optimize", "note", "Table does not support optimize, doing recreate + analyze instead").
				AddRow("app.orders", "optimize", "status", "OK"))

		res, err := a.Optimize(context.Background(), tbl, fragfinder.OptimizeOptions{})
		require.NoError(t, err)
		require.Len(t, res.Messages, 2)
		_, failed := res.Err()
		assert.False(t, failed)
		assert.Equal(t, "status", res.Messages[1].Type)
	})

	t.Run("no binlog", func(t *testing.T) {
		a, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("OPTIMIZE NO_WRITE_TO_BINLOG TABLE `app`.`orders`")).
			WillReturnRows(sqlmock.NewRows(messageColumns).
				AddRow("app.orders", "optimize", "status", "OK"))

		_, err := a.Optimize(context.Background(), tbl, fragfinder.OptimizeOptions{NoWriteToBinlog: true})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error row", func(t *testing.T) {
		a, mock := newMock(t)
		mock.ExpectQuery("OPTIMIZE TABLE").
			WillReturnRows(sqlmock.NewRows(messageColumns).
				AddRow("app.orders", "optimize", "Error", "Table 'app.orders' is marked as crashed").
				AddRow("app.orders", "optimize", "status", "Operation failed"))

		res, err := a.Optimize(context.Background(), tbl, fragfinder.OptimizeOptions{})
		require.NoError(t, err)
		m, failed := res.Err()
		assert.True(t, failed)
		assert.Equal(t, "Table 'app.orders' is marked as crashed", m.Text)
	})

	t.Run("server error", func(t *testing.T) {
		a, mock := newMock(t)
		mock.ExpectQuery("OPTIMIZE TABLE").
			WillReturnError(&drv.MySQLError{Number: 1146, Message: "Table 'app.orders' doesn't exist"})

		_, err := a.Optimize(context.Background(), tbl, fragfinder.OptimizeOptions{})
		assert.Equal(t, "Error 1146: Table 'app.orders' doesn't exist", ErrorLine(err))
	})
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`orders`", QuoteIdentifier("orders"))
	assert.Equal(t, "`we``ird`", QuoteIdentifier("we`ird"))
	assert.Equal(t,
		"OPTIMIZE TABLE `my-db`.`t``1`",
		OptimizeStatement(&fragfinder.Table{DBName: "my-db", Name: "t`1"}, fragfinder.OptimizeOptions{}),
	)
}

func TestCachesTableStats(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{version: "8.0.34-log", want: true},
		{version: "8.4.0", want: true},
		{version: "9.1.0-commercial", want: true},
		{version: "5.7.44-log"},
		{version: "10.11.6-MariaDB"},
		{version: "5.5.5-10.6.16-MariaDB-log"},
		{version: "unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.version, func(t *testing.T) {
			assert.Equal(t, tc.want, CachesTableStats(tc.version))
		})
	}
}

func TestTableStatus_statsExpiry(t *testing.T) {
	tests := []struct {
		version string
		fresh   bool
	}{
		{version: "8.0.34-log", fresh: true},
		{version: "10.11.6-MariaDB"},
	}

	for _, tc := range tests {
		t.Run(tc.version, func(t *testing.T) {
			a, mock := newMock(t)
			mock.ExpectQuery(regexp.QuoteMeta("SELECT VERSION()")).
				WillReturnRows(sqlmock.NewRows([]string{"VERSION()"}).AddRow(tc.version))
			for _, args := range [][]driver.Value{{"app"}, {"app", "orders"}} {
				if tc.fresh {
					mock.ExpectExec(regexp.QuoteMeta("SET SESSION information_schema_stats_expiry = 0")).
						WillReturnResult(sqlmock.NewResult(0, 0))
				}
				mock.ExpectQuery("information_schema.tables").
					WithArgs(args...).
					WillReturnRows(sqlmock.NewRows(tableColumns).
						AddRow("app", "orders", "InnoDB", 1200, 1000, 100, 50))
			}

			ctx := context.Background()
			_, err := a.Version(ctx)
			require.NoError(t, err)
			_, err = a.TableStatus(ctx, "app")
			require.NoError(t, err)
			_, err = a.Table(ctx, "app", "orders")
			require.NoError(t, err)

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTableStatus_statsExpiryError(t *testing.T) {
	a, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT VERSION()")).
		WillReturnRows(sqlmock.NewRows([]string{"VERSION()"}).AddRow("8.0.34"))
	mock.ExpectExec("information_schema_stats_expiry").
		WillReturnError(&drv.MySQLError{Number: 1227, Message: "Access denied; you need (at least one of) the SYSTEM_VARIABLES_ADMIN privilege(s) for this operation"})

	ctx := context.Background()
	_, err := a.Version(ctx)
	require.NoError(t, err)

	_, err = a.TableStatus(ctx, "app")
	code, _ := Describe(err)
	assert.Equal(t, 1227, code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
