package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/pkg/config"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
)

type testModel struct {
	ID   int
	Name string `gorm:"uniqueIndex"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db)

	ctx := context.Background()
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}))

	var count int64
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			tx.Create(&testModel{Name: "panicky"})
			panic("boom")
		})
	})

	var count int64
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPing(t *testing.T) {
	client := NewFromGorm(newTestDB(t))
	assert.NoError(t, client.Ping(context.Background()))
}

func TestIsUniqueViolation(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testModel{Name: "dup"}).Error)
	err := db.Create(&testModel{Name: "dup"}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err, ""))

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_payment_id_key"}
	assert.True(t, IsUniqueViolation(pgErr, "orders_payment_id_key"))
	assert.False(t, IsUniqueViolation(pgErr, "other_key"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23514"}, ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}

func TestDialectorFor(t *testing.T) {
	assert.Equal(t, "sqlite", dialectorFor(config.DBConfig{Driver: config.DriverSQLite, DSN: "x.db"}).Name())
	assert.Equal(t, "postgres", dialectorFor(config.DBConfig{Driver: config.DriverPostgres, DSN: "postgres://x"}).Name())
}

func TestSQLiteDSNAddsPragmas(t *testing.T) {
	assert.Equal(t, "file:vendcare.db?_foreign_keys=on&_busy_timeout=5000", sqliteDSN("vendcare.db"))
	assert.Equal(t, "file:x?mode=memory&_foreign_keys=on&_busy_timeout=5000", sqliteDSN("file:x?mode=memory"))
	assert.Equal(t, "file:x?_fk=1&_busy_timeout=10", sqliteDSN("file:x?_fk=1&_busy_timeout=10"))
}

func TestPoolFor(t *testing.T) {
	assert.Equal(t, poolSize{maxOpen: 1, maxIdle: 1}, poolFor(config.DBConfig{Driver: config.DriverSQLite, MaxOpenConns: 40}))
	assert.Equal(t, poolSize{maxOpen: 20, maxIdle: 10}, poolFor(config.DBConfig{Driver: config.DriverPostgres}))
	assert.Equal(t, poolSize{maxOpen: 8, maxIdle: 4}, poolFor(config.DBConfig{Driver: config.DriverPostgres, MaxOpenConns: 8, MaxIdleConns: 30}))
}

func TestNewOpensSQLite(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Output: &buf})
	client, err := New(context.Background(), config.DBConfig{
		Driver: config.DriverSQLite,
		DSN:    "file:" + t.Name() + "?mode=memory&cache=shared",
	}, logg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, config.DriverSQLite, client.Driver())
	assert.Contains(t, buf.String(), "database connection established")

	_, err = New(context.Background(), config.DBConfig{Driver: config.DriverSQLite}, logg)
	assert.Error(t, err)
}

func TestQueryLoggerReportsSlowAndFailed(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Output: &buf})
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: newQueryLogger(logg, time.Nanosecond),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	buf.Reset()

	var found testModel
	err = conn.First(&found, "name = ?", "nobody").Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Contains(t, buf.String(), "db.query_slow")
	assert.NotContains(t, buf.String(), "db.query_failed")

	buf.Reset()
	require.Error(t, conn.Exec("SELECT * FROM missing_table").Error)
	assert.Contains(t, buf.String(), "db.query_failed")
}
