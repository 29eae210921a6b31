package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/vendcare-backend/pkg/migrate"
)

// PostgresDSNEnv names the database used by tests that need real row locks.
const PostgresDSNEnv = "VENDCARE_TEST_DB_DSN"

// OpenPostgres connects to the database in VENDCARE_TEST_DB_DSN and brings its schema up
// to date. The test is skipped when the variable is unset. Callers create their own
// machines so runs against a shared database do not collide.
func OpenPostgres(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skip(PostgresDSNEnv + " is not set")
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrate.Run(context.Background(), sqlDB, migrate.EmbeddedDir, "up"))
	return conn
}
