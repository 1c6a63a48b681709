package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/flowengine/config"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return mock, gormDB
}

func testPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

func TestNewPoolManager(t *testing.T) {
	t.Parallel()
	_, gormDB := setupMockDB(t)

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	assert.Same(t, gormDB, manager.DB())
	assert.Equal(t, 10, manager.GetStats().MaxOpenConnections)
}

func TestNewPoolManager_Invalid(t *testing.T) {
	t.Parallel()

	_, err := NewPoolManager(nil, testPoolConfig(), nil)
	assert.Error(t, err)

	_, gormDB := setupMockDB(t)
	_, err = NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 2, MaxIdleConns: 4}, nil)
	assert.ErrorContains(t, err, "invalid pool config")
}

func TestPoolManager_Ping(t *testing.T) {
	t.Parallel()
	mock, gormDB := setupMockDB(t)

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, manager.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.ErrorIs(t, manager.Ping(context.Background()), sql.ErrConnDone)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_Close(t *testing.T) {
	t.Parallel()
	mock, gormDB := setupMockDB(t)

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, manager.Close())
	// 重复关闭是安全的
	require.NoError(t, manager.Close())

	assert.ErrorIs(t, manager.Ping(context.Background()), ErrPoolClosed)
	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_HealthCheckStopsOnClose(t *testing.T) {
	t.Parallel()
	mock, gormDB := setupMockDB(t)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 50; i++ {
		mock.ExpectPing()
	}
	mock.ExpectClose()

	cfg := testPoolConfig()
	cfg.HealthCheckInterval = 10 * time.Millisecond
	manager, err := NewPoolManager(gormDB, cfg, zap.NewNop())
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- manager.Close() }()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not stop the health check loop")
	}
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	t.Parallel()
	mock, gormDB := setupMockDB(t)

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE execution_records").WillReturnError(errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE execution_records").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempts := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		return tx.Exec("UPDATE execution_records SET status = ?", "completed").Error
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry_NonRetryable(t *testing.T) {
	t.Parallel()
	mock, gormDB := setupMockDB(t)

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("constraint violated")
	attempts := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_SQLiteMemory(t *testing.T) {
	t.Parallel()

	pm, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { pm.Close() })

	require.NoError(t, pm.Ping(context.Background()))
	assert.Equal(t, 1, pm.GetStats().MaxOpenConnections)

	err = pm.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE TABLE probe (id INTEGER PRIMARY KEY, name TEXT)").Error; err != nil {
			return err
		}
		return tx.Exec("INSERT INTO probe (name) VALUES (?)", "ok").Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, pm.DB().Raw("SELECT COUNT(*) FROM probe").Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDialector(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"postgres", "mysql", "sqlite"} {
		d, err := Dialector(config.DatabaseConfig{Driver: driver, Name: "flows"})
		require.NoError(t, err, driver)
		assert.Equal(t, driver, d.Name())
	}

	_, err := Dialector(config.DatabaseConfig{})
	assert.ErrorContains(t, err, "not configured")
	_, err = Dialector(config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestPoolConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		config  PoolConfig
		wantErr bool
	}{
		{name: "valid config", config: testPoolConfig()},
		{name: "defaults", config: DefaultPoolConfig()},
		{name: "invalid max open conns", config: PoolConfig{MaxOpenConns: 0, MaxIdleConns: 5}, wantErr: true},
		{name: "invalid max idle conns", config: PoolConfig{MaxOpenConns: 10, MaxIdleConns: 0}, wantErr: true},
		{name: "idle > open", config: PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10}, wantErr: true},
		{name: "negative lifetime", config: PoolConfig{MaxOpenConns: 5, MaxIdleConns: 1, ConnMaxLifetime: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPoolConfigFrom(t *testing.T) {
	t.Parallel()

	pc := PoolConfigFrom(config.DatabaseConfig{MaxOpenConns: 3})
	assert.Equal(t, 3, pc.MaxOpenConns)
	assert.Equal(t, 3, pc.MaxIdleConns)
	assert.Equal(t, DefaultPoolConfig().ConnMaxLifetime, pc.ConnMaxLifetime)
	assert.Zero(t, pc.HealthCheckInterval)
	assert.NoError(t, pc.Validate())

	def := config.DefaultDatabaseConfig()
	pc = PoolConfigFrom(def)
	assert.Equal(t, def.MaxOpenConns, pc.MaxOpenConns)
	assert.Equal(t, def.HealthCheckInterval, pc.HealthCheckInterval)
}
