package migration

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowengine/config"
)

func TestParseDatabaseType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", "postgres", DatabaseTypePostgres, false},
		{"postgresql", "postgresql", DatabaseTypePostgres, false},
		{"pg", "pg", DatabaseTypePostgres, false},
		{"mysql", "mysql", DatabaseTypeMySQL, false},
		{"mariadb", "mariadb", DatabaseTypeMySQL, false},
		{"sqlite", "sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", "sqlite3", DatabaseTypeSQLite, false},
		{"uppercase", "POSTGRES", DatabaseTypePostgres, false},
		{"invalid", "oracle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestBuildDatabaseURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		dbType   DatabaseType
		sslMode  string
		database string
		expected string
	}{
		{"postgres", DatabaseTypePostgres, "disable", "flows", "postgres://u:p@db:5432/flows?sslmode=disable"},
		{"postgres default ssl", DatabaseTypePostgres, "", "flows", "postgres://u:p@db:5432/flows?sslmode=require"},
		{"mysql", DatabaseTypeMySQL, "", "flows", "u:p@tcp(db:5432)/flows?parseTime=true&multiStatements=true"},
		{"sqlite", DatabaseTypeSQLite, "", "/tmp/flows.db", "file:/tmp/flows.db?_pragma=foreign_keys(1)"},
		{"unknown", DatabaseType("oracle"), "", "flows", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildDatabaseURL(tt.dbType, "db", 5432, tt.database, "u", "p", tt.sslMode)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewMigrator(nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypeSQLite})
	assert.ErrorContains(t, err, "database URL is required")

	_, err = NewMigrator(&Config{DatabaseType: "oracle", DatabaseURL: "oracle://x"})
	assert.ErrorContains(t, err, "unsupported database type")

	_, err = NewMigratorFromDatabaseConfig(config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "invalid database type")
}

func TestAvailableMigrations(t *testing.T) {
	t.Parallel()

	for _, dt := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		files, err := availableMigrations(dt)
		require.NoError(t, err, dt)
		require.NotEmpty(t, files, dt)
		assert.Equal(t, uint(1), files[0].version)
		assert.Equal(t, "init_schema", files[0].name)
		for i := 1; i < len(files); i++ {
			assert.Greater(t, files[i].version, files[i-1].version)
		}
	}
}

func newSQLiteMigrator(t *testing.T) *DefaultMigrator {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "flowengine.db")
	m, err := NewMigratorFromDatabaseConfig(config.DatabaseConfig{Driver: "sqlite", Name: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMigrator_SQLite_UpDown(t *testing.T) {
	t.Parallel()
	m := newSQLiteMigrator(t)
	ctx := context.Background()

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))
	// Applying twice is a no-op.
	require.NoError(t, m.Up(ctx))

	version, dirty, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Applied)

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, info.TotalMigrations, info.AppliedMigrations)
	assert.Zero(t, info.PendingMigrations)

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestCLI_Output(t *testing.T) {
	t.Parallel()
	m := newSQLiteMigrator(t)
	ctx := context.Background()

	var out bytes.Buffer
	cli := NewCLI(m)
	cli.SetOutput(&out)

	require.NoError(t, cli.Run(ctx, "version"))
	assert.Contains(t, out.String(), "Schema version: none")

	out.Reset()
	require.NoError(t, cli.Run(ctx, "up"))
	assert.Contains(t, out.String(), "schema at version 1 (1/1 applied)")

	out.Reset()
	require.NoError(t, cli.Run(ctx, "status"))
	assert.Contains(t, out.String(), "init_schema")
	assert.Contains(t, out.String(), "Applied")
	assert.Contains(t, out.String(), "Pending: 0")

	out.Reset()
	require.NoError(t, cli.Run(ctx, "info"))
	assert.Contains(t, out.String(), "pending")

	assert.Equal(t, []string{"down", "info", "status", "up", "version"}, cli.Commands())
	assert.ErrorContains(t, cli.Run(ctx, "sideways"), "unknown migrate command")
}
