package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		User:     "notifier",
		Password: "secret",
		Name:     "notifications",
		Host:     "db.internal",
		Port:     5433,
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "host=db.internal")
	require.Contains(t, dsn, "port=5433")
	require.Contains(t, dsn, "dbname=notifications")
	require.Contains(t, dsn, "sslmode=disable")
}

func TestBuildPostgresDSNRequiresUserAndName(t *testing.T) {
	_, err := buildPostgresDSN(Config{User: "notifier"})
	require.Error(t, err)
}

func TestBuildPostgresDSNHonoursOverride(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{DSN: "postgres://u:p@h/db"})
	require.NoError(t, err)
	require.Equal(t, "postgres://u:p@h/db", dsn)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		User:     "notifier",
		Password: "secret",
		Name:     "notifications",
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "notifier:secret@tcp(127.0.0.1:3306)/notifications")
	require.Contains(t, dsn, "parseTime=True")
	require.Contains(t, dsn, "charset=utf8mb4")
}

func TestBuildMySQLDSNCustomOptions(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		User:    "notifier",
		Name:    "notifications",
		Options: map[string]string{"tls": "skip-verify"},
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "tls=skip-verify")
}
