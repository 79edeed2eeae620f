package db

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/dentaldesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestPostgresDSNInjectsServiceKey(t *testing.T) {
	dsn, err := PostgresDSN("postgres://postgres@db.example.test:5432/postgres?sslmode=require", "svc-key")
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	password, ok := u.User.Password()
	require.True(t, ok)
	assert.Equal(t, "svc-key", password)
	assert.Equal(t, "postgres", u.User.Username())
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	assert.Equal(t, "UTC", u.Query().Get("TimeZone"))
}

func TestPostgresDSNKeepsExplicitPassword(t *testing.T) {
	dsn, err := PostgresDSN("postgresql://app:pw@db.example.test/app", "svc-key")
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	password, _ := u.User.Password()
	assert.Equal(t, "pw", password)
}

func TestPostgresDSNRejectsNonPostgresURL(t *testing.T) {
	_, err := PostgresDSN("https://project.example.test", "svc-key")
	require.ErrorIs(t, err, ErrInvalidStoreURL)
}

func TestDialectRejectsUnknownType(t *testing.T) {
	_, err := Dialect(config.StoreConfig{Type: "oracle"})
	require.Error(t, err)
}

func TestOpenSQLite(t *testing.T) {
	conn, err := Open(config.StoreConfig{Type: "sqlite", SQLitePath: "file::memory:", MaxOpenConn: 1}, zap.NewNop())
	require.NoError(t, err)

	var one int
	require.NoError(t, conn.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "postgres", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), want: true},
		{name: "postgres other", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "mysql", err: errors.New("Error 1062: Duplicate entry"), want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: payments.billing_payment_intent_id"), want: true},
		{name: "other", err: errors.New("connection reset"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}
