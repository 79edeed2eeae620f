package db

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/dentaldesk/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var ErrInvalidStoreURL = errors.New("invalid_store_url")

func Dialect(cfg config.StoreConfig) (gorm.Dialector, error) {
	switch cfg.Type {
	case "mysql":
		return mysql.Open(cfg.URL), nil
	case "postgres", "":
		dsn, err := PostgresDSN(cfg.URL, cfg.ServiceKey)
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.Type)
	}
}

// PostgresDSN returns the store URL with the service key as password when the
// URL does not already carry one. Timezone is pinned to UTC.
func PostgresDSN(rawURL, serviceKey string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidStoreURL, err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidStoreURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidStoreURL)
	}

	user := "postgres"
	if u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}
	if _, hasPassword := u.User.Password(); !hasPassword && serviceKey != "" {
		u.User = url.UserPassword(user, serviceKey)
	}

	q := u.Query()
	if q.Get("TimeZone") == "" {
		q.Set("TimeZone", "UTC")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
