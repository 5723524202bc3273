package db

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to a database selected by the DSN scheme. The platform
// store uses postgres or sqlite; the Privnode store uses postgres or
// mysql. Tests open either store on a temp-dir sqlite file.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	lowered := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lowered, "postgres://"), strings.HasPrefix(lowered, "postgresql://"):
		conn, errOpen := gorm.Open(postgres.Open(trimmed), cfg)
		if errOpen != nil {
			return nil, fmt.Errorf("db: open postgres: %w", errOpen)
		}
		return conn, nil
	case strings.HasPrefix(lowered, "mysql://"), strings.HasPrefix(lowered, "mariadb://"):
		native, errConvert := mysqlNativeDSN(trimmed)
		if errConvert != nil {
			return nil, errConvert
		}
		conn, errOpen := gorm.Open(mysql.Open(native), cfg)
		if errOpen != nil {
			return nil, fmt.Errorf("db: open mysql: %w", errOpen)
		}
		return conn, nil
	case strings.HasPrefix(lowered, "file:"), strings.HasSuffix(lowered, ".db"):
		conn, errOpen := gorm.Open(sqlite.Open(trimmed), cfg)
		if errOpen != nil {
			return nil, fmt.Errorf("db: open sqlite: %w", errOpen)
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("db: unsupported dsn scheme: %s", trimmed)
	}
}

// mysqlNativeDSN converts a mysql:// URL into the go-sql-driver format.
func mysqlNativeDSN(raw string) (string, error) {
	parsed, errParse := url.Parse(raw)
	if errParse != nil {
		return "", fmt.Errorf("db: parse mysql dsn: %w", errParse)
	}

	user := parsed.User.Username()
	pass, _ := parsed.User.Password()
	host := parsed.Host
	if host == "" {
		host = "127.0.0.1:3306"
	}
	if !strings.Contains(host, ":") {
		host += ":3306"
	}
	name := strings.TrimPrefix(parsed.Path, "/")
	if name == "" {
		return "", fmt.Errorf("db: mysql dsn missing database name")
	}

	query := parsed.Query()
	query.Set("parseTime", "true")

	auth := user
	if pass != "" {
		auth = user + ":" + pass
	}
	return fmt.Sprintf("%s@tcp(%s)/%s?%s", auth, host, name, query.Encode()), nil
}
