package db

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/smallbiznis/salonbook/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
	TypeSQLite   = "sqlite"
)

// Dialect picks the gorm driver for cfg.DBType. All three keep timestamps
// in UTC; business dates are derived from the branch timezone elsewhere.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case TypePostgres:
		return postgres.New(postgres.Config{DSN: postgresDSN(cfg)}), nil
	case TypeMySQL:
		return mysql.New(mysql.Config{DSN: mysqlDSN(cfg)}), nil
	case TypeSQLite:
		return sqlite.Open(sqliteDSN(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.DBType)
	}
}

func postgresDSN(cfg config.Config) string {
	sslmode := strings.TrimSpace(cfg.DBSSLMode)
	if sslmode == "" {
		sslmode = "disable"
	}
	query := url.Values{}
	query.Set("sslmode", sslmode)
	query.Set("TimeZone", "UTC")
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.DBUser, cfg.DBPassword),
		Host:     net.JoinHostPort(cfg.DBHost, cfg.DBPort),
		Path:     "/" + cfg.DBName,
		RawQuery: query.Encode(),
	}
	return u.String()
}

func mysqlDSN(cfg config.Config) string {
	dsn := mysqldriver.NewConfig()
	dsn.User = cfg.DBUser
	dsn.Passwd = cfg.DBPassword
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(cfg.DBHost, cfg.DBPort)
	dsn.DBName = cfg.DBName
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	return dsn.FormatDSN()
}

// sqliteDSN turns on foreign keys and a busy timeout so concurrent cash
// movements wait for the writer instead of failing with SQLITE_BUSY.
func sqliteDSN(cfg config.Config) string {
	name := strings.TrimSpace(cfg.DBName)
	if name == "" {
		name = "salonbook"
	}
	if !strings.HasSuffix(name, ".db") && name != ":memory:" {
		name += ".db"
	}
	return "file:" + name + "?_foreign_keys=on&_busy_timeout=5000"
}
