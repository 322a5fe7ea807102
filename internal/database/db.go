package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Dialect identifies the SQL flavour behind a *sql.DB.  The repositories
// need it to rebind placeholders and for the statements that differ
// between engines: the duplicate-suppressing attendance insert, the
// calendar upsert and the run insert.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// Open connects to the store named by a database URL and verifies the
// connection.  mysql:// URLs are rewritten into the driver's DSN form;
// postgres:// URLs are passed to lib/pq unchanged.
func Open(databaseURL string) (*sql.DB, Dialect, error) {
	var (
		driver  string
		dsn     string
		dialect Dialect
	)
	switch {
	case strings.HasPrefix(databaseURL, "mysql://"):
		u, err := url.Parse(databaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("parse database url: %w", err)
		}
		driver, dialect = "mysql", DialectMySQL
		dsn = mysqlDSN(u)
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		driver, dialect = "postgres", DialectPostgres
		dsn = databaseURL
	default:
		return nil, "", fmt.Errorf("unsupported database url scheme in %q", databaseURL)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", err
	}

	// Pool settings sized for a small hosted database tier.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, "", err
	}
	return db, dialect, nil
}

// mysqlDSN converts a mysql:// URL into the go-sql-driver DSN form.
// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
func mysqlDSN(u *url.URL) string {
	auth := u.User.Username()
	if pass, ok := u.User.Password(); ok && pass != "" {
		auth = fmt.Sprintf("%s:%s", auth, pass)
	}
	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":3306"
	}
	name := strings.TrimPrefix(u.Path, "/")
	return fmt.Sprintf("%s@tcp(%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC", auth, host, name)
}

// Rebind rewrites ?-style placeholders into the $n form lib/pq expects.
// Repositories write their SQL once with ?; MySQL statements pass through
// untouched.
func Rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
