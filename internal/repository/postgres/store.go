// Package postgres - хранилища модерации: леджер, каталог, журнал прогонов, операторы.
// Запросы пишутся с плейсхолдерами '?' и переписываются под диалект; в тестах тот же SQL
// гоняется на SQLite (modernc).
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
	"github.com/xela07ax/novel-moderation/internal/infra"
	_ "modernc.org/sqlite" // Драйвер SQLite для dev-стенда и тестов
)

type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) Driver() string {
	if d == SQLite {
		return "sqlite"
	}
	return "pgx"
}

// Rebind переписывает '?' в '$1..$n' для Postgres. Строковые литералы не разбираем: '?' в них не пишем.
func (d Dialect) Rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// DialectFor: "sqlite:" / "file:" - SQLite, остальное - Postgres.
func DialectFor(url string) (Dialect, string) {
	switch {
	case strings.HasPrefix(url, "sqlite:"):
		return SQLite, strings.TrimPrefix(url, "sqlite:")
	case strings.HasPrefix(url, "file:"):
		return SQLite, url
	}
	return Postgres, url
}

type Store struct {
	db      *sql.DB
	dialect Dialect
}

func NewStore(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

// Open открывает пул и проверяет соединение.
func Open(ctx context.Context, cfg infra.DatabaseConfig) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database.url is empty")
	}
	d, dsn := DialectFor(cfg.URL)

	db, err := sql.Open(d.Driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Driver(), err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if d == SQLite {
		// SQLite не любит конкурентных писателей
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewStore(db, d), nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) q(query string) string { return s.dialect.Rebind(query) }

// Migrate создает схему, если ее нет. Повторный вызов безопасен.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
