// Package migrate applies embedded goose migrations to the local store and the remote mirror.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/4tyam/everyday/migrations"
)

// goose keeps its FS, dialect and logger in package globals.
var gooseMu sync.Mutex

// gooseLogger routes goose output through zap.
type gooseLogger struct{ s *zap.SugaredLogger }

func (l gooseLogger) Printf(format string, v ...any) {
	l.s.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.s.Fatalf(strings.TrimSuffix(format, "\n"), v...)
}

// Up runs every pending migration found in dir of fsys against db.
func Up(ctx context.Context, db *sql.DB, dialect string, fsys fs.FS, dir string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{s: log.Named("goose").Sugar()})
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("migrate %s: %w", dialect, err)
	}
	return nil
}

// Version reports the applied schema version of db.
func Version(ctx context.Context, db *sql.DB, dialect string) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect(dialect); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}

// Local migrates the on-device SQLite database.
func Local(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	return Up(ctx, db, "sqlite3", migrations.FS, migrations.SQLiteDir, log)
}

// Remote runs the mirror migrations against the Postgres DSN.
func Remote(ctx context.Context, dsn string, log *zap.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	return Up(ctx, db, "postgres", migrations.FS, migrations.PostgresDir, log)
}
