package archive

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteDSN builds a go-sqlite3 DSN. Writers use WAL with full sync so that
// a committed batch survives power loss and readers never block the writer.
func sqliteDSN(path string, readOnly bool) string {
	v := url.Values{}
	v.Set("_busy_timeout", "10000")
	if readOnly {
		v.Set("_query_only", "1")
	} else {
		v.Set("_journal_mode", "WAL")
		v.Set("_synchronous", "FULL")
		v.Set("_txlock", "immediate")
	}
	return "file:" + path + "?" + v.Encode()
}

func openSQLite(ctx context.Context, opts Options) (Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("archive: sqlite path is required")
	}
	if !opts.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("archive: create directory: %w", err)
		}
	} else if _, err := os.Stat(opts.Path); err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	dsn := sqliteDSN(opts.Path, opts.ReadOnly)
	if opts.Migrate && !opts.ReadOnly {
		if err := migrateSQLite(dsn); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: open sqlite: %w", err)
	}
	if !opts.ReadOnly {
		// one writer connection; SQLite serializes writers anyway
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: ping sqlite: %w", err)
	}
	return &sqlStore{db: db, readOnly: opts.ReadOnly}, nil
}
