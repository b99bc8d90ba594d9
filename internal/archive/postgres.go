package archive

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openPostgres(ctx context.Context, opts Options) (Store, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("archive: postgres dsn is required")
	}
	if opts.Migrate && !opts.ReadOnly {
		if err := migratePostgres(opts.DSN); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("pgx", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("archive: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: ping postgres: %w", err)
	}
	return &sqlStore{db: db, numbered: true, readOnly: opts.ReadOnly}, nil
}
