package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/nayuki/MamIRC-sub000/internal/event"
)

// sqlStore implements Store over database/sql. Queries are written with
// '?' placeholders and rebound for drivers that number them.
type sqlStore struct {
	db       *sql.DB
	numbered bool
	readOnly bool
	closed   atomic.Bool
}

func (s *sqlStore) q(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *sqlStore) Append(ctx context.Context, events []event.Event) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.readOnly {
		return errors.New("archive: store opened read-only")
	}
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, s.q("INSERT INTO events(connectionId, sequence, timestamp, type, data) VALUES(?, ?, ?, ?, ?)"))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("archive: prepare: %w", err)
	}
	for _, ev := range events {
		data := ev.Line
		if data == nil {
			data = []byte{}
		}
		if _, err := stmt.ExecContext(ctx, ev.ConnectionID, ev.Sequence, ev.Timestamp, int(ev.Type), data); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("archive: insert %d/%d: %w", ev.ConnectionID, ev.Sequence, err)
		}
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("archive: close statement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	return nil
}

func (s *sqlStore) NextConnectionID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(connectionId) FROM events").Scan(&max); err != nil {
		return 0, fmt.Errorf("archive: max connection id: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64 + 1, nil
}

func (s *sqlStore) ReadConnection(ctx context.Context, connID, before int64) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, s.q("SELECT connectionId, sequence, timestamp, type, data FROM events WHERE connectionId = ? AND sequence < ? ORDER BY sequence ASC"), connID, before)
	if err != nil {
		return nil, fmt.Errorf("archive: read connection %d: %w", connID, err)
	}
	defer rows.Close()
	var out []event.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *sqlStore) Scan(ctx context.Context, opts ScanOptions, fn func(event.Event) error) error {
	query := "SELECT connectionId, sequence, timestamp, type, data FROM events"
	var args []interface{}
	if opts.ConnectionID >= 0 {
		query += " WHERE connectionId = ?"
		args = append(args, opts.ConnectionID)
	} else if opts.FromConnection > 0 {
		query += " WHERE connectionId >= ?"
		args = append(args, opts.FromConnection)
	}
	query += " ORDER BY connectionId ASC, sequence ASC"
	if opts.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(opts.Limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return fmt.Errorf("archive: scan: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *sqlStore) Connections(ctx context.Context) ([]ConnectionSummary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT connectionId, COUNT(*), MIN(timestamp), MAX(timestamp), MIN(sequence), MAX(sequence) FROM events GROUP BY connectionId ORDER BY connectionId ASC")
	if err != nil {
		return nil, fmt.Errorf("archive: connections: %w", err)
	}
	type bounds struct{ first, last int64 }
	var out []ConnectionSummary
	var seqs []bounds
	for rows.Next() {
		var cs ConnectionSummary
		var b bounds
		if err := rows.Scan(&cs.ConnectionID, &cs.Events, &cs.FirstTimestamp, &cs.LastTimestamp, &b.first, &b.last); err != nil {
			rows.Close()
			return nil, fmt.Errorf("archive: connections: %w", err)
		}
		out = append(out, cs)
		seqs = append(seqs, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range out {
		if out[i].First, err = s.get(ctx, out[i].ConnectionID, seqs[i].first); err != nil {
			return nil, err
		}
		if out[i].Last, err = s.get(ctx, out[i].ConnectionID, seqs[i].last); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *sqlStore) get(ctx context.Context, connID, seq int64) (event.Event, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT connectionId, sequence, timestamp, type, data FROM events WHERE connectionId = ? AND sequence = ?"), connID, seq)
	return scanEvent(row)
}

func (s *sqlStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(r scanner) (event.Event, error) {
	var ev event.Event
	var typ int
	if err := r.Scan(&ev.ConnectionID, &ev.Sequence, &ev.Timestamp, &typ, &ev.Line); err != nil {
		return ev, fmt.Errorf("archive: scan row: %w", err)
	}
	ev.Type = event.Type(typ)
	return ev, nil
}
