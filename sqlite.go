package litepool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

const (
	// rfc3339Milli is like time.RFC3339Nano, but with millisecond precision
	rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"
)

var (
	createRequests = `create table if not exists requests (
			id TEXT not null primary key,
			remote_addr TEXT not null,
			request_line TEXT not null,
			status INTEGER not null,
			page TEXT not null,
			duration_ms INTEGER not null default 0,
			detail BLOB,
			created_at TEXT not null default (strftime('%Y-%m-%dT%H:%M:%fZ'))
		) strict;`

	createRequestsStatusIndex = `create index if not exists idx_requests_status on requests (status);`
)

type Sqlite struct {
	logger *slog.Logger
	db     *sqlx.DB
	retry  int
}

var _ Journal = (*Sqlite)(nil)

func NewSqlite(dbPath string, logger *slog.Logger) (*Sqlite, error) {
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("%s?cache=shared&mode=rwc&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA journal_size_limit = 67108864;")
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	_, err = db.Exec("PRAGMA cache_size = 2000;")
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Sqlite{db: db, logger: logger, retry: 3}

	ctx := context.Background()
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err = tx.ExecContext(ctx, createRequests)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, createRequestsStatusIndex)
		if err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Record writes r to the requests table, filling in Id and CreatedAt when
// they are empty. Busy database errors are retried a few times.
func (s *Sqlite) Record(ctx context.Context, r *Record) error {
	if len(r.Id) == 0 {
		r.Id = ulid.Make().String()
	}
	if len(r.CreatedAt) == 0 {
		r.CreatedAt = time.Now().UTC().Format(rfc3339Milli)
	}

	insert := func() error {
		return s.inTx(ctx, func(tx *sqlx.Tx) error {
			_, err := tx.NamedExecContext(ctx, `insert into requests (id, remote_addr, request_line, status, page, duration_ms, detail, created_at)
				values (:id, :remote_addr, :request_line, :status, :page, :duration_ms, :detail, :created_at)`, r)
			return err
		})
	}

	return NewRetry(s.retry, 10*time.Millisecond, insert).Do(ctx)
}

// Recent returns the latest n records, newest first. ULIDs sort by time.
func (s *Sqlite) Recent(ctx context.Context, n int) (records []Record, err error) {
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &records, `select * from requests order by id desc limit ?`, n)
	})
	return records, err
}

// CountByStatus returns how many requests were answered with status.
func (s *Sqlite) CountByStatus(ctx context.Context, status int) (count int, err error) {
	err = s.db.GetContext(ctx, &count, `select count(*) from requests where status = ?`, status)
	return count, err
}

func (s *Sqlite) Close() error {
	return s.db.Close()
}

func (s *Sqlite) inTx(ctx context.Context, cb func(*sqlx.Tx) error) (err error) {
	tx, beginErr := s.db.BeginTxx(ctx, nil)
	if beginErr != nil {
		return fmt.Errorf("cannot start tx: %w", beginErr)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = rollback(tx, nil)
			panic(rec)
		}
	}()

	if err = cb(tx); err != nil {
		return rollback(tx, err)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("cannot commit tx: %w", commitErr)
	}

	return nil
}

func rollback(tx *sqlx.Tx, err error) error {
	if rollbackErr := tx.Rollback(); rollbackErr != nil {
		return fmt.Errorf("cannot roll back tx after error (tx error: %v), original error: %w", rollbackErr, err)
	}
	return err
}
