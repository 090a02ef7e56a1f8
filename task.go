package litepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// connTask is the unit of work submitted to the worker pool for every
// accepted connection.
type connTask struct {
	ctx      context.Context
	id       string
	conn     net.Conn
	accepted time.Time
	timeout  time.Duration
	handler  Handler
	journal  Journal
	metrics  *serverMetrics
	log      *slog.Logger
}

func (t *connTask) Id() string { return t.id }

func (t *connTask) Execute() error {
	defer t.conn.Close()

	if t.timeout > 0 {
		if err := t.conn.SetDeadline(time.Now().Add(t.timeout)); err != nil {
			return fmt.Errorf("failed to set deadline: %w", err)
		}
	}

	rec := &Record{Id: t.id, RemoteAddr: t.conn.RemoteAddr().String()}
	err := t.handler.ServeConn(t.ctx, t.conn, rec)
	rec.DurationMs = time.Since(t.accepted).Milliseconds()
	t.metrics.served(rec.Status, err)

	if err != nil && len(rec.Detail) == 0 {
		_ = rec.SetDetail(&RecordDetail{Error: err.Error()})
	}

	if t.journal != nil {
		if jErr := t.journal.Record(t.ctx, rec); jErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to journal request: %w", jErr))
		}
	}

	t.log.Debug("request served", "request_id", t.id, "status", rec.Status, "page", rec.Page, "duration_ms", rec.DurationMs)
	return err
}

func (t *connTask) OnFailure(err error) {
	t.log.Error(err.Error(), "request_id", t.id, "remote_addr", t.conn.RemoteAddr().String())
}
