package litepool

import (
	"context"

	"github.com/jirevwe/litepool/packer"
)

// Journal records every connection the server handled.
type Journal interface {
	// Record stores one handled request
	Record(context.Context, *Record) error

	// Recent returns the latest n records, newest first
	Recent(context.Context, int) ([]Record, error)

	Close() error
}

type Record struct {
	Id          string `json:"id" db:"id"`
	RemoteAddr  string `json:"remote_addr" db:"remote_addr"`
	RequestLine string `json:"request_line" db:"request_line"`
	Status      int    `json:"status" db:"status"`
	Page        string `json:"page" db:"page"`
	DurationMs  int64  `json:"duration_ms" db:"duration_ms"`
	Detail      []byte `json:"detail" db:"detail"`
	CreatedAt   string `json:"created_at" db:"created_at"`
}

// RecordDetail is stored msgpack-encoded in Record.Detail.
type RecordDetail struct {
	Headers      []string `json:"headers"`
	BytesRead    int      `json:"bytes_read"`
	BytesWritten int      `json:"bytes_written"`
	Error        string   `json:"error,omitempty"`
}

func (r *Record) SetDetail(d *RecordDetail) error {
	raw, err := packer.EncodeMessage(d)
	if err != nil {
		return err
	}
	r.Detail = raw
	return nil
}

func (r *Record) GetDetail() (*RecordDetail, error) {
	d := &RecordDetail{}
	if len(r.Detail) == 0 {
		return d, nil
	}
	if err := packer.DecodeMessage(r.Detail, d); err != nil {
		return nil, err
	}
	return d, nil
}
