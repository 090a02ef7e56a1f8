package litepool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jirevwe/litepool/static"
)

// requestBufferSize is how much of a request is read before routing.
const requestBufferSize = 1024

// A Handler answers one accepted connection.
//
// ServeConn should fill in rec with what it read and wrote; the server
// journals rec after ServeConn returns, whether or not it failed.
type Handler interface {
	ServeConn(ctx context.Context, conn net.Conn, rec *Record) error
}

// The HandlerFunc type is an adapter to allow the use of
// ordinary functions as a Handler. If f is a function
// with the appropriate signature, HandlerFunc(f) is a
// Handler that calls f.
type HandlerFunc func(context.Context, net.Conn, *Record) error

// ServeConn calls fn(ctx, conn, rec)
func (fn HandlerFunc) ServeConn(ctx context.Context, conn net.Conn, rec *Record) error {
	return fn(ctx, conn, rec)
}

// PageHandler reads the start of a request, picks a route from its Mux
// and writes the status line followed by the route's page.
type PageHandler struct {
	mux   *Mux
	pages static.Source
}

func NewPageHandler(mux *Mux, pages static.Source) *PageHandler {
	return &PageHandler{mux: mux, pages: pages}
}

func (h *PageHandler) ServeConn(ctx context.Context, conn net.Conn, rec *Record) error {
	buf := make([]byte, requestBufferSize)
	n, err := conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read request: %w", err)
	}
	buf = buf[:n]

	route := h.mux.Match(buf)
	requestLine, headers := splitRequest(buf)

	rec.RequestLine = requestLine
	rec.Status = route.Status
	rec.Page = route.Page
	detail := &RecordDetail{Headers: headers, BytesRead: n}

	contents, err := h.pages.ReadPage(ctx, route.Page)
	if err != nil {
		detail.Error = err.Error()
		return errors.Join(err, rec.SetDetail(detail))
	}

	response := make([]byte, 0, len(route.StatusLine())+4+len(contents))
	response = append(response, route.StatusLine()...)
	response = append(response, "\r\n\r\n"...)
	response = append(response, contents...)

	written, err := conn.Write(response)
	detail.BytesWritten = written
	if err != nil {
		err = fmt.Errorf("failed to write response: %w", err)
		detail.Error = err.Error()
	}

	return errors.Join(err, rec.SetDetail(detail))
}

// splitRequest returns the request line and the header lines that fit in
// buf. A header cut off by the end of the buffer is dropped.
func splitRequest(buf []byte) (string, []string) {
	head, _, complete := bytes.Cut(buf, []byte("\r\n\r\n"))
	lines := bytes.Split(head, []byte("\r\n"))

	if !complete && len(lines) > 1 {
		lines = lines[:len(lines)-1]
	}

	requestLine := string(lines[0])

	var headers []string
	for _, l := range lines[1:] {
		if len(l) > 0 {
			headers = append(headers, string(l))
		}
	}
	return requestLine, headers
}
