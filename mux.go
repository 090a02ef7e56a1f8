package litepool

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Route is the response chosen for a request line.
type Route struct {
	Status int
	Page   string
}

// StatusLine renders the HTTP/1.1 status line for the route, without CRLF.
func (r Route) StatusLine() string {
	return fmt.Sprintf("HTTP/1.1 %d %s", r.Status, statusText(r.Status))
}

// the reason phrase is sent upper-case, e.g. "404 NOT FOUND"
func statusText(code int) string {
	return strings.ToUpper(http.StatusText(code))
}

// Mux matches the start of a raw request against registered request lines.
type Mux struct {
	entries  map[string]muxEntry
	order    []string
	fallback Route
	mu       *sync.RWMutex
}

type muxEntry struct {
	line  []byte
	route Route
}

// NewMux returns a Mux that answers every request with 404.html.
func NewMux() *Mux {
	return &Mux{
		entries:  make(map[string]muxEntry),
		fallback: Route{Status: http.StatusNotFound, Page: "404.html"},
		mu:       &sync.RWMutex{},
	}
}

// DefaultMux serves hello.html for "GET / HTTP/1.1" and 404.html otherwise.
func DefaultMux() *Mux {
	m := NewMux()
	m.Handle("GET / HTTP/1.1", Route{Status: http.StatusOK, Page: "hello.html"})
	return m
}

// Handle registers route for an exact request line, given without CRLF.
func (m *Mux) Handle(requestLine string, route Route) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[requestLine]; !ok {
		m.order = append(m.order, requestLine)
	}

	m.entries[requestLine] = muxEntry{
		line:  []byte(requestLine + "\r\n"),
		route: route,
	}
}

// NotFound replaces the route used when nothing matches.
func (m *Mux) NotFound(route Route) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fallback = route
}

// Match returns the route for the raw request bytes in buf.
func (m *Mux) Match(buf []byte) Route {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, line := range m.order {
		e := m.entries[line]
		if bytes.HasPrefix(buf, e.line) {
			return e.route
		}
	}

	return m.fallback
}
