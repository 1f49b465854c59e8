package aptos

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeNode is an in-process stand-in for the fullnode REST API and indexer.
type fakeNode struct {
	t *testing.T

	mu          sync.Mutex
	routes      map[string]http.HandlerFunc
	bodies      map[string][]byte
	contentType map[string]string
	hits        map[string]int
}

func newFakeNode(t *testing.T) (*fakeNode, *httptest.Server) {
	t.Helper()
	f := &fakeNode{
		t:           t,
		routes:      map[string]http.HandlerFunc{},
		bodies:      map[string][]byte{},
		contentType: map[string]string{},
		hits:        map[string]int{},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

// handle registers a handler for "METHOD /path".
func (f *fakeNode) handle(route string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = h
}

func (f *fakeNode) json(route string, status int, body string) {
	f.handle(route, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func (f *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + strings.TrimSuffix(r.URL.Path, "/")
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	h, ok := f.routes[route]
	f.bodies[route] = body
	f.contentType[route] = r.Header.Get("Content-Type")
	f.hits[route]++
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "no route " + route, "error_code": "web_framework_error"})
		return
	}
	h(w, r)
}

func (f *fakeNode) body(route string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[route]
}

func (f *fakeNode) header(route string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contentType[route]
}

func (f *fakeNode) count(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[route]
}
