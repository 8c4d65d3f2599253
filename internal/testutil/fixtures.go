package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// Context returns a context with a reasonable timeout for tests.
// The cancel function is registered via t.Cleanup.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// WriteFiles creates files (relative path to content) under a fresh temp
// directory and returns the directory.
func WriteFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("creating %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
	return dir
}

// Call is one request seen by a Controller.
type Call struct {
	Method string
	Path   string
	Query  string
	Body   string
	Header http.Header
}

// Reply is a canned controller response.
type Reply struct {
	Status int
	Body   string
	Header map[string]string
}

// Controller is an httptest server answering "METHOD /path" routes with
// canned replies and recording every call. Unrouted requests get 404.
type Controller struct {
	*httptest.Server

	mu     sync.Mutex
	routes map[string]Reply
	calls  []Call
}

// NewController starts a Controller, closed on cleanup.
func NewController(t *testing.T) *Controller {
	t.Helper()
	c := &Controller{routes: make(map[string]Reply)}
	c.Server = httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(c.Close)
	return c
}

// Handle routes method and path to a 200 reply with body.
func (c *Controller) Handle(method, path, body string) {
	c.HandleReply(method, path, Reply{Status: http.StatusOK, Body: body})
}

// HandleReply routes method and path to r.
func (c *Controller) HandleReply(method, path string, r Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[method+" "+path] = r
}

// Calls returns the recorded calls in arrival order.
func (c *Controller) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallsTo returns the recorded calls whose path has the given prefix.
func (c *Controller) CallsTo(prefix string) []Call {
	var out []Call
	for _, call := range c.Calls() {
		if strings.HasPrefix(call.Path, prefix) {
			out = append(out, call)
		}
	}
	return out
}

func (c *Controller) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.calls = append(c.calls, Call{r.Method, r.URL.Path, r.URL.RawQuery, string(body), r.Header.Clone()})
	reply, ok := c.routes[r.Method+" "+r.URL.Path]
	c.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	for k, v := range reply.Header {
		w.Header().Set(k, v)
	}
	if reply.Status == 0 {
		reply.Status = http.StatusOK
	}
	w.WriteHeader(reply.Status)
	io.WriteString(w, reply.Body)
}

// Must returns val or fails the test on err.
func Must[T any](t *testing.T, val T, err error) T {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return val
}
