package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kalambet/ragdesk/internal/transport"
)

type handlerFunc func(body any, out any) error

// fakeAPI answers exchanges from a table keyed by "METHOD path" and records
// every call.
type fakeAPI struct {
	mu       sync.Mutex
	handlers map[string]handlerFunc
	calls    []string
	bodies   map[string]any
	upload   func(f transport.File, obs transport.ProgressObserver, out any) error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		handlers: make(map[string]handlerFunc),
		bodies:   make(map[string]any),
	}
}

func (f *fakeAPI) on(key string, h handlerFunc) *fakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[key] = h
	return f
}

// reply answers with v encoded as JSON.
func reply(v any) handlerFunc {
	return func(_ any, out any) error {
		return fill(v, out)
	}
}

func fail(err error) handlerFunc {
	return func(any, any) error { return err }
}

func fill(v, out any) error {
	if out == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (f *fakeAPI) call(key string, body, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, key)
	if body != nil {
		f.bodies[key] = body
	}
	h, ok := f.handlers[key]
	f.mu.Unlock()

	if !ok {
		return &transport.Error{Kind: transport.KindNotFound, Status: 404, Message: "The requested resource does not exist"}
	}
	return h(body, out)
}

func (f *fakeAPI) Get(_ context.Context, path string, out any) error {
	return f.call("GET "+path, nil, out)
}

func (f *fakeAPI) Post(_ context.Context, path string, body, out any) error {
	return f.call("POST "+path, body, out)
}

func (f *fakeAPI) Delete(_ context.Context, path string, out any) error {
	return f.call("DELETE "+path, nil, out)
}

func (f *fakeAPI) Upload(_ context.Context, path string, file transport.File, obs transport.ProgressObserver, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, "UPLOAD "+path)
	up := f.upload
	f.mu.Unlock()
	if up == nil {
		return fmt.Errorf("no upload handler")
	}
	return up(file, obs, out)
}

func (f *fakeAPI) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

func (f *fakeAPI) body(key string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func serverError() *transport.Error {
	return &transport.Error{
		Kind:    transport.KindServer,
		Status:  500,
		Method:  "POST",
		Path:    "/api/v1/query",
		Message: "Internal server error",
	}
}

var runningStatus = map[string]any{
	"status":         "running",
	"document_count": 2,
	"chunk_count":    7,
	"model_status":   map[string]string{"embedding_model": "loaded", "llm_model": "loaded"},
	"memory_usage":   0.25,
}

var twoDocCatalog = map[string]any{
	"documents": []map[string]any{
		{"id": "doc-1", "source": "a.txt", "file_type": ".txt", "chunk_count": 3},
		{"id": "doc-2", "source": "b.md", "file_type": ".md", "chunk_count": 4},
	},
	"sources":         map[string]any{"a.txt": 3, "b.md": 4},
	"total_documents": 2,
	"total_chunks":    7,
}
