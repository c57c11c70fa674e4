package devserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/ragdesk/internal/devserver"
	"github.com/kalambet/ragdesk/internal/notify"
	"github.com/kalambet/ragdesk/internal/session"
	"github.com/kalambet/ragdesk/internal/transport"
)

// counting wraps a handler and counts requests per "METHOD path".
type counting struct {
	next http.Handler
	mu   sync.Mutex
	hits map[string]int
}

func (c *counting) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.hits[r.Method+" "+r.URL.Path]++
	c.mu.Unlock()
	c.next.ServeHTTP(w, r)
}

func (c *counting) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[key]
}

func startBackend(t *testing.T) (*session.Store, *counting, *notify.Center) {
	t.Helper()
	h := &counting{next: devserver.NewHandler(devserver.Deps{}), hits: map[string]int{}}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	center := notify.NewCenter(notify.DefaultTransientTTL)
	client := transport.New(transport.Options{
		BaseURL:  srv.URL + devserver.APIPrefix,
		Notifier: center,
	})
	return session.New(client), h, center
}

func TestEndToEnd_UploadAskDeleteClear(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := startBackend(t)

	store.Initialize(ctx)
	require.True(t, store.IsSystemOnline())
	require.False(t, store.HasDocuments())

	var last atomic.Int32
	res, err := store.UploadDocument(ctx,
		transport.File{Name: "go.md", Data: []byte("Goroutines are lightweight threads managed by the Go runtime.")},
		transport.ProgressFunc(func(p int) { last.Store(int32(p)) }))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunkCount)
	assert.EqualValues(t, 100, last.Load())

	// Initialize plus exactly one refresh after the upload.
	assert.Equal(t, 2, backend.count("GET /api/v1/documents"))
	assert.Equal(t, 2, backend.count("GET /api/v1/status"))
	assert.Equal(t, 1, store.TotalDocuments())
	assert.Equal(t, 1, store.Status().DocumentCount)

	resp, err := store.SendMessage(ctx, "What are goroutines?", session.QueryOptions{TopK: 3})
	require.NoError(t, err)
	assert.Contains(t, resp.Answer, "Goroutines")

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, session.MessageAssistant, msgs[1].Type)
	require.Len(t, msgs[1].Sources, 1)
	assert.Equal(t, "go.md", msgs[1].Sources[0].Source)

	chunks, err := store.LoadDocumentChunks(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, 1, chunks.TotalChunks)

	require.NoError(t, store.DeleteDocument(ctx, res.DocumentID))
	assert.False(t, store.HasDocuments())

	err = store.DeleteDocument(ctx, res.DocumentID)
	assert.True(t, transport.IsKind(err, transport.KindNotFound))

	require.NoError(t, store.ClearDocuments(ctx))
	assert.Empty(t, store.Messages())
	assert.False(t, store.Loading())
}

func TestEndToEnd_ValidationAndSizeErrors(t *testing.T) {
	ctx := context.Background()
	store, _, center := startBackend(t)

	_, err := store.UploadDocument(ctx, transport.File{Name: "manual.docx", Data: []byte("x")}, nil)
	require.Error(t, err)
	assert.True(t, transport.IsKind(err, transport.KindBadRequest))
	te, _ := transport.AsError(err)
	assert.Contains(t, te.Message, "unsupported file format")

	// Client-side failures raise a transient notice only.
	active := center.Active()
	require.Len(t, active, 1)
	assert.False(t, active[0].Persistent)
	assert.Empty(t, active[0].Title)
}

func TestEndToEnd_HealthAndServices(t *testing.T) {
	ctx := context.Background()
	store, _, _ := startBackend(t)

	h, err := store.CheckHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, devserver.ServiceName, h.Service)

	sc, err := store.TestServices(ctx)
	require.NoError(t, err)
	assert.True(t, sc.OverallStatus)
}

func TestEndToEnd_Unreachable(t *testing.T) {
	srv := httptest.NewServer(devserver.NewHandler(devserver.Deps{}))
	url := srv.URL + devserver.APIPrefix
	srv.Close()

	center := notify.NewCenter(notify.DefaultTransientTTL)
	client := transport.New(transport.Options{BaseURL: url, Notifier: center})

	conn := client.CheckConnection(context.Background())
	assert.False(t, conn.Connected)
	assert.NotEmpty(t, conn.Error)

	store := session.New(client)
	_, err := store.LoadSystemStatus(context.Background())
	require.Error(t, err)
	assert.True(t, transport.IsKind(err, transport.KindNetwork))
	assert.Equal(t, session.StatusError, store.Status().Status)

	// One notice for the probe, one for the status load.
	active := center.Active()
	require.Len(t, active, 2)
	for _, n := range active {
		assert.Equal(t, "Network error", n.Title)
		assert.True(t, n.Persistent)
	}
}
