package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/ragdesk/internal/transport"
)

func uploadOK(f transport.File, obs transport.ProgressObserver, out any) error {
	for _, p := range []int{10, 55, 100} {
		obs.Progress(p)
	}
	return fill(map[string]any{
		"filename":    f.Name,
		"file_size":   len(f.Data),
		"document_id": "doc-3",
		"chunk_count": 2,
	}, out)
}

func TestUploadDocument_RefreshesCatalogAndStatusOnce(t *testing.T) {
	api := newFakeAPI().
		on("GET /documents", reply(twoDocCatalog)).
		on("GET /status", reply(runningStatus))
	api.upload = uploadOK
	s := New(api)

	var seen []int
	res, err := s.UploadDocument(ctx, transport.File{Name: "notes.md", Data: []byte("# notes")},
		transport.ProgressFunc(func(p int) { seen = append(seen, p) }))
	require.NoError(t, err)

	assert.Equal(t, "doc-3", res.DocumentID)
	assert.Equal(t, int64(7), res.FileSize)
	assert.Equal(t, []int{10, 55, 100}, seen)

	assert.Equal(t, 1, api.count("GET /documents"))
	assert.Equal(t, 1, api.count("GET /status"))
	assert.Equal(t, 2, s.Catalog().TotalDocuments)
	assert.Equal(t, StatusRunning, s.Status().Status)
	assert.True(t, s.IsSystemOnline())
	assert.True(t, s.HasDocuments())
}

func TestUploadDocument_FailureDoesNotRefresh(t *testing.T) {
	failure := &transport.Error{Kind: transport.KindTooLarge, Status: 413, Message: "File size exceeds the limit"}
	api := newFakeAPI()
	api.upload = func(transport.File, transport.ProgressObserver, any) error { return failure }
	s := New(api)

	_, err := s.UploadDocument(ctx, transport.File{Name: "huge.pdf"}, nil)
	assert.Same(t, failure, err)
	assert.Zero(t, api.count("GET /documents"))
	assert.Zero(t, api.count("GET /status"))
	assert.Equal(t, StatusUnknown, s.Status().Status)
}

func TestUploadDocument_RefreshFailurePropagates(t *testing.T) {
	api := newFakeAPI().
		on("GET /documents", reply(twoDocCatalog)).
		on("GET /status", fail(serverError()))
	api.upload = uploadOK
	s := New(api)

	_, err := s.UploadDocument(ctx, transport.File{Name: "a.txt", Data: []byte("a")}, nil)
	require.Error(t, err)
	assert.True(t, transport.IsKind(err, transport.KindServer))
	assert.Equal(t, StatusError, s.Status().Status)
}

func TestUploadDocument_NilObserverDiscardsProgress(t *testing.T) {
	api := newFakeAPI().
		on("GET /documents", reply(twoDocCatalog)).
		on("GET /status", reply(runningStatus))
	var got transport.ProgressObserver
	api.upload = func(f transport.File, obs transport.ProgressObserver, out any) error {
		got = obs
		return uploadOK(f, obs, out)
	}
	s := New(api)

	res, err := s.UploadDocument(ctx, transport.File{Name: "a.txt", Data: []byte("a")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "doc-3", res.DocumentID)
	assert.Equal(t, transport.NoProgress, got)
}

func TestLoadDocuments(t *testing.T) {
	api := newFakeAPI().on("GET /documents", reply(twoDocCatalog))
	s := New(api)

	c, err := s.LoadDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, c.Documents, 2)
	assert.Equal(t, 7, c.TotalChunks)
	assert.NotNil(t, c.Chunks)
	assert.Equal(t, c, s.Catalog())
	assert.Equal(t, 2, s.TotalDocuments())
}

func TestLoadDocuments_FailureKeepsCatalog(t *testing.T) {
	api := newFakeAPI().on("GET /documents", reply(twoDocCatalog))
	s := New(api)
	_, err := s.LoadDocuments(ctx)
	require.NoError(t, err)
	before := s.Catalog()

	api.on("GET /documents", fail(serverError()))
	_, err = s.LoadDocuments(ctx)
	require.Error(t, err)
	assert.Equal(t, before, s.Catalog())
}

func TestCatalogIsACopy(t *testing.T) {
	api := newFakeAPI().on("GET /documents", reply(twoDocCatalog))
	s := New(api)
	_, err := s.LoadDocuments(ctx)
	require.NoError(t, err)

	c := s.Catalog()
	c.Documents[0].ID = "mutated"
	c.Sources["x"] = 1
	assert.Equal(t, "doc-1", s.Catalog().Documents[0].ID)
	assert.NotContains(t, s.Catalog().Sources, "x")
}

func TestDeleteDocument(t *testing.T) {
	api := newFakeAPI().
		on("DELETE /documents/doc%201", reply(map[string]string{"message": "deleted"})).
		on("GET /documents", reply(twoDocCatalog)).
		on("GET /status", reply(runningStatus))
	s := New(api)

	require.NoError(t, s.DeleteDocument(ctx, "doc 1"))
	assert.Equal(t, 1, api.count("GET /documents"))
	assert.Equal(t, 1, api.count("GET /status"))
}

func TestDeleteDocument_NotFoundSkipsRefresh(t *testing.T) {
	api := newFakeAPI()
	s := New(api)

	err := s.DeleteDocument(ctx, "missing")
	require.Error(t, err)
	assert.True(t, transport.IsKind(err, transport.KindNotFound))
	assert.Zero(t, api.count("GET /documents"))
	assert.Zero(t, api.count("GET /status"))
}

func TestClearDocuments_Success(t *testing.T) {
	api := newFakeAPI().
		on("POST /query", reply(map[string]any{"answer": "a"})).
		on("DELETE /documents", reply(map[string]string{"message": "cleared"})).
		on("GET /documents", reply(map[string]any{"total_documents": 0, "total_chunks": 0, "embedding_model": "text2vec"})).
		on("GET /status", reply(runningStatus))
	s := New(api)
	_, err := s.SendMessage(ctx, "q", QueryOptions{})
	require.NoError(t, err)

	require.NoError(t, s.ClearDocuments(ctx))

	assert.Empty(t, s.Messages())
	assert.Equal(t, 1, api.count("GET /documents"))
	assert.Equal(t, "text2vec", s.Catalog().EmbeddingModel, "catalog must come from the backend")
	assert.False(t, s.HasDocuments())
}

func TestClearDocuments_DeleteFailurePreservesLog(t *testing.T) {
	api := newFakeAPI().
		on("POST /query", reply(map[string]any{"answer": "a"})).
		on("DELETE /documents", fail(serverError()))
	s := New(api)
	_, err := s.SendMessage(ctx, "q", QueryOptions{})
	require.NoError(t, err)
	before := s.Messages()

	require.Error(t, s.ClearDocuments(ctx))
	assert.Equal(t, before, s.Messages())
	assert.Zero(t, api.count("GET /documents"))
}

func TestClearDocuments_RefreshFailurePreservesLog(t *testing.T) {
	api := newFakeAPI().
		on("POST /query", reply(map[string]any{"answer": "a"})).
		on("DELETE /documents", reply(nil)).
		on("GET /documents", fail(errors.New("boom"))).
		on("GET /status", reply(runningStatus))
	s := New(api)
	_, err := s.SendMessage(ctx, "q", QueryOptions{})
	require.NoError(t, err)

	require.Error(t, s.ClearDocuments(ctx))
	assert.Len(t, s.Messages(), 2)
}

func TestLoadDocumentChunks(t *testing.T) {
	api := newFakeAPI().on("GET /documents/doc-1/chunks", reply(map[string]any{
		"document_id":  "doc-1",
		"total_chunks": 2,
		"chunks": []map[string]any{
			{"content": "first", "chunk_index": 0, "chunk_size": 5},
			{"content": "second", "chunk_index": 1, "chunk_size": 6},
		},
	}))
	s := New(api)
	before := s.Snapshot()

	dc, err := s.LoadDocumentChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, dc.TotalChunks)
	assert.Equal(t, "second", dc.Chunks[1].Content)
	assert.Equal(t, before, s.Snapshot())
}

func TestRefreshWaitsForBoth(t *testing.T) {
	var mu sync.Mutex
	var order []string
	statusStarted := make(chan struct{})
	releaseStatus := make(chan struct{})

	api := newFakeAPI().
		on("GET /documents", func(_ any, out any) error {
			<-statusStarted
			mu.Lock()
			order = append(order, "documents")
			mu.Unlock()
			close(releaseStatus)
			return fill(twoDocCatalog, out)
		}).
		on("GET /status", func(_ any, out any) error {
			close(statusStarted)
			<-releaseStatus
			mu.Lock()
			order = append(order, "status")
			mu.Unlock()
			return fill(runningStatus, out)
		})
	s := New(api)

	require.NoError(t, s.refresh(ctx))
	assert.Equal(t, []string{"documents", "status"}, order)
	assert.Equal(t, 2, s.TotalDocuments())
	assert.True(t, s.IsSystemOnline())
}
