package session

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/ragdesk/internal/transport"
)

// UploadDocument sends f to the backend and, once it is accepted, refreshes
// the catalog and status before returning. A failed upload leaves both
// snapshots as they were. A nil obs discards progress.
func (s *Store) UploadDocument(ctx context.Context, f transport.File, obs transport.ProgressObserver) (*UploadResult, error) {
	if obs == nil {
		obs = transport.NoProgress
	}
	var res UploadResult
	if err := s.api.Upload(ctx, "/upload", f, obs, &res); err != nil {
		s.logger.Error("document upload failed", zap.String("file", f.Name), zap.Error(err))
		return nil, err
	}
	if err := s.refresh(ctx); err != nil {
		s.logger.Error("document upload failed", zap.String("file", f.Name), zap.Error(err))
		return nil, err
	}
	return &res, nil
}

// LoadDocuments replaces the catalog with the backend's. On failure the
// previous catalog is kept.
func (s *Store) LoadDocuments(ctx context.Context) (DocumentCatalog, error) {
	var c DocumentCatalog
	if err := s.api.Get(ctx, "/documents", &c); err != nil {
		s.logger.Error("loading documents failed", zap.Error(err))
		return DocumentCatalog{}, err
	}
	normalizeCatalog(&c)

	s.mu.Lock()
	s.catalog = c
	s.mu.Unlock()
	s.changed()
	return cloneCatalog(c), nil
}

// DeleteDocument removes one document and refreshes catalog and status.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	if err := s.api.Delete(ctx, "/documents/"+url.PathEscape(id), nil); err != nil {
		s.logger.Error("deleting document failed", zap.String("document_id", id), zap.Error(err))
		return err
	}
	if err := s.refresh(ctx); err != nil {
		s.logger.Error("deleting document failed", zap.String("document_id", id), zap.Error(err))
		return err
	}
	return nil
}

// ClearDocuments empties the knowledge base, refreshes catalog and status
// and then clears the conversation. Any failure leaves the log untouched.
func (s *Store) ClearDocuments(ctx context.Context) error {
	if err := s.api.Delete(ctx, "/documents", nil); err != nil {
		s.logger.Error("clearing documents failed", zap.Error(err))
		return err
	}
	if err := s.refresh(ctx); err != nil {
		s.logger.Error("clearing documents failed", zap.Error(err))
		return err
	}
	s.ClearMessages(ctx)
	return nil
}

// LoadDocumentChunks lists the chunks of one document. No state changes.
func (s *Store) LoadDocumentChunks(ctx context.Context, documentID string) (*DocumentChunks, error) {
	var dc DocumentChunks
	if err := s.api.Get(ctx, "/documents/"+url.PathEscape(documentID)+"/chunks", &dc); err != nil {
		s.logger.Error("loading document chunks failed", zap.String("document_id", documentID), zap.Error(err))
		return nil, err
	}
	return &dc, nil
}

// refresh reloads catalog and status concurrently and waits for both. The
// first error wins.
func (s *Store) refresh(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		_, err := s.LoadDocuments(ctx)
		return err
	})
	g.Go(func() error {
		_, err := s.LoadSystemStatus(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refreshing catalog and status: %w", err)
	}
	return nil
}

func normalizeCatalog(c *DocumentCatalog) {
	if c.Documents == nil {
		c.Documents = []DocumentInfo{}
	}
	if c.Sources == nil {
		c.Sources = map[string]any{}
	}
	if c.Chunks == nil {
		c.Chunks = []Chunk{}
	}
}
