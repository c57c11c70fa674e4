package session

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LoadSystemStatus replaces the status snapshot. On failure only the status
// field is forced to "error"; counts and model info keep their last values.
func (s *Store) LoadSystemStatus(ctx context.Context) (SystemStatus, error) {
	var st SystemStatus
	if err := s.api.Get(ctx, "/status", &st); err != nil {
		s.logger.Error("loading system status failed", zap.Error(err))
		s.mu.Lock()
		s.status.Status = StatusError
		s.mu.Unlock()
		s.changed()
		return SystemStatus{}, err
	}
	if st.ModelStatus == nil {
		st.ModelStatus = map[string]any{}
	}

	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	s.changed()
	return cloneStatus(st), nil
}

// CheckHealth fetches /health. No state changes.
func (s *Store) CheckHealth(ctx context.Context) (*Health, error) {
	var h Health
	if err := s.api.Get(ctx, "/health", &h); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		return nil, err
	}
	return &h, nil
}

// TestServices asks the backend to probe its embedding and LLM services.
// No state changes.
func (s *Store) TestServices(ctx context.Context) (*ServiceCheck, error) {
	var sc ServiceCheck
	if err := s.api.Post(ctx, "/test_services", nil, &sc); err != nil {
		s.logger.Error("service test failed", zap.Error(err))
		return nil, err
	}
	return &sc, nil
}

// Initialize loads status and catalog concurrently. It runs before anything
// can react to an error, so failures are logged and dropped.
func (s *Store) Initialize(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		_, err := s.LoadSystemStatus(ctx)
		return err
	})
	g.Go(func() error {
		_, err := s.LoadDocuments(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("initialization failed", zap.Error(err))
	}
}
