// Package session owns the client-visible state of a RAG conversation and
// coordinates the backend exchanges that change it.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kalambet/ragdesk/internal/transport"
)

// API is the subset of transport.Client the store needs.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
	Upload(ctx context.Context, path string, f transport.File, obs transport.ProgressObserver, out any) error
}

// Recorder persists conversation entries outside the process. Failures are
// logged and never affect the in-memory log.
type Recorder interface {
	Record(ctx context.Context, conversationID string, m Message) error
	Clear(ctx context.Context, conversationID string) error
}

// Snapshot is a point-in-time copy of the store's state.
type Snapshot struct {
	Messages []Message
	Loading  bool
	Status   SystemStatus
	Catalog  DocumentCatalog
}

// Store is the conversation state container. It is safe for concurrent use;
// accessors return copies.
type Store struct {
	api            API
	logger         *zap.Logger
	now            func() time.Time
	recorder       Recorder
	onChange       func()
	validate       *validator.Validate
	conversationID string

	mu       sync.RWMutex
	messages []Message
	nextID   uint64
	clears   uint64 // bumped by every ClearMessages
	loading  int
	status   SystemStatus
	catalog  DocumentCatalog

	// recMu orders recorder calls so the archive never keeps an entry the
	// log has already cleared.
	recMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithRecorder(r Recorder) Option { return func(s *Store) { s.recorder = r } }

// WithConversationID fixes the ID under which messages are recorded. By
// default a random one is generated.
func WithConversationID(id string) Option { return func(s *Store) { s.conversationID = id } }

// WithChangeListener registers fn to run after every state change. It is
// called without the store lock held.
func WithChangeListener(fn func()) Option { return func(s *Store) { s.onChange = fn } }

// New creates a Store talking to api.
func New(api API, opts ...Option) *Store {
	s := &Store{
		api:      api,
		logger:   zap.NewNop(),
		now:      time.Now,
		validate: validator.New(),
		messages: []Message{},
		status:   initialStatus(),
		catalog:  emptyCatalog(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.conversationID == "" {
		s.conversationID = uuid.New().String()
	}
	return s
}

// ConversationID identifies this conversation in the recorder.
func (s *Store) ConversationID() string { return s.conversationID }

// Messages returns a copy of the conversation log.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// Loading reports whether a flagged operation is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// Status returns the latest system status snapshot.
func (s *Store) Status() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStatus(s.status)
}

// Catalog returns the latest document catalog snapshot.
func (s *Store) Catalog() DocumentCatalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneCatalog(s.catalog)
}

// Snapshot returns all state under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Messages: append([]Message(nil), s.messages...),
		Loading:  s.loading > 0,
		Status:   cloneStatus(s.status),
		Catalog:  cloneCatalog(s.catalog),
	}
}

func (s *Store) IsSystemOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Status == StatusRunning
}

func (s *Store) HasDocuments() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.TotalDocuments > 0
}

func (s *Store) TotalDocuments() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.TotalDocuments
}

// AddMessage appends m to the log, assigning its ID and timestamp, and
// returns the stored entry.
func (s *Store) AddMessage(ctx context.Context, m Message) Message {
	s.mu.Lock()
	s.nextID++
	m.ID = s.nextID
	m.Timestamp = s.now()
	s.messages = append(s.messages, m)
	gen := s.clears
	s.mu.Unlock()

	s.changed()
	if s.recorder != nil {
		s.record(ctx, m, gen)
	}
	return m
}

// record archives m unless the log was cleared after m was appended.
func (s *Store) record(ctx context.Context, m Message, gen uint64) {
	s.recMu.Lock()
	defer s.recMu.Unlock()

	s.mu.RLock()
	stale := s.clears != gen
	s.mu.RUnlock()
	if stale {
		return
	}
	if err := s.recorder.Record(ctx, s.conversationID, m); err != nil {
		s.logger.Warn("recording message failed", zap.Uint64("message_id", m.ID), zap.Error(err))
	}
}

// ClearMessages empties the log atomically.
func (s *Store) ClearMessages(ctx context.Context) {
	s.mu.Lock()
	s.messages = []Message{}
	s.clears++
	s.mu.Unlock()

	s.changed()
	if s.recorder != nil {
		s.recMu.Lock()
		defer s.recMu.Unlock()
		if err := s.recorder.Clear(ctx, s.conversationID); err != nil {
			s.logger.Warn("clearing recorded messages failed", zap.Error(err))
		}
	}
}

// busy marks a flagged operation as started. The returned func must be
// deferred; the flag drops when the last outstanding operation settles.
func (s *Store) busy() func() {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()
	s.changed()

	return func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
		s.changed()
	}
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func cloneStatus(st SystemStatus) SystemStatus {
	models := make(map[string]any, len(st.ModelStatus))
	for k, v := range st.ModelStatus {
		models[k] = v
	}
	st.ModelStatus = models
	return st
}

func cloneCatalog(c DocumentCatalog) DocumentCatalog {
	sources := make(map[string]any, len(c.Sources))
	for k, v := range c.Sources {
		sources[k] = v
	}
	c.Sources = sources
	c.Documents = append([]DocumentInfo{}, c.Documents...)
	c.Chunks = append([]Chunk{}, c.Chunks...)
	return c
}
