package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/ragdesk/internal/session"
)

// Store satisfies session.Recorder.
var _ session.Recorder = (*Store)(nil)

// Record appends m to the transcript of conversation id, creating the
// conversation on first use.
func (s *Store) Record(ctx context.Context, id string, m session.Message) error {
	sources := m.Sources
	if sources == nil {
		sources = []session.RetrievedChunk{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("encoding sources: %w", err)
	}
	ts := m.Timestamp.UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning record transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, started_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		id, ts, ts,
	); err != nil {
		return fmt.Errorf("upserting conversation %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, message_id, created_at, type, content, sources_json, confidence, response_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, m.ID, ts, string(m.Type), m.Content, string(sourcesJSON),
		nullFloat(m.Confidence), nullFloat(m.ResponseTime),
	); err != nil {
		return fmt.Errorf("inserting message %d: %w", m.ID, err)
	}

	return tx.Commit()
}

// Clear drops conversation id. Its messages go with it through the
// ON DELETE CASCADE on messages. Clearing an unknown conversation is not an
// error.
func (s *Store) Clear(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("clearing conversation %s: %w", id, err)
	}
	return nil
}

// ListConversations returns the most recently active conversations first.
func (s *Store) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.started_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		ORDER BY c.updated_at DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Conversation
	for rows.Next() {
		var c Conversation
		var startedAt, updatedAt string
		if err := rows.Scan(&c.ID, &startedAt, &updatedAt, &c.MessageCount); err != nil {
			return nil, err
		}
		if c.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if c.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// ListMessages returns the transcript of conversation id in log order.
func (s *Store) ListMessages(ctx context.Context, id string) ([]session.Message, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, created_at, type, content, sources_json, confidence, response_time
		FROM messages WHERE conversation_id = ?
		ORDER BY message_id ASC`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []session.Message{}
	for rows.Next() {
		var m session.Message
		var createdAt, typ, sourcesJSON string
		var confidence, responseTime sql.NullFloat64
		if err := rows.Scan(&m.ID, &createdAt, &typ, &m.Content, &sourcesJSON, &confidence, &responseTime); err != nil {
			return nil, err
		}
		if m.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		m.Type = session.MessageType(typ)
		if err := json.Unmarshal([]byte(sourcesJSON), &m.Sources); err != nil {
			return nil, fmt.Errorf("decoding sources of message %d: %w", m.ID, err)
		}
		if len(m.Sources) == 0 {
			m.Sources = nil
		}
		if confidence.Valid {
			m.Confidence = &confidence.Float64
		}
		if responseTime.Valid {
			m.ResponseTime = &responseTime.Float64
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
