package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrInvalidQuery is returned when a request fails local validation before
// it is sent.
var ErrInvalidQuery = errors.New("invalid query")

// SendMessage appends the question to the log, asks the backend and appends
// the answer. On failure an error entry is appended and the original error
// is returned, so the log always grows by exactly two entries.
func (s *Store) SendMessage(ctx context.Context, question string, opts QueryOptions) (*QueryResponse, error) {
	done := s.busy()
	defer done()

	s.AddMessage(ctx, Message{Type: MessageUser, Content: question})

	resp, err := s.query(ctx, question, opts)
	if err != nil {
		s.logger.Error("sending message failed", zap.Error(err))
		s.AddMessage(ctx, Message{Type: MessageError, Content: ErrorReply})
		return nil, err
	}

	confidence, responseTime := resp.Confidence, resp.ResponseTime
	s.AddMessage(ctx, Message{
		Type:         MessageAssistant,
		Content:      resp.Answer,
		Sources:      resp.RetrievedChunks,
		Confidence:   &confidence,
		ResponseTime: &responseTime,
	})
	return resp, nil
}

func (s *Store) query(ctx context.Context, question string, opts QueryOptions) (*QueryResponse, error) {
	req := queryRequest{
		Question:  question,
		TopK:      topK(opts.TopK),
		UseRerank: opts.UseRerank,
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	var resp QueryResponse
	if err := s.api.Post(ctx, "/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchQuery asks several questions in one exchange. The log is untouched.
func (s *Store) BatchQuery(ctx context.Context, questions []string, opts BatchOptions) (*BatchQueryResponse, error) {
	done := s.busy()
	defer done()

	req := batchQueryRequest{Questions: questions, TopK: topK(opts.TopK)}
	if err := s.validate.Struct(req); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		s.logger.Error("batch query failed", zap.Error(err))
		return nil, err
	}

	var resp BatchQueryResponse
	if err := s.api.Post(ctx, "/batch_query", req, &resp); err != nil {
		s.logger.Error("batch query failed", zap.Error(err))
		return nil, err
	}
	return &resp, nil
}

func topK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	return k
}
