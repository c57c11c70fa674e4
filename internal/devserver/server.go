// Package devserver is an in-memory implementation of the RAG backend's
// REST contract, used for local development and end-to-end tests.
package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	// APIPrefix is where the contract is mounted.
	APIPrefix = "/api/v1"

	ServiceName    = "RAG Knowledge System"
	ServiceVersion = "1.0.0"

	maxRequestBodySize = 1 << 20 // 1MB
	multipartOverhead  = 1 << 20
	defaultTopK        = 5
)

type Deps struct {
	KB          *KnowledgeBase
	Logger      *zap.Logger
	MaxFileSize int64 // defaults to DefaultMaxFileSize
}

type queryRequest struct {
	Question  string `json:"question" validate:"required,min=1,max=500"`
	TopK      int    `json:"top_k" validate:"min=1,max=20"`
	UseRerank bool   `json:"use_rerank"`
}

type batchQueryRequest struct {
	Questions []string `json:"questions" validate:"min=1,max=10"`
	TopK      int      `json:"top_k" validate:"min=1"`
}

type queryResponse struct {
	Question        string  `json:"question"`
	Answer          string  `json:"answer"`
	RetrievedChunks []hit   `json:"retrieved_chunks"`
	Confidence      float64 `json:"confidence"`
	ResponseTime    float64 `json:"response_time"`
}

type uploadResponse struct {
	Filename       string  `json:"filename"`
	FileSize       int64   `json:"file_size"`
	DocumentID     string  `json:"document_id"`
	ChunkCount     int     `json:"chunk_count"`
	ProcessingTime float64 `json:"processing_time"`
}

// NewHandler returns the backend's routes mounted under APIPrefix.
func NewHandler(deps Deps) http.Handler {
	if deps.KB == nil {
		deps.KB = NewKnowledgeBase()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MaxFileSize <= 0 {
		deps.MaxFileSize = DefaultMaxFileSize
	}
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(processTime(deps.Logger))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"message": ServiceName + " API", "version": ServiceVersion})
	})

	r.Route(APIPrefix, func(r chi.Router) {
		r.Post("/upload", handleUpload(deps))
		r.Post("/query", handleQuery(deps, validate))
		r.Post("/batch_query", handleBatchQuery(deps, validate))
		r.Get("/status", handleStatus(deps))
		r.Get("/health", handleHealth)
		r.Get("/documents", handleListDocuments(deps))
		r.Delete("/documents", handleClearDocuments(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))
		r.Get("/documents/{id}/chunks", handleDocumentChunks(deps))
		r.Post("/test_services", handleTestServices)
	})

	return r
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxFileSize+multipartOverhead)
		defer r.Body.Close()

		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpError(w, http.StatusRequestEntityTooLarge, "file size exceeds the limit of %d bytes", deps.MaxFileSize)
				return
			}
			httpError(w, http.StatusBadRequest, "a multipart field named \"file\" is required: %v", err)
			return
		}
		defer file.Close()

		if header.Filename == "" {
			httpError(w, http.StatusBadRequest, "file name must not be empty")
			return
		}
		if err := validateExtension(header.Filename); err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}

		data, err := io.ReadAll(io.LimitReader(file, deps.MaxFileSize+1))
		if err != nil {
			httpError(w, http.StatusBadRequest, "reading upload: %v", err)
			return
		}
		if int64(len(data)) > deps.MaxFileSize {
			httpError(w, http.StatusRequestEntityTooLarge, "file size exceeds the limit of %d bytes", deps.MaxFileSize)
			return
		}

		text, err := extractText(header.Filename, data)
		if err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}

		id, n := deps.KB.Add(header.Filename, text)
		deps.Logger.Info("document added",
			zap.String("document_id", id),
			zap.String("source", header.Filename),
			zap.Int("chunks", n),
		)
		writeJSON(w, uploadResponse{
			Filename:       header.Filename,
			FileSize:       int64(len(data)),
			DocumentID:     id,
			ChunkCount:     n,
			ProcessingTime: time.Since(start).Seconds(),
		})
	}
}

func handleQuery(deps Deps, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.TopK == 0 {
			req.TopK = defaultTopK
		}
		if err := validate.Struct(req); err != nil {
			httpError(w, http.StatusUnprocessableEntity, "%v", err)
			return
		}
		writeJSON(w, answer(deps.KB, req.Question, req.TopK))
	}
}

func handleBatchQuery(deps Deps, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var req batchQueryRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.TopK == 0 {
			req.TopK = defaultTopK
		}
		if err := validate.Struct(req); err != nil {
			httpError(w, http.StatusUnprocessableEntity, "%v", err)
			return
		}

		results := make([]queryResponse, 0, len(req.Questions))
		for _, q := range req.Questions {
			results = append(results, answer(deps.KB, q, req.TopK))
		}
		writeJSON(w, map[string]any{
			"results":    results,
			"total_time": time.Since(start).Seconds(),
		})
	}
}

func answer(kb *KnowledgeBase, question string, topK int) queryResponse {
	start := time.Now()
	hits := kb.Search(question, topK)
	if hits == nil {
		hits = []hit{}
	}
	text := composeAnswer(hits)
	return queryResponse{
		Question:        question,
		Answer:          text,
		RetrievedChunks: hits,
		Confidence:      confidence(hits, text),
		ResponseTime:    time.Since(start).Seconds(),
	}
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, chunks := deps.KB.Counts()
		writeJSON(w, map[string]any{
			"status":         "running",
			"document_count": docs,
			"chunk_count":    chunks,
			"model_status": map[string]string{
				"embedding_model": "loaded",
				"llm_model":       "fallback",
				"reranker_model":  "disabled",
			},
			"memory_usage": 0.0,
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "healthy",
		"service": ServiceName,
		"version": ServiceVersion,
	})
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.KB.catalog())
	}
}

func handleClearDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.KB.Clear()
		deps.Logger.Info("knowledge base cleared")
		writeJSON(w, map[string]string{"message": "knowledge base cleared"})
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !deps.KB.Delete(id) {
			httpError(w, http.StatusNotFound, "document does not exist")
			return
		}
		deps.Logger.Info("document deleted", zap.String("document_id", id))
		writeJSON(w, map[string]string{"message": fmt.Sprintf("document %s deleted", id)})
	}
}

func handleDocumentChunks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		chunks := deps.KB.chunks(id)
		writeJSON(w, map[string]any{
			"document_id":  id,
			"total_chunks": len(chunks),
			"chunks":       chunks,
		})
	}
}

// handleTestServices reports both services up; nothing external is probed.
func handleTestServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{
		"embedding_service": true,
		"llm_service":       true,
		"overall_status":    true,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusUnprocessableEntity, "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"detail": fmt.Sprintf(format, args...),
	})
}

// processTime stamps each response with X-Process-Time (seconds) and logs
// the request once it completes.
func processTime(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &timedWriter{ResponseWriter: w, start: time.Now()}
			next.ServeHTTP(tw, r)
			if !tw.wroteHeader {
				tw.WriteHeader(http.StatusOK)
			}
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", tw.status),
				zap.Duration("duration", time.Since(tw.start)),
			)
		})
	}
}

type timedWriter struct {
	http.ResponseWriter
	start       time.Time
	status      int
	wroteHeader bool
}

func (tw *timedWriter) WriteHeader(code int) {
	if tw.wroteHeader {
		return
	}
	tw.wroteHeader = true
	tw.status = code
	tw.Header().Set("X-Process-Time", strconv.FormatFloat(time.Since(tw.start).Seconds(), 'f', 6, 64))
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timedWriter) Write(b []byte) (int, error) {
	if !tw.wroteHeader {
		tw.WriteHeader(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}
