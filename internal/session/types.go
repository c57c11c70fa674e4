package session

import "time"

// MessageType is the role of a conversation entry.
type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageAssistant MessageType = "assistant"
	MessageError     MessageType = "error"
)

// ErrorReply is the content of the entry appended when a query fails.
const ErrorReply = "Sorry, something went wrong. Please try again later."

// Message is one immutable turn in the conversation.
type Message struct {
	ID           uint64           `json:"id"`
	Timestamp    time.Time        `json:"timestamp"`
	Type         MessageType      `json:"type"`
	Content      string           `json:"content"`
	Sources      []RetrievedChunk `json:"sources,omitempty"`
	Confidence   *float64         `json:"confidence,omitempty"`
	ResponseTime *float64         `json:"response_time,omitempty"`
}

// RetrievedChunk is a piece of evidence returned with an answer.
type RetrievedChunk struct {
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueryOptions tunes a single question. Zero TopK means DefaultTopK.
type QueryOptions struct {
	TopK      int
	UseRerank bool
}

// BatchOptions tunes a batch query. Zero TopK means DefaultTopK.
type BatchOptions struct {
	TopK int
}

const DefaultTopK = 5

type queryRequest struct {
	Question  string `json:"question" validate:"required,min=1,max=500"`
	TopK      int    `json:"top_k" validate:"min=1,max=20"`
	UseRerank bool   `json:"use_rerank"`
}

type batchQueryRequest struct {
	Questions []string `json:"questions" validate:"min=1,max=10"`
	TopK      int      `json:"top_k"`
}

// QueryResponse is the backend's answer to one question.
type QueryResponse struct {
	Question        string           `json:"question"`
	Answer          string           `json:"answer"`
	RetrievedChunks []RetrievedChunk `json:"retrieved_chunks"`
	Confidence      float64          `json:"confidence"`
	ResponseTime    float64          `json:"response_time"`
}

// BatchQueryResponse is the backend's answer to a batch of questions.
type BatchQueryResponse struct {
	Results   []QueryResponse `json:"results"`
	TotalTime float64         `json:"total_time"`
}

// UploadResult describes an ingested file.
type UploadResult struct {
	Filename       string  `json:"filename"`
	FileSize       int64   `json:"file_size"`
	DocumentID     string  `json:"document_id"`
	ChunkCount     int     `json:"chunk_count"`
	ProcessingTime float64 `json:"processing_time"`
}

// Status values the store itself assigns. The backend may report others.
const (
	StatusUnknown = "unknown"
	StatusRunning = "running"
	StatusError   = "error"
)

// SystemStatus is the latest known backend health snapshot.
type SystemStatus struct {
	Status        string         `json:"status"`
	DocumentCount int            `json:"document_count"`
	ChunkCount    int            `json:"chunk_count"`
	ModelStatus   map[string]any `json:"model_status"`
	MemoryUsage   float64        `json:"memory_usage"`
}

// DocumentInfo describes one ingested document.
type DocumentInfo struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	FileType   string `json:"file_type"`
	ChunkCount int    `json:"chunk_count"`
	CreatedAt  string `json:"created_at"`
	Content    string `json:"content"`
}

// Chunk is one stored piece of a document.
type Chunk struct {
	Content    string         `json:"content"`
	ChunkIndex int            `json:"chunk_index"`
	ChunkSize  int            `json:"chunk_size"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// DocumentCatalog is the latest known snapshot of ingested documents.
type DocumentCatalog struct {
	Documents      []DocumentInfo `json:"documents"`
	Sources        map[string]any `json:"sources"`
	TotalDocuments int            `json:"total_documents"`
	TotalChunks    int            `json:"total_chunks"`
	Chunks         []Chunk        `json:"chunks"`
	EmbeddingModel string         `json:"embedding_model,omitempty"`
}

// DocumentChunks is the chunk listing for a single document.
type DocumentChunks struct {
	DocumentID  string  `json:"document_id"`
	TotalChunks int     `json:"total_chunks"`
	Chunks      []Chunk `json:"chunks"`
}

// Health is the /health payload.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// ServiceCheck is the /test_services payload.
type ServiceCheck struct {
	EmbeddingService bool `json:"embedding_service"`
	LLMService       bool `json:"llm_service"`
	OverallStatus    bool `json:"overall_status"`
}

func initialStatus() SystemStatus {
	return SystemStatus{Status: StatusUnknown, ModelStatus: map[string]any{}}
}

func emptyCatalog() DocumentCatalog {
	return DocumentCatalog{
		Documents: []DocumentInfo{},
		Sources:   map[string]any{},
		Chunks:    []Chunk{},
	}
}
