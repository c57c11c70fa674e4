package devserver

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// EmbeddingModel names the retrieval method reported in catalogs.
const EmbeddingModel = "keyword-overlap"

const previewLength = 200

type document struct {
	id        string
	source    string
	fileType  string
	createdAt time.Time
	chunks    []string
}

type hit struct {
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

type chunkView struct {
	Content    string         `json:"content"`
	ChunkIndex int            `json:"chunk_index"`
	ChunkSize  int            `json:"chunk_size"`
	Metadata   map[string]any `json:"metadata"`
}

type documentView struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	FileType   string `json:"file_type"`
	ChunkCount int    `json:"chunk_count"`
	CreatedAt  string `json:"created_at"`
	Content    string `json:"content"`
}

type catalogView struct {
	TotalDocuments int            `json:"total_documents"`
	TotalChunks    int            `json:"total_chunks"`
	Sources        map[string]int `json:"sources"`
	EmbeddingModel string         `json:"embedding_model"`
	Documents      []documentView `json:"documents"`
}

// KnowledgeBase is an in-memory document index searched by keyword overlap.
type KnowledgeBase struct {
	chunkSize int
	overlap   int
	now       func() time.Time

	mu    sync.RWMutex
	docs  map[string]*document
	order []string
}

func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		chunkSize: defaultChunkSize,
		overlap:   defaultChunkOverlap,
		now:       time.Now,
		docs:      make(map[string]*document),
	}
}

// Add chunks text and stores it under a new document ID.
func (kb *KnowledgeBase) Add(source, text string) (id string, chunkCount int) {
	d := &document{
		id:        uuid.New().String(),
		source:    source,
		fileType:  fileExtension(source),
		createdAt: kb.now().UTC(),
		chunks:    splitText(text, kb.chunkSize, kb.overlap),
	}

	kb.mu.Lock()
	kb.docs[d.id] = d
	kb.order = append(kb.order, d.id)
	kb.mu.Unlock()
	return d.id, len(d.chunks)
}

// Delete removes one document and reports whether it existed.
func (kb *KnowledgeBase) Delete(id string) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if _, ok := kb.docs[id]; !ok {
		return false
	}
	delete(kb.docs, id)
	for i, o := range kb.order {
		if o == id {
			kb.order = append(kb.order[:i], kb.order[i+1:]...)
			break
		}
	}
	return true
}

func (kb *KnowledgeBase) Clear() {
	kb.mu.Lock()
	kb.docs = make(map[string]*document)
	kb.order = nil
	kb.mu.Unlock()
}

// Counts returns the number of documents and chunks.
func (kb *KnowledgeBase) Counts() (docs, chunks int) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	for _, d := range kb.docs {
		chunks += len(d.chunks)
	}
	return len(kb.docs), chunks
}

func (kb *KnowledgeBase) catalog() catalogView {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	c := catalogView{
		Sources:        make(map[string]int),
		EmbeddingModel: EmbeddingModel,
		Documents:      []documentView{},
	}
	for _, id := range kb.order {
		d := kb.docs[id]
		c.TotalDocuments++
		c.TotalChunks += len(d.chunks)
		c.Sources[d.source] += len(d.chunks)
		c.Documents = append(c.Documents, documentView{
			ID:         d.id,
			Source:     d.source,
			FileType:   d.fileType,
			ChunkCount: len(d.chunks),
			CreatedAt:  d.createdAt.Format(time.RFC3339),
			Content:    preview(d.chunks[0]),
		})
	}
	return c
}

// chunks lists a document's chunks in index order. Unknown IDs yield an
// empty list.
func (kb *KnowledgeBase) chunks(id string) []chunkView {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := []chunkView{}
	d, ok := kb.docs[id]
	if !ok {
		return out
	}
	for i, c := range d.chunks {
		out = append(out, chunkView{
			Content:    c,
			ChunkIndex: i,
			ChunkSize:  len([]rune(c)),
			Metadata:   chunkMetadata(d, i),
		})
	}
	return out
}

// Search scores every chunk by the share of query terms it contains and
// returns the best topK with a non-zero score.
func (kb *KnowledgeBase) Search(question string, topK int) []hit {
	terms := tokenize(question)
	if len(terms) == 0 {
		return nil
	}

	kb.mu.RLock()
	var hits []hit
	for _, id := range kb.order {
		d := kb.docs[id]
		for i, c := range d.chunks {
			lower := strings.ToLower(c)
			matched := 0
			for _, t := range terms {
				if strings.Contains(lower, t) {
					matched++
				}
			}
			if matched == 0 {
				continue
			}
			hits = append(hits, hit{
				Content:  c,
				Source:   d.source,
				Score:    float64(matched) / float64(len(terms)),
				Metadata: chunkMetadata(d, i),
			})
		}
	}
	kb.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func chunkMetadata(d *document, i int) map[string]any {
	return map[string]any{
		"source":      d.source,
		"document_id": d.id,
		"chunk_index": i,
		"chunk_count": len(d.chunks),
		"chunk_size":  len([]rune(d.chunks[i])),
	}
}

// tokenize lowercases s and returns its distinct words.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			terms = append(terms, f)
		}
	}
	return terms
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLength {
		return s
	}
	return string(r[:previewLength]) + "..."
}
