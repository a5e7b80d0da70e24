package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/store"
)

// Embedder вычисляет векторное представление текста.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore — интерфейс хранилища векторов.
type VectorStore interface {
	Upsert(ctx context.Context, entry *store.VectorEntry) error
}

// VectorIndexProcessor индексирует результат анализа для семантического
// поиска: строит текстовое представление записи, получает embedding
// и сохраняет ровно одну строку на analysis_id (upsert).
//
// Повторная обработка перезаписывает строку теми же данными —
// идемпотентно.
type VectorIndexProcessor struct {
	embedder Embedder
	vectors  VectorStore
}

// NewVectorIndexProcessor создаёт процессор vector-index.
func NewVectorIndexProcessor(embedder Embedder, vectors VectorStore) *VectorIndexProcessor {
	return &VectorIndexProcessor{
		embedder: embedder,
		vectors:  vectors,
	}
}

// Type возвращает "vector-index".
func (p *VectorIndexProcessor) Type() string { return TypeVectorIndex }

// Process индексирует одну запись анализа.
func (p *VectorIndexProcessor) Process(ctx context.Context, rec *domain.AnalysisRecord, _ *domain.ProcessingTask) error {
	content := buildIndexContent(rec)

	embedding, err := p.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	entry := &store.VectorEntry{
		AnalysisID: rec.ID,
		Content:    content,
		Embedding:  embedding,
		IndexedAt:  time.Now().UTC(),
	}
	if err := p.vectors.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("upsert vector entry: %w", err)
	}
	return nil
}

// buildIndexContent строит текстовое представление записи для индексации.
//
// Детерминированный формат: одинаковая запись даёт одинаковый контент
// (и одинаковый вектор при локальном embedder).
func buildIndexContent(rec *domain.AnalysisRecord) string {
	var sb strings.Builder
	sb.WriteString(rec.TaskName)
	sb.WriteString(" ")
	sb.WriteString(rec.ServiceName)
	sb.WriteString(" ")
	sb.WriteString(rec.Operation)

	if rec.Error != "" {
		sb.WriteString(" error: ")
		sb.WriteString(rec.Error)
	}
	if len(rec.Output) > 0 {
		if data, err := json.Marshal(rec.Output); err == nil {
			sb.WriteString(" ")
			sb.Write(data)
		}
	}
	return sb.String()
}

// HTTPEmbedder получает embeddings от внешнего HTTP-сервиса.
//
// Контракт: POST {url} {"input": "<text>"} → {"embedding": [..]}.
type HTTPEmbedder struct {
	url    string
	client *http.Client
}

// NewHTTPEmbedder создаёт embedder с указанным URL сервиса.
func NewHTTPEmbedder(url string) *HTTPEmbedder {
	return &HTTPEmbedder{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Embed запрашивает embedding у внешнего сервиса.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]string{"input": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings service HTTP %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embeddings service returned empty vector")
	}
	return parsed.Embedding, nil
}

// localEmbedderDims — размерность локального embedding.
const localEmbedderDims = 64

// LocalEmbedder — детерминированный hash-based embedder.
//
// Используется, когда внешний embeddings-сервис не настроен:
// не даёт семантической близости, но сохраняет контракт индексации
// (стабильный вектор фиксированной размерности на одинаковый текст).
type LocalEmbedder struct{}

// Embed строит вектор из частот токенов по FNV-хэшу, L2-нормализованный.
func (LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, localEmbedderDims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%localEmbedderDims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
