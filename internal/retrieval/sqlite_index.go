package retrieval

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kalambet/claimcheck/internal/apperr"
	"github.com/kalambet/claimcheck/internal/llm"
)

var _ Index = (*SQLiteIndex)(nil)

const defaultIndexTimeout = 10 * time.Second

// Record is a row of the policy_passages table.
type Record struct {
	ID           string
	Namespace    string
	DocumentID   string
	SectionLabel string
	Text         string
	Embedding    []float32
	CreatedAt    time.Time
}

// SQLiteIndex stores passage embeddings in SQLite and answers queries with
// a brute-force cosine scan. The policy_passages table is created by the
// storage migrations.
type SQLiteIndex struct {
	db       *sql.DB
	embedder llm.Embedder
	timeout  time.Duration
}

func NewSQLiteIndex(db *sql.DB, embedder llm.Embedder, timeout time.Duration) *SQLiteIndex {
	if timeout <= 0 {
		timeout = defaultIndexTimeout
	}
	return &SQLiteIndex{db: db, embedder: embedder, timeout: timeout}
}

// Insert adds records in a single transaction.
func (s *SQLiteIndex) Insert(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO policy_passages (id, namespace, document_id, section_label, text_chunk, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Namespace, r.DocumentID, r.SectionLabel, r.Text,
			encodeFloat32s(r.Embedding), createdAt.Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// Search embeds query and returns the topK most similar passages of
// namespace. Embedder failures and index failures are both reported as
// UpstreamServiceError.
func (s *SQLiteIndex) Search(ctx context.Context, query string, topK int, namespace string) ([]PolicyPassage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("empty search query")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, apperr.Upstream(apperr.ServiceEmbedder, "embed", err)
	}

	passages, err := s.SearchVector(ctx, namespace, vec, topK)
	if err != nil {
		return nil, apperr.Upstream(apperr.ServiceIndex, "search", err)
	}
	return passages, nil
}

type idScore struct {
	ID    string
	Score float32
}

// SearchVector scans the embeddings of namespace and returns the topK
// passages by cosine similarity, highest first.
func (s *SQLiteIndex) SearchVector(ctx context.Context, namespace string, vector []float32, topK int) ([]PolicyPassage, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	// Phase 1: scan id + embedding only.
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM policy_passages WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	heap.Init(h)
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := dotProduct(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: fetch text for the winners only.
	ids := make([]string, h.Len())
	scores := make(map[string]float32, h.Len())
	for i := len(ids) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		ids[i] = item.ID
		scores[item.ID] = item.Score
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	fullRows, err := s.db.QueryContext(ctx, `SELECT id, section_label, text_chunk FROM policy_passages
		WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K passages: %w", err)
	}
	defer fullRows.Close()

	byID := make(map[string]PolicyPassage, len(ids))
	for fullRows.Next() {
		var p PolicyPassage
		if err := fullRows.Scan(&p.ID, &p.SectionLabel, &p.Text); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		p.Score = scores[p.ID]
		byID[p.ID] = p
	}
	if err := fullRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating passages: %w", err)
	}

	// ids is already ordered by descending score.
	out := make([]PolicyPassage, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Count returns the number of passages in namespace.
func (s *SQLiteIndex) Count(ctx context.Context, namespace string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM policy_passages WHERE namespace = ?", namespace).Scan(&n)
	return n, err
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32sInto decodes little-endian bytes into buf, reusing it
// across rows of a scan.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// dotProduct computes cosine similarity given the precomputed norm of a.
func dotProduct(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// idScoreHeap is a min-heap of idScore ordered by Score.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int           { return len(h) }
func (h idScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x any)        { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
