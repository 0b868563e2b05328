// Package ingest loads policy documents into the passage index.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/kalambet/claimcheck/internal/retrieval"
	"github.com/kalambet/claimcheck/internal/storage"
)

// DocumentStore tracks which files have been indexed.
type DocumentStore interface {
	GetDocument(namespace, path string) (storage.PolicyDocument, error)
	SaveDocument(doc storage.PolicyDocument) error
	DeleteDocument(id string) error
}

type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type PassageInserter interface {
	Insert(ctx context.Context, records []retrieval.Record) error
}

// Result describes what happened to one file.
type Result struct {
	Path    string
	Chunks  int
	Skipped bool
}

// Indexer chunks, labels and embeds policy files into one namespace.
type Indexer struct {
	store     DocumentStore
	embedder  BatchEmbedder
	passages  PassageInserter
	namespace string

	ChunkRunes   int
	OverlapRunes int

	logger *slog.Logger
}

func NewIndexer(store DocumentStore, embedder BatchEmbedder, passages PassageInserter, namespace string) *Indexer {
	return &Indexer{
		store:        store,
		embedder:     embedder,
		passages:     passages,
		namespace:    namespace,
		ChunkRunes:   DefaultChunkRunes,
		OverlapRunes: DefaultOverlapRunes,
		logger:       slog.Default(),
	}
}

var supported = map[string]bool{".pdf": true, ".txt": true, ".md": true}

// IndexPath indexes a file, or every supported file below a directory.
func (ix *Indexer) IndexPath(ctx context.Context, root string) ([]Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		res, err := ix.IndexFile(ctx, root)
		if err != nil {
			return nil, err
		}
		return []Result{res}, nil
	}

	var results []Result
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !supported[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		res, err := ix.IndexFile(ctx, path)
		if err != nil {
			return err
		}
		results = append(results, res)
		return nil
	})
	return results, err
}

// IndexFile indexes a single file. A file whose content is unchanged since
// the last run is skipped; a changed file replaces its previous passages.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{}, err
	}
	text, err := extractText(abs)
	if err != nil {
		return Result{}, fmt.Errorf("reading %s: %w", path, err)
	}

	sum := sha256.Sum256([]byte(text))
	hash := hex.EncodeToString(sum[:])

	prev, err := ix.store.GetDocument(ix.namespace, abs)
	switch {
	case err == nil && prev.ContentHash == hash:
		ix.logger.Debug("policy file unchanged", "path", abs)
		return Result{Path: abs, Chunks: prev.Chunks, Skipped: true}, nil
	case err == nil:
		if err := ix.store.DeleteDocument(prev.ID); err != nil {
			return Result{}, fmt.Errorf("removing previous passages of %s: %w", path, err)
		}
	case !errors.Is(err, storage.ErrNotFound):
		return Result{}, err
	}

	chunks := Chunk(text, ix.ChunkRunes, ix.OverlapRunes)
	if len(chunks) == 0 {
		return Result{}, fmt.Errorf("%s contains no text", path)
	}

	vecs, err := ix.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("embedding %s: %w", path, err)
	}

	docID := uuid.New().String()
	now := time.Now().UTC()
	labels := labelChunks(abs, chunks)
	records := make([]retrieval.Record, len(chunks))
	for i, c := range chunks {
		records[i] = retrieval.Record{
			ID:           uuid.New().String(),
			Namespace:    ix.namespace,
			DocumentID:   docID,
			SectionLabel: labels[i],
			Text:         c,
			Embedding:    vecs[i],
			CreatedAt:    now,
		}
	}
	if err := ix.passages.Insert(ctx, records); err != nil {
		return Result{}, fmt.Errorf("inserting passages of %s: %w", path, err)
	}

	if err := ix.store.SaveDocument(storage.PolicyDocument{
		ID:          docID,
		Namespace:   ix.namespace,
		Path:        abs,
		ContentHash: hash,
		Chunks:      len(chunks),
		IndexedAt:   now,
	}); err != nil {
		return Result{}, err
	}

	ix.logger.Info("policy file indexed", "path", abs, "chunks", len(chunks), "namespace", ix.namespace)
	return Result{Path: abs, Chunks: len(chunks)}, nil
}

// labelChunks derives a section label per chunk. A chunk without its own
// heading inherits the previous one; leading chunks of a text file fall
// back to the file name.
func labelChunks(path string, chunks []string) []string {
	fallback := ""
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		fallback = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	labels := make([]string, len(chunks))
	prev := fallback
	for i, c := range chunks {
		if l := retrieval.SectionLabel("", c); l != "" {
			prev = l
		}
		labels[i] = prev
	}
	return labels
}

func extractText(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return readPDF(path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}
