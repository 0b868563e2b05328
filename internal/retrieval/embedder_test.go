package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCachedEmbedderReusesVectors(t *testing.T) {
	inner := &fakeEmbedder{}
	e := NewCachedEmbedder(inner, time.Minute)

	for range 3 {
		if _, err := e.Embed(context.Background(), "warranty"); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestCachedEmbedderBatch(t *testing.T) {
	inner := &fakeEmbedder{}
	e := NewCachedEmbedder(inner, 0)

	vecs, err := e.EmbedBatch(context.Background(), []string{"warranty", "photo", "other"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("len = %d, want 3", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 || vecs[2][2] != 1 {
		t.Errorf("vectors out of order: %v", vecs)
	}
}

func TestCachedEmbedderDoesNotCacheErrors(t *testing.T) {
	inner := &fakeEmbedder{err: errors.New("down")}
	e := NewCachedEmbedder(inner, time.Minute)

	if _, err := e.Embed(context.Background(), "warranty"); err == nil {
		t.Fatal("expected error")
	}
	inner.err = nil
	if _, err := e.Embed(context.Background(), "warranty"); err != nil {
		t.Fatalf("Embed after recovery: %v", err)
	}
}
