package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/kalambet/claimcheck/internal/apperr"
)

func TestRetrieveBatchKeepsQueryOrder(t *testing.T) {
	idx := &fakeIndex{}
	r := NewRetriever(idx, nil, "default", 4)

	queries := []string{"warranty", "attachments"}
	results, err := r.RetrieveBatch(context.Background(), queries, 4)
	if err != nil {
		t.Fatalf("RetrieveBatch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	for i, q := range queries {
		if results[i].Query != q {
			t.Errorf("results[%d].Query = %q, want %q", i, results[i].Query, q)
		}
		if results[i].Mode != ModeBatch {
			t.Errorf("results[%d].Mode = %q, want %q", i, results[i].Mode, ModeBatch)
		}
		if len(results[i].Passages) != 1 {
			t.Errorf("results[%d] has %d passages, want 1", i, len(results[i].Passages))
		}
	}
}

func TestRetrieveBatchFailsWhole(t *testing.T) {
	idx := &fakeIndex{failOn: "attachments"}
	r := NewRetriever(idx, nil, "default", 4)

	results, err := r.RetrieveBatch(context.Background(), []string{"warranty", "attachments"}, 4)
	if err == nil {
		t.Fatal("expected error")
	}
	if results != nil {
		t.Errorf("results = %v, want nil on failure", results)
	}
	var up *apperr.UpstreamServiceError
	if !errors.As(err, &up) {
		t.Fatalf("error %T is not an UpstreamServiceError", err)
	}
	if up.Service != apperr.ServiceIndex {
		t.Errorf("Service = %q, want %q", up.Service, apperr.ServiceIndex)
	}
}

func TestRetrieveBatchLimit(t *testing.T) {
	r := NewRetriever(&fakeIndex{}, nil, "default", 4)
	if _, err := r.RetrieveBatch(context.Background(), []string{"a", "b", "c", "d", "e"}, 4); err == nil {
		t.Error("expected error for more than MaxBatchQueries queries")
	}
}

func TestRetrieveBatchEmpty(t *testing.T) {
	idx := &fakeIndex{}
	r := NewRetriever(idx, nil, "default", 4)
	results, err := r.RetrieveBatch(context.Background(), nil, 4)
	if err != nil || results != nil {
		t.Errorf("RetrieveBatch(nil) = %v, %v; want nil, nil", results, err)
	}
	if idx.count() != 0 {
		t.Errorf("index called %d times, want 0", idx.count())
	}
}

func TestSearchWrapsIndexError(t *testing.T) {
	r := NewRetriever(&fakeIndex{failOn: "x"}, nil, "default", 4)
	_, err := r.Search(context.Background(), "x", 0)
	if !apperr.IsUpstream(err) {
		t.Errorf("err = %v, want UpstreamServiceError", err)
	}
}

func TestPassagesDedup(t *testing.T) {
	results := []RetrievalResult{
		{Passages: []PolicyPassage{{ID: "1", Text: "a"}, {ID: "2", Text: "b"}}},
		{Passages: []PolicyPassage{{ID: "2", Text: "b"}, {ID: "3", Text: "a"}, {ID: "4", Text: "c"}}},
	}
	got := Passages(results)
	want := []string{"1", "2", "4"}
	if len(got) != len(want) {
		t.Fatalf("Passages = %v, want ids %v", got, want)
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("got[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestFormatPassages(t *testing.T) {
	if got := FormatPassages(nil); got != "No matching policy passages found." {
		t.Errorf("FormatPassages(nil) = %q", got)
	}
	got := FormatPassages([]PolicyPassage{
		{Text: " first ", SectionLabel: "3.2.-Deadlines"},
		{Text: "second"},
	})
	want := "Source: 3.2.-Deadlines\n\nContent: first\n\n---\n\nSource: Unlabeled policy passage\n\nContent: second"
	if got != want {
		t.Errorf("FormatPassages =\n%q\nwant\n%q", got, want)
	}
}
