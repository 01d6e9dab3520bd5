package rag

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"testing"

	"github.com/philippgille/chromem-go"
)

// fakeEmbed maps words onto a fixed-size normalized bag-of-words vector,
// so related texts land close together without a live endpoint.
func fakeEmbed(_ context.Context, text string) ([]float32, error) {
	const dim = 64
	vec := make([]float32, dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,!?")))
		vec[h.Sum32()%dim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}

func newTestStore(t *testing.T, minSimilarity float32) *Store {
	t.Helper()
	store, err := NewStoreWith(chromem.NewDB(), fakeEmbed, 3, minSimilarity)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestQueryEmptyIndex(t *testing.T) {
	store := newTestStore(t, 0.1)
	docs, err := store.Query(context.Background(), "who leads the company?")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no documents from empty index, got %d", len(docs))
	}
}

func TestQueryReturnsMostSimilar(t *testing.T) {
	store := newTestStore(t, 0.01)
	ctx := context.Background()
	err := store.Add(ctx,
		[]string{"leadership", "services", "history"},
		[]string{
			"The leadership team is headed by the chief executive Jane Doe.",
			"Our services cover logistics consulting and fleet management.",
			"The company history begins in 1987 with a single warehouse.",
		})
	if err != nil {
		t.Fatalf("add documents: %v", err)
	}

	docs, err := store.Query(ctx, "who is on the leadership team?")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) == 0 {
		t.Fatalf("expected at least one document")
	}
	if docs[0].ID != "leadership" {
		t.Fatalf("expected leadership chunk first, got %q", docs[0].ID)
	}
}

func TestQueryFiltersBySimilarityFloor(t *testing.T) {
	store := newTestStore(t, 0.99)
	ctx := context.Background()
	if err := store.Add(ctx, []string{"doc"}, []string{"completely unrelated text about gardening"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	docs, err := store.Query(ctx, "quarterly revenue growth numbers")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected similarity floor to drop all results, got %d", len(docs))
	}
}

func TestSplitChunksOverlap(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 200)
	chunks := splitChunks(text, 500, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 500 {
			t.Fatalf("chunk %d exceeds window: %d runes", i, len([]rune(c)))
		}
		if c == "" {
			t.Fatalf("chunk %d is empty", i)
		}
	}
}

func TestSplitChunksShortText(t *testing.T) {
	chunks := splitChunks("short document", 500, 100)
	if len(chunks) != 1 || chunks[0] != "short document" {
		t.Fatalf("short text should be a single chunk, got %v", chunks)
	}
}
