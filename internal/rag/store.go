// Package rag maintains the document index used for retrieval-grounded
// answers. Documents are chunked, embedded and stored in an on-disk
// vector collection; queries return the most similar chunks.
package rag

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"

	"datachat/internal/config"
)

const collectionName = "documents"

// Document is one retrieved chunk with its similarity to the query.
type Document struct {
	ID         string
	Content    string
	Similarity float32
}

// Store wraps the vector collection.
type Store struct {
	col           *chromem.Collection
	topK          int
	minSimilarity float32
}

// NewStore opens (or creates) the persistent index at the configured
// path. Embeddings go through an OpenAI-compatible endpoint.
func NewStore(cfg config.RAGConfig, apiKey string) (*Store, error) {
	if cfg.IndexPath == "" {
		return nil, errors.New("rag index_path must be configured")
	}
	if cfg.EmbedModel == "" {
		return nil, errors.New("rag embed_model must be configured")
	}

	db, err := chromem.NewPersistentDB(cfg.IndexPath, false)
	if err != nil {
		return nil, fmt.Errorf("open document index: %w", err)
	}

	var embed chromem.EmbeddingFunc
	if cfg.EmbedBaseURL != "" {
		embed = chromem.NewEmbeddingFuncOpenAICompat(cfg.EmbedBaseURL, apiKey, cfg.EmbedModel, nil)
	} else {
		embed = chromem.NewEmbeddingFuncOpenAI(apiKey, chromem.EmbeddingModelOpenAI(cfg.EmbedModel))
	}
	return NewStoreWith(db, embed, cfg.TopK, cfg.MinSimilarity)
}

// NewStoreWith builds a store over an existing database and embedding
// function. Tests use this with an in-memory DB and a fake embedder.
func NewStoreWith(db *chromem.DB, embed chromem.EmbeddingFunc, topK int, minSimilarity float32) (*Store, error) {
	col, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	if topK <= 0 {
		topK = config.DefaultTopK
	}
	return &Store{col: col, topK: topK, minSimilarity: minSimilarity}, nil
}

// Query returns up to TopK chunks at or above the similarity floor.
// An empty result means the index holds nothing usable for the question.
func (s *Store) Query(ctx context.Context, question string) ([]Document, error) {
	count := s.col.Count()
	if count == 0 {
		return nil, nil
	}
	k := s.topK
	if k > count {
		k = count
	}
	results, err := s.col.Query(ctx, question, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	docs := make([]Document, 0, len(results))
	for _, r := range results {
		if r.Similarity < s.minSimilarity {
			continue
		}
		docs = append(docs, Document{ID: r.ID, Content: r.Content, Similarity: r.Similarity})
	}
	return docs, nil
}

// Add embeds and stores pre-chunked content under the given ids.
func (s *Store) Add(ctx context.Context, ids []string, contents []string) error {
	if len(ids) != len(contents) {
		return errors.New("ids and contents length mismatch")
	}
	if len(ids) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(ids))
	for i := range ids {
		docs = append(docs, chromem.Document{ID: ids[i], Content: contents[i]})
	}
	return s.col.AddDocuments(ctx, docs, runtime.NumCPU())
}

// Count reports how many chunks the index holds.
func (s *Store) Count() int {
	return s.col.Count()
}
