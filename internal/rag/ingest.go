package rag

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"

	"datachat/internal/logx"
)

const (
	chunkSize    = 1000 // runes
	chunkOverlap = 200
)

// Ingest walks the directory, parses every regular file and stores its
// chunks in the index. Returns the number of chunks added. Files the
// parser cannot handle fall back to plain text.
func (s *Store) Ingest(ctx context.Context, dir string) (int, error) {
	parserExt, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return 0, fmt.Errorf("init parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		return 0, fmt.Errorf("init file loader: %w", err)
	}

	added := 0
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		docs, err := loader.Load(ctx, document.Source{URI: path})
		if err != nil {
			logx.Warn().Err(err).Str("file", path).Msg("skipping unreadable document")
			return nil
		}
		var builder strings.Builder
		for _, doc := range docs {
			content := strings.TrimSpace(doc.Content)
			if content == "" {
				continue
			}
			builder.WriteString(content)
			builder.WriteString("\n\n")
		}
		text := strings.TrimSpace(builder.String())
		if text == "" {
			return nil
		}

		chunks := splitChunks(text, chunkSize, chunkOverlap)
		ids := make([]string, len(chunks))
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = d.Name()
		}
		for i := range chunks {
			ids[i] = fmt.Sprintf("%s#%d", rel, i)
		}
		if err := s.Add(ctx, ids, chunks); err != nil {
			return fmt.Errorf("index %s: %w", rel, err)
		}
		added += len(chunks)
		logx.Info().Str("file", rel).Int("chunks", len(chunks)).Msg("indexed document")
		return nil
	})
	if walkErr != nil {
		return added, fmt.Errorf("walk %s: %w", dir, walkErr)
	}
	return added, nil
}

// splitChunks cuts text into overlapping rune windows, preferring to
// break at whitespace near the window edge.
func splitChunks(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	if overlap >= size {
		overlap = size / 2
	}
	var chunks []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}
		cut := end
		for cut > start+step && runes[cut-1] != ' ' && runes[cut-1] != '\n' {
			cut--
		}
		if cut == start+step {
			cut = end
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[start:cut])))
	}
	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
