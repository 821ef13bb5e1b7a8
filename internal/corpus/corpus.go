// Package corpus indexes a local directory of reference documents and serves
// ranked snippet lookups for the research phase. The index lives in memory
// and is rebuilt at startup; the ranking internals are bleve's.
package corpus

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve"
	readability "github.com/go-shiori/go-readability"
)

const snippetLimit = 400

// Document is one indexed corpus entry.
type Document struct {
	ID     string
	Title  string
	Source string
	Date   string
	Text   string
}

// Hit is one ranked search result.
type Hit struct {
	Doc     Document
	Snippet string
	Score   float64
}

// Index is a mem-only bleve index with a side map for full documents.
type Index struct {
	idx    bleve.Index
	meta   map[string]Document
	logger *log.Logger
}

// Load builds the index from every supported file under dir. A missing or
// empty directory yields a usable empty index; research then proceeds
// without evidence.
func Load(dir string, logger *log.Logger) (*Index, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[CORPUS] ", log.LstdFlags)
	}
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("create corpus index: %w", err)
	}
	ix := &Index{idx: idx, meta: make(map[string]Document), logger: logger}

	if dir == "" {
		return ix, nil
	}
	if _, err := os.Stat(dir); err != nil {
		logger.Printf("corpus dir %s unavailable, searching empty index: %v", dir, err)
		return ix, nil
	}

	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		doc, ok := parseFile(path)
		if !ok {
			return nil
		}
		if err := ix.idx.Index(doc.ID, map[string]string{"title": doc.Title, "text": doc.Text}); err != nil {
			logger.Printf("index %s: %v", path, err)
			return nil
		}
		ix.meta[doc.ID] = doc
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus dir %s: %w", dir, err)
	}
	logger.Printf("indexed %d corpus documents from %s", len(ix.meta), dir)
	return ix, nil
}

// Len reports the number of indexed documents.
func (ix *Index) Len() int { return len(ix.meta) }

// Search returns the top-k documents for a free-text query. Query parse or
// search failures degrade to an empty result; evidence lookup is best-effort.
func (ix *Index) Search(query string, k int) []Hit {
	if k <= 0 || len(ix.meta) == 0 || strings.TrimSpace(query) == "" {
		return nil
	}
	q := bleve.NewQueryStringQuery(sanitizeQuery(query))
	req := bleve.NewSearchRequestOptions(q, k*3, 0, false)
	res, err := ix.idx.Search(req)
	if err != nil {
		ix.logger.Printf("corpus search %q: %v", query, err)
		return nil
	}
	var hits []Hit
	for _, h := range res.Hits {
		doc, ok := ix.meta[h.ID]
		if !ok {
			continue
		}
		hits = append(hits, Hit{Doc: doc, Snippet: snippet(doc.Text), Score: h.Score})
		if len(hits) == k {
			break
		}
	}
	return hits
}

// sanitizeQuery strips query-string operators so claim sentences parse.
func sanitizeQuery(q string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '+', '-', '"', '~', '^', ':', '*', '?', '(', ')', '[', ']', '{', '}', '\\', '/':
			return ' '
		}
		return r
	}, q)
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > snippetLimit {
		text = text[:snippetLimit] + "..."
	}
	return text
}

// parseFile reads one corpus file. Markdown and plain text may carry a
// frontmatter block (title, source, date); HTML goes through readability.
func parseFile(path string) (Document, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, false
	}
	doc := Document{
		ID:     path,
		Title:  strings.TrimSuffix(filepath.Base(path), ext),
		Source: filepath.Base(path),
	}
	switch ext {
	case ".md", ".txt":
		meta, body := splitFrontmatter(string(raw))
		if t := meta["title"]; t != "" {
			doc.Title = t
		}
		if s := meta["source"]; s != "" {
			doc.Source = s
		}
		if d := meta["published_at"]; d != "" {
			doc.Date = d
		} else if d := meta["date"]; d != "" {
			doc.Date = d
		}
		doc.Text = body
	case ".html", ".htm":
		article, err := readability.FromReader(strings.NewReader(string(raw)), nil)
		if err != nil {
			return Document{}, false
		}
		if article.Title != "" {
			doc.Title = article.Title
		}
		doc.Text = article.TextContent
	default:
		return Document{}, false
	}
	if strings.TrimSpace(doc.Text) == "" {
		return Document{}, false
	}
	return doc, true
}

// splitFrontmatter parses a leading "---" block of "key: value" lines.
func splitFrontmatter(content string) (map[string]string, string) {
	meta := map[string]string{}
	if !strings.HasPrefix(content, "---") {
		return meta, content
	}
	rest := content[3:]
	end := strings.Index(rest, "---")
	if end < 0 {
		return meta, content
	}
	for _, line := range strings.Split(rest[:end], "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		meta[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return meta, strings.TrimSpace(rest[end+3:])
}
