package search

import (
	"fmt"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/search/query"
)

// CommenterDoc is the indexed view of a commenter.
type CommenterDoc struct {
	SessionID   string `json:"session_id"`
	Name        string `json:"name"`
	Headline    string `json:"headline"`
	Company     string `json:"company"`
	CommentText string `json:"comment_text"`
}

// Hit is one search result.
type Hit struct {
	CommenterID string  `json:"commenter_id"`
	Score       float64 `json:"score"`
}

// Index is a keyword index over commenters, used by the session search
// endpoint. Indexing is best-effort: the Postgres rows stay the source of
// truth and the index is rebuilt per process.
type Index struct {
	idx bleve.Index
}

// Open creates the index at path, or in memory when path is empty.
func Open(path string) (*Index, error) {
	mapping := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	sessionField := bleve.NewTextFieldMapping()
	sessionField.Analyzer = keyword.Name
	doc.AddFieldMappingsAt("session_id", sessionField)
	mapping.DefaultMapping = doc

	if path == "" {
		idx, err := bleve.NewMemOnly(mapping)
		if err != nil {
			return nil, fmt.Errorf("open search index: %w", err)
		}
		return &Index{idx: idx}, nil
	}
	idx, err := bleve.New(path, mapping)
	if err == bleve.ErrorIndexPathExists {
		idx, err = bleve.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open search index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// IndexCommenter adds or replaces a commenter document.
func (i *Index) IndexCommenter(commenterID string, doc CommenterDoc) error {
	if i == nil {
		return nil
	}
	return i.idx.Index(commenterID, doc)
}

// Delete removes a commenter document.
func (i *Index) Delete(commenterID string) error {
	if i == nil {
		return nil
	}
	return i.idx.Delete(commenterID)
}

// Search finds commenters in one session matching the query text, ranked by
// relevance.
func (i *Index) Search(sessionID, q string, limit int) ([]Hit, error) {
	if i == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 25
	}
	sessionQ := query.NewTermQuery(sessionID)
	sessionQ.SetField("session_id")
	textQ := bleve.NewMatchQuery(q)
	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(sessionQ, textQ), limit, 0, false)
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{CommenterID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Close releases the underlying index.
func (i *Index) Close() error {
	if i == nil {
		return nil
	}
	return i.idx.Close()
}
