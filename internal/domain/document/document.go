// Package document holds the knowledge-base domain types. Documents are
// the indexed sources a company's chatbot answers from.
package document

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound     = errors.New("document not found")
	ErrEmptyUpload  = errors.New("upload has no content")
	ErrInvalidQuery = errors.New("invalid search query")
)

// Document represents one indexed knowledge-base entry.
type Document struct {
	ID          string    `json:"id" validate:"required"`
	Name        string    `json:"name" validate:"required"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Tags        []string  `json:"tags,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
	Indexed     bool      `json:"indexed"`
}

// Upload is the payload for adding a document to the knowledge base.
// Content is the raw document text; binary formats are base64-encoded
// with a matching ContentType.
type Upload struct {
	Name        string   `json:"name"`
	Content     string   `json:"content"`
	ContentType string   `json:"content_type"`
	Tags        []string `json:"tags,omitempty"`
}

// Validate checks the upload has a name and content.
func (u Upload) Validate() error {
	if u.Name == "" || u.Content == "" {
		return ErrEmptyUpload
	}
	return nil
}

// Search bounds. TopK outside the range is rejected rather than clamped
// so a bad caller is visible.
const (
	DefaultTopK = 5
	MaxTopK     = 50
)

// SearchQuery describes a semantic search over the company's documents.
type SearchQuery struct {
	Query string   `json:"query"`
	TopK  int      `json:"top_k,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// Validate checks the query text and result bound.
func (q SearchQuery) Validate() error {
	if q.Query == "" {
		return ErrInvalidQuery
	}
	if q.TopK < 0 || q.TopK > MaxTopK {
		return ErrInvalidQuery
	}
	return nil
}

// Match is one search hit with its relevance score.
type Match struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
	Snippet  string   `json:"snippet,omitempty"`
}

/// CleanupReport summarizes a knowledge-base cleanup run: orphaned chunks
// removed and space reclaimed.
type CleanupReport struct {
	Removed    int   `json:"removed"`
	FreedBytes int64 `json:"freed_bytes"`
}
