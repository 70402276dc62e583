// Package search backs the semantic room-category tier with a Meilisearch index.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"hotel-rate-monitor/internal/rooms"
)

// CategoryIndex ranks known room categories against free-text requests
type CategoryIndex struct {
	client *meilisearch.Client
	index  string
}

// categoryDocument is the indexed form of one category and its synonyms
type categoryDocument struct {
	ID       string   `json:"id"`
	Category string   `json:"category"`
	Synonyms []string `json:"synonyms"`
}

// NewCategoryIndex creates a client for the given index uid
func NewCategoryIndex(host, apiKey, index string) *CategoryIndex {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:    host,
		APIKey:  apiKey,
		Timeout: 5 * time.Second,
	})
	if index == "" {
		index = "room_categories"
	}

	return &CategoryIndex{
		client: client,
		index:  index,
	}
}

// InitIndex creates the index and configures searchable attributes
func (c *CategoryIndex) InitIndex() error {
	_, err := c.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        c.index,
		PrimaryKey: "id",
	})
	// Ignore error if index already exists
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}

	_, err = c.client.Index(c.index).UpdateSearchableAttributes(&[]string{
		"category",
		"synonyms",
	})
	return err
}

// IndexCategories replaces the indexed documents with the synonym table
func (c *CategoryIndex) IndexCategories(syn rooms.Synonyms) error {
	docs := documents(syn)
	if len(docs) == 0 {
		return nil
	}
	_, err := c.client.Index(c.index).AddDocuments(docs)
	return err
}

func documents(syn rooms.Synonyms) []categoryDocument {
	docs := make([]categoryDocument, 0, len(syn))
	for category, variants := range syn {
		folded := rooms.Fold(category)
		if folded == "" {
			continue
		}
		docs = append(docs, categoryDocument{
			ID:       strings.ReplaceAll(folded, " ", "_"),
			Category: folded,
			Synonyms: variants,
		})
	}
	return docs
}

// Similar returns up to limit categories ranked against text, best first.
// Scores are Meilisearch ranking scores in [0, 1].
func (c *CategoryIndex) Similar(ctx context.Context, text string, limit int) ([]rooms.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := rooms.Fold(text)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	res, err := c.client.Index(c.index).Search(query, &meilisearch.SearchRequest{
		Limit:                int64(limit),
		ShowRankingScore:     true,
		AttributesToRetrieve: []string{"category"},
	})
	if err != nil {
		return nil, fmt.Errorf("category search: %w", err)
	}
	return parseCandidates(res.Hits), nil
}

// parseCandidates converts search hits to candidates, skipping malformed ones
func parseCandidates(hits []interface{}) []rooms.Candidate {
	out := make([]rooms.Candidate, 0, len(hits))
	for _, hit := range hits {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		category := getString(hitMap, "category")
		if category == "" {
			continue
		}
		score, _ := hitMap["_rankingScore"].(float64)
		out = append(out, rooms.Candidate{Category: category, Score: score})
	}
	return out
}

// getString safely extracts a string from map
func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}
