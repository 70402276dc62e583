package search

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotel-rate-monitor/internal/rooms"
)

func TestParseCandidates(t *testing.T) {
	hits := []interface{}{
		map[string]interface{}{"category": "suite", "_rankingScore": 0.93},
		map[string]interface{}{"category": "deluxe"},
		map[string]interface{}{"_rankingScore": 0.5},
		"garbage",
	}

	got := parseCandidates(hits)
	require.Len(t, got, 2)
	assert.Equal(t, rooms.Candidate{Category: "suite", Score: 0.93}, got[0])
	assert.Equal(t, "deluxe", got[1].Category)
	assert.Zero(t, got[1].Score)
}

func TestDocuments(t *testing.T) {
	docs := documents(rooms.Synonyms{
		"Sea View": {"sea view", "deniz manzarali"},
		"suite":    {"suite", "suit"},
		"  ":       {"blank"},
	})
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	require.Len(t, docs, 2)
	assert.Equal(t, "sea_view", docs[0].ID)
	assert.Equal(t, "sea view", docs[0].Category)
	assert.Equal(t, "suite", docs[1].ID)
}

func TestSimilarShortCircuits(t *testing.T) {
	idx := NewCategoryIndex("http://127.0.0.1:1", "", "")

	got, err := idx.Similar(context.Background(), "  ", 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = idx.Similar(ctx, "suite", 3)
	assert.ErrorIs(t, err, context.Canceled)
}
