package rooms

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotel-rate-monitor/internal/models"
)

type fakeIndex struct {
	candidates []Candidate
	err        error
	calls      int
}

func (f *fakeIndex) Similar(_ context.Context, _ string, _ int) ([]Candidate, error) {
	f.calls++
	return f.candidates, f.err
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func snapshotWith(offers ...models.RoomOffer) *models.PriceSnapshot {
	return &models.PriceSnapshot{Currency: "TRY", Offers: offers}
}

func TestSelectLexicalMatch(t *testing.T) {
	snap := snapshotWith(
		models.RoomOffer{Name: "Standard Room", Price: dec("100")},
		models.RoomOffer{Name: "Deluxe Suite", Price: dec("250")},
	)

	sel, err := NewSelector().Select(context.Background(), snap, "standard")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(sel.Amount))
	assert.Equal(t, ConfidenceLexical, sel.Confidence)
	assert.Equal(t, TierLexical, sel.Tier)
	assert.Equal(t, CategoryStandard, sel.Category)
	assert.Equal(t, "TRY", sel.Currency)
}

func TestSelectSynonymVariants(t *testing.T) {
	snap := snapshotWith(
		models.RoomOffer{Name: "Deluxe Suite", Price: dec("250")},
		models.RoomOffer{Name: "Standart Oda", RawPrice: "5.677 TL"},
	)

	sel, err := NewSelector().Select(context.Background(), snap, "Standard")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5677).Equal(sel.Amount))
	assert.Equal(t, "Standart Oda", sel.OfferName)
}

func TestSelectSkipsUnparseableOffer(t *testing.T) {
	snap := snapshotWith(
		models.RoomOffer{Name: "Deluxe Room", RawPrice: "call us"},
		models.RoomOffer{Name: "Deluxe Sea View", RawPrice: "320"},
	)

	sel, err := NewSelector().Select(context.Background(), snap, "deluxe")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(320).Equal(sel.Amount))
}

func TestSelectKeepsOfferCurrency(t *testing.T) {
	snap := snapshotWith(
		models.RoomOffer{Name: "Standard Room", Price: dec("120"), Currency: "EUR"},
		models.RoomOffer{Name: "Economy Room", Price: dec("4000"), Currency: "TRY"},
		models.RoomOffer{Name: "Promo Room", RawPrice: "$90"},
	)
	s := NewSelector()

	sel, err := s.Select(context.Background(), snap, "any")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(4000).Equal(sel.Amount), "got %s", sel.Amount)
	assert.Equal(t, "TRY", sel.Currency)
	assert.Equal(t, "Economy Room", sel.OfferName)

	sel, err = s.Select(context.Background(), snap, "standard")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(120).Equal(sel.Amount))
	assert.Equal(t, "EUR", sel.Currency)
}

func TestSelectGenericPicksCheapest(t *testing.T) {
	snap := snapshotWith(
		models.RoomOffer{Name: "Standard Room", Price: dec("100")},
		models.RoomOffer{Name: "Deluxe Suite", Price: dec("250")},
		models.RoomOffer{Name: "Promo Saver", Price: dec("80")},
	)

	for _, req := range []string{"any", "", "*", "ALL", "room"} {
		t.Run(req, func(t *testing.T) {
			sel, err := NewSelector().Select(context.Background(), snap, req)
			require.NoError(t, err)
			assert.True(t, decimal.NewFromInt(80).Equal(sel.Amount), "got %s", sel.Amount)
			assert.Equal(t, ConfidenceGeneric, sel.Confidence)
			assert.Equal(t, TierGeneric, sel.Tier)
		})
	}
}

func TestSelectAnyReturnsMinimum(t *testing.T) {
	snap := snapshotWith(
		models.RoomOffer{Name: "Standard Room", Price: dec("100")},
		models.RoomOffer{Name: "Deluxe Suite", Price: dec("250")},
	)

	sel, err := NewSelector().Select(context.Background(), snap, "any")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(sel.Amount))
	assert.Equal(t, 0.5, sel.Confidence)
}

func TestSelectLegacyFallback(t *testing.T) {
	snap := &models.PriceSnapshot{Currency: "USD", Price: dec("180")}

	sel, err := NewSelector().Select(context.Background(), snap, "standard")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(180).Equal(sel.Amount))
	assert.Equal(t, ConfidenceLegacy, sel.Confidence)
	assert.Equal(t, TierLegacy, sel.Tier)
}

func TestSelectLegacyNeedsGenericRequest(t *testing.T) {
	snap := &models.PriceSnapshot{Currency: "USD", Price: dec("180")}

	_, err := NewSelector().Select(context.Background(), snap, "suite")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestSelectNoMatch(t *testing.T) {
	snap := snapshotWith(
		models.RoomOffer{Name: "Standard Room", Price: dec("100")},
		models.RoomOffer{Name: "Deluxe Suite", Price: dec("250")},
	)

	_, err := NewSelector().Select(context.Background(), snap, "presidential")
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = NewSelector().Select(context.Background(), nil, "standard")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestSelectSemanticFallback(t *testing.T) {
	snap := snapshotWith(
		models.RoomOffer{Name: "Standard Room", Price: dec("100")},
		models.RoomOffer{Name: "Junior Suite Sea View", Price: dec("410")},
	)
	index := &fakeIndex{candidates: []Candidate{
		{Category: "family", Score: 0.9},
		{Category: "suite", Score: 0.8},
		{Category: "deluxe", Score: 0.3},
	}}

	sel, err := NewSelector(WithIndex(index, 0.6, 3)).Select(context.Background(), snap, "honeymoon")
	require.NoError(t, err)
	assert.Equal(t, 1, index.calls)
	assert.True(t, decimal.NewFromInt(410).Equal(sel.Amount))
	assert.Equal(t, TierSemantic, sel.Tier)
	assert.Equal(t, CategorySuite, sel.Category)
	assert.InDelta(t, 0.85*0.8, sel.Confidence, 1e-9)
}

func TestSelectSemanticBelowThreshold(t *testing.T) {
	snap := snapshotWith(models.RoomOffer{Name: "Junior Suite", Price: dec("410")})
	index := &fakeIndex{candidates: []Candidate{{Category: "suite", Score: 0.4}}}

	_, err := NewSelector(WithIndex(index, 0.6, 3)).Select(context.Background(), snap, "honeymoon")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestSelectSemanticIndexError(t *testing.T) {
	snap := snapshotWith(models.RoomOffer{Name: "Junior Suite", Price: dec("410")})
	index := &fakeIndex{err: errors.New("index unavailable")}

	_, err := NewSelector(WithIndex(index, 0.6, 3)).Select(context.Background(), snap, "honeymoon")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestSelectGenericSkipsIndex(t *testing.T) {
	snap := snapshotWith(models.RoomOffer{Name: "Standard Room", Price: dec("100")})
	index := &fakeIndex{}

	_, err := NewSelector(WithIndex(index, 0.6, 3)).Select(context.Background(), snap, "any")
	require.NoError(t, err)
	assert.Zero(t, index.calls)
}
