// Package rooms picks a representative nightly price for a requested room category.
package rooms

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"hotel-rate-monitor/internal/logging"
	"hotel-rate-monitor/internal/models"
	"hotel-rate-monitor/internal/pricing"
)

// ErrNoMatch means no price can be attributed to the requested category.
// Callers surface this as "unknown", never as zero.
var ErrNoMatch = errors.New("no matching room price")

// Match confidences per tier
const (
	ConfidenceLexical = 0.85
	ConfidenceGeneric = 0.5
	ConfidenceLegacy  = 0.6
)

// Tier names the rule that produced a selection
type Tier string

const (
	TierLexical  Tier = "lexical"
	TierGeneric  Tier = "generic"
	TierSemantic Tier = "semantic"
	TierLegacy   Tier = "legacy"
)

// Selection is the chosen price and how it was found
type Selection struct {
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Confidence float64         `json:"confidence"`
	OfferName  string          `json:"offer_name,omitempty"`
	Category   string          `json:"category,omitempty"`
	Tier       Tier            `json:"tier"`
}

// Candidate is a category suggested by the similarity index
type Candidate struct {
	Category string
	Score    float64
}

// CategoryIndex finds categories similar to free text, best first.
type CategoryIndex interface {
	Similar(ctx context.Context, text string, limit int) ([]Candidate, error)
}

// Selector applies the lexical, generic, semantic and legacy tiers in order.
type Selector struct {
	normalizer *pricing.Normalizer
	synonyms   Synonyms
	index      CategoryIndex
	threshold  float64
	limit      int
	log        *logrus.Entry
}

// Option configures a Selector
type Option func(*Selector)

// WithIndex enables the semantic tier.
func WithIndex(index CategoryIndex, threshold float64, limit int) Option {
	return func(s *Selector) {
		s.index = index
		s.threshold = threshold
		if limit > 0 {
			s.limit = limit
		}
	}
}

// WithSynonyms replaces the default synonym table.
func WithSynonyms(syn Synonyms) Option {
	return func(s *Selector) { s.synonyms = syn }
}

// WithNormalizer replaces the default price normalizer.
func WithNormalizer(n *pricing.Normalizer) Option {
	return func(s *Selector) { s.normalizer = n }
}

// NewSelector creates a selector. Without WithIndex the semantic tier is skipped.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{
		normalizer: pricing.NewNormalizer(pricing.DefaultDotGroupingCurrencies),
		synonyms:   DefaultSynonyms,
		limit:      5,
		log:        logging.Component("rooms"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the price of the requested category on snapshot.
func (s *Selector) Select(ctx context.Context, snapshot *models.PriceSnapshot, requested string) (Selection, error) {
	if snapshot == nil {
		return Selection{}, ErrNoMatch
	}

	folded := Fold(requested)
	category, known := s.synonyms.Resolve(folded)
	if !known {
		category = folded
	}
	generic := IsGeneric(folded)

	// generic words like "room" only match lexically when they name a category
	if folded != "" && (known || !generic) {
		if sel, ok := s.lexical(snapshot, s.variants(category)); ok {
			sel.Category = category
			sel.Confidence = ConfidenceLexical
			return sel, nil
		}
	}

	if generic {
		if len(snapshot.Offers) > 0 {
			if sel, ok := s.cheapest(snapshot); ok {
				return sel, nil
			}
			return Selection{}, ErrNoMatch
		}
		return s.legacy(snapshot)
	}

	if s.index != nil {
		if sel, ok := s.semantic(ctx, snapshot, requested, category); ok {
			return sel, nil
		}
	}
	return Selection{}, ErrNoMatch
}

func (s *Selector) variants(category string) []string {
	if _, ok := s.synonyms[category]; ok {
		return s.synonyms.Variants(category)
	}
	return []string{category}
}

// lexical returns the first offer, in provider order, whose name carries one
// of variants and whose price parses.
func (s *Selector) lexical(snapshot *models.PriceSnapshot, variants []string) (Selection, bool) {
	for _, offer := range snapshot.Offers {
		name := Fold(offer.Name)
		for _, v := range variants {
			if !containsWord(name, v) {
				continue
			}
			price, err := s.offerPrice(offer, snapshot.Currency)
			if err != nil {
				break
			}
			return Selection{
				Amount:    price.Amount,
				Currency:  price.Currency,
				OfferName: offer.Name,
				Tier:      TierLexical,
			}, true
		}
	}
	return Selection{}, false
}

func (s *Selector) cheapest(snapshot *models.PriceSnapshot) (Selection, bool) {
	var best *Selection
	for _, offer := range snapshot.Offers {
		price, err := s.offerPrice(offer, snapshot.Currency)
		if err != nil || !sameCurrency(price.Currency, snapshot.Currency) {
			continue
		}
		if best == nil || price.Amount.LessThan(best.Amount) {
			best = &Selection{
				Amount:     price.Amount,
				Currency:   price.Currency,
				Confidence: ConfidenceGeneric,
				OfferName:  offer.Name,
				Category:   offer.Category,
				Tier:       TierGeneric,
			}
		}
	}
	if best == nil {
		return Selection{}, false
	}
	return *best, true
}

// sameCurrency treats a snapshot without currency as matching anything
func sameCurrency(offer, snapshot string) bool {
	return snapshot == "" || strings.EqualFold(offer, snapshot)
}

func (s *Selector) semantic(ctx context.Context, snapshot *models.PriceSnapshot, requested, tried string) (Selection, bool) {
	candidates, err := s.index.Similar(ctx, requested, s.limit)
	if err != nil {
		s.log.WithError(err).WithField("requested", requested).Warn("Category similarity lookup failed")
		return Selection{}, false
	}
	for _, c := range candidates {
		if c.Score < s.threshold {
			continue
		}
		category := Fold(c.Category)
		if category == tried {
			continue
		}
		sel, ok := s.lexical(snapshot, s.variants(category))
		if !ok {
			continue
		}
		sel.Category = category
		sel.Confidence = ConfidenceLexical * c.Score
		sel.Tier = TierSemantic
		return sel, true
	}
	return Selection{}, false
}

func (s *Selector) legacy(snapshot *models.PriceSnapshot) (Selection, error) {
	if snapshot.Price == nil {
		return Selection{}, ErrNoMatch
	}
	price, err := s.normalizer.Normalize(*snapshot.Price, snapshot.Currency)
	if err != nil {
		return Selection{}, ErrNoMatch
	}
	return Selection{
		Amount:     price.Amount,
		Currency:   price.Currency,
		Confidence: ConfidenceLegacy,
		Tier:       TierLegacy,
	}, nil
}

func (s *Selector) offerPrice(offer models.RoomOffer, currency string) (pricing.Price, error) {
	if amount, cur, ok := offer.PriceIn(currency); ok {
		return s.normalizer.Normalize(amount, cur)
	}
	return s.normalizer.Normalize(offer.RawPrice, currency)
}
