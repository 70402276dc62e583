// Package provider talks to third-party rate sources.
package provider

import (
	"context"
	"time"
)

// IdentifierQuery looks a property up by its human-facing attributes
type IdentifierQuery struct {
	Name     string
	Location string
}

// Request asks for nightly prices of one property
type Request struct {
	PropertyID string
	ExternalID string
	Name       string
	Location   string
	CheckIn    time.Time
	CheckOut   time.Time
	Adults     int
	Currency   string
}

// OfferQuote is one room line as the provider wrote it
type OfferQuote struct {
	Name     string
	RawPrice string
}

// Quote is the provider's answer before normalization.
// Price holds the raw top-line value: a string, json.Number or nil.
type Quote struct {
	Price      any
	Currency   string
	Offers     []OfferQuote
	Identifier string
	Source     string
	Rank       *int
}

// Provider is a source of identifiers and prices
type Provider interface {
	Name() string
	ResolveIdentifier(ctx context.Context, q IdentifierQuery) (string, error)
	FetchPrices(ctx context.Context, req Request) (*Quote, error)
}

const dateLayout = "2006-01-02"
