package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageSelectors are CSS selectors into a rates page
type PageSelectors struct {
	Offer          string
	OfferName      string
	OfferPrice     string
	TopPrice       string
	Currency       string
	Identifier     string
	IdentifierAttr string
}

// PageConfig configures a scraped provider. URL templates accept the
// placeholders {id} {name} {location} {check_in} {check_out} {adults} {currency}.
type PageConfig struct {
	Name          string
	PriceURL      string
	IdentifierURL string
	Selectors     PageSelectors
}

// PageProvider scrapes prices from HTML pages
type PageProvider struct {
	cfg     PageConfig
	fetcher Fetcher
}

// NewPageProvider creates a scraping provider on top of fetcher
func NewPageProvider(cfg PageConfig, fetcher Fetcher) *PageProvider {
	return &PageProvider{cfg: cfg, fetcher: fetcher}
}

func (p *PageProvider) Name() string { return p.cfg.Name }

// ResolveIdentifier loads the lookup page and reads the identifier element
func (p *PageProvider) ResolveIdentifier(ctx context.Context, q IdentifierQuery) (string, error) {
	const op = "resolve identifier"
	if p.cfg.IdentifierURL == "" {
		return "", &ProviderError{Op: op, Provider: p.cfg.Name, Err: fmt.Errorf("%w: identifier lookup not configured", ErrNotFound)}
	}

	doc, err := p.load(ctx, op, expandURL(p.cfg.IdentifierURL, map[string]string{
		"name":     q.Name,
		"location": q.Location,
	}))
	if err != nil {
		return "", err
	}

	id := p.identifier(doc)
	if id == "" {
		return "", &ProviderError{Op: op, Provider: p.cfg.Name, Err: fmt.Errorf("%w: no identifier for %q", ErrNotFound, q.Name)}
	}
	return id, nil
}

// FetchPrices loads the rates page and extracts the top-line price and room rows
func (p *PageProvider) FetchPrices(ctx context.Context, r Request) (*Quote, error) {
	const op = "fetch prices"
	doc, err := p.load(ctx, op, expandURL(p.cfg.PriceURL, map[string]string{
		"id":        r.ExternalID,
		"name":      r.Name,
		"location":  r.Location,
		"check_in":  r.CheckIn.Format(dateLayout),
		"check_out": r.CheckOut.Format(dateLayout),
		"adults":    strconv.Itoa(r.Adults),
		"currency":  r.Currency,
	}))
	if err != nil {
		return nil, err
	}

	sel := p.cfg.Selectors
	quote := &Quote{
		Identifier: p.identifier(doc),
		Source:     p.cfg.Name,
	}
	if sel.TopPrice != "" {
		if top := cleanText(doc.Find(sel.TopPrice).First().Text()); top != "" {
			quote.Price = top
		}
	}
	if sel.Currency != "" {
		quote.Currency = strings.ToUpper(cleanText(doc.Find(sel.Currency).First().Text()))
	}
	if sel.Offer != "" {
		doc.Find(sel.Offer).Each(func(_ int, row *goquery.Selection) {
			name := cleanText(row.Find(sel.OfferName).First().Text())
			if name == "" {
				return
			}
			quote.Offers = append(quote.Offers, OfferQuote{
				Name:     name,
				RawPrice: cleanText(row.Find(sel.OfferPrice).First().Text()),
			})
		})
	}

	if quote.Price == nil && len(quote.Offers) == 0 {
		return nil, &ProviderError{Op: op, Provider: p.cfg.Name, Err: fmt.Errorf("%w: no prices on page", ErrBadResponse)}
	}
	return quote, nil
}

func (p *PageProvider) load(ctx context.Context, op, pageURL string) (*goquery.Document, error) {
	html, err := p.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ProviderError{Op: op, Provider: p.cfg.Name, Err: fmt.Errorf("%w: parse html: %v", ErrBadResponse, err)}
	}
	return doc, nil
}

func (p *PageProvider) identifier(doc *goquery.Document) string {
	sel := p.cfg.Selectors
	if sel.Identifier == "" {
		return ""
	}
	node := doc.Find(sel.Identifier).First()
	if sel.IdentifierAttr != "" {
		v, _ := node.Attr(sel.IdentifierAttr)
		return strings.TrimSpace(v)
	}
	return cleanText(node.Text())
}

func expandURL(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", url.QueryEscape(v))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
