package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ratesPage = `<html><body>
<div class="hotel" data-hotel-id="H-42">
  <span class="from-price">₺5.677</span>
  <table>
    <tr class="room"><td class="room-name">Standart Oda</td><td class="room-price">5.677 TL</td></tr>
    <tr class="room"><td class="room-name">  Deluxe
        Suite </td><td class="room-price">9.100,50 TL</td></tr>
    <tr class="room"><td class="room-name"></td><td class="room-price">1 TL</td></tr>
  </table>
</div>
</body></html>`

func pageSelectors() PageSelectors {
	return PageSelectors{
		Offer:          "tr.room",
		OfferName:      ".room-name",
		OfferPrice:     ".room-price",
		TopPrice:       ".from-price",
		Identifier:     ".hotel",
		IdentifierAttr: "data-hotel-id",
	}
}

func TestPageProviderFetchPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hotel/H-42", r.URL.Path)
		assert.Equal(t, "2026-05-01", r.URL.Query().Get("in"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(ratesPage))
	}))
	defer srv.Close()

	fetcher := NewHTTPFetcher("pages", "", time.Second, 0, nil, nil)
	p := NewPageProvider(PageConfig{
		Name:      "pages",
		PriceURL:  srv.URL + "/hotel/{id}?in={check_in}&out={check_out}&adults={adults}",
		Selectors: pageSelectors(),
	}, fetcher)

	quote, err := p.FetchPrices(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "₺5.677", quote.Price)
	assert.Equal(t, "H-42", quote.Identifier)
	require.Len(t, quote.Offers, 2)
	assert.Equal(t, "Standart Oda", quote.Offers[0].Name)
	assert.Equal(t, "5.677 TL", quote.Offers[0].RawPrice)
	assert.Equal(t, "Deluxe Suite", quote.Offers[1].Name)
}

type staticFetcher struct{ html string }

func (f staticFetcher) Fetch(context.Context, string) (string, error) { return f.html, nil }

func TestPageProviderResolveIdentifier(t *testing.T) {
	p := NewPageProvider(PageConfig{
		Name:          "pages",
		IdentifierURL: "https://example.test/search?q={name}",
		Selectors:     pageSelectors(),
	}, staticFetcher{html: ratesPage})

	id, err := p.ResolveIdentifier(context.Background(), IdentifierQuery{Name: "Grand Bosphorus"})
	require.NoError(t, err)
	assert.Equal(t, "H-42", id)

	empty := NewPageProvider(PageConfig{Name: "pages", Selectors: pageSelectors()}, staticFetcher{html: ratesPage})
	_, err = empty.ResolveIdentifier(context.Background(), IdentifierQuery{Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPageProviderNoPrices(t *testing.T) {
	p := NewPageProvider(PageConfig{Name: "pages", PriceURL: "https://example.test/{id}", Selectors: pageSelectors()},
		staticFetcher{html: "<html><body>sold out</body></html>"})

	_, err := p.FetchPrices(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestExpandURLEscapes(t *testing.T) {
	got := expandURL("https://x.test/s?q={name}&l={location}", map[string]string{"name": "Otel & Spa", "location": "İzmir"})
	assert.Equal(t, "https://x.test/s?q=Otel+%26+Spa&l=%C4%B0zmir", got)
}
