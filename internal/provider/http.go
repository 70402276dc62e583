package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hotel-rate-monitor/internal/ratelimit"
)

// HTTPConfig configures the JSON rates API client
type HTTPConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	UserAgent  string
	Timeout    time.Duration
	RetryDelay time.Duration
}

// HTTPProvider reads rates from a JSON API:
//
//	GET /v1/properties/lookup?name=&location=     -> {"identifier": "..."}
//	GET /v1/properties/{id}/rates?check_in=...    -> rates document
//	GET /v1/rates?name=&location=&check_in=...    -> rates document (no identifier yet)
type HTTPProvider struct {
	cfg HTTPConfig
	req *requester
}

// NewHTTPProvider creates the API client. breaker and limiter may be nil.
func NewHTTPProvider(cfg HTTPConfig, breaker *CircuitBreaker, limiter *ratelimit.WindowLimiter) *HTTPProvider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPProvider{
		cfg: cfg,
		req: newRequester(cfg.Name, cfg.Timeout, cfg.RetryDelay, breaker, limiter),
	}
}

func (p *HTTPProvider) Name() string { return p.cfg.Name }

type lookupResponse struct {
	Identifier string `json:"identifier"`
}

type ratesResponse struct {
	Identifier string          `json:"identifier"`
	Currency   string          `json:"currency"`
	Price      json.RawMessage `json:"price"`
	Rank       *int            `json:"rank"`
	Rooms      []struct {
		Name  string          `json:"name"`
		Price json.RawMessage `json:"price"`
	} `json:"rooms"`
}

// ResolveIdentifier looks up the provider id by name and location
func (p *HTTPProvider) ResolveIdentifier(ctx context.Context, q IdentifierQuery) (string, error) {
	const op = "resolve identifier"
	params := url.Values{}
	params.Set("name", q.Name)
	if q.Location != "" {
		params.Set("location", q.Location)
	}

	body, err := p.req.get(ctx, op, p.cfg.BaseURL+"/v1/properties/lookup?"+params.Encode(), p.decorate)
	if err != nil {
		return "", err
	}

	var out lookupResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &ProviderError{Op: op, Provider: p.cfg.Name, Err: fmt.Errorf("%w: %v", ErrBadResponse, err)}
	}
	id := strings.TrimSpace(out.Identifier)
	if id == "" {
		return "", &ProviderError{Op: op, Provider: p.cfg.Name, Err: fmt.Errorf("%w: no identifier for %q", ErrNotFound, q.Name)}
	}
	return id, nil
}

// FetchPrices returns the raw rates for the requested stay
func (p *HTTPProvider) FetchPrices(ctx context.Context, r Request) (*Quote, error) {
	const op = "fetch prices"
	params := url.Values{}
	params.Set("check_in", r.CheckIn.Format(dateLayout))
	params.Set("check_out", r.CheckOut.Format(dateLayout))
	params.Set("adults", strconv.Itoa(r.Adults))
	if r.Currency != "" {
		params.Set("currency", r.Currency)
	}

	endpoint := p.cfg.BaseURL + "/v1/properties/" + url.PathEscape(r.ExternalID) + "/rates"
	if r.ExternalID == "" {
		params.Set("name", r.Name)
		params.Set("location", r.Location)
		endpoint = p.cfg.BaseURL + "/v1/rates"
	}

	body, err := p.req.get(ctx, op, endpoint+"?"+params.Encode(), p.decorate)
	if err != nil {
		return nil, err
	}

	var out ratesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &ProviderError{Op: op, Provider: p.cfg.Name, Err: fmt.Errorf("%w: %v", ErrBadResponse, err)}
	}

	quote := &Quote{
		Price:      rawValue(out.Price),
		Currency:   strings.ToUpper(strings.TrimSpace(out.Currency)),
		Identifier: strings.TrimSpace(out.Identifier),
		Source:     p.cfg.Name,
		Rank:       out.Rank,
	}
	for _, room := range out.Rooms {
		quote.Offers = append(quote.Offers, OfferQuote{
			Name:     strings.TrimSpace(room.Name),
			RawPrice: rawString(room.Price),
		})
	}
	return quote, nil
}

func (p *HTTPProvider) decorate(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
}

// rawValue keeps JSON strings as strings and numbers as json.Number
func rawValue(msg json.RawMessage) any {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return nil
	}
	if msg[0] == '"' {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil
		}
		return s
	}
	return json.Number(msg)
}

func rawString(msg json.RawMessage) string {
	switch v := rawValue(msg).(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
