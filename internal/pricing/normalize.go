// Package pricing turns provider price strings and numbers into decimal amounts.
package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnparseable is returned when no finite non-negative amount can be read.
var ErrUnparseable = errors.New("unparseable price")

// DefaultDotGroupingCurrencies lists currencies whose locales write thousands as "5.677".
var DefaultDotGroupingCurrencies = []string{"TRY", "EUR", "IDR", "VND", "DKK", "NOK", "BRL", "ARS", "CLP", "COP"}

// Price is a normalized amount in an ISO 4217 currency
type Price struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (p Price) String() string {
	return p.Amount.StringFixed(2) + " " + p.Currency
}

// Normalizer parses raw prices. It is safe for concurrent use.
type Normalizer struct {
	dotGrouping map[string]struct{}
}

// NewNormalizer builds a normalizer with the given dot-grouping currency table.
func NewNormalizer(dotGroupingCurrencies []string) *Normalizer {
	n := &Normalizer{dotGrouping: make(map[string]struct{}, len(dotGroupingCurrencies))}
	for _, c := range dotGroupingCurrencies {
		n.dotGrouping[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return n
}

var defaultNormalizer = NewNormalizer(DefaultDotGroupingCurrencies)

// Normalize parses raw with the default dot-grouping table.
func Normalize(raw any, defaultCurrency string) (Price, error) {
	return defaultNormalizer.Normalize(raw, defaultCurrency)
}

// Normalize accepts strings, integers, floats, decimal.Decimal and json.Number.
func (n *Normalizer) Normalize(raw any, defaultCurrency string) (Price, error) {
	currency := strings.ToUpper(strings.TrimSpace(defaultCurrency))

	switch v := raw.(type) {
	case nil:
		return Price{}, ErrUnparseable
	case string:
		return n.parseString(v, currency)
	case *string:
		if v == nil {
			return Price{}, ErrUnparseable
		}
		return n.parseString(*v, currency)
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return Price{}, fmt.Errorf("%w: %q", ErrUnparseable, v.String())
		}
		return fromDecimal(d, currency)
	case decimal.Decimal:
		return fromDecimal(v, currency)
	case *decimal.Decimal:
		if v == nil {
			return Price{}, ErrUnparseable
		}
		return fromDecimal(*v, currency)
	case float64:
		return fromFloat(v, currency)
	case float32:
		return fromFloat(float64(v), currency)
	case int:
		return fromDecimal(decimal.NewFromInt(int64(v)), currency)
	case int32:
		return fromDecimal(decimal.NewFromInt32(v), currency)
	case int64:
		return fromDecimal(decimal.NewFromInt(v), currency)
	case uint:
		return fromDecimal(decimal.NewFromUint64(uint64(v)), currency)
	case uint32:
		return fromDecimal(decimal.NewFromUint64(uint64(v)), currency)
	case uint64:
		return fromDecimal(decimal.NewFromUint64(v), currency)
	default:
		return Price{}, fmt.Errorf("%w: unsupported type %T", ErrUnparseable, raw)
	}
}

func fromFloat(f float64, currency string) (Price, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Price{}, fmt.Errorf("%w: %v", ErrUnparseable, f)
	}
	return fromDecimal(decimal.NewFromFloat(f), currency)
}

func fromDecimal(d decimal.Decimal, currency string) (Price, error) {
	if d.IsNegative() {
		return Price{}, fmt.Errorf("%w: negative amount %s", ErrUnparseable, d.String())
	}
	return Price{Amount: d, Currency: currency}, nil
}

var (
	nonNumeric    = regexp.MustCompile(`[^0-9.,]`)
	minusSign     = regexp.MustCompile(`[-−]\s*[0-9]`)
	strictDecimal = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

func (n *Normalizer) parseString(raw, currency string) (Price, error) {
	if detected := detectCurrency(raw, currency); detected != "" {
		currency = detected
	}

	// negative amounts and ranges such as "100 - 200" have no single price
	if minusSign.MatchString(raw) {
		return Price{}, fmt.Errorf("%w: %q", ErrUnparseable, raw)
	}

	cleaned := nonNumeric.ReplaceAllString(raw, "")
	if !strings.ContainsAny(cleaned, "0123456789") {
		return Price{}, fmt.Errorf("%w: %q", ErrUnparseable, raw)
	}

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// whichever separator comes last is the decimal point
		if lastDot > lastComma {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		}
	case lastComma >= 0:
		if trailingDigits(cleaned, lastComma) == 3 {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		}
	case lastDot >= 0:
		if trailingDigits(cleaned, lastDot) == 3 && n.groupsWithDot(currency) {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
		}
	}

	cleaned = strings.TrimSuffix(cleaned, ".")
	if strings.HasPrefix(cleaned, ".") {
		cleaned = "0" + cleaned
	}
	if !strictDecimal.MatchString(cleaned) {
		return Price{}, fmt.Errorf("%w: %q", ErrUnparseable, raw)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Price{}, fmt.Errorf("%w: %q", ErrUnparseable, raw)
	}
	return fromDecimal(d, currency)
}

func (n *Normalizer) groupsWithDot(currency string) bool {
	_, ok := n.dotGrouping[currency]
	return ok
}

func trailingDigits(s string, sep int) int {
	return len(s) - sep - 1
}
