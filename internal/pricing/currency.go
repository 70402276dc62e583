package pricing

import (
	"regexp"
	"strings"
)

var symbolCurrencies = []struct {
	symbol string
	code   string
}{
	{"US$", "USD"},
	{"₺", "TRY"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"₽", "RUB"},
	{"¥", "JPY"},
	{"₹", "INR"},
	{"₩", "KRW"},
	{"$", "USD"},
}

var codeCurrencies = map[string]string{
	"TL":   "TRY",
	"YTL":  "TRY",
	"TRY":  "TRY",
	"EUR":  "EUR",
	"EURO": "EUR",
	"USD":  "USD",
	"GBP":  "GBP",
	"RUB":  "RUB",
	"JPY":  "JPY",
	"CHF":  "CHF",
	"AED":  "AED",
	"SAR":  "SAR",
	"INR":  "INR",
	"IDR":  "IDR",
	"RP":   "IDR",
	"VND":  "VND",
	"DKK":  "DKK",
	"NOK":  "NOK",
	"SEK":  "SEK",
	"BRL":  "BRL",
	"CAD":  "CAD",
	"AUD":  "AUD",
}

// dollarCurrencies keep their own code when only "$" is present.
var dollarCurrencies = map[string]struct{}{
	"USD": {}, "CAD": {}, "AUD": {}, "NZD": {}, "SGD": {}, "HKD": {}, "MXN": {}, "ARS": {}, "CLP": {}, "COP": {},
}

var letterRun = regexp.MustCompile(`[A-Z]+`)

// detectCurrency returns the ISO code marked in raw, or "" when none is found.
func detectCurrency(raw, fallback string) string {
	upper := strings.ToUpper(raw)

	for _, word := range letterRun.FindAllString(upper, -1) {
		if code, ok := codeCurrencies[word]; ok {
			return code
		}
	}

	for _, sc := range symbolCurrencies {
		if !strings.Contains(upper, sc.symbol) {
			continue
		}
		if sc.symbol == "$" {
			if _, ok := dollarCurrencies[fallback]; ok {
				return fallback
			}
		}
		return sc.code
	}
	return ""
}
