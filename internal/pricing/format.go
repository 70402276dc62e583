package pricing

import "strings"

// Style selects the decimal separator used by Format.
type Style int

const (
	// DotDecimal renders 1,234.50
	DotDecimal Style = iota
	// CommaDecimal renders 1.234,50
	CommaDecimal
)

// Format renders the amount with two decimals and thousands grouping.
func (p Price) Format(style Style) string {
	fixed := p.Amount.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	group, point := ",", "."
	if style == CommaDecimal {
		group, point = ".", ","
	}

	var b strings.Builder
	if p.Amount.IsNegative() {
		b.WriteByte('-')
	}
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteString(group)
		b.WriteString(intPart[i : i+3])
	}
	b.WriteString(point)
	b.WriteString(frac)
	return b.String()
}
