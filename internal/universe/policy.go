package universe

import "strings"

// PrefixRule maps codes starting with Prefix to an exchange Suffix
type PrefixRule struct {
	Prefix string `yaml:"prefix" validate:"required"`
	Suffix string `yaml:"suffix" validate:"required"`
}

// ExchangePolicy classifies numeric instrument codes by exchange.
// The prefix convention is a simplification and can misclassify some instruments,
// so it is configured rather than hard coded.
type ExchangePolicy struct {
	Rules   []PrefixRule `yaml:"rules"`
	Default string       `yaml:"default"`
}

// DefaultExchangePolicy sends codes starting with 6 to SH and everything else to SZ
func DefaultExchangePolicy() ExchangePolicy {
	return ExchangePolicy{
		Rules:   []PrefixRule{{Prefix: "6", Suffix: "SH"}},
		Default: "SZ",
	}
}

// Suffix returns the exchange suffix for a bare code; the longest matching prefix wins
func (p ExchangePolicy) Suffix(code string) string {
	best, bestLen := p.Default, -1
	for _, r := range p.Rules {
		if strings.HasPrefix(code, r.Prefix) && len(r.Prefix) > bestLen {
			best, bestLen = r.Suffix, len(r.Prefix)
		}
	}
	return best
}

// Ticker returns code.SUFFIX; codes that already carry a suffix are kept
func (p ExchangePolicy) Ticker(code string) string {
	code = strings.TrimSpace(code)
	if strings.Contains(code, ".") {
		return strings.ToUpper(code)
	}
	return code + "." + p.Suffix(code)
}
