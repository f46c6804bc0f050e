// Package ticker translates symbols between the internal form used by the
// catalog (BRK-B) and the wire form a provider expects (BRK.B).
//
// The translation replaces a single separator occurrence, so it is only
// reversible for tickers with at most one separator. Multi-separator symbols
// do not occur in the S&P 500 universe.
package ticker

import (
	"fmt"
	"strings"
)

const (
	// InternalSeparator is the share-class separator used by the catalog.
	InternalSeparator = "-"
	// DotSeparator is the share-class separator used by Finnhub.
	DotSeparator = "."
)

// YahooAliases maps internal index names to Yahoo index symbols. Each
// provider symbol appears once so the mapping stays reversible.
var YahooAliases = map[string]string{
	"SPX": "^GSPC",
	"NDX": "^NDX",
	"DJI": "^DJI",
	"VIX": "^VIX",
}

// Normalizer converts tickers for one provider.
type Normalizer struct {
	separator string
	aliases   map[string]string // internal ticker -> provider symbol, e.g. SPX -> ^GSPC
	reverse   map[string]string
}

// NewNormalizer creates a Normalizer for a provider separator. It panics
// when two internal names alias the same provider symbol, since the reverse
// mapping would be ambiguous.
func NewNormalizer(separator string, aliases map[string]string) *Normalizer {
	n := &Normalizer{
		separator: separator,
		aliases:   make(map[string]string, len(aliases)),
		reverse:   make(map[string]string, len(aliases)),
	}
	for internal, symbol := range aliases {
		if prev, ok := n.reverse[symbol]; ok {
			panic(fmt.Sprintf("ticker: aliases %q and %q both map to %q", prev, internal, symbol))
		}
		n.aliases[internal] = symbol
		n.reverse[symbol] = internal
	}
	return n
}

// ToProviderForm replaces the first internal separator with the provider separator.
func (n *Normalizer) ToProviderForm(t string) string {
	if mapped, ok := n.aliases[t]; ok {
		return mapped
	}
	if n.separator == "" || n.separator == InternalSeparator {
		return t
	}
	return strings.Replace(t, InternalSeparator, n.separator, 1)
}

// FromProviderForm is the inverse of ToProviderForm.
func (n *Normalizer) FromProviderForm(s string) string {
	if internal, ok := n.reverse[s]; ok {
		return internal
	}
	if n.separator == "" || n.separator == InternalSeparator {
		return s
	}
	return strings.Replace(s, n.separator, InternalSeparator, 1)
}

// ToProviderForm converts with the dot separator and no aliases.
func ToProviderForm(t string) string {
	return strings.Replace(t, InternalSeparator, DotSeparator, 1)
}

// FromProviderForm converts back from the dot separator.
func FromProviderForm(s string) string {
	return strings.Replace(s, DotSeparator, InternalSeparator, 1)
}
