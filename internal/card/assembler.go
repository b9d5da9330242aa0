// Package card assembles crawl cards by composing three independent decision
// layers: identity extraction, enrichment-need, and the eligibility filter.
// The layers never read each other's outputs; permuting their evaluation
// order yields identical results.
package card

import (
	"strings"

	"github.com/jonesrussell/ml-inventory/internal/domain"
	"github.com/jonesrussell/ml-inventory/internal/identity"
)

// Input carries the raw scraped fields for one listing. Identity and all
// decision fields are derived here, not by the scraper.
type Input struct {
	Permalink string
	Title     string
	PriceMXN  float64
	Currency  string
	SellerID  int64
}

// Assemble builds one immutable Card from raw scraped fields. Pure
// composition: each layer runs against the same inputs and the results are
// merged at the end.
func Assemble(in Input, toggles Toggles) *domain.Card {
	permalink := stripFragment(in.Permalink)

	id := identity.Resolve(permalink)
	key := identity.ChannelKey(id, permalink)

	needsEnrichment := NeedsEnrichment(id, in.SellerID != 0)

	filteredOut, reasons := Classify(in.Title, in.PriceMXN, permalink, toggles)

	currency := in.Currency
	if currency == "" {
		currency = domain.CurrencyMXN
	}

	return &domain.Card{
		Permalink:       permalink,
		Title:           in.Title,
		ItemID:          id.ItemID,
		ProductID:       id.ProductID,
		UpID:            id.UpID,
		SellerID:        in.SellerID,
		PriceMXN:        in.PriceMXN,
		Currency:        currency,
		ChannelItemID:   key.ChannelItemID,
		IDSource:        key.Source,
		NeedsEnrichment: needsEnrichment,
		FilteredOut:     filteredOut,
		FilteredReasons: reasons,
	}
}

// Reresolve recomputes identity against a resolved URL after a click-tracker
// redirect was followed. This is the only sanctioned mutation of a card after
// assembly; the filter outcome is carried over unchanged since title and
// price did not change.
func Reresolve(c *domain.Card, resolvedURL string, toggles Toggles) *domain.Card {
	out := Assemble(Input{
		Permalink: resolvedURL,
		Title:     c.Title,
		PriceMXN:  c.PriceMXN,
		Currency:  c.Currency,
		SellerID:  c.SellerID,
	}, toggles)
	return out
}

// ComputeStats derives aggregate counters from a card set: total, valid
// (not filtered), needing enrichment, ready (valid and complete), filtered.
func ComputeStats(cards []*domain.Card) domain.Stats {
	stats := domain.Stats{Total: len(cards)}

	for _, c := range cards {
		if c.FilteredOut {
			stats.FilteredOut++
		} else {
			stats.Valid++
		}

		if c.NeedsEnrichment {
			stats.NeedsEnrichment++
		}

		if !c.FilteredOut && !c.NeedsEnrichment {
			stats.Ready++
		}
	}

	return stats
}

// Dedupe removes duplicate cards by permalink, keeping the first occurrence.
// Runs after a full crawl pass, so page ordering does not affect the final
// set membership.
func Dedupe(cards []*domain.Card) []*domain.Card {
	seen := make(map[string]struct{}, len(cards))
	out := make([]*domain.Card, 0, len(cards))

	for _, c := range cards {
		if _, ok := seen[c.Permalink]; ok {
			continue
		}
		seen[c.Permalink] = struct{}{}
		out = append(out, c)
	}

	return out
}

// stripFragment removes the URL fragment, which MercadoLibre uses for
// tracking position markers and which would break permalink dedupe.
func stripFragment(permalink string) string {
	if i := strings.IndexByte(permalink, '#'); i >= 0 {
		return permalink[:i]
	}
	return permalink
}
