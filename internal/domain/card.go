// Package domain defines the core types shared across the ingest pipeline.
package domain

import "github.com/jonesrussell/ml-inventory/internal/identity"

// Channel and market constants for the single supported marketplace.
const (
	Channel     = "mercadolibre"
	Market      = "MX"
	CurrencyMXN = "MXN"
)

// Card is the unit produced by one crawl pass for one listing, before any
// detail-page enrichment. Assembled once per distinct permalink and never
// mutated afterwards, except by an explicit re-resolution when a
// click-tracker redirect is followed.
type Card struct {
	Permalink string  `json:"permalink"`
	Title     string  `json:"title"`
	ItemID    string  `json:"item_id,omitempty"`
	ProductID string  `json:"product_id,omitempty"`
	UpID      string  `json:"up_id,omitempty"`
	SellerID  int64   `json:"seller_id,omitempty"`
	PriceMXN  float64 `json:"price_mxn,omitempty"`
	Currency  string  `json:"currency"`

	// ChannelItemID is the canonical stable identifier used for idempotent
	// upsert, with IDSource recording which field it was derived from.
	ChannelItemID string            `json:"channel_item_id"`
	IDSource      identity.IDSource `json:"id_source"`

	// NeedsEnrichment is the crawl-time decision to schedule a detail fetch.
	NeedsEnrichment bool `json:"needs_enrichment"`

	// FilteredOut and FilteredReasons are the eligibility-filter outcome.
	FilteredOut     bool     `json:"filtered_out"`
	FilteredReasons []string `json:"filtered_reasons,omitempty"`
}

// Identity reconstructs the identity view of the card for downstream
// re-derivation of the channel key.
func (c *Card) Identity() identity.Identity {
	return identity.Identity{
		ItemID:    c.ItemID,
		ProductID: c.ProductID,
		UpID:      c.UpID,
		IsCatalog: c.ProductID != "",
		IsUnified: c.UpID != "",
	}
}

// Stats aggregates card counters for one crawl pass. Used by callers for
// progress reporting, not by the decision logic itself.
type Stats struct {
	Total           int `json:"total"`
	Valid           int `json:"valid"`
	NeedsEnrichment int `json:"needs_enrichment"`
	Ready           int `json:"ready"`
	FilteredOut     int `json:"filtered_out"`
}
