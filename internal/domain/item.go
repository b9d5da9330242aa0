package domain

// Item is an enriched listing: a Card plus the detail captured by a
// detail-page fetch. Owned by the enrichment stage; the export stage only
// reads it.
type Item struct {
	Source    string  `json:"source"`
	Permalink string  `json:"permalink"`
	Title     string  `json:"title"`
	ItemID    string  `json:"item_id,omitempty"`
	ProductID string  `json:"product_id,omitempty"`
	UpID      string  `json:"up_id,omitempty"`
	SellerID  int64   `json:"seller_id,omitempty"`
	PriceMXN  float64 `json:"price_mxn,omitempty"`
	Currency  string  `json:"currency"`

	ChannelItemID   string `json:"channel_item_id"`
	IDSource        string `json:"id_source"`
	NeedsEnrichment bool   `json:"needs_enrichment"`

	Condition string   `json:"condition,omitempty"`
	Brand     string   `json:"brand,omitempty"`
	Pictures  []string `json:"pictures,omitempty"`

	// Attributes is a free-form bag that may carry structured product
	// metadata, e.g. the page's JSON-LD block under the "jsonld" key.
	Attributes map[string]any `json:"attributes,omitempty"`

	// CapturedAt is the UTC capture timestamp as scraped, ISO-8601-ish.
	// Normalization to the wire format happens at transform time.
	CapturedAt string `json:"captured_at_utc"`
}

// FromCard builds an unenriched Item from a crawl card, for listings that
// are exportable without a detail fetch.
func FromCard(c *Card) *Item {
	return &Item{
		Source:          "mercadolibre_scrape",
		Permalink:       c.Permalink,
		Title:           c.Title,
		ItemID:          c.ItemID,
		ProductID:       c.ProductID,
		UpID:            c.UpID,
		SellerID:        c.SellerID,
		PriceMXN:        c.PriceMXN,
		Currency:        c.Currency,
		ChannelItemID:   c.ChannelItemID,
		IDSource:        string(c.IDSource),
		NeedsEnrichment: c.NeedsEnrichment,
	}
}
