package card

import "github.com/jonesrussell/ml-inventory/internal/identity"

// NeedsEnrichment is the crawl-time enrichment gate: it decides whether a
// listing requires a detail-page fetch before it can be exported. It is a
// pipeline-continuation decision, not a filtering decision, and depends only
// on identity and seller-reference presence, never on title, price, or the
// filter outcome.
//
// Any rule true → enrichment needed:
//   - no direct item ID (must be resolved from the detail page)
//   - seller unknown
//   - catalog URL (/p/ pages aggregate multiple sellers; item-level data is
//     unreliable without a detail fetch)
//   - unified-product URL (/up/ pages never carry a direct item ID)
func NeedsEnrichment(id identity.Identity, sellerKnown bool) bool {
	if id.ItemID == "" {
		return true
	}
	if !sellerKnown {
		return true
	}
	if id.IsCatalog {
		return true
	}
	if id.IsUnified {
		return true
	}
	return false
}
