// Package transform validates enriched items and converts them into the wire
// records the remote inventory store accepts. Transform is total: every
// rejected input maps to exactly one skip code, never an error.
package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/ml-inventory/internal/domain"
	"github.com/jonesrussell/ml-inventory/internal/identity"
)

// Skip reason codes. Counted per export run, never silently dropped.
const (
	SkipMissingPermalink = "missing_permalink"
	SkipInvalidPayload   = "invalid_payload"
	SkipMissingPrice     = "missing_price"
	SkipInvalidCurrency  = "invalid_currency"
	SkipMissingIdentity  = "missing_identity"
	SkipNeedsEnrichment  = "needs_enrichment_true"
)

// minTitleLength mirrors the eligibility filter's title floor.
const minTitleLength = 3

// priceDecimals is the rounding precision for the reference-currency price.
const priceDecimals = 6

// wireTimestampLayout is the listing timestamp format the backend expects.
const wireTimestampLayout = "2006-01-02T15:04:05Z"

// FXRate is the reference exchange rate supplied by configuration, with the
// calendar date the rate was obtained for. AsOf may lag behind today when the
// rate source is stale.
type FXRate struct {
	RateToUSD float64 `yaml:"rate_to_usd" env:"FX_RATE_TO_USD"`
	AsOf      string  `yaml:"as_of" env:"FX_AS_OF"`
}

// Policy configures transform-time behavior.
type Policy struct {
	// RequireStructuredData switches the transform-time enrichment gate to
	// the strict rule: an enrichment-flagged item must carry structured
	// metadata to export, a known price alone does not suffice.
	RequireStructuredData bool `yaml:"require_structured_data" env:"REQUIRE_STRUCTURED_DATA"`
}

// Transform validates one item and builds its wire record. Returns either a
// listing and an empty skip code, or nil and exactly one of the six codes.
func Transform(item *domain.Item, fx FXRate, policy Policy, now time.Time) (*domain.SellListing, string) {
	permalink := resolvePermalink(item)
	if permalink == "" {
		return nil, SkipMissingPermalink
	}

	if len(strings.TrimSpace(item.Title)) < minTitleLength {
		return nil, SkipInvalidPayload
	}

	if item.PriceMXN <= 0 {
		return nil, SkipMissingPrice
	}

	if item.Currency != "" && item.Currency != domain.CurrencyMXN {
		return nil, SkipInvalidCurrency
	}

	key := channelKey(item, permalink)
	if key.Empty() {
		return nil, SkipMissingIdentity
	}

	if skipForEnrichment(item, policy) {
		return nil, SkipNeedsEnrichment
	}

	listing := &domain.SellListing{
		Channel:           domain.Channel,
		Market:            domain.Market,
		ChannelItemID:     key.ChannelItemID,
		Title:             strings.TrimSpace(item.Title),
		SellPriceOriginal: item.PriceMXN,
		CurrencyOriginal:  domain.CurrencyMXN,
		SellPriceUSD:      roundTo(item.PriceMXN*fx.RateToUSD, priceDecimals),
		FxRateToUSD:       fx.RateToUSD,
		FxAsOfDate:        fx.AsOf,
		ListingTimestamp:  normalizeTimestamp(item.CapturedAt, now),
		UnifiedProductID:  unifiedProductID(item.UpID),
		Action:            domain.ActionUpsert,
		Attributes:        wireAttributes(item, permalink),
	}

	applyStructuredData(listing, item.Attributes)

	return listing, ""
}

// All transforms a batch, returning the accepted listings and a histogram of
// skip reasons.
func All(items []*domain.Item, fx FXRate, policy Policy, now time.Time) ([]domain.SellListing, map[string]int) {
	listings := make([]domain.SellListing, 0, len(items))
	skips := make(map[string]int)

	for _, item := range items {
		listing, reason := Transform(item, fx, policy, now)
		if reason != "" {
			skips[reason]++
			continue
		}
		listings = append(listings, *listing)
	}

	return listings, skips
}

// resolvePermalink tries the primary permalink field, then URL-bearing
// attribute keys, then scans every string attribute for a channel URL.
func resolvePermalink(item *domain.Item) string {
	if isChannelURL(item.Permalink) {
		return item.Permalink
	}

	for _, k := range []string{"permalink", "url", "link"} {
		if v, ok := item.Attributes[k].(string); ok && isChannelURL(v) {
			return v
		}
	}

	for _, v := range item.Attributes {
		if s, ok := v.(string); ok && isChannelURL(s) {
			return s
		}
	}

	return ""
}

func isChannelURL(s string) bool {
	return strings.HasPrefix(s, "http") && strings.Contains(strings.ToLower(s), "mercadolibre")
}

// channelKey returns the stored key, re-deriving it from the permalink when
// the stored one is missing or stale (empty, or a hash despite the permalink
// now carrying a direct ID).
func channelKey(item *domain.Item, permalink string) identity.Key {
	stored := identity.Key{
		ChannelItemID: item.ChannelItemID,
		Source:        identity.IDSource(item.IDSource),
	}
	if !stored.Empty() && stored.Source != identity.SourceHash {
		return stored
	}

	rederived := identity.ChannelKey(identity.Resolve(permalink), permalink)
	if rederived.Empty() {
		return stored
	}
	return rederived
}

// skipForEnrichment is the transform-time completeness gate, independent of
// the crawl-time gate. The default rule accepts an enrichment-flagged item
// when it carries structured metadata or a known price; the strict rule
// demands structured metadata.
func skipForEnrichment(item *domain.Item, policy Policy) bool {
	if !item.NeedsEnrichment {
		return false
	}

	hasMetadata := structuredData(item.Attributes) != nil
	if policy.RequireStructuredData {
		return !hasMetadata
	}
	return !hasMetadata && item.PriceMXN <= 0
}

// structuredData returns the page's linked-data block when the attribute bag
// carries one.
func structuredData(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	if m, ok := attrs["jsonld"].(map[string]any); ok {
		return m
	}
	return nil
}

// applyStructuredData opportunistically fills merchandising fields from the
// linked-data block. Absent or malformed values leave the fields nil.
func applyStructuredData(listing *domain.SellListing, attrs map[string]any) {
	ld := structuredData(attrs)
	if ld == nil {
		return
	}

	if brand := brandName(ld["brand"]); brand != "" {
		listing.Attributes["brand"] = brand
	}

	agg, ok := ld["aggregateRating"].(map[string]any)
	if !ok {
		return
	}
	if rating, ok := asFloat(agg["ratingValue"]); ok {
		listing.Rating = &rating
	}
	if count, ok := asFloat(agg["reviewCount"]); ok {
		n := int(count)
		listing.ReviewsCount = &n
	}
}

// brandName handles both string brands and {"name": ...} brand objects.
func brandName(v any) string {
	switch b := v.(type) {
	case string:
		return b
	case map[string]any:
		if name, ok := b["name"].(string); ok {
			return name
		}
	}
	return ""
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// unifiedProductID extracts the numeric part of an MLMU identifier.
func unifiedProductID(upID string) *int64 {
	const prefix = "MLMU"
	if !strings.HasPrefix(upID, prefix) {
		return nil
	}
	n, err := strconv.ParseInt(upID[len(prefix):], 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// wireAttributes assembles the listing's attribute bag: the resolved
// permalink plus detail fields captured during enrichment.
func wireAttributes(item *domain.Item, permalink string) map[string]any {
	attrs := map[string]any{"permalink": permalink}

	if item.Condition != "" {
		attrs["condition"] = item.Condition
	}
	if item.Brand != "" {
		attrs["brand"] = item.Brand
	}
	if len(item.Pictures) > 0 {
		attrs["pictures"] = item.Pictures
	}
	if item.SellerID != 0 {
		attrs["seller_id"] = fmt.Sprintf("%d", item.SellerID)
	}

	return attrs
}

// normalizeTimestamp parses whatever ISO-ish string was captured and formats
// it into the wire layout at second precision, UTC. Unparseable or empty
// input falls back to the supplied clock.
func normalizeTimestamp(captured string, now time.Time) string {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, captured); err == nil {
			return t.UTC().Format(wireTimestampLayout)
		}
	}

	return now.UTC().Format(wireTimestampLayout)
}

// roundTo rounds half-away-from-zero to the given number of decimals.
func roundTo(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(v*scale) / scale
}
