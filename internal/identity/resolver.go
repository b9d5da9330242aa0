// Package identity resolves stable marketplace identifiers from the
// competing URL shapes MercadoLibre uses for listings.
//
// Five mutually-exclusive shapes are recognized, in strict priority order:
//
//	Unified:  mercadolibre.com.mx/up/MLMU3779491406      → up_id
//	Catalog:  mercadolibre.com.mx/p/MLM1054106937        → product_id
//	Articulo: articulo.mercadolibre.com.mx/MLM-4714040498-iphone-15-_JM → item_id
//	Direct:   mercadolibre.com.mx/MLM4714040498           → item_id
//	Query:    ...?wid=MLM4714040498                       → item_id
package identity

import (
	"crypto/sha1" //nolint:gosec // channel key fallback, not cryptographic
	"encoding/hex"
	"net/url"
	"regexp"
	"strconv"
)

// IDSource identifies which field a channel key was derived from.
type IDSource string

const (
	// SourceItemID means the key is a standard listing ID.
	SourceItemID IDSource = "item_id"
	// SourceProductID means the key is a catalog product ID.
	SourceProductID IDSource = "product_id"
	// SourceUpID means the key is a unified product ID.
	SourceUpID IDSource = "up_id"
	// SourceHash means the key is a SHA-1 digest of the permalink.
	SourceHash IDSource = "hash"
)

var (
	// itemIDRe matches a standard listing ID: MLM followed by 6-15 digits.
	itemIDRe = regexp.MustCompile(`(MLM\d{6,15})`)
	// productIDRe matches the catalog product ID in /p/MLMxxxx URLs.
	productIDRe = regexp.MustCompile(`/p/(MLM\d+)`)
	// upIDRe matches the unified product ID in /up/MLMUxxxx URLs.
	upIDRe = regexp.MustCompile(`/up/(MLMU\d+)`)
	// articuloItemIDRe matches the dashed articulo URL style, where the
	// digits are separated from the MLM prefix by a dash.
	articuloItemIDRe = regexp.MustCompile(`/MLM-(\d{6,15})`)
	// sellerTiendaRe matches the seller ID in /tienda/123456 URLs.
	sellerTiendaRe = regexp.MustCompile(`/tienda/(\d+)`)
	// sellerCustIDRe matches the seller ID in legacy _CustId_123456 URLs.
	sellerCustIDRe = regexp.MustCompile(`_CustId_(\d+)`)
)

// Identity holds the identifiers extracted from a permalink. At most one of
// ItemID/ProductID/UpID is non-empty. Derived once, never mutated.
type Identity struct {
	ItemID    string
	ProductID string
	UpID      string
	IsCatalog bool
	IsUnified bool
}

// Key is the canonical external identity used for idempotent upsert.
type Key struct {
	ChannelItemID string
	Source        IDSource
}

// Empty reports whether the key carries no usable identifier. Callers must
// exclude such cards rather than upsert them.
func (k Key) Empty() bool {
	return k.ChannelItemID == ""
}

// Resolve extracts identifiers from a permalink. Shapes are checked in
// strict priority order and extraction stops at the first match, so a URL
// containing both a catalog segment and a bare item token yields only the
// product ID.
func Resolve(permalink string) Identity {
	var id Identity
	if permalink == "" {
		return id
	}

	if m := upIDRe.FindStringSubmatch(permalink); m != nil {
		id.UpID = m[1]
		id.IsUnified = true
		return id
	}

	if m := productIDRe.FindStringSubmatch(permalink); m != nil {
		id.ProductID = m[1]
		id.IsCatalog = true
		return id
	}

	if m := articuloItemIDRe.FindStringSubmatch(permalink); m != nil {
		id.ItemID = "MLM" + m[1]
		return id
	}

	if m := itemIDRe.FindStringSubmatch(permalink); m != nil {
		id.ItemID = m[1]
		return id
	}

	if wid := widParam(permalink); wid != "" {
		id.ItemID = wid
		return id
	}

	return id
}

// widParam extracts a listing ID from the wid query parameter, if present
// and well-formed.
func widParam(permalink string) string {
	parsed, err := url.Parse(permalink)
	if err != nil {
		return ""
	}

	wid := parsed.Query().Get("wid")
	if wid == "" || !itemIDRe.MatchString(wid) {
		return ""
	}
	return wid
}

// ChannelKey derives the canonical channel key from an identity and its
// permalink. Priority: product_id → item_id → up_id → SHA-1(permalink).
// Pure and deterministic: the same input always yields the same key.
// An empty permalink yields an empty key, never a hash of "".
func ChannelKey(id Identity, permalink string) Key {
	if id.ProductID != "" {
		return Key{ChannelItemID: id.ProductID, Source: SourceProductID}
	}
	if id.ItemID != "" {
		return Key{ChannelItemID: id.ItemID, Source: SourceItemID}
	}
	if id.UpID != "" {
		return Key{ChannelItemID: id.UpID, Source: SourceUpID}
	}
	if permalink != "" {
		sum := sha1.Sum([]byte(permalink)) //nolint:gosec // stable key, not security
		return Key{ChannelItemID: hex.EncodeToString(sum[:]), Source: SourceHash}
	}
	return Key{Source: SourceHash}
}

// SellerID extracts a seller ID from /tienda/ or legacy _CustId_ URL
// patterns. Returns 0, false when neither pattern matches.
func SellerID(rawURL string) (int64, bool) {
	if rawURL == "" {
		return 0, false
	}

	if m := sellerTiendaRe.FindStringSubmatch(rawURL); m != nil {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			return id, true
		}
	}

	if m := sellerCustIDRe.FindStringSubmatch(rawURL); m != nil {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			return id, true
		}
	}

	return 0, false
}
